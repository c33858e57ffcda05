package capture

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestWriteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir, 0, nil)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	d := Data{
		Timestamp: "2026-08-01T00:00:00Z",
		SessionID: strPtr("a1b2c3d4"),
		Method:    "POST",
		Path:      "/anthropic/v1/messages",
		Source:    strPtr("claude-code"),
		Provider:  "anthropic",
		ApiFormat: "anthropic",
	}
	l.Write(d, 1000)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one capture file, got %d", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "claude-code_a1b2c3d4_1000-") || !strings.HasSuffix(name, ".json") {
		t.Fatalf("unexpected capture filename: %s", name)
	}

	body, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var loaded Data
	if err := json.Unmarshal(body, &loaded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if loaded.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", loaded.Provider)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	l, _ := NewLogger(dir, 0, nil)
	l.Write(Data{Provider: "openai"}, 2000)

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("leftover tmp file: %s", e.Name())
		}
	}
}

func TestWriteSessionlessOmitsSessionSegment(t *testing.T) {
	dir := t.TempDir()
	l, _ := NewLogger(dir, 0, nil)
	l.Write(Data{Source: strPtr("curl")}, 3000)

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected one file, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "curl_3000-") {
		t.Fatalf("unexpected filename: %s", entries[0].Name())
	}
}

func TestRetentionKeepsNewestSessions(t *testing.T) {
	dir := t.TempDir()

	writeFile := func(source, session string, wallMs int64, seq int) {
		name := source + "_" + session + "_" + itoa(wallMs) + "-" + padSeq(seq) + ".json"
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("seed write: %v", err)
		}
	}

	writeFile("cli", "11111111", 1000, 1)
	writeFile("cli", "11111111", 1001, 2)
	writeFile("cli", "22222222", 2000, 1)
	writeFile("cli", "33333333", 3000, 1)

	if _, err := NewLogger(dir, 2, nil); err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var sessions = map[string]bool{}
	for _, e := range entries {
		m := captureFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			t.Fatalf("unexpected leftover file: %s", e.Name())
		}
		sessions[m[2]] = true
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 surviving sessions, got %d: %v", len(sessions), sessions)
	}
	if sessions["11111111"] {
		t.Fatalf("expected oldest session 11111111 to be pruned")
	}
	if !sessions["22222222"] || !sessions["33333333"] {
		t.Fatalf("expected newest two sessions to survive, got %v", sessions)
	}
}

func TestRetentionNeverPrunesSessionlessFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cli_9999-000001.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	for i := 0; i < 5; i++ {
		name := "cli_1111111" + itoa(int64(i)) + "_" + itoa(int64(1000+i)) + "-000001.json"
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("seed write: %v", err)
		}
	}

	if _, err := NewLogger(dir, 1, nil); err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "cli_9999-000001.json")); err != nil {
		t.Fatalf("sessionless file was pruned: %v", err)
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func padSeq(n int) string {
	s := itoa(int64(n))
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}
