// Package capture writes one JSON document per proxied request to a
// configured directory, atomically, and prunes old sessions when a
// Logger is created. It is the adaptation of the teacher's AIR record
// writer, generalized from a single run-keyed file to the spec's
// source/session/wall-clock/sequence naming scheme, made atomic
// (tmp-file then rename), and given session-based retention pruning.
package capture

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
)

// Timings holds the four duration fields recorded per request.
type Timings struct {
	SendMS    int64 `json:"send_ms"`
	WaitMS    int64 `json:"wait_ms"`
	ReceiveMS int64 `json:"receive_ms"`
	TotalMS   int64 `json:"total_ms"`
}

// Data is exactly one request/response pair, matching the on-disk
// capture-file schema field for field, plus the optional
// failureCategory diagnostic (omitted when empty).
type Data struct {
	Timestamp           string            `json:"timestamp"`
	SessionID           *string           `json:"sessionId"`
	Method              string            `json:"method"`
	Path                string            `json:"path"`
	Source              *string           `json:"source"`
	Provider            string            `json:"provider"`
	ApiFormat           string            `json:"apiFormat"`
	TargetUrl           string            `json:"targetUrl"`
	RequestHeaders      map[string]string `json:"requestHeaders"`
	RequestBody         interface{}       `json:"requestBody"`
	RequestBytes        int               `json:"requestBytes"`
	ResponseStatus      int               `json:"responseStatus"`
	ResponseHeaders     map[string]string `json:"responseHeaders"`
	ResponseBody        string            `json:"responseBody"`
	ResponseIsStreaming bool              `json:"responseIsStreaming"`
	ResponseBytes       int               `json:"responseBytes"`
	Timings             Timings           `json:"timings"`
	FailureCategory     string            `json:"failureCategory,omitempty"`
}

// Logger writes captures atomically to Dir and optionally prunes old
// sessions.
type Logger struct {
	Dir         string
	MaxSessions int
	Archiver    *Archiver // optional, best-effort off-site mirror

	seq atomic.Uint64
}

// NewLogger creates the capture directory (if needed), applies startup
// retention pruning, and returns a ready Logger. dir defaults to a
// per-user state directory when empty.
func NewLogger(dir string, maxSessions int, archiver *Archiver) (*Logger, error) {
	if dir == "" {
		dir = defaultCaptureDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: creating directory: %w", err)
	}
	l := &Logger{Dir: dir, MaxSessions: maxSessions, Archiver: archiver}
	if maxSessions > 0 {
		if err := l.pruneSessions(); err != nil {
			log.Printf("[capture] retention scan failed: %v", err)
		}
	}
	return l, nil
}

func defaultCaptureDir() string {
	if state, err := os.UserCacheDir(); err == nil {
		return filepath.Join(state, "airgate", "captures")
	}
	return "./captures"
}

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sanitizeSource(source string) string {
	if source == "" {
		return "unknown"
	}
	return sanitizeRe.ReplaceAllString(source, "_")
}

// filename builds the capture filename for one record.
func (l *Logger) filename(source string, sessionID *string, wallMs int64) string {
	seq := l.seq.Add(1)
	parts := []string{sanitizeSource(source)}
	if sessionID != nil && *sessionID != "" {
		parts = append(parts, *sessionID)
	}
	return fmt.Sprintf("%s_%d-%06d.json", strings.Join(parts, "_"), wallMs, seq%1_000_000)
}

// Write serializes d and atomically writes it to the capture
// directory. Failures are logged and never propagated to the caller's
// request path — the trust path never depends on capture succeeding.
func (l *Logger) Write(d Data, wallMs int64) {
	source := ""
	if d.Source != nil {
		source = *d.Source
	}
	name := l.filename(source, d.SessionID, wallMs)
	final := filepath.Join(l.Dir, name)
	tmp := final + ".tmp"

	body, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		log.Printf("[capture] marshal failed: %v", err)
		return
	}

	if err := writeAtomic(tmp, final, body); err != nil {
		log.Printf("[capture] write failed: %v", err)
		return
	}

	if l.Archiver != nil {
		go l.Archiver.Mirror(name, body)
	}
}

func writeAtomic(tmp, final string, body []byte) error {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

var captureFileRe = regexp.MustCompile(`^(.+?)_([a-f0-9]{8})_(\d+)-\d{6}\.json$`)

// pruneSessions scans Dir at construction time, groups files by their
// 8-hex-char session segment, and deletes every file belonging to a
// session group older than the MaxSessions most-recent groups. Files
// with no session segment are never touched.
func (l *Logger) pruneSessions() error {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return err
	}

	type sessionInfo struct {
		maxWallMs int64
		files     []string
	}
	sessions := map[string]*sessionInfo{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := captureFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		sessionID := m[2]
		wallMs := parseInt64(m[3])
		info, ok := sessions[sessionID]
		if !ok {
			info = &sessionInfo{}
			sessions[sessionID] = info
		}
		info.files = append(info.files, e.Name())
		if wallMs > info.maxWallMs {
			info.maxWallMs = wallMs
		}
	}

	if len(sessions) <= l.MaxSessions {
		return nil
	}

	type ordered struct {
		id   string
		info *sessionInfo
	}
	var all []ordered
	for id, info := range sessions {
		all = append(all, ordered{id, info})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].info.maxWallMs > all[j].info.maxWallMs
	})

	for _, s := range all[l.MaxSessions:] {
		for _, name := range s.info.files {
			if err := os.Remove(filepath.Join(l.Dir, name)); err != nil {
				log.Printf("[capture] retention: failed to remove %s: %v", name, err)
			}
		}
	}
	return nil
}

func parseInt64(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
