package redactplugin

import (
	"strings"
	"testing"
	"time"

	"github.com/quietloop/airgate/pkg/jsonvalue"
	"github.com/quietloop/airgate/pkg/plugin"
	"github.com/quietloop/airgate/pkg/redact"
)

func testPolicy(t *testing.T) *redact.CompiledPolicy {
	t.Helper()
	policy, err := redact.PresetPolicy("pii")
	if err != nil {
		t.Fatalf("PresetPolicy: %v", err)
	}
	return policy
}

func strPtr(s string) *string { return &s }

func TestOneWayRedactionHasNoSessionState(t *testing.T) {
	p := New(testPolicy(t), false, 0, false)
	defer p.Close()

	body := jsonvalue.String("email me at john@example.com")
	ctx := plugin.NewRequestContext(&body)
	out := p.OnRequest(ctx)
	if out.Body.Str != "email me at [EMAIL_REDACTED]" {
		t.Fatalf("unexpected redaction: %q", out.Body.Str)
	}
	if len(p.sessions) != 0 {
		t.Fatalf("expected no session state in one-way mode, got %d", len(p.sessions))
	}
}

func TestReversibleRequestThenBufferedResponseRoundTrips(t *testing.T) {
	p := New(testPolicy(t), true, 0, false)
	defer p.Close()

	session := strPtr("abcd1234")
	body := jsonvalue.String("email me at john@example.com")
	reqCtx := plugin.NewRequestContext(&body)
	reqCtx.SessionID = session
	out := p.OnRequest(reqCtx)
	if out.Body.Str == "email me at john@example.com" {
		t.Fatal("expected request body to be redacted")
	}
	if !strings.Contains(out.Body.Str, "[EMAIL_1]") {
		t.Fatalf("expected placeholder in redacted body, got %q", out.Body.Str)
	}

	respCtx := &plugin.ResponseContext{
		SessionID: session,
		Body:      []byte(`{"echo":"email me at [EMAIL_1]"}`),
	}
	rehydrated := p.OnResponse(respCtx)
	if !strings.Contains(string(rehydrated.Body), "john@example.com") {
		t.Fatalf("expected rehydrated body, got %s", rehydrated.Body)
	}
}

func TestStreamingRehydrationAcrossChunksThenReset(t *testing.T) {
	p := New(testPolicy(t), true, 0, false)
	defer p.Close()

	session := strPtr("ffffffff")
	body := jsonvalue.String("email me at john@example.com")
	reqCtx := plugin.NewRequestContext(&body)
	reqCtx.SessionID = session
	p.OnRequest(reqCtx)

	chunk1 := p.OnStreamChunk([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Email: [EMAIL_1]"}}`+"\n\n"), session)
	tail := p.OnStreamEnd(session)
	combined := string(chunk1) + string(tail)
	if !strings.Contains(combined, "john@example.com") {
		t.Fatalf("expected rehydrated email in stream output: %s", combined)
	}
	if strings.Contains(combined, "[EMAIL_1]") {
		t.Fatalf("placeholder leaked to client: %s", combined)
	}

	// A second response in the same session must start with a fresh
	// rehydrator (no leftover held lines from the first response).
	chunk2 := p.OnStreamChunk([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"done"}}`+"\n\n"), session)
	if strings.Contains(string(chunk2), "john@example.com") {
		t.Fatalf("unexpected leftover rehydration state: %s", chunk2)
	}
}

func TestEvictIdleRemovesOldSessions(t *testing.T) {
	p := New(testPolicy(t), true, time.Millisecond, false)
	defer p.Close()

	session := strPtr("12345678")
	p.entry(session)
	time.Sleep(5 * time.Millisecond)
	p.evictIdle()

	p.mu.Lock()
	_, exists := p.sessions[sessionKey(session)]
	p.mu.Unlock()
	if exists {
		t.Fatal("expected idle session to be evicted")
	}
}

func TestSessionlessRequestsShareOneEntry(t *testing.T) {
	p := New(testPolicy(t), true, 0, false)
	defer p.Close()

	body1 := jsonvalue.String("email me at john@example.com")
	ctx1 := plugin.NewRequestContext(&body1)
	p.OnRequest(ctx1)

	body2 := jsonvalue.String("also email jane@example.com")
	ctx2 := plugin.NewRequestContext(&body2)
	p.OnRequest(ctx2)

	p.mu.Lock()
	n := len(p.sessions)
	p.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected session-less requests to share one entry, got %d", n)
	}
}
