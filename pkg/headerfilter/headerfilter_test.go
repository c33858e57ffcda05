package headerfilter

import (
	"net/http"
	"testing"
)

func TestSelectHeadersDropsBlocklist(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer xyz")
	h.Set("X-Api-Key", "k")
	h.Set("Cookie", "c")
	h.Set("X-Request-Id", "abc")
	h.Set("Content-Type", "application/json")

	got := SelectHeaders(h)
	for _, blocked := range []string{"Authorization", "X-Api-Key", "Cookie"} {
		if _, ok := got[blocked]; ok {
			t.Fatalf("expected %q to be filtered, got %v", blocked, got)
		}
	}
	if got["X-Request-Id"] != "abc" {
		t.Fatalf("expected X-Request-Id to survive, got %v", got)
	}
}

func TestSelectHeadersDropsMultiValued(t *testing.T) {
	h := http.Header{"X-Multi": []string{"a", "b"}}
	got := SelectHeaders(h)
	if _, ok := got["X-Multi"]; ok {
		t.Fatalf("expected multi-valued header to be dropped")
	}
}

func TestForwardHeadersStripsAndSetsHost(t *testing.T) {
	h := http.Header{}
	h.Set("Host", "original.example.com")
	h.Set("Accept-Encoding", "gzip")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("Content-Encoding", "gzip")
	h.Set("Authorization", "Bearer xyz")

	out := ForwardHeaders(h, "api.anthropic.com", 42, false)
	if out.Get("Host") != "api.anthropic.com" {
		t.Fatalf("Host not rewritten: %v", out)
	}
	if out.Get("Content-Length") != "42" {
		t.Fatalf("Content-Length not set: %v", out)
	}
	if out.Get("Accept-Encoding") != "" || out.Get("Transfer-Encoding") != "" {
		t.Fatalf("stripped headers leaked through: %v", out)
	}
	if out.Get("Content-Encoding") != "gzip" {
		t.Fatalf("content-encoding should survive when body unmutated: %v", out)
	}
	if out.Get("Authorization") != "Bearer xyz" {
		t.Fatalf("credentials must still be forwarded upstream: %v", out)
	}
}

func TestForwardHeadersDropsContentEncodingWhenBodyMutated(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Encoding", "br")
	out := ForwardHeaders(h, "api.openai.com", 10, true)
	if out.Get("Content-Encoding") != "" {
		t.Fatalf("expected content-encoding stripped after body mutation, got %v", out)
	}
}
