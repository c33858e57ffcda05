package router

import (
	"net/http"
	"testing"
)

type headerMap http.Header

func (h headerMap) Get(key string) string {
	return http.Header(h).Get(key)
}

func hdr(pairs ...string) headerMap {
	h := http.Header{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return headerMap(h)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		headers  headerMap
		provider Provider
		format   ApiFormat
	}{
		{"chatgpt backend", "/backend-api/conversation", hdr(), ProviderChatGPT, FormatChatGPTBackend},
		{"anthropic messages", "/v1/messages", hdr(), ProviderAnthropic, FormatAnthropicMessages},
		{"anthropic complete", "/v1/complete", hdr(), ProviderAnthropic, FormatUnknown},
		{"anthropic version header", "/custom/path", hdr("anthropic-version", "2023-06-01"), ProviderAnthropic, FormatUnknown},
		{"gemini generateContent", "/v1beta/models/gemini-pro:generateContent", hdr(), ProviderGemini, FormatGemini},
		{"gemini api key header", "/some/path", hdr("x-goog-api-key", "abc"), ProviderGemini, FormatGemini},
		{"openai responses", "/v1/responses", hdr(), ProviderOpenAI, FormatResponses},
		{"openai chat completions", "/v1/chat/completions", hdr(), ProviderOpenAI, FormatChatCompletions},
		{"openai models", "/v1/models", hdr(), ProviderOpenAI, FormatUnknown},
		{"openai bearer sk", "/custom", hdr("authorization", "Bearer sk-abc123"), ProviderOpenAI, FormatUnknown},
		{"unclassified", "/nothing/here", hdr(), ProviderUnknown, FormatUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotP, gotF := Classify(tc.path, tc.headers)
			if gotP != tc.provider || gotF != tc.format {
				t.Fatalf("Classify(%q) = (%v, %v), want (%v, %v)", tc.path, gotP, gotF, tc.provider, tc.format)
			}
		})
	}
}

func TestExtractSourceReservedPrefix(t *testing.T) {
	got := ExtractSource("/v1/messages")
	if got.Source != "" || got.SessionID != "" || got.CleanPath != "/v1/messages" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestExtractSourcePlainTag(t *testing.T) {
	got := ExtractSource("/claude/v1/messages")
	if got.Source != "claude" || got.SessionID != "" || got.CleanPath != "/v1/messages" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestExtractSourceWithSession(t *testing.T) {
	got := ExtractSource("/claude/aabb0011/v1/messages")
	if got.Source != "claude" || got.SessionID != "aabb0011" || got.CleanPath != "/v1/messages" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestExtractSourceRejectsTraversal(t *testing.T) {
	got := ExtractSource("/..%2f..%2fetc/v1/messages")
	if got.Source != "" || got.SessionID != "" {
		t.Fatalf("expected traversal rejection, got %+v", got)
	}
}

func TestExtractSourceNoTagFallsThrough(t *testing.T) {
	got := ExtractSource("/v1/chat/completions")
	if got.Source != "" || got.CleanPath != "/v1/chat/completions" {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestResolveTargetUrlDefault(t *testing.T) {
	ups := DefaultUpstreams()
	r := ResolveTargetUrl("/v1/messages", "", hdr(), ups)
	want := "https://api.anthropic.com/v1/messages"
	if r.URL != want {
		t.Fatalf("got %q want %q", r.URL, want)
	}
	if r.Provider != ProviderAnthropic {
		t.Fatalf("got provider %v", r.Provider)
	}
}

func TestResolveTargetUrlGeminiCodeAssist(t *testing.T) {
	ups := DefaultUpstreams()
	r := ResolveTargetUrl("/v1internal:generateContent", "", hdr(), ups)
	want := "https://cloudcode-pa.googleapis.com/v1internal:generateContent"
	if r.URL != want {
		t.Fatalf("got %q want %q", r.URL, want)
	}
}

func TestResolveTargetUrlOverrideAbsolute(t *testing.T) {
	ups := DefaultUpstreams()
	r := ResolveTargetUrl("/v1/messages", "", hdr("x-target-url", "http://localhost:9999"), ups)
	if r.URL != "http://localhost:9999" {
		t.Fatalf("got %q", r.URL)
	}
}

func TestResolveTargetUrlOverrideRelative(t *testing.T) {
	ups := DefaultUpstreams()
	r := ResolveTargetUrl("/v1/messages", "?x=1", hdr("x-target-url", "/relay"), ups)
	if r.URL != "/relay/v1/messages?x=1" {
		t.Fatalf("got %q", r.URL)
	}
}
