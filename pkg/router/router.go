// Package router classifies incoming requests by provider and API
// format, extracts the source/session tag from the request path, and
// resolves the upstream URL a request should be forwarded to. Every
// function here is pure: no I/O, no mutation of shared state.
package router

import (
	"net/url"
	"regexp"
	"strings"
)

// Provider is a closed enum of upstream LLM providers.
type Provider int

const (
	ProviderUnknown Provider = iota
	ProviderAnthropic
	ProviderOpenAI
	ProviderChatGPT
	ProviderGemini
)

func (p Provider) String() string {
	switch p {
	case ProviderAnthropic:
		return "anthropic"
	case ProviderOpenAI:
		return "openai"
	case ProviderChatGPT:
		return "chatgpt"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// ApiFormat is a closed enum of request/response wire shapes.
type ApiFormat int

const (
	FormatUnknown ApiFormat = iota
	FormatAnthropicMessages
	FormatChatGPTBackend
	FormatResponses
	FormatChatCompletions
	FormatGemini
	FormatRaw
)

func (f ApiFormat) String() string {
	switch f {
	case FormatAnthropicMessages:
		return "anthropic-messages"
	case FormatChatGPTBackend:
		return "chatgpt-backend"
	case FormatResponses:
		return "responses"
	case FormatChatCompletions:
		return "chat-completions"
	case FormatGemini:
		return "gemini"
	case FormatRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// UpstreamName identifies one of the fixed upstream slots.
type UpstreamName string

const (
	UpstreamOpenAI          UpstreamName = "openai"
	UpstreamAnthropic       UpstreamName = "anthropic"
	UpstreamChatGPT         UpstreamName = "chatgpt"
	UpstreamGemini          UpstreamName = "gemini"
	UpstreamGeminiCodeAssis UpstreamName = "geminiCodeAssist"
)

// Upstreams maps upstream names to base URLs (scheme+host).
type Upstreams map[UpstreamName]string

// DefaultUpstreams returns the built-in base URLs, overridable at
// startup via configuration.
func DefaultUpstreams() Upstreams {
	return Upstreams{
		UpstreamOpenAI:          "https://api.openai.com",
		UpstreamAnthropic:       "https://api.anthropic.com",
		UpstreamChatGPT:         "https://chatgpt.com",
		UpstreamGemini:          "https://generativelanguage.googleapis.com",
		UpstreamGeminiCodeAssis: "https://cloudcode-pa.googleapis.com",
	}
}

var (
	chatgptPathRe    = regexp.MustCompile(`^/(api|backend-api)/`)
	geminiModelsRe   = regexp.MustCompile(`/v1(beta|alpha)/models/`)
	openaiModelsRe   = regexp.MustCompile(`/(models|embeddings)`)
	sessionSegmentRe = regexp.MustCompile(`^[a-f0-9]{8}$`)
)

var reservedSourceSegments = map[string]bool{
	"v1":          true,
	"v1beta":      true,
	"v1alpha":     true,
	"v1internal":  true,
	"responses":   true,
	"chat":        true,
	"models":      true,
	"embeddings":  true,
	"backend-api": true,
	"api":         true,
}

// Headers is the minimal case-insensitive header lookup the router
// needs. Callers adapt http.Header (or any map) into this shape.
type Headers interface {
	Get(key string) string
}

// Classify determines (provider, apiFormat) for a request path and its
// headers. Order matters: the first matching rule wins.
func Classify(path string, h Headers) (Provider, ApiFormat) {
	switch {
	case chatgptPathRe.MatchString(path):
		return ProviderChatGPT, FormatChatGPTBackend
	case strings.Contains(path, "/v1/messages"):
		return ProviderAnthropic, FormatAnthropicMessages
	case strings.Contains(path, "/v1/complete"):
		return ProviderAnthropic, FormatUnknown
	case h.Get("anthropic-version") != "":
		return ProviderAnthropic, FormatUnknown
	case strings.Contains(path, ":generateContent"),
		strings.Contains(path, ":streamGenerateContent"),
		geminiModelsRe.MatchString(path),
		strings.Contains(path, "/v1internal:"),
		h.Get("x-goog-api-key") != "":
		return ProviderGemini, FormatGemini
	case strings.Contains(path, "/responses"):
		return ProviderOpenAI, FormatResponses
	case strings.Contains(path, "/chat/completions"):
		return ProviderOpenAI, FormatChatCompletions
	case openaiModelsRe.MatchString(path):
		return ProviderOpenAI, FormatUnknown
	case strings.HasPrefix(h.Get("authorization"), "Bearer sk-"):
		return ProviderOpenAI, FormatUnknown
	default:
		return ProviderUnknown, FormatUnknown
	}
}

// Extracted is the result of extracting a source tag, session id, and
// cleaned path from a raw request path.
type Extracted struct {
	Source    string // empty if none
	SessionID string // empty if none
	CleanPath string
}

// ExtractSource pulls a source tag and optional session id off the front
// of path. The first segment is a source tag unless it is a reserved API
// prefix; it is URL-decoded, and path-traversal sentinels (`/`, `\`,
// `..`) in the decoded tag cause the whole path to be returned unchanged
// (no tag, no session). If the next segment looks like an 8-hex session
// id, it is stripped too.
func ExtractSource(path string) Extracted {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return Extracted{CleanPath: normalizeCleanPath(path)}
	}

	first := segments[0]
	if reservedSourceSegments[strings.ToLower(first)] {
		return Extracted{CleanPath: normalizeCleanPath(path)}
	}

	decoded, err := url.PathUnescape(first)
	if err != nil || looksLikeTraversal(decoded) {
		return Extracted{CleanPath: normalizeCleanPath(path)}
	}

	rest := segments[1:]
	sessionID := ""
	if len(rest) > 0 && sessionSegmentRe.MatchString(rest[0]) {
		sessionID = rest[0]
		rest = rest[1:]
	}

	clean := "/" + strings.Join(rest, "/")
	return Extracted{
		Source:    decoded,
		SessionID: sessionID,
		CleanPath: normalizeCleanPath(clean),
	}
}

func looksLikeTraversal(decoded string) bool {
	return strings.Contains(decoded, "/") || strings.Contains(decoded, "\\") || strings.Contains(decoded, "..")
}

func normalizeCleanPath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == "" {
		return "/"
	}
	return path
}

// Resolved is the outcome of resolving a request's upstream target.
type Resolved struct {
	URL      string
	Provider Provider
}

// ResolveTargetUrl computes the absolute upstream URL for a request.
// If headers carry x-target-url, that wins (absolute, or relative and
// prefixed in front of path+query). Otherwise the classified provider
// picks the upstream base, special-cased so Gemini's /v1internal paths
// go to the Code Assist upstream instead of the public Gemini API.
func ResolveTargetUrl(path, query string, h Headers, upstreams Upstreams) Resolved {
	provider, _ := Classify(path, h)

	if override := h.Get("x-target-url"); override != "" {
		if strings.HasPrefix(override, "http") {
			return Resolved{URL: override, Provider: provider}
		}
		return Resolved{URL: override + path + query, Provider: provider}
	}

	name := upstreamFor(path, provider)
	base := upstreams[name]
	return Resolved{URL: base + path + query, Provider: provider}
}

func upstreamFor(path string, provider Provider) UpstreamName {
	switch provider {
	case ProviderAnthropic:
		return UpstreamAnthropic
	case ProviderChatGPT:
		return UpstreamChatGPT
	case ProviderGemini:
		if strings.Contains(path, "/v1internal") {
			return UpstreamGeminiCodeAssis
		}
		return UpstreamGemini
	case ProviderOpenAI:
		return UpstreamOpenAI
	default:
		return UpstreamOpenAI
	}
}
