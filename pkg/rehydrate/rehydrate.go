// Package rehydrate implements the streaming placeholder-rehydration
// engine: a per-response, stateful transducer that restores original
// values inside SSE event payloads as bytes arrive, tolerating both an
// SSE line split across transport chunks and a placeholder split across
// SSE events.
//
// The approach is grounded on the line-buffering + event-accumulation +
// bracket-boundary-scanning technique used by the streaming deanonymizer
// in the reference corpus, generalized to this proxy's provider-specific
// content keys and flush rules.
package rehydrate

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/quietloop/airgate/pkg/replacement"
)

type contentInfo struct {
	Path    string // gjson/sjson path to the extracted leaf within Payload
	Payload string // the JSON object following "data: "
	Prefix  string // the literal prefix before the JSON object, e.g. "data: "
}

type heldLine struct {
	raw     string
	content *contentInfo
}

// Rehydrator is scoped to exactly one response. It is not re-entrant
// and must not be shared across concurrent streams; a new one is
// created per response while the underlying replacement.Map is reused
// across the whole session.
type Rehydrator struct {
	repl *replacement.Map

	lineBuf    string
	contentBuf string
	held       []heldLine
	pending    []string
}

// New creates a rehydrator bound to a session's replacement map.
func New(repl *replacement.Map) *Rehydrator {
	return &Rehydrator{repl: repl}
}

// OnChunk feeds newly-arrived response bytes through the rehydrator and
// returns the bytes that are now safe to emit to the client. It may
// return fewer bytes than it was given (content is held until a
// placeholder split across events can be resolved) or, when the
// session's replacement map is still empty, the input unchanged with no
// state kept at all.
func (r *Rehydrator) OnChunk(chunk []byte) []byte {
	if r.repl == nil || r.repl.Empty() {
		return chunk
	}

	combined := r.lineBuf + string(chunk)
	endsWithNewline := strings.HasSuffix(combined, "\n")
	parts := strings.Split(combined, "\n")

	var completeLines []string
	if endsWithNewline {
		completeLines = parts[:len(parts)-1]
		r.lineBuf = ""
	} else {
		r.lineBuf = parts[len(parts)-1]
		completeLines = parts[:len(parts)-1]
	}

	r.pending = r.pending[:0]
	for _, line := range completeLines {
		r.processLine(line)
	}
	return r.drain()
}

// OnEnd flushes any residual buffered line and held group at stream
// termination, returning any final bytes that still need to reach the
// client.
func (r *Rehydrator) OnEnd() []byte {
	if r.repl == nil || r.repl.Empty() {
		return nil
	}
	r.pending = r.pending[:0]
	if r.lineBuf != "" {
		r.processLine(r.lineBuf)
		r.lineBuf = ""
	}
	r.flush(true)
	return r.drain()
}

func (r *Rehydrator) drain() []byte {
	if len(r.pending) == 0 {
		return nil
	}
	out := strings.Join(r.pending, "\n") + "\n"
	return []byte(out)
}

func (r *Rehydrator) emit(line string) {
	r.pending = append(r.pending, line)
}

func (r *Rehydrator) processLine(line string) {
	if strings.HasPrefix(line, "data:") {
		payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
		text, path, ok := extractContent(payload)
		if !ok {
			r.flush(true)
			r.emit(line)
			return
		}
		r.contentBuf += text
		r.held = append(r.held, heldLine{
			raw: line,
			content: &contentInfo{
				Path:    path,
				Payload: payload,
				Prefix:  line[:len(line)-len(payload)],
			},
		})
		r.flush(false)
		return
	}

	if line == "" {
		// Blank separator line: hold without forcing a flush so a
		// placeholder split across the next event can still be seen
		// whole.
		r.held = append(r.held, heldLine{raw: line})
		return
	}

	// Any other non-blank, non-data line (event:, id:, a comment, ...).
	r.flush(true)
	r.held = append(r.held, heldLine{raw: line})
	r.flush(false)
}

// flush attempts to release the currently held group. A non-forced
// flush does nothing while contentBuf still has an unclosed "["
// (a placeholder that may continue in a later event). A forced flush
// always releases, used when a structural line arrives or the stream
// ends.
func (r *Rehydrator) flush(forced bool) {
	if len(r.held) == 0 {
		return
	}
	if !forced && hasTrailingPartial(r.contentBuf) {
		return
	}

	rehydrated := r.repl.Rehydrate(r.contentBuf)
	if rehydrated == r.contentBuf {
		for _, h := range r.held {
			r.emit(h.raw)
		}
		r.resetGroup()
		return
	}

	firstContentIdx := -1
	for i, h := range r.held {
		if h.content != nil {
			firstContentIdx = i
			break
		}
	}

	for i, h := range r.held {
		if h.content == nil {
			r.emit(h.raw)
			continue
		}
		value := ""
		if i == firstContentIdx {
			value = rehydrated
		}
		newPayload, err := sjson.Set(h.content.Payload, h.content.Path, value)
		if err != nil {
			r.emit(h.raw)
			continue
		}
		r.emit(h.content.Prefix + newPayload)
	}
	r.resetGroup()
}

func (r *Rehydrator) resetGroup() {
	r.held = nil
	r.contentBuf = ""
}

// hasTrailingPartial reports whether s ends with an unclosed "[" — the
// signature of a placeholder that may continue in a subsequent SSE
// event.
func hasTrailingPartial(s string) bool {
	idx := strings.LastIndex(s, "[")
	if idx == -1 {
		return false
	}
	return !strings.Contains(s[idx:], "]")
}

// extractContent locates the text content of one SSE JSON payload,
// trying each provider-specific shape in turn. It returns the decoded
// text and the gjson/sjson path used to find it, so the flush step can
// rewrite the same leaf in place with sjson without needing to
// recompute an index-of-substring prefix (the source implementation's
// indexOf-based approach is fragile when the extracted value itself
// begins with a copy of its own prefix; path-addressed get/set sidesteps
// the problem entirely).
func extractContent(payload string) (text string, path string, ok bool) {
	switch {
	case strings.Contains(payload, "text_delta"):
		return extractAt(payload, "delta.text")
	case strings.Contains(payload, "thinking_delta"):
		return extractAt(payload, "delta.thinking")
	case strings.Contains(payload, `"delta"`) && strings.Contains(payload, `"content"`):
		return extractAt(payload, "choices.0.delta.content")
	case strings.Contains(payload, `"parts"`) && strings.Contains(payload, `"text"`):
		return extractAt(payload, "candidates.0.content.parts.0.text")
	default:
		return "", "", false
	}
}

func extractAt(payload, path string) (string, string, bool) {
	res := gjson.Get(payload, path)
	if !res.Exists() || res.Type != gjson.String {
		return "", "", false
	}
	return res.String(), path, true
}
