// Package plugin defines the Forwarder's extension point: a typed,
// optional-hook interface dispatched fail-open so a broken plugin never
// changes the client-visible response.
package plugin

import (
	"log"

	"github.com/quietloop/airgate/pkg/capture"
	"github.com/quietloop/airgate/pkg/jsonvalue"
	"github.com/quietloop/airgate/pkg/router"
)

// RequestContext is built once per POST request and threaded through
// the onRequest pipeline. Plugins may replace Body with a new value to
// signal a mutation; the Forwarder compares pointers (via BodyMutated)
// to decide whether to re-serialize.
type RequestContext struct {
	Provider   router.Provider
	ApiFormat  router.ApiFormat
	Path       string
	Source     *string
	SessionID  *string
	Headers    map[string]string
	Body       *jsonvalue.Value // nil when the request body did not parse as JSON
	RawBody    []byte
	bodyOrigin *jsonvalue.Value
}

// NewRequestContext seeds a context, recording the originally parsed
// body so the Forwarder can later detect mutation by identity.
func NewRequestContext(body *jsonvalue.Value) *RequestContext {
	return &RequestContext{Body: body, bodyOrigin: body}
}

// BodyMutated reports whether some plugin replaced Body with a
// different value than the one originally parsed.
func (c *RequestContext) BodyMutated() bool {
	return c.Body != c.bodyOrigin
}

// ResponseContext is built once per response when buffering (never
// when streaming) and threaded through the onResponse pipeline.
type ResponseContext struct {
	Status    int
	Headers   map[string]string
	Body      []byte
	SessionID *string
}

// Plugin is a named, optional-hook extension. A plugin implements only
// the hook interfaces below that it needs; Scan records which hook
// classes are present (the Has* fields of Capabilities) without
// calling them.
type Plugin interface {
	Name() string
}

// RequestHook is implemented by plugins that transform the request
// context before forwarding.
type RequestHook interface {
	OnRequest(ctx *RequestContext) *RequestContext
}

// ResponseHook is implemented by plugins that transform a buffered
// response before it is written to the client.
type ResponseHook interface {
	OnResponse(ctx *ResponseContext) *ResponseContext
}

// StreamHook is implemented by plugins that transform streaming
// response chunks in place, and flush any held bytes at stream end.
type StreamHook interface {
	OnStreamChunk(chunk []byte, sessionID *string) []byte
	OnStreamEnd(sessionID *string) []byte
}

// CaptureHook is implemented by plugins that want to observe every
// completed request/response pair, fire-and-forget.
type CaptureHook interface {
	OnCapture(data capture.Data)
}

// Capabilities records which hook classes at least one plugin in a
// slice provides, computed once at startup so the Forwarder can skip
// entire code paths when nothing is listening.
type Capabilities struct {
	HasRequest  bool
	HasResponse bool
	HasStream   bool
	HasCapture  bool
}

// Scan pre-computes Capabilities for plugins, the documented
// performance contract: a hook class the plugin list never implements
// costs nothing on the hot path.
func Scan(plugins []Plugin) Capabilities {
	var c Capabilities
	for _, p := range plugins {
		if _, ok := p.(RequestHook); ok {
			c.HasRequest = true
		}
		if _, ok := p.(ResponseHook); ok {
			c.HasResponse = true
		}
		if _, ok := p.(StreamHook); ok {
			c.HasStream = true
		}
		if _, ok := p.(CaptureHook); ok {
			c.HasCapture = true
		}
	}
	return c
}

// DispatchRequest runs the onRequest pipeline in plugin order. A
// plugin that panics or whose hook is absent is skipped; the context
// from the last successful step is passed to the next plugin and
// ultimately returned.
func DispatchRequest(plugins []Plugin, ctx *RequestContext) *RequestContext {
	for _, p := range plugins {
		hook, ok := p.(RequestHook)
		if !ok {
			continue
		}
		ctx = safeOnRequest(p.Name(), hook, ctx)
	}
	return ctx
}

func safeOnRequest(name string, hook RequestHook, ctx *RequestContext) (result *RequestContext) {
	result = ctx
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[plugin] plugin %q onRequest error: %v", name, r)
			result = ctx
		}
	}()
	if next := hook.OnRequest(ctx); next != nil {
		result = next
	}
	return result
}

// DispatchResponse runs the onResponse pipeline in plugin order, with
// the same fail-open semantics as DispatchRequest.
func DispatchResponse(plugins []Plugin, ctx *ResponseContext) *ResponseContext {
	for _, p := range plugins {
		hook, ok := p.(ResponseHook)
		if !ok {
			continue
		}
		ctx = safeOnResponse(p.Name(), hook, ctx)
	}
	return ctx
}

func safeOnResponse(name string, hook ResponseHook, ctx *ResponseContext) (result *ResponseContext) {
	result = ctx
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[plugin] plugin %q onResponse error: %v", name, r)
			result = ctx
		}
	}()
	if next := hook.OnResponse(ctx); next != nil {
		result = next
	}
	return result
}

// DispatchStreamChunk runs the onStreamChunk chain in plugin order. A
// plugin that panics is skipped and the chunk from the previous step
// is used unchanged.
func DispatchStreamChunk(plugins []Plugin, chunk []byte, sessionID *string) []byte {
	for _, p := range plugins {
		hook, ok := p.(StreamHook)
		if !ok {
			continue
		}
		chunk = safeOnStreamChunk(p.Name(), hook, chunk, sessionID)
	}
	return chunk
}

func safeOnStreamChunk(name string, hook StreamHook, chunk []byte, sessionID *string) (result []byte) {
	result = chunk
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[plugin] plugin %q onStreamChunk error: %v", name, r)
			result = chunk
		}
	}()
	return hook.OnStreamChunk(chunk, sessionID)
}

// DispatchStreamEnd invokes onStreamEnd for every plugin that
// implements StreamHook, in array order, concatenating any bytes
// returned.
func DispatchStreamEnd(plugins []Plugin, sessionID *string) []byte {
	var out []byte
	for _, p := range plugins {
		hook, ok := p.(StreamHook)
		if !ok {
			continue
		}
		if tail := safeOnStreamEnd(p.Name(), hook, sessionID); tail != nil {
			out = append(out, tail...)
		}
	}
	return out
}

func safeOnStreamEnd(name string, hook StreamHook, sessionID *string) (result []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[plugin] plugin %q onStreamEnd error: %v", name, r)
			result = nil
		}
	}()
	return hook.OnStreamEnd(sessionID)
}

// DispatchCapture fires onCapture for every plugin that implements
// CaptureHook, fire-and-forget: each call runs in its own goroutine so
// a slow or failing plugin never delays another plugin's capture or
// the request that triggered it.
func DispatchCapture(plugins []Plugin, data capture.Data) {
	for _, p := range plugins {
		hook, ok := p.(CaptureHook)
		if !ok {
			continue
		}
		go safeOnCapture(p.Name(), hook, data)
	}
}

func safeOnCapture(name string, hook CaptureHook, data capture.Data) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[plugin] plugin %q onCapture error: %v", name, r)
		}
	}()
	hook.OnCapture(data)
}
