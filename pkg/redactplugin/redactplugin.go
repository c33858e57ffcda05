// Package redactplugin wires the redaction engine, replacement map, and
// stream rehydrator together into the Forwarder's Plugin interface. It
// is the adaptation of the teacher's session manager, generalized from
// tracking agent session metrics to holding one reversible replacement
// table per session with the same idle-eviction cleanup loop.
package redactplugin

import (
	"log"
	"sync"
	"time"

	"github.com/quietloop/airgate/pkg/plugin"
	"github.com/quietloop/airgate/pkg/redact"
	"github.com/quietloop/airgate/pkg/rehydrate"
	"github.com/quietloop/airgate/pkg/replacement"
)

const noSessionKey = "\x00no-session"

// DefaultSessionTTL matches the spec's default idle eviction window.
const DefaultSessionTTL = 30 * time.Minute

type sessionEntry struct {
	repl       *replacement.Map
	rehydrator *rehydrate.Rehydrator
	lastSeen   time.Time
}

// Plugin is the reversible redaction plugin: it redacts request bodies
// using a per-session replacement map and restores the original values
// in response bodies (buffered or streamed) using the same map.
type Plugin struct {
	name       string
	policy     *redact.CompiledPolicy
	reversible bool
	ttl        time.Duration
	verbose    bool

	mu       sync.Mutex
	sessions map[string]*sessionEntry

	stopCleanup chan struct{}
}

// New creates a redact plugin bound to policy. When reversible is
// false, redaction is one-way (static replacement text, no session
// state, no rehydration). ttl of zero uses DefaultSessionTTL.
func New(policy *redact.CompiledPolicy, reversible bool, ttl time.Duration, verbose bool) *Plugin {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	p := &Plugin{
		name:        "redact",
		policy:      policy,
		reversible:  reversible,
		ttl:         ttl,
		verbose:     verbose,
		sessions:    map[string]*sessionEntry{},
		stopCleanup: make(chan struct{}),
	}
	if reversible {
		go p.cleanupLoop()
	}
	return p
}

// Close stops the idle-session eviction loop. Safe to call once.
func (p *Plugin) Close() {
	if p.reversible {
		close(p.stopCleanup)
	}
}

func (p *Plugin) Name() string { return p.name }

func sessionKey(sessionID *string) string {
	if sessionID == nil || *sessionID == "" {
		return noSessionKey
	}
	return *sessionID
}

func (p *Plugin) entry(sessionID *string) *sessionEntry {
	key := sessionKey(sessionID)
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.sessions[key]
	if !ok {
		e = &sessionEntry{repl: replacement.New()}
		p.sessions[key] = e
	}
	e.lastSeen = time.Now()
	return e
}

// OnRequest redacts the request body in place, logging redaction stats
// when verbose.
func (p *Plugin) OnRequest(ctx *plugin.RequestContext) *plugin.RequestContext {
	if ctx.Body == nil {
		return ctx
	}
	stats := redact.NewStats()

	var repl *replacement.Map
	if p.reversible {
		repl = p.entry(ctx.SessionID).repl
	}

	redacted := redact.Redact(*ctx.Body, p.policy, stats, repl)
	ctx.Body = &redacted

	if p.verbose && stats.Count > 0 {
		log.Printf("[redact] session=%v redacted %d value(s): %v", sessionLabel(ctx.SessionID), stats.Count, stats.ByRule)
	}
	return ctx
}

// OnResponse rehydrates a fully-buffered response body, used on the
// non-streaming path. It is a no-op in one-way mode.
func (p *Plugin) OnResponse(ctx *plugin.ResponseContext) *plugin.ResponseContext {
	if !p.reversible {
		return ctx
	}
	e := p.entry(ctx.SessionID)
	if e.repl.Empty() {
		return ctx
	}
	rehydrated := e.repl.Rehydrate(string(ctx.Body))
	ctx.Body = []byte(rehydrated)
	return ctx
}

// OnStreamChunk feeds chunk through a per-session, per-response
// rehydrator. The rehydrator is created lazily on the first chunk of a
// response and reset by OnStreamEnd so the next response starts clean.
func (p *Plugin) OnStreamChunk(chunk []byte, sessionID *string) []byte {
	if !p.reversible {
		return chunk
	}
	e := p.entry(sessionID)
	p.mu.Lock()
	if e.rehydrator == nil {
		e.rehydrator = rehydrate.New(e.repl)
	}
	r := e.rehydrator
	p.mu.Unlock()
	return r.OnChunk(chunk)
}

// OnStreamEnd flushes the session's rehydrator and resets it so the
// next response (same session, same replacement map) starts with a
// fresh stream state.
func (p *Plugin) OnStreamEnd(sessionID *string) []byte {
	if !p.reversible {
		return nil
	}
	e := p.entry(sessionID)
	p.mu.Lock()
	r := e.rehydrator
	e.rehydrator = nil
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.OnEnd()
}

func (p *Plugin) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stopCleanup:
			return
		}
	}
}

func (p *Plugin) evictIdle() {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.sessions {
		if now.Sub(e.lastSeen) > p.ttl {
			delete(p.sessions, key)
		}
	}
}

func sessionLabel(sessionID *string) string {
	if sessionID == nil {
		return "<none>"
	}
	return *sessionID
}
