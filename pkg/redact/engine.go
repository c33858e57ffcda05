// Package redact implements the redaction engine: a compiled policy of
// context-gated regex rules applied to a JSON value tree with path
// scoping and allowlisting, either one-way (static replacement text) or
// reversibly (via a replacement.Map).
package redact

import (
	"regexp"
	"strings"
	"sync"

	"github.com/quietloop/airgate/pkg/jsonvalue"
	"github.com/quietloop/airgate/pkg/replacement"
)

// Rule is one compiled redaction rule.
type Rule struct {
	ID            string
	Pattern       *regexp.Regexp
	Replacement   string // used in one-way mode
	ContextWords  []string
	ContextWindow int
}

// Allowlist holds values that are never redacted even if a rule
// matches them.
type Allowlist struct {
	Exact    map[string]bool
	Patterns []*regexp.Regexp
}

// Matches reports whether s is allowlisted, either by an exact string
// match or because some allowlist pattern matches it entirely.
func (a Allowlist) Matches(s string) bool {
	if a.Exact[s] {
		return true
	}
	for _, p := range a.Patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// PathMatcher is a sequence of segments; "*" matches any single
// segment at that position.
type PathMatcher []string

func (m PathMatcher) matches(path []string) bool {
	if len(m) != len(path) {
		return false
	}
	for i, seg := range m {
		if seg != "*" && seg != path[i] {
			return false
		}
	}
	return true
}

// CompiledPolicy is a ready-to-apply redaction policy.
type CompiledPolicy struct {
	Rules     []Rule
	Allowlist Allowlist
	OnlyPaths []PathMatcher
	SkipPaths []PathMatcher
}

func (p *CompiledPolicy) pathAllowed(path []string) bool {
	for _, m := range p.SkipPaths {
		if m.matches(path) {
			return false
		}
	}
	if len(p.OnlyPaths) == 0 {
		return true
	}
	for _, m := range p.OnlyPaths {
		if m.matches(path) {
			return true
		}
	}
	return false
}

// Stats accumulates per-request redaction counts, reset for every
// request.
type Stats struct {
	mu     sync.Mutex
	Count  int
	ByRule map[string]int
}

// NewStats returns a zeroed Stats record.
func NewStats() *Stats {
	return &Stats{ByRule: map[string]int{}}
}

func (s *Stats) inc(ruleID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Count++
	s.ByRule[ruleID]++
}

const maxDepth = 64

// PresetPolicy compiles a named built-in preset into a policy with no
// path scoping and no allowlist.
func PresetPolicy(name string) (*CompiledPolicy, error) {
	rules, err := PresetRules(name)
	if err != nil {
		return nil, err
	}
	return &CompiledPolicy{Rules: rules, Allowlist: Allowlist{Exact: map[string]bool{}}}, nil
}

// Redact walks v, producing a fresh tree with string leaves passed
// through the policy's rules, subject to path scoping. The input tree
// is never mutated. repl may be nil for one-way redaction, or a
// session's replacement.Map for reversible redaction.
func Redact(v jsonvalue.Value, policy *CompiledPolicy, stats *Stats, repl *replacement.Map) jsonvalue.Value {
	return redactAt(v, policy, stats, repl, nil, 0)
}

func redactAt(v jsonvalue.Value, policy *CompiledPolicy, stats *Stats, repl *replacement.Map, path []string, depth int) jsonvalue.Value {
	if depth > maxDepth {
		return jsonvalue.String("[REDACTION_DEPTH_LIMIT_EXCEEDED]")
	}

	switch v.Kind {
	case jsonvalue.KindString:
		if !policy.pathAllowed(path) {
			return v
		}
		return jsonvalue.String(redactString(v.Str, policy, stats, repl))

	case jsonvalue.KindArray:
		out := make([]jsonvalue.Value, len(v.Arr))
		for i, item := range v.Arr {
			out[i] = redactAt(item, policy, stats, repl, extendPath(path, "*"), depth+1)
		}
		return jsonvalue.Array(out)

	case jsonvalue.KindObject:
		obj := jsonvalue.NewObject()
		if v.Obj != nil {
			for _, k := range v.Obj.Keys() {
				val, _ := v.Obj.Get(k)
				obj.Set(k, redactAt(val, policy, stats, repl, extendPath(path, k), depth+1))
			}
		}
		return jsonvalue.Obj(obj)

	default:
		return v
	}
}

func extendPath(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

func redactString(s string, policy *CompiledPolicy, stats *Stats, repl *replacement.Map) string {
	for _, rule := range policy.Rules {
		if len(rule.ContextWords) == 0 {
			s = applyGlobalRule(s, rule, stats, policy.Allowlist, repl)
		} else {
			s = applyContextRule(s, rule, stats, policy.Allowlist, repl)
		}
	}
	return s
}

func applyGlobalRule(s string, rule Rule, stats *Stats, allow Allowlist, repl *replacement.Map) string {
	locs := rule.Pattern.FindAllStringIndex(s, -1)
	if locs == nil {
		return s
	}
	var buf strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		match := s[start:end]
		if allow.Matches(match) {
			continue
		}
		buf.WriteString(s[last:start])
		stats.inc(rule.ID)
		if repl != nil {
			buf.WriteString(repl.GetOrCreate(match, rule.ID))
		} else {
			buf.WriteString(rule.Replacement)
		}
		last = end
	}
	buf.WriteString(s[last:])
	return buf.String()
}

func applyContextRule(s string, rule Rule, stats *Stats, allow Allowlist, repl *replacement.Map) string {
	locs := rule.Pattern.FindAllStringIndex(s, -1)
	if locs == nil {
		return s
	}
	out := s
	for i := len(locs) - 1; i >= 0; i-- {
		start, end := locs[i][0], locs[i][1]
		match := out[start:end]
		if allow.Matches(match) {
			continue
		}
		if !hasContextWord(out, start, end, rule.ContextWords, rule.ContextWindow) {
			continue
		}
		stats.inc(rule.ID)
		var replacementText string
		if repl != nil {
			replacementText = repl.GetOrCreate(match, rule.ID)
		} else {
			replacementText = rule.Replacement
		}
		out = out[:start] + replacementText + out[end:]
	}
	return out
}

func hasContextWord(s string, start, end int, words []string, window int) bool {
	lo := start - window
	if lo < 0 {
		lo = 0
	}
	hi := end + window
	if hi > len(s) {
		hi = len(s)
	}
	windowText := strings.ToLower(s[lo:hi])
	for _, w := range words {
		if strings.Contains(windowText, w) {
			return true
		}
	}
	return false
}
