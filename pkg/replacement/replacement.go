// Package replacement implements a bidirectional original↔placeholder
// table scoped to one session, the primitive that makes redaction
// reversible. The shape is grounded on the per-session token cache used
// by the anonymizing-proxy pattern in the reference corpus, generalized
// to the rule-id/counter placeholder scheme this proxy uses.
package replacement

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// Label derives the upper-cased, underscore-joined rule label used
// inside a placeholder from a rule id: the id is upper-cased and every
// non-alphanumeric character is mapped to an underscore.
func Label(ruleID string) string {
	return nonAlnum.ReplaceAllString(strings.ToUpper(ruleID), "_")
}

// Map is a per-session bidirectional replacement table. It is safe for
// concurrent use: GetOrCreate and Rehydrate are called from whatever
// goroutine is handling that session's current request, but sessions
// can be evicted from a different goroutine (the idle-sweep clock), so
// every operation takes the lock.
type Map struct {
	mu       sync.Mutex
	forward  map[string]string // original -> placeholder
	reverse  map[string]string // placeholder -> original
	counters map[string]int    // rule label -> last counter issued
}

// New creates an empty replacement map.
func New() *Map {
	return &Map{
		forward:  map[string]string{},
		reverse:  map[string]string{},
		counters: map[string]int{},
	}
}

// GetOrCreate returns the placeholder for original under ruleID. If
// original has already been replaced under any rule, the existing
// placeholder is returned unchanged (forward is single-valued — the
// same original string always maps to the same placeholder regardless
// of which rule asks a second time). Otherwise a new placeholder is
// minted using ruleID's label and that rule's next counter value.
func (m *Map) GetOrCreate(original, ruleID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.forward[original]; ok {
		return existing
	}

	label := Label(ruleID)
	m.counters[label]++
	placeholder := fmt.Sprintf("[%s_%d]", label, m.counters[label])

	m.forward[original] = placeholder
	m.reverse[placeholder] = original
	return placeholder
}

// Rehydrate replaces every known placeholder in text with its original
// value. Placeholders are applied longest-first so a longer placeholder
// (e.g. "[EMAIL_10]") is substituted before a shorter one that is its
// prefix (e.g. "[EMAIL_1]") is ever given the chance to clobber part of
// it. Replacement is literal string substitution, not regex.
func (m *Map) Rehydrate(text string) string {
	m.mu.Lock()
	pairs := make([]Entry, 0, len(m.reverse))
	for p, orig := range m.reverse {
		pairs = append(pairs, Entry{Original: orig, Placeholder: p})
	}
	m.mu.Unlock()

	if len(pairs) == 0 {
		return text
	}
	sort.Slice(pairs, func(i, j int) bool {
		return len(pairs[i].Placeholder) > len(pairs[j].Placeholder)
	})

	for _, e := range pairs {
		if strings.Contains(text, e.Placeholder) {
			text = strings.ReplaceAll(text, e.Placeholder, e.Original)
		}
	}
	return text
}

// Size reports how many original values have been replaced.
func (m *Map) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.forward)
}

// Empty reports whether the map has no entries yet, used by the stream
// rehydrator's fast path to skip all per-chunk work.
func (m *Map) Empty() bool {
	return m.Size() == 0
}

// Entry is one (original, placeholder) pair.
type Entry struct {
	Original    string
	Placeholder string
}

// Entries returns a snapshot of all (original, placeholder) pairs.
func (m *Map) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.forward))
	for orig, ph := range m.forward {
		out = append(out, Entry{Original: orig, Placeholder: ph})
	}
	return out
}

// Placeholders returns a snapshot of every minted placeholder.
func (m *Map) Placeholders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.reverse))
	for p := range m.reverse {
		out = append(out, p)
	}
	return out
}
