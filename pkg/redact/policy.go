package redact

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/quietloop/airgate/pkg/replacement"
)

// rawRule is the on-disk shape of one user-authored rule.
type rawRule struct {
	ID            string   `json:"id"`
	Pattern       string   `json:"pattern"`
	Replacement   string   `json:"replacement"`
	ContextWords  []string `json:"contextWords"`
	ContextWindow int      `json:"contextWindow"`
}

// rawAllowlist is the on-disk allowlist shape.
type rawAllowlist struct {
	Exact    []string `json:"exact"`
	Patterns []string `json:"patterns"`
}

// rawPaths is the on-disk path-scoping shape; each matcher is a list of
// segments where "*" matches any single segment.
type rawPaths struct {
	Only [][]string `json:"only"`
	Skip [][]string `json:"skip"`
}

// rawPolicy is the full on-disk policy document, accepted as
// "JSON-with-comments": lines whose first non-whitespace characters are
// `//` are stripped, and a trailing comma before a closing `}`/`]` is
// tolerated.
type rawPolicy struct {
	Extends   string       `json:"extends"`
	Rules     []rawRule    `json:"rules"`
	Allowlist rawAllowlist `json:"allowlist"`
	Paths     rawPaths     `json:"paths"`
}

// LoadPolicyFile reads and compiles a JSONC policy document from disk
// bytes.
func LoadPolicyFile(data []byte) (*CompiledPolicy, error) {
	stripped := stripJSONC(data)
	var raw rawPolicy
	if err := json.Unmarshal(stripped, &raw); err != nil {
		return nil, fmt.Errorf("redact: invalid policy document: %w", err)
	}
	return compileRawPolicy(raw)
}

func compileRawPolicy(raw rawPolicy) (*CompiledPolicy, error) {
	var rules []Rule
	if raw.Extends != "" {
		base, err := PresetRules(raw.Extends)
		if err != nil {
			return nil, err
		}
		rules = append(rules, base...)
	}

	for _, rr := range raw.Rules {
		rule, err := compileRawRule(rr)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	allow, err := compileAllowlist(raw.Allowlist)
	if err != nil {
		return nil, err
	}

	var only, skip []PathMatcher
	for _, m := range raw.Paths.Only {
		only = append(only, PathMatcher(m))
	}
	for _, m := range raw.Paths.Skip {
		skip = append(skip, PathMatcher(m))
	}

	return &CompiledPolicy{
		Rules:     rules,
		Allowlist: allow,
		OnlyPaths: only,
		SkipPaths: skip,
	}, nil
}

func compileRawRule(rr rawRule) (Rule, error) {
	source, caseInsensitive := translateCaseInsensitivePrefix(rr.Pattern)
	flags := ""
	if caseInsensitive {
		flags = "(?i)"
	}
	pat, err := regexp.Compile(flags + source)
	if err != nil {
		return Rule{}, fmt.Errorf("redact: rule %q: %w", rr.ID, err)
	}
	replacement := rr.Replacement
	if replacement == "" {
		replacement = defaultStaticReplacement(rr.ID)
	}
	return Rule{
		ID:            rr.ID,
		Pattern:       pat,
		Replacement:   replacement,
		ContextWords:  lowerAll(rr.ContextWords),
		ContextWindow: rr.ContextWindow,
	}, nil
}

func compileAllowlist(raw rawAllowlist) (Allowlist, error) {
	exact := map[string]bool{}
	for _, s := range raw.Exact {
		exact[s] = true
	}
	var patterns []*regexp.Regexp
	for _, p := range raw.Patterns {
		source, ci := translateCaseInsensitivePrefix(p)
		flags := ""
		if ci {
			flags = "(?i)"
		}
		anchored := flags + "^(?:" + source + ")$"
		compiled, err := regexp.Compile(anchored)
		if err != nil {
			return Allowlist{}, fmt.Errorf("redact: allowlist pattern %q: %w", p, err)
		}
		patterns = append(patterns, compiled)
	}
	return Allowlist{Exact: exact, Patterns: patterns}, nil
}

// translateCaseInsensitivePrefix strips a leading "(?i)" from source and
// reports that the caller should apply the case-insensitive flag
// itself, since the spec treats this as a recognized convention rather
// than leaving it to regexp's own inline-flag syntax (which already
// accepts it, but callers also need to know whether it was requested to
// apply it consistently to generated allowlist anchors).
func translateCaseInsensitivePrefix(source string) (string, bool) {
	if strings.HasPrefix(source, "(?i)") {
		return strings.TrimPrefix(source, "(?i)"), true
	}
	return source, false
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}

func defaultStaticReplacement(ruleID string) string {
	return "[" + replacement.Label(ruleID) + "_REDACTED]"
}

// stripJSONC removes `//`-prefixed line comments (when `//` is the
// first non-whitespace content on the line) and trailing commas before
// a closing `}` or `]`.
func stripJSONC(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		kept = append(kept, line)
	}
	joined := strings.Join(kept, "\n")
	return stripTrailingCommas(joined)
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

func stripTrailingCommas(s string) []byte {
	return []byte(trailingCommaRe.ReplaceAllString(s, "$1"))
}
