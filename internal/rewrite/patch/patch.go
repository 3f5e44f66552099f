// Package patch applies named regular-expression rewrite rules to generated
// C++ source. Each rule reports how often it matched, so drift in the
// transpiler's output shows up as one named rule with zero matches instead of
// a silently corrupted buffer.
package patch

import (
	"fmt"
	"regexp"
	"strings"
)

// Match is one occurrence of a rule's pattern.
type Match struct {
	// Index counts matches of the same rule, starting at zero.
	Index int
	// Groups holds the full match followed by each capture group.
	Groups []string
}

// Rule is a single named rewrite.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Replace  func(m Match) string
	Required bool
}

// Outcome records what a rule did to a buffer.
type Outcome struct {
	Rule     string `json:"rule"`
	Matches  int    `json:"matches"`
	Required bool   `json:"required"`
}

// Expand substitutes $1..$9 style references with m's groups. Unlike
// regexp.Expand it never interprets "$" inside the groups themselves.
func Expand(template string, m Match) string {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c == '$' && i+1 < len(template) && template[i+1] >= '0' && template[i+1] <= '9' {
			n := int(template[i+1] - '0')
			if n < len(m.Groups) {
				b.WriteString(m.Groups[n])
			}
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Template returns a Replace func expanding a fixed template.
func Template(template string) func(Match) string {
	return func(m Match) string { return Expand(template, m) }
}

// Apply rewrites every match of the rule and returns the new buffer and the
// number of matches.
func (r Rule) Apply(code string) (string, int) {
	if r.Pattern == nil || r.Replace == nil {
		return code, 0
	}
	locs := r.Pattern.FindAllStringSubmatchIndex(code, -1)
	if len(locs) == 0 {
		return code, 0
	}
	var b strings.Builder
	b.Grow(len(code))
	last := 0
	for i, loc := range locs {
		groups := make([]string, len(loc)/2)
		for g := range groups {
			if loc[2*g] >= 0 {
				groups[g] = code[loc[2*g]:loc[2*g+1]]
			}
		}
		b.WriteString(code[last:loc[0]])
		b.WriteString(r.Replace(Match{Index: i, Groups: groups}))
		last = loc[1]
	}
	b.WriteString(code[last:])
	return b.String(), len(locs)
}

// Set is an ordered list of rules applied one after another.
type Set []Rule

// Apply runs every rule in order over code.
func (s Set) Apply(code string) (string, []Outcome) {
	outcomes := make([]Outcome, 0, len(s))
	for _, rule := range s {
		var n int
		code, n = rule.Apply(code)
		outcomes = append(outcomes, Outcome{Rule: rule.Name, Matches: n, Required: rule.Required})
	}
	return code, outcomes
}

// Missing lists required rules that never matched.
func Missing(outcomes []Outcome) []string {
	var out []string
	for _, o := range outcomes {
		if o.Required && o.Matches == 0 {
			out = append(out, o.Rule)
		}
	}
	return out
}

// MustCompile compiles a rule pattern, panicking with the rule name on error.
func MustCompile(name, pattern string) *regexp.Regexp {
	re, err := regexp.Compile(pattern)
	if err != nil {
		panic(fmt.Sprintf("patch rule %s: %v", name, err))
	}
	return re
}
