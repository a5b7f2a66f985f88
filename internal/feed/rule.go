package feed

import (
	"fmt"
	"log"
	"regexp"

	"secint/internal/config"
	"secint/internal/feed/tmpl"
)

// CompiledRule is an extraction rule resolved at configuration-load time:
// the pattern is compiled once and the transform template is parsed into an
// ordered list of literal and group-reference segments. Per-line work is then
// a single regexp search plus segment concatenation.
type CompiledRule struct {
	name string
	re   *regexp.Regexp
	tpl  *tmpl.Template
}

// CompileRule compiles a config rule. The name is used only in error and log
// messages (e.g. the field name the rule belongs to).
//
// Errors:
//   - A rule with an empty regex is a configuration error.
//   - A transform referencing a capture group the pattern does not define is
//     a configuration error.
//
// Edge cases:
//   - An empty transform means "entire match". If the pattern has capture
//     groups, that is usually a forgotten transform, so a warning is logged;
//     whole-match semantics still apply.
func CompileRule(name string, r config.Rule) (*CompiledRule, error) {
	if r.Regex == "" {
		return nil, fmt.Errorf("feed: rule %q is missing its regex", name)
	}
	re, err := regexp.Compile(r.Regex)
	if err != nil {
		return nil, fmt.Errorf("feed: rule %q: invalid regex: %w", name, err)
	}

	transform := r.Transform
	if transform == "" {
		if re.NumSubexp() > 0 {
			log.Printf("feed: rule %q has capture groups but no transform; using the whole match", name)
		}
		transform = `\g<0>`
	}

	t, err := tmpl.Parse(transform, re)
	if err != nil {
		return nil, fmt.Errorf("feed: rule %q: %w", name, err)
	}

	return &CompiledRule{name: name, re: re, tpl: t}, nil
}

// Apply searches line for the rule's pattern and, on a match, expands the
// transform template against the submatches. The second return value is false
// when the pattern does not match the line at all.
func (cr *CompiledRule) Apply(line string) (string, bool) {
	sm := cr.re.FindStringSubmatch(line)
	if sm == nil {
		return "", false
	}
	return cr.tpl.Expand(sm), true
}

// CompileFields compiles a named set of field rules. Any invalid rule fails
// the whole set; partial field configuration is never accepted.
func CompileFields(fields map[string]config.Rule) (map[string]*CompiledRule, error) {
	out := make(map[string]*CompiledRule, len(fields))
	for name, r := range fields {
		cr, err := CompileRule(name, r)
		if err != nil {
			return nil, err
		}
		out[name] = cr
	}
	return out, nil
}
