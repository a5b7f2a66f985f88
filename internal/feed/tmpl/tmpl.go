// Package tmpl parses the transform templates used by extraction rules and
// expands them against regexp submatches.
//
// Supported references:
//   - \1 .. \9           numbered capture group
//   - \g<0>, \g<12>      numbered group, unambiguous form
//   - \g<name>           named capture group (?P<name>...)
//   - \\                  literal backslash
//
// Group references are resolved against the pattern at parse time so that a
// dangling or malformed reference fails configuration instead of producing
// empty output (or a panic) per line.
package tmpl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Template is a parsed transform: an ordered list of literal and
// group-reference segments. Per-line work is one concatenation pass.
type Template struct {
	segs []segment
}

// segment is one piece of a parsed template. Either lit is set or group holds
// a capture-group index (0 = whole match).
type segment struct {
	lit   string
	group int
}

// Parse splits a transform template into segments, resolving every group
// reference against re.
//
// Errors:
//   - A reference to a group index the pattern does not define.
//   - A reference to an unknown named group. Anything inside \g<...> that is
//     not a plain decimal index (e.g. "-1", "+2") is looked up as a name, so
//     signed numbers are rejected here too.
//   - A bare trailing backslash, an unterminated \g<...>, or an unsupported
//     escape.
func Parse(tpl string, re *regexp.Regexp) (*Template, error) {
	names := re.SubexpNames()
	nameIndex := make(map[string]int, len(names))
	for i, n := range names {
		if n != "" {
			nameIndex[n] = i
		}
	}

	var segs []segment
	var lit strings.Builder

	flushLit := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{lit: lit.String()})
			lit.Reset()
		}
	}
	addGroup := func(g int) error {
		if g < 0 || g > re.NumSubexp() {
			return fmt.Errorf("transform references group %d but pattern has only %d", g, re.NumSubexp())
		}
		flushLit()
		segs = append(segs, segment{group: g})
		return nil
	}

	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		if c != '\\' {
			lit.WriteByte(c)
			continue
		}
		if i+1 >= len(tpl) {
			return nil, fmt.Errorf("transform ends with a bare backslash")
		}
		i++
		switch n := tpl[i]; {
		case n == '\\':
			lit.WriteByte('\\')

		case n >= '0' && n <= '9':
			if err := addGroup(int(n - '0')); err != nil {
				return nil, err
			}

		case n == 'g':
			// \g<...> form.
			rest := tpl[i+1:]
			if !strings.HasPrefix(rest, "<") {
				return nil, fmt.Errorf(`transform: \g must be followed by <group>`)
			}
			end := strings.IndexByte(rest, '>')
			if end < 0 {
				return nil, fmt.Errorf(`transform: unterminated \g<...> reference`)
			}
			ref := rest[1:end]
			i += end + 1

			if ref == "" {
				return nil, fmt.Errorf(`transform: empty \g<> reference`)
			}
			if isGroupIndex(ref) {
				num, err := strconv.Atoi(ref)
				if err != nil {
					return nil, fmt.Errorf("transform: group reference %q: %v", ref, err)
				}
				if err := addGroup(num); err != nil {
					return nil, err
				}
				break
			}
			g, ok := nameIndex[ref]
			if !ok {
				return nil, fmt.Errorf("transform references unknown group %q", ref)
			}
			if err := addGroup(g); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf(`transform: unsupported escape \%c`, n)
		}
	}
	flushLit()

	return &Template{segs: segs}, nil
}

// Expand concatenates the template against sm, a FindStringSubmatch result
// for the pattern the template was parsed with.
func (t *Template) Expand(sm []string) string {
	var b strings.Builder
	for _, s := range t.segs {
		if s.lit != "" {
			b.WriteString(s.lit)
			continue
		}
		if s.group < len(sm) {
			b.WriteString(sm[s.group])
		}
	}
	return b.String()
}

// isGroupIndex reports whether ref is a plain non-negative decimal index.
// Anything else, including signed numbers, is treated as a group name.
func isGroupIndex(ref string) bool {
	for i := 0; i < len(ref); i++ {
		if ref[i] < '0' || ref[i] > '9' {
			return false
		}
	}
	return len(ref) > 0
}
