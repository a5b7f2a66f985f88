package securonix

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// CamelCaseToReadable turns a vendor camelCase field name into a spaced,
// title-cased label for human-facing output.
//
// Edge cases:
//   - "id" maps to "ID", not "Id".
func CamelCaseToReadable(field string) string {
	if field == "id" {
		return "ID"
	}

	var words []string
	var cur []rune
	for _, r := range field {
		if unicode.IsUpper(r) && len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}

	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

// Entry is one vendor object rendered two ways: Readable carries spaced
// labels for tables, Fields carries the same keys with spaces removed for
// structured output.
type Entry struct {
	Readable map[string]any
	Fields   map[string]any
}

// ParseEntries renders vendor objects into Entry pairs, dropping the named
// fields.
func ParseEntries(items []map[string]any, drop ...string) []Entry {
	dropped := make(map[string]bool, len(drop))
	for _, d := range drop {
		dropped[d] = true
	}

	out := make([]Entry, 0, len(items))
	for _, item := range items {
		e := Entry{
			Readable: make(map[string]any, len(item)),
			Fields:   make(map[string]any, len(item)),
		}
		for k, v := range item {
			if dropped[k] {
				continue
			}
			label := CamelCaseToReadable(k)
			e.Readable[label] = v
			e.Fields[strings.ReplaceAll(label, " ", "")] = v
		}
		out = append(out, e)
	}
	return out
}

// PriorityToSeverity maps a vendor incident priority onto the host's 0-3
// severity scale. Unknown priorities map to 0 (unknown).
func PriorityToSeverity(priority string) int {
	switch strings.ToLower(priority) {
	case "low":
		return 1
	case "medium":
		return 2
	case "high":
		return 3
	default:
		return 0
	}
}

// MarkdownTable renders entries as a markdown table with one column per
// readable label, ordered by the headers argument when given, otherwise by
// the sorted union of keys.
func MarkdownTable(title string, entries []Entry, headers []string) string {
	var b strings.Builder
	b.WriteString("### ")
	b.WriteString(title)
	b.WriteString("\n")

	if len(entries) == 0 {
		b.WriteString("**No entries.**\n")
		return b.String()
	}

	if len(headers) == 0 {
		seen := map[string]bool{}
		for _, e := range entries {
			for k := range e.Readable {
				if !seen[k] {
					seen[k] = true
					headers = append(headers, k)
				}
			}
		}
		sort.Strings(headers)
	}

	b.WriteString("|")
	for _, h := range headers {
		b.WriteString(h)
		b.WriteString("|")
	}
	b.WriteString("\n|")
	for range headers {
		b.WriteString("---|")
	}
	b.WriteString("\n")

	for _, e := range entries {
		b.WriteString("|")
		for _, h := range headers {
			if v, ok := e.Readable[h]; ok && v != nil {
				b.WriteString(escapeCell(fmt.Sprintf("%v", v)))
			}
			b.WriteString("|")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
