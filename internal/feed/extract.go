package feed

import (
	"context"
	"strconv"
	"strings"

	"secint/internal/config"
)

// Record is one extracted indicator.
//
// RawJSON carries every extracted field plus the value and type merged in,
// matching the raw form the host ingests.
type Record struct {
	Value   string         `json:"value"`
	Type    string         `json:"type"`
	RawJSON map[string]any `json:"rawJSON"`
}

// Extractor turns feed lines into indicator records.
//
// Indicator is optional: when nil, the value is the token before the first
// whitespace on the line. Fields are independent; a field whose pattern does
// not match a line is simply omitted from that record.
type Extractor struct {
	Indicator *CompiledRule
	Fields    map[string]*CompiledRule
	Type      string
}

// NewExtractor compiles the indicator and field rules from config.
func NewExtractor(cfg config.Feed) (*Extractor, error) {
	x := &Extractor{Type: cfg.IndicatorType}

	if cfg.Indicator != nil {
		cr, err := CompileRule("indicator", *cfg.Indicator)
		if err != nil {
			return nil, err
		}
		x.Indicator = cr
	}

	fields, err := CompileFields(cfg.Fields)
	if err != nil {
		return nil, err
	}
	x.Fields = fields

	return x, nil
}

// ExtractLine derives one record from a line.
//
// Returns ok=false when the line contributes no record: blank lines, and
// lines the configured indicator rule does not match.
func (x *Extractor) ExtractLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}

	var value string
	if x.Indicator != nil {
		v, ok := x.Indicator.Apply(line)
		if !ok {
			return Record{}, false
		}
		value = v
	} else {
		value = firstToken(line)
	}

	attrs := make(map[string]any, len(x.Fields)+2)
	for name, rule := range x.Fields {
		v, ok := rule.Apply(line)
		if !ok {
			continue
		}
		attrs[name] = coerceInt(v)
	}

	attrs["value"] = value
	attrs["type"] = x.Type

	return Record{Value: value, Type: x.Type, RawJSON: attrs}, true
}

// Collect fetches the feed and extracts all records, preserving line order.
// No deduplication happens here; that is a host-side concern.
func Collect(ctx context.Context, c *Client, x *Extractor) ([]Record, error) {
	lines := make(chan string, 64)
	errCh := make(chan error, 1)

	go func() {
		errCh <- c.StreamLines(ctx, lines)
		close(lines)
	}()

	var records []Record
	for line := range lines {
		if rec, ok := x.ExtractLine(line); ok {
			records = append(records, rec)
		}
	}
	return records, <-errCh
}

// firstToken returns the substring up to the first whitespace. The line is
// already trimmed and non-empty.
func firstToken(line string) string {
	if i := strings.IndexFunc(line, isSpace); i >= 0 {
		return line[:i]
	}
	return line
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// coerceInt stores numeric-looking field values as integers, best effort.
// "42" becomes int 42; "42a" stays a string.
func coerceInt(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}
