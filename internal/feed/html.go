package feed

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"secint/internal/config"
)

// HTMLExtractor handles feeds published as HTML pages rather than plain
// text: each element matched by the record selector becomes one indicator
// record, and mappings are evaluated relative to that element.
//
// Regex filters are compiled once at construction, not per record.
type HTMLExtractor struct {
	recordSelector string
	mappings       []htmlMapping
	itype          string
}

type htmlMapping struct {
	selector string
	attr     string
	field    string
	match    *regexp.Regexp
}

// NewHTMLExtractor compiles the HTML extraction config.
//
// Errors:
//   - Missing record selector or mappings.
//   - No mapping targeting the "value" field (a record without a value is
//     useless to the host).
//   - Any invalid filter regex.
func NewHTMLExtractor(cfg config.Feed) (*HTMLExtractor, error) {
	if cfg.HTML == nil {
		return nil, fmt.Errorf("feed: html extraction block is required for format html")
	}
	if cfg.HTML.RecordSelector == "" {
		return nil, fmt.Errorf("feed: html record_selector is required")
	}
	if len(cfg.HTML.Mappings) == 0 {
		return nil, fmt.Errorf("feed: html mappings are required")
	}

	x := &HTMLExtractor{
		recordSelector: cfg.HTML.RecordSelector,
		itype:          cfg.IndicatorType,
	}

	hasValue := false
	for _, m := range cfg.HTML.Mappings {
		hm := htmlMapping{selector: m.Selector, attr: m.Attr, field: m.Field}
		if m.Field == "value" {
			hasValue = true
		}
		if m.Match != "" {
			re, err := regexp.Compile(m.Match)
			if err != nil {
				return nil, fmt.Errorf("feed: html mapping %q: invalid match regex: %w", m.Field, err)
			}
			hm.match = re
		}
		x.mappings = append(x.mappings, hm)
	}
	if !hasValue {
		return nil, fmt.Errorf(`feed: no html mapping targets field "value"`)
	}

	return x, nil
}

// CollectHTML fetches the page and extracts one record per container matched
// by the record selector, in DOM order.
//
// Containers that yield no value are skipped rather than failing the page,
// so one malformed row cannot abort the whole fetch.
func CollectHTML(ctx context.Context, c *Client, x *HTMLExtractor) ([]Record, error) {
	body, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return x.Extract(body)
}

// Extract parses HTML from r and applies the mappings.
func (x *HTMLExtractor) Extract(r io.Reader) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("feed: parse html: %w", err)
	}

	var records []Record
	doc.Find(x.recordSelector).Each(func(_ int, rec *goquery.Selection) {
		attrs := make(map[string]any, len(x.mappings)+2)
		var value string

		for _, m := range x.mappings {
			sel := rec.Find(m.selector).First()
			if sel.Length() == 0 {
				continue
			}

			var raw string
			if m.attr != "" {
				raw, _ = sel.Attr(m.attr)
			} else {
				raw = sel.Text()
			}
			raw = strings.TrimSpace(raw)
			raw = applyMatchFilter(raw, m.match)
			if raw == "" {
				continue
			}

			if m.field == "value" {
				value = raw
				continue
			}
			attrs[m.field] = coerceInt(raw)
		}

		if value == "" {
			return
		}
		attrs["value"] = value
		attrs["type"] = x.itype
		records = append(records, Record{Value: value, Type: x.itype, RawJSON: attrs})
	})

	return records, nil
}

// applyMatchFilter applies an optional regex post-filter.
//
// Behavior:
//   - nil regex: passthrough.
//   - no match: "" (caller omits the field).
//   - match with capture groups: group 1.
//   - match without capture groups: the full match.
func applyMatchFilter(value string, re *regexp.Regexp) string {
	if value == "" || re == nil {
		return value
	}
	sm := re.FindStringSubmatch(value)
	if len(sm) == 0 {
		return ""
	}
	if len(sm) > 1 {
		return sm[1]
	}
	return sm[0]
}
