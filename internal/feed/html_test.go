package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"secint/internal/config"
)

const indicatorTablePage = `<html><body>
<table id="blocklist">
  <tr class="entry">
    <td class="ip">192.0.2.10</td>
    <td class="count">12</td>
    <td><a class="ref" href="https://example.org/r/1">ref</a></td>
  </tr>
  <tr class="entry">
    <td class="ip">not-an-ip</td>
    <td class="count">3</td>
  </tr>
  <tr class="entry">
    <td class="ip">192.0.2.11</td>
  </tr>
</table>
</body></html>`

func htmlFeedConfig() config.Feed {
	return config.Feed{
		Format:        "html",
		IndicatorType: "IP",
		HTML: &config.HTMLExtract{
			RecordSelector: "tr.entry",
			Mappings: []config.HTMLMapping{
				{Selector: "td.ip", Field: "value", Match: `^\d+\.\d+\.\d+\.\d+$`},
				{Selector: "td.count", Field: "attacks"},
				{Selector: "a.ref", Attr: "href", Field: "reference"},
			},
		},
	}
}

// TestHTMLExtract verifies one record per container, attribute extraction,
// regex filtering, and skipping of rows without a value.
func TestHTMLExtract(t *testing.T) {
	t.Parallel()

	x, err := NewHTMLExtractor(htmlFeedConfig())
	if err != nil {
		t.Fatalf("NewHTMLExtractor: %v", err)
	}

	records, err := x.Extract(strings.NewReader(indicatorTablePage))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// Row 2 fails the value filter; rows 1 and 3 survive.
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}

	first := records[0]
	if first.Value != "192.0.2.10" || first.Type != "IP" {
		t.Fatalf("first record=%+v", first)
	}
	if first.RawJSON["attacks"] != 12 {
		t.Fatalf("attacks=%v (%T), want int 12", first.RawJSON["attacks"], first.RawJSON["attacks"])
	}
	if first.RawJSON["reference"] != "https://example.org/r/1" {
		t.Fatalf("reference=%v", first.RawJSON["reference"])
	}

	second := records[1]
	if second.Value != "192.0.2.11" {
		t.Fatalf("second record=%+v", second)
	}
	if _, ok := second.RawJSON["attacks"]; ok {
		t.Fatalf("second record has attacks field; want omitted when the cell is absent")
	}
}

// TestCollectHTML verifies the fetch-and-extract path end to end.
func TestCollectHTML(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(indicatorTablePage))
	}))
	t.Cleanup(srv.Close)

	cfg := htmlFeedConfig()
	cfg.URL = srv.URL

	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	x, err := NewHTMLExtractor(cfg)
	if err != nil {
		t.Fatalf("NewHTMLExtractor: %v", err)
	}

	records, err := CollectHTML(context.Background(), c, x)
	if err != nil {
		t.Fatalf("CollectHTML: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
}

// TestNewHTMLExtractor_Errors verifies construction fails fast on bad config.
func TestNewHTMLExtractor_Errors(t *testing.T) {
	t.Parallel()

	base := htmlFeedConfig()

	noBlock := base
	noBlock.HTML = nil
	if _, err := NewHTMLExtractor(noBlock); err == nil {
		t.Fatalf("expected error for missing html block")
	}

	noValue := base
	noValue.HTML = &config.HTMLExtract{
		RecordSelector: "tr",
		Mappings:       []config.HTMLMapping{{Selector: "td", Field: "other"}},
	}
	if _, err := NewHTMLExtractor(noValue); err == nil {
		t.Fatalf("expected error when no mapping targets value")
	}

	badMatch := base
	badMatch.HTML = &config.HTMLExtract{
		RecordSelector: "tr",
		Mappings:       []config.HTMLMapping{{Selector: "td", Field: "value", Match: "(["}},
	}
	if _, err := NewHTMLExtractor(badMatch); err == nil {
		t.Fatalf("expected error for invalid match regex")
	}
}

func TestApplyMatchFilter(t *testing.T) {
	t.Parallel()

	if got := applyMatchFilter("x", nil); got != "x" {
		t.Fatalf("nil regex: got %q, want passthrough", got)
	}

	grouped := regexp.MustCompile(`id=(\d+)`)
	if got := applyMatchFilter("id=42;rest", grouped); got != "42" {
		t.Fatalf("grouped match: got %q, want 42", got)
	}
	if got := applyMatchFilter("no digits", grouped); got != "" {
		t.Fatalf("non-match: got %q, want empty", got)
	}

	whole := regexp.MustCompile(`\d+`)
	if got := applyMatchFilter("abc 37 def", whole); got != "37" {
		t.Fatalf("whole match: got %q, want 37", got)
	}
}
