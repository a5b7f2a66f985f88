package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// TestLoadFeed verifies JSON decoding of a full feed config.
func TestLoadFeed(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, `{
		"name": "dshield_block",
		"url": "https://example.org/block.txt",
		"ignore_regex": "[#S]",
		"indicator": {"regex": "^(\\S+)\\t(\\S+)", "transform": "\\1-\\2"},
		"fields": {
			"attacks": {"regex": "^\\S+\\t\\S+\\t(\\d+)", "transform": "\\1"}
		},
		"indicator_type": "CIDR",
		"polling_timeout": 45,
		"batch_size": 500,
		"sink": {"kind": "sqlite", "dsn": "file:ind.db"}
	}`)

	f, err := LoadFeed(path)
	if err != nil {
		t.Fatalf("LoadFeed: %v", err)
	}
	if f.Name != "dshield_block" || f.IndicatorType != "CIDR" {
		t.Fatalf("unexpected feed: %+v", f)
	}
	if f.Indicator == nil || f.Indicator.Transform != `\1-\2` {
		t.Fatalf("indicator rule not decoded: %+v", f.Indicator)
	}
	if f.Fields["attacks"].Regex == "" {
		t.Fatalf("fields not decoded: %+v", f.Fields)
	}
	if f.PollingTimeout != 45 || f.BatchSize != 500 {
		t.Fatalf("timeouts not decoded: %+v", f)
	}
	if f.Sink.Kind != "sqlite" {
		t.Fatalf("sink not decoded: %+v", f.Sink)
	}
}

func TestLoadFeed_Errors(t *testing.T) {
	t.Parallel()

	if _, err := LoadFeed(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("LoadFeed: expected error for missing file")
	}
	if _, err := LoadFeed(writeTemp(t, "{not json")); err == nil {
		t.Fatalf("LoadFeed: expected error for malformed json")
	}
}

// TestValidateFeed_TextRules verifies rule validation for text feeds.
//
// Edge cases:
//   - A configured rule with an empty regex is an error, not a silent skip.
//   - A transform with a dangling group reference is caught here, so
//     -validate and the real run agree on what is acceptable.
func TestValidateFeed_TextRules(t *testing.T) {
	t.Parallel()

	f := Feed{
		URL:           "https://example.org/feed.txt",
		IndicatorType: "IP",
		Indicator:     &Rule{Regex: `(\d+)`, Transform: `\g<-1>`},
		Fields: map[string]Rule{
			"good":    {Regex: `\d+`},
			"noregex": {Transform: `\1`},
			"badre":   {Regex: `([`},
			"badtpl":  {Regex: `(\d+)`, Transform: `\2`},
		},
	}

	issues := ValidateFeed(f)
	if !HasError(issues) {
		t.Fatalf("expected errors, got %v", issues)
	}

	var paths []string
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			paths = append(paths, iss.Path)
		}
	}
	wantPaths := []string{
		"indicator.transform",
		"fields.badre.regex",
		"fields.badtpl.transform",
		"fields.noregex.regex",
	}
	for _, want := range wantPaths {
		found := false
		for _, p := range paths {
			if p == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing error for %s; got %v", want, paths)
		}
	}
}

func TestValidateFeed_Valid(t *testing.T) {
	t.Parallel()

	f := Feed{
		URL:           "https://example.org/feed.txt",
		IndicatorType: "IP",
		Indicator:     &Rule{Regex: `^\S+`},
		IgnoreRegex:   "#",
	}
	if issues := ValidateFeed(f); HasError(issues) {
		t.Fatalf("unexpected errors: %v", issues)
	}
}

func TestValidateFeed_MissingURL(t *testing.T) {
	t.Parallel()

	issues := ValidateFeed(Feed{IndicatorType: "IP"})
	if !HasError(issues) {
		t.Fatalf("expected error for missing url")
	}
}

// TestValidateFeed_MissingTypeIsWarning verifies an absent indicator type
// does not fail validation.
func TestValidateFeed_MissingTypeIsWarning(t *testing.T) {
	t.Parallel()

	issues := ValidateFeed(Feed{URL: "https://example.org/f"})
	if HasError(issues) {
		t.Fatalf("missing type should be a warning, got %v", issues)
	}
	found := false
	for _, iss := range issues {
		if iss.Severity == SeverityWarning && iss.Path == "indicator_type" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected indicator_type warning, got %v", issues)
	}
}

func TestValidateFeed_HTML(t *testing.T) {
	t.Parallel()

	base := Feed{
		URL:           "https://example.org/list.html",
		Format:        "html",
		IndicatorType: "IP",
	}

	// Missing block.
	if issues := ValidateFeed(base); !HasError(issues) {
		t.Fatalf("expected error for missing html block")
	}

	// No value mapping.
	f := base
	f.HTML = &HTMLExtract{
		RecordSelector: "tr",
		Mappings:       []HTMLMapping{{Selector: "td", Field: "other"}},
	}
	issues := ValidateFeed(f)
	if !HasError(issues) {
		t.Fatalf("expected error for missing value mapping")
	}

	// Valid.
	f.HTML.Mappings = append(f.HTML.Mappings, HTMLMapping{Selector: "td.ip", Field: "value"})
	if issues := ValidateFeed(f); HasError(issues) {
		t.Fatalf("unexpected errors: %v", issues)
	}
}

func TestValidateFeed_Sink(t *testing.T) {
	t.Parallel()

	f := Feed{URL: "https://example.org/f", IndicatorType: "IP"}

	f.Sink = Sink{Kind: "oracle"}
	if issues := ValidateFeed(f); !HasError(issues) {
		t.Fatalf("expected error for unsupported sink kind")
	}

	f.Sink = Sink{Kind: "postgres"}
	issues := ValidateFeed(f)
	if !HasError(issues) {
		t.Fatalf("expected error for sink without dsn")
	}
	found := false
	for _, iss := range issues {
		if iss.Path == "sink.dsn" && strings.Contains(iss.Message, "requires a dsn") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sink.dsn error, got %v", issues)
	}

	f.Sink = Sink{Kind: "postgres", DSN: "postgres://localhost/ind"}
	if issues := ValidateFeed(f); HasError(issues) {
		t.Fatalf("unexpected errors: %v", issues)
	}
}
