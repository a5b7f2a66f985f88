// Package config defines the JSON configuration consumed by the adapter
// commands, plus up-front validation.
//
// Configuration errors are reported before any network activity: a feed with
// a malformed extraction rule must fail at setup time, not in the middle of a
// fetch.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"

	"secint/internal/feed/tmpl"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path points at the offending config field
// using dotted notation (e.g. "fields.dshield_nattacks.regex").
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Rule is one extraction rule as it appears in config: a regular expression
// plus an optional transform template.
//
// Semantics:
//   - Regex is searched (not anchored) against each line.
//   - Transform expands capture groups into the derived value using
//     \1..\9, \g<name>, \g<0> references. When empty, the entire match is
//     used as the value.
type Rule struct {
	Regex     string `json:"regex"`
	Transform string `json:"transform,omitempty"`
}

// HTMLMapping is one field mapping for HTML-published feeds.
//
// Field "value" designates the indicator value; every other field name
// becomes an auxiliary attribute on the record.
type HTMLMapping struct {
	Selector string `json:"selector"`
	Attr     string `json:"attr,omitempty"` // extract attribute instead of text
	Field    string `json:"field"`
	Match    string `json:"match,omitempty"` // optional regex filter
}

// HTMLExtract configures record-mode extraction from an HTML page.
type HTMLExtract struct {
	RecordSelector string        `json:"record_selector"`
	Mappings       []HTMLMapping `json:"mappings"`
}

// Credentials holds basic-auth credentials for the feed URL.
type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Sink selects where fetched indicators are submitted. An empty Kind means
// JSONL on stdout.
type Sink struct {
	Kind string `json:"kind,omitempty"` // "", "sqlite", "postgres", "mssql"
	DSN  string `json:"dsn,omitempty"`
}

// Feed is the full configuration for one plain-text (or HTML) feed.
type Feed struct {
	Name           string          `json:"name"`
	URL            string          `json:"url"`
	Format         string          `json:"format,omitempty"` // "text" (default) or "html"
	Insecure       bool            `json:"insecure,omitempty"`
	Credentials    *Credentials    `json:"credentials,omitempty"`
	IgnoreRegex    string          `json:"ignore_regex,omitempty"`
	Indicator      *Rule           `json:"indicator,omitempty"`
	Fields         map[string]Rule `json:"fields,omitempty"`
	HTML           *HTMLExtract    `json:"html,omitempty"`
	Encoding       string          `json:"encoding,omitempty"`
	PollingTimeout int             `json:"polling_timeout,omitempty"` // seconds
	UserAgent      string          `json:"user_agent,omitempty"`
	IndicatorType  string          `json:"indicator_type"`
	BatchSize      int             `json:"batch_size,omitempty"`
	Sink           Sink            `json:"sink,omitempty"`
}

// Defaults applied when the corresponding config field is zero.
const (
	DefaultPollingTimeout = 20   // seconds
	DefaultBatchSize      = 2000 // records per submit batch
)

// LoadFeed reads and decodes a feed config file. Validation is separate so
// callers can report all issues at once.
func LoadFeed(path string) (Feed, error) {
	var f Feed

	b, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("parse config json: %w", err)
	}
	return f, nil
}

// ValidateFeed checks a feed config and returns all findings.
//
// Edge cases:
//   - A configured rule with an empty regex is an error (the rule cannot
//     match anything, and silently skipping it would hide a typo).
//   - Regex syntax is checked here so a bad pattern fails before any HTTP
//     request is made.
//   - Transform templates are parsed against their compiled pattern, so a
//     dangling group reference is reported by -validate, not at startup.
//   - A rule with capture groups but no transform is legal; the extractor
//     falls back to whole-match and logs a warning at runtime.
func ValidateFeed(f Feed) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if f.URL == "" {
		errf("url", "feed url is required")
	}
	if f.IndicatorType == "" {
		warnf("indicator_type", "no indicator type configured; records will carry an empty type")
	}

	switch f.Format {
	case "", "text":
		if f.Indicator != nil {
			validateRule("indicator", *f.Indicator, errf)
		}
		for _, name := range sortedFieldNames(f.Fields) {
			validateRule("fields."+name, f.Fields[name], errf)
		}
		if f.IgnoreRegex != "" {
			if _, err := regexp.Compile(f.IgnoreRegex); err != nil {
				errf("ignore_regex", "invalid regex: %v", err)
			}
		}
	case "html":
		if f.HTML == nil {
			errf("html", "format html requires an html extraction block")
			break
		}
		if f.HTML.RecordSelector == "" {
			errf("html.record_selector", "record selector is required")
		}
		if len(f.HTML.Mappings) == 0 {
			errf("html.mappings", "at least one mapping is required")
		}
		hasValue := false
		for i, m := range f.HTML.Mappings {
			path := fmt.Sprintf("html.mappings[%d]", i)
			if m.Selector == "" {
				errf(path+".selector", "selector is required")
			}
			if m.Field == "" {
				errf(path+".field", "field name is required")
			}
			if m.Field == "value" {
				hasValue = true
			}
			if m.Match != "" {
				if _, err := regexp.Compile(m.Match); err != nil {
					errf(path+".match", "invalid regex: %v", err)
				}
			}
		}
		if !hasValue {
			errf("html.mappings", `no mapping targets field "value"`)
		}
	default:
		errf("format", "unsupported format %q (want text or html)", f.Format)
	}

	if f.PollingTimeout < 0 {
		errf("polling_timeout", "must be >= 0 seconds")
	}
	if f.BatchSize < 0 {
		errf("batch_size", "must be >= 0")
	}

	switch f.Sink.Kind {
	case "", "sqlite", "postgres", "mssql":
	default:
		errf("sink.kind", "unsupported sink kind %q", f.Sink.Kind)
	}
	if f.Sink.Kind != "" && f.Sink.DSN == "" {
		errf("sink.dsn", "sink kind %q requires a dsn", f.Sink.Kind)
	}

	return issues
}

// HasError reports whether any issue is severity error.
func HasError(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func validateRule(path string, r Rule, errf func(path, format string, a ...any)) {
	if r.Regex == "" {
		errf(path+".regex", "extraction rule is missing its regex")
		return
	}
	re, err := regexp.Compile(r.Regex)
	if err != nil {
		errf(path+".regex", "invalid regex: %v", err)
		return
	}
	if r.Transform != "" {
		if _, err := tmpl.Parse(r.Transform, re); err != nil {
			errf(path+".transform", "%v", err)
		}
	}
}

// sortedFieldNames keeps validation output deterministic.
func sortedFieldNames(fields map[string]Rule) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
