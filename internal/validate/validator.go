// Package validate performs structural, semantic, and safety checks on
// metric view definitions before they reach the statement executor.
// Checks accumulate the maximal error set instead of stopping at the
// first fault. The expression checks are heuristic, pattern-based smell
// tests, advisory rather than a security boundary.
package validate

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"viewflow/internal/render"
)

// Result is the outcome of validating one definition. A definition
// either fully passes (zero errors) or fails; warnings never block
// unless the caller escalates them.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	FilePath string   `json:"file,omitempty"`
}

// OK reports whether the result passes, optionally promoting warnings
// to errors for this check only.
func (r Result) OK(strict bool) bool {
	if !r.Valid {
		return false
	}
	if strict && len(r.Warnings) > 0 {
		return false
	}
	return true
}

func merge(filePath string, results ...Result) Result {
	out := Result{FilePath: filePath}
	for _, r := range results {
		out.Errors = append(out.Errors, r.Errors...)
		out.Warnings = append(out.Warnings, r.Warnings...)
	}
	out.Valid = len(out.Errors) == 0
	return out
}

// fieldKind describes the expected shape of a parsed YAML value.
type fieldKind int

const (
	kindScalar fieldKind = iota
	kindString
	kindSequence
	kindMapping
)

func (k fieldKind) String() string {
	switch k {
	case kindScalar:
		return "scalar"
	case kindString:
		return "string"
	case kindSequence:
		return "sequence"
	case kindMapping:
		return "mapping"
	}
	return "unknown"
}

func matchesKind(v interface{}, k fieldKind) bool {
	switch k {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindSequence:
		_, ok := v.([]interface{})
		return ok
	case kindMapping:
		_, ok := v.(map[string]interface{})
		return ok
	case kindScalar:
		switch v.(type) {
		case []interface{}, map[string]interface{}, nil:
			return false
		}
		return true
	}
	return false
}

// fieldSpec is one entry in a schema description: required/optional
// field table evaluated generically, so adding a field is a table edit
// rather than a new conditional.
type fieldSpec struct {
	name     string
	kind     fieldKind
	required bool
}

// documentSchema describes the top level of a metric view definition.
var documentSchema = []fieldSpec{
	{"version", kindScalar, true},
	{"source", kindString, true},
	{"dimensions", kindSequence, true},
	{"measures", kindSequence, true},
	{"joins", kindSequence, false},
	{"filter", kindString, false},
}

// entrySchema describes each dimension and measure entry.
var entrySchema = []fieldSpec{
	{"name", kindString, true},
	{"expr", kindString, true},
}

// Destructive statements have no legitimate place in a read-only
// projection expression.
var dangerousKeywords = []string{"DROP", "DELETE", "TRUNCATE", "ALTER"}

// A measure without one of these is suspicious but not necessarily wrong.
var aggregateFunctions = []string{"SUM", "COUNT", "AVG", "MIN", "MAX", "COUNT_DISTINCT"}

var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`--`),          // line comments
	regexp.MustCompile(`(?s)/\*.*\*/`), // block comments
	regexp.MustCompile(`(?s);.*?;`),    // multiple statements
}

// Validator is a state-free checker over one parsed definition at a time.
type Validator struct{}

// New returns a Validator.
func New() *Validator {
	return &Validator{}
}

// ValidateStructure checks required fields, declared kinds, and the
// shape of every dimension and measure entry. Entry faults are reported
// per index without aborting the scan.
func (v *Validator) ValidateStructure(doc map[string]interface{}) Result {
	var errs []string

	for _, field := range documentSchema {
		value, present := doc[field.name]
		if !present {
			if field.required {
				errs = append(errs, fmt.Sprintf("missing required field: %s", field.name))
			}
			continue
		}
		if !matchesKind(value, field.kind) {
			errs = append(errs, fmt.Sprintf("field '%s' must be a %s", field.name, field.kind))
		}
	}

	errs = append(errs, v.validateEntries(doc, "dimensions", "dimension")...)
	errs = append(errs, v.validateEntries(doc, "measures", "measure")...)

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func (v *Validator) validateEntries(doc map[string]interface{}, field, label string) []string {
	seq, ok := doc[field].([]interface{})
	if !ok {
		return nil
	}

	var errs []string
	for i, raw := range seq {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			errs = append(errs, fmt.Sprintf("%s %d must be a mapping", label, i))
			continue
		}
		for _, spec := range entrySchema {
			if _, present := entry[spec.name]; !present && spec.required {
				errs = append(errs, fmt.Sprintf("%s %d missing required '%s' field", label, i, spec.name))
			}
		}
	}
	return errs
}

// expression is one SQL expression pulled out of a definition.
type expression struct {
	kind string
	name string
	text string
}

func collectExpressions(doc map[string]interface{}) []expression {
	var exprs []expression

	appendEntries := func(field, label string) {
		seq, _ := doc[field].([]interface{})
		for _, raw := range seq {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			text, ok := entry["expr"].(string)
			if !ok {
				continue
			}
			name, _ := entry["name"].(string)
			exprs = append(exprs, expression{kind: label, name: name, text: text})
		}
	}

	appendEntries("dimensions", "dimension")
	appendEntries("measures", "measure")

	if filter, ok := doc["filter"].(string); ok {
		exprs = append(exprs, expression{kind: "filter", name: "global_filter", text: filter})
	}
	return exprs
}

// ValidateExpressions inspects every dimension, measure, and filter
// expression for destructive keywords and unbalanced parentheses, and
// warns about measures that appear to lack aggregation.
func (v *Validator) ValidateExpressions(doc map[string]interface{}) Result {
	var errs, warns []string

	for _, expr := range collectExpressions(doc) {
		upper := strings.ToUpper(expr.text)

		for _, keyword := range dangerousKeywords {
			if strings.Contains(upper, keyword) {
				errs = append(errs,
					fmt.Sprintf("dangerous keyword '%s' found in %s '%s'", keyword, expr.kind, expr.name))
			}
		}

		if strings.Count(expr.text, "(") != strings.Count(expr.text, ")") {
			errs = append(errs,
				fmt.Sprintf("unbalanced parentheses in %s '%s': %s", expr.kind, expr.name, expr.text))
		}

		if expr.kind == "measure" {
			hasAgg := false
			for _, fn := range aggregateFunctions {
				if strings.Contains(upper, fn) {
					hasAgg = true
					break
				}
			}
			if !hasAgg {
				warns = append(warns,
					fmt.Sprintf("measure '%s' may be missing aggregation function", expr.name))
			}
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

// ValidateReferences checks that dimension and measure names are drawn
// from disjoint namespaces, and scans expressions for comment markers
// and multi-statement separators. The pattern scan only warns; it is
// deliberately conservative and never blocks deployment on its own.
func (v *Validator) ValidateReferences(doc map[string]interface{}) Result {
	var errs, warns []string

	names := func(field string) map[string]bool {
		set := make(map[string]bool)
		seq, _ := doc[field].([]interface{})
		for _, raw := range seq {
			if entry, ok := raw.(map[string]interface{}); ok {
				if name, ok := entry["name"].(string); ok {
					set[name] = true
				}
			}
		}
		return set
	}

	dimensionNames := names("dimensions")
	measureNames := names("measures")

	var collisions []string
	for name := range dimensionNames {
		if measureNames[name] {
			collisions = append(collisions, name)
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		errs = append(errs,
			fmt.Sprintf("name collisions between dimensions and measures: %s", strings.Join(collisions, ", ")))
	}

	for _, expr := range collectExpressions(doc) {
		if expr.kind == "filter" {
			continue
		}
		for _, pattern := range unsafePatterns {
			if pattern.MatchString(expr.text) {
				warns = append(warns,
					fmt.Sprintf("potentially unsafe pattern found in expression: %s", truncate(expr.text, 50)))
				break
			}
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

// ValidateDocument runs all checks over one parsed definition and unions
// their errors and warnings.
func (v *Validator) ValidateDocument(doc map[string]interface{}, filePath string) Result {
	if doc == nil {
		return Result{Valid: false, Errors: []string{"empty YAML file"}, FilePath: filePath}
	}
	return merge(filePath,
		v.ValidateStructure(doc),
		v.ValidateExpressions(doc),
		v.ValidateReferences(doc),
	)
}

// ValidateFile validates a definition file on disk. Template-suffixed
// files are reported immediately valid: they must be rendered first and
// validated as rendered text, so the validator never sees unsubstituted
// placeholder syntax.
func (v *Validator) ValidateFile(path string) Result {
	if render.IsTemplate(path) {
		return Result{Valid: true, FilePath: path}
	}

	data, err := os.ReadFile(path) // #nosec G304 - caller controls discovery
	if err != nil {
		return Result{
			Valid:    false,
			Errors:   []string{fmt.Sprintf("file reading error: %v", err)},
			FilePath: path,
		}
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Result{
			Valid:    false,
			Errors:   []string{fmt.Sprintf("YAML parsing error: %v", err)},
			FilePath: path,
		}
	}

	return v.ValidateDocument(doc, path)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
