// Package patterns provides the static attack pattern library for the rule
// engine. All regexes are compiled once at load and shared read-only across
// concurrent evaluations.
//
// Design principles:
// - COMPILE ONCE: a Library is immutable after Load; evaluation never compiles
// - FAIL CLOSED: one malformed rule aborts startup rather than silently
//   weakening detection
// - DATA, NOT LOGIC: the severity table is a tunable asset, replaceable per
//   category via a YAML overlay
package patterns

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Severity is the tier of a rule, OWASP CRS style.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
	SeverityWarning  Severity = "WARNING"
	SeverityNotice   Severity = "NOTICE"
)

// severityScores maps tiers to their anomaly score contribution.
var severityScores = map[Severity]int{
	SeverityCritical: 5,
	SeverityError:    4,
	SeverityWarning:  3,
	SeverityNotice:   2,
}

// Score returns the anomaly score contribution of the tier, 0 for unknown.
func (s Severity) Score() int {
	return severityScores[s]
}

// Valid reports whether the tier is one of the four known severities.
func (s Severity) Valid() bool {
	_, ok := severityScores[s]
	return ok
}

// RuleSpec is one uncompiled rule in a category table.
type RuleSpec struct {
	Expr     string
	Severity Severity
}

// CategorySpec is one uncompiled category in the shipped table or an overlay.
type CategorySpec struct {
	Name  string
	Rules []RuleSpec
}

// Rule is a compiled pattern with its tier and stable identifier.
type Rule struct {
	ID       string         // e.g. "sql-injection-003"
	Regex    *regexp.Regexp // compiled with (?is), never nil
	Severity Severity
}

// Category is an ordered, compiled rule list for one attack class.
type Category struct {
	Name  string
	Rules []Rule
}

// Library is the full compiled pattern table. Immutable after Load;
// safe for concurrent use without locking.
type Library struct {
	categories []Category
	byName     map[string]int
}

// Load compiles the shipped category table, then applies the overlay file if
// path is non-empty. Any malformed regex or unknown severity is a fatal load
// error: the library fails closed rather than skipping a broken rule.
func Load(overlayPath string) (*Library, error) {
	specs := builtinCategories
	if overlayPath != "" {
		overlay, err := readOverlay(overlayPath)
		if err != nil {
			return nil, err
		}
		specs = applyOverlay(specs, overlay)
	}
	return compile(specs)
}

// MustLoad is Load without an overlay, panicking on a broken builtin table.
// Intended for tests; main should use Load and report the error.
func MustLoad() *Library {
	lib, err := Load("")
	if err != nil {
		panic(err)
	}
	return lib
}

func compile(specs []CategorySpec) (*Library, error) {
	lib := &Library{
		categories: make([]Category, 0, len(specs)),
		byName:     make(map[string]int, len(specs)),
	}

	for _, cs := range specs {
		if cs.Name == "" {
			return nil, fmt.Errorf("pattern library: category with empty name")
		}
		if _, dup := lib.byName[cs.Name]; dup {
			return nil, fmt.Errorf("pattern library: duplicate category %q", cs.Name)
		}

		cat := Category{Name: cs.Name, Rules: make([]Rule, 0, len(cs.Rules))}
		slug := slugify(cs.Name)

		for i, rs := range cs.Rules {
			if !rs.Severity.Valid() {
				return nil, fmt.Errorf("pattern library: category %q rule %d: unknown severity %q", cs.Name, i+1, rs.Severity)
			}
			// Case-insensitive with dot-matches-newline: rules must hit
			// regardless of casing tricks or payloads spread across lines.
			rx, err := regexp.Compile(`(?is)` + rs.Expr)
			if err != nil {
				return nil, fmt.Errorf("pattern library: category %q rule %d: %w", cs.Name, i+1, err)
			}
			cat.Rules = append(cat.Rules, Rule{
				ID:       fmt.Sprintf("%s-%03d", slug, i+1),
				Regex:    rx,
				Severity: rs.Severity,
			})
		}

		lib.byName[cs.Name] = len(lib.categories)
		lib.categories = append(lib.categories, cat)
	}

	return lib, nil
}

// Categories returns the compiled categories in table order.
// Callers must not mutate the returned slice.
func (l *Library) Categories() []Category {
	return l.categories
}

// Get returns the named category, or nil if absent.
func (l *Library) Get(name string) *Category {
	if i, ok := l.byName[name]; ok {
		return &l.categories[i]
	}
	return nil
}

// CategoryNames returns the category names in table order.
func (l *Library) CategoryNames() []string {
	names := make([]string, len(l.categories))
	for i, c := range l.categories {
		names[i] = c.Name
	}
	return names
}

// RuleCount returns the total number of compiled rules.
func (l *Library) RuleCount() int {
	n := 0
	for _, c := range l.categories {
		n += len(c.Rules)
	}
	return n
}

func slugify(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '-' || r == '_':
			if len(out) > 0 && out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		}
	}
	return string(out)
}

// ---------------------------------------------------------------------------
// YAML overlay
// ---------------------------------------------------------------------------

// overlayFile is the on-disk shape of a pattern overlay. A listed category
// replaces the builtin rule list of the same name wholesale; a new name
// appends a category at the end of the table.
type overlayFile struct {
	Categories []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Regex    string `yaml:"regex"`
			Severity string `yaml:"severity"`
		} `yaml:"rules"`
	} `yaml:"categories"`
}

func readOverlay(path string) ([]CategorySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pattern overlay: %w", err)
	}

	var f overlayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("pattern overlay %s: %w", path, err)
	}

	specs := make([]CategorySpec, 0, len(f.Categories))
	for _, c := range f.Categories {
		cs := CategorySpec{Name: c.Name}
		for _, r := range c.Rules {
			cs.Rules = append(cs.Rules, RuleSpec{Expr: r.Regex, Severity: Severity(r.Severity)})
		}
		specs = append(specs, cs)
	}
	return specs, nil
}

func applyOverlay(base, overlay []CategorySpec) []CategorySpec {
	merged := make([]CategorySpec, len(base))
	copy(merged, base)

	index := make(map[string]int, len(merged))
	for i, c := range merged {
		index[c.Name] = i
	}

	for _, o := range overlay {
		if i, ok := index[o.Name]; ok {
			merged[i] = o
		} else {
			index[o.Name] = len(merged)
			merged = append(merged, o)
		}
	}
	return merged
}
