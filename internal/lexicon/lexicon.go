// Package lexicon loads the category tables and scoring weights used by the
// classifier. A Table is built once, validated, compiled and then only read.
package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Category names the classifier scores by name. A table may omit any of
// them; missing categories score zero.
const (
	Hostility    = "hostility"
	Affection    = "affection"
	Truth        = "truth"
	Fact         = "fact"
	Lie          = "lie"
	Manipulation = "manipulation"
	Structural   = "structural"
	Extreme      = "extreme"
	Anomaly      = "anomaly"
)

// DetectorRepetition flags a word of four or more letters repeated at least
// three times in a row. RE2 has no backreferences, so it runs in code.
const DetectorRepetition = "repetition"

//go:embed categories.yaml
var defaultTables []byte

var validate = validator.New()

// ErrInvalidTable is returned when a table fails validation or compilation.
var ErrInvalidTable = errors.New("invalid lexicon table")

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch sev := Severity(raw); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		*s = sev
		return nil
	default:
		return fmt.Errorf("invalid value for severity: %q", raw)
	}
}

// File is the on-disk layout of a table.
type File struct {
	Categories []Category `yaml:"categories" validate:"required,min=1,dive"`
	Weights    Weights    `yaml:"weights"`
}

type Category struct {
	Name        string    `yaml:"name" validate:"required"`
	Description string    `yaml:"description"`
	Weight      float64   `yaml:"weight" validate:"gt=0,lte=1"`
	Cap         float64   `yaml:"cap" validate:"gte=0,lte=1"`
	Override    bool      `yaml:"override"`
	Patterns    []Pattern `yaml:"patterns" validate:"required,min=1,dive"`
}

type Pattern struct {
	ID          string   `yaml:"id" validate:"required"`
	Description string   `yaml:"description"`
	Regex       string   `yaml:"regex" validate:"required_without=Detector"`
	Detector    string   `yaml:"detector" validate:"omitempty,oneof=repetition"`
	Weight      float64  `yaml:"weight" validate:"gte=0,lte=1"`
	Severity    Severity `yaml:"severity"`

	compiled *regexp.Regexp
}

// Regexp returns the compiled expression, or nil for detector patterns.
func (p Pattern) Regexp() *regexp.Regexp {
	return p.compiled
}

// MatchWeight is the pattern's own weight, falling back to the category's.
func (c Category) MatchWeight(p Pattern) float64 {
	if p.Weight > 0 {
		return p.Weight
	}
	return c.Weight
}

// Weights holds every blending coefficient and threshold. None of these
// values carry meaning beyond tuning; they live in config so they can change
// without a rebuild.
type Weights struct {
	Derived    DerivedWeights    `yaml:"derived"`
	Indices    IndexWeights      `yaml:"indices"`
	Confidence ConfidenceWeights `yaml:"confidence"`
	Warnings   WarningThresholds `yaml:"warnings"`
	Status     []Rule            `yaml:"status" validate:"required,min=1,dive"`
	RiskLevels []Rule            `yaml:"risk_levels" validate:"required,min=1,dive"`
}

type DerivedWeights struct {
	AffectionToTruth      float64 `yaml:"affection_to_truth"`
	ManipulationToLie     float64 `yaml:"manipulation_to_lie"`
	CoherenceBase         float64 `yaml:"coherence_base"`
	StructuralToCoherence float64 `yaml:"structural_to_coherence"`
	AnomalyToCoherence    float64 `yaml:"anomaly_to_coherence"`
	AuthenticityBase      float64 `yaml:"authenticity_base"`
	AuthenticityGain      float64 `yaml:"authenticity_gain"`
	IntegrityBase         float64 `yaml:"integrity_base"`
	StructuralToIntegrity float64 `yaml:"structural_to_integrity"`
	ExtremeToIntegrity    float64 `yaml:"extreme_to_integrity"`
	AnomalyToIntegrity    float64 `yaml:"anomaly_to_integrity"`
}

type IndexWeights struct {
	Truth struct {
		Truth        float64 `yaml:"truth"`
		Authenticity float64 `yaml:"authenticity"`
		Coherence    float64 `yaml:"coherence"`
		Lie          float64 `yaml:"lie"`
		Manipulation float64 `yaml:"manipulation"`
	} `yaml:"truth"`
	Integrity struct {
		Coherence           float64 `yaml:"coherence"`
		StructuralIntegrity float64 `yaml:"structural_integrity"`
	} `yaml:"integrity"`
	Risk struct {
		Manipulation   float64 `yaml:"manipulation"`
		Lie            float64 `yaml:"lie"`
		Inauthenticity float64 `yaml:"inauthenticity"`
		Extreme        float64 `yaml:"extreme"`
	} `yaml:"risk"`
	Awakening struct {
		Truth     float64 `yaml:"truth"`
		Affection float64 `yaml:"affection"`
	} `yaml:"awakening"`
}

type ConfidenceWeights struct {
	Discernment float64 `yaml:"discernment" validate:"gte=0,lte=1"`
	Stability   float64 `yaml:"stability" validate:"gte=0,lte=1"`
	Safety      float64 `yaml:"safety" validate:"gte=0,lte=1"`
	Override    float64 `yaml:"override" validate:"gte=0,lte=1"`
}

type WarningThresholds struct {
	RiskAtLeast       float64 `yaml:"risk_at_least"`
	ManipulationAbove float64 `yaml:"manipulation_above"`
	ExtremeAbove      float64 `yaml:"extreme_above"`
}

// Rule is one step of an ordered threshold cascade. Unset bounds always hold,
// so a rule with only a label is a catch-all.
type Rule struct {
	Label        string   `yaml:"label" validate:"required"`
	TruthAtLeast *float64 `yaml:"truth_at_least"`
	RiskAtLeast  *float64 `yaml:"risk_at_least"`
	RiskBelow    *float64 `yaml:"risk_below"`
}

// Holds reports whether the rule accepts the given truth and risk indices.
func (r Rule) Holds(truth, risk float64) bool {
	if r.TruthAtLeast != nil && truth < *r.TruthAtLeast {
		return false
	}
	if r.RiskAtLeast != nil && risk < *r.RiskAtLeast {
		return false
	}
	if r.RiskBelow != nil && risk >= *r.RiskBelow {
		return false
	}
	return true
}

// Table is the immutable, compiled form of a File.
type Table struct {
	categories []Category
	byName     map[string]int
	weights    Weights
}

// Default returns the table embedded in the binary.
func Default() (*Table, error) {
	return Parse(nil)
}

// MustDefault is Default for package-level initialisation and tests.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// LoadFile reads a table from disk. Sections the file leaves out keep their
// embedded defaults.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes data over the embedded defaults, then validates and compiles
// the result.
func Parse(data []byte) (*Table, error) {
	var f File
	if err := yaml.Unmarshal(defaultTables, &f); err != nil {
		return nil, fmt.Errorf("failed to decode embedded lexicon: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
		}
	}
	return New(f)
}

// New validates f and compiles its patterns into a Table.
func New(f File) (*Table, error) {
	for i := range f.Categories {
		if f.Categories[i].Cap == 0 {
			f.Categories[i].Cap = 1
		}
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}

	t := &Table{
		categories: make([]Category, len(f.Categories)),
		byName:     make(map[string]int, len(f.Categories)),
		weights:    f.Weights,
	}
	for i, c := range f.Categories {
		if _, dup := t.byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidTable, c.Name)
		}
		patterns := make([]Pattern, len(c.Patterns))
		for j, p := range c.Patterns {
			if p.Regex != "" {
				re, err := regexp.Compile(p.Regex)
				if err != nil {
					return nil, fmt.Errorf("%w: failed to compile %s/%s: %v", ErrInvalidTable, c.Name, p.ID, err)
				}
				p.compiled = re
			}
			patterns[j] = p
		}
		c.Patterns = patterns
		t.categories[i] = c
		t.byName[c.Name] = i
	}
	return t, nil
}

// Categories returns the categories in table order.
func (t *Table) Categories() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

func (t *Table) Category(name string) (Category, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Category{}, false
	}
	return t.categories[i], true
}

func (t *Table) Weights() Weights {
	return t.weights
}

// PatternCount is the total number of patterns across all categories.
func (t *Table) PatternCount() int {
	n := 0
	for _, c := range t.categories {
		n += len(c.Patterns)
	}
	return n
}
