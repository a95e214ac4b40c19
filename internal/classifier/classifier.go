// Package classifier scores text against the lexicon's category tables.
//
// Classify is a pure function of the input and the injected table: the same
// text and table always produce the same result.
package classifier

import (
	"fmt"
	"math"
	"sort"

	"github.com/zombar/aletheia/internal/lexicon"
	"github.com/zombar/aletheia/internal/models"
)

// Derived score keys
const (
	ScoreTruth               = "truth"
	ScoreFact                = "fact"
	ScoreLie                 = "lie"
	ScoreManipulation        = "manipulation"
	ScoreCoherence           = "coherence"
	ScoreAuthenticity        = "authenticity"
	ScoreStructuralIntegrity = "structural_integrity"
)

const (
	DefaultMinLength = 10
	DefaultMaxLength = 50000
)

// Config holds the calling-layer length bounds. Zero disables a bound.
type Config struct {
	MinLength int
	MaxLength int
}

func DefaultConfig() Config {
	return Config{MinLength: DefaultMinLength, MaxLength: DefaultMaxLength}
}

// Classifier performs lexical classification
type Classifier struct {
	table      *lexicon.Table
	categories []lexicon.Category
	weights    lexicon.Weights
	status     cascade
	risk       cascade
	cfg        Config
}

// New creates a Classifier over an immutable table
func New(table *lexicon.Table, cfg Config) *Classifier {
	w := table.Weights()
	return &Classifier{
		table:      table,
		categories: table.Categories(),
		weights:    w,
		status:     newCascade(w.Status, StatusUnclear),
		risk:       newCascade(w.RiskLevels, RiskMinimal),
		cfg:        cfg,
	}
}

// Table returns the table the classifier was built with
func (c *Classifier) Table() *lexicon.Table {
	return c.table
}

// Analyze validates text and then classifies it
func (c *Classifier) Analyze(text string) (models.Classification, error) {
	if err := c.ValidateText(text); err != nil {
		return models.Classification{}, err
	}
	return c.Classify(text), nil
}

// Classify scores text. It has no length limits and no side effects.
func (c *Classifier) Classify(text string) models.Classification {
	f := fold(text)
	stats := textStats(text)

	// Override categories short-circuit everything else, wherever they sit in
	// the table.
	for _, cat := range c.categories {
		if !cat.Override {
			continue
		}
		if matches := matchCategory(cat, f); len(matches) > 0 {
			return c.flagged(cat, matches, stats)
		}
	}

	raw := make(map[string]float64, len(c.categories))
	var matches []models.Match
	for _, cat := range c.categories {
		found := matchCategory(cat, f)
		raw[cat.Name] = categoryScore(cat, found)
		for _, m := range found {
			matches = append(matches, m.Match)
		}
	}

	scores := c.derive(raw)
	indices := c.combine(raw, scores)

	result := models.Classification{
		Status:     c.status.pick(indices.Truth, indices.Risk),
		RiskLevel:  c.risk.pick(indices.Truth, indices.Risk),
		Confidence: c.confidence(scores, indices, 1),
		Scores:     scores,
		Categories: raw,
		Indices:    indices,
		Matches:    matches,
		Stats:      stats,
	}
	result.Warnings = c.warnings(raw, indices)
	result.Recommendations = c.recommendations(matches)
	if result.Matches == nil {
		result.Matches = []models.Match{}
	}
	return result
}

type weightedMatch struct {
	models.Match
	weight float64
}

// matchCategory collects every match of every pattern, ordered by position.
// Patterns run against the lower-cased text; match text and positions refer
// to the original.
func matchCategory(cat lexicon.Category, f folded) []weightedMatch {
	var out []weightedMatch
	for _, p := range cat.Patterns {
		w := cat.MatchWeight(p)
		add := func(start, end int) {
			text, pos := f.span(start, end)
			out = append(out, weightedMatch{
				Match: models.Match{
					Category:  cat.Name,
					PatternID: p.ID,
					Text:      text,
					Position:  pos,
					Severity:  string(p.Severity),
				},
				weight: w,
			})
		}

		if p.Detector == lexicon.DetectorRepetition {
			for _, s := range findRepetitions(f.lower) {
				add(s.start, s.end)
			}
			continue
		}
		re := p.Regexp()
		if re == nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(f.lower, -1) {
			add(loc[0], loc[1])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// categoryScore is min(cap, sum of match weights)
func categoryScore(cat lexicon.Category, matches []weightedMatch) float64 {
	sum := 0.0
	for _, m := range matches {
		sum += m.weight
	}
	return math.Min(cat.Cap, sum)
}

func (c *Classifier) derive(raw map[string]float64) map[string]float64 {
	d := c.weights.Derived

	truth := clamp01(raw[lexicon.Truth] + d.AffectionToTruth*raw[lexicon.Affection])
	lie := clamp01(raw[lexicon.Lie] + d.ManipulationToLie*raw[lexicon.Manipulation])
	manipulation := raw[lexicon.Manipulation]

	return map[string]float64{
		ScoreTruth:        truth,
		ScoreFact:         clamp01(raw[lexicon.Fact]),
		ScoreLie:          lie,
		ScoreManipulation: manipulation,
		ScoreCoherence: clamp01(d.CoherenceBase +
			d.StructuralToCoherence*raw[lexicon.Structural] -
			d.AnomalyToCoherence*raw[lexicon.Anomaly]),
		ScoreAuthenticity: clamp01(d.AuthenticityBase +
			d.AuthenticityGain*(truth-manipulation-raw[lexicon.Lie])),
		ScoreStructuralIntegrity: clamp01(d.IntegrityBase +
			d.StructuralToIntegrity*raw[lexicon.Structural] -
			d.ExtremeToIntegrity*raw[lexicon.Extreme] -
			d.AnomalyToIntegrity*raw[lexicon.Anomaly]),
	}
}

func (c *Classifier) combine(raw, s map[string]float64) models.Indices {
	iw := c.weights.Indices
	return models.Indices{
		Truth: clamp10(iw.Truth.Truth*s[ScoreTruth] +
			iw.Truth.Authenticity*s[ScoreAuthenticity] +
			iw.Truth.Coherence*s[ScoreCoherence] +
			iw.Truth.Lie*s[ScoreLie] +
			iw.Truth.Manipulation*s[ScoreManipulation]),
		Integrity: clamp10(iw.Integrity.Coherence*s[ScoreCoherence] +
			iw.Integrity.StructuralIntegrity*s[ScoreStructuralIntegrity]),
		Risk: clamp10(iw.Risk.Manipulation*s[ScoreManipulation] +
			iw.Risk.Lie*s[ScoreLie] +
			iw.Risk.Inauthenticity*(1-s[ScoreAuthenticity]) +
			iw.Risk.Extreme*raw[lexicon.Extreme]),
		Awakening: clamp10(iw.Awakening.Truth*raw[lexicon.Truth] +
			iw.Awakening.Affection*raw[lexicon.Affection]),
	}
}

// confidence blends how decisive the scores are, how stable the subject is
// and how low the risk is
func (c *Classifier) confidence(s map[string]float64, idx models.Indices, stability float64) float64 {
	cw := c.weights.Confidence
	discernment := math.Max(s[ScoreTruth], math.Max(s[ScoreLie], s[ScoreFact]))
	return clamp01(cw.Discernment*discernment +
		cw.Stability*stability +
		cw.Safety*(1-idx.Risk/10))
}

func (c *Classifier) warnings(raw map[string]float64, idx models.Indices) []string {
	t := c.weights.Warnings
	var out []string
	if idx.Risk >= t.RiskAtLeast {
		out = append(out, fmt.Sprintf("elevated risk index %.1f", idx.Risk))
	}
	if raw[lexicon.Manipulation] > t.ManipulationAbove {
		out = append(out, "multiple manipulation patterns detected")
	}
	if raw[lexicon.Extreme] > t.ExtremeAbove {
		out = append(out, "heavy use of absolute language")
	}
	return out
}

// recommendations lists the advice attached to each triggered manipulation
// or lie pattern, once per pattern, in match order
func (c *Classifier) recommendations(matches []models.Match) []string {
	if len(matches) == 0 {
		return []string{"No notable patterns found; the text gives too little signal for a strong judgement."}
	}

	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		if m.Category != lexicon.Manipulation && m.Category != lexicon.Lie {
			continue
		}
		key := m.Category + "/" + m.PatternID
		if seen[key] {
			continue
		}
		seen[key] = true
		if desc := c.describe(m.Category, m.PatternID); desc != "" {
			out = append(out, desc)
		}
	}
	return out
}

func (c *Classifier) describe(category, patternID string) string {
	cat, ok := c.table.Category(category)
	if !ok {
		return ""
	}
	for _, p := range cat.Patterns {
		if p.ID == patternID {
			return p.Description
		}
	}
	return ""
}

// flagged builds the terminal result of a safety override
func (c *Classifier) flagged(cat lexicon.Category, found []weightedMatch, stats models.TextStats) models.Classification {
	matches := make([]models.Match, len(found))
	for i, m := range found {
		matches[i] = m.Match
	}

	raw := make(map[string]float64, len(c.categories))
	for _, other := range c.categories {
		raw[other.Name] = 0
	}
	raw[cat.Name] = categoryScore(cat, found)

	return models.Classification{
		Status:     StatusFlagged,
		RiskLevel:  RiskCritical,
		Flagged:    true,
		Confidence: c.weights.Confidence.Override,
		Scores: map[string]float64{
			ScoreTruth:               0,
			ScoreFact:                0,
			ScoreLie:                 1,
			ScoreManipulation:        1,
			ScoreCoherence:           0,
			ScoreAuthenticity:        0,
			ScoreStructuralIntegrity: 0,
		},
		Categories: raw,
		Indices:    models.Indices{Risk: 10},
		Matches:    matches,
		Warnings:   []string{fmt.Sprintf("%s content detected", cat.Name)},
		Recommendations: []string{
			"Do not engage with the message; report it or escalate to a moderator.",
		},
		Stats: stats,
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clamp10(v float64) float64 {
	return math.Max(0, math.Min(10, v))
}
