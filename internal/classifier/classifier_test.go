package classifier

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/zombar/aletheia/internal/lexicon"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	table, err := lexicon.Default()
	if err != nil {
		t.Fatalf("Failed to load default lexicon: %v", err)
	}
	return New(table, DefaultConfig())
}

func TestClassifyAffection(t *testing.T) {
	c := newTestClassifier(t)
	baseline := c.Classify("The weather report was read out this morning.")
	result := c.Classify("I fucking love you, my brother")

	affection := 0
	for _, m := range result.Matches {
		if m.Category == lexicon.Affection {
			affection++
		}
	}
	if affection < 1 {
		t.Errorf("Expected at least one affection match, got %v", result.Matches)
	}
	if result.Flagged || result.Status == StatusFlagged {
		t.Errorf("Affection must not be flagged, got status %s", result.Status)
	}
	if result.Scores[ScoreTruth] <= baseline.Scores[ScoreTruth] {
		t.Errorf("Expected truth score to rise above %f, got %f", baseline.Scores[ScoreTruth], result.Scores[ScoreTruth])
	}
	if result.Indices.Truth <= baseline.Indices.Truth {
		t.Errorf("Expected truth index to rise above %f, got %f", baseline.Indices.Truth, result.Indices.Truth)
	}
}

func TestClassifyGaslighting(t *testing.T) {
	c := newTestClassifier(t)
	result := c.Classify("you're crazy, that never happened")

	found := false
	for _, m := range result.Matches {
		if m.Category == lexicon.Lie && m.Text == "you're crazy" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected lie match for \"you're crazy\", got %v", result.Matches)
	}
	if result.Scores[ScoreLie] <= 0 {
		t.Errorf("Expected positive lie score, got %f", result.Scores[ScoreLie])
	}
}

func TestHostilityOverride(t *testing.T) {
	c := newTestClassifier(t)

	tests := []string{
		"kill yourself",
		"I love you my brother, honestly, therefore the evidence shows... kill yourself",
		"KILL YOURSELF now",
		"i hope you die",
		"I'll kill you tomorrow",
		"I’ll kill you tomorrow",
		"I’m going to kill you",
		"im gonna hurt you",
	}

	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			result := c.Classify(text)
			if result.Status != StatusFlagged {
				t.Errorf("Expected status %s, got %s", StatusFlagged, result.Status)
			}
			if !result.Flagged {
				t.Error("Expected flagged to be true")
			}
			if result.Scores[ScoreLie] != 1.0 {
				t.Errorf("Expected lie score 1.0, got %f", result.Scores[ScoreLie])
			}
			if result.RiskLevel != RiskCritical {
				t.Errorf("Expected risk level %s, got %s", RiskCritical, result.RiskLevel)
			}
			if result.Indices.Risk != 10 {
				t.Errorf("Expected risk index 10, got %f", result.Indices.Risk)
			}
			for _, m := range result.Matches {
				if m.Category != lexicon.Hostility {
					t.Errorf("Override result should only carry hostility matches, got %v", m)
				}
			}
		})
	}
}

func TestMatchesReferToOriginalText(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name     string
		text     string
		match    string
		position int
	}{
		{"upper case", "KILL YOURSELF now", "KILL YOURSELF", 0},
		// İ lower-cases to a one-byte i
		{"shrinking rune", "İstanbul, kill yourself", "kill yourself", len("İstanbul, ")},
		{"mixed case", "Well, Kill  Yourself", "Kill  Yourself", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.text)
			if len(result.Matches) == 0 {
				t.Fatalf("Expected a match in %q", tt.text)
			}
			m := result.Matches[0]
			if m.Text != tt.match {
				t.Errorf("Expected match text %q, got %q", tt.match, m.Text)
			}
			if m.Position != tt.position {
				t.Errorf("Expected position %d, got %d", tt.position, m.Position)
			}
			if got := tt.text[m.Position : m.Position+len(m.Text)]; got != m.Text {
				t.Errorf("Position does not point at the match: %q", got)
			}
		})
	}
}

func TestFoldOffsets(t *testing.T) {
	f := fold("AİB\xffc")
	if f.lower != "aib\xffc" {
		t.Errorf("Expected lower-cased copy %q, got %q", "aib\xffc", f.lower)
	}
	if len(f.offsets) != len(f.lower)+1 {
		t.Fatalf("Expected %d offsets, got %d", len(f.lower)+1, len(f.offsets))
	}
	text, pos := f.span(2, 5)
	if text != "B\xffc" || pos != 3 {
		t.Errorf("Expected span \"B\\xffc\" at 3, got %q at %d", text, pos)
	}
}

func TestDeterminism(t *testing.T) {
	c := newTestClassifier(t)
	texts := []string{
		"",
		"Experts say you must act fast, right now, or you'll regret it.",
		"Therefore, because the data shows 45% growth, the claim holds.",
		"never never never always none everything nothing",
	}
	for _, text := range texts {
		a := c.Classify(text)
		b := c.Classify(text)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("Classify(%q) is not deterministic:\n%+v\n%+v", text, a, b)
		}
	}
}

func TestHostilityMonotonicity(t *testing.T) {
	c := newTestClassifier(t)
	bases := []string{
		"you're crazy, that never happened",
		"after all i've done, you owe me",
		"a calm and honest note",
	}

	for _, base := range bases {
		prev := c.Classify(base)
		text := base
		for i := 0; i < 3; i++ {
			text += " kill yourself"
			next := c.Classify(text)
			if next.Scores[ScoreLie] < prev.Scores[ScoreLie] {
				t.Errorf("Lie score decreased from %f to %f for %q", prev.Scores[ScoreLie], next.Scores[ScoreLie], text)
			}
			if next.Scores[ScoreManipulation] < prev.Scores[ScoreManipulation] {
				t.Errorf("Manipulation score decreased from %f to %f for %q", prev.Scores[ScoreManipulation], next.Scores[ScoreManipulation], text)
			}
			prev = next
		}
	}
}

func TestScoreBounds(t *testing.T) {
	c := newTestClassifier(t)
	texts := []string{
		"",
		"a",
		strings.Repeat("you owe me. experts say act fast! if you loved me. ", 200),
		strings.Repeat("truth eternal love grace mercy light unity therefore because. ", 200),
		strings.Repeat("always never none totally completely. ", 200),
		strings.Repeat("data evidence 2024-01-01 45% record. ", 200),
		"kill yourself",
	}

	for _, text := range texts {
		result := c.Classify(text)
		for k, v := range result.Scores {
			if v < 0 || v > 1 {
				t.Errorf("Score %s out of [0,1]: %f", k, v)
			}
		}
		for k, v := range result.Categories {
			if v < 0 || v > 1 {
				t.Errorf("Category %s out of [0,1]: %f", k, v)
			}
		}
		for name, v := range map[string]float64{
			"truth":     result.Indices.Truth,
			"integrity": result.Indices.Integrity,
			"risk":      result.Indices.Risk,
			"awakening": result.Indices.Awakening,
		} {
			if v < 0 || v > 10 {
				t.Errorf("Index %s out of [0,10]: %f", name, v)
			}
		}
		if result.Confidence < 0 || result.Confidence > 1 {
			t.Errorf("Confidence out of [0,1]: %f", result.Confidence)
		}
	}
}

func TestMatchesAreCountedNotDeduplicated(t *testing.T) {
	c := newTestClassifier(t)
	result := c.Classify("you owe me. you owe me. you owe me.")

	n := 0
	for _, m := range result.Matches {
		if m.PatternID == "M002" {
			n++
		}
	}
	if n != 3 {
		t.Errorf("Expected 3 matches, got %d", n)
	}

	single := c.Classify("you owe me.")
	if result.Categories[lexicon.Manipulation] <= single.Categories[lexicon.Manipulation] {
		t.Errorf("Expected repeated matches to raise the category score")
	}
}

func TestCategoryScoreSaturates(t *testing.T) {
	c := newTestClassifier(t)
	result := c.Classify(strings.Repeat("you owe me ", 50))
	if result.Categories[lexicon.Manipulation] != 1.0 {
		t.Errorf("Expected manipulation to saturate at 1.0, got %f", result.Categories[lexicon.Manipulation])
	}
}

func TestRepetitionAnomaly(t *testing.T) {
	c := newTestClassifier(t)

	result := c.Classify("this will never never never change")
	found := false
	for _, m := range result.Matches {
		if m.PatternID == "A001" {
			found = true
			if m.Text != "never never never" {
				t.Errorf("Expected repetition text 'never never never', got %q", m.Text)
			}
		}
	}
	if !found {
		t.Error("Expected repetition anomaly")
	}

	result = c.Classify("it is so so so good")
	for _, m := range result.Matches {
		if m.PatternID == "A001" {
			t.Errorf("Short words should not count as repetition: %v", m)
		}
	}
}

func TestFindRepetitions(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"", 0},
		{"stop stop", 0},
		{"stop stop stop", 1},
		{"stop, stop, stop and wait wait wait wait", 2},
		{"stop stop go stop", 0},
	}
	for _, tt := range tests {
		if got := len(findRepetitions(tt.input)); got != tt.expected {
			t.Errorf("findRepetitions(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}

func TestCustomTableInjection(t *testing.T) {
	table, err := lexicon.Parse([]byte(`
categories:
  - name: truth
    weight: 0.5
    patterns:
      - id: K1
        regex: '\bkiwi\b'
  - name: banned
    weight: 1
    override: true
    patterns:
      - id: B1
        regex: '\bdurian\b'
`))
	if err != nil {
		t.Fatalf("Failed to parse custom table: %v", err)
	}
	c := New(table, DefaultConfig())

	result := c.Classify("kiwi kiwi")
	if result.Categories[lexicon.Truth] != 1.0 {
		t.Errorf("Expected truth category 1.0, got %f", result.Categories[lexicon.Truth])
	}
	if result.Categories[lexicon.Lie] != 0 {
		t.Errorf("Missing categories should score zero, got %f", result.Categories[lexicon.Lie])
	}

	// default hostility phrases are not in this table
	if c.Classify("kill yourself").Flagged {
		t.Error("Custom table without hostility should not flag")
	}
	if !c.Classify("a durian appears").Flagged {
		t.Error("Custom override category should flag")
	}
}

func TestStatusCascade(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		truth, risk float64
		status      string
		level       string
	}{
		{9, 1, "TRUTH_ALIGNED", "LOW"},
		{8, 2, "TRUTH_SEEKING", "LOW"},
		{6.5, 2.5, "TRUTH_SEEKING", "LOW"},
		{4, 4.9, "NEUTRAL", "MEDIUM"},
		{2, 7, "HIGH_RISK", "CRITICAL"},
		{9, 8, "HIGH_RISK", "CRITICAL"},
		{3, 5, "CAUTION_ADVISED", "HIGH"},
		{3, 3, "UNCLEAR", "MEDIUM"},
		{0, 0.5, "UNCLEAR", "MINIMAL"},
	}

	for _, tt := range tests {
		if got := c.status.pick(tt.truth, tt.risk); got != tt.status {
			t.Errorf("status(%v, %v) = %s, expected %s", tt.truth, tt.risk, got, tt.status)
		}
		if got := c.risk.pick(tt.truth, tt.risk); got != tt.level {
			t.Errorf("risk(%v, %v) = %s, expected %s", tt.truth, tt.risk, got, tt.level)
		}
	}
}

func TestCascadeFallback(t *testing.T) {
	ten := 10.0
	cc := newCascade([]lexicon.Rule{{Label: "ONLY", TruthAtLeast: &ten}}, StatusUnclear)
	if got := cc.pick(1, 1); got != StatusUnclear {
		t.Errorf("Expected fallback %s, got %s", StatusUnclear, got)
	}
}

func TestNeutralText(t *testing.T) {
	c := newTestClassifier(t)
	result := c.Classify("The train leaves at noon from the north platform.")

	if result.Scores[ScoreCoherence] != 0.5 {
		t.Errorf("Expected neutral coherence 0.5, got %f", result.Scores[ScoreCoherence])
	}
	if result.Scores[ScoreAuthenticity] != 0.5 {
		t.Errorf("Expected neutral authenticity 0.5, got %f", result.Scores[ScoreAuthenticity])
	}
	if len(result.Recommendations) != 1 {
		t.Errorf("Expected a single low-signal recommendation, got %v", result.Recommendations)
	}
	if result.Matches == nil {
		t.Error("Matches should be an empty slice, not nil")
	}
}

func TestManipulationRecommendations(t *testing.T) {
	c := newTestClassifier(t)
	result := c.Classify("After all I've done for you, you owe me. Act fast, if you loved me you would.")

	if len(result.Recommendations) < 3 {
		t.Errorf("Expected recommendations for each tactic, got %v", result.Recommendations)
	}
	if len(result.Warnings) == 0 {
		t.Error("Expected a manipulation warning")
	}
}

func TestStats(t *testing.T) {
	c := newTestClassifier(t)
	result := c.Classify("Héllo there. How are you?")
	if result.Stats.Characters != 25 {
		t.Errorf("Expected 25 characters, got %d", result.Stats.Characters)
	}
	if result.Stats.Words != 5 {
		t.Errorf("Expected 5 words, got %d", result.Stats.Words)
	}
	if result.Stats.Sentences != 2 {
		t.Errorf("Expected 2 sentences, got %d", result.Stats.Sentences)
	}
}

func TestValidateText(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		name  string
		text  string
		bound string
	}{
		{"too short", "short", BoundMin},
		{"minimum", "0123456789", ""},
		{"runes not bytes", strings.Repeat("é", 10), ""},
		{"too long", strings.Repeat("a", DefaultMaxLength+1), BoundMax},
		{"maximum", strings.Repeat("a", DefaultMaxLength), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateText(tt.text)
			if tt.bound == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrLengthConstraint) {
				t.Fatalf("Expected ErrLengthConstraint, got %v", err)
			}
			var lerr *LengthError
			if !errors.As(err, &lerr) {
				t.Fatalf("Expected *LengthError, got %T", err)
			}
			if lerr.Bound != tt.bound {
				t.Errorf("Expected bound %s, got %s", tt.bound, lerr.Bound)
			}
		})
	}

	if err := c.ValidateText(string([]byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8, 0xf7, 0xf6})); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for invalid UTF-8, got %v", err)
	}
}

func TestAnalyze(t *testing.T) {
	c := newTestClassifier(t)

	if _, err := c.Analyze("tiny"); !errors.Is(err, ErrLengthConstraint) {
		t.Errorf("Expected length error, got %v", err)
	}

	result, err := c.Analyze("you're crazy, that never happened")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Scores[ScoreLie] <= 0 {
		t.Errorf("Expected positive lie score, got %f", result.Scores[ScoreLie])
	}

	unbounded := New(c.Table(), Config{})
	if _, err := unbounded.Analyze(""); err != nil {
		t.Errorf("Zero bounds should disable validation, got %v", err)
	}
}
