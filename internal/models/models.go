package models

import "time"

// Analysis is a persisted classification. It is never mutated after creation.
type Analysis struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	SubjectID string         `json:"subject_id,omitempty"` // Set when the text was tracked for drift
	Text      string         `json:"text"`
	Result    Classification `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}

// Classification is the output of a single classify call
type Classification struct {
	Status     string  `json:"status"`
	RiskLevel  string  `json:"risk_level"`
	Flagged    bool    `json:"flagged"`    // Safety override fired
	Confidence float64 `json:"confidence"` // 0.0 to 1.0, heuristic

	// Derived scores (truth, fact, lie, manipulation, coherence, authenticity,
	// structural_integrity), each 0.0 to 1.0
	Scores map[string]float64 `json:"scores"`

	// Raw per-category scores, each 0.0 to 1.0
	Categories map[string]float64 `json:"categories"`

	Indices Indices `json:"indices"`
	Matches []Match `json:"matches"`

	Warnings        []string  `json:"warnings,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	Stats           TextStats `json:"stats"`
}

// Indices are the combined scores, each 0.0 to 10.0
type Indices struct {
	Truth     float64 `json:"truth"`
	Integrity float64 `json:"integrity"`
	Risk      float64 `json:"risk"`
	Awakening float64 `json:"awakening"`
}

// Match is a single pattern occurrence in the lower-cased input
type Match struct {
	Category  string `json:"category"`
	PatternID string `json:"pattern_id"`
	Text      string `json:"text"`
	Position  int    `json:"position"` // Byte offset
	Severity  string `json:"severity,omitempty"`
}

type TextStats struct {
	Characters int `json:"characters"`
	Words      int `json:"words"`
	Sentences  int `json:"sentences"`
}

// Snapshot is one entry of a subject's drift history
type Snapshot struct {
	ID         string    `json:"id,omitempty"`
	SubjectID  string    `json:"subject_id"`
	Truth      float64   `json:"truth"`
	Lie        float64   `json:"lie"`
	Coherence  float64   `json:"coherence"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Drift describes how the latest snapshot compares to the subject's history
type Drift struct {
	SubjectID   string  `json:"subject_id"`
	Drift       float64 `json:"drift"`
	Stability   float64 `json:"stability"`
	Consistency float64 `json:"consistency"`
	Direction   string  `json:"direction"`  // stable, toward_truth, toward_deception, toward_chaos
	Trajectory  float64 `json:"trajectory"` // Slope of truth per snapshot
	// Anomalies index the prior history followed by the new snapshot, so
	// len(history) is the new snapshot itself
	Anomalies       []int       `json:"anomalies,omitempty"`
	HistorySize     int         `json:"history_size"`
	Baseline        bool        `json:"baseline"` // First snapshot for the subject
	Prediction      *Prediction `json:"prediction,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
}

// Prediction extrapolates the truth trend one snapshot ahead
type Prediction struct {
	NextTruth      float64 `json:"next_truth"`
	ExpectedChange float64 `json:"expected_change"`
	Confidence     string  `json:"confidence"` // high, medium, low
}

// DriftStats summarises a subject's history
type DriftStats struct {
	SubjectID       string    `json:"subject_id"`
	Snapshots       int       `json:"snapshots"`
	First           time.Time `json:"first,omitempty"`
	Last            time.Time `json:"last,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	AvgTruth        float64   `json:"avg_truth"`
	AvgLie          float64   `json:"avg_lie"`
	AvgCoherence    float64   `json:"avg_coherence"`
	Stability       float64   `json:"stability"`
}

// Stats aggregates stored analyses
type Stats struct {
	Total        int            `json:"total"`
	Flagged      int            `json:"flagged"`
	ByStatus     map[string]int `json:"by_status"`
	AvgTruth     float64        `json:"avg_truth_index"`
	AvgRisk      float64        `json:"avg_risk_index"`
	AvgAwakening float64        `json:"avg_awakening_index"`
}
