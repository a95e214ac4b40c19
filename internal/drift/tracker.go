// Package drift keeps a bounded score history per subject and reports how
// each new classification moves relative to it.
package drift

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/zombar/aletheia/internal/classifier"
	"github.com/zombar/aletheia/internal/models"
)

const (
	DirectionStable          = "stable"
	DirectionTowardTruth     = "toward_truth"
	DirectionTowardDeception = "toward_deception"
	DirectionTowardChaos     = "toward_chaos"
)

// maxVariance is the largest variance a series bounded to [0,1] can have
const maxVariance = 0.25

type Config struct {
	HistorySize int     // Snapshots kept per subject
	Threshold   float64 // Minimum mean shift that counts as movement
}

func DefaultConfig() Config {
	return Config{HistorySize: 100, Threshold: 0.05}
}

// Tracker is safe for concurrent use
type Tracker struct {
	mu       sync.Mutex
	cfg      Config
	subjects map[string]*Ring[models.Snapshot]
	now      func() time.Time
}

func NewTracker(cfg Config) *Tracker {
	if cfg.HistorySize < 1 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	return &Tracker{
		cfg:      cfg,
		subjects: make(map[string]*Ring[models.Snapshot]),
		now:      time.Now,
	}
}

// SnapshotOf extracts the tracked scores from a classification
func SnapshotOf(subjectID string, result models.Classification, at time.Time) models.Snapshot {
	return models.Snapshot{
		SubjectID:  subjectID,
		Truth:      result.Scores[classifier.ScoreTruth],
		Lie:        result.Scores[classifier.ScoreLie],
		Coherence:  result.Scores[classifier.ScoreCoherence],
		RecordedAt: at,
	}
}

// Track records result for subjectID and returns the drift against the
// subject's prior history
func (t *Tracker) Track(subjectID string, result models.Classification) (models.Drift, models.Snapshot) {
	snap := SnapshotOf(subjectID, result, t.now())
	return t.Record(snap), snap
}

// Record appends snap to its subject's history and returns the drift
// against the history that preceded it. Every measure is taken over the same
// window: the prior history followed by snap.
func (t *Tracker) Record(snap models.Snapshot) models.Drift {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring := t.ring(snap.SubjectID)
	prev := ring.Slice()
	ring.Push(snap)

	d := models.Drift{
		SubjectID:   snap.SubjectID,
		Direction:   DirectionStable,
		Stability:   1,
		Consistency: 1,
		HistorySize: ring.Len(),
	}
	if len(prev) == 0 {
		d.Baseline = true
		d.Recommendations = []string{recBaseline}
		return d
	}

	window := append(truths(prev), snap.Truth)
	meanTruth := mean(window[:len(prev)])
	meanLie := mean(lies(prev))

	d.Drift = math.Abs(snap.Truth - meanTruth)
	d.Stability = clamp01(1 - variance(window)/maxVariance)
	d.Consistency = consistency(window)
	d.Trajectory = slope(window)
	d.Direction = direction(snap.Truth-meanTruth, snap.Lie-meanLie, t.cfg.Threshold)
	d.Anomalies = anomalies(window)
	d.Prediction = predict(window)
	d.Recommendations = recommend(d, len(prev))
	return d
}

// Stats summarises the history held for subjectID
func (t *Tracker) Stats(subjectID string) models.DriftStats {
	history := t.History(subjectID)

	st := models.DriftStats{SubjectID: subjectID, Snapshots: len(history), Stability: 1}
	if len(history) == 0 {
		return st
	}

	first, last := history[0].RecordedAt, history[len(history)-1].RecordedAt
	st.First, st.Last = first, last
	st.DurationSeconds = last.Sub(first).Seconds()

	truth := truths(history)
	st.AvgTruth = mean(truth)
	st.AvgLie = mean(lies(history))
	coherence := make([]float64, len(history))
	for i, s := range history {
		coherence[i] = s.Coherence
	}
	st.AvgCoherence = mean(coherence)
	st.Stability = clamp01(1 - variance(truth)/maxVariance)
	return st
}

// Seed replaces a subject's history, oldest first. Entries beyond the
// capacity evict the oldest, as with Record.
func (t *Tracker) Seed(subjectID string, history []models.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring := NewRing[models.Snapshot](t.cfg.HistorySize)
	for _, s := range history {
		ring.Push(s)
	}
	t.subjects[subjectID] = ring
}

// History returns a copy of the subject's snapshots, oldest first
func (t *Tracker) History(subjectID string) []models.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	ring, ok := t.subjects[subjectID]
	if !ok {
		return []models.Snapshot{}
	}
	return ring.Slice()
}

// Len is the number of snapshots held for subjectID
func (t *Tracker) Len(subjectID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ring, ok := t.subjects[subjectID]; ok {
		return ring.Len()
	}
	return 0
}

func (t *Tracker) Reset(subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subjects, subjectID)
}

// Subjects is the number of subjects with history
func (t *Tracker) Subjects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subjects)
}

func (t *Tracker) ring(subjectID string) *Ring[models.Snapshot] {
	ring, ok := t.subjects[subjectID]
	if !ok {
		ring = NewRing[models.Snapshot](t.cfg.HistorySize)
		t.subjects[subjectID] = ring
	}
	return ring
}

// direction maps the truth and lie shifts to a label. Order matters: both
// shifts moving together is chaos, not progress either way.
func direction(dTruth, dLie, threshold float64) string {
	switch {
	case math.Abs(dTruth) < threshold && math.Abs(dLie) < threshold:
		return DirectionStable
	case (dTruth >= threshold && dLie >= threshold) || (dTruth <= -threshold && dLie <= -threshold):
		return DirectionTowardChaos
	case dTruth-dLie > 0:
		return DirectionTowardTruth
	default:
		return DirectionTowardDeception
	}
}

func truths(s []models.Snapshot) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v.Truth
	}
	return out
}

func lies(s []models.Snapshot) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v.Lie
	}
	return out
}

// mean is taken relative to the first value, so a run of identical values
// averages to exactly that value
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	base := xs[0]
	sum := 0.0
	for _, x := range xs[1:] {
		sum += x - base
	}
	return base + sum/float64(len(xs))
}

// variance is the population variance
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return sum / float64(len(xs))
}

// consistency is one minus the mean step between consecutive values
func consistency(xs []float64) float64 {
	if len(xs) < 2 {
		return 1
	}
	sum := 0.0
	for i := 1; i < len(xs); i++ {
		sum += math.Abs(xs[i] - xs[i-1])
	}
	return clamp01(1 - sum/float64(len(xs)-1))
}

// slope is the least-squares slope of xs against its index
func slope(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	meanX := (n - 1) / 2
	meanY := mean(xs)
	var num, den float64
	for i, y := range xs {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	return num / den
}

// anomalies returns the positions more than two standard deviations from
// the mean
func anomalies(xs []float64) []int {
	sd := math.Sqrt(variance(xs))
	if sd == 0 {
		return nil
	}
	m := mean(xs)
	var out []int
	for i, x := range xs {
		if math.Abs(x-m) > 2*sd {
			out = append(out, i)
		}
	}
	return out
}

// predict extrapolates the least-squares line one step past the end of xs.
// Fewer than three points is too little to go on.
func predict(xs []float64) *models.Prediction {
	if len(xs) < 3 {
		return nil
	}
	n := float64(len(xs))
	m := slope(xs)
	intercept := mean(xs) - m*(n-1)/2

	p := &models.Prediction{
		NextTruth:      clamp01(intercept + m*n),
		ExpectedChange: m,
	}
	switch sd := math.Sqrt(variance(xs)); {
	case sd < 0.1:
		p.Confidence = ConfidenceHigh
	case sd < 0.3:
		p.Confidence = ConfidenceMedium
	default:
		p.Confidence = ConfidenceLow
	}
	return p
}

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

const (
	recBaseline       = "Baseline established; keep monitoring for temporal patterns."
	recLowConsistency = "Low temporal consistency: review for narrative drift or contradictions."
	recHighDrift      = "High drift: significant change from the subject's earlier statements."
	recLowStability   = "Low stability: scores are volatile across the history."
	recAnomaly        = "The latest statement deviates sharply from the subject's history."
	recCoherent       = "Consistent and stable over time."
)

// recommend turns the measures into advice. latest is the window index of
// the snapshot just recorded.
func recommend(d models.Drift, latest int) []string {
	var out []string
	if d.Consistency < 0.5 {
		out = append(out, recLowConsistency)
	}
	if d.Drift > 0.5 {
		out = append(out, recHighDrift)
	}
	if d.Stability < 0.5 {
		out = append(out, recLowStability)
	}
	if slices.Contains(d.Anomalies, latest) {
		out = append(out, recAnomaly)
	}
	if d.Consistency > 0.8 && d.Stability > 0.8 {
		out = append(out, recCoherent)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// HistoryStore is where persisted snapshots are read back from
type HistoryStore interface {
	ListSnapshots(ctx context.Context, subjectID string, limit int) ([]models.Snapshot, error)
}

// Warm loads a subject's persisted history when the tracker holds none, so
// drift survives restarts. It reports whether anything was loaded.
func (t *Tracker) Warm(ctx context.Context, store HistoryStore, subjectID string) (bool, error) {
	if store == nil || t.Len(subjectID) > 0 {
		return false, nil
	}
	history, err := store.ListSnapshots(ctx, subjectID, t.cfg.HistorySize)
	if err != nil {
		return false, err
	}
	if len(history) == 0 {
		return false, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// another caller may have recorded in the meantime
	if ring, ok := t.subjects[subjectID]; ok && ring.Len() > 0 {
		return false, nil
	}
	ring := NewRing[models.Snapshot](t.cfg.HistorySize)
	for _, s := range history {
		ring.Push(s)
	}
	t.subjects[subjectID] = ring
	return true, nil
}
