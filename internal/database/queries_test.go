package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/zombar/aletheia/internal/models"
)

func createTestAnalysis(id, owner string, created time.Time) *models.Analysis {
	return &models.Analysis{
		ID:      id,
		OwnerID: owner,
		Text:    "This is verified and documented evidence.",
		Result: models.Classification{
			Status:     "TRUTH_SEEKING",
			RiskLevel:  "LOW",
			Confidence: 0.71,
			Scores:     map[string]float64{"truth": 0.8, "lie": 0},
			Categories: map[string]float64{"truth": 0.8, "fact": 0.4},
			Indices:    models.Indices{Truth: 7.2, Integrity: 8, Risk: 1.5, Awakening: 6},
			Matches: []models.Match{
				{Category: "truth", PatternID: "T001", Text: "verified", Position: 8},
			},
			Stats: models.TextStats{Characters: 41, Words: 6, Sentences: 1},
		},
		CreatedAt: created,
	}
}

func TestSaveAndGetAnalysis(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	analysis := createTestAnalysis("test-001", "alice", time.Now().UTC())
	analysis.SubjectID = "subject-a"

	if err := db.SaveAnalysis(ctx, analysis); err != nil {
		t.Fatalf("Failed to save analysis: %v", err)
	}

	retrieved, err := db.GetAnalysis(ctx, "test-001")
	if err != nil {
		t.Fatalf("Failed to get analysis: %v", err)
	}

	if retrieved.OwnerID != "alice" || retrieved.SubjectID != "subject-a" {
		t.Errorf("Unexpected ownership fields: %+v", retrieved)
	}
	if retrieved.Text != analysis.Text {
		t.Errorf("Expected text %s, got %s", analysis.Text, retrieved.Text)
	}
	if retrieved.Result.Status != "TRUTH_SEEKING" {
		t.Errorf("Expected status TRUTH_SEEKING, got %s", retrieved.Result.Status)
	}
	if retrieved.Result.Indices != analysis.Result.Indices {
		t.Errorf("Expected indices %+v, got %+v", analysis.Result.Indices, retrieved.Result.Indices)
	}
	if len(retrieved.Result.Matches) != 1 || retrieved.Result.Matches[0].PatternID != "T001" {
		t.Errorf("Unexpected matches %+v", retrieved.Result.Matches)
	}
	if !retrieved.CreatedAt.Equal(analysis.CreatedAt) {
		t.Errorf("Expected created_at %v, got %v", analysis.CreatedAt, retrieved.CreatedAt)
	}
}

func TestSaveAnalysisDuplicateID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := createTestAnalysis("dup", "alice", time.Now())
	if err := db.SaveAnalysis(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveAnalysis(ctx, a); err == nil {
		t.Error("Expected error saving duplicate id")
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetAnalysis(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err != nil && err.Error() != "analysis not found" {
		t.Errorf("Expected 'analysis not found' error, got %v", err)
	}
}

func TestListAnalyses(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 1; i <= 5; i++ {
		a := createTestAnalysis(fmt.Sprintf("test-%d", i), "alice", base.Add(time.Duration(i)*time.Second))
		if err := db.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("Failed to save analysis %d: %v", i, err)
		}
	}
	if err := db.SaveAnalysis(ctx, createTestAnalysis("other", "bob", base)); err != nil {
		t.Fatal(err)
	}

	analyses, err := db.ListAnalyses(ctx, "alice", 3, 0)
	if err != nil {
		t.Fatalf("Failed to list analyses: %v", err)
	}
	if len(analyses) != 3 {
		t.Fatalf("Expected 3 analyses, got %d", len(analyses))
	}
	if analyses[0].ID != "test-5" {
		t.Errorf("Expected newest first, got %s", analyses[0].ID)
	}

	analyses, err = db.ListAnalyses(ctx, "alice", 3, 3)
	if err != nil {
		t.Fatalf("Failed to list analyses with offset: %v", err)
	}
	if len(analyses) != 2 {
		t.Errorf("Expected 2 analyses with offset, got %d", len(analyses))
	}

	analyses, err = db.ListAnalyses(ctx, "carol", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if analyses == nil || len(analyses) != 0 {
		t.Errorf("Expected empty non-nil list, got %v", analyses)
	}
}

func TestDeleteAnalysis(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.SaveAnalysis(ctx, createTestAnalysis("del-1", "alice", time.Now())); err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteAnalysis(ctx, "del-1", "bob"); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
	if err := db.DeleteAnalysis(ctx, "del-1", "alice"); err != nil {
		t.Fatalf("Failed to delete analysis: %v", err)
	}
	if _, err := db.GetAnalysis(ctx, "del-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected analysis gone, got %v", err)
	}
	if err := db.DeleteAnalysis(ctx, "del-1", "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSnapshots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		snap := &models.Snapshot{
			SubjectID:  "subject-a",
			Truth:      float64(i) / 10,
			Lie:        0.1,
			Coherence:  0.5,
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("Failed to save snapshot %d: %v", i, err)
		}
		if snap.ID == "" {
			t.Error("Expected generated snapshot id")
		}
	}
	if err := db.SaveSnapshot(ctx, &models.Snapshot{SubjectID: "subject-b", Truth: 1}); err != nil {
		t.Fatal(err)
	}

	snaps, err := db.ListSnapshots(ctx, "subject-a", 3)
	if err != nil {
		t.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("Expected 3 snapshots, got %d", len(snaps))
	}
	// most recent three, oldest first
	want := []float64{0.2, 0.3, 0.4}
	for i, s := range snaps {
		if s.Truth != want[i] {
			t.Errorf("Snapshot %d: expected truth %.1f, got %.1f", i, want[i], s.Truth)
		}
	}

	n, err := db.DeleteSnapshots(ctx, "subject-a")
	if err != nil {
		t.Fatalf("Failed to delete snapshots: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 snapshots deleted, got %d", n)
	}
	if left, _ := db.ListSnapshots(ctx, "subject-b", 10); len(left) != 1 {
		t.Errorf("Expected other subject untouched, got %d", len(left))
	}

	none, err := db.ListSnapshots(ctx, "missing", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no snapshots, got %d", len(none))
	}
}

func TestStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	empty, err := db.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if empty.Total != 0 || empty.AvgTruth != 0 {
		t.Errorf("Expected zero stats, got %+v", empty)
	}

	a := createTestAnalysis("s-1", "alice", time.Now())
	b := createTestAnalysis("s-2", "alice", time.Now())
	b.Result.Status = "FLAGGED"
	b.Result.Flagged = true
	b.Result.Indices = models.Indices{Truth: 0, Risk: 10, Awakening: 0}
	for _, x := range []*models.Analysis{a, b, createTestAnalysis("s-3", "bob", time.Now())} {
		if err := db.SaveAnalysis(ctx, x); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := db.Stats(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Total != 2 || stats.Flagged != 1 {
		t.Errorf("Expected 2 total and 1 flagged, got %+v", stats)
	}
	if stats.ByStatus["FLAGGED"] != 1 || stats.ByStatus["TRUTH_SEEKING"] != 1 {
		t.Errorf("Unexpected status counts %v", stats.ByStatus)
	}
	if stats.AvgRisk != (1.5+10)/2 {
		t.Errorf("Expected avg risk 5.75, got %v", stats.AvgRisk)
	}
}
