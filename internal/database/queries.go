package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zombar/aletheia/internal/models"
	"github.com/zombar/aletheia/pkg/tracing"
)

var (
	ErrNotFound  = errors.New("analysis not found")
	ErrForbidden = errors.New("analysis belongs to another owner")
)

// SaveAnalysis saves an analysis to the database
func (db *DB) SaveAnalysis(ctx context.Context, analysis *models.Analysis) error {
	ctx, span := tracing.StartSpan(ctx, "database.save_analysis",
		attribute.String("analysis.id", analysis.ID))
	defer span.End()

	resultJSON, err := json.Marshal(analysis.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	r := analysis.Result
	_, err = db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO analyses (id, owner_id, subject_id, text, result, status, flagged,
			truth_index, risk_index, awakening_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), analysis.ID, analysis.OwnerID, analysis.SubjectID, analysis.Text, string(resultJSON),
		r.Status, boolInt(r.Flagged), r.Indices.Truth, r.Indices.Risk, r.Indices.Awakening,
		analysis.CreatedAt.UnixNano())
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	return nil
}

// GetAnalysis retrieves an analysis by ID
func (db *DB) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	ctx, span := tracing.StartSpan(ctx, "database.get_analysis",
		attribute.String("analysis.id", id))
	defer span.End()

	row := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT id, owner_id, subject_id, text, result, created_at
		FROM analyses
		WHERE id = ?
	`), id)

	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

// ListAnalyses returns an owner's analyses, newest first
func (db *DB) ListAnalyses(ctx context.Context, ownerID string, limit, offset int) ([]*models.Analysis, error) {
	ctx, span := tracing.StartSpan(ctx, "database.list_analyses",
		attribute.String("owner.id", ownerID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset))
	defer span.End()

	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, owner_id, subject_id, text, result, created_at
		FROM analyses
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`), ownerID, limit, offset)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	analyses := []*models.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}

	return analyses, rows.Err()
}

// DeleteAnalysis removes an analysis owned by ownerID
func (db *DB) DeleteAnalysis(ctx context.Context, id, ownerID string) error {
	ctx, span := tracing.StartSpan(ctx, "database.delete_analysis",
		attribute.String("analysis.id", id))
	defer span.End()

	var owner string
	err := db.conn.QueryRowContext(ctx, db.rebind("SELECT owner_id FROM analyses WHERE id = ?"), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up analysis: %w", err)
	}
	if owner != ownerID {
		return ErrForbidden
	}

	if _, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM analyses WHERE id = ? AND owner_id = ?"), id, ownerID); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}

// SaveSnapshot appends a drift snapshot. A missing ID is generated.
func (db *DB) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	ctx, span := tracing.StartSpan(ctx, "database.save_snapshot",
		attribute.String("subject.id", snap.SubjectID))
	defer span.End()

	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO drift_snapshots (id, subject_id, truth, lie, coherence, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), snap.ID, snap.SubjectID, snap.Truth, snap.Lie, snap.Coherence, snap.RecordedAt.UnixNano())
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns up to limit of the subject's most recent snapshots,
// oldest first
func (db *DB) ListSnapshots(ctx context.Context, subjectID string, limit int) ([]models.Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "database.list_snapshots",
		attribute.String("subject.id", subjectID))
	defer span.End()

	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT id, subject_id, truth, lie, coherence, recorded_at
		FROM drift_snapshots
		WHERE subject_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`), subjectID, limit)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		var (
			s  models.Snapshot
			at int64
		)
		if err := rows.Scan(&s.ID, &s.SubjectID, &s.Truth, &s.Lie, &s.Coherence, &at); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.RecordedAt = time.Unix(0, at).UTC()
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps, nil
}

// DeleteSnapshots removes a subject's drift history and reports how many
// snapshots were dropped
func (db *DB) DeleteSnapshots(ctx context.Context, subjectID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "database.delete_snapshots",
		attribute.String("subject.id", subjectID))
	defer span.End()

	res, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM drift_snapshots WHERE subject_id = ?"), subjectID)
	if err != nil {
		tracing.RecordError(ctx, err)
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Stats aggregates an owner's stored analyses
func (db *DB) Stats(ctx context.Context, ownerID string) (*models.Stats, error) {
	ctx, span := tracing.StartSpan(ctx, "database.stats",
		attribute.String("owner.id", ownerID))
	defer span.End()

	stats := &models.Stats{ByStatus: map[string]int{}}

	err := db.conn.QueryRowContext(ctx, db.rebind(`
		SELECT COUNT(*), COALESCE(SUM(flagged), 0),
			COALESCE(AVG(truth_index), 0), COALESCE(AVG(risk_index), 0), COALESCE(AVG(awakening_index), 0)
		FROM analyses
		WHERE owner_id = ?
	`), ownerID).Scan(&stats.Total, &stats.Flagged, &stats.AvgTruth, &stats.AvgRisk, &stats.AvgAwakening)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to aggregate analyses: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT status, COUNT(*)
		FROM analyses
		WHERE owner_id = ?
		GROUP BY status
	`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = n
	}

	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*models.Analysis, error) {
	var (
		a          models.Analysis
		resultJSON string
		createdAt  int64
	)
	if err := s.Scan(&a.ID, &a.OwnerID, &a.SubjectID, &a.Text, &resultJSON, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(resultJSON), &a.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	return &a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
