package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"posture/internal/angles"
)

// TrainingRun is one persisted calibration run.
type TrainingRun struct {
	ID           int64
	RunID        string
	User         string
	SampleCount  int
	SkippedCount int
	Labels       []string
	Offsets      angles.Triple
	CreatedAt    time.Time
}

// Prediction is one persisted classification outcome.
type Prediction struct {
	ID         int64
	User       string
	Capture    string
	ModelLabel string
	RuleLabel  string
	Score      float64
	Adjusted   angles.Triple
	CreatedAt  time.Time
}

// RecordTrainingRun inserts a calibration run into history.
func (s *Store) RecordTrainingRun(ctx context.Context, run *TrainingRun) error {
	labels, err := json.Marshal(run.Labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO training_runs (run_id, user_id, sample_count, skipped_count, labels, neck_offset, back_offset, legs_offset, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.User, run.SampleCount, run.SkippedCount, string(labels),
		run.Offsets.Neck, run.Offsets.Back, run.Offsets.Legs,
		createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert training run: %w", err)
	}
	run.ID, _ = res.LastInsertId()
	run.CreatedAt = createdAt
	return nil
}

// RecordPrediction inserts a prediction into history.
func (s *Store) RecordPrediction(ctx context.Context, p *Prediction) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO predictions (user_id, capture, model_label, rule_label, score, neck, back, legs, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.User, p.Capture, nullableString(p.ModelLabel), p.RuleLabel, p.Score,
		p.Adjusted.Neck, p.Adjusted.Back, p.Adjusted.Legs,
		createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	p.CreatedAt = createdAt
	return nil
}

const trainingRunColumns = "id, run_id, user_id, sample_count, skipped_count, labels, neck_offset, back_offset, legs_offset, created_at"

// ListTrainingRuns returns a user's calibration runs, newest first.
func (s *Store) ListTrainingRuns(ctx context.Context, user string, limit int) ([]*TrainingRun, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+trainingRunColumns+" FROM training_runs WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		user, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query training runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*TrainingRun
	for rows.Next() {
		run, err := scanTrainingRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const predictionColumns = "id, user_id, capture, model_label, rule_label, score, neck, back, legs, created_at"

// ListPredictions returns a user's predictions, newest first.
func (s *Store) ListPredictions(ctx context.Context, user string, limit int) ([]*Prediction, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+predictionColumns+" FROM predictions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?",
		user, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var predictions []*Prediction
	for rows.Next() {
		prediction, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		predictions = append(predictions, prediction)
	}
	return predictions, rows.Err()
}

func scanTrainingRun(scanner interface{ Scan(dest ...any) error }) (*TrainingRun, error) {
	var (
		id           int64
		runID        string
		user         string
		sampleCount  int
		skippedCount int
		labelsRaw    sql.NullString
		neckOffset   float64
		backOffset   float64
		legsOffset   float64
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &runID, &user, &sampleCount, &skippedCount, &labelsRaw,
		&neckOffset, &backOffset, &legsOffset, &createdRaw); err != nil {
		return nil, err
	}

	run := &TrainingRun{
		ID:           id,
		RunID:        runID,
		User:         user,
		SampleCount:  sampleCount,
		SkippedCount: skippedCount,
		Offsets:      angles.Triple{Neck: neckOffset, Back: backOffset, Legs: legsOffset},
		CreatedAt:    parseTime(createdRaw),
	}
	if labelsRaw.Valid && labelsRaw.String != "" {
		if err := json.Unmarshal([]byte(labelsRaw.String), &run.Labels); err != nil {
			return nil, fmt.Errorf("decode labels for run %s: %w", runID, err)
		}
	}
	return run, nil
}

func scanPrediction(scanner interface{ Scan(dest ...any) error }) (*Prediction, error) {
	var (
		id         int64
		user       string
		capture    string
		modelLabel sql.NullString
		ruleLabel  string
		score      float64
		neck       float64
		back       float64
		legs       float64
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &user, &capture, &modelLabel, &ruleLabel, &score,
		&neck, &back, &legs, &createdRaw); err != nil {
		return nil, err
	}
	return &Prediction{
		ID:         id,
		User:       user,
		Capture:    capture,
		ModelLabel: modelLabel.String,
		RuleLabel:  ruleLabel,
		Score:      score,
		Adjusted:   angles.Triple{Neck: neck, Back: back, Legs: legs},
		CreatedAt:  parseTime(createdRaw),
	}, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func normalizeLimit(limit int) int {
	if limit < 1 {
		return 50
	}
	return limit
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, raw.String); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
