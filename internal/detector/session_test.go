package detector_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"posture/internal/angles"
	"posture/internal/config"
	"posture/internal/detector"
	"posture/internal/profile"
	"posture/internal/rules"
	"posture/internal/testsupport"
)

func newCalibratedConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithNeighbors(1))
	testsupport.WriteJSON(t, cfg.Paths.BaseReference, testsupport.AnglePayload(150, 100, 120))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.TrainDir, "cap_aligned.json"), testsupport.AnglePayload(155, 96, 123))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.TrainDir, "cap_neck.json"), testsupport.AnglePayload(135, 96, 123))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.TrainDir, "cap_back.json"), testsupport.AnglePayload(155, 76, 123))
	return cfg
}

func TestNewSessionRejectsBadUser(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := detector.NewSession(cfg, nil, nil, "../escape"); !errors.Is(err, profile.ErrInvalidUser) {
		t.Fatalf("NewSession error = %v, want ErrInvalidUser", err)
	}
}

func TestPredictBeforeLoadFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	session, err := detector.NewSession(cfg, nil, nil, "alice")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	_, err = session.Predict(context.Background(), angles.Triple{Neck: 150, Back: 100, Legs: 120})
	if !errors.Is(err, detector.ErrNotLoaded) {
		t.Fatalf("Predict error = %v, want ErrNotLoaded", err)
	}
}

func TestTrainAndPredict(t *testing.T) {
	cfg := newCalibratedConfig(t)
	session, err := detector.NewSession(cfg, nil, nil, "alice")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := session.SaveReference(angles.Triple{Neck: 155, Back: 96, Legs: 123}); err != nil {
		t.Fatalf("SaveReference: %v", err)
	}

	result, err := session.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if result.RunID == "" {
		t.Fatalf("Train produced no run id")
	}
	if result.Samples != 3 || result.Skipped != 0 {
		t.Fatalf("Samples = %d, Skipped = %d, want 3 and 0", result.Samples, result.Skipped)
	}
	if result.Offsets.Neck != 5 || result.Offsets.Back != -4 || result.Offsets.Legs != 3 {
		t.Fatalf("Offsets = %+v, want {5 -4 3}", result.Offsets)
	}
	wantLabels := []string{"Aligned Posture", "Back Misalignment", "Neck Misalignment"}
	if len(result.Labels) != len(wantLabels) {
		t.Fatalf("Labels = %v, want %v", result.Labels, wantLabels)
	}
	for i, label := range wantLabels {
		if result.Labels[i] != label {
			t.Fatalf("Labels[%d] = %q, want %q", i, result.Labels[i], label)
		}
	}

	paths := session.Paths()
	for _, artifact := range []string{paths.Model, paths.Encoder, paths.Metadata} {
		if _, err := os.Stat(artifact); err != nil {
			t.Fatalf("missing artifact %s: %v", artifact, err)
		}
	}

	if !session.Loaded() {
		t.Fatalf("session not loaded after Train")
	}

	prediction, err := session.Predict(context.Background(), angles.Triple{Neck: 155, Back: 96, Legs: 123})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if prediction.RuleLabel != "Aligned Posture" {
		t.Fatalf("RuleLabel = %q, want Aligned Posture", prediction.RuleLabel)
	}
	if prediction.ModelLabel != "Aligned Posture" {
		t.Fatalf("ModelLabel = %q, want Aligned Posture", prediction.ModelLabel)
	}
	if prediction.Score != 100 {
		t.Fatalf("Score = %.2f, want 100", prediction.Score)
	}
	if len(prediction.Suggestions) != 0 {
		t.Fatalf("Suggestions = %v, want none", prediction.Suggestions)
	}

	misaligned, err := session.Predict(context.Background(), angles.Triple{Neck: 134, Back: 96, Legs: 123})
	if err != nil {
		t.Fatalf("Predict misaligned: %v", err)
	}
	if misaligned.RuleLabel != "Neck Misalignment" {
		t.Fatalf("RuleLabel = %q, want Neck Misalignment", misaligned.RuleLabel)
	}
	if misaligned.ModelLabel != "Neck Misalignment" {
		t.Fatalf("ModelLabel = %q, want Neck Misalignment", misaligned.ModelLabel)
	}
	if len(misaligned.Suggestions) != 1 || misaligned.Suggestions[0] != "FIX: Your neck is bent too far forward. Tuck your chin in." {
		t.Fatalf("Suggestions = %v", misaligned.Suggestions)
	}
	want := rules.Check(angles.Triple{Neck: 134, Back: 96, Legs: 123}, session.Personal()).Score
	if misaligned.Score != want {
		t.Fatalf("Score = %v, want %v", misaligned.Score, want)
	}
	if misaligned.Score == math.Trunc(misaligned.Score) {
		t.Fatalf("Score = %v, want a fractional value", misaligned.Score)
	}
}

func TestTrainWithoutPersonalReference(t *testing.T) {
	cfg := newCalibratedConfig(t)
	session, err := detector.NewSession(cfg, nil, nil, "bob")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	result, err := session.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if result.Offsets != (angles.Triple{}) {
		t.Fatalf("Offsets = %+v, want zero without a personal reference", result.Offsets)
	}
	if result.Personal != (angles.Triple{Neck: 150, Back: 100, Legs: 120}) {
		t.Fatalf("Personal = %+v, want the baseline angles", result.Personal)
	}
}

func TestLoadRestoresCalibration(t *testing.T) {
	cfg := newCalibratedConfig(t)
	trained, err := detector.NewSession(cfg, nil, nil, "alice")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := trained.SaveReference(angles.Triple{Neck: 155, Back: 96, Legs: 123}); err != nil {
		t.Fatalf("SaveReference: %v", err)
	}
	if _, err := trained.Train(context.Background()); err != nil {
		t.Fatalf("Train: %v", err)
	}

	fresh, err := detector.NewSession(cfg, nil, nil, "alice")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if !fresh.Exists() {
		t.Fatalf("Exists() = false for a trained profile")
	}
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !fresh.Loaded() {
		t.Fatalf("Loaded() = false after Load")
	}
	if fresh.Personal() != (angles.Triple{Neck: 155, Back: 96, Legs: 123}) {
		t.Fatalf("Personal = %+v", fresh.Personal())
	}
	if fresh.Offsets() != (angles.Triple{Neck: 5, Back: -4, Legs: 3}) {
		t.Fatalf("Offsets = %+v", fresh.Offsets())
	}

	prediction, err := fresh.Predict(context.Background(), angles.Triple{Neck: 155, Back: 96, Legs: 123})
	if err != nil {
		t.Fatalf("Predict after Load: %v", err)
	}
	if prediction.RuleLabel != "Aligned Posture" {
		t.Fatalf("RuleLabel = %q", prediction.RuleLabel)
	}
}

func TestPredictFileRecordsHistory(t *testing.T) {
	cfg := newCalibratedConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	session, err := detector.NewSession(cfg, nil, st, "alice")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := session.SaveReference(angles.Triple{Neck: 155, Back: 96, Legs: 123}); err != nil {
		t.Fatalf("SaveReference: %v", err)
	}
	trainResult, err := session.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	capture := filepath.Join(t.TempDir(), "live_capture.json")
	testsupport.WriteJSON(t, capture, testsupport.AnglePayload(135, 96, 123))

	result, err := session.PredictFile(context.Background(), capture)
	if err != nil {
		t.Fatalf("PredictFile: %v", err)
	}
	if result.RuleLabel != "Neck Misalignment" {
		t.Fatalf("RuleLabel = %q", result.RuleLabel)
	}

	runs, err := st.ListTrainingRuns(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("ListTrainingRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != trainResult.RunID {
		t.Fatalf("training history = %+v", runs)
	}

	predictions, err := st.ListPredictions(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("ListPredictions: %v", err)
	}
	if len(predictions) != 1 {
		t.Fatalf("len(predictions) = %d, want 1", len(predictions))
	}
	if predictions[0].Capture != "live_capture.json" {
		t.Fatalf("Capture = %q", predictions[0].Capture)
	}
	if predictions[0].RuleLabel != "Neck Misalignment" {
		t.Fatalf("recorded RuleLabel = %q", predictions[0].RuleLabel)
	}
}

func TestImportReference(t *testing.T) {
	cfg := newCalibratedConfig(t)
	session, err := detector.NewSession(cfg, nil, nil, "alice")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	source := filepath.Join(t.TempDir(), "snapshot.json")
	testsupport.WriteJSON(t, source, testsupport.AnglePayload(152, 98, 121))

	triple, err := session.ImportReference(source)
	if err != nil {
		t.Fatalf("ImportReference: %v", err)
	}
	if triple != (angles.Triple{Neck: 152, Back: 98, Legs: 121}) {
		t.Fatalf("imported angles = %+v", triple)
	}
	if !session.Paths().HasReference() {
		t.Fatalf("reference not installed")
	}

	if _, err := session.ImportReference(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("ImportReference accepted a missing file")
	}
}
