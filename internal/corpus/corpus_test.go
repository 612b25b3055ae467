package corpus_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"posture/internal/corpus"
	"posture/internal/profile"
	"posture/internal/reference"
	"posture/internal/testsupport"
)

func prepareFixture(t *testing.T) (string, profile.Paths, *reference.Resolution) {
	t.Helper()

	base := t.TempDir()
	trainDir := filepath.Join(base, "train")
	basePath := filepath.Join(trainDir, "reference_posture.json")
	personalPath := filepath.Join(base, "profiles", "alice", "reference_posture.json")

	testsupport.WriteJSON(t, basePath, testsupport.AnglePayload(150, 100, 120))
	testsupport.WriteJSON(t, personalPath, testsupport.AnglePayload(155, 96, 123))

	res, err := reference.Resolve(basePath, personalPath, 0.6)
	if err != nil {
		t.Fatalf("reference.Resolve: %v", err)
	}
	return trainDir, profile.For(filepath.Join(base, "profiles"), "alice"), res
}

func TestPrepareProducesCalibratedRecords(t *testing.T) {
	trainDir, paths, res := prepareFixture(t)
	testsupport.WriteJSON(t, filepath.Join(trainDir, "cap_aligned.json"), testsupport.AnglePayload(155, 96, 123))
	testsupport.WriteJSON(t, filepath.Join(trainDir, "cap_neck.json"), testsupport.AnglePayload(135, 96, 123))

	preparer := corpus.NewPreparer(trainDir, 0.6, nil)
	result, err := preparer.Prepare("alice", paths, res)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(result.Records))
	}
	if result.Skipped != 0 {
		t.Fatalf("Skipped = %d, want 0", result.Skipped)
	}

	byName := map[string]corpus.Record{}
	for _, record := range result.Records {
		byName[record.SourceFile] = record
	}

	aligned := byName["cap_aligned.json"]
	if aligned.Label != "Aligned Posture" {
		t.Fatalf("aligned label = %q", aligned.Label)
	}
	if aligned.User != "alice" {
		t.Fatalf("User = %q", aligned.User)
	}
	if aligned.ReferenceOffsets != res.Offsets {
		t.Fatalf("ReferenceOffsets = %+v, want %+v", aligned.ReferenceOffsets, res.Offsets)
	}

	neck := byName["cap_neck.json"]
	if neck.Label != "Neck Misalignment" {
		t.Fatalf("neck label = %q", neck.Label)
	}
	features := neck.Features()
	if features[0] >= 0 {
		t.Fatalf("neck deviation feature = %.2f, want negative", features[0])
	}
}

func TestPrepareExcludesReferenceFiles(t *testing.T) {
	trainDir, paths, res := prepareFixture(t)
	testsupport.WriteJSON(t, filepath.Join(trainDir, "cap.json"), testsupport.AnglePayload(150, 100, 120))

	result, err := corpus.NewPreparer(trainDir, 0.6, nil).Prepare("alice", paths, res)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	for _, record := range result.Records {
		if record.SourceFile == "reference_posture.json" {
			t.Fatalf("base reference leaked into the corpus")
		}
	}
	if len(result.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(result.Records))
	}
}

func TestPrepareSkipsUnusableCaptures(t *testing.T) {
	trainDir, paths, res := prepareFixture(t)
	testsupport.WriteJSON(t, filepath.Join(trainDir, "cap_good.json"), testsupport.AnglePayload(150, 100, 120))
	if err := os.WriteFile(filepath.Join(trainDir, "cap_broken.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write broken capture: %v", err)
	}
	testsupport.WriteJSON(t, filepath.Join(trainDir, "cap_no_angles.json"), map[string]any{"note": "nothing here"})

	result, err := corpus.NewPreparer(trainDir, 0.6, nil).Prepare("alice", paths, res)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(result.Records))
	}
	if result.Skipped != 2 {
		t.Fatalf("Skipped = %d, want 2", result.Skipped)
	}
}

func TestPrepareFailsWithoutUsableCaptures(t *testing.T) {
	trainDir, paths, res := prepareFixture(t)

	_, err := corpus.NewPreparer(trainDir, 0.6, nil).Prepare("alice", paths, res)
	if !errors.Is(err, corpus.ErrNoUsableCaptures) {
		t.Fatalf("Prepare with only reference files: error = %v, want ErrNoUsableCaptures", err)
	}
}

func TestPrepareWritesAugmentedCopies(t *testing.T) {
	trainDir, paths, res := prepareFixture(t)
	testsupport.WriteJSON(t, filepath.Join(trainDir, "cap.json"), testsupport.AnglePayload(155, 96, 123))

	result, err := corpus.NewPreparer(trainDir, 0.6, nil).Prepare("alice", paths, res)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	record := result.Records[0]
	if record.AdjustedPath == "" {
		t.Fatalf("record has no adjusted payload path")
	}
	data, err := os.ReadFile(record.AdjustedPath)
	if err != nil {
		t.Fatalf("read augmented copy: %v", err)
	}
	var augmented map[string]any
	if err := json.Unmarshal(data, &augmented); err != nil {
		t.Fatalf("parse augmented copy: %v", err)
	}
	block, ok := augmented["personalization_adjustment"].(map[string]any)
	if !ok {
		t.Fatalf("augmented copy missing personalization_adjustment: %v", augmented)
	}
	if block["user_id"] != "alice" {
		t.Fatalf("block user_id = %v", block["user_id"])
	}
	if block["manual_label"] != "Aligned Posture" {
		t.Fatalf("block manual_label = %v", block["manual_label"])
	}
}

func TestPreparePurgesStaleAdjustedFiles(t *testing.T) {
	trainDir, paths, res := prepareFixture(t)
	testsupport.WriteJSON(t, filepath.Join(trainDir, "cap.json"), testsupport.AnglePayload(150, 100, 120))

	stale := filepath.Join(paths.AdjustedDir, "stale.json")
	testsupport.WriteJSON(t, stale, map[string]any{"old": true})

	if _, err := corpus.NewPreparer(trainDir, 0.6, nil).Prepare("alice", paths, res); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale adjusted file survived the purge: %v", err)
	}
}

func TestPrepareSurvivesUnremovableStaleFile(t *testing.T) {
	trainDir, paths, res := prepareFixture(t)
	testsupport.WriteJSON(t, filepath.Join(trainDir, "cap.json"), testsupport.AnglePayload(150, 100, 120))

	// A non-empty directory with a .json name defeats os.Remove.
	stuck := filepath.Join(paths.AdjustedDir, "stuck.json")
	testsupport.WriteJSON(t, filepath.Join(stuck, "inner.json"), map[string]any{"old": true})

	result, err := corpus.NewPreparer(trainDir, 0.6, nil).Prepare("alice", paths, res)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(result.Records))
	}
	if _, err := os.Stat(stuck); err != nil {
		t.Fatalf("stuck entry: %v", err)
	}
}

func TestPrepareDirectAnglePassThrough(t *testing.T) {
	trainDir, paths, res := prepareFixture(t)
	// Direct-angle captures carry no keypoints, so re-projection leaves
	// their angle block intact.
	testsupport.WriteJSON(t, filepath.Join(trainDir, "cap.json"), testsupport.AnglePayload(150, 100, 120))

	result, err := corpus.NewPreparer(trainDir, 0.6, nil).Prepare("alice", paths, res)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	record := result.Records[0]
	want := record.OriginalAngles
	if record.AdjustedAngles != want {
		t.Fatalf("AdjustedAngles = %+v, want %+v", record.AdjustedAngles, want)
	}
}
