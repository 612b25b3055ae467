package watch_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"posture/internal/angles"
	"posture/internal/config"
	"posture/internal/detector"
	"posture/internal/stream"
	"posture/internal/testsupport"
	"posture/internal/watch"
)

func trainedSession(t *testing.T, cfg *config.Config) *detector.Session {
	t.Helper()

	testsupport.WriteJSON(t, cfg.Paths.BaseReference, testsupport.AnglePayload(150, 100, 120))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.TrainDir, "cap_aligned.json"), testsupport.AnglePayload(155, 96, 123))
	testsupport.WriteJSON(t, filepath.Join(cfg.Paths.TrainDir, "cap_neck.json"), testsupport.AnglePayload(135, 96, 123))

	session, err := detector.NewSession(cfg, nil, nil, "alice")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := session.SaveReference(angles.Triple{Neck: 155, Back: 96, Legs: 123}); err != nil {
		t.Fatalf("SaveReference: %v", err)
	}
	if _, err := session.Train(context.Background()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	return session
}

func TestRunClassifiesNewCaptures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWatchUser("alice"), testsupport.WithNeighbors(1))
	cfg.Watch.IncrementalTraining = true
	session := trainedSession(t, cfg)

	capture := filepath.Join(session.Paths().PredictDir, "live.json")
	testsupport.WriteJSON(t, capture, testsupport.AnglePayload(135, 96, 123))

	hub := stream.NewHub()
	events, cancelSub := hub.Subscribe()
	defer cancelSub()

	watcher := watch.New(cfg, session, hub, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	var event stream.StatusEvent
	select {
	case data := <-events:
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("parse event: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no status event for the seeded capture")
	}
	if event.User != "alice" || event.Capture != "live.json" {
		t.Fatalf("event = %+v", event)
	}
	if event.Label != "Neck Misalignment" {
		t.Fatalf("Label = %q, want Neck Misalignment", event.Label)
	}

	deadline := time.Now().Add(5 * time.Second)
	var augmented []string
	for time.Now().Before(deadline) {
		augmented, _ = filepath.Glob(filepath.Join(cfg.Paths.TrainDir, "aug_alice_*.json"))
		if len(augmented) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(augmented) == 0 {
		t.Fatalf("no augmented sample appended to the training directory")
	}

	data, err := os.ReadFile(augmented[0])
	if err != nil {
		t.Fatalf("read augmented sample: %v", err)
	}
	var payload struct {
		Angles   angles.Triple `json:"angles"`
		Metadata struct {
			User            string        `json:"user_id"`
			SourceFile      string        `json:"source_file"`
			OffsetsApplied  angles.Triple `json:"offsets_applied"`
			UserSpaceAngles angles.Triple `json:"user_space_angles"`
			BaseSpaceAngles angles.Triple `json:"base_space_angles"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("parse augmented sample: %v", err)
	}
	if payload.Metadata.User != "alice" {
		t.Fatalf("augmented user = %q", payload.Metadata.User)
	}
	// Base space removes the personal offsets {5, -4, 3} from the
	// observed {135, 96, 123}.
	want := angles.Triple{Neck: 130, Back: 100, Legs: 120}
	if payload.Angles != want {
		t.Fatalf("base-space angles = %+v, want %+v", payload.Angles, want)
	}
	if payload.Metadata.UserSpaceAngles != (angles.Triple{Neck: 135, Back: 96, Legs: 123}) {
		t.Fatalf("user-space angles = %+v", payload.Metadata.UserSpaceAngles)
	}
	if payload.Metadata.BaseSpaceAngles != want {
		t.Fatalf("metadata base-space angles = %+v", payload.Metadata.BaseSpaceAngles)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestRunFailsWithoutTrainedModel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWatchUser("alice"))
	session, err := detector.NewSession(cfg, nil, nil, "alice")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	watcher := watch.New(cfg, session, nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := watcher.Run(ctx); err == nil {
		t.Fatalf("Run succeeded without a trained model")
	}
}
