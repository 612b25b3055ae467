package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// WriteJSON marshals v and writes it to path, creating parent directories.
func WriteJSON(t testing.TB, path string, v any) {
	t.Helper()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// AnglePayload builds a capture carrying direct angle values.
func AnglePayload(neck, back, legs float64) map[string]any {
	return map[string]any{
		"angles": map[string]any{
			"neck": neck,
			"back": back,
			"legs": legs,
		},
	}
}

// KeypointEntry is one list-dialect keypoint.
type KeypointEntry struct {
	Name       string
	X, Y       float64
	Confidence float64
}

// KeypointPayload builds a list-dialect capture from entries.
func KeypointPayload(entries ...KeypointEntry) map[string]any {
	keypoints := make([]any, 0, len(entries))
	for _, entry := range entries {
		keypoints = append(keypoints, map[string]any{
			"part_name":  entry.Name,
			"x":          entry.X,
			"y":          entry.Y,
			"confidence": entry.Confidence,
		})
	}
	return map[string]any{"keypoints": keypoints}
}

// StraightLeftSide returns confident left-side keypoints stacked on a
// vertical line, which yields 180 degree angles for every region.
func StraightLeftSide(confidence float64) []KeypointEntry {
	return []KeypointEntry{
		{Name: "left_ear", X: 100, Y: 0, Confidence: confidence},
		{Name: "left_shoulder", X: 100, Y: 100, Confidence: confidence},
		{Name: "left_hip", X: 100, Y: 200, Confidence: confidence},
		{Name: "left_knee", X: 100, Y: 300, Confidence: confidence},
		{Name: "left_ankle", X: 100, Y: 400, Confidence: confidence},
	}
}
