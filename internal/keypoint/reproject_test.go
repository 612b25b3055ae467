package keypoint_test

import (
	"testing"

	"posture/internal/angles"
	"posture/internal/keypoint"
)

func TestApplyOffsetsListDialect(t *testing.T) {
	payload := map[string]any{
		"persons": []any{
			map[string]any{
				"keypoints": []any{
					map[string]any{"part_name": "left_shoulder", "x": 100.0, "y": 200.0, "confidence": 0.9},
					map[string]any{"part_name": "left_hip", "x": 100.0, "y": 300.0, "confidence": 0.9},
				},
			},
		},
	}
	offsets := map[string]keypoint.Offset{
		"left_shoulder": {X: 5, Y: -10},
	}

	adjusted := keypoint.ApplyOffsets(payload, offsets)

	coords := keypoint.Coordinates(adjusted)
	shoulder, ok := coords["left_shoulder"]
	if !ok {
		t.Fatalf("left_shoulder missing from adjusted payload")
	}
	if shoulder.X != 105 || shoulder.Y != 190 {
		t.Fatalf("left_shoulder = %+v, want {105 190}", shoulder)
	}
	hip, ok := coords["left_hip"]
	if !ok {
		t.Fatalf("left_hip missing from adjusted payload")
	}
	if hip.X != 100 || hip.Y != 300 {
		t.Fatalf("left_hip shifted without an offset: %+v", hip)
	}
}

func TestApplyOffsetsPositionNesting(t *testing.T) {
	payload := map[string]any{
		"keypoints": []any{
			map[string]any{
				"name":     "left_knee",
				"position": map[string]any{"x": 50.0, "y": 60.0},
				"score":    0.8,
			},
		},
	}

	adjusted := keypoint.ApplyOffsets(payload, map[string]keypoint.Offset{
		"left_knee": {X: 1.5, Y: 2.5},
	})

	knee := keypoint.Coordinates(adjusted)["left_knee"]
	if knee.X != 51.5 || knee.Y != 62.5 {
		t.Fatalf("left_knee = %+v, want {51.5 62.5}", knee)
	}
}

func TestApplyOffsetsMapDialectSequence(t *testing.T) {
	payload := map[string]any{
		"pose_keypoints": map[string]any{
			"left_ankle": []any{10.0, 20.0, 0.7},
			"left_ear":   []any{30.0, 40.0, 0.7},
		},
	}

	adjusted := keypoint.ApplyOffsets(payload, map[string]keypoint.Offset{
		"left_ankle": {X: -3, Y: 4},
	})

	coords := keypoint.Coordinates(adjusted)
	if ankle := coords["left_ankle"]; ankle.X != 7 || ankle.Y != 24 {
		t.Fatalf("left_ankle = %+v, want {7 24}", ankle)
	}
	if ear := coords["left_ear"]; ear.X != 30 || ear.Y != 40 {
		t.Fatalf("left_ear shifted without an offset: %+v", ear)
	}
}

func TestApplyOffsetsLeavesNonNumericValues(t *testing.T) {
	payload := map[string]any{
		"keypoints": map[string]any{
			"left_hip": map[string]any{"x": "not a number", "y": 10.0, "confidence": 0.9},
		},
	}

	adjusted := keypoint.ApplyOffsets(payload, map[string]keypoint.Offset{
		"left_hip": {X: 5, Y: 5},
	})

	root := adjusted.(map[string]any)
	entry := root["keypoints"].(map[string]any)["left_hip"].(map[string]any)
	if entry["x"] != "not a number" {
		t.Fatalf("non-numeric x rewritten: %v", entry["x"])
	}
	if entry["y"] != 15.0 {
		t.Fatalf("y = %v, want 15", entry["y"])
	}
}

func TestApplyOffsetsDoesNotMutateSource(t *testing.T) {
	payload := map[string]any{
		"keypoints": []any{
			map[string]any{"part_name": "left_ear", "x": 1.0, "y": 2.0, "confidence": 0.5},
		},
	}

	keypoint.ApplyOffsets(payload, map[string]keypoint.Offset{
		"left_ear": {X: 100, Y: 100},
	})

	entry := payload["keypoints"].([]any)[0].(map[string]any)
	if entry["x"] != 1.0 || entry["y"] != 2.0 {
		t.Fatalf("source payload mutated: x=%v y=%v", entry["x"], entry["y"])
	}
}

func TestApplyOffsetsNonMapPayload(t *testing.T) {
	adjusted := keypoint.ApplyOffsets([]any{1.0, 2.0}, map[string]keypoint.Offset{
		"left_ear": {X: 1, Y: 1},
	})
	list, ok := adjusted.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("non-map payload not copied through: %v", adjusted)
	}
}

func TestApplyOffsetsUniformShiftPreservesAngles(t *testing.T) {
	payload := map[string]any{
		"keypoints": []any{
			map[string]any{"part_name": "left_ear", "x": 100.0, "y": 0.0, "confidence": 0.9},
			map[string]any{"part_name": "left_shoulder", "x": 110.0, "y": 100.0, "confidence": 0.9},
			map[string]any{"part_name": "left_hip", "x": 95.0, "y": 200.0, "confidence": 0.9},
			map[string]any{"part_name": "left_knee", "x": 140.0, "y": 260.0, "confidence": 0.9},
			map[string]any{"part_name": "left_ankle", "x": 130.0, "y": 360.0, "confidence": 0.9},
		},
	}
	offsets := map[string]keypoint.Offset{}
	for _, part := range []string{"left_ear", "left_shoulder", "left_hip", "left_knee", "left_ankle"} {
		offsets[part] = keypoint.Offset{X: 42, Y: -17}
	}

	original, err := angles.FromPayload(payload, 0.6)
	if err != nil {
		t.Fatalf("FromPayload original: %v", err)
	}
	shifted, err := angles.FromPayload(keypoint.ApplyOffsets(payload, offsets), 0.6)
	if err != nil {
		t.Fatalf("FromPayload shifted: %v", err)
	}

	for _, pair := range [][2]float64{
		{original.Neck, shifted.Neck},
		{original.Back, shifted.Back},
		{original.Legs, shifted.Legs},
	} {
		if diff := pair[0] - pair[1]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("uniform shift changed an angle: %v vs %v", pair[0], pair[1])
		}
	}
}
