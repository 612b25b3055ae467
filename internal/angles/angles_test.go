package angles_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"posture/internal/angles"
	"posture/internal/keypoint"
	"posture/internal/testsupport"
)

func TestBetweenRangeAndSymmetry(t *testing.T) {
	cases := []struct {
		name    string
		a, b, c keypoint.Coordinate
		want    float64
	}{
		{
			name: "right angle",
			a:    keypoint.Coordinate{X: 1, Y: 0},
			b:    keypoint.Coordinate{X: 0, Y: 0},
			c:    keypoint.Coordinate{X: 0, Y: 1},
			want: 90,
		},
		{
			name: "straight line",
			a:    keypoint.Coordinate{X: 0, Y: -1},
			b:    keypoint.Coordinate{X: 0, Y: 0},
			c:    keypoint.Coordinate{X: 0, Y: 1},
			want: 180,
		},
		{
			name: "collapsed",
			a:    keypoint.Coordinate{X: 1, Y: 1},
			b:    keypoint.Coordinate{X: 0, Y: 0},
			c:    keypoint.Coordinate{X: 2, Y: 2},
			want: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := angles.Between(tc.a, tc.b, tc.c)
			if math.Abs(got-tc.want) > 0.1 {
				t.Fatalf("Between = %.4f, want %.4f", got, tc.want)
			}
			if got < 0 || got > 180 {
				t.Fatalf("Between = %.4f outside [0,180]", got)
			}
			reversed := angles.Between(tc.c, tc.b, tc.a)
			if math.Abs(got-reversed) > 1e-9 {
				t.Fatalf("Between not symmetric: %.6f vs %.6f", got, reversed)
			}
		})
	}
}

func TestBetweenDegenerateVertexDoesNotNaN(t *testing.T) {
	got := angles.Between(
		keypoint.Coordinate{X: 0, Y: 0},
		keypoint.Coordinate{X: 0, Y: 0},
		keypoint.Coordinate{X: 1, Y: 1},
	)
	if math.IsNaN(got) {
		t.Fatal("expected a finite angle for zero-length ray")
	}
}

func TestFromPayloadDirectContainerPriority(t *testing.T) {
	payload := map[string]any{
		"adjusted_angles": map[string]any{"neck": 150.0, "back": 100.0, "legs": 120.0},
		"angles":          map[string]any{"neck": 1.0, "back": 2.0, "legs": 3.0},
		"neck":            9.0, "back": 9.0, "legs": 9.0,
	}
	got, err := angles.FromPayload(payload, 0.75)
	if err != nil {
		t.Fatalf("FromPayload: %v", err)
	}
	want := angles.Triple{Neck: 150, Back: 100, Legs: 120}
	if got != want {
		t.Fatalf("FromPayload = %+v, want %+v", got, want)
	}
}

func TestFromPayloadDirectRootFields(t *testing.T) {
	payload := map[string]any{"neck": 140.5, "back": 95.0, "legs": "110.25"}
	got, err := angles.FromPayload(payload, 0.75)
	if err != nil {
		t.Fatalf("FromPayload: %v", err)
	}
	if got.Legs != 110.25 {
		t.Fatalf("string-encoded angle not parsed: %+v", got)
	}
}

func TestFromPayloadIncompleteDirectFallsBack(t *testing.T) {
	// An angle block missing a region must not short-circuit extraction.
	payload := testsupport.KeypointPayload(testsupport.StraightLeftSide(0.9)...)
	payload["angles"] = map[string]any{"neck": 150.0, "back": 100.0}

	got, err := angles.FromPayload(payload, 0.75)
	if err != nil {
		t.Fatalf("FromPayload: %v", err)
	}
	if math.Abs(got.Back-180) > 0.1 {
		t.Fatalf("expected geometric back angle near 180, got %.2f", got.Back)
	}
}

func TestFromKeypointsStraightLine(t *testing.T) {
	points := keypoint.FromPayload(testsupport.KeypointPayload(testsupport.StraightLeftSide(0.9)...))
	got, err := angles.FromKeypoints(points, 0.75)
	if err != nil {
		t.Fatalf("FromKeypoints: %v", err)
	}
	for _, axis := range angles.Axes {
		if math.Abs(got.Axis(axis)-180) > 0.1 {
			t.Fatalf("%s = %.2f, want 180", axis, got.Axis(axis))
		}
	}
}

func TestFromKeypointsSideSelection(t *testing.T) {
	entries := []testsupport.KeypointEntry{
		{Name: "left_ear", X: 0, Y: 0, Confidence: 0.2},
		{Name: "right_ear", X: 200, Y: 0, Confidence: 0.9},
		{Name: "right_shoulder", X: 200, Y: 100, Confidence: 0.9},
		{Name: "right_hip", X: 200, Y: 200, Confidence: 0.9},
		{Name: "right_knee", X: 200, Y: 300, Confidence: 0.9},
		{Name: "right_ankle", X: 200, Y: 400, Confidence: 0.9},
	}
	points := keypoint.FromPayload(testsupport.KeypointPayload(entries...))
	got, err := angles.FromKeypoints(points, 0.75)
	if err != nil {
		t.Fatalf("expected right side to be used: %v", err)
	}
	if math.Abs(got.Neck-180) > 0.1 {
		t.Fatalf("neck = %.2f, want 180", got.Neck)
	}
}

func TestFromKeypointsTiePrefersLeft(t *testing.T) {
	entries := append(testsupport.StraightLeftSide(0.9),
		testsupport.KeypointEntry{Name: "right_ear", X: 500, Y: 500, Confidence: 0.9})
	points := keypoint.FromPayload(testsupport.KeypointPayload(entries...))
	if _, err := angles.FromKeypoints(points, 0.75); err != nil {
		t.Fatalf("tie should resolve to the complete left side: %v", err)
	}
}

func TestFromKeypointsLowConfidenceUnavailable(t *testing.T) {
	entries := testsupport.StraightLeftSide(0.9)
	entries[2].Confidence = 0.5 // left_hip under threshold
	points := keypoint.FromPayload(testsupport.KeypointPayload(entries...))
	_, err := angles.FromKeypoints(points, 0.75)
	if !errors.Is(err, angles.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFromFileMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("not json at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := angles.FromFile(path, 0.75)
	if !errors.Is(err, angles.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestFromPayloadOpenPoseStyle(t *testing.T) {
	payload := map[string]any{
		"people": []any{
			map[string]any{
				"pose_keypoints_2d": map[string]any{
					"left_ear":      []any{100.0, 0.0, 0.9},
					"left_shoulder": []any{100.0, 100.0, 0.9},
					"left_hip":      []any{100.0, 200.0, 0.9},
					"left_knee":     []any{100.0, 300.0, 0.9},
					"left_ankle":    []any{100.0, 400.0, 0.9},
				},
			},
		},
	}

	triple, err := angles.FromPayload(payload, 0.75)
	if err != nil {
		t.Fatalf("FromPayload: %v", err)
	}
	for _, angle := range []float64{triple.Neck, triple.Back, triple.Legs} {
		if math.Abs(angle-180) > 0.01 {
			t.Fatalf("collinear landmarks should yield 180 degrees, got %+v", triple)
		}
	}
}
