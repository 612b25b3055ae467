// Package angles extracts the three posture joint angles from capture
// payloads, either directly from embedded angle blocks or geometrically from
// normalized keypoints.
package angles

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"posture/internal/keypoint"
)

var (
	// ErrUnavailable means the payload carried neither a direct angle block
	// nor enough confident keypoints to compute the angles geometrically.
	ErrUnavailable = errors.New("angles: required keypoints unavailable")
	// ErrMalformedPayload means the capture file is not valid JSON or its
	// top level is not an object.
	ErrMalformedPayload = errors.New("angles: malformed payload")
)

// Axis names for the three measured body regions.
const (
	AxisNeck = "neck"
	AxisBack = "back"
	AxisLegs = "legs"
)

// Axes lists the measured regions in display order.
var Axes = []string{AxisNeck, AxisBack, AxisLegs}

// Triple holds one angle in degrees per measured region.
type Triple struct {
	Neck float64 `json:"neck"`
	Back float64 `json:"back"`
	Legs float64 `json:"legs"`
}

// Axis returns the angle for a named region. Unknown names return zero.
func (t Triple) Axis(name string) float64 {
	switch name {
	case AxisNeck:
		return t.Neck
	case AxisBack:
		return t.Back
	case AxisLegs:
		return t.Legs
	}
	return 0
}

// WithAxis returns a copy with the named region replaced.
func (t Triple) WithAxis(name string, value float64) Triple {
	switch name {
	case AxisNeck:
		t.Neck = value
	case AxisBack:
		t.Back = value
	case AxisLegs:
		t.Legs = value
	}
	return t
}

// Sub returns the per-region difference t minus other.
func (t Triple) Sub(other Triple) Triple {
	return Triple{
		Neck: t.Neck - other.Neck,
		Back: t.Back - other.Back,
		Legs: t.Legs - other.Legs,
	}
}

// Add returns the per-region sum of t and other.
func (t Triple) Add(other Triple) Triple {
	return Triple{
		Neck: t.Neck + other.Neck,
		Back: t.Back + other.Back,
		Legs: t.Legs + other.Legs,
	}
}

// Map returns the triple keyed by axis name.
func (t Triple) Map() map[string]float64 {
	return map[string]float64{
		AxisNeck: t.Neck,
		AxisBack: t.Back,
		AxisLegs: t.Legs,
	}
}

// Between computes the angle at vertex b formed by rays toward a and c,
// in degrees. Degenerate zero-length rays are absorbed by a small epsilon in
// the denominator rather than producing NaN.
func Between(a, b, c keypoint.Coordinate) float64 {
	bax := a.X - b.X
	bay := a.Y - b.Y
	bcx := c.X - b.X
	bcy := c.Y - b.Y
	dot := bax*bcx + bay*bcy
	norm := math.Hypot(bax, bay)*math.Hypot(bcx, bcy) + 1e-6
	cos := dot / norm
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// directContainers are probed in order before falling back to geometric
// extraction. The first container carrying all three regions wins.
var directContainers = []string{"adjusted_angles", "personalized_angles", "angles", "reference_angles"}

// FromPayload extracts the angle triple from a parsed capture payload.
// Direct angle blocks take priority over geometric computation so that
// pre-adjusted captures round-trip without keypoint requirements.
func FromPayload(payload any, minConfidence float64) (Triple, error) {
	root, ok := payload.(map[string]any)
	if !ok {
		return Triple{}, ErrMalformedPayload
	}
	for _, key := range directContainers {
		if container, ok := root[key].(map[string]any); ok {
			if triple, ok := direct(container); ok {
				return triple, nil
			}
		}
	}
	if triple, ok := direct(root); ok {
		return triple, nil
	}
	return FromKeypoints(keypoint.FromPayload(root), minConfidence)
}

// FromFile reads a capture file and extracts its angle triple.
func FromFile(path string, minConfidence float64) (Triple, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Triple{}, err
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Triple{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return FromPayload(payload, minConfidence)
}

// sidedParts are required on one body side for geometric extraction.
var sidedParts = []string{"ear", "shoulder", "hip", "knee", "ankle"}

// FromKeypoints computes the triple geometrically from normalized keypoints.
// The body side with the more confident ear is used; the left side wins ties.
// Every required part on the chosen side must meet the confidence floor.
func FromKeypoints(points keypoint.Map, minConfidence float64) (Triple, error) {
	side := "left"
	if points.Confidence("right_ear") > points.Confidence("left_ear") {
		side = "right"
	}

	coords := make(map[string]keypoint.Coordinate, len(sidedParts))
	for _, part := range sidedParts {
		name := side + "_" + part
		point, ok := points[name]
		if !ok || point.Confidence < minConfidence {
			return Triple{}, fmt.Errorf("%w: %s", ErrUnavailable, name)
		}
		coords[part] = keypoint.Coordinate{X: point.X, Y: point.Y}
	}

	return Triple{
		Neck: Between(coords["hip"], coords["shoulder"], coords["ear"]),
		Back: Between(coords["knee"], coords["hip"], coords["shoulder"]),
		Legs: Between(coords["ankle"], coords["knee"], coords["hip"]),
	}, nil
}

// direct reads a triple from an angle container. All three regions must be
// present and numeric.
func direct(container map[string]any) (Triple, bool) {
	var triple Triple
	for _, axis := range Axes {
		value, present := container[axis]
		if !present {
			return Triple{}, false
		}
		parsed, ok := asFloat(value)
		if !ok {
			return Triple{}, false
		}
		triple = triple.WithAxis(axis, parsed)
	}
	return triple, true
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		parsed, err := typed.Float64()
		return parsed, err == nil
	case string:
		parsed, err := strconv.ParseFloat(typed, 64)
		return parsed, err == nil
	}
	return 0, false
}
