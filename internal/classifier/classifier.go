// Package classifier provides the nearest-neighbor posture model trained on
// per-axis deviation features, plus the label codec it is fitted against.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

// FeatureCount is the dimensionality of the model input: one deviation per
// measured body region.
const FeatureCount = 3

// Features is one deviation vector in region order neck, back, legs.
type Features [FeatureCount]float64

// ErrNoSamples means fit was called with an empty feature table.
var ErrNoSamples = errors.New("classifier: no training samples")

// Sample is one fitted row.
type Sample struct {
	Features Features `json:"features"`
	Code     int      `json:"code"`
}

// Model is a distance-weighted k-nearest-neighbor classifier over encoded
// labels. With fewer than two distinct labels in the training set it
// degrades to a constant predictor.
type Model struct {
	Neighbors int      `json:"neighbors"`
	Samples   []Sample `json:"samples"`
	Constant  *int     `json:"constant,omitempty"`
}

// Fit builds a model from parallel feature and code slices.
func Fit(features []Features, codes []int, neighbors int) (*Model, error) {
	if len(features) == 0 {
		return nil, ErrNoSamples
	}
	if len(features) != len(codes) {
		return nil, fmt.Errorf("classifier: %d features for %d codes", len(features), len(codes))
	}
	if neighbors < 1 {
		neighbors = 1
	}

	model := &Model{Neighbors: neighbors, Samples: make([]Sample, len(features))}
	distinct := map[int]struct{}{}
	for i, f := range features {
		model.Samples[i] = Sample{Features: f, Code: codes[i]}
		distinct[codes[i]] = struct{}{}
	}
	if len(distinct) < 2 {
		constant := codes[0]
		model.Constant = &constant
	}
	return model, nil
}

// Predict returns the encoded label for a deviation vector. Votes are
// weighted by inverse distance so exact matches dominate.
func (m *Model) Predict(f Features) int {
	if m.Constant != nil {
		return *m.Constant
	}

	type scored struct {
		distance float64
		code     int
	}
	ranked := make([]scored, len(m.Samples))
	for i, sample := range m.Samples {
		ranked[i] = scored{distance: distance(f, sample.Features), code: sample.Code}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].distance < ranked[j].distance })

	k := m.Neighbors
	if k > len(ranked) {
		k = len(ranked)
	}

	votes := map[int]float64{}
	for _, neighbor := range ranked[:k] {
		votes[neighbor.code] += 1 / (neighbor.distance + 1e-9)
	}

	best := ranked[0].code
	bestWeight := math.Inf(-1)
	for code, weight := range votes {
		if weight > bestWeight || (weight == bestWeight && code < best) {
			best = code
			bestWeight = weight
		}
	}
	return best
}

// Save writes the model as JSON.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// LoadModel reads a model saved by Save.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if len(model.Samples) == 0 && model.Constant == nil {
		return nil, fmt.Errorf("decode model %s: %w", path, ErrNoSamples)
	}
	if model.Neighbors < 1 {
		model.Neighbors = 1
	}
	return &model, nil
}

func distance(a, b Features) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Encoder is the symmetric string-to-integer label codec built from the
// observed label set. Codes are assigned in sorted label order so a rebuilt
// encoder over the same labels is identical.
type Encoder struct {
	codes  map[string]int
	labels []string
}

// NewEncoder builds an encoder over the distinct labels in the input.
func NewEncoder(observed []string) *Encoder {
	distinct := map[string]struct{}{}
	for _, label := range observed {
		distinct[label] = struct{}{}
	}
	labels := make([]string, 0, len(distinct))
	for label := range distinct {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	codes := make(map[string]int, len(labels))
	for code, label := range labels {
		codes[label] = code
	}
	return &Encoder{codes: codes, labels: labels}
}

// Encode maps a label to its code.
func (e *Encoder) Encode(label string) (int, bool) {
	code, ok := e.codes[label]
	return code, ok
}

// Decode maps a code back to its label.
func (e *Encoder) Decode(code int) (string, bool) {
	if code < 0 || code >= len(e.labels) {
		return "", false
	}
	return e.labels[code], true
}

// Labels returns the encoded label set in code order.
func (e *Encoder) Labels() []string {
	out := make([]string, len(e.labels))
	copy(out, e.labels)
	return out
}

// Save writes the encoder's label table as JSON.
func (e *Encoder) Save(path string) error {
	data, err := json.MarshalIndent(struct {
		Labels []string `json:"labels"`
	}{Labels: e.labels}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode label table: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write label table: %w", err)
	}
	return nil
}

// LoadEncoder reads an encoder saved by Save.
func LoadEncoder(path string) (*Encoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode label table %s: %w", path, err)
	}
	return NewEncoder(payload.Labels), nil
}
