// Package profile lays out the on-disk artifacts of one user's calibration:
// the personal reference capture, the trained model and label table, run
// metadata, and the derived capture directories.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"posture/internal/angles"
	"posture/internal/keypoint"
)

// ErrInvalidUser rejects user identifiers that would escape the profiles
// directory or collide with path syntax.
var ErrInvalidUser = errors.New("profile: invalid user id")

// Paths locates every artifact of one user's profile.
type Paths struct {
	Dir         string
	Reference   string
	Model       string
	Encoder     string
	Metadata    string
	AdjustedDir string
	PredictDir  string
}

// For computes the artifact paths for a user under the profiles root.
func For(profilesDir, user string) Paths {
	dir := filepath.Join(profilesDir, user)
	return Paths{
		Dir:         dir,
		Reference:   filepath.Join(dir, "reference_posture.json"),
		Model:       filepath.Join(dir, "posture_model.json"),
		Encoder:     filepath.Join(dir, "label_encoder.json"),
		Metadata:    filepath.Join(dir, "profile.json"),
		AdjustedDir: filepath.Join(dir, "train_adjusted"),
		PredictDir:  filepath.Join(dir, "predict"),
	}
}

// ValidateUser checks that a user id is safe to use as a directory name.
func ValidateUser(user string) error {
	if user == "" || user != strings.TrimSpace(user) {
		return fmt.Errorf("%w: %q", ErrInvalidUser, user)
	}
	if strings.ContainsAny(user, `/\`) || user == "." || user == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidUser, user)
	}
	return nil
}

// Ensure creates the profile directory tree.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.Dir, p.AdjustedDir, p.PredictDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profile directory: %w", err)
		}
	}
	return nil
}

// HasReference reports whether the personal reference capture exists.
func (p Paths) HasReference() bool {
	info, err := os.Stat(p.Reference)
	return err == nil && info.Mode().IsRegular()
}

// ImportReference validates that a capture yields an angle triple and then
// installs it as the user's personal reference.
func (p Paths) ImportReference(sourcePath string, minConfidence float64) (angles.Triple, error) {
	triple, err := angles.FromFile(sourcePath, minConfidence)
	if err != nil {
		return angles.Triple{}, fmt.Errorf("reference capture %s: %w", sourcePath, err)
	}
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return angles.Triple{}, err
	}
	if err := p.Ensure(); err != nil {
		return angles.Triple{}, err
	}
	if err := os.WriteFile(p.Reference, data, 0o644); err != nil {
		return angles.Triple{}, fmt.Errorf("install reference: %w", err)
	}
	return triple, nil
}

// Metadata records what one training run produced, so prediction can reuse
// the calibration without recomputing it.
type Metadata struct {
	User              string                     `json:"user_id"`
	RunID             string                     `json:"run_id"`
	TrainedAt         time.Time                  `json:"trained_at"`
	SampleCount       int                        `json:"sample_count"`
	SkippedCount      int                        `json:"skipped_count"`
	Labels            []string                   `json:"labels"`
	Neighbors         int                        `json:"neighbors"`
	BaseReference     string                     `json:"base_reference"`
	PersonalReference string                     `json:"personal_reference"`
	PersonalAngles    angles.Triple              `json:"personal_angles"`
	Offsets           angles.Triple              `json:"offsets"`
	CoordinateOffsets map[string]keypoint.Offset `json:"coordinate_offsets,omitempty"`
}

// Save writes the metadata to the profile's metadata path.
func (m *Metadata) Save(p Paths) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile metadata: %w", err)
	}
	if err := os.WriteFile(p.Metadata, data, 0o644); err != nil {
		return fmt.Errorf("write profile metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads a profile's metadata file.
func LoadMetadata(p Paths) (*Metadata, error) {
	data, err := os.ReadFile(p.Metadata)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode profile metadata %s: %w", p.Metadata, err)
	}
	return &meta, nil
}
