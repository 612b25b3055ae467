// Package detector orchestrates one user's calibration lifecycle: saving a
// reference, training the personalized model over the prepared corpus, and
// classifying new captures against it.
package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"posture/internal/angles"
	"posture/internal/classifier"
	"posture/internal/config"
	"posture/internal/corpus"
	"posture/internal/logging"
	"posture/internal/profile"
	"posture/internal/reference"
	"posture/internal/rules"
	"posture/internal/store"
)

// ErrNotLoaded means Predict was called before Train or Load.
var ErrNotLoaded = errors.New("detector: no model loaded")

// Session holds one user's calibration state. It is not safe for concurrent
// use; the watch loop drives it from a single goroutine.
type Session struct {
	cfg   *config.Config
	log   *slog.Logger
	store *store.Store
	user  string
	paths profile.Paths

	model    *classifier.Model
	encoder  *classifier.Encoder
	personal angles.Triple
	offsets  angles.Triple
}

// NewSession creates a session for a user. The store is optional; without it
// results are not persisted to history.
func NewSession(cfg *config.Config, logger *slog.Logger, st *store.Store, user string) (*Session, error) {
	if err := profile.ValidateUser(user); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Session{
		cfg:   cfg,
		log:   logger.With(logging.String(logging.FieldComponent, "detector"), logging.String(logging.FieldUser, user)),
		store: st,
		user:  user,
		paths: profile.For(cfg.Paths.ProfilesDir, user),
	}, nil
}

// User returns the session's user id.
func (s *Session) User() string { return s.user }

// Paths returns the session's profile layout.
func (s *Session) Paths() profile.Paths { return s.paths }

// Exists reports whether the user has a complete trained profile on disk.
func (s *Session) Exists() bool {
	for _, path := range []string{s.paths.Model, s.paths.Encoder, s.paths.Reference} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// SaveReference persists a freshly measured straight-sitting posture as the
// user's personal reference.
func (s *Session) SaveReference(triple angles.Triple) error {
	if err := s.paths.Ensure(); err != nil {
		return err
	}
	payload := struct {
		Angles    angles.Triple `json:"angles"`
		Timestamp time.Time     `json:"timestamp"`
		User      string        `json:"user_id"`
	}{Angles: triple, Timestamp: time.Now().UTC(), User: s.user}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reference: %w", err)
	}
	if err := os.WriteFile(s.paths.Reference, data, 0o644); err != nil {
		return fmt.Errorf("write reference: %w", err)
	}
	s.log.Info("saved reference posture",
		logging.Float64("neck", triple.Neck),
		logging.Float64("back", triple.Back),
		logging.Float64("legs", triple.Legs))
	return nil
}

// ImportReference installs an existing capture file as the personal
// reference after validating it yields angles.
func (s *Session) ImportReference(sourcePath string) (angles.Triple, error) {
	return s.paths.ImportReference(sourcePath, s.cfg.Analysis.ConfidenceThreshold)
}

// TrainResult summarizes one training run.
type TrainResult struct {
	RunID    string
	Samples  int
	Skipped  int
	Labels   []string
	Offsets  angles.Triple
	Personal angles.Triple
}

// Train resolves the user's calibration, prepares the corpus, fits the
// model, and persists every artifact. The session is left loaded.
func (s *Session) Train(ctx context.Context) (*TrainResult, error) {
	res, err := s.resolve()
	if err != nil {
		return nil, err
	}

	preparer := corpus.NewPreparer(s.cfg.Paths.TrainDir, s.cfg.Analysis.ConfidenceThreshold, s.log)
	prepared, err := preparer.Prepare(s.user, s.paths, res)
	if err != nil {
		return nil, err
	}

	observed := make([]string, len(prepared.Records))
	for i, record := range prepared.Records {
		observed[i] = record.Label
	}
	encoder := classifier.NewEncoder(observed)

	features := make([]classifier.Features, len(prepared.Records))
	codes := make([]int, len(prepared.Records))
	for i, record := range prepared.Records {
		features[i] = record.Features()
		code, ok := encoder.Encode(record.Label)
		if !ok {
			return nil, fmt.Errorf("detector: label %q missing from encoder", record.Label)
		}
		codes[i] = code
	}

	model, err := classifier.Fit(features, codes, s.cfg.Analysis.NeighborCount)
	if err != nil {
		return nil, err
	}

	if err := model.Save(s.paths.Model); err != nil {
		return nil, err
	}
	if err := encoder.Save(s.paths.Encoder); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	meta := &profile.Metadata{
		User:              s.user,
		RunID:             runID,
		TrainedAt:         time.Now().UTC(),
		SampleCount:       len(prepared.Records),
		SkippedCount:      prepared.Skipped,
		Labels:            encoder.Labels(),
		Neighbors:         s.cfg.Analysis.NeighborCount,
		BaseReference:     res.BasePath,
		PersonalReference: res.PersonalPath,
		PersonalAngles:    res.Personal,
		Offsets:           res.Offsets,
		CoordinateOffsets: res.CoordinateOffsets,
	}
	if err := meta.Save(s.paths); err != nil {
		return nil, err
	}

	if s.store != nil {
		run := &store.TrainingRun{
			RunID:        runID,
			User:         s.user,
			SampleCount:  len(prepared.Records),
			SkippedCount: prepared.Skipped,
			Labels:       encoder.Labels(),
			Offsets:      res.Offsets,
		}
		if err := s.store.RecordTrainingRun(ctx, run); err != nil {
			s.log.Warn("unable to record training run", logging.Error(err))
		}
	}

	s.model = model
	s.encoder = encoder
	s.personal = res.Personal
	s.offsets = res.Offsets

	s.log.Info("training complete",
		logging.String("run_id", runID),
		logging.Int("samples", len(prepared.Records)),
		logging.Int("skipped", prepared.Skipped))

	return &TrainResult{
		RunID:    runID,
		Samples:  len(prepared.Records),
		Skipped:  prepared.Skipped,
		Labels:   encoder.Labels(),
		Offsets:  res.Offsets,
		Personal: res.Personal,
	}, nil
}

// Load restores a previously trained model, label table, and calibration
// from the profile directory.
func (s *Session) Load() error {
	model, err := classifier.LoadModel(s.paths.Model)
	if err != nil {
		return fmt.Errorf("load model for %s: %w", s.user, err)
	}
	encoder, err := classifier.LoadEncoder(s.paths.Encoder)
	if err != nil {
		return fmt.Errorf("load label table for %s: %w", s.user, err)
	}

	personal, offsets, err := s.loadCalibration()
	if err != nil {
		return err
	}

	s.model = model
	s.encoder = encoder
	s.personal = personal
	s.offsets = offsets
	s.log.Info("model loaded")
	return nil
}

// loadCalibration prefers profile metadata and falls back to re-reading the
// personal reference capture.
func (s *Session) loadCalibration() (angles.Triple, angles.Triple, error) {
	meta, err := profile.LoadMetadata(s.paths)
	if err == nil {
		return meta.PersonalAngles, meta.Offsets, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("unable to read profile metadata", logging.Error(err))
	}

	personal, err := angles.FromFile(s.paths.Reference, s.cfg.Analysis.ConfidenceThreshold)
	if err != nil {
		return angles.Triple{}, angles.Triple{}, fmt.Errorf("no calibration for %s: %w", s.user, err)
	}
	return personal, angles.Triple{}, nil
}

// Loaded reports whether the session can predict.
func (s *Session) Loaded() bool {
	return s.model != nil && s.encoder != nil
}

// Personal returns the loaded personal reference angles.
func (s *Session) Personal() angles.Triple { return s.personal }

// Offsets returns the loaded reference offsets.
func (s *Session) Offsets() angles.Triple { return s.offsets }

// Result is one classification outcome combining the model's label with the
// rule verdict.
type Result struct {
	ModelLabel  string         `json:"ml_prediction"`
	RuleLabel   string         `json:"manual_label"`
	Score       float64        `json:"score"`
	Suggestions []string       `json:"suggestions"`
	Angles      angles.Triple  `json:"angles"`
	Details     []rules.Detail `json:"details"`
}

// Predict classifies a measured angle triple against the loaded calibration.
func (s *Session) Predict(ctx context.Context, observed angles.Triple) (*Result, error) {
	return s.predict(ctx, "", observed)
}

// PredictFile extracts angles from a capture file and classifies them. The
// capture's base name is recorded in history.
func (s *Session) PredictFile(ctx context.Context, path string) (*Result, error) {
	observed, err := angles.FromFile(path, s.cfg.Analysis.ConfidenceThreshold)
	if err != nil {
		return nil, err
	}
	return s.predict(ctx, filepath.Base(path), observed)
}

func (s *Session) predict(ctx context.Context, capture string, observed angles.Triple) (*Result, error) {
	if !s.Loaded() {
		return nil, ErrNotLoaded
	}

	deviation := observed.Sub(s.personal)
	code := s.model.Predict(classifier.Features{deviation.Neck, deviation.Back, deviation.Legs})
	assessment := rules.Check(observed, s.personal)

	modelLabel, ok := s.encoder.Decode(code)
	if !ok {
		modelLabel = assessment.Label
	}

	var suggestions []string
	for _, detail := range assessment.Details {
		if detail.Status != rules.StatusGood {
			suggestions = append(suggestions, detail.Suggestion)
		}
	}

	result := &Result{
		ModelLabel:  modelLabel,
		RuleLabel:   assessment.Label,
		Score:       assessment.Score,
		Suggestions: suggestions,
		Angles:      observed,
		Details:     assessment.Details,
	}

	if s.store != nil && capture != "" {
		record := &store.Prediction{
			User:       s.user,
			Capture:    capture,
			ModelLabel: modelLabel,
			RuleLabel:  assessment.Label,
			Score:      assessment.Score,
			Adjusted:   observed,
		}
		if err := s.store.RecordPrediction(ctx, record); err != nil {
			s.log.Warn("unable to record prediction", logging.Error(err))
		}
	}
	return result, nil
}

// resolve loads the baseline and, when present, the user's personal
// reference.
func (s *Session) resolve() (*reference.Resolution, error) {
	personalPath := ""
	if s.paths.HasReference() {
		personalPath = s.paths.Reference
	}
	return reference.Resolve(s.cfg.Paths.BaseReference, personalPath, s.cfg.Analysis.ConfidenceThreshold)
}
