// Package watch polls a user's prediction directory and classifies every new
// capture as it appears, feeding results to the status hub, the notifier,
// and optionally back into the training corpus.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"posture/internal/angles"
	"posture/internal/config"
	"posture/internal/detector"
	"posture/internal/logging"
	"posture/internal/notify"
	"posture/internal/stream"
)

// Watcher drives one user's live classification loop.
type Watcher struct {
	cfg       *config.Config
	session   *detector.Session
	hub       *stream.Hub
	publisher notify.Publisher
	log       *slog.Logger

	incremental bool
	// processed tracks files already handled this run. Captures are
	// classified once; restarts reprocess whatever is still present.
	processed map[string]struct{}
}

// New builds a watcher. Hub and publisher may be nil.
func New(cfg *config.Config, session *detector.Session, hub *stream.Hub, publisher notify.Publisher, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if publisher == nil {
		publisher = notify.Nop()
	}
	return &Watcher{
		cfg:         cfg,
		session:     session,
		hub:         hub,
		publisher:   publisher,
		log:         logger.With(logging.String(logging.FieldComponent, "watch"), logging.String(logging.FieldUser, session.User())),
		incremental: cfg.Watch.IncrementalTraining,
		processed:   map[string]struct{}{},
	}
}

// Run polls until the context is canceled. The session must have a trained
// model on disk.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.session.Loaded() {
		if err := w.session.Load(); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
	}

	predictDir := w.session.Paths().PredictDir
	if err := os.MkdirAll(predictDir, 0o755); err != nil {
		return fmt.Errorf("watch: create predict directory: %w", err)
	}

	w.log.Info("watching for captures",
		logging.String("session_id", uuid.NewString()),
		logging.String("dir", predictDir))
	if offsets := w.session.Offsets(); hasOffset(offsets) {
		w.log.Info("personal reference shift active",
			logging.Float64("neck", offsets.Neck),
			logging.Float64("back", offsets.Back),
			logging.Float64("legs", offsets.Legs))
	}
	if w.incremental {
		w.log.Info("incremental augmentation enabled")
	}

	pollInterval := time.Duration(w.cfg.Watch.PollInterval) * time.Second
	retryInterval := time.Duration(w.cfg.Watch.ErrorRetryInterval) * time.Second

	for {
		interval := pollInterval
		if err := w.scan(ctx, predictDir); err != nil {
			w.log.Error("scan failed", logging.Error(err))
			interval = retryInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (w *Watcher) scan(ctx context.Context, dir string) error {
	captures, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	for _, path := range captures {
		if _, seen := w.processed[path]; seen {
			continue
		}
		w.handle(ctx, path)
		w.processed[path] = struct{}{}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func (w *Watcher) handle(ctx context.Context, path string) {
	name := filepath.Base(path)
	started := time.Now()

	result, err := w.session.PredictFile(ctx, path)
	if err != nil {
		w.log.Warn("could not process capture", logging.String(logging.FieldCapture, name), logging.Error(err))
		return
	}

	w.log.Info("classified capture",
		logging.String(logging.FieldCapture, name),
		logging.String(logging.FieldLabel, result.ModelLabel),
		logging.String("rule_label", result.RuleLabel),
		logging.Float64(logging.FieldScore, result.Score),
		logging.Duration("elapsed", time.Since(started)))

	if w.hub != nil {
		w.hub.Publish(stream.StatusEvent{
			User:    w.session.User(),
			Capture: name,
			Label:   result.ModelLabel,
			Score:   result.Score,
		})
	}
	if err := w.publisher.PublishPrediction(notify.PredictionEvent{
		User:      w.session.User(),
		Capture:   name,
		Label:     result.ModelLabel,
		RuleLabel: result.RuleLabel,
		Score:     result.Score,
	}); err != nil {
		w.log.Warn("event publish failed", logging.Error(err))
	}

	if w.incremental {
		if dest, err := w.appendAugmented(path, result.Angles); err != nil {
			w.log.Warn("unable to append augmented sample", logging.Error(err))
		} else {
			w.log.Info("augmented sample appended", logging.String("dest", filepath.Base(dest)))
		}
	}
}

// appendAugmented re-projects a classified capture into base-reference space
// and appends it to the shared training directory, so future calibrations of
// any user benefit from it.
func (w *Watcher) appendAugmented(sourcePath string, observed angles.Triple) (string, error) {
	offsets := w.session.Offsets()
	baseSpace := observed.Sub(offsets)

	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		abs = sourcePath
	}
	now := time.Now().UTC()

	payload := map[string]any{
		"timestamp": now.Format(time.RFC3339),
		"angles":    baseSpace,
		"metadata": map[string]any{
			"user_id":           w.session.User(),
			"source_file":       abs,
			"captured_at":       now.Format(time.RFC3339),
			"offsets_applied":   offsets,
			"user_space_angles": observed,
			"base_space_angles": baseSpace,
		},
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("aug_%s_%s.json", w.session.User(), now.Format("20060102T150405Z"))
	dest := filepath.Join(w.cfg.Paths.TrainDir, name)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

func hasOffset(t angles.Triple) bool {
	return math.Abs(t.Neck) > 1e-6 || math.Abs(t.Back) > 1e-6 || math.Abs(t.Legs) > 1e-6
}
