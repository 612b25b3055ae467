// Package corpus turns a directory of raw posture captures into labeled
// training records in the user's calibrated angle space.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"posture/internal/angles"
	"posture/internal/keypoint"
	"posture/internal/logging"
	"posture/internal/profile"
	"posture/internal/reference"
	"posture/internal/rules"
)

// ErrNoUsableCaptures means the scan produced zero training records. Partial
// failures only skip individual files; this is the one fatal outcome.
var ErrNoUsableCaptures = errors.New("corpus: no usable captures")

// Record is one prepared training row plus the provenance needed to audit it.
type Record struct {
	User                  string        `json:"user_id"`
	SourceFile            string        `json:"source_file"`
	BaseReferenceFile     string        `json:"base_reference_file"`
	PersonalReferenceFile string        `json:"personal_reference_file"`
	ReferenceOffsets      angles.Triple `json:"reference_offsets"`
	OriginalAngles        angles.Triple `json:"original_angles"`
	AdjustedAngles        angles.Triple `json:"adjusted_angles"`
	RawDeviation          angles.Triple `json:"deviation_from_personal"`
	AdjustedDeviation     angles.Triple `json:"adjusted_deviation_from_personal"`
	Reprojected           bool          `json:"angles_reprojected"`
	Label                 string        `json:"manual_label"`
	Score                 float64       `json:"manual_score"`
	AdjustedPath          string        `json:"adjusted_payload_path,omitempty"`
}

// Features returns the record's deviation vector in region order.
func (r Record) Features() [3]float64 {
	return [3]float64{r.AdjustedDeviation.Neck, r.AdjustedDeviation.Back, r.AdjustedDeviation.Legs}
}

// Result is the outcome of one preparation run.
type Result struct {
	Records     []Record
	Skipped     int
	AdjustedDir string
}

// Preparer scans the shared training directory and emits calibrated records
// for one user.
type Preparer struct {
	TrainDir      string
	MinConfidence float64

	log *slog.Logger
}

// NewPreparer builds a preparer over the shared capture directory.
func NewPreparer(trainDir string, minConfidence float64, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Preparer{
		TrainDir:      trainDir,
		MinConfidence: minConfidence,
		log:           logger.With(logging.String(logging.FieldComponent, "corpus")),
	}
}

// Prepare runs one full preparation pass: purge the user's adjusted output
// directory, scan the training directory, re-project every usable capture
// into baseline space, label and score it, and persist the augmented copy.
// Reference files themselves are excluded from the scan. Individual bad
// captures are skipped with a diagnostic; only an empty result fails.
func (p *Preparer) Prepare(user string, paths profile.Paths, res *reference.Resolution) (*Result, error) {
	if err := paths.Ensure(); err != nil {
		return nil, err
	}
	p.purgeJSON(paths.AdjustedDir)

	captures, err := filepath.Glob(filepath.Join(p.TrainDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", p.TrainDir, err)
	}
	if len(captures) == 0 {
		return nil, fmt.Errorf("%w: no capture files in %s", ErrNoUsableCaptures, p.TrainDir)
	}

	excluded := map[string]struct{}{
		res.BasePath:     {},
		res.PersonalPath: {},
	}

	result := &Result{AdjustedDir: paths.AdjustedDir}
	for _, path := range captures {
		abs, err := filepath.Abs(path)
		if err == nil {
			if _, skip := excluded[abs]; skip {
				continue
			}
		}

		record, ok := p.prepareOne(user, path, paths, res)
		if !ok {
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, record)
	}

	if len(result.Records) == 0 {
		return nil, fmt.Errorf("%w: all %d captures in %s were skipped", ErrNoUsableCaptures, result.Skipped, p.TrainDir)
	}
	p.log.Info("prepared training corpus",
		logging.String(logging.FieldUser, user),
		logging.Int("records", len(result.Records)),
		logging.Int("skipped", result.Skipped))
	return result, nil
}

func (p *Preparer) prepareOne(user, path string, paths profile.Paths, res *reference.Resolution) (Record, bool) {
	name := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		p.log.Warn("skipping unreadable capture", logging.String(logging.FieldCapture, name), logging.Error(err))
		return Record{}, false
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		p.log.Warn("skipping malformed capture", logging.String(logging.FieldCapture, name), logging.Error(err))
		return Record{}, false
	}

	current, err := angles.FromPayload(payload, p.MinConfidence)
	if err != nil {
		p.log.Warn("skipping capture without extractable angles", logging.String(logging.FieldCapture, name), logging.Error(err))
		return Record{}, false
	}

	adjustedPayload := keypoint.ApplyOffsets(payload, res.CoordinateOffsets)
	reprojected := true
	adjusted, err := angles.FromPayload(adjustedPayload, p.MinConfidence)
	if err != nil {
		// Geometry did not survive re-projection. Approximate by shifting
		// the measured angles directly.
		adjusted = current.Add(res.Offsets)
		reprojected = false
	}

	assessment := rules.Check(adjusted, res.Personal)
	record := Record{
		User:                  user,
		SourceFile:            name,
		BaseReferenceFile:     filepath.Base(res.BasePath),
		PersonalReferenceFile: filepath.Base(res.PersonalPath),
		ReferenceOffsets:      res.Offsets,
		OriginalAngles:        current,
		AdjustedAngles:        adjusted,
		RawDeviation:          current.Sub(res.Personal),
		AdjustedDeviation:     adjusted.Sub(res.Personal),
		Reprojected:           reprojected,
		Label:                 assessment.Label,
		Score:                 assessment.Score,
	}

	outputPath := filepath.Join(paths.AdjustedDir, name)
	if err := writeAugmented(outputPath, adjustedPayload, record, res.CoordinateOffsets); err != nil {
		p.log.Warn("unable to persist adjusted capture", logging.String(logging.FieldCapture, name), logging.Error(err))
	} else {
		record.AdjustedPath = outputPath
	}
	return record, true
}

// adjustmentBlock is embedded into each augmented payload so the adjusted
// copy is self-describing.
type adjustmentBlock struct {
	User                  string                     `json:"user_id"`
	BaseReferenceFile     string                     `json:"base_reference_file"`
	PersonalReferenceFile string                     `json:"personal_reference_file"`
	ReferenceOffsets      angles.Triple              `json:"reference_offsets"`
	OriginalAngles        angles.Triple              `json:"original_angles"`
	AdjustedAngles        angles.Triple              `json:"adjusted_angles"`
	Deviation             angles.Triple              `json:"deviation_from_personal"`
	CoordinateOffsets     map[string]keypoint.Offset `json:"keypoint_coordinate_offsets"`
	AdjustedAt            time.Time                  `json:"adjusted_at"`
	Label                 string                     `json:"manual_label"`
	Score                 float64                    `json:"manual_score"`
}

func writeAugmented(path string, adjustedPayload any, record Record, offsets map[string]keypoint.Offset) error {
	block := adjustmentBlock{
		User:                  record.User,
		BaseReferenceFile:     record.BaseReferenceFile,
		PersonalReferenceFile: record.PersonalReferenceFile,
		ReferenceOffsets:      record.ReferenceOffsets,
		OriginalAngles:        record.OriginalAngles,
		AdjustedAngles:        record.AdjustedAngles,
		Deviation:             record.RawDeviation,
		CoordinateOffsets:     offsets,
		AdjustedAt:            time.Now().UTC(),
		Label:                 record.Label,
		Score:                 record.Score,
	}

	var augmented any
	if root, ok := adjustedPayload.(map[string]any); ok {
		root["personalization_adjustment"] = block
		augmented = root
	} else {
		augmented = map[string]any{
			"personalization_adjustment": block,
			"raw_payload":                adjustedPayload,
		}
	}

	data, err := json.MarshalIndent(augmented, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// purgeJSON removes every JSON file in dir so the directory reflects exactly
// one run. Removal failures are logged and skipped so a stale or locked file
// cannot abort the preparation pass.
func (p *Preparer) purgeJSON(dir string) {
	stale, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		p.log.Warn("could not scan adjusted directory", logging.String("dir", dir), logging.Error(err))
		return
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.Warn("could not purge stale adjusted file", logging.String(logging.FieldCapture, filepath.Base(path)), logging.Error(err))
		}
	}
}
