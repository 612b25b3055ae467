// Package reference resolves the shared baseline posture and a user's
// personal reference into the offsets that map captures between the two
// angle spaces.
package reference

import (
	"errors"
	"fmt"
	"path/filepath"

	"posture/internal/angles"
	"posture/internal/keypoint"
)

// ErrBaseReference means the shared baseline capture is missing or does not
// yield an angle triple. Nothing downstream can run without it.
var ErrBaseReference = errors.New("reference: base reference unusable")

// Resolution carries the baseline and, when available, a user's personal
// reference plus the derived offsets.
type Resolution struct {
	// BasePath and PersonalPath are absolute so they can be compared
	// against scanned capture paths.
	BasePath     string
	PersonalPath string

	Base     angles.Triple
	Personal angles.Triple

	// HasPersonal reports whether a usable personal reference was found.
	// Without one the offsets are zero and both spaces coincide.
	HasPersonal bool

	// Offsets is Personal minus Base per region.
	Offsets angles.Triple

	// CoordinateOffsets shifts keypoint positions from the baseline frame
	// into the user's frame, keyed by part name. Only parts present in
	// both references appear.
	CoordinateOffsets map[string]keypoint.Offset
}

// Resolve loads the baseline from basePath and, when personalPath is not
// empty, overlays the user's personal reference. A broken or absent personal
// reference degrades to the baseline alone; a broken baseline is fatal.
func Resolve(basePath, personalPath string, minConfidence float64) (*Resolution, error) {
	base, err := angles.FromFile(basePath, minConfidence)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBaseReference, basePath, err)
	}

	res := &Resolution{
		BasePath:          absolute(basePath),
		Base:              base,
		Personal:          base,
		CoordinateOffsets: map[string]keypoint.Offset{},
	}
	// Without a usable personal reference the baseline doubles as the
	// personal one and all offsets stay zero.
	res.PersonalPath = res.BasePath
	if personalPath == "" {
		return res, nil
	}

	personal, err := angles.FromFile(personalPath, minConfidence)
	if err != nil {
		return res, nil
	}

	res.PersonalPath = absolute(personalPath)
	res.Personal = personal
	res.HasPersonal = true
	res.Offsets = personal.Sub(base)
	res.CoordinateOffsets = keypoint.OffsetsBetween(
		keypoint.LoadCoordinates(basePath),
		keypoint.LoadCoordinates(personalPath),
	)
	return res, nil
}

// ToBaseSpace maps a capture measured in the user's frame onto the shared
// baseline by removing the personal offsets.
func (r *Resolution) ToBaseSpace(t angles.Triple) angles.Triple {
	return t.Sub(r.Offsets)
}

// FromBaseSpace maps baseline-space angles into the user's frame.
func (r *Resolution) FromBaseSpace(t angles.Triple) angles.Triple {
	return t.Add(r.Offsets)
}

func absolute(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
