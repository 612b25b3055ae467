// Package rules implements tolerance-band posture classification and the
// weighted deviation score against a user's personal reference angles.
package rules

import "posture/internal/angles"

// Per-axis status strings reported in assessment details.
const (
	StatusGood        = "GOOD"
	StatusTooBent     = "INCORRECT (Too Bent/Forward)"
	StatusTooReclined = "INCORRECT (Too Reclined/Extended)"
)

// NoCorrection is the suggestion attached to a region inside its band.
const NoCorrection = "No correction needed."

// tolerances define the half-width of the acceptance band around the
// personal angle, in degrees.
var tolerances = map[string]float64{
	angles.AxisNeck: 10,
	angles.AxisBack: 10,
	angles.AxisLegs: 10,
}

// weights scale each axis's squared deviation in the score.
var weights = map[string]float64{
	angles.AxisNeck: 1.0,
	angles.AxisBack: 1.5,
	angles.AxisLegs: 0.5,
}

// limits are the anatomically reachable angle ranges used to normalize the
// score denominator.
var limits = map[string]struct{ Min, Max float64 }{
	angles.AxisNeck: {Min: 125.19, Max: 178.45},
	angles.AxisBack: {Min: 59.70, Max: 145.25},
	angles.AxisLegs: {Min: 86.13, Max: 164.73},
}

// suggestions hold the fixed correction texts per axis and direction.
var suggestions = map[string]struct{ Low, High string }{
	angles.AxisNeck: {
		Low:  "FIX: Your neck is bent too far forward. Tuck your chin in.",
		High: "FIX: Avoid tilting your head too far back.",
	},
	angles.AxisBack: {
		Low:  "FIX: You are slouching. Sit up straight and engage your core.",
		High: "FIX: You are leaning back too far. Bring your torso upright.",
	},
	angles.AxisLegs: {
		Low:  "FIX: Your knees are too bent. Adjust your seating or footrest.",
		High: "FIX: Your legs are too extended. Place your feet flat on the floor.",
	},
}

// labels maps the 3-bit bad-axis mask (neck, back, legs from high to low bit)
// to the classification label. Every combination is covered, so lookup never
// falls through.
var labels = [8]string{
	"Aligned Posture",
	"Legs Misalignment",
	"Back Misalignment",
	"Back & Legs Misalignment",
	"Neck Misalignment",
	"Neck & Legs Misalignment",
	"Neck & Back Misalignment",
	"Full Body Misalignment",
}

// Labels returns every classification label the rule table can produce.
func Labels() []string {
	out := make([]string, len(labels))
	copy(out, labels[:])
	return out
}

// Band is the acceptance range for one axis plus its correction texts.
type Band struct {
	Min            float64
	Max            float64
	LowSuggestion  string
	HighSuggestion string
}

// Set holds one band per axis, derived from a personal reference.
type Set map[string]Band

// Build derives the per-axis acceptance bands around the personal angles.
func Build(personal angles.Triple) Set {
	set := make(Set, len(angles.Axes))
	for _, axis := range angles.Axes {
		tolerance := tolerances[axis]
		text := suggestions[axis]
		set[axis] = Band{
			Min:            personal.Axis(axis) - tolerance,
			Max:            personal.Axis(axis) + tolerance,
			LowSuggestion:  text.Low,
			HighSuggestion: text.High,
		}
	}
	return set
}

// Classify maps observed angles onto one of the eight fixed labels. Each axis
// is independently in or out of its band; the combination selects the label.
func (s Set) Classify(observed angles.Triple) string {
	index := 0
	for i, axis := range angles.Axes {
		band := s[axis]
		angle := observed.Axis(axis)
		if angle < band.Min || angle > band.Max {
			index |= 1 << (len(angles.Axes) - 1 - i)
		}
	}
	return labels[index]
}

// MaxThreshold computes the largest weighted squared deviation reachable
// within the anatomical limits from the personal angles. It is the score
// denominator, so the score is normalized per user.
func MaxThreshold(personal angles.Triple) float64 {
	threshold := 0.0
	for _, axis := range angles.Axes {
		limit := limits[axis]
		ideal := personal.Axis(axis)
		worst := limit.Max
		if abs(limit.Min-ideal) > abs(limit.Max-ideal) {
			worst = limit.Min
		}
		diff := abs(worst - ideal)
		threshold += weights[axis] * diff * diff
	}
	return threshold
}

// Score computes the 0 to 100 posture score from the weighted squared
// deviation of observed against personal angles. A zero denominator collapses
// the score to binary.
func Score(observed, personal angles.Triple, maxThreshold float64) float64 {
	weighted := 0.0
	for _, axis := range angles.Axes {
		diff := observed.Axis(axis) - personal.Axis(axis)
		weighted += weights[axis] * diff * diff
	}
	if maxThreshold <= 0 {
		if weighted <= 1e-6 {
			return 100
		}
		return 0
	}
	score := (1 - weighted/maxThreshold) * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Detail reports one axis's angle, status, and correction text.
type Detail struct {
	Region     string  `json:"region"`
	Angle      float64 `json:"angle"`
	Status     string  `json:"status"`
	Suggestion string  `json:"suggestion"`
}

// Assessment is the full rule-based verdict for one capture.
type Assessment struct {
	Label   string   `json:"label"`
	Score   float64  `json:"score"`
	Details []Detail `json:"details"`
}

// Check runs the complete rule pipeline: build bands from the personal
// angles, classify, score, and produce per-axis details.
func Check(observed, personal angles.Triple) Assessment {
	set := Build(personal)
	details := make([]Detail, 0, len(angles.Axes))
	for _, axis := range angles.Axes {
		band := set[axis]
		angle := observed.Axis(axis)
		detail := Detail{
			Region:     axis,
			Angle:      angle,
			Status:     StatusGood,
			Suggestion: NoCorrection,
		}
		switch {
		case angle < band.Min:
			detail.Status = StatusTooBent
			detail.Suggestion = band.LowSuggestion
		case angle > band.Max:
			detail.Status = StatusTooReclined
			detail.Suggestion = band.HighSuggestion
		}
		details = append(details, detail)
	}
	return Assessment{
		Label:   set.Classify(observed),
		Score:   Score(observed, personal, MaxThreshold(personal)),
		Details: details,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
