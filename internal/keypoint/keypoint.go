package keypoint

// Point is one detected landmark in image space. Confidence is already
// resolved: an explicitly invisible landmark carries confidence 0 regardless
// of the value the producer reported.
type Point struct {
	X          float64
	Y          float64
	Confidence float64
	Visible    bool
}

// Map associates canonical part names (left_shoulder, right_hip, ...) with
// normalized keypoints.
type Map map[string]Point

// Coordinate is a bare image-space position without confidence.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Offset is a per-part coordinate delta between two reference captures.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Confidence returns the usable confidence for a part, or 0 when the part is
// absent from the map.
func (m Map) Confidence(part string) float64 {
	point, ok := m[part]
	if !ok {
		return 0
	}
	return point.Confidence
}

// containerKeys are the field names under which producers store keypoint
// containers, probed in order.
var containerKeys = []string{"keypoints", "pose_keypoints", "pose_keypoints_2d"}

// nameKeys are the aliases under which list-dialect entries carry a part name.
var nameKeys = []string{"part_name", "name", "part", "id"}

// confidenceKeys are the aliases under which entries carry confidence.
var confidenceKeys = []string{"confidence", "score", "probability"}
