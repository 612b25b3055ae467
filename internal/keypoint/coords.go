package keypoint

import (
	"encoding/json"
	"os"
)

// Coordinates extracts bare part positions from a payload, ignoring
// confidence. Parts whose position cannot be resolved are omitted.
func Coordinates(payload any) map[string]Coordinate {
	lookup := FromPayload(payload)
	coords := make(map[string]Coordinate, len(lookup))
	for name, point := range lookup {
		coords[name] = Coordinate{X: point.X, Y: point.Y}
	}
	return coords
}

// LoadCoordinates reads a JSON capture file and extracts part positions.
// Unreadable or unparseable files degrade to an empty map.
func LoadCoordinates(path string) map[string]Coordinate {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]Coordinate{}
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return map[string]Coordinate{}
	}
	return Coordinates(payload)
}

// OffsetsBetween computes per-part coordinate deltas from a base capture to a
// personal capture. Offsets exist only for parts both captures observed.
func OffsetsBetween(base, personal map[string]Coordinate) map[string]Offset {
	offsets := map[string]Offset{}
	if len(base) == 0 || len(personal) == 0 {
		return offsets
	}
	for name, basePoint := range base {
		personalPoint, ok := personal[name]
		if !ok {
			continue
		}
		offsets[name] = Offset{
			X: personalPoint.X - basePoint.X,
			Y: personalPoint.Y - basePoint.Y,
		}
	}
	return offsets
}
