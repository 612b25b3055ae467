package keypoint

import "strconv"

// FromPayload locates and normalizes the keypoint container inside an
// arbitrary parsed JSON payload. It understands both the nested person-list
// layout ({"persons": [...]} / {"people": [...]}) and containers placed
// directly on the payload root, probing the container field aliases in order.
// Unrecognizable payloads degrade to an empty map; this function never fails.
func FromPayload(payload any) Map {
	root, ok := payload.(map[string]any)
	if !ok {
		return Map{}
	}

	if persons := personList(root); len(persons) > 0 {
		if person, ok := persons[0].(map[string]any); ok {
			for _, key := range containerKeys {
				if container, present := person[key]; present {
					if normalized := Normalize(container); len(normalized) > 0 {
						return normalized
					}
				}
			}
		}
	}

	for _, key := range containerKeys {
		if container, present := root[key]; present {
			if normalized := Normalize(container); len(normalized) > 0 {
				return normalized
			}
		}
	}

	return Map{}
}

// Normalize converts a raw keypoint container into a Map. Two container
// shapes are supported: a mapping from part name to a point object or a 3+
// element [x, y, confidence, ...] sequence, and a list of per-part objects
// naming themselves through one of the part-name aliases. Entries without a
// resolvable name or numeric position are dropped silently.
func Normalize(raw any) Map {
	lookup := Map{}

	switch container := raw.(type) {
	case map[string]any:
		for name, entry := range container {
			if point, ok := normalizeEntry(entry); ok {
				lookup[name] = point
			}
		}
	case []any:
		for _, item := range container {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := entryName(entry)
			if name == "" {
				continue
			}
			if point, ok := normalizeObject(entry); ok {
				lookup[name] = point
			}
		}
	}

	return lookup
}

func normalizeEntry(entry any) (Point, bool) {
	switch value := entry.(type) {
	case map[string]any:
		return normalizeObject(value)
	case []any:
		if len(value) < 3 {
			return Point{}, false
		}
		x, okX := floatValue(value[0])
		y, okY := floatValue(value[1])
		if !okX || !okY {
			return Point{}, false
		}
		confidence, _ := floatValue(value[2])
		return Point{X: x, Y: y, Confidence: confidence, Visible: true}, true
	default:
		return Point{}, false
	}
}

func normalizeObject(entry map[string]any) (Point, bool) {
	position, _ := entry["position"].(map[string]any)

	x, okX := coordinateValue(entry, position, "x")
	y, okY := coordinateValue(entry, position, "y")
	if !okX || !okY {
		return Point{}, false
	}

	visible := true
	for _, key := range []string{"visible", "is_visible"} {
		if flag, ok := entry[key].(bool); ok {
			visible = flag
			break
		}
	}

	var confidence float64
	if visible {
		for _, key := range confidenceKeys {
			if value, present := entry[key]; present {
				if parsed, ok := floatValue(value); ok {
					confidence = parsed
				}
				break
			}
		}
	}

	return Point{X: x, Y: y, Confidence: confidence, Visible: visible}, true
}

func coordinateValue(entry, position map[string]any, axis string) (float64, bool) {
	if value, present := entry[axis]; present {
		if parsed, ok := floatValue(value); ok {
			return parsed, true
		}
		return 0, false
	}
	if position != nil {
		if value, present := position[axis]; present {
			if parsed, ok := floatValue(value); ok {
				return parsed, true
			}
		}
	}
	return 0, false
}

func entryName(entry map[string]any) string {
	for _, key := range nameKeys {
		if value, ok := entry[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func personList(root map[string]any) []any {
	for _, key := range []string{"persons", "people"} {
		if list, ok := root[key].([]any); ok && len(list) > 0 {
			return list
		}
	}
	return nil
}

// floatValue coerces the numeric shapes a JSON decoder can produce, plus
// numeric strings, which some upstream producers emit for coordinates.
func floatValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
