package keypoint

// ApplyOffsets produces a deep copy of the payload with every keypoint's
// position shifted by its part's offset. Parts without a defined offset and
// values that are not numeric are left untouched. The traversal covers the
// same container dialects FromPayload understands, so a re-projected payload
// can be fed straight back into angle extraction.
func ApplyOffsets(payload any, offsets map[string]Offset) any {
	adjusted := deepCopy(payload)
	root, ok := adjusted.(map[string]any)
	if !ok || len(offsets) == 0 {
		return adjusted
	}

	if persons := personList(root); persons != nil {
		for _, item := range persons {
			person, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range containerKeys {
				if container, present := person[key]; present {
					shiftContainer(container, offsets)
				}
			}
		}
	}

	for _, key := range containerKeys {
		if container, present := root[key]; present {
			shiftContainer(container, offsets)
		}
	}

	return adjusted
}

func shiftContainer(container any, offsets map[string]Offset) {
	switch typed := container.(type) {
	case []any:
		for _, item := range typed {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := entryName(entry)
			if name == "" {
				continue
			}
			if delta, ok := offsets[name]; ok {
				shiftEntry(entry, delta)
			}
		}
	case map[string]any:
		for name, entry := range typed {
			delta, ok := offsets[name]
			if !ok {
				continue
			}
			switch value := entry.(type) {
			case map[string]any:
				shiftEntry(value, delta)
			case []any:
				if len(value) < 2 {
					continue
				}
				x, okX := floatValue(value[0])
				y, okY := floatValue(value[1])
				if !okX || !okY {
					continue
				}
				value[0] = x + delta.X
				value[1] = y + delta.Y
			}
		}
	}
}

func shiftEntry(entry map[string]any, delta Offset) {
	shiftAxes(entry, delta)
	if position, ok := entry["position"].(map[string]any); ok {
		shiftAxes(position, delta)
	}
}

func shiftAxes(fields map[string]any, delta Offset) {
	for axis, shift := range map[string]float64{"x": delta.X, "y": delta.Y} {
		value, present := fields[axis]
		if !present || value == nil {
			continue
		}
		if parsed, ok := floatValue(value); ok {
			fields[axis] = parsed + shift
		}
	}
}

// deepCopy clones a parsed JSON tree so re-projection never mutates the
// caller's payload.
func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for key, entry := range typed {
			clone[key] = deepCopy(entry)
		}
		return clone
	case []any:
		clone := make([]any, len(typed))
		for i, entry := range typed {
			clone[i] = deepCopy(entry)
		}
		return clone
	default:
		return typed
	}
}
