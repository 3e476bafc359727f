package wire

import (
	"encoding/json"
	"errors"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

var ErrMalformedSample = errors.New("malformed sample")

// Sample is one playback position report, in seconds.
type Sample struct {
	Position float64
	Duration float64
}

// ParseSample decodes a timeupdate payload. Players disagree on the shape so
// it accepts {seconds,duration}, {currentTime,duration}, either of those
// wrapped in a JSON string, numeric strings, and as a last resort any key
// containing "current" and "time" plus any key containing "duration".
func ParseSample(raw []byte) (Sample, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return Sample{}, err
	}
	return SampleFromMap(m)
}

// SampleFromMap applies the ParseSample rules to an already decoded object.
func SampleFromMap(m map[string]any) (Sample, error) {
	pos, okPos := number(m["seconds"])
	if !okPos {
		pos, okPos = number(m["currentTime"])
	}
	dur, okDur := number(m["duration"])

	if !okPos || !okDur {
		// Sorted so that several matching keys always resolve the same way.
		for _, k := range slices.Sorted(maps.Keys(m)) {
			v := m[k]
			lk := strings.ToLower(k)
			if !okPos && strings.Contains(lk, "current") && strings.Contains(lk, "time") {
				pos, okPos = number(v)
			}
			if !okDur && strings.Contains(lk, "duration") {
				dur, okDur = number(v)
			}
		}
	}
	if !okPos || !okDur {
		return Sample{}, ErrMalformedSample
	}
	return Sample{Position: pos, Duration: dur}, nil
}

// ParseSeconds decodes a bare numeric getter reply.
func ParseSeconds(raw []byte) (float64, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, ErrMalformedSample
	}
	f, ok := number(v)
	if !ok {
		return 0, ErrMalformedSample
	}
	return f, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, ErrMalformedSample
	}
	// Some embeds double-encode the payload.
	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, ErrMalformedSample
		}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, ErrMalformedSample
	}
	return m, nil
}

func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
