package tracker

import (
	"math"
	"sort"
)

// Span is a half-open watched interval [Start, End) in seconds.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (s Span) Len() float64 { return s.End - s.Start }

// Segments is an ordered set of disjoint spans. Spans closer than the merge
// tolerance are coalesced, so after every Add no two spans overlap or touch.
type Segments struct {
	resolution float64
	tolerance  float64
	spans      []Span
}

func NewSegments(resolution, tolerance float64) *Segments {
	if resolution <= 0 {
		resolution = 1
	}
	if tolerance < 0 {
		tolerance = 0
	}
	return &Segments{resolution: resolution, tolerance: tolerance}
}

// Add records [start, end). The start is floored and the end ceiled to the
// resolution before merging. Empty or inverted ranges are ignored.
func (s *Segments) Add(start, end float64) {
	if !(start < end) {
		return
	}
	start = math.Floor(start/s.resolution) * s.resolution
	end = math.Ceil(end/s.resolution) * s.resolution
	if start < 0 {
		start = 0
	}

	s.spans = append(s.spans, Span{Start: start, End: end})
	sort.Slice(s.spans, func(i, j int) bool { return s.spans[i].Start < s.spans[j].Start })

	merged := s.spans[:1]
	for _, next := range s.spans[1:] {
		cur := &merged[len(merged)-1]
		if cur.End+s.tolerance >= next.Start {
			if next.End > cur.End {
				cur.End = next.End
			}
			continue
		}
		merged = append(merged, next)
	}
	s.spans = merged
}

// Total is recomputed from the spans on every call.
func (s *Segments) Total() float64 {
	var total float64
	for _, sp := range s.spans {
		total += sp.Len()
	}
	return total
}

func (s *Segments) Spans() []Span {
	out := make([]Span, len(s.spans))
	copy(out, s.spans)
	return out
}

func (s *Segments) Len() int { return len(s.spans) }
