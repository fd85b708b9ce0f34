// Package timeline builds tempo-invariant timelines from two independent
// sources: a static parse of the notation and the live event stream of a
// rendering engine. Note positions are expressed in meter subdivisions and
// never change when tempo or warp changes; only the seconds-per-subdivision
// scalar does.
package timeline

import "math"

// BoundaryEpsilon is the minimum spacing between two measure boundaries and
// the tolerance used when comparing subdivision positions.
const BoundaryEpsilon = 1e-4

// DefaultSecondsPerSubdivision is the 120 BPM quarter-note fallback used
// when no tempo information is available at all.
const DefaultSecondsPerSubdivision = 0.5

// SourceRef ties a note back to the notation characters it came from.
type SourceRef struct {
	StartChar  int
	EndChar    int
	StaffIndex int
	VoiceIndex int
}

// Note is one sounding note. Pitch is MIDI-like and may carry a fractional
// microtonal offset. Start and duration are in subdivision units.
type Note struct {
	Pitch                float64
	StartSubdivision     float64
	DurationSubdivisions float64
	Velocity             int
	Source               *SourceRef
}

// Timeline is the tempo-invariant result. Notes appear in discovery order.
// TimePerSubdivision is a legacy alias kept equal to SecondsPerSubdivision;
// both are the only fields a tempo change may touch after construction.
type Timeline struct {
	Notes                  []Note
	TotalSubdivisions      float64
	SubdivisionsPerMeasure int
	SubdivisionUnit        int
	SubdivisionsPerBeat    int
	MeasureBoundaries      []float64
	SecondsPerSubdivision  float64
	TimePerSubdivision     float64
	SecondsPerBeat         float64
}

// SetTempo updates the two tempo scalars together. It is the only sanctioned
// mutation of a constructed Timeline.
func (t *Timeline) SetTempo(secondsPerSubdivision float64) {
	if secondsPerSubdivision <= 0 {
		return
	}
	t.SecondsPerSubdivision = secondsPerSubdivision
	t.TimePerSubdivision = secondsPerSubdivision
}

// DurationSeconds converts the timeline length to real time at the current
// tempo.
func (t *Timeline) DurationSeconds() float64 {
	return t.TotalSubdivisions * t.SecondsPerSubdivision
}

// addBoundary appends a measure boundary keeping the list strictly
// increasing with at least BoundaryEpsilon spacing.
func (t *Timeline) addBoundary(sub float64) {
	if sub < 0 {
		return
	}
	if n := len(t.MeasureBoundaries); n > 0 && sub-t.MeasureBoundaries[n-1] < BoundaryEpsilon {
		return
	}
	t.MeasureBoundaries = append(t.MeasureBoundaries, sub)
}

// finishTotal recomputes TotalSubdivisions from the notes, floor-clamped to
// the supplied minimum (the last recorded event position).
func (t *Timeline) finishTotal(minimum float64) {
	total := minimum
	for _, n := range t.Notes {
		if end := n.StartSubdivision + n.DurationSubdivisions; end > total {
			total = end
		}
	}
	t.TotalSubdivisions = total
}

// CharacterTimeMap records, per source character offset, the elapsed seconds
// at which the offset first sounds. First writer wins.
type CharacterTimeMap map[int]float64

// Record stores seconds for one offset unless the offset was already seen.
func (m CharacterTimeMap) Record(offset int, seconds float64) {
	if offset < 0 {
		return
	}
	if _, seen := m[offset]; !seen {
		m[offset] = seconds
	}
}

// Normalize rescales t's note positions onto ref's tempo basis so the two
// timelines can be compared. The builders stay independent; only the output
// contract is reconciled. Returns a rescaled copy, never mutates t.
func Normalize(t, ref *Timeline) *Timeline {
	if t == nil || ref == nil || t.SecondsPerSubdivision <= 0 || ref.SecondsPerSubdivision <= 0 {
		return t
	}
	ratio := t.SecondsPerSubdivision / ref.SecondsPerSubdivision
	if math.Abs(ratio-1) < 1e-9 {
		return t
	}
	out := *t
	out.Notes = make([]Note, len(t.Notes))
	for i, n := range t.Notes {
		n.StartSubdivision *= ratio
		n.DurationSubdivisions *= ratio
		out.Notes[i] = n
	}
	out.MeasureBoundaries = make([]float64, len(t.MeasureBoundaries))
	for i, b := range t.MeasureBoundaries {
		out.MeasureBoundaries[i] = b * ratio
	}
	out.TotalSubdivisions = t.TotalSubdivisions * ratio
	out.SetTempo(ref.SecondsPerSubdivision)
	return &out
}
