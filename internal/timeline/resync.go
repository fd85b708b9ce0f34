package timeline

import "sync"

// TempoCell is the single owner of the live seconds-per-subdivision value.
// The frame loop and the visualization read it; only the Resynchronizer
// writes it. It is handed to collaborators by reference instead of living in
// a package-level global.
type TempoCell struct {
	mu    sync.Mutex
	value float64
}

func NewTempoCell(secondsPerSubdivision float64) *TempoCell {
	return &TempoCell{value: secondsPerSubdivision}
}

func (c *TempoCell) Get() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *TempoCell) set(v float64) {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
}

// MeasureDurationSource reports the warp-invariant milliseconds-per-measure
// value, read fresh on every resync. The rendering engine's Rendered handle
// satisfies this.
type MeasureDurationSource interface {
	MillisecondsPerMeasure() float64
}

// ClockReseeder re-seeds a playback clock at a musical position so resuming
// after a tempo change does not jump.
type ClockReseeder interface {
	ReseedAt(subdivision float64)
}

// Resynchronizer recomputes the real-time-per-subdivision factor whenever
// the warp changes. It never rebuilds the timeline: the only state it
// touches is the tempo cell and the timeline's two tempo scalars.
type Resynchronizer struct {
	cell     *TempoCell
	source   MeasureDurationSource
	timeline *Timeline
	clock    ClockReseeder
}

func NewResynchronizer(cell *TempoCell, source MeasureDurationSource, tl *Timeline, clock ClockReseeder) *Resynchronizer {
	return &Resynchronizer{cell: cell, source: source, timeline: tl, clock: clock}
}

// OnWarpChange recomputes seconds-per-subdivision for warp ratio w
// (100 = unity) from precise arithmetic on the original measure duration.
//
// The engine's displayed current tempo is an integer rounding of the true
// quarter-notes-per-minute (a true 32.5 QPM shows as 32 or 33) and drifts
// visibly after repeated warp changes, so it is never consulted. When the
// precise value cannot be computed the previously active tempo stays in
// force. currentSubdivision is the musical position at the moment of the
// change; the clock is re-seeded there rather than reset to zero.
func (r *Resynchronizer) OnWarpChange(warp int, currentSubdivision float64) {
	if warp <= 0 {
		return
	}
	msPerMeasure := 0.0
	if r.source != nil {
		msPerMeasure = r.source.MillisecondsPerMeasure()
	}
	spm := 0
	if r.timeline != nil {
		spm = r.timeline.SubdivisionsPerMeasure
	}
	if msPerMeasure <= 0 || spm <= 0 {
		// precise tempo unavailable: freeze the last known-good value
		return
	}
	effective := (msPerMeasure * 100 / float64(warp)) / 1000 / float64(spm)
	r.cell.set(effective)
	if r.timeline != nil {
		r.timeline.SetTempo(effective)
	}
	if r.clock != nil {
		r.clock.ReseedAt(currentSubdivision)
	}
}
