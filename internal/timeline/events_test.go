package timeline

import (
	"errors"
	"testing"

	"github.com/laurent-yin/otamatone-roll-sub000/internal/engine"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/meter"
)

func noteEvent(ms, durMs float64, pitches ...float64) engine.TimingEvent {
	mps := make([]engine.MidiPitch, len(pitches))
	for i, p := range pitches {
		mps[i] = engine.MidiPitch{Pitch: p, Volume: 105, Start: -1, Duration: -1}
	}
	return engine.TimingEvent{
		Type:         engine.EventNote,
		Milliseconds: ms,
		DurationMs:   durMs,
		StartChar:    -1,
		EndChar:      -1,
		BarNumber:    -1,
		MidiPitches:  mps,
	}
}

func barEvent(ms float64) engine.TimingEvent {
	return engine.TimingEvent{Type: engine.EventBar, Milliseconds: ms, DurationMs: -1, StartChar: -1, EndChar: -1, BarNumber: -1}
}

// Four quarter notes in 4/4 at 120 BPM: one measure is 2000 ms.
func TestEventsFourQuarterNotes(t *testing.T) {
	sig := meter.Analyze(4, 4)
	events := []engine.TimingEvent{
		noteEvent(0, 500, 60),
		noteEvent(500, 500, 62),
		noteEvent(1000, 500, 64),
		noteEvent(1500, 500, 65),
		barEvent(2000),
	}
	res, err := BuildFromEvents(events, sig, 2000)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	tl := res.Timeline
	if !approx(tl.SecondsPerSubdivision, 0.5) {
		t.Fatalf("expected 0.5 s/subdivision, got %v", tl.SecondsPerSubdivision)
	}
	if len(tl.Notes) != 4 {
		t.Fatalf("expected 4 notes, got %d", len(tl.Notes))
	}
	for i, n := range tl.Notes {
		if !approx(n.StartSubdivision, float64(i)) || !approx(n.DurationSubdivisions, 1) {
			t.Fatalf("note %d: start %v dur %v", i, n.StartSubdivision, n.DurationSubdivisions)
		}
	}
	if !approx(tl.TotalSubdivisions, 4) {
		t.Fatalf("total %v, expected 4", tl.TotalSubdivisions)
	}
	if len(tl.MeasureBoundaries) != 1 || !approx(tl.MeasureBoundaries[0], 4) {
		t.Fatalf("expected one boundary at 4, got %v", tl.MeasureBoundaries)
	}
}

// A one-beat pickup of four sixteenths in 2/4: the first measure ends after
// one subdivision, the next full measure after three.
func TestEventsPickupMeasureBoundaries(t *testing.T) {
	sig := meter.Analyze(2, 4)
	// quarter = 500 ms, so a sixteenth is 125 ms and a measure is 1000 ms
	events := []engine.TimingEvent{
		noteEvent(0, 125, 72),
		noteEvent(125, 125, 71),
		noteEvent(250, 125, 69),
		noteEvent(375, 125, 67),
		barEvent(500),
		noteEvent(500, 500, 60),
		noteEvent(1000, 500, 62),
		barEvent(1500),
	}
	res, err := BuildFromEvents(events, sig, 1000)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	b := res.Timeline.MeasureBoundaries
	if len(b) != 2 {
		t.Fatalf("expected 2 boundaries, got %v", b)
	}
	if !approx(b[0], 1) || !approx(b[1], 3) {
		t.Fatalf("expected boundaries at 1 and 3, got %v", b)
	}
}

func TestEventsTriadSharesStart(t *testing.T) {
	res, err := BuildFromEvents([]engine.TimingEvent{noteEvent(0, 500, 60, 64, 67)}, meter.Analyze(4, 4), 2000)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(res.Timeline.Notes) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(res.Timeline.Notes))
	}
	for i, n := range res.Timeline.Notes {
		if n.StartSubdivision != 0 {
			t.Fatalf("triad note %d should start at 0, got %v", i, n.StartSubdivision)
		}
	}
}

func TestEventsTempoFallbackChain(t *testing.T) {
	// no authoritative value, but one event embeds ms-per-measure
	ev := noteEvent(0, 500, 60)
	ev.MillisecondsPerMeasure = 4000
	res, err := BuildFromEvents([]engine.TimingEvent{ev}, meter.Analyze(4, 4), 0)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !approx(res.Timeline.SecondsPerSubdivision, 1.0) {
		t.Fatalf("embedded 4000 ms/measure should give 1 s/subdivision, got %v", res.Timeline.SecondsPerSubdivision)
	}

	// nothing at all: 120 BPM default
	res, err = BuildFromEvents([]engine.TimingEvent{noteEvent(0, 500, 60)}, meter.Analyze(4, 4), 0)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !approx(res.Timeline.SecondsPerSubdivision, DefaultSecondsPerSubdivision) {
		t.Fatalf("expected default 0.5 s/subdivision, got %v", res.Timeline.SecondsPerSubdivision)
	}
}

func TestEventsWholeNoteFallbackStart(t *testing.T) {
	ev := engine.TimingEvent{
		Type:         engine.EventNote,
		Milliseconds: -1,
		DurationMs:   -1,
		StartChar:    -1,
		EndChar:      -1,
		BarNumber:    -1,
		MidiPitches:  []engine.MidiPitch{{Pitch: 60, Start: 0.25, Duration: 0.25}},
	}
	res, err := BuildFromEvents([]engine.TimingEvent{ev}, meter.Analyze(4, 4), 2000)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	n := res.Timeline.Notes[0]
	if !approx(n.StartSubdivision, 1) || !approx(n.DurationSubdivisions, 1) {
		t.Fatalf("whole-note fallback: start %v dur %v, expected 1 and 1", n.StartSubdivision, n.DurationSubdivisions)
	}
}

func TestEventsBarNumberBoundaries(t *testing.T) {
	mk := func(ms float64, bar int) engine.TimingEvent {
		ev := noteEvent(ms, 500, 60)
		ev.BarNumber = bar
		return ev
	}
	events := []engine.TimingEvent{mk(0, 0), mk(500, 0), mk(2000, 1), mk(4000, 2)}
	res, err := BuildFromEvents(events, meter.Analyze(4, 4), 2000)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	b := res.Timeline.MeasureBoundaries
	if len(b) != 3 {
		t.Fatalf("expected boundaries at first sighting of each bar number, got %v", b)
	}
	if !approx(b[1], 4) || !approx(b[2], 8) {
		t.Fatalf("expected boundaries 0,4,8, got %v", b)
	}
}

func TestEventsSynthesizedBoundaries(t *testing.T) {
	events := []engine.TimingEvent{
		noteEvent(0, 2000, 60),
		noteEvent(2000, 2000, 62),
	}
	res, err := BuildFromEvents(events, meter.Analyze(4, 4), 2000)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	b := res.Timeline.MeasureBoundaries
	if len(b) != 2 || !approx(b[0], 4) || !approx(b[1], 8) {
		t.Fatalf("expected synthesized boundaries at 4 and 8, got %v", b)
	}
}

func TestEventsBoundaryDedup(t *testing.T) {
	events := []engine.TimingEvent{
		barEvent(0),
		barEvent(0.00001),
		noteEvent(0, 500, 60),
		barEvent(2000),
		barEvent(2000),
	}
	res, err := BuildFromEvents(events, meter.Analyze(4, 4), 2000)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	b := res.Timeline.MeasureBoundaries
	for i := 1; i < len(b); i++ {
		if b[i]-b[i-1] < BoundaryEpsilon {
			t.Fatalf("boundaries %v and %v closer than epsilon", b[i-1], b[i])
		}
	}
	if len(b) != 2 {
		t.Fatalf("expected 2 deduplicated boundaries, got %v", b)
	}
}

func TestEventsOutOfOrderRejected(t *testing.T) {
	events := []engine.TimingEvent{
		noteEvent(1000, 500, 60),
		noteEvent(0, 500, 62),
	}
	_, err := BuildFromEvents(events, meter.Analyze(4, 4), 2000)
	if err == nil {
		t.Fatalf("expected error for out-of-order events")
	}
	if !errors.Is(err, ErrNonMonotonic) {
		t.Fatalf("expected ErrNonMonotonic, got %v", err)
	}
}

func TestEventsCharTimeMapFirstWriterWins(t *testing.T) {
	first := noteEvent(0, 500, 60)
	first.StartChar = 10
	again := noteEvent(500, 500, 60)
	again.StartChar = 10
	other := noteEvent(1000, 500, 62)
	other.StartCharArray = []int{20, 21}
	res, err := BuildFromEvents([]engine.TimingEvent{first, again, other}, meter.Analyze(4, 4), 2000)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if got := res.CharTimes[10]; got != 0 {
		t.Fatalf("offset 10 should keep its first time 0, got %v", got)
	}
	if got := res.CharTimes[20]; !approx(got, 1.0) {
		t.Fatalf("offset 20 should be at 1.0 s, got %v", got)
	}
	if got := res.CharTimes[21]; !approx(got, 1.0) {
		t.Fatalf("offset 21 should be at 1.0 s, got %v", got)
	}
}

func TestEventsCharTimeMapIncludesBarEvents(t *testing.T) {
	note := noteEvent(0, 500, 60)
	note.StartChar = 10
	bar := barEvent(2000)
	bar.StartChar = 30
	res, err := BuildFromEvents([]engine.TimingEvent{note, bar}, meter.Analyze(4, 4), 2000)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if got := res.CharTimes[30]; !approx(got, 2.0) {
		t.Fatalf("bar offset 30 should be at 2.0 s, got %v", got)
	}
}
