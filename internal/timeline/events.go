package timeline

import (
	"fmt"

	"github.com/laurent-yin/otamatone-roll-sub000/internal/engine"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/meter"
)

// ErrNonMonotonic is wrapped into the error returned when the engine
// delivers timing events out of time order. Repairing such a stream is
// unspecified upstream, so it is rejected instead of guessed at.
var ErrNonMonotonic = fmt.Errorf("timing events out of order")

// EventResult bundles the invariant timeline with the character-time map the
// cursor highlighter consumes. CharTimes is always in real seconds.
type EventResult struct {
	Timeline  *Timeline
	CharTimes CharacterTimeMap
}

// BuildFromEvents converts the engine's millisecond-based event stream into
// the subdivision-based timeline. msPerMeasure is the engine's authoritative
// warp-invariant measure duration; pass 0 when unavailable and the builder
// falls back to event-embedded values, then to the 120 BPM default.
//
// Ties are deliberately not merged here: only the baseline builder sees tie
// structure, and the caller reconciles the two timelines through Normalize.
func BuildFromEvents(events []engine.TimingEvent, sig meter.Signature, msPerMeasure float64) (*EventResult, error) {
	spm := sig.SubdivisionsPerMeasure
	if spm <= 0 {
		sig = meter.Analyze(0, 0)
		spm = sig.SubdivisionsPerMeasure
	}

	secondsPerSub := msPerMeasure / 1000 / float64(spm)
	if secondsPerSub <= 0 {
		for _, ev := range events {
			if ev.MillisecondsPerMeasure > 0 {
				secondsPerSub = ev.MillisecondsPerMeasure / 1000 / float64(spm)
				break
			}
		}
	}
	if secondsPerSub <= 0 {
		secondsPerSub = DefaultSecondsPerSubdivision
	}

	tl := &Timeline{
		SubdivisionsPerMeasure: spm,
		SubdivisionUnit:        sig.SubdivisionUnit,
		SubdivisionsPerBeat:    sig.SubdivisionsPerBeat,
	}
	tl.SetTempo(secondsPerSub)
	charTimes := CharacterTimeMap{}

	var barBoundaries, numberBoundaries []float64
	lastBarNumber := -1
	lastMs := 0.0
	lastPosition := 0.0

	for i, ev := range events {
		if ev.Milliseconds >= 0 {
			if ev.Milliseconds < lastMs-BoundaryEpsilon {
				return nil, fmt.Errorf("%w: event %d at %.3fms after %.3fms", ErrNonMonotonic, i, ev.Milliseconds, lastMs)
			}
			lastMs = ev.Milliseconds
		}

		switch ev.Type {
		case engine.EventBar, engine.EventMeasure:
			if ev.Milliseconds >= 0 {
				barBoundaries = appendBoundary(barBoundaries, ev.Milliseconds/1000/secondsPerSub)
				recordCharTimes(charTimes, ev, ev.Milliseconds/1000)
			}
			continue
		}

		startSub, ok := eventStart(ev, sig, secondsPerSub)
		if !ok {
			continue
		}
		if startSub > lastPosition {
			lastPosition = startSub
		}

		if ev.BarNumber >= 0 && ev.BarNumber > lastBarNumber {
			lastBarNumber = ev.BarNumber
			numberBoundaries = appendBoundary(numberBoundaries, startSub)
		}

		recordCharTimes(charTimes, ev, startSub*secondsPerSub)

		for _, mp := range ev.MidiPitches {
			durSub := eventDuration(ev, mp, sig, secondsPerSub)
			vel := mp.Volume
			if vel <= 0 {
				vel = DefaultVelocity
			}
			note := Note{
				Pitch:                mp.Pitch,
				StartSubdivision:     startSub,
				DurationSubdivisions: durSub,
				Velocity:             vel,
			}
			if ev.StartChar >= 0 {
				note.Source = &SourceRef{StartChar: ev.StartChar, EndChar: ev.EndChar}
			}
			if end := startSub + durSub; end > lastPosition {
				lastPosition = end
			}
			tl.Notes = append(tl.Notes, note)
		}
	}

	tl.finishTotal(lastPosition)

	switch {
	case len(barBoundaries) > 0:
		tl.MeasureBoundaries = barBoundaries
	case len(numberBoundaries) > 0:
		tl.MeasureBoundaries = numberBoundaries
	default:
		for b := float64(spm); b <= tl.TotalSubdivisions+BoundaryEpsilon; b += float64(spm) {
			tl.addBoundary(b)
		}
	}

	return &EventResult{Timeline: tl, CharTimes: charTimes}, nil
}

// eventStart converts an event's timestamp to subdivisions, falling back to
// the whole-note position carried on the first pitch record.
func eventStart(ev engine.TimingEvent, sig meter.Signature, secondsPerSub float64) (float64, bool) {
	if ev.Milliseconds >= 0 {
		return ev.Milliseconds / 1000 / secondsPerSub, true
	}
	for _, mp := range ev.MidiPitches {
		if mp.Start >= 0 {
			return mp.Start * float64(sig.SubdivisionUnit), true
		}
	}
	return 0, false
}

// eventDuration follows the same dual path as eventStart.
func eventDuration(ev engine.TimingEvent, mp engine.MidiPitch, sig meter.Signature, secondsPerSub float64) float64 {
	if ev.DurationMs >= 0 {
		return ev.DurationMs / 1000 / secondsPerSub
	}
	if mp.Duration >= 0 {
		return mp.Duration * float64(sig.SubdivisionUnit)
	}
	return 0
}

func recordCharTimes(m CharacterTimeMap, ev engine.TimingEvent, seconds float64) {
	if len(ev.StartCharArray) > 0 {
		for _, c := range ev.StartCharArray {
			m.Record(c, seconds)
		}
		return
	}
	m.Record(ev.StartChar, seconds)
}

func appendBoundary(list []float64, sub float64) []float64 {
	if sub < 0 {
		return list
	}
	if n := len(list); n > 0 && sub-list[n-1] < BoundaryEpsilon {
		return list
	}
	return append(list, sub)
}
