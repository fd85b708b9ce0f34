// Package export writes a timeline out as a Standard MIDI File. Tick
// positions derive purely from subdivision positions, so the exported note
// layout is identical at every warp; only the embedded tempo differs.
package export

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/laurent-yin/otamatone-roll-sub000/internal/timeline"
)

const quarterTicks = 960

// TicksPerSubdivision converts the timeline's subdivision unit into SMF
// metric ticks at 960 ticks per quarter note.
func TicksPerSubdivision(tl *timeline.Timeline) (uint32, error) {
	if tl.SubdivisionUnit <= 0 {
		return 0, fmt.Errorf("export: subdivision unit %d", tl.SubdivisionUnit)
	}
	return uint32(quarterTicks * 4 / tl.SubdivisionUnit), nil
}

type noteEdge struct {
	tick  uint32
	on    bool
	key   uint8
	vel   uint8
	order int
}

// Write renders tl as a single-track SMF and writes it to w.
func Write(tl *timeline.Timeline, w io.Writer) error {
	perSub, err := TicksPerSubdivision(tl)
	if err != nil {
		return err
	}

	edges := make([]noteEdge, 0, len(tl.Notes)*2)
	for i, n := range tl.Notes {
		key := clampKey(n.Pitch)
		vel := clampVelocity(n.Velocity)
		start := uint32(math.Round(n.StartSubdivision * float64(perSub)))
		end := uint32(math.Round((n.StartSubdivision + n.DurationSubdivisions) * float64(perSub)))
		if end <= start {
			end = start + 1
		}
		edges = append(edges,
			noteEdge{tick: start, on: true, key: key, vel: vel, order: i},
			noteEdge{tick: end, on: false, key: key, order: i},
		)
	}
	// note-offs precede note-ons at the same tick so repeated pitches retrigger
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].tick != edges[j].tick {
			return edges[i].tick < edges[j].tick
		}
		if edges[i].on != edges[j].on {
			return !edges[i].on
		}
		return edges[i].order < edges[j].order
	})

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(quarterTicks)

	var tr smf.Track
	if num, den := meterOf(tl); num > 0 {
		tr.Add(0, smf.MetaMeter(uint8(num), uint8(den)))
	}
	if bpm := tempoOf(tl); bpm > 0 {
		tr.Add(0, smf.MetaTempo(bpm))
	}

	var cursor uint32
	for _, e := range edges {
		delta := e.tick - cursor
		cursor = e.tick
		if e.on {
			tr.Add(delta, midi.NoteOn(0, e.key, e.vel))
		} else {
			tr.Add(delta, midi.NoteOff(0, e.key))
		}
	}
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func meterOf(tl *timeline.Timeline) (int, int) {
	if tl.SubdivisionsPerMeasure <= 0 || tl.SubdivisionUnit <= 0 {
		return 0, 0
	}
	return tl.SubdivisionsPerMeasure, tl.SubdivisionUnit
}

// tempoOf derives quarter-notes-per-minute from the live tempo scalar.
func tempoOf(tl *timeline.Timeline) float64 {
	if tl.SecondsPerSubdivision <= 0 || tl.SubdivisionUnit <= 0 {
		return 0
	}
	secondsPerQuarter := tl.SecondsPerSubdivision * float64(tl.SubdivisionUnit) / 4
	if secondsPerQuarter <= 0 {
		return 0
	}
	return 60 / secondsPerQuarter
}

func clampKey(pitch float64) uint8 {
	k := int(math.Round(pitch))
	if k < 0 {
		k = 0
	}
	if k > 127 {
		k = 127
	}
	return uint8(k)
}

func clampVelocity(v int) uint8 {
	if v <= 0 {
		return 1
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}
