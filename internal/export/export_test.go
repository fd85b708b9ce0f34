package export

import (
	"bytes"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/laurent-yin/otamatone-roll-sub000/internal/timeline"
)

func scaleTimeline() *timeline.Timeline {
	return timeline.BuildBaseline("X:1\nM:4/4\nL:1/4\nQ:1/4=120\nK:C\nCDEF|\n")
}

func TestTicksPerSubdivision(t *testing.T) {
	tl := scaleTimeline()
	per, err := TicksPerSubdivision(tl)
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	// quarter-note subdivisions at 960 ticks per quarter
	if per != 960 {
		t.Fatalf("ticks per subdivision = %d, want 960", per)
	}
}

func TestWriteProducesReadableSMF(t *testing.T) {
	tl := scaleTimeline()
	var buf bytes.Buffer
	if err := Write(tl, &buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(s.Tracks) != 1 {
		t.Fatalf("tracks = %d", len(s.Tracks))
	}
	ons := 0
	for _, ev := range s.Tracks[0] {
		var ch, key, vel uint8
		if ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0 {
			ons++
		}
	}
	if ons != 4 {
		t.Fatalf("note-ons = %d, want 4", ons)
	}
}

func TestWriteTickLayoutIsWarpInvariant(t *testing.T) {
	normal := scaleTimeline()
	warped := scaleTimeline()
	warped.SetTempo(warped.SecondsPerSubdivision * 2)

	tickEdges := func(tl *timeline.Timeline) []uint32 {
		var buf bytes.Buffer
		if err := Write(tl, &buf); err != nil {
			t.Fatalf("write: %v", err)
		}
		s, err := smf.ReadFrom(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		var out []uint32
		var abs uint32
		for _, ev := range s.Tracks[0] {
			abs += ev.Delta
			var ch, key, vel uint8
			if ev.Message.GetNoteOn(&ch, &key, &vel) {
				out = append(out, abs)
			}
		}
		return out
	}

	a, b := tickEdges(normal), tickEdges(warped)
	if len(a) != len(b) {
		t.Fatalf("edge counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("tick %d differs under warp: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestWriteEmptyTimeline(t *testing.T) {
	tl := timeline.BuildBaseline("")
	var buf bytes.Buffer
	if err := Write(tl, &buf); err != nil {
		t.Fatalf("empty timeline should still export: %v", err)
	}
}

func TestClampRanges(t *testing.T) {
	if clampKey(-5) != 0 || clampKey(200) != 127 {
		t.Fatalf("pitch clamp broken")
	}
	if clampVelocity(0) != 1 || clampVelocity(300) != 127 {
		t.Fatalf("velocity clamp broken")
	}
}
