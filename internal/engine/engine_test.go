package engine

import (
	"sync"
	"testing"
	"time"
)

const simpleTune = "X:1\nM:4/4\nL:1/4\nQ:1/4=120\nK:C\nCDEF|\n"

func TestRenderReportsMeterAndMeasureDuration(t *testing.T) {
	r, err := NewSynth().Render(simpleTune)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	num, den := r.MeterFraction()
	if num != 4 || den != 4 {
		t.Fatalf("expected 4/4, got %d/%d", num, den)
	}
	if ms := r.MillisecondsPerMeasure(); ms != 2000 {
		t.Fatalf("expected 2000 ms per measure at 120 BPM, got %v", ms)
	}
}

func TestRenderFailsOnMalformedNotation(t *testing.T) {
	if _, err := NewSynth().Render("K:C\n!unterminated\n"); err == nil {
		t.Fatalf("expected render error")
	}
}

func TestScheduleOrderingAndChordMerge(t *testing.T) {
	src := "M:4/4\nL:1/4\nQ:1/4=120\nK:C\nV:1\nCD\nV:2\nEF\n"
	r, err := NewSynth().Render(src)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	drv, err := r.NewTimingDriver(TimingOptions{})
	if err != nil {
		t.Fatalf("driver failed: %v", err)
	}
	events := drv.Events()
	noteEvents := []TimingEvent{}
	for _, ev := range events {
		if ev.Type == EventNote {
			noteEvents = append(noteEvents, ev)
		}
	}
	// two voices in lockstep: two chord events of two pitches each
	if len(noteEvents) != 2 {
		t.Fatalf("expected 2 merged note events, got %d", len(noteEvents))
	}
	if len(noteEvents[0].MidiPitches) != 2 {
		t.Fatalf("expected simultaneous pitches merged into one event, got %d", len(noteEvents[0].MidiPitches))
	}
	if len(noteEvents[0].StartCharArray) != 2 {
		t.Fatalf("expected char provenance per merged voice, got %v", noteEvents[0].StartCharArray)
	}
	last := -1.0
	for i, ev := range events {
		if ev.Milliseconds < last {
			t.Fatalf("event %d out of order: %v after %v", i, ev.Milliseconds, last)
		}
		last = ev.Milliseconds
	}
}

func TestScheduleBarEvents(t *testing.T) {
	r, err := NewSynth().Render(simpleTune)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	drv, _ := r.NewTimingDriver(TimingOptions{})
	bars := 0
	for _, ev := range drv.Events() {
		if ev.Type == EventBar {
			bars++
			if ev.Milliseconds != 2000 {
				t.Fatalf("bar should land at 2000 ms, got %v", ev.Milliseconds)
			}
			if ev.MillisecondsPerMeasure != 2000 {
				t.Fatalf("bar should carry ms-per-measure, got %v", ev.MillisecondsPerMeasure)
			}
		}
	}
	if bars != 1 {
		t.Fatalf("expected 1 bar event, got %d", bars)
	}
}

func TestCurrentTempoIsRounded(t *testing.T) {
	// 65 QPM at warp 50 is truly 32.5; the display rounds it
	src := "M:4/4\nL:1/4\nQ:1/4=65\nK:C\nC\n"
	r, err := NewSynth().Render(src)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	drv, _ := r.NewTimingDriver(TimingOptions{})
	drv.SetWarp(50)
	got := drv.CurrentTempo()
	if got != 32 && got != 33 {
		t.Fatalf("expected rounded 32 or 33, got %d", got)
	}
	if drv.Warp() != 50 {
		t.Fatalf("warp not stored, got %d", drv.Warp())
	}
}

func TestDriverDeliversAllEventsInOrder(t *testing.T) {
	// 600 QPM keeps the wall time of the test short
	src := "M:4/4\nL:1/4\nQ:1/4=600\nK:C\nCDEF|\n"
	var mu sync.Mutex
	var got []TimingEvent

	r, err := NewSynth().Render(src)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	drv, err := r.NewTimingDriver(TimingOptions{OnEvent: func(ev TimingEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}})
	if err != nil {
		t.Fatalf("driver failed: %v", err)
	}
	want := len(drv.Events())

	drv.Start()
	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= want {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out: delivered %d of %d events", n, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	drv.Stop()

	mu.Lock()
	defer mu.Unlock()
	last := -1.0
	for i, ev := range got {
		if ev.Milliseconds < last {
			t.Fatalf("delivery %d out of order", i)
		}
		last = ev.Milliseconds
	}
}

func TestDriverStopIsIdempotent(t *testing.T) {
	r, err := NewSynth().Render(simpleTune)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	drv, _ := r.NewTimingDriver(TimingOptions{})
	drv.Start()
	drv.Stop()
	drv.Stop()
}
