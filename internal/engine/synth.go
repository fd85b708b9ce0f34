package engine

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/laurent-yin/otamatone-roll-sub000/internal/abc"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/meter"
)

// Synth is the built-in reference rendering engine. It renders a tune into a
// full timing-event schedule up front and replays it on a goroutine clock.
// Like an external engine it reports real elapsed milliseconds and carries no
// tie structure.
type Synth struct {
	// QpmDefault applies when the tune has no tempo header.
	QpmDefault float64
}

func NewSynth() *Synth { return &Synth{QpmDefault: 120} }

func (s *Synth) Render(notation string) (Rendered, error) {
	tune, err := abc.Parse(notation)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	qpm := s.QpmDefault
	if qpm <= 0 {
		qpm = 120
	}
	return newRenderedTune(tune, qpm), nil
}

type renderedTune struct {
	tune         *abc.Tune
	sig          meter.Signature
	msPerMeasure float64
	events       []TimingEvent
	trueQPM      float64
}

func newRenderedTune(tune *abc.Tune, defaultQPM float64) *renderedTune {
	sig := meter.Analyze(0, 0)
	if tune.HasMeter {
		sig = meter.Analyze(tune.Meter.Numerator, tune.Meter.Denominator)
	}

	bpm := tune.Tempo.BPM
	if bpm <= 0 {
		bpm = defaultQPM
	}
	beatLen := tune.Tempo.BeatLength
	if beatLen <= 0 {
		beatLen = 0.25
	}
	secondsPerWhole := (60.0 / bpm) / beatLen
	measureWhole := float64(sig.SubdivisionsPerMeasure) / float64(sig.SubdivisionUnit)

	rt := &renderedTune{
		tune:         tune,
		sig:          sig,
		msPerMeasure: measureWhole * secondsPerWhole * 1000,
		trueQPM:      60.0 / (secondsPerWhole / 4),
	}
	rt.events = scheduleEvents(tune, secondsPerWhole, rt.msPerMeasure)
	return rt
}

func (r *renderedTune) MeterFraction() (int, int) {
	return r.sig.Numerator, r.sig.Denominator
}

// MillisecondsPerMeasure reports the warp-100 measure duration; warp changes
// never alter it.
func (r *renderedTune) MillisecondsPerMeasure() float64 { return r.msPerMeasure }

func (r *renderedTune) NewTimingDriver(opts TimingOptions) (TimingDriver, error) {
	qpm := r.trueQPM
	if opts.QpmOverride > 0 {
		qpm = opts.QpmOverride
	}
	return &timingDriver{
		events:  r.events,
		onEvent: opts.OnEvent,
		warp:    100,
		trueQPM: qpm,
	}, nil
}

// scheduleEvents walks every voice with a whole-note cursor and merges
// simultaneous note-ons into single chord events, then splices bar events
// in. Output is sorted by milliseconds with bars before notes at equal
// times.
func scheduleEvents(tune *abc.Tune, secondsPerWhole float64, msPerMeasure float64) []TimingEvent {
	type slot struct {
		ev TimingEvent
	}
	noteSlots := map[int64]*slot{} // keyed by rounded microseconds
	var bars []TimingEvent
	barSeen := map[int64]bool{}

	for _, voice := range tune.Voices {
		cursor := 0.0
		keyAcc := abc.KeySignature(tune.Key)
		barNumber := 0
		for _, elem := range voice.Elements {
			switch elem.Type {
			case abc.ElemKeyChange:
				keyAcc = abc.KeySignature(elem.Key)
			case abc.ElemRest:
				cursor += elem.Duration
			case abc.ElemBar:
				ms := cursor * secondsPerWhole * 1000
				us := int64(math.Round(ms * 1000))
				if !barSeen[us] {
					barSeen[us] = true
					bars = append(bars, TimingEvent{
						Type:                   EventBar,
						Milliseconds:           ms,
						DurationMs:             -1,
						StartChar:              elem.StartChar,
						EndChar:                elem.EndChar,
						BarNumber:              barNumber,
						MeasureStart:           true,
						MillisecondsPerMeasure: msPerMeasure,
					})
				}
				barNumber++
			case abc.ElemNote:
				ms := cursor * secondsPerWhole * 1000
				durMs := elem.Duration * secondsPerWhole * 1000
				us := int64(math.Round(ms * 1000))
				sl, ok := noteSlots[us]
				if !ok {
					sl = &slot{ev: TimingEvent{
						Type:                   EventNote,
						Milliseconds:           ms,
						DurationMs:             durMs,
						StartChar:              elem.StartChar,
						EndChar:                elem.EndChar,
						BarNumber:              -1,
						MillisecondsPerMeasure: msPerMeasure,
					}}
					noteSlots[us] = sl
				}
				sl.ev.StartCharArray = append(sl.ev.StartCharArray, elem.StartChar)
				sl.ev.EndCharArray = append(sl.ev.EndCharArray, elem.EndChar)
				for _, p := range elem.Pitches {
					offset := keyAcc[p.Step]
					if p.Explicit {
						offset = p.Accidental
					}
					pitch := float64(60 + p.Octave*12 + abc.StepSemitone(p.Step) + offset)
					sl.ev.MidiPitches = append(sl.ev.MidiPitches, MidiPitch{
						Pitch:    pitch,
						Volume:   105,
						Start:    cursor,
						Duration: elem.Duration,
					})
				}
				cursor += elem.Duration
			}
		}
	}

	events := make([]TimingEvent, 0, len(noteSlots)+len(bars))
	for _, sl := range noteSlots {
		events = append(events, sl.ev)
	}
	events = append(events, bars...)
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Milliseconds != events[j].Milliseconds {
			return events[i].Milliseconds < events[j].Milliseconds
		}
		return events[i].Type == EventBar && events[j].Type != EventBar
	})
	return events
}

// timingDriver replays the schedule in real time. Delivery is serialized:
// one goroutine walks the list and fires the callback event by event. Warp
// changes repace delivery from the current musical position without touching
// the schedule.
type timingDriver struct {
	events  []TimingEvent
	onEvent func(TimingEvent)
	trueQPM float64

	mu      sync.Mutex
	warp    int
	index   int
	musicMs float64   // musical position already delivered
	anchor  time.Time // wall time of musicMs
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func (d *timingDriver) Events() []TimingEvent { return d.events }

func (d *timingDriver) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.anchor = time.Now()
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	stop, done := d.stop, d.done
	d.mu.Unlock()

	go d.run(stop, done)
}

func (d *timingDriver) run(stop, done chan struct{}) {
	defer close(done)
	for {
		d.mu.Lock()
		if d.index >= len(d.events) {
			d.running = false
			d.mu.Unlock()
			return
		}
		ev := d.events[d.index]
		wait := d.wallDelayLocked(ev.Milliseconds)
		d.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}

		d.mu.Lock()
		d.index++
		d.musicMs = ev.Milliseconds
		d.anchor = time.Now()
		cb := d.onEvent
		d.mu.Unlock()
		if cb != nil {
			cb(ev)
		}
	}
}

// wallDelayLocked converts a musical timestamp to a wall-clock delay at the
// current warp.
func (d *timingDriver) wallDelayLocked(targetMs float64) time.Duration {
	scale := 100.0 / float64(d.warp)
	elapsed := time.Since(d.anchor).Seconds() * 1000 / scale
	remaining := (targetMs - d.musicMs - elapsed) * scale
	if remaining <= 0 {
		return 0
	}
	return time.Duration(remaining * float64(time.Millisecond))
}

func (d *timingDriver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	stop, done := d.stop, d.done
	d.mu.Unlock()
	close(stop)
	<-done
}

func (d *timingDriver) SetWarp(percent int) {
	if percent <= 0 {
		return
	}
	d.mu.Lock()
	// fold elapsed wall time into the musical position under the old warp
	// before switching pace
	scale := 100.0 / float64(d.warp)
	d.musicMs += time.Since(d.anchor).Seconds() * 1000 / scale
	d.anchor = time.Now()
	d.warp = percent
	d.mu.Unlock()
}

func (d *timingDriver) Warp() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.warp
}

// CurrentTempo mimics engines that display tempo as a whole number: the true
// warped QPM is rounded, so 32.5 reads as 32 or 33. Resynchronization must
// not consume this.
func (d *timingDriver) CurrentTempo() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(math.Round(d.trueQPM * float64(d.warp) / 100))
}
