package otaroll

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/laurent-yin/otamatone-roll-sub000/internal/engine"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/meter"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/timeline"
)

// NotePlaybackEvent is delivered through Watch() for every sounding note.
// SequenceID increases monotonically across the life of a Controller, so a
// consumer can detect missed events after a slow receive.
type NotePlaybackEvent struct {
	SequenceID      int64
	TimeSeconds     float64
	DurationSeconds float64
	MidiPitches     []engine.MidiPitch
	StartChar       int
	EndChar         int
}

type Option func(*config)

type config struct {
	renderer    engine.Renderer
	qpmOverride float64
	debugLog    func(string)
}

func defaultConfig() config {
	return config{renderer: engine.NewSynth()}
}

// WithRenderer replaces the built-in rendering engine.
func WithRenderer(r engine.Renderer) Option {
	return func(cfg *config) {
		cfg.renderer = r
	}
}

// WithQPMOverride forces playback tempo regardless of the notation's Q: field.
func WithQPMOverride(qpm float64) Option {
	return func(cfg *config) {
		cfg.qpmOverride = qpm
	}
}

// WithDebugLog installs a sink for diagnostic messages. Degraded paths
// (render failure, unavailable tempo) report here instead of panicking.
func WithDebugLog(sink func(string)) Option {
	return func(cfg *config) {
		cfg.debugLog = sink
	}
}

// Controller orchestrates one playback at a time: it renders notation through
// the engine, builds the live timeline from the engine's timing events, and
// keeps the tempo cell in sync with warp changes.
type Controller struct {
	mu          sync.Mutex
	renderer    engine.Renderer
	qpmOverride float64
	debugLog    func(string)

	rendered  engine.Rendered
	driver    engine.TimingDriver
	live      *timeline.Timeline
	charTimes timeline.CharacterTimeMap
	cell      *timeline.TempoCell
	resync    *timeline.Resynchronizer
	clock     *musicClock
	warp      int
	done      chan struct{}

	seq       atomic.Int64
	delivered atomic.Int64
	total     int64

	eventCh   chan NotePlaybackEvent
	eventChMu sync.Mutex
}

func NewController(opts ...Option) *Controller {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cell := timeline.NewTempoCell(timeline.DefaultSecondsPerSubdivision)
	c := &Controller{
		renderer:    cfg.renderer,
		qpmOverride: cfg.qpmOverride,
		debugLog:    cfg.debugLog,
		cell:        cell,
		warp:        100,
	}
	c.clock = newMusicClock(cell)
	c.live = timeline.BuildBaseline("")
	c.charTimes = timeline.CharacterTimeMap{}
	return c
}

// Play renders the notation and starts event-driven playback. A render
// failure leaves the controller holding an empty timeline so position and
// timeline accessors stay safe, and the error is returned to the caller.
func (c *Controller) Play(notation string) error {
	c.Stop()

	c.mu.Lock()
	renderer := c.renderer
	c.mu.Unlock()

	if renderer == nil {
		c.degrade("no rendering engine configured")
		return fmt.Errorf("play: no rendering engine")
	}
	rendered, err := renderer.Render(notation)
	if err != nil {
		c.degrade("render failed: " + err.Error())
		return fmt.Errorf("play: %w", err)
	}

	driver, err := rendered.NewTimingDriver(engine.TimingOptions{
		QpmOverride: c.qpmOverride,
		OnEvent:     c.onTimingEvent,
	})
	if err != nil {
		c.degrade("timing driver failed: " + err.Error())
		return fmt.Errorf("play: %w", err)
	}

	num, den := rendered.MeterFraction()
	sig := meter.Analyze(num, den)
	result, err := timeline.BuildFromEvents(driver.Events(), sig, rendered.MillisecondsPerMeasure())
	if err != nil {
		c.degrade("event timeline rejected: " + err.Error())
		return fmt.Errorf("play: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rendered = rendered
	c.driver = driver
	c.live = result.Timeline
	c.charTimes = result.CharTimes
	c.cell = timeline.NewTempoCell(result.Timeline.SecondsPerSubdivision)
	c.clock = newMusicClock(c.cell)
	c.resync = timeline.NewResynchronizer(c.cell, rendered, result.Timeline, c.clock)
	c.warp = 100
	c.total = int64(len(driver.Events()))
	c.delivered.Store(0)
	c.done = make(chan struct{})

	c.clock.start()
	driver.Start()
	return nil
}

func (c *Controller) onTimingEvent(ev engine.TimingEvent) {
	c.mu.Lock()
	live := c.live
	cell := c.cell
	done := c.done
	total := c.total
	c.mu.Unlock()

	if ev.Type == engine.EventNote && live != nil {
		sub, dur := c.eventSubdivisions(ev, live)
		sps := cell.Get()
		c.sendEvent(NotePlaybackEvent{
			SequenceID:      c.seq.Add(1),
			TimeSeconds:     sub * sps,
			DurationSeconds: dur * sps,
			MidiPitches:     ev.MidiPitches,
			StartChar:       ev.StartChar,
			EndChar:         ev.EndChar,
		})
	}

	if c.delivered.Add(1) == total && done != nil {
		c.signalDone(done)
	}
}

// eventSubdivisions converts one timing event to subdivision units using the
// timeline's own basis, never the engine's displayed tempo.
func (c *Controller) eventSubdivisions(ev engine.TimingEvent, live *timeline.Timeline) (start, duration float64) {
	origSPS := c.originalSecondsPerSub(live)
	if ev.Milliseconds >= 0 && origSPS > 0 {
		start = ev.Milliseconds / 1000 / origSPS
	} else if len(ev.MidiPitches) > 0 && ev.MidiPitches[0].Start >= 0 {
		start = ev.MidiPitches[0].Start * float64(live.SubdivisionUnit)
	}
	if ev.DurationMs >= 0 && origSPS > 0 {
		duration = ev.DurationMs / 1000 / origSPS
	} else if len(ev.MidiPitches) > 0 && ev.MidiPitches[0].Duration >= 0 {
		duration = ev.MidiPitches[0].Duration * float64(live.SubdivisionUnit)
	}
	return start, duration
}

// originalSecondsPerSub is the unity-warp tempo basis the engine's event
// milliseconds were produced under.
func (c *Controller) originalSecondsPerSub(live *timeline.Timeline) float64 {
	c.mu.Lock()
	rendered := c.rendered
	c.mu.Unlock()
	if rendered == nil {
		return live.SecondsPerSubdivision
	}
	ms := rendered.MillisecondsPerMeasure()
	if ms <= 0 || live.SubdivisionsPerMeasure <= 0 {
		return live.SecondsPerSubdivision
	}
	return ms / 1000 / float64(live.SubdivisionsPerMeasure)
}

// SetWarp changes playback speed. warp is a percentage where 100 is the
// notation's written tempo. The timeline's note positions never move; only
// the seconds-per-subdivision scalar is recomputed, and the musical clock is
// re-seeded at the current position.
func (c *Controller) SetWarp(percent int) {
	if percent <= 0 {
		return
	}
	c.mu.Lock()
	driver := c.driver
	resync := c.resync
	clock := c.clock
	c.warp = percent
	c.mu.Unlock()

	position := 0.0
	if clock != nil {
		position = clock.Now()
	}
	if driver != nil {
		driver.SetWarp(percent)
	}
	if resync != nil {
		resync.OnWarpChange(percent, position)
	}
}

func (c *Controller) Warp() int {
	return c.warpSnapshot()
}

func (c *Controller) warpSnapshot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warp
}

// Timeline returns the live playback timeline. It is empty until Play
// succeeds.
func (c *Controller) Timeline() *timeline.Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// CharacterTimes maps notation character offsets to the seconds their notes
// sound, for caret tracking in an editor.
func (c *Controller) CharacterTimes() timeline.CharacterTimeMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charTimes
}

// Tempo returns the live tempo cell shared with the visualization.
func (c *Controller) Tempo() *timeline.TempoCell {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cell
}

// PositionSubdivisions reports the current musical position.
func (c *Controller) PositionSubdivisions() float64 {
	c.mu.Lock()
	clock := c.clock
	c.mu.Unlock()
	if clock == nil {
		return 0
	}
	return clock.Now()
}

// Watch returns a channel receiving a NotePlaybackEvent per sounding note.
// The channel is buffered (cap 64); receive promptly or events are dropped.
// Only the most recent Watch() channel receives events; call Watch before
// Play.
func (c *Controller) Watch() <-chan NotePlaybackEvent {
	ch := make(chan NotePlaybackEvent, 64)
	c.eventChMu.Lock()
	c.eventCh = ch
	c.eventChMu.Unlock()
	return ch
}

func (c *Controller) sendEvent(ev NotePlaybackEvent) {
	c.eventChMu.Lock()
	ch := c.eventCh
	c.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// receiver is behind; drop rather than stall the engine callback
		}
	}
}

// Wait blocks until the current playback delivers its last event, or returns
// immediately if nothing is playing.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) signalDone(done chan struct{}) {
	c.mu.Lock()
	if c.done == done {
		c.done = nil
	}
	c.mu.Unlock()
	close(done)
}

// Stop halts playback. The timeline and character map stay readable.
// The driver is stopped outside the controller lock: its goroutine may be
// mid-callback waiting for that same lock.
func (c *Controller) Stop() {
	c.mu.Lock()
	driver := c.driver
	c.driver = nil
	if c.clock != nil {
		c.clock.stop()
	}
	done := c.done
	c.done = nil
	c.mu.Unlock()

	if driver != nil {
		driver.Stop()
	}
	if done != nil {
		close(done)
	}
}

// degrade installs the empty timeline so every accessor keeps working after a
// failed Play.
func (c *Controller) degrade(msg string) {
	if c.debugLog != nil {
		c.debugLog(msg)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rendered = nil
	c.live = timeline.BuildBaseline("")
	c.charTimes = timeline.CharacterTimeMap{}
	c.cell = timeline.NewTempoCell(timeline.DefaultSecondsPerSubdivision)
	c.clock = newMusicClock(c.cell)
	c.resync = nil
}

// musicClock tracks the musical position in subdivisions. It advances with
// wall time scaled by the live tempo cell and can be re-seeded at any
// position when the tempo changes.
type musicClock struct {
	mu         sync.Mutex
	cell       *timeline.TempoCell
	originSub  float64
	originWall time.Time
	running    bool
}

func newMusicClock(cell *timeline.TempoCell) *musicClock {
	return &musicClock{cell: cell}
}

func (c *musicClock) start() {
	c.mu.Lock()
	c.originSub = 0
	c.originWall = time.Now()
	c.running = true
	c.mu.Unlock()
}

func (c *musicClock) stop() {
	c.mu.Lock()
	if c.running {
		c.originSub = c.nowLocked()
		c.running = false
	}
	c.mu.Unlock()
}

func (c *musicClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *musicClock) nowLocked() float64 {
	if !c.running {
		return c.originSub
	}
	sps := c.cell.Get()
	if sps <= 0 {
		return c.originSub
	}
	return c.originSub + time.Since(c.originWall).Seconds()/sps
}

// ReseedAt moves the clock origin to a musical position without touching the
// note data.
func (c *musicClock) ReseedAt(subdivision float64) {
	c.mu.Lock()
	c.originSub = subdivision
	c.originWall = time.Now()
	c.mu.Unlock()
}
