// Package engine defines the contract between the timeline core and the
// notation-rendering/playback engine, plus a built-in reference engine that
// satisfies it. The rendering engine reports timing in real elapsed
// milliseconds; converting that into tempo-independent units is the
// timeline package's job, not this one's.
package engine

// TimingEventType mirrors the event kinds the rendering engine emits.
type TimingEventType int

const (
	EventNote TimingEventType = iota + 1
	EventBar
	EventMeasure
)

// MidiPitch is one sounding pitch inside a timing event. Start and Duration
// are whole-note-based values carried for engines that omit millisecond
// timing; negative means absent.
type MidiPitch struct {
	Pitch    float64
	Volume   int
	Start    float64
	Duration float64
}

// TimingEvent is one callback payload from the engine's cursor mechanism.
// Negative Milliseconds/DurationMs/char offsets/BarNumber mean the field was
// not supplied.
type TimingEvent struct {
	Type                   TimingEventType
	Milliseconds           float64
	DurationMs             float64
	StartChar              int
	EndChar                int
	StartCharArray         []int
	EndCharArray           []int
	MidiPitches            []MidiPitch
	BarNumber              int
	MeasureStart           bool
	MillisecondsPerMeasure float64
}

// Renderer renders notation text into a playable object.
type Renderer interface {
	Render(notation string) (Rendered, error)
}

// Rendered is one rendered tune. MillisecondsPerMeasure is warp-invariant:
// it always reports the duration of a measure at warp 100 regardless of the
// current playback speed.
type Rendered interface {
	MeterFraction() (numerator, denominator int)
	MillisecondsPerMeasure() float64
	NewTimingDriver(opts TimingOptions) (TimingDriver, error)
}

// TimingOptions configures a timing driver.
type TimingOptions struct {
	// OnEvent receives each timing event. Calls are serialized and arrive
	// in non-decreasing Milliseconds order.
	OnEvent func(TimingEvent)
	// QpmOverride forces a quarter-notes-per-minute tempo; 0 keeps the
	// tune's own tempo.
	QpmOverride float64
}

// TimingDriver owns the live event list and the mutable warp field of one
// playback run.
type TimingDriver interface {
	// Events returns the full event list in delivery order. The slice stops
	// growing once playback ends.
	Events() []TimingEvent
	// Start begins delivering events from the current position. Stop halts
	// delivery; it is safe to call repeatedly.
	Start()
	Stop()
	// SetWarp changes the playback speed ratio (100 = notated tempo). The
	// event list is never rebuilt; only delivery pacing changes.
	SetWarp(percent int)
	Warp() int
	// CurrentTempo reports the engine's displayed tempo in whole
	// quarter-notes per minute. It is an integer rounding of the true value
	// and must not be used for precise resynchronization.
	CurrentTempo() int
}
