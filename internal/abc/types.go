package abc

type ElementType int

const (
	ElemNote ElementType = iota + 1
	ElemRest
	ElemBar
	ElemKeyChange
)

// Pitch is one chord member of a note element. Step is the lowercase
// diatonic letter; Octave 0 puts C at MIDI 60.
type Pitch struct {
	Step       byte
	Octave     int
	Accidental int
	Explicit   bool
	TieStart   bool
	TieEnd     bool
	StartChar  int
	EndChar    int
}

// Element is one body token that occupies time or changes voice state.
// Duration is in whole-note units.
type Element struct {
	Type      ElementType
	Pitches   []Pitch
	Duration  float64
	Key       string
	StartChar int
	EndChar   int
}

type Voice struct {
	ID         string
	StaffIndex int
	VoiceIndex int
	Elements   []Element
}

type Meter struct {
	Numerator   int
	Denominator int
}

// Tempo is the decoded Q: field. BPM 0 means no tempo was written.
// BeatLength is the whole-note length of the counted beat (0.25 for Q:1/4=).
type Tempo struct {
	BPM        float64
	BeatLength float64
}

type Tune struct {
	Title      string
	Meter      Meter
	HasMeter   bool
	UnitLength float64
	Tempo      Tempo
	Key        string
	Voices     []Voice
}
