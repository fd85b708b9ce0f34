package audio

import (
	"math"
	"sync"
)

const maxToneVoices = 16

// toneVoice is one decaying sine. Pitch may be fractional for microtonal
// notes.
type toneVoice struct {
	phase     float64
	increment float64
	gain      float64
	remaining int
	total     int
}

// ToneBank is a minimal polyphonic sine source. NoteOn may be called from any
// goroutine; Process runs on the audio thread.
type ToneBank struct {
	mu         sync.Mutex
	sampleRate int
	voices     []toneVoice
}

func NewToneBank(sampleRate int) *ToneBank {
	return &ToneBank{sampleRate: sampleRate}
}

// NoteOn starts a voice. pitch is MIDI-numbered (60 = middle C), velocity
// 0-127, duration in seconds. The oldest voice is stolen when the bank is
// full.
func (b *ToneBank) NoteOn(pitch float64, velocity int, duration float64) {
	if duration <= 0 || velocity <= 0 {
		return
	}
	freq := 440 * math.Pow(2, (pitch-69)/12)
	samples := int(duration * float64(b.sampleRate))
	if samples < 1 {
		samples = 1
	}
	v := toneVoice{
		increment: 2 * math.Pi * freq / float64(b.sampleRate),
		gain:      float64(velocity) / 127 * 0.2,
		remaining: samples,
		total:     samples,
	}
	b.mu.Lock()
	if len(b.voices) >= maxToneVoices {
		b.voices = b.voices[1:]
	}
	b.voices = append(b.voices, v)
	b.mu.Unlock()
}

// Process mixes all live voices into dst (interleaved stereo).
func (b *ToneBank) Process(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i+1 < len(dst); i += 2 {
		var sample float64
		for vi := range b.voices {
			v := &b.voices[vi]
			if v.remaining <= 0 {
				continue
			}
			env := float64(v.remaining) / float64(v.total)
			sample += math.Sin(v.phase) * v.gain * env
			v.phase += v.increment
			v.remaining--
		}
		s := float32(sample)
		dst[i] = s
		dst[i+1] = s
	}
	live := b.voices[:0]
	for _, v := range b.voices {
		if v.remaining > 0 {
			live = append(live, v)
		}
	}
	b.voices = live
}
