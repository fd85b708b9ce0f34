// Package audio bridges a float32 sample source to the ebiten audio backend.
// Synthesis quality is not a goal here; the package exists so playback makes
// audible sound synchronized with the timeline.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// SampleSource fills dst with interleaved stereo float32 samples.
type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the io.Reader the ebiten player
// consumes (little-endian float32 stereo frames).
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		u := math.Float32bits(r.buf[i])
		binary.LittleEndian.PutUint32(p[i*4:], u)
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

// Player owns one ebiten audio player bound to a stream reader.
type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// sharedAudioContext returns the process-wide ebiten audio context. Ebiten
// allows exactly one context per process, so the first sample rate wins.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

func NewPlayer(sampleRate int, source SampleSource) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) Play()           { p.player.Play() }
func (p *Player) Pause()          { p.player.Pause() }
func (p *Player) IsPlaying() bool { return p.player.IsPlaying() }

// Position returns the output position of the audio driver, i.e. what the
// listener actually hears right now.
func (p *Player) Position() time.Duration { return p.player.Position() }

func (p *Player) Stop() error {
	p.player.Pause()
	if err := p.player.Close(); err != nil {
		return err
	}
	return p.reader.Close()
}
