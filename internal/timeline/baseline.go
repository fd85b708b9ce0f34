package timeline

import (
	"github.com/laurent-yin/otamatone-roll-sub000/internal/abc"
	"github.com/laurent-yin/otamatone-roll-sub000/internal/meter"
)

// DefaultVelocity is assigned to baseline notes; the static parse carries no
// dynamics.
const DefaultVelocity = 105

const fallbackBPM = 120

// middle C
const basePitch = 60

// BuildBaseline parses notation text and produces the authoritative
// beat-based reference timeline. Any parse failure yields an empty timeline
// with the default meter rather than an error; the visualization degrades to
// an idle state in that case.
func BuildBaseline(notation string) *Timeline {
	tune, err := abc.Parse(notation)
	if err != nil {
		return emptyTimeline()
	}
	return BuildBaselineFromTune(tune)
}

// BuildBaselineFromTune walks an already-parsed tune. A panic anywhere in
// the walk is recovered into the empty timeline; malformed structures must
// never take down the playback surface.
func BuildBaselineFromTune(tune *abc.Tune) (tl *Timeline) {
	defer func() {
		if recover() != nil {
			tl = emptyTimeline()
		}
	}()
	if tune == nil {
		return emptyTimeline()
	}

	sig := meter.Analyze(0, 0)
	if tune.HasMeter {
		sig = meter.Analyze(tune.Meter.Numerator, tune.Meter.Denominator)
	}

	bpm := tune.Tempo.BPM
	if bpm <= 0 {
		bpm = fallbackBPM
	}
	beatLen := tune.Tempo.BeatLength
	if beatLen <= 0 {
		beatLen = 0.25
	}
	secondsPerBeat := 60.0 / bpm
	secondsPerWholeNote := secondsPerBeat / beatLen
	secondsPerSub := secondsPerWholeNote / float64(sig.SubdivisionUnit)

	tl = &Timeline{
		SubdivisionsPerMeasure: sig.SubdivisionsPerMeasure,
		SubdivisionUnit:        sig.SubdivisionUnit,
		SubdivisionsPerBeat:    sig.SubdivisionsPerBeat,
		SecondsPerBeat:         secondsPerBeat,
	}
	tl.SetTempo(secondsPerSub)

	maxCursor := 0.0
	for _, voice := range tune.Voices {
		end := buildVoice(tl, tune, voice, sig)
		if end > maxCursor {
			maxCursor = end
		}
	}
	tl.finishTotal(maxCursor)
	return tl
}

// tieKey identifies an open tie within one voice: ties only merge notes at
// the exact same pitch value.
type tieKey struct {
	pitch float64
}

func buildVoice(tl *Timeline, tune *abc.Tune, voice abc.Voice, sig meter.Signature) float64 {
	unit := float64(sig.SubdivisionUnit)
	cursorWhole := 0.0
	keyAcc := abc.KeySignature(tune.Key)
	openTies := map[tieKey]int{}

	for _, elem := range voice.Elements {
		switch elem.Type {
		case abc.ElemKeyChange:
			keyAcc = abc.KeySignature(elem.Key)
		case abc.ElemBar:
			tl.addBoundary(cursorWhole * unit)
		case abc.ElemRest:
			cursorWhole += elem.Duration
			// a rest cannot be tied across
			clear(openTies)
		case abc.ElemNote:
			startSub := cursorWhole * unit
			durSub := elem.Duration * unit
			for _, p := range elem.Pitches {
				pitch := resolvePitch(p, keyAcc)
				key := tieKey{pitch: pitch}
				if p.TieEnd {
					if idx, open := openTies[key]; open {
						tl.Notes[idx].DurationSubdivisions += durSub
						if src := tl.Notes[idx].Source; src != nil {
							src.EndChar = elem.EndChar
						}
						if !p.TieStart {
							delete(openTies, key)
						}
						continue
					}
				}
				tl.Notes = append(tl.Notes, Note{
					Pitch:                pitch,
					StartSubdivision:     startSub,
					DurationSubdivisions: durSub,
					Velocity:             DefaultVelocity,
					Source: &SourceRef{
						StartChar:  elem.StartChar,
						EndChar:    elem.EndChar,
						StaffIndex: voice.StaffIndex,
						VoiceIndex: voice.VoiceIndex,
					},
				})
				if p.TieStart {
					openTies[key] = len(tl.Notes) - 1
				}
			}
			cursorWhole += elem.Duration
		}
	}
	return cursorWhole * unit
}

// resolvePitch computes base + octave*12 + diatonicSemitone + accidental,
// where an explicit accidental overrides the key-signature default for that
// diatonic step.
func resolvePitch(p abc.Pitch, keyAcc map[byte]int) float64 {
	offset := keyAcc[p.Step]
	if p.Explicit {
		offset = p.Accidental
	}
	return float64(basePitch + p.Octave*12 + abc.StepSemitone(p.Step) + offset)
}

func emptyTimeline() *Timeline {
	sig := meter.Analyze(0, 0)
	tl := &Timeline{
		SubdivisionsPerMeasure: sig.SubdivisionsPerMeasure,
		SubdivisionUnit:        sig.SubdivisionUnit,
		SubdivisionsPerBeat:    sig.SubdivisionsPerBeat,
	}
	tl.SetTempo(DefaultSecondsPerSubdivision)
	return tl
}
