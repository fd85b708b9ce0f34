// Package abc parses an ABC-style notation subset into a structural tree of
// voices and timed elements. Every element keeps the character range it came
// from so downstream consumers can highlight source text during playback.
package abc

import (
	"fmt"
	"strconv"
	"strings"
)

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// StepSemitone returns the diatonic semitone offset of a lowercase note
// letter within an octave (c=0 ... b=11).
func StepSemitone(step byte) int { return noteOffsets[lower(step)] }

// IsStep reports whether b is a diatonic note letter.
func IsStep(b byte) bool { _, ok := noteOffsets[lower(b)]; return ok }

// Parse reads a complete tune. Character offsets in the result index into
// input exactly as given; no preprocessing shifts them.
func Parse(input string) (*Tune, error) {
	t := &Tune{UnitLength: 0}
	lines := splitLinesKeepOffsets(input)

	inHeader := true
	var cur *voiceState
	voices := map[string]*voiceState{}
	order := []string{}

	for _, ln := range lines {
		text := ln.text
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "%") {
			continue
		}
		if inHeader && isHeaderLine(trimmed) {
			if err := t.applyHeaderField(trimmed); err != nil {
				return nil, err
			}
			if trimmed[0] == 'K' {
				inHeader = false
			}
			continue
		}
		inHeader = false
		if len(trimmed) >= 2 && (trimmed[0] == 'V' || trimmed[0] == 'v') && trimmed[1] == ':' {
			id := strings.TrimSpace(trimmed[2:])
			if sp := strings.IndexByte(id, ' '); sp >= 0 {
				id = id[:sp]
			}
			cur = lookupVoice(voices, &order, id)
			continue
		}
		if cur == nil {
			cur = lookupVoice(voices, &order, "1")
		}
		if err := t.parseBodyLine(text, ln.offset, cur); err != nil {
			return nil, err
		}
	}

	if t.UnitLength <= 0 {
		t.UnitLength = defaultUnitLength(t)
	}
	for i, id := range order {
		vs := voices[id]
		t.Voices = append(t.Voices, Voice{
			ID:         id,
			StaffIndex: i,
			VoiceIndex: i,
			Elements:   vs.elements,
		})
	}
	return t, nil
}

type voiceState struct {
	elements   []Element
	pendingTie bool
	tupletLeft int
	tupletMul  float64
	brokenMul  float64
}

type lineSpan struct {
	text   string
	offset int
}

func splitLinesKeepOffsets(src string) []lineSpan {
	out := make([]lineSpan, 0, 16)
	start := 0
	for i := 0; i <= len(src); i++ {
		if i == len(src) || src[i] == '\n' {
			out = append(out, lineSpan{text: src[start:i], offset: start})
			start = i + 1
		}
	}
	return out
}

func isHeaderLine(trimmed string) bool {
	if len(trimmed) < 2 || trimmed[1] != ':' {
		return false
	}
	switch trimmed[0] {
	case 'X', 'T', 'C', 'M', 'L', 'Q', 'K', 'R', 'O', 'N', 'Z', 'S':
		return true
	}
	return false
}

func (t *Tune) applyHeaderField(trimmed string) error {
	value := strings.TrimSpace(trimmed[2:])
	switch trimmed[0] {
	case 'T':
		if t.Title == "" {
			t.Title = value
		}
	case 'M':
		num, den, err := parseMeterValue(value)
		if err != nil {
			return err
		}
		t.Meter = Meter{Numerator: num, Denominator: den}
		t.HasMeter = true
	case 'L':
		f, err := parseFractionValue(value)
		if err != nil {
			return fmt.Errorf("bad unit length %q: %w", value, err)
		}
		t.UnitLength = f
	case 'Q':
		tempo, err := parseTempoValue(value)
		if err != nil {
			return err
		}
		t.Tempo = tempo
	case 'K':
		t.Key = strings.ToLower(value)
	}
	return nil
}

func parseMeterValue(value string) (int, int, error) {
	switch strings.TrimSpace(value) {
	case "C":
		return 4, 4, nil
	case "C|":
		return 2, 2, nil
	}
	slash := strings.IndexByte(value, '/')
	if slash <= 0 {
		return 0, 0, fmt.Errorf("bad meter %q", value)
	}
	num, err1 := strconv.Atoi(strings.TrimSpace(value[:slash]))
	den, err2 := strconv.Atoi(strings.TrimSpace(value[slash+1:]))
	if err1 != nil || err2 != nil || num <= 0 || den <= 0 {
		return 0, 0, fmt.Errorf("bad meter %q", value)
	}
	return num, den, nil
}

func parseFractionValue(value string) (float64, error) {
	slash := strings.IndexByte(value, '/')
	if slash < 0 {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("not a fraction")
		}
		return float64(n), nil
	}
	num, err1 := strconv.Atoi(strings.TrimSpace(value[:slash]))
	den, err2 := strconv.Atoi(strings.TrimSpace(value[slash+1:]))
	if err1 != nil || err2 != nil || num <= 0 || den <= 0 {
		return 0, fmt.Errorf("not a fraction")
	}
	return float64(num) / float64(den), nil
}

// parseTempoValue decodes "1/4=120" and bare "120" forms. The bare form
// counts quarter-note beats.
func parseTempoValue(value string) (Tempo, error) {
	value = strings.Trim(strings.TrimSpace(value), "\"")
	eq := strings.IndexByte(value, '=')
	if eq < 0 {
		bpm, err := strconv.ParseFloat(value, 64)
		if err != nil || bpm <= 0 {
			return Tempo{}, fmt.Errorf("bad tempo %q", value)
		}
		return Tempo{BPM: bpm, BeatLength: 0.25}, nil
	}
	unit, err := parseFractionValue(value[:eq])
	if err != nil {
		return Tempo{}, fmt.Errorf("bad tempo unit %q", value)
	}
	bpm, err := strconv.ParseFloat(strings.TrimSpace(value[eq+1:]), 64)
	if err != nil || bpm <= 0 {
		return Tempo{}, fmt.Errorf("bad tempo %q", value)
	}
	return Tempo{BPM: bpm, BeatLength: unit}, nil
}

// defaultUnitLength follows the convention: meters shorter than 3/4 default
// to sixteenths, everything else to eighths.
func defaultUnitLength(t *Tune) float64 {
	if t.HasMeter {
		ratio := float64(t.Meter.Numerator) / float64(t.Meter.Denominator)
		if ratio < 0.75 {
			return 1.0 / 16.0
		}
	}
	return 1.0 / 8.0
}

func (t *Tune) parseBodyLine(line string, lineOffset int, vs *voiceState) error {
	i := 0
	for i < len(line) {
		ch := line[i]
		switch {
		case ch == '%':
			return nil
		case isSpace(ch):
			i++
		case ch == '|' || ch == ':':
			start := i
			for i < len(line) && (line[i] == '|' || line[i] == ':' || line[i] == ']') {
				i++
			}
			// repeat-ending digits ride on the bar token
			for i < len(line) && line[i] >= '1' && line[i] <= '9' {
				i++
			}
			vs.elements = append(vs.elements, Element{
				Type:      ElemBar,
				StartChar: lineOffset + start,
				EndChar:   lineOffset + i,
			})
		case ch == '[':
			next, err := t.parseBracket(line, i, lineOffset, vs)
			if err != nil {
				return err
			}
			i = next
		case ch == ']':
			i++
		case isAccidentalMark(ch) && hasStepAfterAccidentals(line, i):
			next, err := t.parseNoteElement(line, i, lineOffset, vs)
			if err != nil {
				return err
			}
			i = next
		case IsStep(ch):
			next, err := t.parseNoteElement(line, i, lineOffset, vs)
			if err != nil {
				return err
			}
			i = next
		case ch == 'z' || ch == 'x' || ch == 'Z':
			next, err := t.parseRestElement(line, i, lineOffset, vs)
			if err != nil {
				return err
			}
			i = next
		case ch == '>' || ch == '<':
			vs.applyBrokenRhythm(ch)
			i++
		case ch == '(':
			if i+1 < len(line) && line[i+1] >= '2' && line[i+1] <= '9' {
				n := int(line[i+1] - '0')
				vs.tupletLeft = n
				vs.tupletMul = tupletTime(n) / float64(n)
				i += 2
				// skip p:q:r refinements
				for i < len(line) && (line[i] == ':' || (line[i] >= '0' && line[i] <= '9')) {
					i++
				}
				continue
			}
			i++
		case ch == ')':
			i++
		case ch == '"':
			end := strings.IndexByte(line[i+1:], '"')
			if end < 0 {
				return fmt.Errorf("unterminated chord symbol at %d", lineOffset+i)
			}
			i += end + 2
		case ch == '!':
			end := strings.IndexByte(line[i+1:], '!')
			if end < 0 {
				return fmt.Errorf("unterminated decoration at %d", lineOffset+i)
			}
			i += end + 2
		case ch == '-':
			vs.markTie()
			i++
		default:
			// decorations (~ . u v etc.) and anything unrecognized advance
			i++
		}
	}
	return nil
}

// parseBracket handles '[' tokens: inline fields, thick bars, or chords.
func (t *Tune) parseBracket(line string, at, lineOffset int, vs *voiceState) (int, error) {
	if at+2 < len(line) && line[at+2] == ':' {
		close := strings.IndexByte(line[at:], ']')
		if close < 0 {
			return 0, fmt.Errorf("unterminated inline field at %d", lineOffset+at)
		}
		body := line[at+1 : at+close]
		end := at + close + 1
		if len(body) < 3 {
			return end, nil
		}
		switch body[0] {
		case 'K', 'k':
			vs.elements = append(vs.elements, Element{
				Type:      ElemKeyChange,
				Key:       strings.ToLower(strings.TrimSpace(body[2:])),
				StartChar: lineOffset + at,
				EndChar:   lineOffset + end,
			})
		}
		// other inline fields are ignored but consumed
		return end, nil
	}
	if at+1 < len(line) && line[at+1] == '|' {
		i := at
		for i < len(line) && (line[i] == '[' || line[i] == '|' || line[i] == ':') {
			i++
		}
		vs.elements = append(vs.elements, Element{
			Type:      ElemBar,
			StartChar: lineOffset + at,
			EndChar:   lineOffset + i,
		})
		return i, nil
	}
	if at+1 < len(line) && line[at+1] >= '1' && line[at+1] <= '9' {
		// repeat ending "[1" / "[2"
		return at + 2, nil
	}
	return t.parseChordElement(line, at, lineOffset, vs)
}

func (t *Tune) parseNoteElement(line string, at, lineOffset int, vs *voiceState) (int, error) {
	pitch, i, err := parsePitch(line, at, lineOffset)
	if err != nil {
		return 0, err
	}
	factor, i := parseLengthFactor(line, i)
	i = consumeTie(line, i, &pitch)
	pitch.EndChar = lineOffset + i
	elem := Element{
		Type:      ElemNote,
		Pitches:   []Pitch{pitch},
		Duration:  t.UnitLengthOrDefault() * factor,
		StartChar: lineOffset + at,
		EndChar:   lineOffset + i,
	}
	vs.pushNote(elem)
	return i, nil
}

func (t *Tune) parseChordElement(line string, at, lineOffset int, vs *voiceState) (int, error) {
	i := at + 1
	pitches := make([]Pitch, 0, 3)
	innerFactor := 0.0
	for i < len(line) && line[i] != ']' {
		if isSpace(line[i]) {
			i++
			continue
		}
		if !IsStep(line[i]) && !isAccidentalMark(line[i]) {
			return 0, fmt.Errorf("unexpected %q in chord at %d", line[i], lineOffset+i)
		}
		p, next, err := parsePitch(line, i, lineOffset)
		if err != nil {
			return 0, err
		}
		f, next := parseLengthFactor(line, next)
		next = consumeTie(line, next, &p)
		p.EndChar = lineOffset + next
		if innerFactor == 0 {
			innerFactor = f
		}
		pitches = append(pitches, p)
		i = next
	}
	if i >= len(line) {
		return 0, fmt.Errorf("unterminated chord at %d", lineOffset+at)
	}
	i++ // ']'
	outerFactor, i := parseLengthFactor(line, i)
	factor := innerFactor
	if factor == 0 {
		factor = 1
	}
	if outerFactor != 1 {
		factor *= outerFactor
	}
	tied := false
	if i < len(line) && line[i] == '-' {
		tied = true
		i++
	}
	if len(pitches) == 0 {
		return i, nil
	}
	if tied {
		for k := range pitches {
			pitches[k].TieStart = true
		}
	}
	elem := Element{
		Type:      ElemNote,
		Pitches:   pitches,
		Duration:  t.UnitLengthOrDefault() * factor,
		StartChar: lineOffset + at,
		EndChar:   lineOffset + i,
	}
	vs.pushNote(elem)
	return i, nil
}

func (t *Tune) parseRestElement(line string, at, lineOffset int, vs *voiceState) (int, error) {
	ch := line[at]
	i := at + 1
	var dur float64
	if ch == 'Z' {
		measures, next := parseOptionalInt(line, i, 1)
		i = next
		dur = t.measureWholeNotes() * float64(measures)
	} else {
		factor, next := parseLengthFactor(line, i)
		i = next
		dur = t.UnitLengthOrDefault() * factor * vs.takeBroken() * vs.takeTuplet()
	}
	vs.pendingTie = false
	vs.elements = append(vs.elements, Element{
		Type:      ElemRest,
		Duration:  dur,
		StartChar: lineOffset + at,
		EndChar:   lineOffset + i,
	})
	return i, nil
}

func (t *Tune) measureWholeNotes() float64 {
	num, den := 4, 4
	if t.HasMeter {
		num, den = t.Meter.Numerator, t.Meter.Denominator
	}
	return float64(num) / float64(den)
}

// UnitLengthOrDefault returns the L: value, or the convention default when
// the header omitted it (header parsing fills it in before body parsing for
// well-formed input, but inline bodies may arrive without headers).
func (t *Tune) UnitLengthOrDefault() float64 {
	if t.UnitLength > 0 {
		return t.UnitLength
	}
	return defaultUnitLength(t)
}

func parsePitch(line string, at, lineOffset int) (Pitch, int, error) {
	i := at
	acc, explicit := 0, false
	for i < len(line) {
		switch line[i] {
		case '^':
			acc++
			explicit = true
			i++
		case '_':
			acc--
			explicit = true
			i++
		case '=':
			explicit = true
			i++
		default:
			goto done
		}
	}
done:
	if i >= len(line) || !IsStep(line[i]) {
		return Pitch{}, at, fmt.Errorf("expected note letter at %d", lineOffset+i)
	}
	step := line[i]
	octave := 0
	if step >= 'a' && step <= 'g' {
		octave = 1
	}
	i++
	for i < len(line) {
		if line[i] == '\'' {
			octave++
			i++
		} else if line[i] == ',' {
			octave--
			i++
		} else {
			break
		}
	}
	return Pitch{
		Step:       lower(step),
		Octave:     octave,
		Accidental: acc,
		Explicit:   explicit,
		StartChar:  lineOffset + at,
	}, i, nil
}

// parseLengthFactor reads "3", "/2", "/", "//", "3/2" multiplier syntax.
func parseLengthFactor(line string, at int) (float64, int) {
	num, i := parseOptionalInt(line, at, 1)
	den := 1
	for i < len(line) && line[i] == '/' {
		i++
		d, next := parseOptionalInt(line, i, 2)
		den *= d
		i = next
	}
	return float64(num) / float64(den), i
}

func parseOptionalInt(line string, at, def int) (int, int) {
	i := at
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == at {
		return def, at
	}
	v, err := strconv.Atoi(line[at:i])
	if err != nil || v <= 0 {
		return def, i
	}
	return v, i
}

func consumeTie(line string, at int, p *Pitch) int {
	if at < len(line) && line[at] == '-' {
		p.TieStart = true
		return at + 1
	}
	return at
}

func (vs *voiceState) pushNote(elem Element) {
	elem.Duration *= vs.takeBroken() * vs.takeTuplet()
	if vs.pendingTie {
		for k := range elem.Pitches {
			elem.Pitches[k].TieEnd = true
		}
	}
	vs.pendingTie = false
	for _, p := range elem.Pitches {
		if p.TieStart {
			vs.pendingTie = true
			break
		}
	}
	vs.elements = append(vs.elements, elem)
}

// applyBrokenRhythm stretches the previous note and shortens the next one
// (or the reverse for '<').
func (vs *voiceState) applyBrokenRhythm(mark byte) {
	prevMul, nextMul := 1.5, 0.5
	if mark == '<' {
		prevMul, nextMul = 0.5, 1.5
	}
	for k := len(vs.elements) - 1; k >= 0; k-- {
		if vs.elements[k].Type == ElemNote || vs.elements[k].Type == ElemRest {
			vs.elements[k].Duration *= prevMul
			break
		}
	}
	vs.brokenMul = nextMul
}

// markTie flags the pitches of the most recent note as tied forward. Used
// for a bare '-' that was separated from its note by skipped decoration.
func (vs *voiceState) markTie() {
	for k := len(vs.elements) - 1; k >= 0; k-- {
		if vs.elements[k].Type == ElemNote {
			for j := range vs.elements[k].Pitches {
				vs.elements[k].Pitches[j].TieStart = true
			}
			vs.pendingTie = true
			return
		}
		if vs.elements[k].Type == ElemRest {
			return
		}
	}
}

func (vs *voiceState) takeBroken() float64 {
	if vs.brokenMul == 0 {
		return 1
	}
	m := vs.brokenMul
	vs.brokenMul = 0
	return m
}

func (vs *voiceState) takeTuplet() float64 {
	if vs.tupletLeft <= 0 {
		return 1
	}
	vs.tupletLeft--
	if vs.tupletLeft == 0 {
		m := vs.tupletMul
		vs.tupletMul = 0
		return m
	}
	return vs.tupletMul
}

// tupletTime returns how many unit lengths n tuplet notes occupy.
func tupletTime(n int) float64 {
	switch n {
	case 2, 4, 8:
		return 3
	case 3, 6:
		return 2
	default:
		return 2
	}
}

func lookupVoice(voices map[string]*voiceState, order *[]string, id string) *voiceState {
	if vs, ok := voices[id]; ok {
		return vs
	}
	vs := &voiceState{}
	voices[id] = vs
	*order = append(*order, id)
	return vs
}

func isAccidentalMark(b byte) bool { return b == '^' || b == '_' || b == '=' }

// hasStepAfterAccidentals distinguishes an accidental run belonging to a note
// from a stray mark (an '=' inside text, say).
func hasStepAfterAccidentals(line string, at int) bool {
	i := at
	for i < len(line) && isAccidentalMark(line[i]) {
		i++
	}
	return i < len(line) && IsStep(line[i])
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' }

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}
