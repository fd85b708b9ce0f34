// Package meter analyzes time signatures into the subdivision units the
// timeline engine works in. The subdivision is the meter denominator; the
// perceptual beat may span several subdivisions in compound meters.
package meter

// Signature describes one analyzed time signature.
type Signature struct {
	Numerator              int
	Denominator            int
	SubdivisionsPerMeasure int
	SubdivisionUnit        int
	SubdivisionsPerBeat    int
}

// DefaultNumerator and DefaultDenominator apply when notation carries no
// meter field.
const (
	DefaultNumerator   = 4
	DefaultDenominator = 4
)

// Analyze derives subdivision counts from a meter fraction. Non-positive
// input falls back to 4/4.
func Analyze(numerator, denominator int) Signature {
	if numerator <= 0 || denominator <= 0 {
		numerator, denominator = DefaultNumerator, DefaultDenominator
	}
	sig := Signature{
		Numerator:              numerator,
		Denominator:            denominator,
		SubdivisionsPerMeasure: numerator,
		SubdivisionUnit:        denominator,
		SubdivisionsPerBeat:    1,
	}
	// Compound meters (6/8, 9/8, 12/8) group eighth-note subdivisions into
	// dotted-quarter beats. 3/8 stays simple: a single group is its own beat.
	if denominator == 8 && numerator > 3 && numerator%3 == 0 {
		sig.SubdivisionsPerBeat = 3
	}
	return sig
}

// BeatsPerMeasure returns how many perceptual beats one measure holds.
func (s Signature) BeatsPerMeasure() int {
	if s.SubdivisionsPerBeat <= 0 {
		return s.SubdivisionsPerMeasure
	}
	return s.SubdivisionsPerMeasure / s.SubdivisionsPerBeat
}

// Compound reports whether the signature groups subdivisions into larger
// beats.
func (s Signature) Compound() bool { return s.SubdivisionsPerBeat > 1 }
