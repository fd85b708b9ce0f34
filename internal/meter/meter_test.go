package meter

import "testing"

func TestAnalyzeSimpleMeters(t *testing.T) {
	cases := []struct {
		num, den int
		perBeat  int
	}{
		{4, 4, 1},
		{3, 4, 1},
		{2, 4, 1},
		{3, 8, 1},
		{5, 8, 1},
		{2, 2, 1},
	}
	for _, c := range cases {
		sig := Analyze(c.num, c.den)
		if sig.SubdivisionsPerBeat != c.perBeat {
			t.Fatalf("%d/%d: expected %d subdivisions per beat, got %d", c.num, c.den, c.perBeat, sig.SubdivisionsPerBeat)
		}
		if sig.SubdivisionsPerMeasure != c.num || sig.SubdivisionUnit != c.den {
			t.Fatalf("%d/%d: wrong measure shape %d/%d", c.num, c.den, sig.SubdivisionsPerMeasure, sig.SubdivisionUnit)
		}
	}
}

func TestAnalyzeCompoundMeters(t *testing.T) {
	for _, num := range []int{6, 9, 12} {
		sig := Analyze(num, 8)
		if sig.SubdivisionsPerBeat != 3 {
			t.Fatalf("%d/8: expected compound beat of 3, got %d", num, sig.SubdivisionsPerBeat)
		}
		if !sig.Compound() {
			t.Fatalf("%d/8: expected Compound()", num)
		}
		if sig.BeatsPerMeasure() != num/3 {
			t.Fatalf("%d/8: expected %d beats per measure, got %d", num, num/3, sig.BeatsPerMeasure())
		}
	}
}

func TestAnalyzeDefaultsTo44(t *testing.T) {
	sig := Analyze(0, 0)
	if sig.SubdivisionsPerMeasure != 4 || sig.SubdivisionUnit != 4 || sig.SubdivisionsPerBeat != 1 {
		t.Fatalf("expected 4/4 default, got %+v", sig)
	}
}
