package correct

import "strings"

// Guard defends the terminology-only pass against runaway or hallucinated
// rewrites from smaller models: if the output's word set drifts too far from
// the input's, or the output length leaves the plausible band, the model
// output is discarded and the original text kept.
//
// The thresholds are empirically chosen and deliberately configurable.
type Guard struct {
	// MinJaccard is the minimum Jaccard similarity between the input and
	// output word sets. Default 0.7.
	MinJaccard float64

	// MinLengthRatio and MaxLengthRatio bound len(output)/len(input).
	// Defaults 0.5 and 1.5.
	MinLengthRatio float64
	MaxLengthRatio float64
}

// DefaultGuard returns a Guard with the default thresholds.
func DefaultGuard() Guard {
	return Guard{
		MinJaccard:     0.7,
		MinLengthRatio: 0.5,
		MaxLengthRatio: 1.5,
	}
}

// Verdict is the outcome of a guard check, with the measured values for
// logging.
type Verdict struct {
	OK          bool
	Jaccard     float64
	LengthRatio float64
}

// Check evaluates output against input.
func (g Guard) Check(input, output string) Verdict {
	v := Verdict{
		Jaccard:     Jaccard(input, output),
		LengthRatio: lengthRatio(input, output),
	}
	v.OK = v.Jaccard >= g.MinJaccard &&
		v.LengthRatio >= g.MinLengthRatio &&
		v.LengthRatio <= g.MaxLengthRatio
	return v
}

// Jaccard computes the Jaccard similarity of the two texts' word sets,
// case-insensitive. Two empty texts are identical (1.0).
func Jaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

func lengthRatio(input, output string) float64 {
	if len(input) == 0 {
		if len(output) == 0 {
			return 1.0
		}
		return 0
	}
	return float64(len(output)) / float64(len(input))
}
