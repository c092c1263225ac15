// Optional trained scorer: a three-state Gaussian-emission HMM over the
// return series. The forward pass produces per-state likelihoods that feed
// the same softmax/argmax path as the rule-based scores.
package regime

import "math"

// hmmScorer holds the HMM parameters. States map 1:1 onto the regimes in
// types.Regimes order: trend, sideways, volatile.
type hmmScorer struct {
	transition [3][3]float64
	means      [3]float64
	variances  [3]float64
}

func newHMMScorer() *hmmScorer {
	s := &hmmScorer{
		// Drifting returns for trend, near-zero tight returns for
		// sideways, near-zero wide returns for volatile.
		means:     [3]float64{0.002, 0.0, 0.0},
		variances: [3]float64{0.0002, 0.00005, 0.0008},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i == j {
				s.transition[i][j] = 0.9
			} else {
				s.transition[i][j] = 0.05
			}
		}
	}
	return s
}

// scores runs the forward algorithm over the returns and emits the final
// normalized state probabilities as unnormalized regime scores.
func (s *hmmScorer) scores(returns []float64) (trend, rng, vol float64) {
	alpha := [3]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}

	for _, ret := range returns {
		var next [3]float64
		total := 0.0
		for j := 0; j < 3; j++ {
			sum := 0.0
			for i := 0; i < 3; i++ {
				sum += alpha[i] * s.transition[i][j]
			}
			// Trend emissions are symmetric in direction.
			x := ret
			if j == 0 {
				x = math.Abs(ret)
			}
			next[j] = sum * gaussianPDF(x, s.means[j], s.variances[j])
			total += next[j]
		}
		if total > 0 {
			for j := range next {
				next[j] /= total
			}
		}
		alpha = next
	}

	return alpha[0], alpha[1], alpha[2]
}

func gaussianPDF(x, mean, variance float64) float64 {
	if variance <= 0 {
		variance = 1e-6
	}
	diff := x - mean
	return math.Exp(-0.5*diff*diff/variance) / math.Sqrt(2*math.Pi*variance)
}
