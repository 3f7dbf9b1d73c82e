// Package channel models the optical link between the two parties of a QKD
// exchange: photon loss in the fiber and at the source/detector, and the
// polarization drift that perturbs qubits in transit.
package channel

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/alan-christopher/qkdsim/qkd/qstate"
	"gonum.org/v1/gonum/stat/distuv"
)

// A LossMode selects how photon loss is applied to a run.
type LossMode uint8

const (
	// LossTruncate shrinks the number of rounds up front to the expected
	// number of surviving photons.
	LossTruncate LossMode = iota
	// LossDrop transmits every round and independently marks each one lost.
	LossDrop
)

func (m LossMode) String() string {
	switch m {
	case LossTruncate:
		return "truncate"
	case LossDrop:
		return "drop"
	}
	return fmt.Sprintf("LossMode(%d)", m)
}

// MarshalText implements encoding.TextMarshaler.
func (m LossMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *LossMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "truncate", "":
		*m = LossTruncate
	case "drop":
		*m = LossDrop
	default:
		return fmt.Errorf("unknown loss mode %q", text)
	}
	return nil
}

// A Model packages together the physical parameters of the link. Loss and
// each of the two noise sources can be toggled independently.
type Model struct {
	FiberLengthKm      float64
	FiberLossDBPerKm   float64
	DetectorEfficiency float64
	SourceEfficiency   float64
	EnableLosses       bool
	LossMode           LossMode

	// PerturbProbability is the per-qubit probability of a rotation drawn
	// uniformly from [0, pi].
	PerturbProbability float64
	EnablePerturb      bool

	// UncertaintyMeanRad is the mean absolute deviation of the normally
	// distributed rotation applied to every qubit.
	UncertaintyMeanRad float64
	EnableUncertainty  bool
}

// LossProbability returns the probability that a photon never reaches the
// receiving detector: 1 - 10^(-alpha*L/10) * eta_detector * eta_source.
func (m Model) LossProbability() float64 {
	transmittance := math.Pow(10, -m.FiberLossDBPerKm*m.FiberLengthKm/10)
	return 1 - transmittance*m.DetectorEfficiency*m.SourceEfficiency
}

// EffectiveRounds returns the number of rounds to simulate when n were
// requested. Only LossTruncate with losses enabled reduces the count.
func (m Model) EffectiveRounds(n int) int {
	if !m.EnableLosses || m.LossMode != LossTruncate {
		return n
	}
	return int(math.Ceil(float64(n) * (1 - m.LossProbability())))
}

// Drop returns, for each of n rounds, whether its photon was lost. It returns
// nil unless losses are enabled in LossDrop mode.
func (m Model) Drop(n int, rng *rand.Rand) []bool {
	if !m.EnableLosses || m.LossMode != LossDrop {
		return nil
	}
	coin := distuv.Bernoulli{P: clamp01(m.LossProbability()), Src: rng}
	lost := make([]bool, n)
	for i := range lost {
		lost[i] = coin.Rand() == 1
	}
	return lost
}

// UncertaintyStd returns the standard deviation of the uncertainty rotation.
// For a zero-mean normal distribution E|x| = sigma*sqrt(2/pi), so the
// configured mean deviation is scaled by sqrt(pi/2).
func (m Model) UncertaintyStd() float64 {
	if !m.EnableUncertainty {
		return 0
	}
	return m.UncertaintyMeanRad * math.Sqrt(math.Pi/2)
}

// Noisy reports whether Disturb can modify a state.
func (m Model) Noisy() bool {
	return m.perturbs() || m.uncertain()
}

// Disturb applies perturbation and uncertainty noise to every qubit of st.
// When both sources are active each qubit receives exactly one of them: a
// perturbation with probability PerturbProbability, uncertainty otherwise.
func (m Model) Disturb(st *qstate.State, rng *rand.Rand) {
	perturb := distuv.Bernoulli{P: m.PerturbProbability, Src: rng}
	drift := distuv.Uniform{Min: 0, Max: math.Pi, Src: rng}
	jitter := distuv.Normal{Mu: 0, Sigma: m.UncertaintyStd(), Src: rng}
	for q := 0; q < st.NumQubits(); q++ {
		switch {
		case m.perturbs() && perturb.Rand() == 1:
			st.Apply(qstate.RY(drift.Rand()), q)
		case m.uncertain():
			st.Apply(qstate.RY(jitter.Rand()), q)
		}
	}
}

func (m Model) perturbs() bool {
	return m.EnablePerturb && m.PerturbProbability > 0
}

func (m Model) uncertain() bool {
	return m.EnableUncertainty && m.UncertaintyMeanRad > 0
}

func clamp01(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
