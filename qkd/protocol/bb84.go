package protocol

import (
	"math/rand/v2"
	"slices"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/qstate"
)

// bb84 encodes each message bit in a randomly chosen Z or X basis. Bob
// measures in his own random basis and the parties keep the rounds where the
// bases agree.
type bb84 struct{ base }

func (bb84) Name() Name      { return BB84 }
func (bb84) Entangled() bool { return false }

func (bb84) Encode(n int, rng *rand.Rand) []Round {
	rounds := newRounds(n, 1)
	for i := range rounds {
		r := &rounds[i]
		r.Bit, r.HasBit = randBit(rng), true
		r.AliceBasis, r.HasAliceBasis = Basis(randBit(rng)), true
		if r.Bit == 1 {
			r.State.Apply(qstate.X, 0)
		}
		if r.AliceBasis == BasisX {
			r.State.Apply(qstate.H, 0)
		}
	}
	return rounds
}

func (bb84) Eavesdrop(rounds []Round, rng *rand.Rand) {
	eavesdropSingle(rounds, rng)
}

func (bb84) Measure(rounds []Round, rng *rand.Rand) []Round {
	return measureSingle(rounds, rng)
}

func (bb84) Reconcile(rounds []Round) (aKey, bKey bitmap.Dense) {
	var a, b []uint8
	for _, r := range rounds {
		if !r.Measured || r.AliceBasis != r.BobBasis {
			continue
		}
		a = append(a, r.Bit)
		b = append(b, r.Outcome.Bob)
	}
	return bitmap.FromBits(a), bitmap.FromBits(b)
}

// measureSingle has Bob measure every single-qubit round in flight in a
// uniformly random Z or X basis.
func measureSingle(rounds []Round, rng *rand.Rand) []Round {
	out := slices.Clone(rounds)
	for i := range out {
		r := &out[i]
		r.BobBasis = Basis(randBit(rng))
		if r.Lost {
			continue
		}
		r.State.Enter(qstate.StageMeasure)
		r.Outcome.Bob = measureZX(r.State, 0, r.BobBasis, rng)
		r.Measured = true
	}
	return out
}
