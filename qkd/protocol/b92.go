package protocol

import (
	"math/rand/v2"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/qstate"
)

// b92 encodes 0 as |0> and 1 as |+>. Only a measurement result of 1 is
// conclusive: in the Z basis it rules out |0>, in the X basis it rules out
// |+>. No basis is ever disclosed by Alice.
type b92 struct{ base }

func (b92) Name() Name      { return B92 }
func (b92) Entangled() bool { return false }

func (b92) Encode(n int, rng *rand.Rand) []Round {
	rounds := newRounds(n, 1)
	for i := range rounds {
		r := &rounds[i]
		r.Bit, r.HasBit = randBit(rng), true
		if r.Bit == 1 {
			r.State.Apply(qstate.H, 0)
		}
	}
	return rounds
}

func (b92) Eavesdrop(rounds []Round, rng *rand.Rand) {
	eavesdropSingle(rounds, rng)
}

func (b92) Measure(rounds []Round, rng *rand.Rand) []Round {
	return measureSingle(rounds, rng)
}

func (b92) Reconcile(rounds []Round) (aKey, bKey bitmap.Dense) {
	var a, b []uint8
	for _, r := range rounds {
		if !r.Measured || r.Outcome.Bob != 1 {
			continue
		}
		a = append(a, r.Bit)
		if r.BobBasis == BasisZ {
			b = append(b, 1)
		} else {
			b = append(b, 0)
		}
	}
	return bitmap.FromBits(a), bitmap.FromBits(b)
}
