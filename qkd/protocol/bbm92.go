package protocol

import (
	"math/rand/v2"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
)

// bbm92 distributes Bell pairs which both parties measure in independently
// chosen Z or X bases. The key is the shared outcome of rounds whose bases
// agree.
type bbm92 struct{ base }

func (bbm92) Name() Name      { return BBM92 }
func (bbm92) Entangled() bool { return true }

func (bbm92) Encode(n int, _ *rand.Rand) []Round {
	return prepareBell(n)
}

func (bbm92) Eavesdrop(rounds []Round, rng *rand.Rand) {
	eavesdropPair(rounds, rng)
}

func (bbm92) Measure(rounds []Round, rng *rand.Rand) []Round {
	zx := func(rng *rand.Rand) Basis { return Basis(randBit(rng)) }
	return measurePair(rounds, rng, zx, zx, measureZX)
}

func (bbm92) Reconcile(rounds []Round) (aKey, bKey bitmap.Dense) {
	return reconcilePair(rounds)
}
