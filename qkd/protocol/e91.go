package protocol

import (
	"math"
	"math/rand/v2"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/qstate"
	"github.com/alan-christopher/qkdsim/qkd/stats"
)

// e91 distributes Bell pairs. Alice measures along angle code 0, 1 or 2 and
// Bob along 1, 2 or 3, where code k is a rotation of k/8 of a full turn. Rounds
// with equal codes form the key; rounds with codes (0,1), (0,3), (2,1) and
// (2,3) feed the CHSH statistic.
type e91 struct{ base }

func (e91) Name() Name      { return E91 }
func (e91) Entangled() bool { return true }

func (e91) Encode(n int, _ *rand.Rand) []Round {
	return prepareBell(n)
}

func (e91) Eavesdrop(rounds []Round, rng *rand.Rand) {
	eavesdropPair(rounds, rng)
}

func (e91) Measure(rounds []Round, rng *rand.Rand) []Round {
	alice := func(rng *rand.Rand) Basis { return Basis(rng.IntN(3)) }
	bob := func(rng *rand.Rand) Basis { return Basis(rng.IntN(3) + 1) }
	return measurePair(rounds, rng, alice, bob, measureAngle)
}

func (e91) Reconcile(rounds []Round) (aKey, bKey bitmap.Dense) {
	return reconcilePair(rounds)
}

func (e91) TestStatistic(rounds []Round) (float64, bool) {
	var e01, e03, e21, e23 stats.Counts
	for _, r := range rounds {
		if !r.Measured {
			continue
		}
		var c *stats.Counts
		switch [2]Basis{r.AliceBasis, r.BobBasis} {
		case [2]Basis{0, 1}:
			c = &e01
		case [2]Basis{0, 3}:
			c = &e03
		case [2]Basis{2, 1}:
			c = &e21
		case [2]Basis{2, 3}:
			c = &e23
		default:
			continue
		}
		c.Add(r.Outcome.Alice, r.Outcome.Bob)
	}
	return stats.CHSH(e01, e03, e21, e23)
}

// Angle returns the measurement rotation, in radians, selected by angle code
// k.
func Angle(k Basis) float64 {
	return 2 * math.Pi * float64(k) / 8
}

func measureAngle(st *qstate.State, q int, k Basis, rng *rand.Rand) uint8 {
	if k != 0 {
		st.Apply(qstate.RY(-Angle(k)), q)
	}
	return st.Measure(q, rng)
}
