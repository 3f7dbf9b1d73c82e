package protocol

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/qstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 2))
}

// run drives p through every stage but cross-checking.
func run(p Protocol, n int, eavesdrop bool, seed uint64) ([]Round, bitmap.Dense, bitmap.Dense) {
	rng := newRand(seed)
	rounds := p.Encode(n, rng)
	if eavesdrop {
		p.Eavesdrop(rounds, rng)
	}
	rounds = p.Measure(rounds, rng)
	a, b := p.Reconcile(rounds)
	return rounds, a, b
}

func errorRate(a, b bitmap.Dense) float64 {
	return float64(bitmap.CountOnes(bitmap.XOr(a, b))) / float64(a.Size())
}

func TestLookup(t *testing.T) {
	tcs := []struct {
		name      string
		want      Name
		entangled bool
	}{
		{"BB84", BB84, false},
		{"b92", B92, false},
		{" e91 ", E91, true},
		{"Bbm92", BBM92, true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Lookup(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Name())
			assert.Equal(t, tc.entangled, p.Entangled())
			for _, r := range p.Encode(3, newRand(1)) {
				width := 1
				if tc.entangled {
					width = 2
				}
				assert.Equal(t, width, r.State.NumQubits())
			}
		})
	}
	_, err := Lookup("SARG04")
	assert.True(t, errors.Is(err, ErrUnknown), "got %v, want ErrUnknown", err)
}

func TestNoiselessKeysAgree(t *testing.T) {
	tcs := []struct {
		name     Name
		n        int
		yield    float64
		yieldTol float64
	}{
		{BB84, 4000, 0.5, 0.04},
		{B92, 4000, 0.25, 0.03},
		{E91, 9000, 2.0 / 9, 0.03},
		{BBM92, 4000, 0.5, 0.04},
	}
	for _, tc := range tcs {
		t.Run(string(tc.name), func(t *testing.T) {
			p, err := Lookup(string(tc.name))
			require.NoError(t, err)
			rounds, a, b := run(p, tc.n, false, 7)
			require.Len(t, rounds, tc.n)
			require.Equal(t, a.Size(), b.Size())
			assert.True(t, bitmap.Equal(a, b), "got keys\n%v\n%v", a, b)
			assert.InDelta(t, tc.yield, float64(a.Size())/float64(tc.n), tc.yieldTol)
		})
	}
}

func TestBB84MatchingBasisRecoversBit(t *testing.T) {
	rounds, _, _ := run(bb84{}, 500, false, 3)
	for _, r := range rounds {
		require.True(t, r.Measured)
		if r.AliceBasis == r.BobBasis {
			assert.Equal(t, r.Bit, r.Outcome.Bob, "round %d", r.Index)
		}
	}
}

func TestBB84Preparation(t *testing.T) {
	for _, r := range (bb84{}).Encode(64, newRand(5)) {
		var want []qstate.Kind
		if r.Bit == 1 {
			want = append(want, qstate.KindX)
		}
		if r.AliceBasis == BasisX {
			want = append(want, qstate.KindH)
		}
		var got []qstate.Kind
		for _, op := range r.State.History() {
			assert.Equal(t, qstate.StagePrepare, op.Stage)
			got = append(got, op.Kind)
		}
		assert.Equal(t, want, got, "bit %d basis %d", r.Bit, r.AliceBasis)

		p1 := r.State.Prob1(0)
		if r.AliceBasis == BasisZ {
			assert.InDelta(t, float64(r.Bit), p1, 1e-9)
		} else {
			assert.InDelta(t, 0.5, p1, 1e-9)
		}
	}
}

func TestB92Conclusive(t *testing.T) {
	rounds, a, _ := run(b92{}, 2000, false, 11)
	kept := 0
	for _, r := range rounds {
		if r.Outcome.Bob == 1 {
			kept++
			// A conclusive Z result only follows |+>, a conclusive X result
			// only follows |0>.
			if r.BobBasis == BasisZ {
				assert.Equal(t, uint8(1), r.Bit)
			} else {
				assert.Equal(t, uint8(0), r.Bit)
			}
		}
	}
	assert.Equal(t, kept, a.Size())
}

func TestE91Statistic(t *testing.T) {
	rounds, _, _ := run(e91{}, 20000, false, 13)
	s, ok := e91{}.TestStatistic(rounds)
	require.True(t, ok)
	assert.InDelta(t, 2*math.Sqrt2, s, 0.15)

	for _, r := range rounds {
		assert.True(t, r.AliceBasis <= 2, "alice code %d", r.AliceBasis)
		assert.True(t, r.BobBasis >= 1 && r.BobBasis <= 3, "bob code %d", r.BobBasis)
	}
}

func TestE91StatisticUndefined(t *testing.T) {
	_, ok := e91{}.TestStatistic(nil)
	assert.False(t, ok)

	rounds, _, _ := run(e91{}, 200, false, 1)
	for i := range rounds {
		if rounds[i].AliceBasis == 2 {
			rounds[i].Measured = false
		}
	}
	_, ok = e91{}.TestStatistic(rounds)
	assert.False(t, ok, "buckets with alice code 2 are empty")
}

func TestOnlyE91HasStatistic(t *testing.T) {
	for _, p := range []Protocol{bb84{}, b92{}, bbm92{}} {
		rounds, _, _ := run(p, 100, false, 1)
		_, ok := p.TestStatistic(rounds)
		assert.False(t, ok, "%v", p.Name())
	}
}

func TestEavesdropRaisesErrors(t *testing.T) {
	tcs := []struct {
		name Name
		want float64
	}{
		{BB84, 0.25},
		// Scrambling makes conclusive results more likely, so a third of
		// the kept B92 rounds are wrong.
		{B92, 1.0 / 3},
		{BBM92, 0.25},
	}
	for _, tc := range tcs {
		t.Run(string(tc.name), func(t *testing.T) {
			p, err := Lookup(string(tc.name))
			require.NoError(t, err)
			_, a, b := run(p, 40000, true, 17)
			assert.InDelta(t, tc.want, errorRate(a, b), 0.03)
		})
	}
}

func TestEavesdropBreaksBellViolation(t *testing.T) {
	rounds, _, _ := run(e91{}, 20000, true, 19)
	s, ok := e91{}.TestStatistic(rounds)
	require.True(t, ok)
	assert.InDelta(t, math.Sqrt2, s, 0.15)
	assert.Less(t, s, 2.0)

	for _, r := range rounds[:10] {
		var stages []qstate.Stage
		for _, op := range r.State.History() {
			stages = append(stages, op.Stage)
		}
		assert.Contains(t, stages, qstate.StageEavesdrop)
		assert.Equal(t, qstate.StageMeasure, stages[len(stages)-1])
	}
}

func TestLostRoundsSkipped(t *testing.T) {
	for _, name := range Names {
		p, err := Lookup(string(name))
		require.NoError(t, err)
		rng := newRand(23)
		rounds := p.Encode(50, rng)
		for i := range rounds {
			rounds[i].Lost = i%2 == 0
		}
		p.Eavesdrop(rounds, rng)
		measured := p.Measure(rounds, rng)
		for i, r := range measured {
			assert.Equal(t, !r.Lost, r.Measured, "%v round %d", name, i)
			assert.False(t, rounds[i].Measured, "input rounds are not modified")
			if r.Lost {
				for _, op := range r.State.History() {
					assert.Equal(t, qstate.StagePrepare, op.Stage)
				}
			}
		}
		a, b := p.Reconcile(measured)
		assert.Equal(t, a.Size(), b.Size())
		assert.LessOrEqual(t, a.Size(), 25)
	}
}

func TestDeterministic(t *testing.T) {
	for _, name := range Names {
		p, err := Lookup(string(name))
		require.NoError(t, err)
		_, a1, b1 := run(p, 300, true, 29)
		_, a2, b2 := run(p, 300, true, 29)
		assert.True(t, bitmap.Equal(a1, a2), "%v", name)
		assert.True(t, bitmap.Equal(b1, b2), "%v", name)
	}
}

func TestAngle(t *testing.T) {
	assert.Equal(t, 0.0, Angle(0))
	assert.InDelta(t, math.Pi/4, Angle(1), 1e-12)
	assert.InDelta(t, 3*math.Pi/4, Angle(3), 1e-12)
}
