// Package protocol implements the QKD protocol variants simulated by qkd: the
// prepare-and-measure protocols BB84 and B92, and the entanglement-based
// protocols E91 and BBM92.
//
// A simulation round is represented by a Round carrying its quantum state and
// both parties' choices. Each stage of a run takes the rounds produced by the
// previous one, so a Protocol holds no per-run state and may be shared freely
// between concurrent runs.
package protocol

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/qstate"
	"github.com/alan-christopher/qkdsim/qkd/stats"
)

// ErrUnknown is returned by Lookup for names that match no protocol.
var ErrUnknown = errors.New("unknown protocol")

// A Name identifies a protocol variant.
type Name string

const (
	BB84  Name = "BB84"
	B92   Name = "B92"
	E91   Name = "E91"
	BBM92 Name = "BBM92"
)

// Names lists every supported protocol.
var Names = []Name{BB84, B92, E91, BBM92}

// A Basis is a party's measurement or preparation choice for one round. For
// BB84, B92 and BBM92 it is BasisZ or BasisX. For E91 it is an angle code k,
// selecting a measurement axis rotated by k/8 of a full turn.
type Basis uint8

const (
	BasisZ Basis = 0
	BasisX Basis = 1
)

// An Outcome holds the measured bits of a round. Single-qubit protocols only
// fill Bob's bit.
type Outcome struct {
	Alice uint8
	Bob   uint8
}

// A Round is one use of the quantum channel.
type Round struct {
	Index int
	State *qstate.State

	// Bit is Alice's message bit, present only for prepare-and-measure
	// protocols.
	Bit    uint8
	HasBit bool

	AliceBasis    Basis
	HasAliceBasis bool
	BobBasis      Basis

	// Lost rounds never reach Bob and carry no outcome.
	Lost     bool
	Measured bool
	Outcome  Outcome
}

// A Protocol is one QKD protocol variant. Stages are called in order Encode,
// Eavesdrop, Measure, Reconcile, TestStatistic, CrossCheck; channel noise is
// applied between Encode and Eavesdrop by the caller. Stages never modify the
// slice they are given, although they do advance the quantum states it
// references.
type Protocol interface {
	Name() Name
	// Entangled reports whether rounds carry a two-qubit pair rather than a
	// single qubit.
	Entangled() bool
	// Encode prepares n rounds, sampling Alice's choices from rng.
	Encode(n int, rng *rand.Rand) []Round
	// Eavesdrop applies the intercept-resend model to every round in flight.
	Eavesdrop(rounds []Round, rng *rand.Rand)
	// Measure samples the measurement bases and measures every round in
	// flight, returning the updated rounds.
	Measure(rounds []Round, rng *rand.Rand) []Round
	// Reconcile discards incompatible rounds and returns both parties' keys,
	// which always have equal length.
	Reconcile(rounds []Round) (aKey, bKey bitmap.Dense)
	// CrossCheck discloses a fraction of the keys to estimate the error rate,
	// returning the keys with the disclosed bits removed.
	CrossCheck(aKey, bKey bitmap.Dense, fraction float64, rng *rand.Rand) (stats.Check, bitmap.Dense, bitmap.Dense, error)
	// TestStatistic returns the protocol's Bell test statistic, if it has one
	// and it is defined for rounds.
	TestStatistic(rounds []Round) (float64, bool)
}

// Lookup returns the protocol named name, ignoring case.
func Lookup(name string) (Protocol, error) {
	switch Name(strings.ToUpper(strings.TrimSpace(name))) {
	case BB84:
		return bb84{}, nil
	case B92:
		return b92{}, nil
	case E91:
		return e91{}, nil
	case BBM92:
		return bbm92{}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknown, name)
}

// base supplies the default stages shared by every variant.
type base struct{}

func (base) CrossCheck(aKey, bKey bitmap.Dense, fraction float64, rng *rand.Rand) (stats.Check, bitmap.Dense, bitmap.Dense, error) {
	return stats.CrossCheck(aKey, bKey, fraction, rng)
}

func (base) TestStatistic([]Round) (float64, bool) {
	return 0, false
}

func newRounds(n, width int) []Round {
	rounds := make([]Round, n)
	for i := range rounds {
		rounds[i] = Round{Index: i, State: qstate.New(width)}
	}
	return rounds
}

func randBit(rng *rand.Rand) uint8 {
	return uint8(rng.IntN(2))
}

// measureZX measures qubit q of st in basis b, which must be BasisZ or BasisX.
func measureZX(st *qstate.State, q int, b Basis, rng *rand.Rand) uint8 {
	if b == BasisX {
		st.Apply(qstate.H, q)
	}
	return st.Measure(q, rng)
}

// eavesdropSingle models an attacker who, half of the time, scrambles the
// qubit into the conjugate basis with either XHX or H.
func eavesdropSingle(rounds []Round, rng *rand.Rand) {
	for _, r := range rounds {
		if r.Lost || rng.Float64() >= 0.5 {
			continue
		}
		r.State.Enter(qstate.StageEavesdrop)
		if rng.Float64() < 0.5 {
			r.State.Apply(qstate.X, 0)
			r.State.Apply(qstate.H, 0)
			r.State.Apply(qstate.X, 0)
		} else {
			r.State.Apply(qstate.H, 0)
		}
	}
}

// eavesdropPair models an attacker who captures the pair and resends either
// |00> or |11> with equal probability, destroying the entanglement.
func eavesdropPair(rounds []Round, rng *rand.Rand) {
	for _, r := range rounds {
		if r.Lost {
			continue
		}
		st := r.State
		st.Enter(qstate.StageEavesdrop)
		st.Reset(0)
		st.Reset(1)
		if rng.Float64() < 0.5 {
			st.Apply(qstate.X, 0)
			st.Apply(qstate.X, 1)
		}
	}
}

// prepareBell returns n rounds each holding the Bell pair (|00> + |11>)/sqrt(2).
func prepareBell(n int) []Round {
	rounds := newRounds(n, 2)
	for _, r := range rounds {
		r.State.Apply(qstate.H, 0)
		r.State.Apply(qstate.CX, 0, 1)
	}
	return rounds
}

// measurePair measures Alice's qubit 0 and Bob's qubit 1 of every round in
// flight, using measure to rotate each qubit into its party's basis.
func measurePair(rounds []Round, rng *rand.Rand, alice, bob func(rng *rand.Rand) Basis, measure func(*qstate.State, int, Basis, *rand.Rand) uint8) []Round {
	out := slices.Clone(rounds)
	for i := range out {
		r := &out[i]
		r.AliceBasis, r.HasAliceBasis = alice(rng), true
		r.BobBasis = bob(rng)
		if r.Lost {
			continue
		}
		r.State.Enter(qstate.StageMeasure)
		r.Outcome.Alice = measure(r.State, 0, r.AliceBasis, rng)
		r.Outcome.Bob = measure(r.State, 1, r.BobBasis, rng)
		r.Measured = true
	}
	return out
}

// reconcilePair keeps the outcome pairs of measured rounds whose bases agree.
func reconcilePair(rounds []Round) (aKey, bKey bitmap.Dense) {
	var a, b []uint8
	for _, r := range rounds {
		if !r.Measured || r.AliceBasis != r.BobBasis {
			continue
		}
		a = append(a, r.Outcome.Alice)
		b = append(b, r.Outcome.Bob)
	}
	return bitmap.FromBits(a), bitmap.FromBits(b)
}
