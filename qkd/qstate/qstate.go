// Package qstate provides an exact state-vector simulator for systems of one
// or two qubits.
//
// Qubit q corresponds to bit q of a basis-state index, so for a two qubit
// system the amplitudes are ordered |q1 q0> = |00>, |01>, |10>, |11>.
package qstate

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/cmplxs"
)

// Epsilon is the tolerance used for normalization and probability checks.
const Epsilon = 1e-9

// MaxQubits is the widest system a State can hold.
const MaxQubits = 2

// A State is the amplitude vector of a 1 or 2 qubit system, along with the
// history of operations applied to it.
//
// Once a qubit has been measured its value is fixed: measuring it again
// returns the same bit, and applying a gate to it is a programming error
// until the qubit is Reset.
type State struct {
	amps     []complex128
	n        int
	measured uint8
	results  uint8
	stage    Stage
	history  []Op
}

// New returns a State of n qubits initialized to |0...0>. It panics unless
// 1 <= n <= MaxQubits.
func New(n int) *State {
	if n < 1 || n > MaxQubits {
		panic(fmt.Sprintf("qstate: unsupported width %d", n))
	}
	amps := make([]complex128, 1<<n)
	amps[0] = 1
	return &State{amps: amps, n: n}
}

// NumQubits returns the width of s.
func (s *State) NumQubits() int {
	return s.n
}

// Amplitudes returns a copy of the amplitude vector.
func (s *State) Amplitudes() []complex128 {
	r := make([]complex128, len(s.amps))
	copy(r, s.amps)
	return r
}

// Enter tags every subsequent operation on s with stage.
func (s *State) Enter(stage Stage) {
	s.stage = stage
}

// History returns a copy of the operations applied to s so far.
func (s *State) History() []Op {
	r := make([]Op, len(s.history))
	copy(r, s.history)
	return r
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	c.amps = s.Amplitudes()
	c.history = s.History()
	return &c
}

// Norm returns the L2 norm of the amplitude vector.
func (s *State) Norm() float64 {
	return cmplxs.Norm(s.amps, 2)
}

// Apply applies g to the given qubits. For CX the first index is the control
// and the second the target. Apply panics if the qubit count does not match
// the gate, an index is out of range, or a qubit has already been measured.
func (s *State) Apply(g Gate, qubits ...int) {
	if len(qubits) != g.Arity() {
		panic(fmt.Sprintf("qstate: %v takes %d qubits, got %d", g, g.Arity(), len(qubits)))
	}
	for _, q := range qubits {
		s.checkQubit(q)
		if s.measured&(1<<q) != 0 {
			panic(fmt.Sprintf("qstate: %v applied to measured qubit %d", g, q))
		}
	}
	switch g.Kind {
	case KindX:
		s.applyX(qubits[0])
	case KindH:
		s.applyH(qubits[0])
	case KindRY:
		s.applyRY(qubits[0], g.Theta)
	case KindCX:
		if qubits[0] == qubits[1] {
			panic(fmt.Sprintf("qstate: cx control and target are both %d", qubits[0]))
		}
		s.applyCX(qubits[0], qubits[1])
	default:
		panic(fmt.Sprintf("qstate: %v is not a gate", g.Kind))
	}
	s.record(Op{Kind: g.Kind, Qubits: qubits, Theta: g.Theta})
}

// Prob1 returns the probability that measuring qubit q yields 1.
func (s *State) Prob1(q int) float64 {
	s.checkQubit(q)
	bit := 1 << q
	var p float64
	for i, a := range s.amps {
		if i&bit != 0 {
			p += real(a)*real(a) + imag(a)*imag(a)
		}
	}
	return p
}

// Measure performs a projective Z-basis measurement of qubit q, drawing from
// rng, and collapses the state onto the observed outcome.
func (s *State) Measure(q int, rng *rand.Rand) uint8 {
	if v, ok := s.Measured(q); ok {
		return v
	}
	p1 := s.Prob1(q)
	var outcome uint8
	switch {
	case p1 < Epsilon:
	case p1 > 1-Epsilon:
		outcome = 1
	case rng.Float64() < p1:
		outcome = 1
	}
	s.project(q, outcome)
	s.measured |= 1 << q
	s.results = s.results&^(1<<q) | outcome<<q
	s.record(Op{Kind: KindMeasure, Qubits: []int{q}, Result: outcome})
	return outcome
}

// Measured returns the fixed value of qubit q, if it has been measured.
func (s *State) Measured(q int) (uint8, bool) {
	s.checkQubit(q)
	if s.measured&(1<<q) == 0 {
		return 0, false
	}
	return (s.results >> q) & 1, true
}

// Reset forces qubit q to |0> and renormalizes the rest of the state. If q
// carries no |0> component at all, its |1> component is moved onto |0>.
func (s *State) Reset(q int) {
	s.checkQubit(q)
	bit := 1 << q
	if 1-s.Prob1(q) > Epsilon {
		s.project(q, 0)
	} else {
		for i := range s.amps {
			if i&bit != 0 {
				s.amps[i&^bit] = s.amps[i]
				s.amps[i] = 0
			}
		}
	}
	s.measured &^= 1 << q
	s.results &^= 1 << q
	s.record(Op{Kind: KindReset, Qubits: []int{q}})
}

func (s *State) project(q int, outcome uint8) {
	bit := 1 << q
	for i := range s.amps {
		if (i&bit != 0) != (outcome == 1) {
			s.amps[i] = 0
		}
	}
	s.normalize()
}

func (s *State) normalize() {
	norm := s.Norm()
	if norm < Epsilon || math.Abs(norm-1) < Epsilon {
		return
	}
	cmplxs.Scale(complex(1/norm, 0), s.amps)
}

func (s *State) record(op Op) {
	op.Stage = s.stage
	op.Qubits = append([]int(nil), op.Qubits...)
	s.history = append(s.history, op)
}

func (s *State) checkQubit(q int) {
	if q < 0 || q >= s.n {
		panic(fmt.Sprintf("qstate: qubit %d out of range for %d qubit state", q, s.n))
	}
}
