package qstate

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"strings"
	"testing"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNew(t *testing.T) {
	for n := 1; n <= MaxQubits; n++ {
		s := New(n)
		amps := s.Amplitudes()
		if len(amps) != 1<<n {
			t.Fatalf("New(%d) has %d amplitudes, want %d", n, len(amps), 1<<n)
		}
		if amps[0] != 1 {
			t.Errorf("New(%d) amplitude[0] == %v, want 1", n, amps[0])
		}
	}
}

func TestGates(t *testing.T) {
	s2 := 1 / math.Sqrt2
	tcs := []struct {
		name  string
		n     int
		apply func(s *State)
		eamps []complex128
	}{
		{
			name:  "x",
			n:     1,
			apply: func(s *State) { s.Apply(X, 0) },
			eamps: []complex128{0, 1},
		}, {
			name:  "h",
			n:     1,
			apply: func(s *State) { s.Apply(H, 0) },
			eamps: []complex128{complex(s2, 0), complex(s2, 0)},
		}, {
			name:  "x then h",
			n:     1,
			apply: func(s *State) { s.Apply(X, 0); s.Apply(H, 0) },
			eamps: []complex128{complex(s2, 0), complex(-s2, 0)},
		}, {
			name:  "ry(pi)",
			n:     1,
			apply: func(s *State) { s.Apply(RY(math.Pi), 0) },
			eamps: []complex128{0, 1},
		}, {
			name:  "x on second qubit",
			n:     2,
			apply: func(s *State) { s.Apply(X, 1) },
			eamps: []complex128{0, 0, 1, 0},
		}, {
			name:  "bell pair",
			n:     2,
			apply: func(s *State) { s.Apply(H, 0); s.Apply(CX, 0, 1) },
			eamps: []complex128{complex(s2, 0), 0, 0, complex(s2, 0)},
		}, {
			name:  "cx with unset control",
			n:     2,
			apply: func(s *State) { s.Apply(CX, 1, 0) },
			eamps: []complex128{1, 0, 0, 0},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			s := New(tc.n)
			tc.apply(s)
			amps := s.Amplitudes()
			for i := range amps {
				if cmplx.Abs(amps[i]-tc.eamps[i]) > 1e-9 {
					t.Fatalf("amplitudes == %v, want %v", amps, tc.eamps)
				}
			}
			if !approx(s.Norm(), 1) {
				t.Errorf("norm == %v, want 1", s.Norm())
			}
		})
	}
}

// Preparing a bit with {X, H} and undoing the basis change must measure back
// the prepared bit regardless of the random source.
func TestDeterministicRoundTrip(t *testing.T) {
	for seed := uint64(0); seed < 50; seed++ {
		rng := newRand(seed)
		for _, bit := range []uint8{0, 1} {
			for _, hadamard := range []bool{false, true} {
				s := New(1)
				if bit == 1 {
					s.Apply(X, 0)
				}
				if hadamard {
					s.Apply(H, 0)
					s.Apply(H, 0)
				}
				if got := s.Measure(0, rng); got != bit {
					t.Fatalf("seed %d: measured %d, want %d (hadamard=%v)", seed, got, bit, hadamard)
				}
			}
		}
	}
}

func TestMeasureCollapses(t *testing.T) {
	rng := newRand(7)
	s := New(2)
	s.Apply(H, 0)
	s.Apply(CX, 0, 1)
	a := s.Measure(0, rng)
	if got, ok := s.Measured(0); !ok || got != a {
		t.Errorf("Measured(0) == (%d, %v), want (%d, true)", got, ok, a)
	}
	if !approx(s.Prob1(1), float64(a)) {
		t.Errorf("Prob1(1) == %v after measuring %d on a bell pair", s.Prob1(1), a)
	}
	if b := s.Measure(1, rng); b != a {
		t.Errorf("bell pair measured (%d, %d), want equal bits", a, b)
	}
	if again := s.Measure(0, rng); again != a {
		t.Errorf("re-measuring returned %d, want fixed %d", again, a)
	}
	if !approx(s.Norm(), 1) {
		t.Errorf("norm == %v after collapse, want 1", s.Norm())
	}
}

func TestMeasureStatistics(t *testing.T) {
	const trials = 20000
	rng := newRand(42)
	theta := math.Pi / 3
	ones := 0
	for i := 0; i < trials; i++ {
		s := New(1)
		s.Apply(RY(theta), 0)
		ones += int(s.Measure(0, rng))
	}
	want := math.Pow(math.Sin(theta/2), 2)
	got := float64(ones) / trials
	if math.Abs(got-want) > 0.015 {
		t.Errorf("P(1) == %v, want %v", got, want)
	}
}

func TestReset(t *testing.T) {
	tcs := []struct {
		name  string
		n     int
		apply func(s *State)
		q     int
		eamps []complex128
	}{
		{"already zero", 1, func(s *State) {}, 0, []complex128{1, 0}},
		{"one", 1, func(s *State) { s.Apply(X, 0) }, 0, []complex128{1, 0}},
		{"plus", 1, func(s *State) { s.Apply(H, 0) }, 0, []complex128{1, 0}},
		{"bell", 2, func(s *State) { s.Apply(H, 0); s.Apply(CX, 0, 1) }, 0, []complex128{1, 0, 0, 0}},
		{"keeps other qubit", 2, func(s *State) { s.Apply(X, 0); s.Apply(X, 1) }, 0, []complex128{0, 0, 1, 0}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			s := New(tc.n)
			tc.apply(s)
			s.Reset(tc.q)
			amps := s.Amplitudes()
			for i := range amps {
				if cmplx.Abs(amps[i]-tc.eamps[i]) > 1e-9 {
					t.Fatalf("amplitudes == %v, want %v", amps, tc.eamps)
				}
			}
		})
	}
}

func TestResetClearsMeasurement(t *testing.T) {
	rng := newRand(1)
	s := New(1)
	s.Apply(X, 0)
	s.Measure(0, rng)
	s.Reset(0)
	if _, ok := s.Measured(0); ok {
		t.Errorf("qubit still reported as measured after reset")
	}
	s.Apply(H, 0) // must not panic
}

func TestPanics(t *testing.T) {
	tcs := []struct {
		name string
		f    func()
	}{
		{"width zero", func() { New(0) }},
		{"width three", func() { New(3) }},
		{"out of range", func() { New(1).Apply(X, 1) }},
		{"negative", func() { New(2).Apply(H, -1) }},
		{"arity", func() { New(2).Apply(CX, 0) }},
		{"same control and target", func() { New(2).Apply(CX, 1, 1) }},
		{"measured", func() {
			s := New(1)
			s.Measure(0, newRand(0))
			s.Apply(X, 0)
		}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("expected panic")
				}
			}()
			tc.f()
		})
	}
}

func TestHistoryAndQASM(t *testing.T) {
	rng := newRand(3)
	s := New(2)
	s.Enter(StagePrepare)
	s.Apply(H, 0)
	s.Apply(CX, 0, 1)
	s.Enter(StageEavesdrop)
	s.Reset(0)
	s.Reset(1)
	s.Enter(StageMeasure)
	s.Apply(RY(-math.Pi/4), 1)
	s.Measure(0, rng)
	s.Measure(1, rng)

	h := s.History()
	if len(h) != 7 {
		t.Fatalf("history has %d ops, want 7", len(h))
	}
	stages := []Stage{StagePrepare, StagePrepare, StageEavesdrop, StageEavesdrop, StageMeasure, StageMeasure, StageMeasure}
	for i, op := range h {
		if op.Stage != stages[i] {
			t.Errorf("op %d (%v) tagged %v, want %v", i, op.Kind, op.Stage, stages[i])
		}
	}

	want := `OPENQASM 2.0;
include "qelib1.inc";

qreg q[2];
creg c[2];

h q[0];
cx q[0], q[1];
barrier q[0], q[1];
reset q[0];
reset q[1];
barrier q[0], q[1];
ry(-pi/4) q[1];
measure q[0] -> c[0];
measure q[1] -> c[1];
`
	if got := s.QASM(); got != want {
		t.Errorf("QASM() ==\n%s\nwant\n%s", got, want)
	}
	if !strings.Contains(s.Clone().QASM(), "ry(-pi/4)") {
		t.Errorf("clone lost history")
	}
}
