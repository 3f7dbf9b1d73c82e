package qstate

import "math"

func (s *State) applyX(q int) {
	bit := 1 << q
	for i := range s.amps {
		if i&bit == 0 {
			j := i | bit
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

func (s *State) applyH(q int) {
	f := complex(1/math.Sqrt2, 0)
	bit := 1 << q
	for i := range s.amps {
		if i&bit == 0 {
			j := i | bit
			a, b := s.amps[i], s.amps[j]
			s.amps[i] = f * (a + b)
			s.amps[j] = f * (a - b)
		}
	}
}

func (s *State) applyRY(q int, theta float64) {
	c := complex(math.Cos(theta/2), 0)
	sn := complex(math.Sin(theta/2), 0)
	bit := 1 << q
	for i := range s.amps {
		if i&bit == 0 {
			j := i | bit
			a, b := s.amps[i], s.amps[j]
			s.amps[i] = c*a - sn*b
			s.amps[j] = sn*a + c*b
		}
	}
}

func (s *State) applyCX(control, target int) {
	cBit, tBit := 1<<control, 1<<target
	for i := range s.amps {
		if i&cBit != 0 && i&tBit == 0 {
			j := i | tBit
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}
