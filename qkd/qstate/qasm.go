package qstate

import (
	"fmt"
	"math"
	"strings"
)

// QASM renders the history of s as an OpenQASM 2.0 program. A barrier
// separates operations from different stages, and every measured qubit is
// written to the classical bit of the same index.
func (s *State) QASM() string {
	var sb strings.Builder
	sb.WriteString("OPENQASM 2.0;\n")
	sb.WriteString("include \"qelib1.inc\";\n\n")
	fmt.Fprintf(&sb, "qreg q[%d];\n", s.n)
	fmt.Fprintf(&sb, "creg c[%d];\n\n", s.n)

	qubits := make([]string, s.n)
	for q := range qubits {
		qubits[q] = fmt.Sprintf("q[%d]", q)
	}
	barrier := fmt.Sprintf("barrier %s;\n", strings.Join(qubits, ", "))

	for i, op := range s.history {
		if i > 0 && op.Stage != s.history[i-1].Stage {
			sb.WriteString(barrier)
		}
		switch op.Kind {
		case KindMeasure:
			fmt.Fprintf(&sb, "measure q[%d] -> c[%d];\n", op.Qubits[0], op.Qubits[0])
		case KindReset:
			fmt.Fprintf(&sb, "reset q[%d];\n", op.Qubits[0])
		case KindCX:
			fmt.Fprintf(&sb, "cx q[%d], q[%d];\n", op.Qubits[0], op.Qubits[1])
		case KindRY:
			fmt.Fprintf(&sb, "ry(%s) q[%d];\n", formatParam(op.Theta), op.Qubits[0])
		default:
			fmt.Fprintf(&sb, "%s q[%d];\n", op.Kind, op.Qubits[0])
		}
	}
	return sb.String()
}

// formatParam formats an angle, using pi notation for the fractions the QKD
// protocols rotate by.
func formatParam(val float64) string {
	forms := []struct {
		value   float64
		display string
	}{
		{math.Pi, "pi"},
		{math.Pi / 2, "pi/2"},
		{math.Pi / 4, "pi/4"},
		{3 * math.Pi / 4, "3*pi/4"},
	}
	for _, f := range forms {
		if math.Abs(val-f.value) < 1e-10 {
			return f.display
		}
		if math.Abs(val+f.value) < 1e-10 {
			return "-" + f.display
		}
	}
	return fmt.Sprintf("%g", val)
}
