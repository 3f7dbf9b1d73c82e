package qstate

import "fmt"

// A Kind identifies an operation applied to a State.
type Kind uint8

const (
	KindX Kind = iota
	KindH
	KindCX
	KindRY
	KindReset
	KindMeasure
)

var kindNames = [...]string{
	KindX:       "x",
	KindH:       "h",
	KindCX:      "cx",
	KindRY:      "ry",
	KindReset:   "reset",
	KindMeasure: "measure",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// A Gate is one of the unitaries a State supports: bit flip, Hadamard,
// controlled-NOT and rotation about the Y axis.
type Gate struct {
	Kind  Kind
	Theta float64
}

var (
	X  = Gate{Kind: KindX}
	H  = Gate{Kind: KindH}
	CX = Gate{Kind: KindCX}
)

// RY returns a rotation by theta radians about the Y axis.
func RY(theta float64) Gate {
	return Gate{Kind: KindRY, Theta: theta}
}

// Arity returns the number of qubits g acts on.
func (g Gate) Arity() int {
	if g.Kind == KindCX {
		return 2
	}
	return 1
}

func (g Gate) String() string {
	if g.Kind == KindRY {
		return fmt.Sprintf("ry(%s)", formatParam(g.Theta))
	}
	return g.Kind.String()
}

// A Stage labels the step of a simulation round an operation was applied in.
type Stage uint8

const (
	StagePrepare Stage = iota
	StageChannel
	StageEavesdrop
	StageMeasure
)

var stageNames = [...]string{
	StagePrepare:   "prepare",
	StageChannel:   "channel",
	StageEavesdrop: "eavesdrop",
	StageMeasure:   "measure",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", s)
}

// An Op records one operation in a State's history.
type Op struct {
	Stage  Stage
	Kind   Kind
	Qubits []int
	// Theta is only meaningful for KindRY.
	Theta float64
	// Result is only meaningful for KindMeasure.
	Result uint8
}
