package qkd

import (
	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"github.com/google/uuid"
)

// A Result is the immutable record of one completed run.
type Result struct {
	RunID    uuid.UUID
	Protocol protocol.Name
	// Params echoes the parameters the run was started with.
	Params Params

	LossProbability float64
	RoundsRequested int
	// RoundsSent counts the rounds that reached Bob's detector.
	RoundsSent int

	// SiftedLength is the key length before cross-checking, KeyLength the
	// length after the disclosed bits were removed.
	SiftedLength int
	KeyLength    int
	// KeyRate is GenerationRateHz * KeyLength / RoundsRequested.
	KeyRate float64

	// QBER is nil when no cross-check took place.
	QBER      *float64
	CheckSize int
	// S is the CHSH statistic, nil for protocols without a Bell test or when
	// it is undefined.
	S *float64

	// UncertaintyStd and PerturbProbability are the noise levels actually
	// applied, zero when the corresponding source is disabled.
	UncertaintyStd     float64
	PerturbProbability float64

	// Rounds holds the per-round states for inspection with Sample.
	Rounds []protocol.Round `json:"-" msgpack:"-"`
}
