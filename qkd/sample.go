package qkd

import (
	"math/rand/v2"
	"slices"

	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// SampleSize returns the default number of rounds Sample shows for p.
func SampleSize(p protocol.Protocol) int {
	if p.Entangled() {
		return DefaultEntangledSample
	}
	return DefaultSingleSample
}

// Sample returns up to count rounds that reached Bob, chosen uniformly without
// replacement and kept in round order. The result is never nil. Each round's
// state carries its stage-tagged history for display.
func Sample(rounds []protocol.Round, count int, rng *rand.Rand) []protocol.Round {
	var live []int
	for i, r := range rounds {
		if !r.Lost && r.State != nil {
			live = append(live, i)
		}
	}
	if count > len(live) {
		count = len(live)
	}
	if count <= 0 {
		return []protocol.Round{}
	}
	picks := live
	if count < len(live) {
		idxs := make([]int, count)
		sampleuv.WithoutReplacement(idxs, len(live), rng)
		slices.Sort(idxs)
		picks = make([]int, count)
		for i, j := range idxs {
			picks[i] = live[j]
		}
	}
	out := make([]protocol.Round, len(picks))
	for i, j := range picks {
		out[i] = rounds[j]
		out[i].State = rounds[j].State.Clone()
	}
	return out
}
