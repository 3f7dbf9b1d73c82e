// Package stats estimates the figures of merit of a QKD exchange: the quantum
// bit error rate of a disclosed key sample, and the CHSH correlation statistic
// of entanglement-based protocols.
package stats

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// ErrSampling is returned when a key sample cannot be drawn, e.g. because the
// key is empty or shorter than the requested sample.
var ErrSampling = errors.New("cannot sample key")

// A Check reports the outcome of a cross-check.
type Check struct {
	// QBER is the fraction of sampled positions at which the keys disagree.
	QBER float64
	// Size is the number of positions disclosed and removed from both keys.
	Size int
	// Indices are the sampled positions, relative to the keys passed in.
	Indices []int
}

// CheckSize returns the number of positions disclosed when cross-checking a
// key of length n: max(1, ceil(n*fraction)).
func CheckSize(n int, fraction float64) int {
	return max(1, int(math.Ceil(float64(n)*fraction)))
}

// CrossCheck discloses CheckSize(len, fraction) positions of the two keys,
// sampled uniformly without replacement using rng, and estimates the error
// rate over them. The sampled positions are removed from both keys; the
// remaining bits keep their relative order.
func CrossCheck(aKey, bKey bitmap.Dense, fraction float64, rng *rand.Rand) (Check, bitmap.Dense, bitmap.Dense, error) {
	n := aKey.Size()
	if n != bKey.Size() {
		return Check{}, aKey, bKey, fmt.Errorf("cross-checking keys of different length: %d != %d", n, bKey.Size())
	}
	if n == 0 {
		return Check{}, aKey, bKey, fmt.Errorf("cross-checking empty key: %w", ErrSampling)
	}
	size := CheckSize(n, fraction)
	if size > n {
		return Check{}, aKey, bKey, fmt.Errorf("check size %d exceeds key length %d: %w", size, n, ErrSampling)
	}

	idxs := make([]int, size)
	sampleuv.WithoutReplacement(idxs, n, rng)
	matches := 0
	for _, i := range idxs {
		if aKey.Get(i) == bKey.Get(i) {
			matches++
		}
	}
	c := Check{
		QBER:    1 - float64(matches)/float64(size),
		Size:    size,
		Indices: idxs,
	}
	return c, bitmap.Remove(aKey, idxs), bitmap.Remove(bKey, idxs), nil
}

// Counts tallies the joint outcomes of paired measurements.
type Counts struct {
	N00, N01, N10, N11 int
}

// Add records one pair of outcomes.
func (c *Counts) Add(a, b uint8) {
	switch {
	case a == 0 && b == 0:
		c.N00++
	case a == 0:
		c.N01++
	case b == 0:
		c.N10++
	default:
		c.N11++
	}
}

// Total returns the number of recorded pairs.
func (c Counts) Total() int {
	return c.N00 + c.N01 + c.N10 + c.N11
}

// Correlation returns E = (N00 + N11 - N01 - N10) / N. The second return
// value is false when no pairs have been recorded.
func (c Counts) Correlation() (float64, bool) {
	n := c.Total()
	if n == 0 {
		return 0, false
	}
	return float64(c.N00+c.N11-c.N01-c.N10) / float64(n), true
}

// CHSH combines four correlation buckets into S = E1 - E2 + E3 + E4. The
// statistic is reported absent if any bucket is empty.
func CHSH(e1, e2, e3, e4 Counts) (float64, bool) {
	var es [4]float64
	for i, c := range []Counts{e1, e2, e3, e4} {
		e, ok := c.Correlation()
		if !ok {
			return 0, false
		}
		es[i] = e
	}
	return es[0] - es[1] + es[2] + es[3], true
}

// A Summary describes a sample of a metric across several runs.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
}

// Summarize returns the mean and population standard deviation of xs.
func Summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	mean, std := stat.PopMeanStdDev(xs, nil)
	return Summary{N: len(xs), Mean: mean, StdDev: std}
}
