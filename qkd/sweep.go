package qkd

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/alan-christopher/qkdsim/qkd/stats"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// An Axis names a numeric parameter that a sweep can vary.
type Axis string

const (
	AxisFiberLength        Axis = "fiber_length"
	AxisFiberLoss          Axis = "fiber_loss"
	AxisPerturbProbability Axis = "perturb_probability"
	AxisUncertaintyMean    Axis = "uncertainty_mean"
	AxisGenerationRate     Axis = "generation_rate"
	AxisDetectorEfficiency Axis = "detector_efficiency"
	AxisSourceEfficiency   Axis = "source_efficiency"
	AxisCrossCheckFraction Axis = "cross_check_fraction"
	AxisNBits              Axis = "n_bits"
)

// Axes lists every sweepable parameter.
var Axes = []Axis{
	AxisFiberLength,
	AxisFiberLoss,
	AxisPerturbProbability,
	AxisUncertaintyMean,
	AxisGenerationRate,
	AxisDetectorEfficiency,
	AxisSourceEfficiency,
	AxisCrossCheckFraction,
	AxisNBits,
}

// Set stores v in the field of p named by a. NBits is rounded to the nearest
// integer.
func (a Axis) Set(p *Params, v float64) error {
	switch a {
	case AxisFiberLength:
		p.FiberLengthKm = v
	case AxisFiberLoss:
		p.FiberLossDBPerKm = v
	case AxisPerturbProbability:
		p.PerturbProbability = v
	case AxisUncertaintyMean:
		p.UncertaintyMeanRad = v
	case AxisGenerationRate:
		p.GenerationRateHz = v
	case AxisDetectorEfficiency:
		p.DetectorEfficiency = v
	case AxisSourceEfficiency:
		p.SourceEfficiency = v
	case AxisCrossCheckFraction:
		p.CrossCheckFraction = Fraction(v)
	case AxisNBits:
		p.NBits = int(math.Round(v))
	default:
		return &ConfigurationError{Field: "axis", Reason: fmt.Sprintf("unknown axis %q", a)}
	}
	return nil
}

// Vary returns one validated copy of base per value, with axis set to that
// value.
func Vary(base Params, axis Axis, values []float64) ([]Params, error) {
	points := make([]Params, 0, len(values))
	for _, v := range values {
		p := base.clone()
		if err := axis.Set(&p, v); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s=%v: %w", axis, v, err)
		}
		points = append(points, p)
	}
	return points, nil
}

// Linspace returns n evenly spaced values from start to end inclusive.
func Linspace(start, end float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, end)
}

// DefaultParallelism is the number of sweep points simulated concurrently
// when SweepOpts.Parallelism is zero.
var DefaultParallelism = runtime.GOMAXPROCS(0)

// A SweepOpts describes a batch of independent runs.
type SweepOpts struct {
	// Points holds the parameters of each run.
	Points []Params

	// Seed determines the random source of every point: point i draws from a
	// PCG source seeded with (Seed, i), so points are reproducible and
	// uncorrelated regardless of scheduling.
	Seed uint64

	// Parallelism bounds the number of concurrent runs. Defaults to
	// DefaultParallelism.
	Parallelism int

	Logger zerolog.Logger

	// Progress, if non-nil, is called after each point completes with the
	// number of completed points. Calls are serialized.
	Progress func(done, total int)
}

// A SweepResult holds the result of every point, in input order, along with
// summaries of the headline metrics. QBER and S are summarized only over the
// points where they are defined.
type SweepResult struct {
	Results   []Result
	KeyLength stats.Summary
	KeyRate   stats.Summary
	QBER      stats.Summary
	S         stats.Summary
}

// Sweep simulates every point of opts. It returns an error matching
// ErrAborted if ctx is cancelled before all points complete.
func Sweep(ctx context.Context, opts SweepOpts) (SweepResult, error) {
	for i, p := range opts.Points {
		if err := p.Validate(); err != nil {
			return SweepResult{}, fmt.Errorf("point %d: %w", i, err)
		}
	}
	par := opts.Parallelism
	if par <= 0 {
		par = DefaultParallelism
	}
	log := opts.Logger.With().Str("component", "sweep").Logger()

	results := make([]Result, len(opts.Points))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(par)
	for i, p := range opts.Points {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sim, err := NewSimulator(SimulatorOpts{
				Rand:   rand.New(rand.NewPCG(opts.Seed, uint64(i))),
				Logger: log.With().Int("point", i).Logger(),
			})
			if err != nil {
				return err
			}
			res, err := sim.Simulate(gctx, p.clone())
			if err != nil {
				return fmt.Errorf("point %d: %w", i, err)
			}
			res.Rounds = nil
			results[i] = res

			mu.Lock()
			defer mu.Unlock()
			done++
			if opts.Progress != nil {
				opts.Progress(done, len(opts.Points))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return SweepResult{}, fmt.Errorf("%w: %w", ErrAborted, err)
	}
	log.Debug().Int("points", len(results)).Msg("sweep complete")
	return summarize(results), nil
}

func summarize(results []Result) SweepResult {
	var keyLen, keyRate, qber, s []float64
	for _, r := range results {
		keyLen = append(keyLen, float64(r.KeyLength))
		keyRate = append(keyRate, r.KeyRate)
		if r.QBER != nil {
			qber = append(qber, *r.QBER)
		}
		if r.S != nil {
			s = append(s, *r.S)
		}
	}
	return SweepResult{
		Results:   results,
		KeyLength: stats.Summarize(keyLen),
		KeyRate:   stats.Summarize(keyRate),
		QBER:      stats.Summarize(qber),
		S:         stats.Summarize(s),
	}
}
