package qkd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/alan-christopher/qkdsim/qkd/bitmap"
	"github.com/alan-christopher/qkdsim/qkd/channel"
	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"github.com/alan-christopher/qkdsim/qkd/qstate"
	"github.com/alan-christopher/qkdsim/qkd/stats"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// A SimulatorOpts packages together the arguments necessary to construct a new
// Simulator.
type SimulatorOpts struct {
	// Rand provides every random choice made during a run: bits, bases,
	// measurement collapse, noise, eavesdropping and sampling. Seed it for
	// reproducible runs. Must be non-nil.
	Rand *rand.Rand

	// Logger receives stage transitions at debug level. Defaults to a
	// disabled logger.
	Logger zerolog.Logger

	// Progress, if non-nil, is called with a monotonically increasing
	// percentage at every stage boundary of a run, ending with 100.
	Progress func(percent int)
}

// A Simulator runs QKD simulations one at a time.
type Simulator struct {
	rand     *rand.Rand
	log      zerolog.Logger
	progress func(int)

	mu      sync.Mutex
	aborted atomic.Bool
}

// NewSimulator returns a new Simulator, configured in accordance with opts, or
// an error if the options are nonsensical.
func NewSimulator(opts SimulatorOpts) (*Simulator, error) {
	if opts.Rand == nil {
		return nil, errors.New("must provide Rand")
	}
	progress := opts.Progress
	if progress == nil {
		progress = func(int) {}
	}
	return &Simulator{
		rand:     opts.Rand,
		log:      opts.Logger.With().Str("component", "simulator").Logger(),
		progress: progress,
	}, nil
}

// Abort asks the run in progress to stop at its next stage boundary. The
// flag is cleared when the next run starts.
func (s *Simulator) Abort() {
	s.aborted.Store(true)
}

// A run carries the state of one simulation as it moves through the stages.
type run struct {
	params Params
	proto  protocol.Protocol
	model  channel.Model
	rand   *rand.Rand
	log    zerolog.Logger

	n          int
	rounds     []protocol.Round
	aKey, bKey bitmap.Dense
	res        Result
}

type stage struct {
	name string
	fn   func(*run) error
}

var stages = []stage{
	{"loss", (*run).loss},
	{"encode", (*run).encode},
	{"channel", (*run).disturb},
	{"eavesdrop", (*run).eavesdrop},
	{"measure", (*run).measure},
	{"reconcile", (*run).reconcile},
	{"statistic", (*run).statistic},
	{"cross-check", (*run).crossCheck},
}

// Simulate runs one simulation with parameters p. It returns a
// *ConfigurationError if p is invalid, and an error matching ErrAborted if the
// run is cancelled through ctx or Abort before it completes.
func (s *Simulator) Simulate(ctx context.Context, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	proto, err := protocol.Lookup(p.Protocol)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted.Store(false)

	r := &run{
		params: p.clone(),
		proto:  proto,
		model:  p.Channel(),
		rand:   s.rand,
	}
	r.res = Result{
		RunID:           uuid.New(),
		Protocol:        proto.Name(),
		Params:          r.params,
		LossProbability: r.model.LossProbability(),
		RoundsRequested: p.NBits,
		UncertaintyStd:  r.model.UncertaintyStd(),
	}
	if p.EnablePerturb {
		r.res.PerturbProbability = p.PerturbProbability
	}
	r.log = s.log.With().
		Str("run", r.res.RunID.String()).
		Str("protocol", string(proto.Name())).
		Logger()

	s.progress(0)
	for i, st := range stages {
		if err := s.checkAbort(ctx); err != nil {
			r.log.Info().Str("stage", st.name).Msg("run aborted")
			return Result{}, err
		}
		r.log.Debug().Str("stage", st.name).Msg("entering stage")
		if err := st.fn(r); err != nil {
			return Result{}, fmt.Errorf("%s: %w", st.name, err)
		}
		s.progress(int(math.Round(100 * float64(i+1) / float64(len(stages)))))
	}
	if err := s.checkAbort(ctx); err != nil {
		r.log.Info().Msg("run aborted before completion")
		return Result{}, err
	}
	r.log.Debug().
		Int("key_length", r.res.KeyLength).
		Float64("key_rate", r.res.KeyRate).
		Msg("run complete")
	return r.res, nil
}

func (s *Simulator) checkAbort(ctx context.Context) error {
	if s.aborted.Load() {
		return ErrAborted
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
	}
	return nil
}

func (r *run) loss() error {
	r.n = r.model.EffectiveRounds(r.params.NBits)
	r.log.Debug().
		Float64("loss_probability", r.res.LossProbability).
		Int("rounds", r.n).
		Msg("round count set")
	return nil
}

func (r *run) encode() error {
	r.rounds = r.proto.Encode(r.n, r.rand)
	lost := r.model.Drop(len(r.rounds), r.rand)
	sent := len(r.rounds)
	for i := range lost {
		if lost[i] {
			r.rounds[i].Lost = true
			sent--
		}
	}
	r.res.RoundsSent = sent
	return nil
}

func (r *run) disturb() error {
	if !r.model.Noisy() {
		return nil
	}
	for _, rd := range r.rounds {
		if rd.Lost {
			continue
		}
		rd.State.Enter(qstate.StageChannel)
		r.model.Disturb(rd.State, r.rand)
	}
	return nil
}

func (r *run) eavesdrop() error {
	if r.params.EnableEavesdrop {
		r.proto.Eavesdrop(r.rounds, r.rand)
	}
	return nil
}

func (r *run) measure() error {
	r.rounds = r.proto.Measure(r.rounds, r.rand)
	r.res.Rounds = r.rounds
	return nil
}

func (r *run) reconcile() error {
	r.aKey, r.bKey = r.proto.Reconcile(r.rounds)
	if r.aKey.Size() != r.bKey.Size() {
		return fmt.Errorf("key lengths differ: %d != %d", r.aKey.Size(), r.bKey.Size())
	}
	r.res.SiftedLength = r.aKey.Size()
	r.setKeyLength()
	return nil
}

func (r *run) statistic() error {
	if s, ok := r.proto.TestStatistic(r.rounds); ok {
		r.res.S = &s
	} else if r.proto.Entangled() {
		r.log.Warn().Msg("test statistic undefined: empty correlation bucket")
	}
	return nil
}

func (r *run) crossCheck() error {
	fraction, ok := r.params.checkFraction()
	if !ok || r.aKey.Size() == 0 {
		return nil
	}
	check, aKey, bKey, err := r.proto.CrossCheck(r.aKey, r.bKey, fraction, r.rand)
	if errors.Is(err, stats.ErrSampling) {
		r.log.Warn().Err(err).Msg("cross-check skipped")
		return nil
	}
	if err != nil {
		return err
	}
	r.aKey, r.bKey = aKey, bKey
	r.res.QBER = &check.QBER
	r.res.CheckSize = check.Size
	r.setKeyLength()
	return nil
}

func (r *run) setKeyLength() {
	r.res.KeyLength = r.aKey.Size()
	r.res.KeyRate = r.params.GenerationRateHz * float64(r.res.KeyLength) / float64(r.params.NBits)
}
