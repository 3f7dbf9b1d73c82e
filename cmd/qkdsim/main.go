// qkdsim runs a single simulated QKD exchange and prints its result.
//
// Parameters come from defaults, then an optional YAML --config file, then any
// flags given explicitly. An interrupt aborts the run at its next stage
// boundary.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"

	"github.com/alan-christopher/qkdsim/internal/config"
	"github.com/alan-christopher/qkdsim/qkd"
	"github.com/alan-christopher/qkdsim/qkd/channel"
	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"github.com/alan-christopher/qkdsim/qkd/report"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

// tagRows is the length in bits of the tag sealing proto frames.
const tagRows = 64

var (
	configPath = flag.String("config", "", "YAML file of simulation parameters.")
	seed       = flag.Uint64("seed", 0, "Random seed. Defaults to $QKDSIM_SEED, else a fresh value.")
	format     = flag.String("format", string(report.FormatTable), fmt.Sprintf("Output format, one of %v.", report.Formats))
	logLevel   = flag.String("log-level", "", "Log level. Defaults to $QKDSIM_LOG_LEVEL, else info.")
	sample     = flag.Int("sample", 0, "Print the circuits of this many sampled rounds to stderr; negative picks the protocol default.")
	tagKey     = flag.String("tag-key", "", fmt.Sprintf("Hex key sealing proto output frames with a %d-bit Toeplitz tag; needs at least %d bytes (%d hex digits).",
		tagRows, report.KeyBytesFor(tagRows, report.MaxTaggedRecordBytes), 2*report.KeyBytesFor(tagRows, report.MaxTaggedRecordBytes)))

	protocolName = flag.String("protocol", string(protocol.BB84), fmt.Sprintf("Protocol, one of %v.", protocol.Names))
	nBits        = flag.Int("n-bits", qkd.DefaultNBits, "Number of rounds requested.")
	fiberLength  = flag.Float64("fiber-length", 0, "Fiber length in km.")
	fiberLoss    = flag.Float64("fiber-loss", qkd.DefaultFiberLossDBPerKm, "Fiber attenuation in dB/km.")
	detectorEff  = flag.Float64("detector-efficiency", qkd.DefaultDetectorEfficiency, "Detector efficiency in [0, 1].")
	sourceEff    = flag.Float64("source-efficiency", qkd.DefaultSourceEfficiency, "Source efficiency in [0, 1].")
	losses       = flag.Bool("losses", false, "Enable photon loss.")
	lossMode     = flag.String("loss-mode", channel.LossTruncate.String(), "How loss is applied: truncate or drop.")
	perturb      = flag.Bool("perturb", false, "Enable random perturbations.")
	perturbProb  = flag.Float64("perturb-probability", 0, "Per-qubit perturbation probability.")
	uncertainty  = flag.Bool("uncertainty", false, "Enable polarization uncertainty.")
	uncertMean   = flag.Float64("uncertainty-mean", 0, "Mean polarization deviation in radians.")
	genRate      = flag.Float64("generation-rate", qkd.DefaultGenerationRateHz, "Qubit generation rate in Hz.")
	eavesdrop    = flag.Bool("eavesdrop", false, "Enable the eavesdropper.")
	crossCheck   = flag.Float64("cross-check", 0, "Fraction of the sifted key disclosed to estimate the QBER; 0 skips it.")
)

func main() {
	flag.Parse()
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	level := env.LogLevel
	if flag.CommandLine.Changed("log-level") {
		level = *logLevel
	}
	log, err := config.NewLogger(os.Stderr, level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(log, env); err != nil {
		var ce *qkd.ConfigurationError
		switch {
		case errors.Is(err, qkd.ErrAborted):
			log.Warn().Msg("simulation aborted")
			os.Exit(130)
		case errors.As(err, &ce):
			log.Error().Err(err).Msg("invalid parameters")
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("simulation failed")
	}
}

func run(log zerolog.Logger, env config.Env) error {
	params, err := buildParams()
	if err != nil {
		return err
	}
	f, err := report.ParseFormat(*format)
	if err != nil {
		return err
	}
	var tag *report.Toeplitz
	if *tagKey != "" {
		key, err := hex.DecodeString(*tagKey)
		if err != nil {
			return fmt.Errorf("tag key: %w", err)
		}
		t := report.NewToeplitz(key, tagRows)
		tag = &t
	}
	out, err := report.NewWriter(f, os.Stdout, tag)
	if err != nil {
		return err
	}

	s := config.Seed(*seed, flag.CommandLine.Changed("seed"), env, rand.Uint64)
	log.Info().Uint64("seed", s).Str("protocol", params.Protocol).Int("n_bits", params.NBits).Msg("starting simulation")
	rng := rand.New(rand.NewPCG(s, s))
	sim, err := qkd.NewSimulator(qkd.SimulatorOpts{
		Rand:   rng,
		Logger: log,
		Progress: func(pct int) {
			log.Info().Int("percent", pct).Msg("progress")
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		sim.Abort()
	}()
	res, err := sim.Simulate(ctx, params)
	if err != nil {
		return err
	}

	if err := out.Write(res); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return printSample(res, rng)
}

func buildParams() (qkd.Params, error) {
	p := qkd.DefaultParams()
	if *configPath != "" {
		var err error
		if p, err = config.LoadParams(*configPath, p); err != nil {
			return p, err
		}
	}
	set := func(name string, apply func()) {
		if flag.CommandLine.Changed(name) {
			apply()
		}
	}
	set("protocol", func() { p.Protocol = *protocolName })
	set("n-bits", func() { p.NBits = *nBits })
	set("fiber-length", func() { p.FiberLengthKm = *fiberLength })
	set("fiber-loss", func() { p.FiberLossDBPerKm = *fiberLoss })
	set("detector-efficiency", func() { p.DetectorEfficiency = *detectorEff })
	set("source-efficiency", func() { p.SourceEfficiency = *sourceEff })
	set("losses", func() { p.EnableLosses = *losses })
	set("perturb", func() { p.EnablePerturb = *perturb })
	set("perturb-probability", func() { p.PerturbProbability = *perturbProb })
	set("uncertainty", func() { p.EnableUncertainty = *uncertainty })
	set("uncertainty-mean", func() { p.UncertaintyMeanRad = *uncertMean })
	set("generation-rate", func() { p.GenerationRateHz = *genRate })
	set("eavesdrop", func() { p.EnableEavesdrop = *eavesdrop })
	set("cross-check", func() { p.CrossCheckFraction = qkd.Fraction(*crossCheck) })
	if flag.CommandLine.Changed("loss-mode") {
		if err := p.LossMode.UnmarshalText([]byte(*lossMode)); err != nil {
			return p, &qkd.ConfigurationError{Field: "loss_mode", Reason: err.Error()}
		}
	}
	return p, nil
}

func printSample(res qkd.Result, rng *rand.Rand) error {
	n := *sample
	if n == 0 {
		return nil
	}
	if n < 0 {
		p, err := protocol.Lookup(string(res.Protocol))
		if err != nil {
			return err
		}
		n = qkd.SampleSize(p)
	}
	for _, r := range qkd.Sample(res.Rounds, n, rng) {
		fmt.Fprintf(os.Stderr, "// round %d\n%s\n", r.Index, r.State.QASM())
	}
	return nil
}
