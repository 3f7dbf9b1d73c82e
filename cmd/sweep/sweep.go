// sweep runs a QKD simulation for each entry in the cartesian product of a
// collection of parameter values, e.g. fiber length and perturbation
// probability, and writes one record per combination. Alternatively --vary
// sweeps a single parameter across an evenly spaced range.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"

	"github.com/alan-christopher/qkdsim/internal/config"
	"github.com/alan-christopher/qkdsim/qkd"
	"github.com/alan-christopher/qkdsim/qkd/protocol"
	"github.com/alan-christopher/qkdsim/qkd/report"
	"github.com/alan-christopher/qkdsim/qkd/stats"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

var (
	configPath  = flag.String("config", "", "YAML file of base simulation parameters.")
	seed        = flag.Uint64("seed", 0, "Sweep seed. Defaults to $QKDSIM_SEED, else a fresh value.")
	format      = flag.String("format", string(report.FormatCSV), fmt.Sprintf("Output format, one of %v.", report.Formats))
	logLevel    = flag.String("log-level", "", "Log level. Defaults to $QKDSIM_LOG_LEVEL, else info.")
	parallelism = flag.Int("parallelism", 0, "Concurrent runs. Defaults to GOMAXPROCS.")

	protocols = flag.StringSlice("protocol", nil, "Protocols to sweep. Defaults to the base parameters' protocol.")
	losses    = flag.Bool("losses", false, "Enable photon loss.")
	perturb   = flag.Bool("perturb", false, "Enable random perturbations.")
	uncert    = flag.Bool("uncertainty", false, "Enable polarization uncertainty.")
	eavesdrop = flag.Bool("eavesdrop", false, "Enable the eavesdropper.")

	vary  = flag.String("vary", "", fmt.Sprintf("Sweep a single axis from --from to --to instead of the cartesian product, one of %v.", qkd.Axes))
	from  = flag.Float64("from", 0, "First value of the --vary axis.")
	to    = flag.Float64("to", 1, "Last value of the --vary axis.")
	steps = flag.Int("steps", 10, "Number of values of the --vary axis.")
)

func init() {
	for _, a := range qkd.Axes {
		flag.Float64Slice(string(a), nil, fmt.Sprintf("Values of %s to sweep.", a))
	}
}

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
		if errors.Is(err, qkd.ErrAborted) {
			log.Warn().Msg("sweep aborted")
			os.Exit(130)
		}
		log.Fatal().Err(err).Msg("sweep failed")
	}
}

func run(log zerolog.Logger, env config.Env) error {
	base := qkd.DefaultParams()
	if *configPath != "" {
		var err error
		if base, err = config.LoadParams(*configPath, base); err != nil {
			return err
		}
	}
	set := func(name string, dst *bool, v bool) {
		if flag.CommandLine.Changed(name) {
			*dst = v
		}
	}
	set("losses", &base.EnableLosses, *losses)
	set("perturb", &base.EnablePerturb, *perturb)
	set("uncertainty", &base.EnableUncertainty, *uncert)
	set("eavesdrop", &base.EnableEavesdrop, *eavesdrop)

	points, err := buildPoints(base)
	if err != nil {
		return err
	}
	f, err := report.ParseFormat(*format)
	if err != nil {
		return err
	}
	out, err := report.NewWriter(f, os.Stdout, nil)
	if err != nil {
		return err
	}

	s := config.Seed(*seed, flag.CommandLine.Changed("seed"), env, rand.Uint64)
	log.Info().Uint64("seed", s).Int("points", len(points)).Msg("starting sweep")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, err := qkd.Sweep(ctx, qkd.SweepOpts{
		Points:      points,
		Seed:        s,
		Parallelism: *parallelism,
		Logger:      log,
		Progress: func(done, total int) {
			log.Info().Int("done", done).Int("total", total).Msg("progress")
		},
	})
	if err != nil {
		return err
	}
	for _, r := range res.Results {
		if err := out.Write(r); err != nil {
			return err
		}
	}
	if err := out.Close(); err != nil {
		return err
	}
	for _, m := range summaryMetrics(res) {
		log.Info().Str("metric", m.name).Int("n", m.N).Float64("mean", m.Mean).Float64("std", m.StdDev).Msg("summary")
	}
	return nil
}

type metric struct {
	name string
	stats.Summary
}

// summaryMetrics lists the sweep summaries in a fixed order.
func summaryMetrics(res qkd.SweepResult) []metric {
	return []metric{
		{"key_length", res.KeyLength},
		{"key_rate", res.KeyRate},
		{"qber", res.QBER},
		{"s", res.S},
	}
}

// buildPoints expands the flags into one Params per sweep point.
func buildPoints(base qkd.Params) ([]qkd.Params, error) {
	names := *protocols
	if len(names) == 0 {
		names = []string{base.Protocol}
	}
	var bases []qkd.Params
	for _, name := range names {
		if _, err := protocol.Lookup(name); err != nil {
			return nil, &qkd.ConfigurationError{Field: "protocol", Reason: err.Error()}
		}
		p := base
		p.Protocol = name
		bases = append(bases, p)
	}

	if *vary != "" {
		var points []qkd.Params
		for _, b := range bases {
			ps, err := qkd.Vary(b, qkd.Axis(*vary), qkd.Linspace(*from, *to, *steps))
			if err != nil {
				return nil, err
			}
			points = append(points, ps...)
		}
		return points, nil
	}

	var (
		axes []qkd.Axis
		args [][]interface{}
	)
	for _, a := range qkd.Axes {
		if vals := lookupInput(string(a)); len(vals) > 0 {
			axes = append(axes, a)
			args = append(args, vals)
		}
	}
	var points []qkd.Params
	var err error
	for _, b := range bases {
		applyCartesian(func(vals []interface{}) {
			p := b
			for i, a := range axes {
				if e := a.Set(&p, vals[i].(float64)); e != nil && err == nil {
					err = e
				}
			}
			points = append(points, p)
		}, args)
	}
	if err != nil {
		return nil, err
	}
	return points, nil
}

func lookupInput(name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
