// Package config holds the configuration plumbing shared by the qkdsim
// binaries: environment defaults, logger construction and YAML parameter
// files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/alan-christopher/qkdsim/qkd"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	EnvLogLevel = "QKDSIM_LOG_LEVEL"
	EnvSeed     = "QKDSIM_SEED"
)

// Env holds defaults read from the environment.
type Env struct {
	LogLevel string
	// Seed is only meaningful if HasSeed is set.
	Seed    uint64
	HasSeed bool
}

// LoadEnv reads the QKDSIM_* variables, after loading a .env file from the
// working directory if one exists.
func LoadEnv() (Env, error) {
	_ = godotenv.Load()

	env := Env{LogLevel: getEnv(EnvLogLevel, "info")}
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Env{}, fmt.Errorf("parsing %s: %w", EnvSeed, err)
		}
		env.Seed, env.HasSeed = seed, true
	}
	return env, nil
}

// NewLogger returns a console logger on w at the named level.
func NewLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// LoadParams overlays the YAML file at path onto base. Unknown keys are
// rejected; an empty file leaves base unchanged.
func LoadParams(path string, base qkd.Params) (qkd.Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	p := base
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parsing %s: %w", path, err)
	}
	return p, nil
}

// Seed picks the random seed for a run: an explicit flag wins over the
// environment, which wins over a fresh random value.
func Seed(flagSeed uint64, flagSet bool, env Env, fresh func() uint64) uint64 {
	switch {
	case flagSet:
		return flagSeed
	case env.HasSeed:
		return env.Seed
	}
	return fresh()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
