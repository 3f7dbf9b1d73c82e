package qkd

import (
	"errors"
	"fmt"

	"github.com/alan-christopher/qkdsim/qkd/channel"
	"github.com/alan-christopher/qkdsim/qkd/protocol"
)

// Params packages together the physical and protocol parameters of a single
// run. Params are plain values; every run works on its own copy.
type Params struct {
	Protocol string `yaml:"protocol"`
	NBits    int    `yaml:"n_bits"`

	FiberLengthKm      float64          `yaml:"fiber_length_km"`
	FiberLossDBPerKm   float64          `yaml:"fiber_loss_db_per_km"`
	DetectorEfficiency float64          `yaml:"detector_efficiency"`
	SourceEfficiency   float64          `yaml:"source_efficiency"`
	EnableLosses       bool             `yaml:"enable_losses"`
	LossMode           channel.LossMode `yaml:"loss_mode"`

	PerturbProbability float64 `yaml:"perturb_probability"`
	EnablePerturb      bool    `yaml:"enable_perturb"`
	UncertaintyMeanRad float64 `yaml:"uncertainty_mean_rad"`
	EnableUncertainty  bool    `yaml:"enable_uncertainty"`

	GenerationRateHz float64 `yaml:"generation_rate_hz"`
	EnableEavesdrop  bool    `yaml:"enable_eavesdrop"`

	// CrossCheckFraction is the share of the sifted key disclosed to estimate
	// the QBER. Nil or zero skips the cross-check.
	CrossCheckFraction *float64 `yaml:"cross_check_fraction"`
}

// DefaultParams returns a lossless, noiseless BB84 configuration.
func DefaultParams() Params {
	return Params{
		Protocol:           string(protocol.BB84),
		NBits:              DefaultNBits,
		FiberLossDBPerKm:   DefaultFiberLossDBPerKm,
		DetectorEfficiency: DefaultDetectorEfficiency,
		SourceEfficiency:   DefaultSourceEfficiency,
		GenerationRateHz:   DefaultGenerationRateHz,
	}
}

// Fraction returns a pointer to f, for use as Params.CrossCheckFraction.
func Fraction(f float64) *float64 {
	return &f
}

// Validate returns the joined *ConfigurationError of every invalid field, or
// nil if p can be simulated.
func (p Params) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}
	if _, err := protocol.Lookup(p.Protocol); err != nil {
		bad("protocol", "%q is not one of %v", p.Protocol, protocol.Names)
	}
	if p.NBits <= 0 {
		bad("n_bits", "must be positive, got %d", p.NBits)
	}
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"fiber_length_km", p.FiberLengthKm},
		{"fiber_loss_db_per_km", p.FiberLossDBPerKm},
		{"uncertainty_mean_rad", p.UncertaintyMeanRad},
		{"generation_rate_hz", p.GenerationRateHz},
	} {
		if !(f.val >= 0) {
			bad(f.name, "must be non-negative, got %v", f.val)
		}
	}
	probs := []struct {
		name string
		val  float64
	}{
		{"perturb_probability", p.PerturbProbability},
		{"detector_efficiency", p.DetectorEfficiency},
		{"source_efficiency", p.SourceEfficiency},
	}
	if p.CrossCheckFraction != nil {
		probs = append(probs, struct {
			name string
			val  float64
		}{"cross_check_fraction", *p.CrossCheckFraction})
	}
	for _, f := range probs {
		if !(f.val >= 0 && f.val <= 1) {
			bad(f.name, "must lie in [0, 1], got %v", f.val)
		}
	}
	if p.LossMode > channel.LossDrop {
		bad("loss_mode", "unknown mode %v", p.LossMode)
	}
	return errors.Join(errs...)
}

// Channel returns the channel model described by p.
func (p Params) Channel() channel.Model {
	return channel.Model{
		FiberLengthKm:      p.FiberLengthKm,
		FiberLossDBPerKm:   p.FiberLossDBPerKm,
		DetectorEfficiency: p.DetectorEfficiency,
		SourceEfficiency:   p.SourceEfficiency,
		EnableLosses:       p.EnableLosses,
		LossMode:           p.LossMode,
		PerturbProbability: p.PerturbProbability,
		EnablePerturb:      p.EnablePerturb,
		UncertaintyMeanRad: p.UncertaintyMeanRad,
		EnableUncertainty:  p.EnableUncertainty,
	}
}

// clone returns a copy of p that shares no memory with it.
func (p Params) clone() Params {
	if p.CrossCheckFraction != nil {
		p.CrossCheckFraction = Fraction(*p.CrossCheckFraction)
	}
	return p
}

func (p Params) checkFraction() (float64, bool) {
	if p.CrossCheckFraction == nil || *p.CrossCheckFraction == 0 {
		return 0, false
	}
	return *p.CrossCheckFraction, true
}
