// Package report renders simulation results for consumption outside the
// simulator: human readable tables, CSV, line-delimited JSON, msgpack and
// framed protobuf record streams.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alan-christopher/qkdsim/qkd"
	"google.golang.org/protobuf/types/known/structpb"
)

// A Format names an output encoding.
type Format string

const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatMsgpack Format = "msgpack"
	FormatProto   Format = "proto"
)

// Formats lists every supported output encoding.
var Formats = []Format{FormatTable, FormatJSON, FormatCSV, FormatMsgpack, FormatProto}

// ParseFormat returns the format named s, ignoring case.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q, want one of %v", s, Formats)
}

// A Writer emits results in some format. Close flushes any buffered output; it
// does not close the underlying io.Writer.
type Writer interface {
	Write(res qkd.Result) error
	Close() error
}

// NewWriter returns a Writer emitting format f to w. tag, if non-nil, seals
// FormatProto frames and is ignored otherwise.
func NewWriter(f Format, w io.Writer, tag *Toeplitz) (Writer, error) {
	switch f {
	case FormatTable:
		return newTableWriter(w), nil
	case FormatJSON:
		return &jsonWriter{w: w}, nil
	case FormatCSV:
		return NewCSVWriter(w), nil
	case FormatMsgpack:
		return newMsgpackWriter(w), nil
	case FormatProto:
		fw, err := NewFramedWriter(w, tag)
		if err != nil {
			return nil, err
		}
		return fw, nil
	}
	return nil, fmt.Errorf("unknown format %q", f)
}

// A Row is the flattened, sink-friendly view of a qkd.Result. Nullable metrics
// are nil when absent.
type Row struct {
	RunID              string   `msgpack:"run_id"`
	Protocol           string   `msgpack:"protocol"`
	NBits              int      `msgpack:"n_bits"`
	FiberLengthKm      float64  `msgpack:"fiber_length_km"`
	FiberLossDBPerKm   float64  `msgpack:"fiber_loss_db_per_km"`
	DetectorEfficiency float64  `msgpack:"detector_efficiency"`
	SourceEfficiency   float64  `msgpack:"source_efficiency"`
	EnableLosses       bool     `msgpack:"enable_losses"`
	LossMode           string   `msgpack:"loss_mode"`
	LossProbability    float64  `msgpack:"loss_probability"`
	EnablePerturb      bool     `msgpack:"enable_perturb"`
	PerturbProbability float64  `msgpack:"perturb_probability"`
	EnableUncertainty  bool     `msgpack:"enable_uncertainty"`
	UncertaintyStd     float64  `msgpack:"uncertainty_std"`
	EnableEavesdrop    bool     `msgpack:"enable_eavesdrop"`
	GenerationRateHz   float64  `msgpack:"generation_rate_hz"`
	CrossCheckFraction *float64 `msgpack:"cross_check_fraction"`
	RoundsSent         int      `msgpack:"rounds_sent"`
	SiftedLength       int      `msgpack:"sifted_length"`
	CheckSize          int      `msgpack:"check_size"`
	KeyLength          int      `msgpack:"key_length"`
	KeyRate            float64  `msgpack:"key_rate"`
	QBER               *float64 `msgpack:"qber"`
	S                  *float64 `msgpack:"s"`
}

// Columns lists the fields of a Row in output order.
var Columns = []string{
	"RunID", "Protocol", "NBits", "FiberLengthKm", "FiberLossDBPerKm",
	"DetectorEfficiency", "SourceEfficiency", "EnableLosses", "LossMode",
	"LossProbability", "EnablePerturb", "PerturbProbability",
	"EnableUncertainty", "UncertaintyStd", "EnableEavesdrop",
	"GenerationRateHz", "CrossCheckFraction", "RoundsSent", "SiftedLength",
	"CheckSize", "KeyLength", "KeyRate", "QBER", "S",
}

// nullable columns hold a *float64.
var nullable = map[string]bool{"CrossCheckFraction": true, "QBER": true, "S": true}

// NewRow flattens res.
func NewRow(res qkd.Result) Row {
	p := res.Params
	return Row{
		RunID:              res.RunID.String(),
		Protocol:           string(res.Protocol),
		NBits:              res.RoundsRequested,
		FiberLengthKm:      p.FiberLengthKm,
		FiberLossDBPerKm:   p.FiberLossDBPerKm,
		DetectorEfficiency: p.DetectorEfficiency,
		SourceEfficiency:   p.SourceEfficiency,
		EnableLosses:       p.EnableLosses,
		LossMode:           p.LossMode.String(),
		LossProbability:    res.LossProbability,
		EnablePerturb:      p.EnablePerturb,
		PerturbProbability: res.PerturbProbability,
		EnableUncertainty:  p.EnableUncertainty,
		UncertaintyStd:     res.UncertaintyStd,
		EnableEavesdrop:    p.EnableEavesdrop,
		GenerationRateHz:   p.GenerationRateHz,
		CrossCheckFraction: p.CrossCheckFraction,
		RoundsSent:         res.RoundsSent,
		SiftedLength:       res.SiftedLength,
		CheckSize:          res.CheckSize,
		KeyLength:          res.KeyLength,
		KeyRate:            res.KeyRate,
		QBER:               res.QBER,
		S:                  res.S,
	}
}

// Map returns r keyed by snake_case field names.
func (r Row) Map() map[string]any {
	return map[string]any{
		"run_id":               r.RunID,
		"protocol":             r.Protocol,
		"n_bits":               r.NBits,
		"fiber_length_km":      r.FiberLengthKm,
		"fiber_loss_db_per_km": r.FiberLossDBPerKm,
		"detector_efficiency":  r.DetectorEfficiency,
		"source_efficiency":    r.SourceEfficiency,
		"enable_losses":        r.EnableLosses,
		"loss_mode":            r.LossMode,
		"loss_probability":     r.LossProbability,
		"enable_perturb":       r.EnablePerturb,
		"perturb_probability":  r.PerturbProbability,
		"enable_uncertainty":   r.EnableUncertainty,
		"uncertainty_std":      r.UncertaintyStd,
		"enable_eavesdrop":     r.EnableEavesdrop,
		"generation_rate_hz":   r.GenerationRateHz,
		"cross_check_fraction": deref(r.CrossCheckFraction),
		"rounds_sent":          r.RoundsSent,
		"sifted_length":        r.SiftedLength,
		"check_size":           r.CheckSize,
		"key_length":           r.KeyLength,
		"key_rate":             r.KeyRate,
		"qber":                 deref(r.QBER),
		"s":                    deref(r.S),
	}
}

// Strings returns the fields of r as text, in Columns order. Absent values
// are empty.
func (r Row) Strings() []string {
	ff := func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
	return []string{
		r.RunID, r.Protocol, strconv.Itoa(r.NBits), ff(r.FiberLengthKm),
		ff(r.FiberLossDBPerKm), ff(r.DetectorEfficiency), ff(r.SourceEfficiency),
		strconv.FormatBool(r.EnableLosses), r.LossMode, ff(r.LossProbability),
		strconv.FormatBool(r.EnablePerturb), ff(r.PerturbProbability),
		strconv.FormatBool(r.EnableUncertainty), ff(r.UncertaintyStd),
		strconv.FormatBool(r.EnableEavesdrop), ff(r.GenerationRateHz),
		optional(r.CrossCheckFraction), strconv.Itoa(r.RoundsSent),
		strconv.Itoa(r.SiftedLength), strconv.Itoa(r.CheckSize),
		strconv.Itoa(r.KeyLength), ff(r.KeyRate), optional(r.QBER), optional(r.S),
	}
}

// Record converts res into a protobuf Struct, with absent metrics as nulls.
func Record(res qkd.Result) (*structpb.Struct, error) {
	return structpb.NewStruct(NewRow(res).Map())
}

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func optional(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}
