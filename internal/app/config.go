package app

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vk/taskgraph/internal/telemetry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds everything an App needs to run.
type Config struct {
	// Root is the directory holding config.* and kinds/.
	Root string `validate:"required"`
	// ParametersFile is optional; defaults apply without it.
	ParametersFile string
	// TargetKinds overrides the parameters' target-kinds when set.
	TargetKinds []string

	LogFormat string `validate:"oneof=text json"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	Workers   int    `validate:"gte=0"`
	JSON      bool
	// Seed makes task ids reproducible when set.
	Seed string
	// TraceExporter and MetricExporter write to the log writer.
	TraceExporter  string `validate:"oneof=none stdout"`
	MetricExporter string `validate:"oneof=none stdout"`
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.TraceExporter == "" {
		cfg.TraceExporter = telemetry.None
	}
	if cfg.MetricExporter == "" {
		cfg.MetricExporter = telemetry.None
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
