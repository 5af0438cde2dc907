// Package config holds the tunable scheduling rules: priority weights per
// train type, the effect of each disruption severity and the coordinator
// timings. Values are loaded from YAML on top of the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/railcontrol/pkg/ctdf"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "data/config.yaml"

type Config struct {
	Timezone string `yaml:"timezone"`

	PriorityWeights map[ctdf.TrainType]float64 `yaml:"priority_weights"`

	Severities map[ctdf.Severity]ctdf.SeverityEffect `yaml:"severities"`

	// Expression evaluated against a disruption to produce its priority score.
	PriorityScoreExpression string `yaml:"priority_score_expression"`

	DefaultDwellMinutes int `yaml:"default_dwell_minutes"`

	// HorizonHours bounds how far past its earliest time a train may be
	// pushed before it is marked unresolved.
	HorizonHours int `yaml:"horizon_hours"`

	TickInterval  time.Duration `yaml:"tick_interval"`
	CoalesceDelay time.Duration `yaml:"coalesce_delay"`

	MaxConcurrentComponents int `yaml:"max_concurrent_components"`
}

func Default() *Config {
	return &Config{
		Timezone: "Europe/London",
		PriorityWeights: map[ctdf.TrainType]float64{
			ctdf.TrainTypeExpress:   3,
			ctdf.TrainTypePassenger: 2,
			ctdf.TrainTypeFreight:   1,
		},
		Severities: map[ctdf.Severity]ctdf.SeverityEffect{
			ctdf.SeverityLow:      {SpeedMultiplier: 0.9},
			ctdf.SeverityMedium:   {SpeedMultiplier: 0.7},
			ctdf.SeverityHigh:     {SpeedMultiplier: 0.4, CapacityCap: 1},
			ctdf.SeverityCritical: {SpeedMultiplier: 0},
		},
		PriorityScoreExpression: "severity_rank * 25 + len(sections) * 5 + (type == \"ACCIDENT\" ? 20 : 0)",
		DefaultDwellMinutes:     2,
		HorizonHours:            24,
		TickInterval:            time.Minute,
		CoalesceDelay:           250 * time.Millisecond,
		MaxConcurrentComponents: 4,
	}
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", path).Msg("No rules config found, using defaults")
		return config, nil
	} else if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(content, config); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	for _, trainType := range []ctdf.TrainType{ctdf.TrainTypeExpress, ctdf.TrainTypePassenger, ctdf.TrainTypeFreight} {
		weight, ok := c.PriorityWeights[trainType]
		if !ok {
			return &ctdf.ValidationError{Field: "priority_weights", Reason: fmt.Sprintf("missing weight for %s", trainType)}
		}
		if weight <= 0 {
			return &ctdf.ValidationError{Field: "priority_weights", Reason: fmt.Sprintf("weight for %s must be positive", trainType)}
		}
	}

	for _, severity := range []ctdf.Severity{ctdf.SeverityLow, ctdf.SeverityMedium, ctdf.SeverityHigh, ctdf.SeverityCritical} {
		effect, ok := c.Severities[severity]
		if !ok {
			return &ctdf.ValidationError{Field: "severities", Reason: fmt.Sprintf("missing rule for %s", severity)}
		}
		if effect.SpeedMultiplier < 0 || effect.SpeedMultiplier > 1 {
			return &ctdf.ValidationError{Field: "severities", Reason: fmt.Sprintf("speed multiplier for %s must be within [0, 1]", severity)}
		}
		if effect.CapacityCap < 0 {
			return &ctdf.ValidationError{Field: "severities", Reason: fmt.Sprintf("capacity cap for %s must not be negative", severity)}
		}
	}

	if c.DefaultDwellMinutes < 0 {
		return &ctdf.ValidationError{Field: "default_dwell_minutes", Reason: "must not be negative"}
	}
	if c.HorizonHours <= 0 {
		return &ctdf.ValidationError{Field: "horizon_hours", Reason: "must be positive"}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return &ctdf.ValidationError{Field: "timezone", Reason: err.Error()}
	}

	return nil
}

func (c *Config) PriorityWeight(trainType ctdf.TrainType) float64 {
	return c.PriorityWeights[trainType]
}

func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonHours) * time.Hour
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
