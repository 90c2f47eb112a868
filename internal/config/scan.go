package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/stagescan/internal/aggregate"
	"github.com/banshee-data/stagescan/internal/geometry"
	"github.com/banshee-data/stagescan/internal/serialport"
	"github.com/banshee-data/stagescan/internal/stage"
)

// DefaultConfigPath is the path to the canonical scan defaults file.
const DefaultConfigPath = "config/stagescan.defaults.json"

// ScanConfig is the root configuration of the scan service. Every field is
// optional; the Get* accessors fall back to the defaults of the supported
// stage and ADC bridge.
type ScanConfig struct {
	// Stage travel envelope, millimetres
	TravelMinX *float64 `json:"travel_min_x,omitempty"`
	TravelMaxX *float64 `json:"travel_max_x,omitempty"`
	TravelMinY *float64 `json:"travel_min_y,omitempty"`
	TravelMaxY *float64 `json:"travel_max_y,omitempty"`

	// Homing
	HomingDistance  *float64 `json:"homing_distance,omitempty"`
	HomingDirection *int     `json:"homing_direction,omitempty"`

	// Controller link
	Identity         *string                 `json:"identity,omitempty"`
	IdentityAttempts *int                    `json:"identity_attempts,omitempty"`
	CommandTimeout   *string                 `json:"command_timeout,omitempty"` // duration string like "6s"
	StageSerial      *serialport.PortOptions `json:"stage_serial,omitempty"`

	// Sampling
	SettleTime    *string                 `json:"settle_time,omitempty"` // duration string like "50ms"
	SampleCount   *int                    `json:"sample_count,omitempty"`
	Statistic     *string                 `json:"statistic,omitempty"`
	SamplerSerial *serialport.PortOptions `json:"sampler_serial,omitempty"`
	SamplerQuery  *string                 `json:"sampler_query,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyScanConfig returns a ScanConfig with all fields set to nil.
func EmptyScanConfig() *ScanConfig {
	return &ScanConfig{}
}

// LoadScanConfig loads a ScanConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to defaults, so partial configs are safe.
func LoadScanConfig(path string) (*ScanConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyScanConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *ScanConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadScanConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *ScanConfig) Validate() error {
	env := c.GetEnvelope()
	for _, axis := range []stage.Axis{stage.X, stage.Y} {
		if l := env[axis]; !(l.Max > l.Min) {
			return fmt.Errorf("travel_max_%s must exceed travel_min_%s, got %s", axis, axis, l)
		}
	}

	if c.HomingDistance != nil && *c.HomingDistance <= 0 {
		return fmt.Errorf("homing_distance must be positive, got %f", *c.HomingDistance)
	}
	if c.HomingDirection != nil && *c.HomingDirection != -1 && *c.HomingDirection != 1 {
		return fmt.Errorf("homing_direction must be -1 or 1, got %d", *c.HomingDirection)
	}
	if c.IdentityAttempts != nil && *c.IdentityAttempts <= 0 {
		return fmt.Errorf("identity_attempts must be positive, got %d", *c.IdentityAttempts)
	}

	if c.CommandTimeout != nil && *c.CommandTimeout != "" {
		d, err := time.ParseDuration(*c.CommandTimeout)
		if err != nil {
			return fmt.Errorf("invalid command_timeout '%s': %w", *c.CommandTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("command_timeout must be positive, got %s", d)
		}
	}
	if c.SettleTime != nil && *c.SettleTime != "" {
		d, err := time.ParseDuration(*c.SettleTime)
		if err != nil {
			return fmt.Errorf("invalid settle_time '%s': %w", *c.SettleTime, err)
		}
		if d < 0 {
			return fmt.Errorf("settle_time must be non-negative, got %s", d)
		}
	}

	if c.SampleCount != nil && *c.SampleCount <= 0 {
		return fmt.Errorf("sample_count must be positive, got %d", *c.SampleCount)
	}
	if c.Statistic != nil {
		if _, err := aggregate.ParseStatistic(*c.Statistic); err != nil {
			return fmt.Errorf("invalid statistic: %w", err)
		}
	}

	if c.StageSerial != nil {
		if _, err := c.StageSerial.Normalise(); err != nil {
			return fmt.Errorf("invalid stage_serial: %w", err)
		}
	}
	if c.SamplerSerial != nil {
		if _, err := c.SamplerSerial.Normalise(); err != nil {
			return fmt.Errorf("invalid sampler_serial: %w", err)
		}
	}

	return nil
}

// GetEnvelope returns the travel envelope, 0..50 mm on both axes by default.
func (c *ScanConfig) GetEnvelope() geometry.Envelope {
	env := geometry.DefaultEnvelope()
	if c.TravelMinX != nil {
		env[stage.X].Min = *c.TravelMinX
	}
	if c.TravelMaxX != nil {
		env[stage.X].Max = *c.TravelMaxX
	}
	if c.TravelMinY != nil {
		env[stage.Y].Min = *c.TravelMinY
	}
	if c.TravelMaxY != nil {
		env[stage.Y].Max = *c.TravelMaxY
	}
	return env
}

// GetHomingDistance returns the homing_distance value or the default.
func (c *ScanConfig) GetHomingDistance() float64 {
	if c.HomingDistance == nil {
		return stage.DefaultHomingDistance
	}
	return *c.HomingDistance
}

// GetHomingDirection returns the homing_direction value or the default.
func (c *ScanConfig) GetHomingDirection() int {
	if c.HomingDirection == nil {
		return -1 // minimum endstop
	}
	return *c.HomingDirection
}

// GetIdentity returns the expected *IDN? reply or the default.
func (c *ScanConfig) GetIdentity() string {
	if c.Identity == nil {
		return stage.DefaultIdentity
	}
	return *c.Identity
}

// GetIdentityAttempts returns the identity_attempts value or the default.
func (c *ScanConfig) GetIdentityAttempts() int {
	if c.IdentityAttempts == nil {
		return stage.DefaultIdentityAttempts
	}
	return *c.IdentityAttempts
}

// GetCommandTimeout parses and returns the CommandTimeout as a time.Duration.
func (c *ScanConfig) GetCommandTimeout() time.Duration {
	if c.CommandTimeout == nil || *c.CommandTimeout == "" {
		return 6 * time.Second // default
	}
	d, err := time.ParseDuration(*c.CommandTimeout)
	if err != nil {
		return 6 * time.Second // default on parse error
	}
	return d
}

// GetSettleTime parses and returns the SettleTime as a time.Duration.
func (c *ScanConfig) GetSettleTime() time.Duration {
	if c.SettleTime == nil || *c.SettleTime == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.SettleTime)
	if err != nil {
		return 0
	}
	return d
}

// GetSampleCount returns the sample_count value or the default.
func (c *ScanConfig) GetSampleCount() int {
	if c.SampleCount == nil {
		return aggregate.DefaultSampleCount
	}
	return *c.SampleCount
}

// GetStatistic returns the statistic value or mean-square.
func (c *ScanConfig) GetStatistic() aggregate.Statistic {
	if c.Statistic == nil {
		return aggregate.MeanSquare
	}
	s, err := aggregate.ParseStatistic(*c.Statistic)
	if err != nil {
		return aggregate.MeanSquare
	}
	return s
}

// GetStageSerial returns the stage serial options, normalised.
func (c *ScanConfig) GetStageSerial() serialport.PortOptions {
	return normalisedOrDefault(c.StageSerial)
}

// GetSamplerSerial returns the sampler serial options, normalised.
func (c *ScanConfig) GetSamplerSerial() serialport.PortOptions {
	return normalisedOrDefault(c.SamplerSerial)
}

// GetSamplerQuery returns the sampler_query value or the default.
func (c *ScanConfig) GetSamplerQuery() string {
	if c.SamplerQuery == nil || *c.SamplerQuery == "" {
		return "READ?"
	}
	return *c.SamplerQuery
}

// StageOptions returns the stage model options described by the config.
func (c *ScanConfig) StageOptions() stage.Options {
	return stage.Options{
		HomingDistance:   c.GetHomingDistance(),
		Identity:         c.GetIdentity(),
		IdentityAttempts: c.GetIdentityAttempts(),
	}
}

func normalisedOrDefault(o *serialport.PortOptions) serialport.PortOptions {
	var opts serialport.PortOptions
	if o != nil {
		opts = *o
	}
	n, err := opts.Normalise()
	if err != nil {
		n, _ = serialport.PortOptions{}.Normalise()
	}
	return n
}
