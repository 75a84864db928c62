// Package config loads simulation run configuration from YAML files and the
// environment.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/macawi-ai/domovoi/pkg/archive"
	"github.com/macawi-ai/domovoi/pkg/policy"
)

// SupportedVersions is the semver constraint a config version must satisfy.
const SupportedVersions = "^1.0.0"

var (
	// ErrSchema is returned when a document does not match the config schema.
	ErrSchema = errors.New("config: schema validation failed")
	// ErrVersion is returned for a missing, malformed or unsupported version.
	ErrVersion = errors.New("config: unsupported version")
	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("config: invalid")
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://domovoi.schemas.local/config.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("config schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Config is a complete run description.
type Config struct {
	Version    string         `yaml:"version" json:"version"`
	LogLevel   string         `yaml:"log_level" json:"log_level"`
	Dimensions int            `yaml:"dimensions" json:"dimensions"`
	Steps      int            `yaml:"steps" json:"steps"`
	StepRate   float64        `yaml:"step_rate" json:"step_rate"`
	Protection Protection     `yaml:"protection" json:"protection"`
	Actors     []ActorSpec    `yaml:"actors" json:"actors"`
	Scenarios  []ScenarioSpec `yaml:"scenarios" json:"scenarios"`
	Store      StoreConfig    `yaml:"store" json:"store"`
	Redis      RedisConfig    `yaml:"redis" json:"redis"`
	Archive    archive.Config `yaml:"archive" json:"archive"`
	Telemetry  Telemetry      `yaml:"telemetry" json:"telemetry"`
}

// Protection configures the policy engine.
type Protection struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	AllowExtensive   bool          `yaml:"allow_extensive" json:"allow_extensive"`
	MonitorIntensive bool          `yaml:"monitor_intensive" json:"monitor_intensive"`
	BlockEntropic    bool          `yaml:"block_entropic" json:"block_entropic"`
	MaxCoherenceLoss float64       `yaml:"max_coherence_loss" json:"max_coherence_loss"`
	Rules            []policy.Rule `yaml:"rules" json:"rules"`
}

// Policy returns the policy switches.
func (p Protection) Policy() policy.Config {
	return policy.Config{
		AllowExtensive:   p.AllowExtensive,
		MonitorIntensive: p.MonitorIntensive,
		BlockEntropic:    p.BlockEntropic,
		MaxCoherenceLoss: p.MaxCoherenceLoss,
	}
}

// ActorSpec describes Count identical actors.
type ActorSpec struct {
	Kind               string       `yaml:"kind" json:"kind"`
	Name               string       `yaml:"name" json:"name,omitempty"`
	Archetype          string       `yaml:"archetype" json:"archetype,omitempty"`
	Count              int          `yaml:"count" json:"count"`
	Coherence          *float64     `yaml:"coherence" json:"coherence,omitempty"`
	IntensivePotential *float64     `yaml:"intensive_potential" json:"intensive_potential,omitempty"`
	Sheet              *int         `yaml:"sheet" json:"sheet,omitempty"`
	BlockedAttempts    int          `yaml:"blocked_attempts" json:"blocked_attempts,omitempty"`
	PhantomSensors     []SensorSpec `yaml:"phantom_sensors" json:"phantom_sensors,omitempty"`
	Actions            []ActionSpec `yaml:"actions" json:"actions,omitempty"`
}

// SensorSpec is a Kikimora phantom sensor.
type SensorSpec struct {
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
	Type string  `yaml:"type" json:"type"`
}

// ActionSpec is one entry of a scripted actor's cycle. TargetIndex refers
// to the position of the navigation target among all configured actors.
type ActionSpec struct {
	Kind              string  `yaml:"kind" json:"kind"`
	Multiplier        float64 `yaml:"multiplier" json:"multiplier,omitempty"`
	PreservesQuality  bool    `yaml:"preserves_quality" json:"preserves_quality,omitempty"`
	QualityShift      string  `yaml:"quality_shift" json:"quality_shift,omitempty"`
	CreatesDimension  bool    `yaml:"creates_dimension" json:"creates_dimension,omitempty"`
	MaintainsIdentity bool    `yaml:"maintains_identity" json:"maintains_identity,omitempty"`
	TargetIndex       *int    `yaml:"target_index" json:"target_index,omitempty"`
	CoherenceLoss     float64 `yaml:"coherence_loss" json:"coherence_loss,omitempty"`
	InstabilityRisk   float64 `yaml:"instability_risk" json:"instability_risk,omitempty"`
}

// ScenarioSpec describes one canned scenario. TargetIndex selects the
// coherence attack target among the configured actors.
type ScenarioSpec struct {
	Type        string  `yaml:"type" json:"type"`
	Intensity   float64 `yaml:"intensity" json:"intensity,omitempty"`
	Duration    int     `yaml:"duration" json:"duration,omitempty"`
	Category    string  `yaml:"category" json:"category,omitempty"`
	TargetIndex int     `yaml:"target_index" json:"target_index,omitempty"`
}

// StoreConfig selects the SQL event store.
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn,omitempty"`
}

// RedisConfig enables the stream sink when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr,omitempty"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Stream   string `yaml:"stream" json:"stream"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Enabled    bool    `yaml:"enabled" json:"enabled"`
	Endpoint   string  `yaml:"endpoint" json:"endpoint"`
	Insecure   bool    `yaml:"insecure" json:"insecure"`
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`
}

// Default returns a runnable configuration with no actors.
func Default() *Config {
	pc := policy.DefaultConfig()
	return &Config{
		Version:    "1.0.0",
		LogLevel:   "info",
		Dimensions: 8,
		Steps:      10,
		Protection: Protection{
			AllowExtensive:   pc.AllowExtensive,
			MonitorIntensive: pc.MonitorIntensive,
			BlockEntropic:    pc.BlockEntropic,
			MaxCoherenceLoss: pc.MaxCoherenceLoss,
		},
		Store:   StoreConfig{Driver: "none"},
		Redis:   RedisConfig{Stream: "domovoi:events"},
		Archive: archive.Config{Type: archive.StoreTypeNone},
		Telemetry: Telemetry{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// Load reads path, validates it against the schema and version gate,
// layers it over Default, applies environment overrides and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	version, _ := doc.(map[string]any)["version"].(string)
	if err := CheckVersion(version); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateDocument(doc any) error {
	schema, err := configSchema()
	if err != nil {
		return err
	}
	// Round-trip through JSON so the validator sees JSON value types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// CheckVersion gates config versions against SupportedVersions.
func CheckVersion(version string) error {
	if version == "" {
		return fmt.Errorf("%w: version is required", ErrVersion)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrVersion, version, err)
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrVersion, version, SupportedVersions)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *Config) applyEnv() error {
	c.LogLevel = getenv("DOMOVOI_LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("DOMOVOI_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DOMOVOI_STEPS=%q: %v", ErrInvalid, v, err)
		}
		c.Steps = n
	}
	c.Store.Driver = getenv("DOMOVOI_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getenv("DOMOVOI_STORE_DSN", c.Store.DSN)
	c.Redis.Addr = getenv("DOMOVOI_REDIS_ADDR", c.Redis.Addr)
	c.Archive.Type = archive.StoreType(getenv("DOMOVOI_ARCHIVE_TYPE", string(c.Archive.Type)))
	if v := os.Getenv("DOMOVOI_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	return nil
}

// Validate checks cross-field constraints the schema cannot express, and
// values that may have come from the environment.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Dimensions < 1 {
		add("dimensions must be at least 1, got %d", c.Dimensions)
	}
	if c.Steps < 0 {
		add("steps must not be negative, got %d", c.Steps)
	}
	if c.StepRate < 0 {
		add("step_rate must not be negative, got %v", c.StepRate)
	}
	if err := c.Protection.Policy().Validate(); err != nil {
		errs = append(errs, err)
	}

	total := 0
	for i, a := range c.Actors {
		switch a.Kind {
		case "test", "kikimora", "blackmatter", "scripted":
		default:
			add("actors[%d]: unknown kind %q", i, a.Kind)
		}
		if a.Count < 0 {
			add("actors[%d]: count must not be negative", i)
		}
		total += a.Instances()
	}
	for i, a := range c.Actors {
		for j, act := range a.Actions {
			if act.TargetIndex != nil && *act.TargetIndex >= total {
				add("actors[%d].actions[%d]: target_index %d out of range (%d actors)", i, j, *act.TargetIndex, total)
			}
		}
	}
	for i, s := range c.Scenarios {
		switch s.Type {
		case "ddos", "protocol_abuse", "variety_bomb":
		case "coherence_attack":
			if s.TargetIndex < 0 || s.TargetIndex >= total {
				add("scenarios[%d]: target_index %d out of range (%d actors)", i, s.TargetIndex, total)
			}
		default:
			add("scenarios[%d]: unknown type %q", i, s.Type)
		}
		if s.Intensity < 0 || s.Intensity > 1 {
			add("scenarios[%d]: intensity %v outside [0,1]", i, s.Intensity)
		}
		if s.Duration < 0 {
			add("scenarios[%d]: duration must not be negative", i)
		}
	}

	switch c.Store.Driver {
	case "", "none":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			add("store: dsn is required for driver %q", c.Store.Driver)
		}
	default:
		add("store: unknown driver %q", c.Store.Driver)
	}

	switch c.Archive.Type {
	case "", archive.StoreTypeNone, archive.StoreTypeFS:
	case archive.StoreTypeS3, archive.StoreTypeGCS:
		if c.Archive.Bucket == "" {
			add("archive: bucket is required for %s", c.Archive.Type)
		}
	default:
		add("archive: unknown type %q", c.Archive.Type)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		add("telemetry: sample_rate %v outside [0,1]", c.Telemetry.SampleRate)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Instances is the number of actors this entry expands to. A zero count
// means one.
func (a ActorSpec) Instances() int {
	if a.Count == 0 {
		return 1
	}
	return a.Count
}

// ParseLevel maps a config log level onto slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
