package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macawi-ai/domovoi/pkg/archive"
	"github.com/macawi-ai/domovoi/pkg/policy"
)

const fullConfig = `
version: "1.2.0"
log_level: debug
dimensions: 6
steps: 25
step_rate: 50
protection:
  enabled: true
  allow_extensive: true
  monitor_intensive: true
  block_entropic: true
  max_coherence_loss: 0.3
  rules:
    - name: no-sheet-jumps
      expr: action.kind == "navigation" && proposer.sheet > 100
      verdict: BLOCK
      reason: shadow sheet
actors:
  - kind: test
    archetype: protective
    count: 3
  - kind: kikimora
    blocked_attempts: 2
    phantom_sensors:
      - {lat: 41.5, lon: -93.6, type: soil_moisture}
  - kind: scripted
    name: probe
    coherence: 0.6
    sheet: 3
    actions:
      - kind: navigation
        target_index: 0
      - kind: entropic
        coherence_loss: 0.1
        instability_risk: 0.2
scenarios:
  - type: ddos
    intensity: 0.7
    duration: 4
  - type: coherence_attack
    target_index: 1
store:
  driver: sqlite
  dsn: /tmp/domovoi.db
archive:
  type: fs
  path: /tmp/archive
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "domovoi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Full(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 6, cfg.Dimensions)
	assert.Equal(t, 25, cfg.Steps)
	assert.InDelta(t, 50.0, cfg.StepRate, 1e-9)
	assert.True(t, cfg.Protection.Enabled)
	assert.Equal(t, policy.Config{
		AllowExtensive:   true,
		MonitorIntensive: true,
		BlockEntropic:    true,
		MaxCoherenceLoss: 0.3,
	}, cfg.Protection.Policy())
	require.Len(t, cfg.Protection.Rules, 1)
	assert.Equal(t, policy.VerdictBlock, cfg.Protection.Rules[0].Verdict)

	require.Len(t, cfg.Actors, 3)
	assert.Equal(t, 3, cfg.Actors[0].Instances())
	assert.Equal(t, 1, cfg.Actors[1].Instances())
	require.Len(t, cfg.Actors[1].PhantomSensors, 1)
	assert.Equal(t, "soil_moisture", cfg.Actors[1].PhantomSensors[0].Type)
	require.NotNil(t, cfg.Actors[2].Coherence)
	assert.InDelta(t, 0.6, *cfg.Actors[2].Coherence, 1e-9)
	require.Len(t, cfg.Actors[2].Actions, 2)
	require.NotNil(t, cfg.Actors[2].Actions[0].TargetIndex)
	assert.Equal(t, 0, *cfg.Actors[2].Actions[0].TargetIndex)
	assert.Nil(t, cfg.Actors[0].Coherence)

	require.Len(t, cfg.Scenarios, 2)
	assert.Equal(t, "coherence_attack", cfg.Scenarios[1].Type)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, archive.StoreTypeFS, cfg.Archive.Type)

	// Untouched sections keep their defaults.
	assert.Equal(t, "domovoi:events", cfg.Redis.Stream)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_MinimalUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "version: 1.0.0\n"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def, cfg)
	assert.Equal(t, policy.DefaultConfig(), cfg.Protection.Policy())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing version":   "steps: 3\n",
		"unknown field":     "version: 1.0.0\nturbo: true\n",
		"negative steps":    "version: 1.0.0\nsteps: -1\n",
		"bad actor kind":    "version: 1.0.0\nactors:\n  - kind: leshy\n",
		"risk above one":    "version: 1.0.0\nactors:\n  - kind: scripted\n    actions:\n      - kind: entropic\n        instability_risk: 1.5\n",
		"bad rule verdict":  "version: 1.0.0\nprotection:\n  rules:\n    - {name: r, expr: \"true\", verdict: ALLOW}\n",
		"bad store driver":  "version: 1.0.0\nstore:\n  driver: mysql\n",
		"dimensions zero":   "version: 1.0.0\ndimensions: 0\n",
		"string for number": "version: 1.0.0\nsteps: many\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("version: [unterminated\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchema)
}

func TestCheckVersion(t *testing.T) {
	require.NoError(t, CheckVersion("1.0.0"))
	require.NoError(t, CheckVersion("1.9.3"))

	for _, v := range []string{"", "2.0.0", "0.9.0", "one"} {
		assert.ErrorIs(t, CheckVersion(v), ErrVersion, v)
	}

	_, err := Parse([]byte("version: 2.1.0\n"))
	assert.ErrorIs(t, err, ErrVersion)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("DOMOVOI_LOG_LEVEL", "warn")
	t.Setenv("DOMOVOI_STEPS", "7")
	t.Setenv("DOMOVOI_STORE_DRIVER", "postgres")
	t.Setenv("DOMOVOI_STORE_DSN", "postgres://localhost/domovoi")
	t.Setenv("DOMOVOI_REDIS_ADDR", "localhost:6379")
	t.Setenv("DOMOVOI_ARCHIVE_TYPE", "fs")
	t.Setenv("DOMOVOI_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Parse([]byte("version: 1.0.0\nsteps: 2\n"))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7, cfg.Steps)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/domovoi", cfg.Store.DSN)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, archive.StoreTypeFS, cfg.Archive.Type)
	assert.Equal(t, "collector:4317", cfg.Telemetry.Endpoint)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestParse_EnvOverrideInvalid(t *testing.T) {
	t.Setenv("DOMOVOI_STEPS", "lots")
	_, err := Parse([]byte("version: 1.0.0\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	t.Setenv("DOMOVOI_STEPS", "-4")
	_, err = Parse([]byte("version: 1.0.0\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"scenario target out of range": func(c *Config) {
			c.Actors = []ActorSpec{{Kind: "test"}}
			c.Scenarios = []ScenarioSpec{{Type: "coherence_attack", TargetIndex: 1}}
		},
		"coherence attack without actors": func(c *Config) {
			c.Scenarios = []ScenarioSpec{{Type: "coherence_attack"}}
		},
		"navigation target out of range": func(c *Config) {
			idx := 4
			c.Actors = []ActorSpec{{Kind: "scripted", Count: 2, Actions: []ActionSpec{{Kind: "navigation", TargetIndex: &idx}}}}
		},
		"sqlite without dsn": func(c *Config) {
			c.Store.Driver = "sqlite"
		},
		"s3 without bucket": func(c *Config) {
			c.Archive.Type = archive.StoreTypeS3
		},
		"unknown log level": func(c *Config) {
			c.LogLevel = "trace"
		},
		"coherence loss above one": func(c *Config) {
			c.Protection.MaxCoherenceLoss = 2
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	cfg := Default()
	cfg.Actors = []ActorSpec{{Kind: "test", Count: 2}}
	cfg.Scenarios = []ScenarioSpec{{Type: "coherence_attack", TargetIndex: 1}}
	assert.NoError(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
