// Package config loads and validates .hox/config.toml (spec §6): protected
// files, loop iteration defaults, backpressure check overrides, and model
// settings. Loaded with github.com/spf13/viper so environment variables
// and per-project-kind defaults layer over the file the way the teacher's
// other on-disk config surfaces behave; the TOML itself is decoded by
// viper's own TOML codec, matching the teacher's go.mod choice of TOML as
// the canonical on-disk format.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hoxforge/hox/internal/herr"
)

// SlowCheck is one entry in [backpressure].slow_checks: a command that
// only runs every N iterations rather than on every one.
type SlowCheck struct {
	Command          string `mapstructure:"command"`
	EveryNIterations int    `mapstructure:"every_n_iterations"`
}

// LoopDefaults mirrors spec §6's [loop_defaults] table.
type LoopDefaults struct {
	MaxIterations int      `mapstructure:"max_iterations"`
	MaxTokens     *int64   `mapstructure:"max_tokens"`
	MaxBudgetUSD  *float64 `mapstructure:"max_budget_usd"`
}

// Backpressure mirrors spec §6's [backpressure] table: fast checks run
// every iteration, slow checks run every_n_iterations.
type Backpressure struct {
	FastChecks []string    `mapstructure:"fast_checks"`
	SlowChecks []SlowCheck `mapstructure:"slow_checks"`
}

// Models mirrors spec §6's [models] table.
type Models struct {
	Default   string `mapstructure:"default"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// Config is the fully decoded and defaulted contents of .hox/config.toml.
// Every section is optional on disk; Load fills in defaults per the
// detected project kind before returning.
type Config struct {
	ProtectedFiles []string     `mapstructure:"protected_files"`
	LoopDefaults   LoopDefaults `mapstructure:"loop_defaults"`
	Backpressure   Backpressure `mapstructure:"backpressure"`
	Models         Models       `mapstructure:"models"`
}

// ProjectKind mirrors internal/backpressure's auto-detected project kinds,
// used here to choose sane per-language fast-check defaults when the file
// doesn't specify any.
type ProjectKind string

const (
	ProjectGo      ProjectKind = "go"
	ProjectRust    ProjectKind = "rust"
	ProjectPython  ProjectKind = "python"
	ProjectNode    ProjectKind = "node"
	ProjectUnknown ProjectKind = "unknown"
)

func defaultFastChecks(kind ProjectKind) []string {
	switch kind {
	case ProjectGo:
		return []string{"go test ./...", "go vet ./..."}
	case ProjectRust:
		return []string{"cargo test", "cargo clippy"}
	case ProjectPython:
		return []string{"pytest"}
	case ProjectNode:
		return []string{"npm test"}
	default:
		return nil
	}
}

// DefaultConfig returns the zero-file configuration for kind: no protected
// files, loop defaults of 20 iterations with no token/dollar cap, fast
// checks appropriate to the detected project kind and no slow checks, and
// no model override (the Inferrer layer's own defaults apply).
func DefaultConfig(kind ProjectKind) Config {
	return Config{
		LoopDefaults: LoopDefaults{MaxIterations: 20},
		Backpressure: Backpressure{FastChecks: defaultFastChecks(kind)},
	}
}

// Load reads .hox/config.toml under dir (if present), layers it over
// DefaultConfig(kind), and validates the result. A missing file is not an
// error: Load returns the pure defaults.
func Load(dir string, kind ProjectKind) (Config, error) {
	def := DefaultConfig(kind)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir + "/.hox")

	v.SetDefault("protected_files", def.ProtectedFiles)
	v.SetDefault("loop_defaults.max_iterations", def.LoopDefaults.MaxIterations)
	v.SetDefault("backpressure.fast_checks", def.Backpressure.FastChecks)

	v.SetEnvPrefix("hox")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, herr.Wrap(herr.KindParse, err, "read .hox/config.toml")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, herr.Wrap(herr.KindParse, err, "decode .hox/config.toml")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the decoded configuration's invariants: non-negative
// iteration/token/dollar budgets, well-formed slow-check cadences, and a
// non-empty command string wherever one is required.
func (c Config) Validate() error {
	if c.LoopDefaults.MaxIterations < 0 {
		return herr.SchemaValidation("loop_defaults.max_iterations", "must not be negative")
	}
	if c.LoopDefaults.MaxTokens != nil && *c.LoopDefaults.MaxTokens < 0 {
		return herr.SchemaValidation("loop_defaults.max_tokens", "must not be negative")
	}
	if c.LoopDefaults.MaxBudgetUSD != nil && *c.LoopDefaults.MaxBudgetUSD < 0 {
		return herr.SchemaValidation("loop_defaults.max_budget_usd", "must not be negative")
	}
	for _, sc := range c.Backpressure.SlowChecks {
		if sc.Command == "" {
			return herr.SchemaValidation("backpressure.slow_checks", "command must not be empty")
		}
		if sc.EveryNIterations <= 0 {
			return herr.SchemaValidation("backpressure.slow_checks", fmt.Sprintf("every_n_iterations for %q must be positive", sc.Command))
		}
	}
	return nil
}

// RunsThisIteration reports whether sc should run at the given 0-based
// iteration number.
func (sc SlowCheck) RunsThisIteration(iteration int) bool {
	if sc.EveryNIterations <= 0 {
		return false
	}
	return iteration%sc.EveryNIterations == 0
}
