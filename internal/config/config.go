// Package config loads the dealint configuration from .dealint.yaml or
// the [tool.dealint] table of pyproject.toml, with DEALINT_* environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gnolang/dealint/internal/contract"
	"github.com/gnolang/dealint/internal/effect"
	"github.com/gnolang/dealint/internal/index"
	"github.com/gnolang/dealint/internal/matcher"
	"github.com/gnolang/dealint/internal/report"
	"github.com/gnolang/dealint/internal/solver"
	tt "github.com/gnolang/dealint/internal/types"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".dealint.yaml"

const pyproject = "pyproject.toml"

// EnvPrefix prefixes environment overrides, as in
// DEALINT_ANALYSIS_MAX_LOOP_ITERATIONS=4.
const EnvPrefix = "DEALINT"

// Config is the complete configuration of a run.
type Config struct {
	Name string `yaml:"name" mapstructure:"name"`
	// Contracts adds decorator names for projects that wrap deal.
	Contracts []Alias `yaml:"contracts,omitempty" mapstructure:"contracts"`
	// Ignore lists exception kinds never reported as undeclared.
	Ignore []string `yaml:"ignore" mapstructure:"ignore"`
	// Exclude lists path globs skipped when scanning directories.
	Exclude  []string                 `yaml:"exclude,omitempty" mapstructure:"exclude"`
	Rules    map[string]tt.ConfigRule `yaml:"rules,omitempty" mapstructure:"rules"`
	Analysis Analysis                 `yaml:"analysis" mapstructure:"analysis"`
	Stubs    []string                 `yaml:"stubs,omitempty" mapstructure:"stubs"`
	Cache    Cache                    `yaml:"cache" mapstructure:"cache"`
	Solver   Solver                   `yaml:"solver" mapstructure:"solver"`
}

// Alias makes a decorator act as one of deal's contracts.
type Alias struct {
	Name string `yaml:"name" mapstructure:"name"`
	Kind string `yaml:"kind" mapstructure:"kind"`
}

type Analysis struct {
	MaxLoopIterations     int  `yaml:"max_loop_iterations" mapstructure:"max_loop_iterations"`
	MaxFixpointIterations int  `yaml:"max_fixpoint_iterations" mapstructure:"max_fixpoint_iterations"`
	Workers               int  `yaml:"workers,omitempty" mapstructure:"workers"`
	ReportInconclusive    bool `yaml:"report_inconclusive" mapstructure:"report_inconclusive"`
}

type Cache struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

type Solver struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Path    string        `yaml:"path" mapstructure:"path"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Name:   "dealint",
		Ignore: []string{"AssertionError"},
		Analysis: Analysis{
			MaxLoopIterations:     effect.DefaultMaxLoopIterations,
			MaxFixpointIterations: index.DefaultMaxFixpointIterations,
		},
		Cache: Cache{
			Enabled: true,
			Dir:     ".dealint_cache",
		},
		Solver: Solver{
			Path:    "z3",
			Timeout: solver.DefaultTimeout,
		},
	}
}

// Error reports an invalid configuration value.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config error in field %q: %s", e.Field, e.Message)
}

// Load reads the configuration. An empty path looks for .dealint.yaml and
// then pyproject.toml in dir; finding neither yields the defaults. A .env
// file in dir is loaded into the environment first.
func Load(dir, path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = discover(dir)
	}
	if path != "" {
		if err := read(v, path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.Rules = normalizeRules(cfg.Rules)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func discover(dir string) string {
	for _, name := range []string{FileName, ".dealint.yml", pyproject} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			if name == pyproject && !hasToolTable(p) {
				continue
			}
			return p
		}
	}
	return ""
}

func hasToolTable(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	_, ok, err := toolTable(data)
	return err == nil && ok
}

// toolTable extracts [tool.dealint] from a pyproject.toml document.
func toolTable(data []byte) (map[string]any, bool, error) {
	var doc struct {
		Tool map[string]map[string]any `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, false, err
	}
	t, ok := doc.Tool["dealint"]
	return t, ok, nil
}

func read(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if filepath.Base(path) == pyproject {
		t, _, err := toolTable(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		if err := v.MergeConfigMap(t); err != nil {
			return fmt.Errorf("merging %s: %w", path, err)
		}
		return nil
	}
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		v.SetConfigType("toml")
	case ".yaml", ".yml", "":
		v.SetConfigType("yaml")
	default:
		return &Error{Field: "config", Message: "unsupported file type " + ext}
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("name", c.Name)
	v.SetDefault("ignore", c.Ignore)
	v.SetDefault("exclude", c.Exclude)
	v.SetDefault("stubs", c.Stubs)
	v.SetDefault("analysis.max_loop_iterations", c.Analysis.MaxLoopIterations)
	v.SetDefault("analysis.max_fixpoint_iterations", c.Analysis.MaxFixpointIterations)
	v.SetDefault("analysis.workers", c.Analysis.Workers)
	v.SetDefault("analysis.report_inconclusive", c.Analysis.ReportInconclusive)
	v.SetDefault("cache.enabled", c.Cache.Enabled)
	v.SetDefault("cache.dir", c.Cache.Dir)
	v.SetDefault("solver.enabled", c.Solver.Enabled)
	v.SetDefault("solver.path", c.Solver.Path)
	v.SetDefault("solver.timeout", c.Solver.Timeout)
}

// Validate rejects unknown contract actions and non-positive bounds.
func (c *Config) Validate() error {
	for i, a := range c.Contracts {
		if a.Name == "" {
			return &Error{Field: fmt.Sprintf("contracts[%d].name", i), Message: "must not be empty"}
		}
		if !contract.ValidAction(contract.Action(a.Kind)) {
			return &Error{Field: fmt.Sprintf("contracts[%d].kind", i), Message: fmt.Sprintf("unknown contract kind %q", a.Kind)}
		}
	}
	for name := range c.Rules {
		if _, ok := ruleNames[strings.ToLower(name)]; !ok && !codePattern.MatchString(name) {
			return &Error{Field: "rules." + name, Message: "unknown rule"}
		}
	}
	if c.Analysis.MaxLoopIterations <= 0 {
		return &Error{Field: "analysis.max_loop_iterations", Message: "must be positive"}
	}
	if c.Analysis.MaxFixpointIterations <= 0 {
		return &Error{Field: "analysis.max_fixpoint_iterations", Message: "must be positive"}
	}
	if c.Analysis.Workers < 0 {
		return &Error{Field: "analysis.workers", Message: "must not be negative"}
	}
	if c.Solver.Enabled && c.Solver.Timeout <= 0 {
		return &Error{Field: "solver.timeout", Message: "must be positive"}
	}
	return nil
}

// Patterns returns the decorator patterns of the run: deal's own plus the
// configured aliases.
func (c *Config) Patterns() contract.Patterns {
	p := contract.DefaultPatterns()
	for _, a := range c.Contracts {
		p[a.Name] = contract.Action(a.Kind)
	}
	return p
}

// Write stores the configuration as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

var codePattern = regexp.MustCompile(`^DEAL\d{3}$`)

// ruleNames maps lower-cased kind names to their spelling.
var ruleNames = func() map[string]string {
	out := map[string]string{}
	for _, k := range matcher.Kinds() {
		out[strings.ToLower(k.String())] = k.String()
	}
	for _, k := range []string{report.KindParseError, report.KindMalformedContract, report.KindCycleNotConverged} {
		out[strings.ToLower(k)] = k
	}
	return out
}()

// normalizeRules restores the spelling of rule keys, which the file
// overlay lower-cases.
func normalizeRules(rules map[string]tt.ConfigRule) map[string]tt.ConfigRule {
	if len(rules) == 0 {
		return rules
	}
	out := make(map[string]tt.ConfigRule, len(rules))
	for k, r := range rules {
		if name, ok := ruleNames[strings.ToLower(k)]; ok {
			out[name] = r
			continue
		}
		out[strings.ToUpper(k)] = r
	}
	return out
}
