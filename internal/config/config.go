package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"demoreel/internal/analysis"
	"demoreel/internal/jsonpath"
	"demoreel/internal/protocol"
)

type Config struct {
	SourceIdentity   string             `yaml:"source_identity"`
	HistoryCap       int                `yaml:"history_cap"`
	TraceKeep        analysis.TraceKeep `yaml:"trace_keep"`
	SkipSelfDamage   bool               `yaml:"skip_self_damage"`
	ValidateMessages bool               `yaml:"validate_messages"`

	Unspool UnspoolConfig `yaml:"unspool"`
	Output  OutputConfig  `yaml:"output"`
	Server  ServerConfig  `yaml:"server"`
}

type UnspoolConfig struct {
	Path     string `yaml:"path"`
	TickFreq uint32 `yaml:"tick_freq"`
}

type OutputConfig struct {
	DB      string `yaml:"db"`
	Dir     string `yaml:"dir"`
	PlotDir string `yaml:"plot_dir"`
}

type ServerConfig struct {
	Addr         string          `yaml:"addr"`
	CORSOrigins  []string        `yaml:"cors_origins"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		HistoryCap: analysis.DefaultHistoryCap,
		TraceKeep:  analysis.TraceKeepAuto,
		Unspool:    UnspoolConfig{TickFreq: 1},
		Output: OutputConfig{
			DB:  "data/demoreel.db",
			Dir: "data/out",
		},
		Server: ServerConfig{
			Addr: ":8080",
			CORSOrigins: []string{
				"http://localhost:*",
				"http://127.0.0.1:*",
			},
			RateLimit:    RateLimitConfig{RPS: 5, Burst: 10},
			MaxBodyBytes: 256 << 20,
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.SourceIdentity = strings.TrimSpace(c.SourceIdentity)
	c.Unspool.Path = strings.TrimSpace(c.Unspool.Path)
	c.TraceKeep = analysis.TraceKeep(strings.ToLower(strings.TrimSpace(string(c.TraceKeep))))
	if c.TraceKeep == "" {
		c.TraceKeep = analysis.TraceKeepAuto
	}
	if c.HistoryCap == 0 {
		c.HistoryCap = analysis.DefaultHistoryCap
	}
	if c.Unspool.TickFreq == 0 {
		c.Unspool.TickFreq = 1
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if c.HistoryCap < 0 || c.HistoryCap > analysis.MaxHistoryCap {
		return fmt.Errorf("history_cap must be in 1..%d", analysis.MaxHistoryCap)
	}
	if _, err := analysis.ParseTraceKeep(string(c.TraceKeep)); err != nil {
		return err
	}
	if _, err := jsonpath.ParseOptional(c.Unspool.Path); err != nil {
		return fmt.Errorf("unspool.path: %w", err)
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0")
	}
	if c.Server.RateLimit.RPS > 0 && c.Server.RateLimit.Burst == 0 {
		return fmt.Errorf("server.rate_limit.burst must be > 0 when rps is set")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0")
	}
	return nil
}

// Pipeline returns the analysis settings. Logger and Observer are left to the caller.
func (c Config) Pipeline() analysis.Config {
	return analysis.Config{
		SourceIdentity: c.SourceIdentity,
		HistoryCap:     c.HistoryCap,
		TraceKeep:      c.TraceKeep,
		SkipSelfDamage: c.SkipSelfDamage,
	}
}

// Validator returns the schema validator, or nil when validation is off.
func (c Config) Validator() (*protocol.Validator, error) {
	if !c.ValidateMessages {
		return nil, nil
	}
	return protocol.NewValidator()
}
