package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"demoreel/internal/analysis"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HistoryCap != analysis.DefaultHistoryCap || cfg.TraceKeep != analysis.TraceKeepAuto || cfg.Unspool.TickFreq != 1 {
		t.Fatalf("defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_RepoConfig(t *testing.T) {
	cfg, err := Load("../../configs/demoreel.yaml")
	if err != nil {
		t.Fatalf("load demoreel.yaml: %v", err)
	}
	if !cfg.ValidateMessages || cfg.Unspool.Path != "$.players[*]" || cfg.Server.RateLimit.Burst != 10 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	body := "source_identity: ' [U:1:82537314] '\ntrace_keep: ALL\nhistory_cap: 16\nskip_self_damage: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SourceIdentity != "[U:1:82537314]" || cfg.TraceKeep != analysis.TraceKeepAll || cfg.HistoryCap != 16 {
		t.Fatalf("config: %+v", cfg)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unset keys should keep defaults: %q", cfg.Server.Addr)
	}
	p := cfg.Pipeline()
	if p.SourceIdentity != cfg.SourceIdentity || !p.SkipSelfDamage || p.HistoryCap != 16 {
		t.Fatalf("pipeline config: %+v", p)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"trace_keep", func(c *Config) { c.TraceKeep = "sometimes" }, "trace_keep"},
		{"history_cap", func(c *Config) { c.HistoryCap = -1 }, "history_cap"},
		{"history_cap_max", func(c *Config) { c.HistoryCap = 200 }, "history_cap"},
		{"path", func(c *Config) { c.Unspool.Path = "$.players[" }, "unspool.path"},
		{"burst", func(c *Config) { c.Server.RateLimit.Burst = 0 }, "burst"},
		{"body", func(c *Config) { c.Server.MaxBodyBytes = 0 }, "max_body_bytes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mut(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidator_FollowsFlag(t *testing.T) {
	cfg := Defaults()
	cfg.ValidateMessages = false
	v, err := cfg.Validator()
	if err != nil || v != nil {
		t.Fatalf("disabled: v=%v err=%v", v, err)
	}
	cfg.ValidateMessages = true
	v, err = cfg.Validator()
	if err != nil || v == nil {
		t.Fatalf("enabled: v=%v err=%v", v, err)
	}
}
