package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JakeFAU/dirgather/internal/pipeline"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
gather:
  storage_url: postgres://gather@db/gather
  work_dir: /var/lib/dirgather
  directory_url: ldap+ntlm-password://CORP\svc:pw@10.0.0.5
  data_url: smb+ntlm-password://CORP\svc:pw@10.0.0.5
  directory_workers: 8
  data_workers: 50
  edge_workers: 3
  share_enum: true
  share_depth: 2
  share_categories: [shares, sessions]
  dns_server: 10.0.0.53
  show_progress: false
logging:
  development: true
  level: debug
status:
  addr: 127.0.0.1:9090
ledger:
  enabled: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	g := cfg.Gather
	if g.DirectoryWorkers != 8 || g.DataWorkers != 50 || g.EdgeWorkers != 3 {
		t.Fatalf("expected worker overrides to apply: %+v", g)
	}
	if !g.ShareEnum || g.ShareDepth != 2 || strings.Join(g.ShareCategories, ",") != "shares,sessions" {
		t.Fatalf("expected share overrides to apply: %+v", g)
	}
	if !g.CalcEdges {
		t.Fatal("calc_edges should keep its default")
	}
	if g.ShowProgress {
		t.Fatal("show_progress should be overridden")
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}

	pc := cfg.Pipeline()
	if pc.DNSServer != "10.0.0.53" || pc.StorageURL != "postgres://gather@db/gather" {
		t.Fatalf("pipeline config not mapped: %+v", pc)
	}
	if pc.Pool == nil || pc.Pool.Size() != 3 {
		t.Fatalf("expected an edge pool of size 3, got %+v", pc.Pool)
	}
	if err := pc.Validate(); err != nil {
		t.Fatalf("mapped pipeline config should validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DIRGATHER_GATHER_STORAGE_URL", "sqlite:///tmp/gather.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	g := cfg.Gather
	if g.DirectoryWorkers != pipeline.DefaultDirectoryWorkers || g.DataWorkers != pipeline.DefaultDataWorkers {
		t.Fatalf("unexpected worker defaults: %+v", g)
	}
	if g.ShareDepth != 1 || len(g.ShareCategories) != 1 || g.ShareCategories[0] != "all" {
		t.Fatalf("unexpected share defaults: %+v", g)
	}
	if !g.CalcEdges || !g.ShowProgress || g.ShareEnum {
		t.Fatalf("unexpected flag defaults: %+v", g)
	}
	if g.WorkDir != "." {
		t.Fatalf("expected work_dir default '.', got %q", g.WorkDir)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DIRGATHER_GATHER_STORAGE_URL", "sqlite:///tmp/gather.db")
	t.Setenv("DIRGATHER_GATHER_DATASET_ID", "42")
	t.Setenv("DIRGATHER_GATHER_CALC_EDGES", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gather.DatasetID != "42" || cfg.Gather.CalcEdges {
		t.Fatalf("env overrides not applied: %+v", cfg.Gather)
	}
	if cfg.Pipeline().Pool != nil {
		t.Fatal("no pool expected when edges are disabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Gather: GatherConfig{
			StorageURL:       "sqlite:///tmp/gather.db",
			DirectoryWorkers: 4,
			DataWorkers:      100,
			ShareDepth:       1,
			ShareCategories:  []string{"all"},
		},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing storage", mutate: func(c *Config) { c.Gather.StorageURL = "" }, want: "gather.storage_url"},
		{name: "zero workers", mutate: func(c *Config) { c.Gather.DataWorkers = 0 }, want: "gather.data_workers"},
		{name: "unknown category", mutate: func(c *Config) { c.Gather.ShareCategories = []string{"all", "printers"} }, want: "gather.share_categories[1]"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
		{name: "service name", mutate: func(c *Config) { c.Telemetry.Enabled = true }, want: "telemetry.service_name"},
		{name: "status addr", mutate: func(c *Config) { c.Status.Addr = "9090" }, want: "status.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Gather.ShareCategories = append([]string(nil), base.Gather.ShareCategories...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFieldPath(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Config.Gather.StorageURL": "gather.storage_url",
		"Config.Gather.DNSServer":  "gather.dns_server",
		"Config.Ledger.MaxConns":   "ledger.max_conns",
	}
	for in, want := range cases {
		if got := fieldPath(in); got != want {
			t.Errorf("fieldPath(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestLoadCommands(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
gather:
  storage_url: postgres://gather@db/gather
commands:
  directory:
    path: /opt/gather/dir-enum
    args: [--json]
    env: [GATHER_MODE=fast]
  edges:
    path: /opt/gather/edges
    dir: /var/tmp
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ext := cfg.External()
	if ext.Directory.Path != "/opt/gather/dir-enum" || strings.Join(ext.Directory.Args, " ") != "--json" {
		t.Fatalf("directory command not mapped: %+v", ext.Directory)
	}
	if len(ext.Directory.Env) != 1 || ext.Directory.Env[0] != "GATHER_MODE=fast" {
		t.Fatalf("directory env not mapped: %+v", ext.Directory.Env)
	}
	if ext.Edges.Dir != "/var/tmp" || !ext.Edges.Configured() {
		t.Fatalf("edge command not mapped: %+v", ext.Edges)
	}
	if ext.Data.Configured() || ext.Shares.Configured() {
		t.Fatal("unset commands must stay unconfigured")
	}
}
