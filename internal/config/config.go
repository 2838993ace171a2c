// Package config loads and validates gatherer configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/JakeFAU/dirgather/internal/external"
	"github.com/JakeFAU/dirgather/internal/pipeline"
	"github.com/JakeFAU/dirgather/internal/workpool"
)

// EnvPrefix prefixes every environment override, e.g. DIRGATHER_GATHER_DNS_SERVER.
const EnvPrefix = "DIRGATHER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Gather    GatherConfig    `mapstructure:"gather"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Status    StatusConfig    `mapstructure:"status"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Commands  CommandsConfig  `mapstructure:"commands"`
}

// GatherConfig mirrors pipeline.Config.
type GatherConfig struct {
	StorageURL       string   `mapstructure:"storage_url" validate:"required"`
	WorkDir          string   `mapstructure:"work_dir"`
	DirectoryURL     string   `mapstructure:"directory_url"`
	DataURL          string   `mapstructure:"data_url"`
	DatasetID        string   `mapstructure:"dataset_id"`
	GraphID          string   `mapstructure:"graph_id"`
	DirectoryWorkers int      `mapstructure:"directory_workers" validate:"gte=1"`
	DataWorkers      int      `mapstructure:"data_workers" validate:"gte=1"`
	EdgeWorkers      int      `mapstructure:"edge_workers" validate:"gte=0"`
	ShareEnum        bool     `mapstructure:"share_enum"`
	ShareDepth       int      `mapstructure:"share_depth" validate:"gte=1"`
	ShareCategories  []string `mapstructure:"share_categories" validate:"min=1,dive,oneof=all shares sessions localgroups finger"`
	CalcEdges        bool     `mapstructure:"calc_edges"`
	DNSServer        string   `mapstructure:"dns_server"`
	ShowProgress     bool     `mapstructure:"show_progress"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// StatusConfig controls the optional status HTTP server.
type StatusConfig struct {
	// Addr is host:port to listen on; empty disables the server.
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
}

// LedgerConfig controls the run ledger.
type LedgerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DSN selects a Postgres ledger; empty keeps the ledger in memory.
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// CommandsConfig names the executables implementing each phase.
type CommandsConfig struct {
	Directory CommandConfig `mapstructure:"directory"`
	Data      CommandConfig `mapstructure:"data"`
	Shares    CommandConfig `mapstructure:"shares"`
	Edges     CommandConfig `mapstructure:"edges"`
}

// CommandConfig is one phase command. An empty path leaves the phase unset.
type CommandConfig struct {
	Path string   `mapstructure:"path"`
	Args []string `mapstructure:"args"`
	Dir  string   `mapstructure:"dir"`
	Env  []string `mapstructure:"env"`
}

// New returns a Viper instance with defaults and environment overrides wired.
// Callers may bind flags into it before calling LoadFrom.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadFrom(New(), path)
}

// LoadFrom reads the optional file at path into v and decodes it.
func LoadFrom(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gather.storage_url", "")
	v.SetDefault("gather.work_dir", ".")
	v.SetDefault("gather.directory_url", "")
	v.SetDefault("gather.data_url", "")
	v.SetDefault("gather.dataset_id", "")
	v.SetDefault("gather.graph_id", "")
	v.SetDefault("gather.directory_workers", pipeline.DefaultDirectoryWorkers)
	v.SetDefault("gather.data_workers", pipeline.DefaultDataWorkers)
	v.SetDefault("gather.edge_workers", 0)
	v.SetDefault("gather.share_enum", false)
	v.SetDefault("gather.share_depth", pipeline.DefaultShareDepth)
	v.SetDefault("gather.share_categories", []string{pipeline.ShareCategoryAll})
	v.SetDefault("gather.calc_edges", true)
	v.SetDefault("gather.dns_server", "")
	v.SetDefault("gather.show_progress", true)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("status.addr", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "dirgather")
	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.max_conns", 4)
	for _, phase := range []string{"directory", "data", "shares", "edges"} {
		v.SetDefault("commands."+phase+".path", "")
		v.SetDefault("commands."+phase+".args", []string{})
		v.SetDefault("commands."+phase+".dir", "")
		v.SetDefault("commands."+phase+".env", []string{})
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%s failed %q validation", fieldPath(fe.Namespace()), fe.Tag())
		}
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Status.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Status.Addr); err != nil {
			return fmt.Errorf("status.addr must be host:port: %w", err)
		}
	}
	return nil
}

// fieldPath turns "Config.Gather.StorageURL" into "gather.storage_url".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Pipeline converts the gather section into a pipeline.Config. A worker pool
// is created for the edge phase when edge computation is enabled.
func (c Config) Pipeline() pipeline.Config {
	g := c.Gather
	cfg := pipeline.Config{
		StorageURL:       g.StorageURL,
		WorkDir:          g.WorkDir,
		DirectoryURL:     g.DirectoryURL,
		DataURL:          g.DataURL,
		DatasetID:        g.DatasetID,
		GraphID:          g.GraphID,
		DirectoryWorkers: g.DirectoryWorkers,
		DataWorkers:      g.DataWorkers,
		ShareEnum:        g.ShareEnum,
		ShareDepth:       g.ShareDepth,
		ShareCategories:  append([]string(nil), g.ShareCategories...),
		CalcEdges:        g.CalcEdges,
		DNSServer:        g.DNSServer,
		ShowProgress:     g.ShowProgress,
	}
	if g.CalcEdges {
		cfg.Pool = workpool.New(g.EdgeWorkers)
	}
	return cfg
}

// External converts the commands section into an external.Config.
func (c Config) External() external.Config {
	conv := func(cc CommandConfig) external.Command {
		return external.Command{
			Path: cc.Path,
			Args: append([]string(nil), cc.Args...),
			Dir:  cc.Dir,
			Env:  append([]string(nil), cc.Env...),
		}
	}
	return external.Config{
		Directory: conv(c.Commands.Directory),
		Data:      conv(c.Commands.Data),
		Shares:    conv(c.Commands.Shares),
		Edges:     conv(c.Commands.Edges),
	}
}
