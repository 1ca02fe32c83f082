// Package config provides Viper-based configuration loading for the fight server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GRPCConfig holds the FightService listener settings.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// WebConfig holds the websocket event feed listener settings.
type WebConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// InsecureSkipVerify disables the websocket Origin check (development only).
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// Addr returns the "host:port" HTTP address.
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// FightConfig holds fight loop settings.
type FightConfig struct {
	// TickInterval is the real time between two countdown ticks.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// OutcomeTimeout bounds one call to the progression service.
	OutcomeTimeout time.Duration `mapstructure:"outcome_timeout"`
	// EventBuffer is the per-subscriber event channel capacity.
	EventBuffer int `mapstructure:"event_buffer"`
	// Seed, when non-zero, makes attack rolls deterministic (replays and load tests).
	Seed uint64 `mapstructure:"seed"`
}

// ContentConfig holds content file locations.
type ContentConfig struct {
	// DungeonsDir is the directory of dungeon YAML files. Empty = database only.
	DungeonsDir string `mapstructure:"dungeons_dir"`
	// ScriptsDir is the root of per-dungeon Lua scripts. Empty = scripting disabled.
	ScriptsDir string `mapstructure:"scripts_dir"`
	// ScriptInstructionLimit caps Lua opcodes per hook call; 0 uses the default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Web      WebConfig      `mapstructure:"web"`
	Fight    FightConfig    `mapstructure:"fight"`
	Content  ContentConfig  `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateListener("grpc", c.GRPC.Host, c.GRPC.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateListener("web", c.Web.Host, c.Web.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateFight(c.Fight); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Content.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("content.script_instruction_limit must be >= 0, got %d", c.Content.ScriptInstructionLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateListener(section, host string, port int) error {
	var errs []string
	if host == "" {
		errs = append(errs, fmt.Sprintf("%s.host must not be empty", section))
	}
	if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("%s.port must be 1-65535, got %d", section, port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateFight(f FightConfig) error {
	var errs []string
	if f.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("fight.tick_interval must be > 0, got %s", f.TickInterval))
	}
	if f.OutcomeTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("fight.outcome_timeout must be > 0, got %s", f.OutcomeTimeout))
	}
	if f.EventBuffer < 1 {
		errs = append(errs, fmt.Sprintf("fight.event_buffer must be >= 1, got %d", f.EventBuffer))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with CLICKER_ prefix
	v.SetEnvPrefix("CLICKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults installs every default on v. Exported for tools that build
// their own Viper instance.
func SetDefaults(v *viper.Viper) { setDefaults(v) }

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "clicker")
	v.SetDefault("database.password", "clicker")
	v.SetDefault("database.name", "clicker")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("web.host", "0.0.0.0")
	v.SetDefault("web.port", 8080)
	v.SetDefault("web.insecure_skip_verify", false)

	v.SetDefault("fight.tick_interval", "1s")
	v.SetDefault("fight.outcome_timeout", "5s")
	v.SetDefault("fight.event_buffer", 64)
	v.SetDefault("fight.seed", 0)

	v.SetDefault("content.dungeons_dir", "content/dungeons")
	v.SetDefault("content.scripts_dir", "")
	v.SetDefault("content.script_instruction_limit", 0)
}
