package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all factgraph configuration. It is built once by Load and
// passed down explicitly.
type Config struct {
	Workspace string         `yaml:"workspace"`
	Server    ServerConfig   `yaml:"server"`
	Database  DatabaseConfig `yaml:"database"`
	Schedule  ScheduleConfig `yaml:"schedule"`
	Log       LogConfig      `yaml:"log"`
	Prune     PruneConfig    `yaml:"prune"`
	Resolver  ResolverConfig `yaml:"resolver"`
}

type ServerConfig struct {
	Bind           string  `yaml:"bind"`
	Port           int     `yaml:"port"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig holds cron expressions for serve mode. Empty disables a job.
type ScheduleConfig struct {
	Decay string `yaml:"decay"`
	Prune string `yaml:"prune"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

type PruneConfig struct {
	PreviewLimit int `yaml:"preview_limit"`
}

type ResolverConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:           "127.0.0.1",
			Port:           37780,
			RateLimitRPS:   50,
			RateLimitBurst: 20,
		},
		Schedule: ScheduleConfig{
			Decay: "0 3 * * *",
			Prune: "30 3 * * *",
		},
		Log:      LogConfig{Level: "info"},
		Prune:    PruneConfig{PreviewLimit: 10},
		Resolver: ResolverConfig{CacheSize: 1024},
	}
}

// Load builds the configuration: defaults, then the YAML file (if given),
// then environment overrides. A .env file in the working directory (or the
// one named by FACTGRAPH_ENV) is loaded into the environment first; a
// missing .env is not an error, a missing config file is.
func Load(file string) (Config, error) {
	envFile := os.Getenv("FACTGRAPH_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	cfg := Default()
	if file != "" {
		data, err := os.ReadFile(ExpandHome(file))
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", file, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := firstEnv("FACTGRAPH_WORKSPACE", "OPENCLAW_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("FACTS_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("FACTGRAPH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FACTGRAPH_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("FACTGRAPH_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid FACTGRAPH_PORT %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("FACTGRAPH_RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps > 0 {
			c.Server.RateLimitRPS = rps
		}
	}
	if v := os.Getenv("FACTGRAPH_RATE_LIMIT_BURST"); v != "" {
		if burst, err := strconv.Atoi(v); err == nil && burst > 0 {
			c.Server.RateLimitBurst = burst
		}
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// LegacyDBPath returns the historical store location: ~/.openclaw/data/facts.db
func LegacyDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".openclaw", "data", "facts.db"), nil
}

// ResolveDBPath picks the store file: the explicit path, then the
// configured path (FACTS_DB), then <workspace>/memory/facts.db, then
// ./memory/facts.db if it exists, then the legacy location.
func (c *Config) ResolveDBPath(explicit string) (string, error) {
	if explicit != "" {
		return ExpandHome(explicit), nil
	}
	if c.Database.Path != "" {
		return ExpandHome(c.Database.Path), nil
	}
	if c.Workspace != "" {
		return filepath.Join(ExpandHome(c.Workspace), "memory", "facts.db"), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working dir: %w", err)
	}
	candidate := filepath.Join(cwd, "memory", "facts.db")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", candidate, err)
	}
	return LegacyDBPath()
}

// ResolveWorkspace picks the workspace root: the explicit path, then the
// configured one (FACTGRAPH_WORKSPACE / OPENCLAW_WORKSPACE), then the
// working directory.
func (c *Config) ResolveWorkspace(explicit string) (string, error) {
	ws := explicit
	if ws == "" {
		ws = c.Workspace
	}
	if ws == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(ExpandHome(ws))
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	return abs, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
