// Package config handles configuration loading for taskweave.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/taskweave/taskweave/internal/allocator"
	"github.com/taskweave/taskweave/pkg/models"
)

// Config holds all configuration for taskweave.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// SchedulerConfig bounds concurrency and retries.
type SchedulerConfig struct {
	// MaxConcurrent caps simultaneously executing tasks.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MaxRetries caps execution attempts per task.
	MaxRetries int `mapstructure:"max_retries"`
	// AllocRetries caps admission attempts while pools are contended.
	AllocRetries int `mapstructure:"alloc_retries"`
	// RetryBaseDelay seeds the exponential backoff between attempts.
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	// TaskTimeout bounds a single backend execution; zero disables it.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// ResourcesConfig sizes the shared resource pools.
type ResourcesConfig struct {
	// CPUMillicores is the CPU pool size.
	CPUMillicores int64 `mapstructure:"cpu_millicores"`
	// MemoryMB is the memory pool size in megabytes.
	MemoryMB int64 `mapstructure:"memory_mb"`
	// TokenBudget is the shared token pool size.
	TokenBudget int64 `mapstructure:"token_budget"`
}

// Capacity converts the pool sizes into an allocator capacity map.
func (r ResourcesConfig) Capacity() allocator.Capacity {
	return allocator.Capacity{
		models.ResourceCPU:    r.CPUMillicores,
		models.ResourceMemory: r.MemoryMB,
		models.ResourceTokens: r.TokenBudget,
	}
}

// ProvidersConfig locates the provider inventory and its cycle settings.
type ProvidersConfig struct {
	// File is the provider inventory YAML; empty uses the user config dir.
	File string `mapstructure:"file"`
	// Watch enables hot reload of the inventory file.
	Watch bool `mapstructure:"watch"`
	// ResetCycle is the quota renewal period.
	ResetCycle time.Duration `mapstructure:"reset_cycle"`
	// HealthResetTimeout is how long a tripped provider stays excluded.
	HealthResetTimeout time.Duration `mapstructure:"health_reset_timeout"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	// Path is the database file; empty uses the XDG data dir.
	Path string `mapstructure:"path"`
	// RetainDays bounds how long terminal workflows are kept.
	RetainDays int `mapstructure:"retain_days"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.taskweave.yaml in current directory or parent)
// 3. User config (~/.config/taskweave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("scheduler.max_concurrent", cfg.Scheduler.MaxConcurrent)
	v.Set("scheduler.max_retries", cfg.Scheduler.MaxRetries)
	v.Set("scheduler.alloc_retries", cfg.Scheduler.AllocRetries)
	v.Set("scheduler.retry_base_delay", cfg.Scheduler.RetryBaseDelay.String())
	v.Set("scheduler.task_timeout", cfg.Scheduler.TaskTimeout.String())
	v.Set("resources.cpu_millicores", cfg.Resources.CPUMillicores)
	v.Set("resources.memory_mb", cfg.Resources.MemoryMB)
	v.Set("resources.token_budget", cfg.Resources.TokenBudget)
	v.Set("providers.file", cfg.Providers.File)
	v.Set("providers.watch", cfg.Providers.Watch)
	v.Set("providers.reset_cycle", cfg.Providers.ResetCycle.String())
	v.Set("providers.health_reset_timeout", cfg.Providers.HealthResetTimeout.String())
	v.Set("storage.path", cfg.Storage.Path)
	v.Set("storage.retain_days", cfg.Storage.RetainDays)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// DefaultProvidersPath returns where the provider inventory lives when the
// config does not name one.
func DefaultProvidersPath() string {
	return filepath.Join(getUserConfigDir(), "providers.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")

	v.SetDefault("scheduler.max_concurrent", 4)
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.alloc_retries", 5)
	v.SetDefault("scheduler.retry_base_delay", "500ms")
	v.SetDefault("scheduler.task_timeout", "15m")

	v.SetDefault("resources.cpu_millicores", 16000)
	v.SetDefault("resources.memory_mb", 65536)
	v.SetDefault("resources.token_budget", 2000000)

	v.SetDefault("providers.file", "")
	v.SetDefault("providers.watch", true)
	v.SetDefault("providers.reset_cycle", "24h")
	v.SetDefault("providers.health_reset_timeout", "60s")

	v.SetDefault("storage.path", "")
	v.SetDefault("storage.retain_days", 30)
}

// getUserConfigDir returns the XDG config directory for taskweave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskweave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskweave")
	}
	return filepath.Join(home, ".config", "taskweave")
}

// findProjectConfig searches for .taskweave.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".taskweave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxConcurrent:  4,
			MaxRetries:     3,
			AllocRetries:   5,
			RetryBaseDelay: 500 * time.Millisecond,
			TaskTimeout:    15 * time.Minute,
		},
		Resources: ResourcesConfig{
			CPUMillicores: 16000,
			MemoryMB:      65536,
			TokenBudget:   2_000_000,
		},
		Providers: ProvidersConfig{
			Watch:              true,
			ResetCycle:         24 * time.Hour,
			HealthResetTimeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			RetainDays: 30,
		},
	}
}
