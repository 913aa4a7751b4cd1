package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify taskweave configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/taskweave/config.yaml
Project-specific overrides can be placed in .taskweave.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

func displayAllConfig(cfg *config.Config) {
	fmt.Printf("Configuration (%s):\n\n", config.GetUserConfigPath())
	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("Project overrides: %s\n\n", project)
	}

	fmt.Printf("anthropic.api_key                %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model                  %s\n", orUnset(cfg.Anthropic.Model))
	fmt.Printf("scheduler.max_concurrent         %d\n", cfg.Scheduler.MaxConcurrent)
	fmt.Printf("scheduler.max_retries            %d\n", cfg.Scheduler.MaxRetries)
	fmt.Printf("scheduler.alloc_retries          %d\n", cfg.Scheduler.AllocRetries)
	fmt.Printf("scheduler.retry_base_delay       %s\n", cfg.Scheduler.RetryBaseDelay)
	fmt.Printf("scheduler.task_timeout           %s\n", cfg.Scheduler.TaskTimeout)
	fmt.Printf("resources.cpu_millicores         %d\n", cfg.Resources.CPUMillicores)
	fmt.Printf("resources.memory_mb              %d\n", cfg.Resources.MemoryMB)
	fmt.Printf("resources.token_budget           %d\n", cfg.Resources.TokenBudget)
	fmt.Printf("providers.file                   %s\n", orUnset(cfg.Providers.File))
	fmt.Printf("providers.watch                  %t\n", cfg.Providers.Watch)
	fmt.Printf("providers.reset_cycle            %s\n", cfg.Providers.ResetCycle)
	fmt.Printf("providers.health_reset_timeout   %s\n", cfg.Providers.HealthResetTimeout)
	fmt.Printf("storage.path                     %s\n", orUnset(cfg.Storage.Path))
	fmt.Printf("storage.retain_days              %d\n", cfg.Storage.RetainDays)
}

func orUnset(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

func displayConfigKey(cfg *config.Config, key string) {
	switch key {
	case "anthropic.api_key":
		fmt.Println(config.MaskAPIKey(cfg.Anthropic.APIKey))
	case "anthropic.model":
		fmt.Println(orUnset(cfg.Anthropic.Model))
	case "scheduler.max_concurrent":
		fmt.Println(cfg.Scheduler.MaxConcurrent)
	case "scheduler.max_retries":
		fmt.Println(cfg.Scheduler.MaxRetries)
	case "scheduler.alloc_retries":
		fmt.Println(cfg.Scheduler.AllocRetries)
	case "scheduler.retry_base_delay":
		fmt.Println(cfg.Scheduler.RetryBaseDelay)
	case "scheduler.task_timeout":
		fmt.Println(cfg.Scheduler.TaskTimeout)
	case "resources.cpu_millicores":
		fmt.Println(cfg.Resources.CPUMillicores)
	case "resources.memory_mb":
		fmt.Println(cfg.Resources.MemoryMB)
	case "resources.token_budget":
		fmt.Println(cfg.Resources.TokenBudget)
	case "providers.file":
		fmt.Println(orUnset(cfg.Providers.File))
	case "providers.watch":
		fmt.Println(cfg.Providers.Watch)
	case "providers.reset_cycle":
		fmt.Println(cfg.Providers.ResetCycle)
	case "providers.health_reset_timeout":
		fmt.Println(cfg.Providers.HealthResetTimeout)
	case "storage.path":
		fmt.Println(orUnset(cfg.Storage.Path))
	case "storage.retain_days":
		fmt.Println(cfg.Storage.RetainDays)
	default:
		fmt.Fprintf(os.Stderr, "Unknown configuration key: %s\n", key)
		os.Exit(1)
	}
}

func setConfigKey(cfg *config.Config, key, value string) {
	var err error
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "scheduler.max_concurrent":
		cfg.Scheduler.MaxConcurrent, err = strconv.Atoi(value)
	case "scheduler.max_retries":
		cfg.Scheduler.MaxRetries, err = strconv.Atoi(value)
	case "scheduler.alloc_retries":
		cfg.Scheduler.AllocRetries, err = strconv.Atoi(value)
	case "scheduler.retry_base_delay":
		cfg.Scheduler.RetryBaseDelay, err = time.ParseDuration(value)
	case "scheduler.task_timeout":
		cfg.Scheduler.TaskTimeout, err = time.ParseDuration(value)
	case "resources.cpu_millicores":
		cfg.Resources.CPUMillicores, err = strconv.ParseInt(value, 10, 64)
	case "resources.memory_mb":
		cfg.Resources.MemoryMB, err = strconv.ParseInt(value, 10, 64)
	case "resources.token_budget":
		cfg.Resources.TokenBudget, err = strconv.ParseInt(value, 10, 64)
	case "providers.file":
		cfg.Providers.File = value
	case "providers.watch":
		cfg.Providers.Watch, err = strconv.ParseBool(value)
	case "providers.reset_cycle":
		cfg.Providers.ResetCycle, err = time.ParseDuration(value)
	case "providers.health_reset_timeout":
		cfg.Providers.HealthResetTimeout, err = time.ParseDuration(value)
	case "storage.path":
		cfg.Storage.Path = value
	case "storage.retain_days":
		cfg.Storage.RetainDays, err = strconv.Atoi(value)
	default:
		fmt.Fprintf(os.Stderr, "Unknown configuration key: %s\n", key)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid value for %s: %v\n", key, err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Set %s = %s\n", key, value)
}
