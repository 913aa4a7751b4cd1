package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/registry"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the configured provider inventory",
	Long: `Load and display the provider inventory file.

The inventory is a YAML file listing quota-limited execution providers:

  providers:
    - id: sonnet-primary
      model: claude-sonnet-4-20250514
      credential_ref: ANTHROPIC_API_KEY
      quota_limit: 2000000
      cost_per_unit: 0.000009
    - id: haiku-overflow
      model: claude-haiku-3-5
      quota_limit: 5000000
      cost_per_unit: 0.0000016
      active: false

Its location comes from providers.file in the config, defaulting to
providers.yaml next to the user config file. The inventory is hot-reloaded
while 'taskweave submit' runs.`,
	RunE: runProviders,
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	path := providersPath(cfg)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("No provider inventory at %s\n", path)
		fmt.Println("Create one; see 'taskweave providers --help' for the format.")
		return nil
	}

	reg := registry.New()
	reg.SetResetCycle(cfg.Providers.ResetCycle)
	if _, err := reg.LoadFile(path, nil); err != nil {
		return fmt.Errorf("load providers from %s: %w", path, err)
	}

	providers := reg.List()
	fmt.Printf("Providers from %s:\n\n", path)
	fmt.Printf("%-16s %-26s %12s %14s %8s\n", "ID", "MODEL", "QUOTA", "COST/UNIT", "ACTIVE")
	for _, p := range providers {
		active := color.GreenString("yes")
		if !p.Active {
			active = color.RedString("no")
		}
		fmt.Printf("%-16s %-26s %12s %14s %8s\n",
			p.ID,
			truncate(p.Model, 26),
			formatNumber(p.QuotaLimit),
			fmt.Sprintf("$%.7f", p.CostPerUnit),
			active)
	}
	return nil
}
