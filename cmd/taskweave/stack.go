package main

import (
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/taskweave/taskweave/internal/allocator"
	"github.com/taskweave/taskweave/internal/analyzer"
	"github.com/taskweave/taskweave/internal/backend"
	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/conflict"
	"github.com/taskweave/taskweave/internal/coordinator"
	"github.com/taskweave/taskweave/internal/distributor"
	"github.com/taskweave/taskweave/internal/metrics"
	"github.com/taskweave/taskweave/internal/registry"
	"github.com/taskweave/taskweave/internal/store"
)

// stack bundles the wired scheduling components for one CLI invocation.
type stack struct {
	cfg           *config.Config
	db            *store.DB
	registry      *registry.Registry
	coordinator   *coordinator.Coordinator
	engine        *distributor.Engine
	providersFile string
}

// openStore opens and migrates the database named by the config.
func openStore(cfg *config.Config) (*store.DB, error) {
	path := cfg.Storage.Path
	if path == "" {
		path = store.DefaultDBPath()
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// buildRegistry creates the provider registry and loads the inventory file
// when one exists.
func buildRegistry(cfg *config.Config) (*registry.Registry, string, error) {
	r := registry.New()
	r.SetResetCycle(cfg.Providers.ResetCycle)
	r.SetHealthTimeout(cfg.Providers.HealthResetTimeout)

	path := cfg.Providers.File
	if path == "" {
		path = config.DefaultProvidersPath()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := r.LoadFile(path, nil); err != nil {
			return nil, "", fmt.Errorf("load providers from %s: %w", path, err)
		}
	}
	return r, path, nil
}

// buildStack wires the full coordinator from configuration. The caller closes
// the returned stack's database.
func buildStack(cfg *config.Config) (*stack, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	reg, provPath, err := buildRegistry(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(reg.List()) == 0 {
		db.Close()
		return nil, fmt.Errorf("no providers configured; add them to %s or run 'taskweave providers --help'",
			providersPath(cfg))
	}

	apiKey, err := config.GetAPIKey(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	be, err := backend.NewAnthropic(backend.AnthropicConfig{
		APIKey: apiKey,
		Model:  anthropic.Model(cfg.Anthropic.Model),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create backend: %w", err)
	}

	anlz := analyzer.New()
	engine := distributor.NewEngine(anlz, nil, db, distributor.DefaultConfig())

	coord := coordinator.New(coordinator.Deps{
		Store:    db,
		Alloc:    allocator.New(cfg.Resources.Capacity(), db),
		Registry: reg,
		Resolver: conflict.NewResolver(db),
		Engine:   engine,
		Backend:  backend.WithTimeout(be, cfg.Scheduler.TaskTimeout),
		Metrics:  metrics.New(nil),
	}, coordinator.Config{
		MaxConcurrent:  cfg.Scheduler.MaxConcurrent,
		MaxRetries:     cfg.Scheduler.MaxRetries,
		AllocRetries:   cfg.Scheduler.AllocRetries,
		RetryBaseDelay: cfg.Scheduler.RetryBaseDelay,
	})

	return &stack{
		cfg:           cfg,
		db:            db,
		registry:      reg,
		coordinator:   coord,
		engine:        engine,
		providersFile: provPath,
	}, nil
}

func providersPath(cfg *config.Config) string {
	if cfg.Providers.File != "" {
		return cfg.Providers.File
	}
	return config.DefaultProvidersPath()
}
