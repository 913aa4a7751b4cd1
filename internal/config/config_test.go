package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskweave/taskweave/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Scheduler.MaxConcurrent != 4 {
		t.Errorf("expected max_concurrent 4, got %d", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Scheduler.MaxRetries != 3 {
		t.Errorf("expected max_retries 3, got %d", cfg.Scheduler.MaxRetries)
	}
	if cfg.Scheduler.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("expected retry_base_delay 500ms, got %v", cfg.Scheduler.RetryBaseDelay)
	}
	if cfg.Resources.TokenBudget != 2_000_000 {
		t.Errorf("expected token budget 2000000, got %d", cfg.Resources.TokenBudget)
	}
	if cfg.Providers.ResetCycle != 24*time.Hour {
		t.Errorf("expected reset_cycle 24h, got %v", cfg.Providers.ResetCycle)
	}
	if !cfg.Providers.Watch {
		t.Error("expected providers.watch to default on")
	}
	if cfg.Storage.RetainDays != 30 {
		t.Errorf("expected retain_days 30, got %d", cfg.Storage.RetainDays)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  model: claude-sonnet-4
scheduler:
  max_concurrent: 8
  max_retries: 2
  retry_base_delay: 250ms
  task_timeout: 5m
resources:
  cpu_millicores: 8000
  memory_mb: 32768
  token_budget: 500000
providers:
  file: /etc/taskweave/providers.yaml
  watch: false
  reset_cycle: 1h
storage:
  path: /var/lib/taskweave/taskweave.db
  retain_days: 7
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.Model != "claude-sonnet-4" {
		t.Errorf("expected model 'claude-sonnet-4', got %q", cfg.Anthropic.Model)
	}
	if cfg.Scheduler.MaxConcurrent != 8 {
		t.Errorf("expected max_concurrent 8, got %d", cfg.Scheduler.MaxConcurrent)
	}
	if cfg.Scheduler.RetryBaseDelay != 250*time.Millisecond {
		t.Errorf("expected retry_base_delay 250ms, got %v", cfg.Scheduler.RetryBaseDelay)
	}
	if cfg.Scheduler.TaskTimeout != 5*time.Minute {
		t.Errorf("expected task_timeout 5m, got %v", cfg.Scheduler.TaskTimeout)
	}
	if cfg.Resources.TokenBudget != 500_000 {
		t.Errorf("expected token budget 500000, got %d", cfg.Resources.TokenBudget)
	}
	if cfg.Providers.File != "/etc/taskweave/providers.yaml" {
		t.Errorf("unexpected providers file %q", cfg.Providers.File)
	}
	if cfg.Providers.Watch {
		t.Error("expected providers.watch false")
	}
	if cfg.Providers.ResetCycle != time.Hour {
		t.Errorf("expected reset_cycle 1h, got %v", cfg.Providers.ResetCycle)
	}
	if cfg.Storage.RetainDays != 7 {
		t.Errorf("expected retain_days 7, got %d", cfg.Storage.RetainDays)
	}

	// Unset sections keep their defaults.
	if cfg.Scheduler.AllocRetries != 5 {
		t.Errorf("expected default alloc_retries 5, got %d", cfg.Scheduler.AllocRetries)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestAPIKeyEnvExpansion(t *testing.T) {
	t.Setenv("TW_TEST_KEY", "sk-ant-expanded")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
anthropic:
  api_key: ${TW_TEST_KEY}
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-expanded" {
		t.Errorf("expected expanded key, got %q", cfg.Anthropic.APIKey)
	}
}

func TestResourcesCapacity(t *testing.T) {
	r := ResourcesConfig{CPUMillicores: 1000, MemoryMB: 2048, TokenBudget: 50_000}
	cap := r.Capacity()

	if cap[models.ResourceCPU] != 1000 {
		t.Errorf("cpu capacity = %d, want 1000", cap[models.ResourceCPU])
	}
	if cap[models.ResourceMemory] != 2048 {
		t.Errorf("memory capacity = %d, want 2048", cap[models.ResourceMemory])
	}
	if cap[models.ResourceTokens] != 50_000 {
		t.Errorf("token capacity = %d, want 50000", cap[models.ResourceTokens])
	}
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg := Default()
	cfg.Scheduler.MaxConcurrent = 2
	cfg.Storage.RetainDays = 14

	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFromPath(filepath.Join(tmpDir, "taskweave", "config.yaml"))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Scheduler.MaxConcurrent != 2 {
		t.Errorf("expected saved max_concurrent 2, got %d", loaded.Scheduler.MaxConcurrent)
	}
	if loaded.Storage.RetainDays != 14 {
		t.Errorf("expected saved retain_days 14, got %d", loaded.Storage.RetainDays)
	}
}
