package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/taskweave/taskweave/pkg/models"
)

// providerFile is the on-disk shape of the provider inventory.
type providerFile struct {
	Providers []providerSpec `yaml:"providers"`
}

// providerSpec is one provider entry as configured by the operator.
type providerSpec struct {
	ID            string  `yaml:"id"`
	Model         string  `yaml:"model"`
	CredentialRef string  `yaml:"credential_ref"`
	QuotaLimit    int64   `yaml:"quota_limit"`
	CostPerUnit   float64 `yaml:"cost_per_unit"`
	Active        *bool   `yaml:"active"`
}

// LoadFile reads a provider inventory file and upserts every entry. Providers
// previously loaded from the file but absent from the new contents are
// removed; providers registered through the API are untouched. Returns the
// set of IDs now managed by the file.
func (r *Registry) LoadFile(path string, prev map[string]bool) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider file: %w", err)
	}

	var pf providerFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse provider file %s: %w", path, err)
	}

	loaded := make(map[string]bool, len(pf.Providers))
	for i, spec := range pf.Providers {
		if spec.ID == "" {
			return nil, fmt.Errorf("provider entry %d in %s has no id", i, path)
		}
		if spec.QuotaLimit <= 0 {
			return nil, fmt.Errorf("provider %s: quota_limit must be positive", spec.ID)
		}
		active := true
		if spec.Active != nil {
			active = *spec.Active
		}
		r.Upsert(models.Provider{
			ID:            spec.ID,
			Model:         spec.Model,
			CredentialRef: spec.CredentialRef,
			QuotaLimit:    spec.QuotaLimit,
			CostPerUnit:   spec.CostPerUnit,
			Active:        active,
		})
		loaded[spec.ID] = true
	}

	for id := range prev {
		if !loaded[id] {
			r.Remove(id)
			log.Printf("[registry] provider %s removed from inventory", id)
		}
	}
	return loaded, nil
}

// Watch reloads the provider inventory whenever the file changes. It blocks
// until the context is cancelled. Editors that rename-replace on save are
// handled by watching the parent directory.
func (r *Registry) Watch(ctx context.Context, path string) error {
	managed, err := r.LoadFile(path, nil)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			next, err := r.LoadFile(path, managed)
			if err != nil {
				// Keep serving the last good inventory.
				log.Printf("[registry] reload failed, keeping previous inventory: %v", err)
				continue
			}
			managed = next
			log.Printf("[registry] provider inventory reloaded, %d entries", len(next))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[registry] watch error: %v", err)
		}
	}
}
