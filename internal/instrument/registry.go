// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package instrument

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/webpdtool/internal/log"
)

// InstrumentConfig is one registry row from instruments.yaml.
type InstrumentConfig struct {
	ID       string            `yaml:"id"`
	Driver   string            `yaml:"driver"` // scpi | serial | ssh | chassis | fake
	Model    string            `yaml:"model,omitempty"`
	Address  string            `yaml:"address,omitempty"` // host:port for scpi/ssh
	Port     string            `yaml:"port,omitempty"`    // device path for serial
	Baud     int               `yaml:"baud,omitempty"`
	User     string            `yaml:"user,omitempty"`
	Password string            `yaml:"password,omitempty"`
	Options  map[string]string `yaml:"options,omitempty"`
}

type registryFile struct {
	Instruments []InstrumentConfig `yaml:"instruments"`
}

// Factory constructs a driver from its registry row.
type Factory func(cfg InstrumentConfig) (Driver, error)

// FileRegistry is a DriverRegistry backed by a YAML file. The file is
// re-read on change (fsnotify); already-connected drivers keep their old
// configuration until the next reconnect.
type FileRegistry struct {
	path    string
	factory Factory

	mu      sync.RWMutex
	configs map[string]InstrumentConfig
}

// NewFileRegistry loads the registry file and returns the registry.
func NewFileRegistry(path string, factory Factory) (*FileRegistry, error) {
	r := &FileRegistry{path: path, factory: factory, configs: map[string]InstrumentConfig{}}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRegistry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("instrument registry: read %s: %w", r.path, err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("instrument registry: parse %s: %w", r.path, err)
	}

	configs := make(map[string]InstrumentConfig, len(file.Instruments))
	for _, cfg := range file.Instruments {
		if cfg.ID == "" {
			return fmt.Errorf("instrument registry: entry without id in %s", r.path)
		}
		if _, dup := configs[cfg.ID]; dup {
			return fmt.Errorf("instrument registry: duplicate id %q", cfg.ID)
		}
		configs[cfg.ID] = cfg
	}

	r.mu.Lock()
	r.configs = configs
	r.mu.Unlock()

	log.WithComponent("instrument").Info().
		Str("event", "registry.loaded").
		Str(log.FieldPath, r.path).
		Int("instruments", len(configs)).
		Msg("instrument registry loaded")
	return nil
}

// Watch re-reads the registry file whenever it changes, until done closes.
// A broken edit keeps the previous registry and logs the parse error.
func (r *FileRegistry) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("instrument registry: watcher: %w", err)
	}
	if err := watcher.Add(r.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("instrument registry: watch %s: %w", r.path, err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		logger := log.WithComponent("instrument")
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.reload(); err != nil {
					logger.Error().Err(err).
						Str("event", "registry.reload_failed").
						Msg("keeping previous instrument registry")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("instrument registry watcher error")
			}
		}
	}()
	return nil
}

// Lookup returns the configuration for an instrument id.
func (r *FileRegistry) Lookup(id string) (InstrumentConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	return cfg, ok
}

// IDs lists the configured instrument ids, sorted.
func (r *FileRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New constructs a driver for the given instrument id.
func (r *FileRegistry) New(instrumentID string) (Driver, error) {
	cfg, ok := r.Lookup(instrumentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, instrumentID)
	}
	return r.factory(cfg)
}

var _ DriverRegistry = (*FileRegistry)(nil)
