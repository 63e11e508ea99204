package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/chorus-platform/process-monitor/pkg/logger"
)

// Watcher reloads the configuration file on change and fans the new Config
// out to registered callbacks. Threshold and endpoint changes take effect
// without a restart.
type Watcher struct {
	configPath string
	logger     logger.Logger

	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewWatcher(configPath string, initial *Config, log logger.Logger) *Watcher {
	return &Watcher{
		configPath: configPath,
		logger:     log,
		current:    initial,
		stopCh:     make(chan struct{}),
	}
}

// Start blocks watching the config file until ctx is cancelled or Stop is
// called. Callers run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	w.logger.Info("Configuration watcher started", "configPath", w.configPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				w.logger.Info("Configuration file changed, reloading", "file", event.Name)
				if err := w.reload(); err != nil {
					w.logger.Error("Failed to reload configuration", "error", err)
					continue
				}
				w.notify()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Configuration watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Info("Configuration watcher stopping")
			return nil

		case <-w.stopCh:
			w.logger.Info("Configuration watcher stopped")
			return nil
		}
	}
}

// RegisterCallback adds a callback invoked with each successfully reloaded
// Config.
func (w *Watcher) RegisterCallback(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Watcher) reload() error {
	newConfig, err := Load()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = newConfig
	w.mu.Unlock()
	w.logger.Info("Configuration reloaded")
	return nil
}

func (w *Watcher) notify() {
	w.mu.RLock()
	cfg := w.current
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		go func(fn func(*Config)) {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Configuration callback panic", "panic", r)
				}
			}()
			fn(cfg)
		}(cb)
	}
}
