package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// CatalogApplyFunc persists a freshly parsed catalog.
type CatalogApplyFunc func(ctx context.Context, cat *CatalogConfig) error

// CatalogWatcher polls catalog.yaml and applies every version whose mtime moves forward.
type CatalogWatcher struct {
	path     string
	interval time.Duration
	apply    CatalogApplyFunc
	logger   zerolog.Logger

	lastMod time.Time
}

func NewCatalogWatcher(path string, interval time.Duration, apply CatalogApplyFunc, logger zerolog.Logger) *CatalogWatcher {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CatalogWatcher{
		path:     path,
		interval: interval,
		apply:    apply,
		logger:   logger.With().Str("component", "catalog").Str("path", path).Logger(),
	}
}

// Load applies the current file unconditionally. Startup uses it so a broken catalog is fatal.
func (w *CatalogWatcher) Load(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	if err := w.load(ctx); err != nil {
		return err
	}
	w.lastMod = info.ModTime()
	return nil
}

// Check reloads the catalog if the file changed since the last attempt.
// A failed version is not retried until the file changes again.
func (w *CatalogWatcher) Check(ctx context.Context) (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}
	if !info.ModTime().After(w.lastMod) {
		return false, nil
	}
	w.lastMod = info.ModTime()
	return true, w.load(ctx)
}

// Run polls until ctx is done. Reload failures keep the previously applied catalog.
func (w *CatalogWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := w.Check(ctx)
			switch {
			case err != nil && !changed:
				w.logger.Debug().Err(err).Msg("catalog stat failed")
			case err != nil:
				w.logger.Error().Err(err).Msg("catalog reload failed, keeping previous")
			case changed:
				w.logger.Info().Msg("catalog reloaded")
			}
		}
	}
}

func (w *CatalogWatcher) load(ctx context.Context) error {
	cat, err := LoadCatalog(w.path)
	if err != nil {
		return err
	}
	if w.apply == nil {
		return nil
	}
	if err := w.apply(ctx, cat); err != nil {
		return fmt.Errorf("apply catalog: %w", err)
	}
	return nil
}
