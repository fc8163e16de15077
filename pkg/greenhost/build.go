package greenhost

import (
	"fmt"
	"log/slog"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/caching"
)

// FromConfig builds the checker selected by cfg.Mode:
// "static", "api" (cached), "chain" (static first, then api) or "none".
func FromConfig(cfg models.GreenHostConfig, logger *slog.Logger) (Checker, error) {
	switch cfg.Mode {
	case "none":
		return Unknown{}, nil
	case "static":
		return loadStatic(cfg)
	case "api", "":
		return cachedAPI(cfg, logger)
	case "chain":
		api, err := cachedAPI(cfg, logger)
		if err != nil {
			return nil, err
		}
		if cfg.StaticFile == "" {
			return api, nil
		}
		static, err := loadStatic(cfg)
		if err != nil {
			return nil, err
		}
		return Chain{static, api}, nil
	}
	return nil, fmt.Errorf("unknown green host mode %q", cfg.Mode)
}

func loadStatic(cfg models.GreenHostConfig) (Checker, error) {
	if cfg.StaticFile == "" {
		return nil, fmt.Errorf("green host mode %q needs static_file", cfg.Mode)
	}
	return LoadStatic(cfg.StaticFile)
}

func cachedAPI(cfg models.GreenHostConfig, logger *slog.Logger) (Checker, error) {
	api := NewAPI(cfg.APIURL)
	if cfg.CacheDir == "" {
		return api, nil
	}
	cache, err := caching.NewCache(cfg.CacheDir, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	return &Cached{Inner: api, Cache: cache, Logger: logger}, nil
}
