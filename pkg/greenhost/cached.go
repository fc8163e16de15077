package greenhost

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/caching"
)

// Cached remembers successful answers of Inner in a file cache.
// Failed lookups are not cached.
type Cached struct {
	Inner  Checker
	Cache  *caching.Cache
	Logger *slog.Logger
}

func (c *Cached) Check(ctx context.Context, domain string) (models.GreenHostSignal, error) {
	key := "greenhost:" + normalizeDomain(domain)

	if data, ok := c.Cache.Get(key); ok {
		var signal models.GreenHostSignal
		if err := json.Unmarshal(data, &signal); err == nil {
			return signal, nil
		}
	}

	signal, err := c.Inner.Check(ctx, domain)
	if err != nil {
		return signal, err
	}

	data, err := json.Marshal(signal)
	if err == nil {
		err = c.Cache.Set(key, data)
	}
	if err != nil {
		c.logger().Warn("greenhost: failed to cache answer", "domain", domain, "error", err)
	}
	return signal, nil
}

func (c *Cached) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
