// Package cache stores analysis results per normalized URL and guarantees at
// most one computation in flight per key.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexis-pagnon/green-optimizer/models"
	"github.com/alexis-pagnon/green-optimizer/pkg/urlutil"
)

// State is the lifecycle position of a key.
type State string

const (
	StateAbsent  State = "absent"
	StatePending State = "pending"
	StateFresh   State = "fresh"
	StateStale   State = "stale"
)

// DefaultFreshnessWindow applies when neither the request nor the cache sets one.
const DefaultFreshnessWindow = time.Hour

// ComputeFunc produces a result for req. It receives a context detached from
// every caller's cancellation.
type ComputeFunc func(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)

// Record is a result as persisted by a Store.
type Record struct {
	Result    *models.AnalysisResult
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Store is optional durable storage behind the in-memory map. Load returns
// nil, nil when the key is unknown.
type Store interface {
	Load(ctx context.Context, key string) (*Record, error)
	Save(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
}

// Options configures a Cache.
type Options struct {
	// FreshnessWindow is used for requests without their own. Default: 1h.
	FreshnessWindow time.Duration

	// Store enables read-through and write-through persistence.
	Store Store

	// Accept filters records loaded from the store, e.g. to ignore results
	// of another model version. Nil accepts everything.
	Accept func(*models.AnalysisResult) bool

	Logger *slog.Logger
}

type entry struct {
	result    *models.AnalysisResult
	storedAt  time.Time
	expiresAt time.Time
}

// call is one in-flight computation. done is closed once result and err are set.
type call struct {
	done        chan struct{}
	result      *models.AnalysisResult
	err         error
	waiters     int
	invalidated bool
}

// Cache is safe for concurrent use. Its mutex guards only the maps and is
// never held while computing.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	pending map[string]*call

	window time.Duration
	store  Store
	accept func(*models.AnalysisResult) bool
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty cache.
func New(opts Options) *Cache {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = DefaultFreshnessWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Accept == nil {
		opts.Accept = func(*models.AnalysisResult) bool { return true }
	}
	return &Cache{
		entries: make(map[string]*entry),
		pending: make(map[string]*call),
		window:  opts.FreshnessWindow,
		store:   opts.Store,
		accept:  opts.Accept,
		logger:  opts.Logger,
		now:     time.Now,
	}
}

// Key returns the cache key of rawURL.
func Key(rawURL string) (string, error) {
	key, err := urlutil.NormalizeURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}
	return key, nil
}

func (c *Cache) windowFor(req models.AnalysisRequest) time.Duration {
	if req.FreshnessWindow > 0 {
		return req.FreshnessWindow
	}
	return c.window
}

// Get returns a copy of the stored result for rawURL if it has not expired.
func (c *Cache) Get(ctx context.Context, rawURL string) (*models.AnalysisResult, bool) {
	key, err := Key(rawURL)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		r := e.result
		c.mu.Unlock()
		return r.Clone(), true
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil, false
	}
	rec, err := c.store.Load(ctx, key)
	if err != nil {
		c.logger.Warn("cache: store load failed", "key", key, "error", err)
		return nil, false
	}
	if rec == nil || rec.Result == nil || !c.accept(rec.Result) || !c.now().Before(rec.ExpiresAt) {
		return nil, false
	}

	c.mu.Lock()
	if _, busy := c.pending[key]; !busy {
		c.entries[key] = &entry{result: rec.Result, storedAt: rec.StoredAt, expiresAt: rec.ExpiresAt}
	}
	c.mu.Unlock()
	return rec.Result.Clone(), true
}

// GetOrCompute returns a fresh cached result or joins the computation for the
// key, starting it if none is running. Cancelling ctx abandons the wait only;
// the computation continues and its result is still cached. Callers that
// joined another caller's computation get its failure as a *CacheError.
func (c *Cache) GetOrCompute(ctx context.Context, req models.AnalysisRequest, compute ComputeFunc) (*models.AnalysisResult, error) {
	key, err := Key(req.URL)
	if err != nil {
		return nil, err
	}
	window := c.windowFor(req)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.storedAt.Add(window)) {
		r := e.result
		c.mu.Unlock()
		c.logger.Debug("cache: hit", "key", key)
		return r.Clone(), nil
	}
	cl, joined := c.pending[key]
	if joined {
		cl.waiters++
	} else {
		cl = &call{done: make(chan struct{})}
		c.pending[key] = cl
	}
	c.mu.Unlock()

	if !joined {
		c.logger.Debug("cache: miss, computing", "key", key)
		go c.run(context.WithoutCancel(ctx), key, req, window, cl, compute)
	} else {
		c.logger.Debug("cache: joining pending computation", "key", key)
	}

	select {
	case <-cl.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if cl.err != nil {
		if joined {
			return nil, &CacheError{Key: key, Err: cl.err}
		}
		return nil, cl.err
	}
	return cl.result.Clone(), nil
}

func (c *Cache) run(ctx context.Context, key string, req models.AnalysisRequest, window time.Duration, cl *call, compute ComputeFunc) {
	result, storedAt, fromStore, err := c.loadOrCompute(ctx, key, req, window, compute)

	if err == nil && c.store != nil && !fromStore && !c.isInvalidated(cl) {
		rec := Record{Result: result, StoredAt: storedAt, ExpiresAt: storedAt.Add(window)}
		if err := c.store.Save(ctx, key, rec); err != nil {
			c.logger.Warn("cache: store save failed", "key", key, "error", err)
		}
	}

	c.mu.Lock()
	// An invalidated call was already detached; a newer one may own the key.
	if c.pending[key] == cl {
		delete(c.pending, key)
	}
	waiters := cl.waiters
	if err != nil && !cl.invalidated {
		// A failed attempt never leaves a stale or pending entry behind.
		delete(c.entries, key)
	} else if err == nil && !cl.invalidated {
		c.entries[key] = &entry{result: result, storedAt: storedAt, expiresAt: storedAt.Add(window)}
	}
	cl.result, cl.err = result, err
	c.mu.Unlock()
	close(cl.done)

	if err != nil {
		c.logger.Warn("cache: computation failed", "key", key, "waiters", waiters, "error", err)
	}
}

func (c *Cache) isInvalidated(cl *call) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cl.invalidated
}

func (c *Cache) loadOrCompute(ctx context.Context, key string, req models.AnalysisRequest, window time.Duration, compute ComputeFunc) (result *models.AnalysisResult, storedAt time.Time, fromStore bool, err error) {
	if c.store != nil {
		rec, loadErr := c.store.Load(ctx, key)
		switch {
		case loadErr != nil:
			c.logger.Warn("cache: store load failed", "key", key, "error", loadErr)
		case rec != nil && rec.Result != nil && c.accept(rec.Result) && c.now().Before(rec.StoredAt.Add(window)):
			return rec.Result, rec.StoredAt, true, nil
		}
	}

	defer func() {
		if p := recover(); p != nil {
			result, err = nil, fmt.Errorf("analysis of %s panicked: %v", key, p)
		}
	}()
	result, err = compute(ctx, req)
	if err == nil && result == nil {
		err = fmt.Errorf("analysis of %s returned no result", key)
	}
	return result, c.now(), false, err
}

// Invalidate drops the entry for rawURL from memory and the store. A
// computation already in flight still answers the callers that joined it but
// is not cached, and later callers start a new one.
func (c *Cache) Invalidate(ctx context.Context, rawURL string) error {
	key, err := Key(rawURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.entries, key)
	if cl, ok := c.pending[key]; ok {
		cl.invalidated = true
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", key, err)
		}
	}
	return nil
}

// State reports the in-memory state of rawURL.
func (c *Cache) State(rawURL string) State {
	key, err := Key(rawURL)
	if err != nil {
		return StateAbsent
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[key]; ok {
		return StatePending
	}
	e, ok := c.entries[key]
	switch {
	case !ok:
		return StateAbsent
	case c.now().Before(e.expiresAt):
		return StateFresh
	default:
		return StateStale
	}
}

// Sweep evicts expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Len returns the number of entries held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) waiting(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.pending[key]; ok {
		return cl.waiters
	}
	return -1
}
