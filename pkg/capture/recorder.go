package capture

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultMaxExchanges = 5000
	defaultIdleQuiet    = 500 * time.Millisecond
	defaultIdleMax      = 5 * time.Second
)

// recorder buffers network events of one capture. It is fed from the CDP
// event goroutine and read once the page has settled.
type recorder struct {
	mu       sync.Mutex
	start    time.Time
	limit    int
	order    []string
	byID     map[string]*pendingExchange
	inflight int
	lastSeen time.Time
	dropped  int
	changed  chan struct{}
}

// redirectHop is the response that ended the previous hop of a redirected request.
type redirectHop struct {
	Status       int
	EncodedBytes int64
}

type pendingExchange struct {
	Exchange
	started  time.Time
	finished bool
}

func newRecorder(limit int, start time.Time) *recorder {
	if limit <= 0 {
		limit = defaultMaxExchanges
	}
	return &recorder{
		start:    start,
		limit:    limit,
		byID:     make(map[string]*pendingExchange),
		lastSeen: start,
		changed:  make(chan struct{}, 1),
	}
}

func (r *recorder) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// requestStarted registers a request. A known id means a redirect: the
// previous hop is closed with the redirect response's status and bytes and
// kept under a derived key.
func (r *recorder) requestStarted(id, url, resourceType string, redirect redirectHop, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.notify()

	r.lastSeen = now
	if prev, ok := r.byID[id]; ok {
		hopKey := fmt.Sprintf("%s#%d", id, len(r.order))
		delete(r.byID, id)
		if !prev.finished {
			prev.Status = redirect.Status
			if redirect.EncodedBytes > 0 {
				prev.EncodedBytes = redirect.EncodedBytes
			}
			r.finishLocked(prev, now)
		}
		r.byID[hopKey] = prev
		for i, k := range r.order {
			if k == id {
				r.order[i] = hopKey
			}
		}
	}

	if len(r.order) >= r.limit {
		r.dropped++
		return
	}
	r.byID[id] = &pendingExchange{
		Exchange: Exchange{
			URL:          url,
			ResourceType: resourceType,
			StartMs:      now.Sub(r.start).Milliseconds(),
		},
		started: now,
	}
	r.order = append(r.order, id)
	r.inflight++
}

func (r *recorder) responseReceived(id string, status int, mimeType, resourceType string, fromCache bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeen = now
	ex, ok := r.byID[id]
	if !ok {
		return
	}
	ex.Status = status
	ex.MimeType = mimeType
	ex.FromCache = fromCache
	if resourceType != "" {
		ex.ResourceType = resourceType
	}
}

func (r *recorder) loadingFinished(id string, encodedBytes int64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.notify()

	r.lastSeen = now
	ex, ok := r.byID[id]
	if !ok || ex.finished {
		return
	}
	if ex.Status >= 400 {
		// The error body was transferred but the resource is not usable.
		ex.Failed = true
		ex.FailureReason = fmt.Sprintf("HTTP %d", ex.Status)
		ex.EncodedBytes = 0
	} else if encodedBytes > 0 {
		ex.EncodedBytes = encodedBytes
	}
	r.finishLocked(ex, now)
}

func (r *recorder) loadingFailed(id, reason string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.notify()

	r.lastSeen = now
	ex, ok := r.byID[id]
	if !ok || ex.finished {
		return
	}
	ex.Failed = true
	ex.FailureReason = reason
	ex.EncodedBytes = 0
	r.finishLocked(ex, now)
}

func (r *recorder) finishLocked(ex *pendingExchange, now time.Time) {
	ex.finished = true
	ex.DurationMs = now.Sub(ex.started).Milliseconds()
	if r.inflight > 0 {
		r.inflight--
	}
}

// waitIdle blocks until no request has been in flight for quiet, up to max.
// It returns the idle mark in ms since start and whether idle was reached.
func (r *recorder) waitIdle(ctx context.Context, quiet, max time.Duration) (int64, bool) {
	if quiet <= 0 {
		quiet = defaultIdleQuiet
	}
	if max <= 0 {
		max = defaultIdleMax
	}
	deadline := time.NewTimer(max)
	defer deadline.Stop()
	ticker := time.NewTicker(quiet / 4)
	defer ticker.Stop()

	for {
		r.mu.Lock()
		idle := r.inflight == 0 && time.Since(r.lastSeen) >= quiet
		mark := r.lastSeen.Sub(r.start).Milliseconds()
		r.mu.Unlock()
		if idle {
			return mark, true
		}

		select {
		case <-ctx.Done():
			return 0, false
		case <-deadline.C:
			return 0, false
		case <-ticker.C:
		case <-r.changed:
		}
	}
}

// exchanges returns every recorded exchange in request order. Requests that
// never completed are reported as failed with zero bytes.
func (r *recorder) exchanges() ([]Exchange, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Exchange, 0, len(r.order))
	for _, id := range r.order {
		ex := r.byID[id]
		e := ex.Exchange
		if !ex.finished {
			e.Failed = true
			e.FailureReason = "incomplete"
			e.EncodedBytes = 0
		}
		out = append(out, e)
	}
	return out, r.dropped
}
