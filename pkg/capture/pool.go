package capture

import (
	"context"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// Pool bounds how many captures run at once. Callers beyond the bound
// queue until a slot frees up or their context ends.
type Pool struct {
	inner Capturer
	slots chan struct{}
}

// NewPool wraps inner with a limit of size concurrent captures (minimum 1).
func NewPool(inner Capturer, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{inner: inner, slots: make(chan struct{}, size)}
}

// Capture waits for a free slot and delegates to the wrapped capturer.
func (p *Pool) Capture(ctx context.Context, req models.AnalysisRequest) (*RawCapture, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slots }()
	return p.inner.Capture(ctx, req)
}

// Size returns the configured bound.
func (p *Pool) Size() int { return cap(p.slots) }

// InUse returns the number of captures currently running.
func (p *Pool) InUse() int { return len(p.slots) }
