// Package greenhost answers whether a domain is served from verified green hosting.
package greenhost

import (
	"context"
	"strings"

	"github.com/alexis-pagnon/green-optimizer/models"
)

// Checker looks up the hosting signal of a domain. An error means the answer
// is unknown; callers must not read it as "not green".
type Checker interface {
	Check(ctx context.Context, domain string) (models.GreenHostSignal, error)
}

// Func adapts a function to the Checker interface.
type Func func(ctx context.Context, domain string) (models.GreenHostSignal, error)

func (f Func) Check(ctx context.Context, domain string) (models.GreenHostSignal, error) {
	return f(ctx, domain)
}

// Unknown never knows.
type Unknown struct{}

func (Unknown) Check(context.Context, string) (models.GreenHostSignal, error) {
	return models.UnknownHost(), nil
}

// Chain asks each checker in turn and returns the first known answer.
type Chain []Checker

func (c Chain) Check(ctx context.Context, domain string) (models.GreenHostSignal, error) {
	var firstErr error
	for _, checker := range c {
		signal, err := checker.Check(ctx, domain)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if signal.Known {
			return signal, nil
		}
	}
	return models.UnknownHost(), firstErr
}

func normalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}
