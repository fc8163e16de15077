package scoring

import (
	"errors"
	"fmt"
)

// ErrUnknownModelVersion matches any *ScoringError.
var ErrUnknownModelVersion = errors.New("unknown model version")

// ScoringError reports a model version this engine does not implement.
type ScoringError struct {
	Version string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("unknown model version %q", e.Version)
}

func (e *ScoringError) Is(target error) bool {
	return target == ErrUnknownModelVersion
}
