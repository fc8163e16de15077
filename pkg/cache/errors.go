package cache

import (
	"errors"
	"fmt"
)

// ErrComputationFailed matches any *CacheError.
var ErrComputationFailed = errors.New("computation failed")

// CacheError is returned to callers that waited on another caller's
// computation when that computation failed. Err is the owner's error.
type CacheError struct {
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("analysis of %s failed: %v", e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Is(target error) bool { return target == ErrComputationFailed }
