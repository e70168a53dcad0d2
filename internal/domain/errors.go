package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable aborts an ingestion run; no index is committed.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrIndexUnavailable fails a single query.
	ErrIndexUnavailable = errors.New("index unavailable")

	ErrInvalidCredentials = errors.New("invalid credentials")
)

// LoadError reports a source file that could not be parsed. The file is
// skipped and ingestion continues.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
