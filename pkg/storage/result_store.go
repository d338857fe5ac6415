// Package storage provides the persistence adapters used by the execution
// pipeline: result caches, the policy registry, the capability catalog and the
// execution event log.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ankitdsmb/ToolNexus-sub004/pkg/domain"
)

// ErrNotFound is returned when a requested record does not exist in the store.
var ErrNotFound = errors.New("record not found")

// ResultStore persists successful execution responses under content-addressed keys.
type ResultStore interface {
	// Get returns the cached response; ok is false on a miss.
	Get(ctx context.Context, key string) (resp domain.Response, ok bool, err error)
	// Set stores the response for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, resp domain.Response, ttl time.Duration) error
	Close() error
}
