package cache

import (
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a key is absent or its entry has expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the key/value collaborator the orchestrating service persists
// workflow and execution snapshots into. Values are opaque bytes; a zero ttl
// means the entry never expires.
type Cache interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
}
