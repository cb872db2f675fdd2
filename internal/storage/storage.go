package storage

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"tchouf/internal/domain"
	"tchouf/internal/storage/memory"
	"tchouf/internal/storage/redisstore"
)

// Open returns the Store implementation named by backend. The choice is
// an explicit config value, never inferred from the environment at
// import time.
func Open(backend string, client *redis.Client) (domain.Store, error) {
	switch backend {
	case "memory":
		return memory.New(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis backend requires a client")
		}
		return redisstore.New(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
