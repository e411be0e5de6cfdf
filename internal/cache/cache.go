package cache

import (
	"context"
	"time"
)

// BytesCache is the minimal cache contract shared by sessions and the
// asset cache. A miss is (nil, false, nil).
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
