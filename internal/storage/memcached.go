package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "weather-lookup:"

// MemcachedStorage implements Storage on memcached. Records are written
// without expiration; eviction under memory pressure is the backend's call,
// which the history store treats like any other missing record.
type MemcachedStorage struct {
	client *memcache.Client
}

// NewMemcachedStorage creates a MemcachedStorage. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedStorage(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStorage {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStorage{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Get implements Storage.Get.
func (m *MemcachedStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := m.client.Get(keyPrefix + key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

// Set implements Storage.Set.
func (m *MemcachedStorage) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.client.Set(&memcache.Item{
		Key:   keyPrefix + key,
		Value: value,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (m *MemcachedStorage) Ping() error {
	return m.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (m *MemcachedStorage) Close() error {
	return m.client.Close()
}
