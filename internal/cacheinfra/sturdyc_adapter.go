package cacheinfra

import (
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the settings of the bounded sturdyc backend.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the time-to-live of every entry. Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept.
	// Zero uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns the settings used when the sturdyc provider is
// selected without explicit sizing.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// ToSturdycOptions converts the optional settings to sturdyc options.
// Capacity, NumShards, TTL and EvictionPercentage go to sturdyc.New directly.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks the sizing parameters.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// sturdycBackend stores snapshots in a sharded sturdyc client. Entries expire
// after TTL and the oldest are evicted at capacity.
type sturdycBackend struct {
	client *sturdyc.Client[[]byte]
}

// NewSturdycBackend validates cfg and creates a sturdyc-backed Backend.
func NewSturdycBackend(cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[[]byte](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)
	return &sturdycBackend{client: client}, nil
}

func (s *sturdycBackend) Get(key string) ([]byte, bool) {
	return s.client.Get(key)
}

func (s *sturdycBackend) Set(key string, value []byte) {
	s.client.Set(key, value)
}

func (s *sturdycBackend) Delete(key string) bool {
	_, ok := s.client.Get(key)
	s.client.Delete(key)
	return ok
}

// DeleteByPrefix scans the live keys; sturdyc has no prefix index.
func (s *sturdycBackend) DeleteByPrefix(prefix string) int {
	n := 0
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
			n++
		}
	}
	return n
}

func (s *sturdycBackend) Clear() int {
	return s.DeleteByPrefix("")
}

func (s *sturdycBackend) Len() int {
	return s.client.Size()
}
