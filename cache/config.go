package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-entity-session/internal/cacheinfra"
)

// Cache providers.
const (
	// ProviderMap keeps entries until they are evicted explicitly.
	ProviderMap = "map"
	// ProviderSturdyc bounds the cache by capacity and TTL.
	ProviderSturdyc = "sturdyc"
)

// Config exposes second-level cache options. The sizing fields only apply to
// the sturdyc provider.
type Config struct {
	Enabled            bool          `env:"ENTITY_CACHE_ENABLED" envDefault:"true" json:"enabled" yaml:"enabled"`
	Provider           string        `env:"ENTITY_CACHE_PROVIDER" envDefault:"map" json:"provider" yaml:"provider"`
	Capacity           int           `env:"ENTITY_CACHE_CAPACITY" envDefault:"10000" json:"capacity" yaml:"capacity"`
	NumShards          int           `env:"ENTITY_CACHE_SHARDS" envDefault:"256" json:"num_shards" yaml:"num_shards"`
	TTL                time.Duration `env:"ENTITY_CACHE_TTL" envDefault:"5m" json:"ttl" yaml:"ttl"`
	EvictionPercentage int           `env:"ENTITY_CACHE_EVICTION_PERCENTAGE" envDefault:"10" json:"eviction_percentage" yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `env:"ENTITY_CACHE_EVICTION_INTERVAL" json:"eviction_interval" yaml:"eviction_interval"`
}

// DefaultConfig returns an enabled, unbounded map cache.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.Enabled = true
	cfg.Provider = ProviderMap
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderMap, ProviderSturdyc)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid cache config")
	}
	if c.Provider == ProviderSturdyc {
		return c.toInternal().Validate()
	}
	return nil
}

func (c Config) backend() (cacheinfra.Backend, error) {
	if !c.Enabled {
		return cacheinfra.NewDisabledBackend(), nil
	}
	if c.Provider == ProviderSturdyc {
		return cacheinfra.NewSturdycBackend(c.toInternal())
	}
	return cacheinfra.NewMapBackend(), nil
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}
