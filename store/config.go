package store

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Driver identifies the database/sql driver and bun dialect behind a URI.
type Driver string

const (
	DriverSQLite   Driver = "sqlite3"
	DriverPostgres Driver = "postgres"
)

// Config holds the store connection options.
type Config struct {
	// URI selects the store. "file:", "sqlite:" and ":memory:" open sqlite;
	// "postgres://" and "postgresql://" open postgres.
	URI string `env:"ENTITY_STORE_URI" envDefault:"file::memory:?cache=shared" json:"uri" yaml:"uri"`

	// Username and Password override the userinfo of a postgres URI.
	Username string `env:"ENTITY_STORE_USERNAME" json:"username" yaml:"username"`
	Password string `env:"ENTITY_STORE_PASSWORD" json:"-" yaml:"-"`

	// Schema sets the postgres search_path. sqlite has no schemas.
	Schema string `env:"ENTITY_STORE_SCHEMA" json:"schema" yaml:"schema"`

	MaxOpenConns    int           `env:"ENTITY_STORE_MAX_OPEN_CONNS" json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `env:"ENTITY_STORE_MAX_IDLE_CONNS" json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `env:"ENTITY_STORE_CONN_MAX_LIFETIME" json:"conn_max_lifetime" yaml:"conn_max_lifetime"`

	// QueryTimeout bounds every store call made by repositories. Zero disables it.
	QueryTimeout time.Duration `env:"ENTITY_STORE_QUERY_TIMEOUT" json:"query_timeout" yaml:"query_timeout"`

	// LogQueries logs every statement at debug level. Failures are always logged.
	LogQueries bool `env:"ENTITY_STORE_LOG_QUERIES" json:"log_queries" yaml:"log_queries"`
}

// DefaultConfig returns an in-memory sqlite configuration.
func DefaultConfig() Config {
	return Config{URI: "file::memory:?cache=shared"}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.URI, validation.Required, validation.By(func(any) error {
			_, err := c.Driver()
			return err
		})),
		validation.Field(&c.MaxOpenConns, validation.Min(0)),
		validation.Field(&c.MaxIdleConns, validation.Min(0)),
		validation.Field(&c.ConnMaxLifetime, validation.Min(time.Duration(0))),
		validation.Field(&c.QueryTimeout, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid store config")
	}

	if d, _ := c.Driver(); d == DriverSQLite && c.Schema != "" {
		return goerrors.New("schema is not supported by sqlite stores", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"schema": c.Schema})
	}
	return nil
}

// Driver resolves the driver from the URI scheme.
func (c Config) Driver() (Driver, error) {
	uri := strings.TrimSpace(c.URI)
	switch {
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return DriverPostgres, nil
	case strings.HasPrefix(uri, "file:"), strings.HasPrefix(uri, "sqlite:"), uri == ":memory:":
		return DriverSQLite, nil
	}
	return "", fmt.Errorf("unsupported store uri %q", uri)
}

// DSN returns the data source name handed to the driver.
func (c Config) DSN() (string, error) {
	driver, err := c.Driver()
	if err != nil {
		return "", err
	}

	uri := strings.TrimSpace(c.URI)
	if driver == DriverSQLite {
		uri = strings.TrimPrefix(uri, "sqlite://")
		uri = strings.TrimPrefix(uri, "sqlite:")
		return uri, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse store uri: %w", err)
	}
	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}
	if c.Schema != "" {
		q := u.Query()
		q.Set("search_path", c.Schema)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c Config) inMemory() bool {
	dsn, err := c.DSN()
	if err != nil {
		return false
	}
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
