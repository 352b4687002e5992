// Package config loads the dbkit YAML configuration file.
//
// Example:
//
//	database:
//	  driver: postgres
//	  dsn: ${DBKIT_DSN}
//	  query_timeout: 10s
//	schema:
//	  enabled: true
//	  exclude: [audit_log]
//	log:
//	  level: debug
//	  format: console
//	server:
//	  addr: :8080
//
// ${VAR} references are expanded from the environment before parsing.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/logger"
	"github.com/koustreak/dbkit/internal/schema"
)

// Config is the root of the configuration file.
type Config struct {
	Database database.Config    `yaml:"database"`
	Schema   schema.CacheConfig `yaml:"schema"`
	Log      logger.Config      `yaml:"log"`
	Server   ServerConfig       `yaml:"server"`
}

// ServerConfig configures the HTTP surface started by `dbkit serve`.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used for anything the file leaves out.
func Default() *Config {
	return &Config{
		Database: *database.DefaultConfig(""),
		Schema:   schema.DefaultCacheConfig(),
		Log:      *logger.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.Wrap(errs.ErrKindNotFound, "config file not found: "+path, err)
		}
		return nil, errs.Wrap(errs.ErrKindInvalidArgument, "failed to read config file "+path, err)
	}
	return Parse(data)
}

// Parse expands environment references in data, decodes it over Default and
// validates the result. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errs.Wrap(errs.ErrKindInvalidArgument, "invalid config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if _, err := database.DialectFor(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.Driver != database.DriverSQLite && c.Database.DSN == "" && c.Database.Host == "" {
		return errs.Newf(errs.ErrKindInvalidArgument, "database: %s needs a dsn or a host", c.Database.Driver)
	}
	if c.Database.MinConns > c.Database.MaxConns && c.Database.MaxConns > 0 {
		return errs.Newf(errs.ErrKindInvalidArgument,
			"database: min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errs.Newf(errs.ErrKindInvalidArgument, "log: unknown format %q", c.Log.Format)
	}
	return nil
}
