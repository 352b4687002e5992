package postgres

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
)

const (
	defaultMaxConns    = 10
	defaultMinConns    = 2
	defaultPort        = 5432
	defaultConnTimeout = 5 * time.Second
)

// poolConfig turns a database.Config into a pgxpool config, filling in
// defaults for anything left zero.
func poolConfig(cfg *database.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	poolCfg.MaxConns = withDefault(cfg.MaxConns, defaultMaxConns)
	poolCfg.MinConns = withDefault(cfg.MinConns, defaultMinConns)
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	poolCfg.ConnConfig.ConnectTimeout = defaultConnTimeout
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	return poolCfg, nil
}

// buildDSN returns cfg.DSN, or a postgres:// URL built from the discrete
// connection fields.
func buildDSN(cfg *database.Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

// withDefault returns val if non-zero, otherwise returns def
func withDefault(val, def int32) int32 {
	if val == 0 {
		return def
	}
	return val
}
