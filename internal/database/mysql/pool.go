package mysql

import (
	"database/sql"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/errs"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultConnTimeout     = 5 * time.Second
	defaultPort            = 3306
)

// openPool configures and returns a *sql.DB with pool settings. It does not
// connect; the first Ping does.
func openPool(cfg *database.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", buildDSN(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	db.SetMaxOpenConns(withDefault(int(cfg.MaxConns), defaultMaxOpenConns))
	db.SetMaxIdleConns(withDefault(int(cfg.MinConns), defaultMaxIdleConns))
	db.SetConnMaxLifetime(durationOr(cfg.MaxConnLifetime, defaultConnMaxLifetime))
	db.SetConnMaxIdleTime(durationOr(cfg.MaxConnIdleTime, defaultConnMaxIdleTime))

	return db, nil
}

// buildDSN returns cfg.DSN, or a go-sql-driver DSN built from the discrete
// connection fields, e.g. user:pass@tcp(host:3306)/shop?parseTime=true
func buildDSN(cfg *database.Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Timeout = durationOr(cfg.ConnectTimeout, defaultConnTimeout)
	return mc.FormatDSN()
}

func withDefault(val, def int) int {
	if val == 0 {
		return def
	}
	return val
}

func durationOr(val, def time.Duration) time.Duration {
	if val <= 0 {
		return def
	}
	return val
}
