package cli

import (
	"context"
	"io"

	"github.com/koustreak/dbkit/internal/config"
	"github.com/koustreak/dbkit/internal/database"
	"github.com/koustreak/dbkit/internal/database/mysql"
	"github.com/koustreak/dbkit/internal/database/postgres"
	"github.com/koustreak/dbkit/internal/database/sqlite"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/logger"
	"github.com/koustreak/dbkit/internal/schema"
)

// session is an open connection plus the schema cache over it.
type session struct {
	cfg    *config.Config
	db     database.DB
	schema *schema.Schema
	log    *logger.Logger
}

// openSession connects using the resolved config. Logs go to logOut.
func openSession(ctx context.Context, opts *RootOptions, logOut io.Writer) (*session, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Log
	logCfg.Output = logOut
	log := logger.New(&logCfg)

	db, loader, err := connect(ctx, &cfg.Database)
	if err != nil {
		log.ErrorWith("connect failed", err, map[string]any{"driver": string(cfg.Database.Driver)})
		return nil, err
	}
	log.With().Str("driver", string(cfg.Database.Driver)).Logger().Debug("connected")

	return &session{
		cfg:    cfg,
		db:     db,
		schema: schema.New(loader, schema.WithLogger(log), schema.WithCacheConfig(cfg.Schema)),
		log:    log,
	}, nil
}

func (s *session) Close() {
	s.db.Close()
}

// connect opens the driver named by cfg and the introspector over it.
func connect(ctx context.Context, cfg *database.Config) (database.DB, schema.Loader, error) {
	switch cfg.Driver {
	case database.DriverPostgres:
		d, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return d, postgres.NewIntrospector(d), nil
	case database.DriverMySQL:
		d, err := mysql.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return d, mysql.NewIntrospector(d), nil
	case database.DriverSQLite:
		d, err := sqlite.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return d, sqlite.NewIntrospector(d), nil
	}
	return nil, nil, errs.Newf(errs.ErrKindInvalidArgument, "unknown driver %q", cfg.Driver)
}
