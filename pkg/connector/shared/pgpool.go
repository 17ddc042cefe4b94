package shared

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/connector/base"
	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/dao"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// Pool defaults for adapter-owned pgx pools.
const (
	PoolMaxConns          = 4
	PoolMaxConnLifetime   = time.Hour
	PoolMaxConnIdleTime   = 30 * time.Minute
	PoolHealthCheckPeriod = 30 * time.Second
)

// OpenPGPool opens a pgx pool for the named connection, trying the primary
// host and then each failover host.
func OpenPGPool(ctx context.Context, params core.Params, connection string) (*pgxpool.Pool, error) {
	raw, err := params.Connection(connection)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "resolve connection").
			WithDetail("adapter", params.Name)
	}
	var c dao.Conn
	if err := config.Decode(raw, &c); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres connection")
	}

	hosts := c.Hosts()
	strategies := make([]base.Strategy[*pgxpool.Pool], 0, len(hosts))
	for _, h := range hosts {
		strategies = append(strategies, base.Strategy[*pgxpool.Pool]{
			Name: "postgres@" + h,
			Dial: func(ctx context.Context) (*pgxpool.Pool, error) {
				return dialPool(ctx, c, h)
			},
		})
	}

	res := base.Connect(ctx, base.PolicyFromSettings(params.Settings), strategies...)
	if res.Err != nil {
		return nil, res.Err
	}
	if params.Logger != nil {
		params.Logger.Info("connected to PostgreSQL",
			zap.String("adapter", params.Name),
			zap.String("strategy", res.Strategy),
			zap.Int("attempts", res.Attempts))
	}
	return res.Value, nil
}

func dialPool(ctx context.Context, c dao.Conn, host string) (*pgxpool.Pool, error) {
	if host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres connection requires host")
	}
	cfg, err := pgxpool.ParseConfig(dao.PostgresURL(c, host))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}
	cfg.MaxConns = PoolMaxConns
	cfg.MaxConnLifetime = PoolMaxConnLifetime
	cfg.MaxConnIdleTime = PoolMaxConnIdleTime
	cfg.HealthCheckPeriod = PoolHealthCheckPeriod

	dctx, cancel := context.WithTimeout(ctx, dao.DialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dctx, cfg)
	if err != nil {
		return nil, dao.ClassifyPostgres(err)
	}
	if err := pool.Ping(dctx); err != nil {
		pool.Close()
		return nil, dao.ClassifyPostgres(err)
	}
	return pool, nil
}
