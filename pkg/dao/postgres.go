package dao

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ajitpratap0/hdm/pkg/errors"
)

func init() {
	Register("postgres", Backend{
		Dialect: Dialect{Name: "postgres", Placeholder: dollar, Quote: doubleQuote},
		Open:    openPostgres,
	})
}

// PostgresURL builds a connection string for one host of a connection.
func PostgresURL(c Conn, host string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Addr(host, 5432),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func openPostgres(ctx context.Context, c Conn, host string) (*sql.DB, error) {
	if host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres connection requires host")
	}
	cfg, err := pgx.ParseConfig(PostgresURL(c, host))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres connection")
	}
	return ping(ctx, stdlib.OpenDB(*cfg), ClassifyPostgres)
}

// ClassifyPostgres marks authentication and unknown-database errors as
// configuration errors and everything else as connectivity failures.
func ClassifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28000", "28P01", "3D000":
			return errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("postgres rejected the connection (%s)", pgErr.Code))
		}
	}
	return connectivity(err)
}
