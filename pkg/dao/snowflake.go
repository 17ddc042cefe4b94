package dao

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/ajitpratap0/hdm/pkg/errors"
)

func init() {
	Register("snowflake", Backend{
		Dialect: Dialect{Name: "snowflake", Placeholder: questionMark, Quote: doubleQuote},
		Open:    openSnowflake,
	})
}

// SnowflakeDSN builds the driver DSN for a connection.
func SnowflakeDSN(c Conn) (string, error) {
	cfg := &gosnowflake.Config{
		Account:                c.Account,
		User:                   c.User,
		Password:               c.Password,
		Database:               c.Database,
		Schema:                 c.Schema,
		Warehouse:              c.Warehouse,
		Role:                   c.Role,
		ClientSessionKeepAlive: true,
	}
	switch strings.ToLower(c.Authenticator) {
	case "", "snowflake":
	case "externalbrowser":
		cfg.Authenticator = gosnowflake.AuthTypeExternalBrowser
	default:
		return "", fmt.Errorf("unsupported snowflake authenticator %q", c.Authenticator)
	}
	return gosnowflake.DSN(cfg)
}

func openSnowflake(ctx context.Context, c Conn, _ string) (*sql.DB, error) {
	dsn, err := SnowflakeDSN(c)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid snowflake connection")
	}
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake: %w", err)
	}
	return ping(ctx, db, connectivity)
}
