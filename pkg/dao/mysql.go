package dao

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/ajitpratap0/hdm/pkg/errors"
)

func init() {
	Register("mysql", Backend{
		Dialect: Dialect{Name: "mysql", Placeholder: questionMark, Quote: backtick},
		Open:    openMySQL,
	})
}

// MySQLDSN builds the driver DSN for one host of a connection.
func MySQLDSN(c Conn, host string) string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Addr(host, 3306)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	return cfg.FormatDSN()
}

func openMySQL(ctx context.Context, c Conn, host string) (*sql.DB, error) {
	if host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "mysql connection requires host")
	}
	db, err := sql.Open("mysql", MySQLDSN(c, host))
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return ping(ctx, db, classifyMySQL)
}

// classifyMySQL separates credential and catalog errors, which no retry or
// failover can fix, from connectivity failures.
func classifyMySQL(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1044, 1045, 1049:
			return errors.Wrap(err, errors.ErrorTypeConfig, "mysql rejected the connection")
		}
	}
	return connectivity(err)
}
