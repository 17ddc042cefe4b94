// Package dao opens the relational backends hdm talks to: the ledger store
// and the database sources and sinks. Backends register under the tag used by
// manifests (state_manager.dao) and are opened from a profile connection.
package dao

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/hdm/pkg/config"
	"github.com/ajitpratap0/hdm/pkg/connector/base"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// Dialect captures the SQL differences the ledger and adapters care about.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Quote quotes an identifier.
	Quote func(ident string) string
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if d.Placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QuoteQualified quotes each dot-separated part of name.
func (d Dialect) QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.Quote(p)
	}
	return strings.Join(parts, ".")
}

// DB is an open backend.
type DB struct {
	*sql.DB
	Dialect  Dialect
	Strategy string
}

// Opener dials one host of a connection.
type Opener func(ctx context.Context, conn Conn, host string) (*sql.DB, error)

// Backend is a registered DAO.
type Backend struct {
	Dialect Dialect
	Open    Opener
}

// DialTimeout bounds a single connection attempt.
const DialTimeout = 30 * time.Second

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register adds a backend under name. Registering a name twice panics, as
// backends register from init.
func Register(name string, b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := backends[name]; ok {
		panic(fmt.Sprintf("dao: backend %s registered twice", name))
	}
	backends[name] = b
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, error) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := backends[name]
	if !ok {
		return Backend{}, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("dao %s not found", name))
	}
	return b, nil
}

// List returns the registered backend names in lexical order.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open connects to backend name using the profile connection settings.
// The primary host is tried first, then each failover host.
func Open(ctx context.Context, name string, conn map[string]interface{}, settings config.Settings) (*DB, error) {
	b, err := Lookup(name)
	if err != nil {
		return nil, err
	}

	var c Conn
	if err := config.Decode(conn, &c); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid connection")
	}

	hosts := c.Hosts()
	strategies := make([]base.Strategy[*sql.DB], 0, len(hosts))
	for _, h := range hosts {
		strategies = append(strategies, base.Strategy[*sql.DB]{
			Name: name + "@" + h,
			Dial: func(ctx context.Context) (*sql.DB, error) {
				dctx, cancel := context.WithTimeout(ctx, DialTimeout)
				defer cancel()
				return b.Open(dctx, c, h)
			},
		})
	}

	res := base.Connect(ctx, base.PolicyFromSettings(settings), strategies...)
	if res.Err != nil {
		return nil, res.Err
	}
	return &DB{DB: res.Value, Dialect: b.Dialect, Strategy: res.Strategy}, nil
}

// Conn is the union of connection keys used by the profile file.
type Conn struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	User          string   `mapstructure:"user"`
	Password      string   `mapstructure:"password"`
	Database      string   `mapstructure:"database"`
	DBPath        string   `mapstructure:"dbpath"`
	Schema        string   `mapstructure:"schema"`
	SSLMode       string   `mapstructure:"sslmode"`
	FailoverHosts []string `mapstructure:"failover_hosts"`

	// snowflake
	Account       string `mapstructure:"account"`
	Authenticator string `mapstructure:"authenticator"`
	Warehouse     string `mapstructure:"warehouse"`
	Role          string `mapstructure:"role"`
}

// Hosts returns the primary host followed by the failover hosts. A
// connection without a host yields one empty entry so file and account based
// backends still get a single strategy.
func (c Conn) Hosts() []string {
	hosts := []string{c.Host}
	for _, h := range c.FailoverHosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Addr joins host with the connection port, unless host already has one.
func (c Conn) Addr(host string, defaultPort int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func backtick(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func doubleQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// ping verifies a freshly opened pool and closes it on failure.
func ping(ctx context.Context, db *sql.DB, classify func(error) error) (*sql.DB, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify(err)
	}
	return db, nil
}

// connectivity marks err as a retryable connection failure.
func connectivity(err error) error {
	return errors.Wrap(err, errors.ErrorTypeConnection, "ping failed")
}
