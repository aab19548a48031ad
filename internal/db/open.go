package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/pkg/errors"

	"stagingloader/internal/config"
)

const sqliteBusyTimeoutMS = 10000

// DSN renders the connection string for p in its driver's native format.
func DSN(p config.ConnectionParams) (Dialect, string, error) {
	d, err := ParseDialect(p.Driver)
	if err != nil {
		return "", "", err
	}
	port := p.Port
	if port == 0 {
		port = d.DefaultPort()
	}
	addr := net.JoinHostPort(p.Host, strconv.Itoa(port))

	switch d {
	case MySQL:
		mc := mysql.NewConfig()
		mc.User = p.User
		mc.Passwd = p.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = p.Database
		return d, mc.FormatDSN(), nil
	case Postgres:
		u := url.URL{Scheme: "postgres", User: url.UserPassword(p.User, p.Password), Host: addr, Path: "/" + p.Database}
		return d, u.String(), nil
	case MSSQL:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(p.User, p.Password),
			Host:     addr,
			RawQuery: url.Values{"database": {p.Database}}.Encode(),
		}
		return d, u.String(), nil
	}
	// Immediate transactions take the write lock up front so concurrent
	// writers queue on the busy timeout instead of failing on upgrade.
	path := (&url.URL{Path: p.Database}).EscapedPath()
	return d, fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=immediate&_journal_mode=WAL", path, sqliteBusyTimeoutMS), nil
}

// Open connects to the store described by p.
func Open(ctx context.Context, p config.ConnectionParams) (DB, error) {
	d, dsn, err := DSN(p)
	if err != nil {
		return nil, err
	}
	if d == Postgres {
		return NewPgDB(ctx, dsn)
	}
	return NewSQLDB(ctx, d, dsn)
}

// NewFactory returns a Factory that opens a fresh connection to p per call.
func NewFactory(p config.ConnectionParams) Factory {
	return func(ctx context.Context) (DB, error) {
		return Open(ctx, p)
	}
}

// EnsureTables creates every missing table through conn.
func EnsureTables(ctx context.Context, conn DB, d Dialect, tables ...Table) error {
	for _, t := range tables {
		if err := conn.Exec(ctx, d.CreateTable(t)); err != nil {
			return errors.Wrapf(err, "create table %s", t.Name)
		}
	}
	return nil
}
