package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB represents the database connection
type DB struct {
	conn   *sql.DB
	driver string
}

// New opens a database. PostgreSQL is used for "postgres://" URLs and
// "host=... dbname=..." strings; anything else is a SQLite file path, with
// ":memory:" for an in-process database.
func New(connStr string) (*DB, error) {
	driver, dsn := driverFor(connStr)

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// one connection keeps ":memory:" a single database and serialises
		// writers
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn, driver: driver}, nil
}

func driverFor(connStr string) (driver, dsn string) {
	switch {
	case strings.HasPrefix(connStr, "postgres://"), strings.HasPrefix(connStr, "postgresql://"):
		return DriverPostgres, connStr
	case strings.Contains(connStr, "host=") || strings.Contains(connStr, "dbname="):
		return DriverPostgres, connStr
	}

	path := strings.TrimPrefix(connStr, "sqlite://")
	if path == "" {
		path = ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return DriverSQLite, path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Driver names the SQL driver in use
func (db *DB) Driver() string {
	return db.driver
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
