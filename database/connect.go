package database

import (
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/sijms/go-ora/v2"
)

// Config describes one connection (repo, source or target).
type Config struct {
	Type     Dialect
	Host     string
	Port     int
	DBName   string
	User     string
	Password string
	Schema   string
	SSLMode  string // disable, prefer, require
}

// Conn is a live connection tagged with its dialect.
type Conn struct {
	*sqlx.DB
	Dialect Dialect
	Role    string // repo, source, target
}

// Connect opens a connection, verifies it with a short bounded retry and
// applies the dialect's session setup.
func Connect(role string, cfg Config) (*Conn, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(cfg.Type.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s (%s): %w", role, cfg.Type, err)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
	if err := backoff.Retry(db.Ping, policy); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s (%s@%s:%d/%s): %w", role, cfg.User, cfg.Host, cfg.Port, cfg.DBName, err)
	}

	for _, stmt := range cfg.Type.SessionSetup() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("session setup %s (%s): %w", role, stmt, err)
		}
	}

	log.WithField("thread", "main").Infof("Connected to %s database (%s@%s:%d/%s)", role, cfg.User, cfg.Host, cfg.Port, cfg.DBName)
	return &Conn{DB: db, Dialect: cfg.Type, Role: role}, nil
}

func buildDSN(cfg Config) (string, error) {
	switch cfg.Type {
	case Postgres:
		return postgresBuildDSN(cfg), nil
	case Oracle:
		return oracleBuildDSN(cfg), nil
	case MySQL, MariaDB:
		return mysqlBuildDSN(cfg), nil
	case SQLServer:
		return mssqlBuildDSN(cfg), nil
	case DB2:
		return db2BuildDSN(cfg), nil
	default:
		return "", fmt.Errorf("no DSN builder for dialect %s", cfg.Type)
	}
}

// SelectColumns returns the uniform column metadata for schema.table.
func (c *Conn) SelectColumns(schema, table string) ([]ColumnInfo, error) {
	var cols []ColumnInfo
	if err := c.Select(&cols, c.Dialect.SelectColumnsSQL(), schema, table); err != nil {
		return nil, fmt.Errorf("select columns %s.%s: %w", schema, table, err)
	}
	return cols, nil
}

// SelectTables lists the base tables of a schema.
func (c *Conn) SelectTables(schema string) ([]TableInfo, error) {
	var tables []TableInfo
	if err := c.Select(&tables, c.Dialect.SelectTablesSQL(), schema); err != nil {
		return nil, fmt.Errorf("select tables %s: %w", schema, err)
	}
	return tables, nil
}

// Version fetches the engine version banner, best effort.
func (c *Conn) Version() string {
	var version string
	if err := c.Get(&version, c.Dialect.SelectVersionSQL()); err != nil {
		log.WithField("thread", "main").Debugf("Could not retrieve %s version: %s", c.Role, err)
		return ""
	}
	return version
}
