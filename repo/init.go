package repo

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// initDDL is the repository schema. {{schema}} is substituted with the
// configured repo schema. Staging tables are unlogged: their contents
// are rebuilt on every compare, so crash safety buys nothing.
var initDDL = []string{
	`CREATE SCHEMA IF NOT EXISTS {{schema}}`,

	`CREATE TABLE IF NOT EXISTS {{schema}}.dc_project (
		pid          serial PRIMARY KEY,
		project_name text NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS {{schema}}.dc_table (
		tid             serial PRIMARY KEY,
		pid             integer NOT NULL REFERENCES {{schema}}.dc_project (pid),
		alias           text NOT NULL,
		enabled         boolean NOT NULL DEFAULT true,
		batch_nbr       integer NOT NULL DEFAULT 1,
		parallel_degree integer NOT NULL DEFAULT 1,
		UNIQUE (pid, alias)
	)`,

	`CREATE TABLE IF NOT EXISTS {{schema}}.dc_table_map (
		tid                  integer NOT NULL REFERENCES {{schema}}.dc_table (tid) ON DELETE CASCADE,
		dest_type            text NOT NULL CHECK (dest_type IN ('source', 'target')),
		schema_name          text NOT NULL,
		table_name           text NOT NULL,
		mod_column           text NOT NULL DEFAULT '',
		table_filter         text NOT NULL DEFAULT '',
		schema_preserve_case boolean NOT NULL DEFAULT false,
		table_preserve_case  boolean NOT NULL DEFAULT false,
		PRIMARY KEY (tid, dest_type)
	)`,

	`CREATE TABLE IF NOT EXISTS {{schema}}.dc_table_column_map (
		tid              integer NOT NULL REFERENCES {{schema}}.dc_table (tid) ON DELETE CASCADE,
		column_alias     text NOT NULL,
		column_origin    text NOT NULL CHECK (column_origin IN ('source', 'target')),
		column_name      text NOT NULL,
		data_type        text NOT NULL,
		data_class       text NOT NULL DEFAULT 'char',
		data_length      integer NOT NULL DEFAULT 0,
		data_precision   integer NOT NULL DEFAULT 0,
		data_scale       integer NOT NULL DEFAULT 0,
		nullable         boolean NOT NULL DEFAULT true,
		primary_key      boolean NOT NULL DEFAULT false,
		preserve_case    boolean NOT NULL DEFAULT false,
		supported        boolean NOT NULL DEFAULT true,
		value_expression text NOT NULL DEFAULT '',
		PRIMARY KEY (tid, column_origin, column_name)
	)`,

	`CREATE UNLOGGED TABLE IF NOT EXISTS {{schema}}.dc_source (
		tid         integer NOT NULL,
		pk_hash     varchar(100) NOT NULL,
		column_hash varchar(100) NOT NULL,
		pk          jsonb NOT NULL
	)`,

	`CREATE UNLOGGED TABLE IF NOT EXISTS {{schema}}.dc_target (
		tid         integer NOT NULL,
		pk_hash     varchar(100) NOT NULL,
		column_hash varchar(100) NOT NULL,
		pk          jsonb NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS dc_source_pk_hash_idx ON {{schema}}.dc_source (tid, pk_hash)`,
	`CREATE INDEX IF NOT EXISTS dc_target_pk_hash_idx ON {{schema}}.dc_target (tid, pk_hash)`,

	`CREATE TABLE IF NOT EXISTS {{schema}}.dc_source_findings (
		tid        integer NOT NULL,
		batch_nbr  integer NOT NULL,
		pk         jsonb NOT NULL,
		status     text NOT NULL CHECK (status IN ('not_equal', 'missing')),
		created_dt timestamptz NOT NULL DEFAULT current_timestamp
	)`,

	`CREATE TABLE IF NOT EXISTS {{schema}}.dc_target_findings (
		tid        integer NOT NULL,
		batch_nbr  integer NOT NULL,
		pk         jsonb NOT NULL,
		status     text NOT NULL CHECK (status IN ('not_equal', 'missing')),
		created_dt timestamptz NOT NULL DEFAULT current_timestamp
	)`,

	`CREATE INDEX IF NOT EXISTS dc_source_findings_tid_idx ON {{schema}}.dc_source_findings (tid, batch_nbr)`,
	`CREATE INDEX IF NOT EXISTS dc_target_findings_tid_idx ON {{schema}}.dc_target_findings (tid, batch_nbr)`,

	`CREATE TABLE IF NOT EXISTS {{schema}}.dc_table_history (
		tid                integer NOT NULL,
		action_type        text NOT NULL,
		batch_nbr          integer NOT NULL,
		start_dt           timestamptz NOT NULL,
		end_dt             timestamptz,
		status             text NOT NULL,
		row_count          bigint NOT NULL DEFAULT 0,
		equal_cnt          bigint NOT NULL DEFAULT 0,
		not_equal_cnt      bigint NOT NULL DEFAULT 0,
		missing_source_cnt bigint NOT NULL DEFAULT 0,
		missing_target_cnt bigint NOT NULL DEFAULT 0
	)`,
}

// Init creates the repository schema and seeds the default project. Safe
// to run repeatedly.
func (r *Repo) Init() error {
	logger := log.WithField("thread", "init")
	logger.Infof("Creating repository schema %s", r.schema)

	for _, stmt := range initDDL {
		ddl := strings.ReplaceAll(stmt, "{{schema}}", r.schema)
		if _, err := r.Conn.Exec(ddl); err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
	}

	var projects int
	if err := r.Conn.Get(&projects, fmt.Sprintf(
		"SELECT count(*) FROM %s", r.table("dc_project"))); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	if projects == 0 {
		if _, err := r.Conn.Exec(fmt.Sprintf(
			"INSERT INTO %s (project_name) VALUES ('default')",
			r.table("dc_project"))); err != nil {
			return fmt.Errorf("seed default project: %w", err)
		}
		logger.Info("Seeded default project")
	}

	logger.Info("Repository initialized")
	return nil
}
