// Package repo is the controller for the reconciliation repository: the
// dc_* schema, staging, findings, run history, discovery and the compare
// verdict SQL. The repository is always Postgres regardless of what the
// source and target engines are.
package repo

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/pgcompare/pgcompare/compare"
	"github.com/pgcompare/pgcompare/database"
)

// Repo wraps the repository connection with the project scope of the run.
type Repo struct {
	Conn    *database.Conn
	Project int

	schema string
	// loaderCfg opens additional connections for loader threads.
	loaderCfg database.Config
}

// New builds a repository controller over an open connection.
func New(conn *database.Conn, cfg database.Config, project int) *Repo {
	schema := cfg.Schema
	if schema == "" {
		schema = "pgcompare"
	}
	return &Repo{Conn: conn, Project: project, schema: schema, loaderCfg: cfg}
}

func (r *Repo) table(name string) string {
	return r.schema + "." + name
}

// StagingTable returns the qualified staging table for a side.
func (r *Repo) StagingTable(s compare.Side) string {
	if s == compare.SideSource {
		return r.table("dc_source")
	}
	return r.table("dc_target")
}

func (r *Repo) findingsTable(s compare.Side) string {
	if s == compare.SideSource {
		return r.table("dc_source_findings")
	}
	return r.table("dc_target_findings")
}

// NewLoaderConn opens a dedicated repository connection for a loader
// thread. Loaders never share a connection with the controller.
func (r *Repo) NewLoaderConn() (*database.Conn, error) {
	return database.Connect("repo-loader", r.loaderCfg)
}

// Tables lists the project's tables for a batch. batchNbr zero means all
// batches; a non-empty alias restricts to that one table.
func (r *Repo) Tables(batchNbr int, alias string) ([]compare.TableEntry, error) {
	query := fmt.Sprintf(`SELECT tid, pid, alias, enabled, batch_nbr, parallel_degree
		FROM %s WHERE pid = $1 AND ($2 = 0 OR batch_nbr = $2)`, r.table("dc_table"))
	args := []interface{}{r.Project, batchNbr}
	if alias != "" {
		query += " AND lower(alias) = lower($3)"
		args = append(args, alias)
	}
	query += " ORDER BY alias"

	var tables []compare.TableEntry
	if err := r.Conn.Select(&tables, query, args...); err != nil {
		return nil, fmt.Errorf("select tables: %w", err)
	}
	return tables, nil
}

// TableMaps returns the side mappings of a table keyed by side.
func (r *Repo) TableMaps(tid int) (map[compare.Side]compare.TableMap, error) {
	query := fmt.Sprintf(`SELECT tid, dest_type, schema_name, table_name, mod_column,
		table_filter, schema_preserve_case, table_preserve_case
		FROM %s WHERE tid = $1`, r.table("dc_table_map"))

	var rows []compare.TableMap
	if err := r.Conn.Select(&rows, query, tid); err != nil {
		return nil, fmt.Errorf("select table maps: %w", err)
	}
	maps := make(map[compare.Side]compare.TableMap, len(rows))
	for _, tm := range rows {
		maps[tm.DestType] = tm
	}
	return maps, nil
}

// AliasOverrides returns the physical-column-to-alias overrides the user
// configured for a table: every stored column whose alias differs from
// its physical name.
func (r *Repo) AliasOverrides(tid int) (map[string]string, error) {
	query := fmt.Sprintf(`SELECT column_name, column_alias FROM %s
		WHERE tid = $1 AND lower(column_name) <> lower(column_alias)`,
		r.table("dc_table_column_map"))

	rows, err := r.Conn.Query(query, tid)
	if err != nil {
		return nil, fmt.Errorf("select alias overrides: %w", err)
	}
	defer rows.Close()

	overrides := map[string]string{}
	for rows.Next() {
		var name, alias string
		if err := rows.Scan(&name, &alias); err != nil {
			return nil, err
		}
		overrides[name] = alias
	}
	return overrides, rows.Err()
}

// SaveColumnMap persists the compiled column map, replacing any prior
// compilation for the table. User alias choices survive because the
// compiler carries them through into the rewritten rows.
func (r *Repo) SaveColumnMap(cm *compare.ColumnMap) error {
	tx, err := r.Conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE tid = $1",
		r.table("dc_table_column_map")), cm.Tid); err != nil {
		return fmt.Errorf("clear column map: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s
		(tid, column_alias, column_origin, column_name, data_type, data_class,
		 data_length, data_precision, data_scale, nullable, primary_key,
		 preserve_case, supported, value_expression)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		r.table("dc_table_column_map"))

	for _, mc := range cm.Columns {
		for _, s := range compare.Sides {
			side := mc.Source
			if s == compare.SideTarget {
				side = mc.Target
			}
			if side == nil {
				continue
			}
			if _, err := tx.Exec(insert,
				cm.Tid, mc.Alias, string(s), side.ColumnName, side.DataType,
				side.DataClass, side.DataLength, side.DataPrecision,
				side.DataScale, side.Nullable, side.PrimaryKey,
				side.PreserveCase, side.Supported, side.ValueExpression,
			); err != nil {
				return fmt.Errorf("save column map %s/%s: %w", mc.Alias, s, err)
			}
		}
	}
	return tx.Commit()
}

// ClearStaging removes the table's staged fingerprints and the batch's
// prior findings before a fresh compare.
func (r *Repo) ClearStaging(tid, batchNbr int) error {
	for _, s := range compare.Sides {
		if _, err := r.Conn.Exec(fmt.Sprintf(
			"DELETE FROM %s WHERE tid = $1", r.StagingTable(s)), tid); err != nil {
			return fmt.Errorf("clear staging %s: %w", s, err)
		}
		if _, err := r.Conn.Exec(fmt.Sprintf(
			"DELETE FROM %s WHERE tid = $1 AND batch_nbr = $2",
			r.findingsTable(s)), tid, batchNbr); err != nil {
			return fmt.Errorf("clear findings %s: %w", s, err)
		}
	}
	return nil
}

// StagedCount reports rows currently staged for a side of a table.
func (r *Repo) StagedCount(s compare.Side, tid int) (int64, error) {
	var n int64
	err := r.Conn.Get(&n, fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE tid = $1", r.StagingTable(s)), tid)
	return n, err
}

// VacuumStaging reclaims space in both staging tables. Vacuum cannot run
// inside a transaction; errors are the caller's to downgrade.
func (r *Repo) VacuumStaging() error {
	for _, s := range compare.Sides {
		if _, err := r.Conn.Exec("VACUUM " + r.StagingTable(s)); err != nil {
			return err
		}
	}
	return nil
}

// RunCompare classifies the staged fingerprints of a table by
// set-difference SQL and records the out-of-sync rows as findings.
//
// Verdicts: a pk_hash present on both sides with differing column_hash is
// not_equal (a finding on each side); a pk_hash present on one side only
// is missing on the other, recorded as a finding on the side that has the
// row; equal rows are only counted.
func (r *Repo) RunCompare(tid, batchNbr int) (compare.CompareCounts, error) {
	var counts compare.CompareCounts

	tx, err := r.Conn.Begin()
	if err != nil {
		return counts, err
	}
	defer tx.Rollback()

	source := r.StagingTable(compare.SideSource)
	target := r.StagingTable(compare.SideTarget)

	notEqual := func(findings, mine, other string) (int64, error) {
		res, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s (tid, batch_nbr, pk, status)
			SELECT m.tid, $2, m.pk, 'not_equal'
			FROM %s m JOIN %s o ON m.tid = o.tid AND m.pk_hash = o.pk_hash
			WHERE m.tid = $1 AND m.column_hash <> o.column_hash`,
			findings, mine, other), tid, batchNbr)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	missing := func(findings, mine, other string) (int64, error) {
		res, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s (tid, batch_nbr, pk, status)
			SELECT m.tid, $2, m.pk, 'missing'
			FROM %s m LEFT JOIN %s o ON m.tid = o.tid AND m.pk_hash = o.pk_hash
			WHERE m.tid = $1 AND o.pk_hash IS NULL`,
			findings, mine, other), tid, batchNbr)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	if counts.NotEqual, err = notEqual(r.findingsTable(compare.SideSource), source, target); err != nil {
		return counts, fmt.Errorf("compare not_equal source: %w", err)
	}
	if _, err = notEqual(r.findingsTable(compare.SideTarget), target, source); err != nil {
		return counts, fmt.Errorf("compare not_equal target: %w", err)
	}

	// A row staged on the source but absent from the target is missing on
	// the target, and vice versa.
	if counts.MissingTarget, err = missing(r.findingsTable(compare.SideSource), source, target); err != nil {
		return counts, fmt.Errorf("compare missing target: %w", err)
	}
	if counts.MissingSource, err = missing(r.findingsTable(compare.SideTarget), target, source); err != nil {
		return counts, fmt.Errorf("compare missing source: %w", err)
	}

	err = tx.QueryRow(fmt.Sprintf(`SELECT count(*)
		FROM %s s JOIN %s t ON s.tid = t.tid AND s.pk_hash = t.pk_hash
		WHERE s.tid = $1 AND s.column_hash = t.column_hash`,
		source, target), tid).Scan(&counts.Equal)
	if err != nil {
		return counts, fmt.Errorf("compare equal count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return counts, err
	}
	return counts, nil
}

// Findings returns the batch's recorded findings across both sides.
func (r *Repo) Findings(tid, batchNbr int) ([]compare.Finding, error) {
	query := fmt.Sprintf(`SELECT tid, batch_nbr, 'source' AS side, pk, status FROM %s
		WHERE tid = $1 AND batch_nbr = $2
		UNION ALL
		SELECT tid, batch_nbr, 'target' AS side, pk, status FROM %s
		WHERE tid = $1 AND batch_nbr = $2`,
		r.findingsTable(compare.SideSource), r.findingsTable(compare.SideTarget))

	var findings []compare.Finding
	if err := r.Conn.Select(&findings, query, tid, batchNbr); err != nil {
		return nil, fmt.Errorf("select findings: %w", err)
	}
	return findings, nil
}

// DeleteFinding clears one resolved finding.
func (r *Repo) DeleteFinding(f compare.Finding) error {
	_, err := r.Conn.Exec(fmt.Sprintf(
		"DELETE FROM %s WHERE tid = $1 AND batch_nbr = $2 AND pk = $3",
		r.findingsTable(f.Side)), f.Tid, f.BatchNbr, f.PK)
	return err
}

// StartHistory opens a run-history row for a table action.
func (r *Repo) StartHistory(tid int, action string, batchNbr int) error {
	_, err := r.Conn.Exec(fmt.Sprintf(`INSERT INTO %s
		(tid, action_type, batch_nbr, start_dt, status)
		VALUES ($1, $2, $3, current_timestamp, 'running')`,
		r.table("dc_table_history")), tid, action, batchNbr)
	return err
}

// CompleteHistory closes the most recent open history row for the action
// with the run's outcome.
func (r *Repo) CompleteHistory(tid int, action string, batchNbr int, status string, result compare.TableResult) error {
	_, err := r.Conn.Exec(fmt.Sprintf(`UPDATE %s SET
		end_dt = current_timestamp, status = $4, row_count = $5,
		equal_cnt = $6, not_equal_cnt = $7,
		missing_source_cnt = $8, missing_target_cnt = $9
		WHERE tid = $1 AND action_type = $2 AND batch_nbr = $3
		AND end_dt IS NULL`,
		r.table("dc_table_history")),
		tid, action, batchNbr, status, result.Counts.Total(),
		result.Counts.Equal, result.Counts.NotEqual,
		result.Counts.MissingSource, result.Counts.MissingTarget)
	if err != nil {
		log.WithField("thread", "repo").Errorf("Error updating history: %s", err)
	}
	return err
}

var _ compare.Repository = (*Repo)(nil)
