package repo

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// CopyTable duplicates a registered table under a new alias within the
// project: the dc_table row, both side maps and the stored column rows.
// The copy starts with the default batch and parallel settings; staged
// rows, findings and history are not copied.
func (r *Repo) CopyTable(alias, newAlias string) error {
	logger := log.WithField("thread", "copy-table")

	exists, err := r.tableRegistered(newAlias)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("table %s already exists in project %d", newAlias, r.Project)
	}

	tx, err := r.Conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var srcTid int
	err = tx.QueryRow(fmt.Sprintf(
		"SELECT tid FROM %s WHERE pid = $1 AND lower(alias) = lower($2)",
		r.table("dc_table")), r.Project, alias).Scan(&srcTid)
	if err != nil {
		return fmt.Errorf("copy table %s: %w", alias, err)
	}

	var newTid int
	err = tx.QueryRow(fmt.Sprintf(`INSERT INTO %s (pid, alias, enabled, batch_nbr, parallel_degree)
		SELECT pid, $2, enabled, batch_nbr, parallel_degree FROM %s WHERE tid = $1
		RETURNING tid`,
		r.table("dc_table"), r.table("dc_table")), srcTid, newAlias).Scan(&newTid)
	if err != nil {
		return fmt.Errorf("copy table %s: %w", alias, err)
	}

	if _, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s
		(tid, dest_type, schema_name, table_name, mod_column, table_filter,
		 schema_preserve_case, table_preserve_case)
		SELECT $2, dest_type, schema_name, table_name, mod_column, table_filter,
		 schema_preserve_case, table_preserve_case
		FROM %s WHERE tid = $1`,
		r.table("dc_table_map"), r.table("dc_table_map")), srcTid, newTid); err != nil {
		return fmt.Errorf("copy table maps for %s: %w", alias, err)
	}

	if _, err := tx.Exec(fmt.Sprintf(`INSERT INTO %s
		(tid, column_alias, column_origin, column_name, data_type, data_class,
		 data_length, data_precision, data_scale, nullable, primary_key,
		 preserve_case, supported, value_expression)
		SELECT $2, column_alias, column_origin, column_name, data_type, data_class,
		 data_length, data_precision, data_scale, nullable, primary_key,
		 preserve_case, supported, value_expression
		FROM %s WHERE tid = $1`,
		r.table("dc_table_column_map"), r.table("dc_table_column_map")), srcTid, newTid); err != nil {
		return fmt.Errorf("copy column map for %s: %w", alias, err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Infof("Copied table %s to %s (tid %d)", alias, newAlias, newTid)
	return nil
}
