package repo

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pgcompare/pgcompare/compare"
	"github.com/pgcompare/pgcompare/database"
)

// Discover scans the source schema's catalog and registers every base
// table that also exists on the target: a dc_table row, the two
// dc_table_map rows and the raw column metadata. Tables already
// registered under the project keep their configuration.
func (r *Repo) Discover(source, target *database.Conn, sourceSchema, targetSchema string) error {
	logger := log.WithField("thread", "discovery")

	tables, err := source.SelectTables(sourceSchema)
	if err != nil {
		return fmt.Errorf("discover source schema %s: %w", sourceSchema, err)
	}
	logger.Infof("Found %d table(s) in source schema %s", len(tables), sourceSchema)

	registered := 0
	for _, t := range tables {
		alias := strings.ToLower(t.TableName)

		exists, err := r.tableRegistered(alias)
		if err != nil {
			return err
		}
		if exists {
			logger.Debugf("Table %s already registered, skipping", alias)
			continue
		}

		targetName, ok, err := matchTargetTable(target, targetSchema, t.TableName)
		if err != nil {
			return err
		}
		if !ok {
			logger.Warnf("Table %s has no counterpart in target schema %s, skipping",
				t.TableName, targetSchema)
			continue
		}

		if err := r.registerTable(alias, source, target,
			sourceSchema, t.TableName, targetSchema, targetName); err != nil {
			return err
		}
		logger.Infof("Registered table %s", alias)
		registered++
	}

	logger.Infof("Discovery complete, %d table(s) registered", registered)
	return nil
}

// matchTargetTable finds the target table pairing with a source table
// name, case-insensitively.
func matchTargetTable(target *database.Conn, schema, name string) (string, bool, error) {
	tables, err := target.SelectTables(schema)
	if err != nil {
		return "", false, fmt.Errorf("discover target schema %s: %w", schema, err)
	}
	for _, t := range tables {
		if strings.EqualFold(t.TableName, name) {
			return t.TableName, true, nil
		}
	}
	return "", false, nil
}

func (r *Repo) tableRegistered(alias string) (bool, error) {
	var n int
	err := r.Conn.Get(&n, fmt.Sprintf(
		"SELECT count(*) FROM %s WHERE pid = $1 AND alias = $2",
		r.table("dc_table")), r.Project, alias)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", alias, err)
	}
	return n > 0, nil
}

func (r *Repo) registerTable(alias string, source, target *database.Conn,
	sourceSchema, sourceTable, targetSchema, targetTable string) error {

	tx, err := r.Conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var tid int
	err = tx.QueryRow(fmt.Sprintf(
		"INSERT INTO %s (pid, alias) VALUES ($1, $2) RETURNING tid",
		r.table("dc_table")), r.Project, alias).Scan(&tid)
	if err != nil {
		return fmt.Errorf("register table %s: %w", alias, err)
	}

	insertMap := fmt.Sprintf(`INSERT INTO %s
		(tid, dest_type, schema_name, table_name, schema_preserve_case, table_preserve_case)
		VALUES ($1, $2, $3, $4, $5, $6)`, r.table("dc_table_map"))
	maps := []struct {
		side   compare.Side
		conn   *database.Conn
		schema string
		name   string
	}{
		{compare.SideSource, source, sourceSchema, sourceTable},
		{compare.SideTarget, target, targetSchema, targetTable},
	}
	for _, m := range maps {
		d := m.conn.Dialect
		if _, err := tx.Exec(insertMap, tid, string(m.side), m.schema, m.name,
			d.PreserveCase(m.schema), d.PreserveCase(m.name)); err != nil {
			return fmt.Errorf("register table map %s/%s: %w", alias, m.side, err)
		}
	}

	insertCol := fmt.Sprintf(`INSERT INTO %s
		(tid, column_alias, column_origin, column_name, data_type, data_class,
		 data_length, data_precision, data_scale, nullable, primary_key, preserve_case)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.table("dc_table_column_map"))
	for _, m := range maps {
		cols, err := m.conn.SelectColumns(m.schema, m.name)
		if err != nil {
			return err
		}
		for _, c := range cols {
			if _, err := tx.Exec(insertCol,
				tid, strings.ToLower(c.ColumnName), string(m.side), c.ColumnName,
				strings.ToLower(c.DataType), compare.DataClass(c.DataType),
				c.DataLength, c.DataPrecision, c.DataScale,
				c.Nullable == "Y", c.PrimaryKey == "Y",
				m.conn.Dialect.PreserveCase(c.ColumnName),
			); err != nil {
				return fmt.Errorf("register column %s.%s: %w", alias, c.ColumnName, err)
			}
		}
	}

	return tx.Commit()
}
