package repo

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgcompare/pgcompare/compare"
	"github.com/pgcompare/pgcompare/database"
)

func mockRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn := &database.Conn{DB: sqlx.NewDb(db, "sqlmock"), Dialect: database.Postgres, Role: "repo"}
	cfg := database.Config{Type: database.Postgres, Schema: "pgcompare"}
	return New(conn, cfg, 1), mock
}

func TestStagingTable(t *testing.T) {
	r, _ := mockRepo(t)
	assert.Equal(t, "pgcompare.dc_source", r.StagingTable(compare.SideSource))
	assert.Equal(t, "pgcompare.dc_target", r.StagingTable(compare.SideTarget))
}

func TestTables(t *testing.T) {
	r, mock := mockRepo(t)

	rows := sqlmock.NewRows([]string{"tid", "pid", "alias", "enabled", "batch_nbr", "parallel_degree"}).
		AddRow(1, 1, "customers", true, 1, 4).
		AddRow(2, 1, "orders", false, 1, 1)
	mock.ExpectQuery(`SELECT tid, pid, alias, enabled, batch_nbr, parallel_degree`).
		WithArgs(1, 0).
		WillReturnRows(rows)

	tables, err := r.Tables(0, "")
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "customers", tables[0].Alias)
	assert.Equal(t, 4, tables[0].ParallelDegree)
	assert.False(t, tables[1].Enabled)
}

func TestTablesByAlias(t *testing.T) {
	r, mock := mockRepo(t)

	mock.ExpectQuery(`lower\(alias\) = lower\(\$3\)`).
		WithArgs(1, 2, "orders").
		WillReturnRows(sqlmock.NewRows([]string{"tid", "pid", "alias", "enabled", "batch_nbr", "parallel_degree"}).
			AddRow(2, 1, "orders", true, 2, 1))

	tables, err := r.Tables(2, "orders")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, 2, tables[0].Tid)
}

func TestTableMaps(t *testing.T) {
	r, mock := mockRepo(t)

	rows := sqlmock.NewRows([]string{"tid", "dest_type", "schema_name", "table_name",
		"mod_column", "table_filter", "schema_preserve_case", "table_preserve_case"}).
		AddRow(1, "source", "public", "customers", "id", "", false, false).
		AddRow(1, "target", "dbo", "Customers", "id", "region = 'US'", false, true)
	mock.ExpectQuery(`FROM pgcompare.dc_table_map`).WithArgs(1).WillReturnRows(rows)

	maps, err := r.TableMaps(1)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, "public", maps[compare.SideSource].SchemaName)
	assert.True(t, maps[compare.SideTarget].TablePreserveCase)
	assert.Equal(t, "region = 'US'", maps[compare.SideTarget].TableFilter)
}

func TestAliasOverrides(t *testing.T) {
	r, mock := mockRepo(t)

	rows := sqlmock.NewRows([]string{"column_name", "column_alias"}).
		AddRow("client_id", "customer_id")
	mock.ExpectQuery(`FROM pgcompare.dc_table_column_map`).WithArgs(1).WillReturnRows(rows)

	overrides, err := r.AliasOverrides(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"client_id": "customer_id"}, overrides)
}

func TestSaveColumnMap(t *testing.T) {
	r, mock := mockRepo(t)

	cm := &compare.ColumnMap{
		Tid: 3,
		Columns: []compare.MappedColumn{{
			Alias: "id",
			Source: &compare.ColumnSide{
				ColumnName: "id", DataType: "integer", DataClass: "numeric",
				PrimaryKey: true, Supported: true, ValueExpression: "src_expr",
			},
			Target: &compare.ColumnSide{
				ColumnName: "ID", DataType: "number", DataClass: "numeric",
				PrimaryKey: true, Supported: true, ValueExpression: "tgt_expr",
			},
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM pgcompare.dc_table_column_map`).
		WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO pgcompare.dc_table_column_map`).
		WithArgs(3, "id", "source", "id", "integer", "numeric", 0, 0, 0, false, true, false, true, "src_expr").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO pgcompare.dc_table_column_map`).
		WithArgs(3, "id", "target", "ID", "number", "numeric", 0, 0, 0, false, true, false, true, "tgt_expr").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, r.SaveColumnMap(cm))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearStaging(t *testing.T) {
	r, mock := mockRepo(t)

	mock.ExpectExec(`DELETE FROM pgcompare.dc_source WHERE`).
		WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec(`DELETE FROM pgcompare.dc_source_findings`).
		WithArgs(5, 1).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM pgcompare.dc_target WHERE`).
		WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec(`DELETE FROM pgcompare.dc_target_findings`).
		WithArgs(5, 1).WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, r.ClearStaging(5, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCompare(t *testing.T) {
	r, mock := mockRepo(t)

	mock.ExpectBegin()
	// not_equal findings on each side.
	mock.ExpectExec(`INSERT INTO pgcompare.dc_source_findings[\s\S]*'not_equal'`).
		WithArgs(7, 1).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO pgcompare.dc_target_findings[\s\S]*'not_equal'`).
		WithArgs(7, 1).WillReturnResult(sqlmock.NewResult(0, 3))
	// rows present on one side only.
	mock.ExpectExec(`INSERT INTO pgcompare.dc_source_findings[\s\S]*'missing'`).
		WithArgs(7, 1).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO pgcompare.dc_target_findings[\s\S]*'missing'`).
		WithArgs(7, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT count\(\*\)[\s\S]*column_hash = t.column_hash`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(940))
	mock.ExpectCommit()

	counts, err := r.RunCompare(7, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.NotEqual)
	assert.Equal(t, int64(2), counts.MissingTarget, "rows the source has and the target lacks")
	assert.Equal(t, int64(1), counts.MissingSource)
	assert.Equal(t, int64(940), counts.Equal)
	assert.Equal(t, int64(6), counts.OutOfSync())
	assert.Equal(t, int64(946), counts.Total())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCompareInSync(t *testing.T) {
	r, mock := mockRepo(t)

	mock.ExpectBegin()
	for i := 0; i < 4; i++ {
		mock.ExpectExec(`INSERT INTO pgcompare.dc_`).
			WithArgs(7, 1).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectQuery(`SELECT count\(\*\)`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1000))
	mock.ExpectCommit()

	counts, err := r.RunCompare(7, 1)
	require.NoError(t, err)
	assert.Zero(t, counts.OutOfSync())
	assert.Equal(t, int64(1000), counts.Equal)
}

func TestFindings(t *testing.T) {
	r, mock := mockRepo(t)

	rows := sqlmock.NewRows([]string{"tid", "batch_nbr", "side", "pk", "status"}).
		AddRow(7, 1, "source", `{"id": "1"}`, "not_equal").
		AddRow(7, 1, "target", `{"id": "2"}`, "missing")
	mock.ExpectQuery(`UNION ALL`).WithArgs(7, 1).WillReturnRows(rows)

	findings, err := r.Findings(7, 1)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, compare.SideSource, findings[0].Side)
	assert.Equal(t, compare.FindingMissing, findings[1].Status)
}

func TestDeleteFinding(t *testing.T) {
	r, mock := mockRepo(t)

	mock.ExpectExec(`DELETE FROM pgcompare.dc_target_findings`).
		WithArgs(7, 1, `{"id": "2"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := r.DeleteFinding(compare.Finding{
		Tid: 7, BatchNbr: 1, Side: compare.SideTarget, PK: `{"id": "2"}`,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyTable(t *testing.T) {
	r, mock := mockRepo(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM pgcompare.dc_table`).
		WithArgs(1, "orders_v2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT tid FROM pgcompare.dc_table`).
		WithArgs(1, "orders").
		WillReturnRows(sqlmock.NewRows([]string{"tid"}).AddRow(4))
	mock.ExpectQuery(`INSERT INTO pgcompare.dc_table[\s\S]*RETURNING tid`).
		WithArgs(4, "orders_v2").
		WillReturnRows(sqlmock.NewRows([]string{"tid"}).AddRow(9))
	mock.ExpectExec(`INSERT INTO pgcompare.dc_table_map`).
		WithArgs(4, 9).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO pgcompare.dc_table_column_map`).
		WithArgs(4, 9).WillReturnResult(sqlmock.NewResult(0, 8))
	mock.ExpectCommit()

	require.NoError(t, r.CopyTable("orders", "orders_v2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyTableExisting(t *testing.T) {
	r, mock := mockRepo(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM pgcompare.dc_table`).
		WithArgs(1, "orders").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	assert.Error(t, r.CopyTable("orders", "orders"))
}
