package compare

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgcompare/pgcompare/config"
	"github.com/pgcompare/pgcompare/database"
)

func mockConn(t *testing.T, dialect database.Dialect) (*database.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &database.Conn{DB: sqlx.NewDb(db, "sqlmock"), Dialect: dialect}, mock
}

func extractorCfg() *config.Config {
	return &config.Config{
		BatchFetchSize:          2,
		BatchProgressReportSize: 1000000,
		MessageQueueSize:        10,
	}
}

func TestExtractorBuildSelect(t *testing.T) {
	conn, _ := mockConn(t, database.Postgres)
	e := &Extractor{
		Side:     SideSource,
		Shard:    1,
		Parallel: 2,
		Tid:      3,
		Conn:     conn,
		Table: TableMap{
			SchemaName:  "public",
			TableName:   "orders",
			ModColumn:   "id",
			TableFilter: "status = 'A'",
		},
		Exprs: SideExpressions{
			PKExpression:     "pk_expr",
			ColumnExpression: "col_expr",
			PKJSON:           "json_expr",
		},
		Cfg: func() *config.Config { c := extractorCfg(); c.DatabaseSort = true; return c }(),
	}

	assert.Equal(t,
		"SELECT pk_expr AS pk_hash, col_expr AS column_hash, json_expr AS pk "+
			"FROM public.orders WHERE 1=1 "+
			"AND mod(abs(hashtext(id::text)),2) = 1 "+
			"AND (status = 'A') ORDER BY 1",
		e.buildSelect())
}

func TestExtractorBuildSelectSingleShard(t *testing.T) {
	conn, _ := mockConn(t, database.MySQL)
	e := &Extractor{
		Side:     SideTarget,
		Parallel: 1,
		Conn:     conn,
		Table:    TableMap{SchemaName: "sales", TableName: "orders", ModColumn: "id"},
		Exprs:    SideExpressions{PKExpression: "p", ColumnExpression: "c", PKJSON: "j"},
		Cfg:      extractorCfg(),
	}
	// No shard predicate, no filter, no sort.
	assert.Equal(t,
		"SELECT p AS pk_hash, c AS column_hash, j AS pk FROM sales.orders WHERE 1=1",
		e.buildSelect())
}

func TestExtractorRun(t *testing.T) {
	conn, mock := mockConn(t, database.Postgres)
	ts := &ThreadSync{}
	ts.ExtractorStarted(SideSource)
	q := NewQueue(10)

	e := &Extractor{
		Side:  SideSource,
		Tid:   5,
		Shard: 0, Parallel: 1,
		Conn:  conn,
		Table: TableMap{SchemaName: "public", TableName: "t1"},
		Exprs: SideExpressions{PKExpression: "p", ColumnExpression: "c", PKJSON: "j"},
		Queue: q,
		Sync:  ts,
		Cfg:   extractorCfg(),
	}

	rows := sqlmock.NewRows([]string{"pk_hash", "column_hash", "pk"}).
		AddRow("h1", "c1", `{"id": "1"}`).
		AddRow("h2", "c2", `{"id": "2"}`).
		AddRow("h3", "c3", `{"id": "3"}`).
		AddRow(nil, nil, nil) // a fully-null projection is skipped
	mock.ExpectQuery(regexp.QuoteMeta(e.buildSelect())).WillReturnRows(rows)

	require.NoError(t, e.Run())

	// Batch size 2: two full reads then the remainder, then the sentinel.
	first, ok := q.Poll(time.Second)
	require.True(t, ok)
	require.Len(t, first, 2)
	assert.Equal(t, RowFingerprint{Tid: 5, PKHash: "h1", ColumnHash: "c1", PK: `{"id": "1"}`}, first[0])

	second, ok := q.Poll(time.Second)
	require.True(t, ok)
	require.Len(t, second, 1)
	assert.Equal(t, "h3", second[0].PKHash)

	sentinel, ok := q.Poll(time.Second)
	require.True(t, ok)
	assert.Empty(t, sentinel)

	assert.False(t, ts.SidesComplete(), "target side never ran")
	assert.Equal(t, 0, ts.ExtractErrors())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtractorRunQueryError(t *testing.T) {
	conn, mock := mockConn(t, database.Postgres)
	ts := &ThreadSync{}
	ts.ExtractorStarted(SideSource)
	q := NewQueue(10)

	e := &Extractor{
		Side: SideSource, Parallel: 1,
		Conn:  conn,
		Table: TableMap{SchemaName: "public", TableName: "t1"},
		Exprs: SideExpressions{PKExpression: "p", ColumnExpression: "c", PKJSON: "j"},
		Queue: q,
		Sync:  ts,
		Cfg:   extractorCfg(),
	}

	mock.ExpectQuery(regexp.QuoteMeta(e.buildSelect())).
		WillReturnError(assert.AnError)

	require.Error(t, e.Run())
	assert.Equal(t, 1, ts.ExtractErrors())

	// The sentinel is still delivered so loaders wake up.
	sentinel, ok := q.Poll(time.Second)
	require.True(t, ok)
	assert.Empty(t, sentinel)
}
