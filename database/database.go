// Package database holds the dialect adapter layer: per-engine SQL
// templates, identifier quoting and connection construction. Never deal
// with fingerprint expression construction here.
package database

import (
	"fmt"
	"strings"
)

// Dialect identifies one of the supported database engines.
type Dialect int

const (
	Postgres Dialect = iota
	Oracle
	MySQL
	MariaDB
	SQLServer
	DB2
)

// Case is the case an engine folds unquoted identifiers to.
type Case int

const (
	CaseLower Case = iota
	CaseUpper
)

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "oracle":
		return Oracle, nil
	case "mysql":
		return MySQL, nil
	case "mariadb":
		return MariaDB, nil
	case "mssql", "sqlserver":
		return SQLServer, nil
	case "db2":
		return DB2, nil
	default:
		return 0, fmt.Errorf("unknown database type: %s", s)
	}
}

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Oracle:
		return "oracle"
	case MySQL:
		return "mysql"
	case MariaDB:
		return "mariadb"
	case SQLServer:
		return "mssql"
	case DB2:
		return "db2"
	default:
		return "unknown"
	}
}

// templates is the per-engine record of SQL fragments and conventions.
// Everything the rest of the system needs to know about an engine is
// dispatched through this record rather than on string comparisons.
type templates struct {
	driverName    string
	quoteChar     string
	nativeCase    Case
	selectColumns string
	selectTables  string
	selectVersion string
	sessionSetup  []string
	// hashFormat wraps a joined value list into a lowercase 32-char
	// hex MD5 expression. valueSep joins the individual values.
	hashFormat string
	valueSep   string
	// concatFormat wraps a joined list of string fragments (used for
	// the pk JSON object literal).
	concatFormat string
	concatSep    string
	// placeholderFunc renders the i-th bind marker (1-based).
	placeholder func(i int) string
	// shardFormat receives column expression, modulus and shard index.
	shard func(col string, parallel, shard int) string
}

func (d Dialect) tmpl() templates {
	switch d {
	case Postgres:
		return postgresTemplates
	case Oracle:
		return oracleTemplates
	case MySQL:
		return mysqlTemplates
	case MariaDB:
		return mariadbTemplates
	case SQLServer:
		return mssqlTemplates
	case DB2:
		return db2Templates
	default:
		return postgresTemplates
	}
}

func (d Dialect) DriverName() string { return d.tmpl().driverName }

// NativeCase reports the case unquoted identifiers fold to.
func (d Dialect) NativeCase() Case { return d.tmpl().nativeCase }

// QuoteChar returns the engine's identifier quote character.
func (d Dialect) QuoteChar() string { return d.tmpl().quoteChar }

// SelectColumnsSQL returns the catalog query producing the uniform
// column projection (owner, table_name, column_name, data_type,
// data_length, data_precision, data_scale, nullable, pk) for a
// (schema, table) bind pair.
func (d Dialect) SelectColumnsSQL() string { return d.tmpl().selectColumns }

// SelectTablesSQL returns the catalog query listing tables of a schema.
func (d Dialect) SelectTablesSQL() string { return d.tmpl().selectTables }

// SelectVersionSQL returns the engine version query.
func (d Dialect) SelectVersionSQL() string { return d.tmpl().selectVersion }

// SessionSetup returns statements executed once per connection. They pin
// the session time zone so zoneless timestamps hash identically across
// engines.
func (d Dialect) SessionSetup() []string { return d.tmpl().sessionSetup }

// HashExpr wraps the given value expressions into the engine's MD5
// expression yielding 32 lowercase hex characters.
func (d Dialect) HashExpr(values []string) string {
	t := d.tmpl()
	return fmt.Sprintf(t.hashFormat, strings.Join(values, t.valueSep))
}

// ConcatExpr concatenates string-valued SQL fragments.
func (d Dialect) ConcatExpr(parts []string) string {
	t := d.tmpl()
	return fmt.Sprintf(t.concatFormat, strings.Join(parts, t.concatSep))
}

// StringLiteral renders s as a SQL string literal.
func (d Dialect) StringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Placeholder renders the i-th bind marker (1-based).
func (d Dialect) Placeholder(i int) string { return d.tmpl().placeholder(i) }

// ShardPredicate returns the predicate selecting shard s of p for the
// given mod-column expression.
func (d Dialect) ShardPredicate(col string, parallel, shard int) string {
	return d.tmpl().shard(col, parallel, shard)
}

// Quote renders an identifier. preserveCase forces quoting; otherwise the
// identifier is quoted only when it is a reserved word or does not match
// the engine's native case folding.
func (d Dialect) Quote(ident string, preserveCase bool) string {
	if preserveCase || reservedWords[strings.ToLower(ident)] {
		return d.quoted(ident)
	}
	if d.NativeCase() == CaseUpper {
		return strings.ToUpper(ident)
	}
	return strings.ToLower(ident)
}

func (d Dialect) quoted(ident string) string {
	q := d.QuoteChar()
	if q == "[" { // sqlserver brackets
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	}
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// PreserveCase reports whether a catalog identifier must keep its case,
// i.e. it does not match the engine's native folding.
func (d Dialect) PreserveCase(ident string) bool {
	if d.NativeCase() == CaseUpper {
		return ident != strings.ToUpper(ident)
	}
	return ident != strings.ToLower(ident)
}

// QualifiedTable renders schema.table with per-part case handling.
func (d Dialect) QualifiedTable(schema, table string, schemaPreserve, tablePreserve bool) string {
	return d.Quote(schema, schemaPreserve) + "." + d.Quote(table, tablePreserve)
}

// ColumnInfo is the uniform catalog projection shared by all dialects.
type ColumnInfo struct {
	Owner         string `db:"owner"`
	TableName     string `db:"table_name"`
	ColumnName    string `db:"column_name"`
	DataType      string `db:"data_type"`
	DataLength    int    `db:"data_length"`
	DataPrecision int    `db:"data_precision"`
	DataScale     int    `db:"data_scale"`
	Nullable      string `db:"nullable"` // 'Y' / 'N'
	PrimaryKey    string `db:"pk"`       // 'Y' / 'N'
}

// TableInfo is one row of a schema's table listing.
type TableInfo struct {
	Owner     string `db:"owner"`
	TableName string `db:"table_name"`
}

// reservedWords forces quoting regardless of case. The list is the union
// of words that are reserved in at least one supported engine.
var reservedWords = toSet([]string{
	"add", "all", "alter", "and", "any", "as", "asc", "at", "authid", "between", "by",
	"character", "check", "cluster", "column", "comment", "connect", "constraint", "continue",
	"create", "cross", "current", "current_user", "cursor", "database", "date", "default",
	"delete", "desc", "distinct", "double", "else", "end", "except", "exception", "exists",
	"external", "fetch", "for", "from", "grant", "group", "having", "identified", "if", "in",
	"index", "insert", "integer", "intersect", "into", "is", "join", "like", "lock", "long", "loop",
	"modify", "natural", "no", "not", "null", "on", "open", "option", "or", "order", "outer",
	"package", "prior", "privileges", "procedure", "public", "rename", "replace", "rowid", "rownum",
	"schema", "select", "session", "set", "sql", "start", "statement", "sys", "table", "then", "to",
	"trigger", "union", "unique", "update", "user", "values", "view", "varchar", "varchar2", "when",
	"where", "with", "xor",
})

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
