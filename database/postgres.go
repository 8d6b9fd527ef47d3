package database

import (
	"fmt"
	"net/url"
)

var postgresTemplates = templates{
	driverName: "postgres",
	quoteChar:  `"`,
	nativeCase: CaseLower,
	selectColumns: `SELECT c.table_schema AS owner, c.table_name, c.column_name,
       c.data_type,
       coalesce(c.character_maximum_length, 0) AS data_length,
       coalesce(c.numeric_precision, 0) AS data_precision,
       coalesce(c.numeric_scale, 0) AS data_scale,
       CASE WHEN c.is_nullable = 'YES' THEN 'Y' ELSE 'N' END AS nullable,
       CASE WHEN pk.column_name IS NULL THEN 'N' ELSE 'Y' END AS pk
  FROM information_schema.columns c
  LEFT JOIN (SELECT kcu.table_schema, kcu.table_name, kcu.column_name
               FROM information_schema.table_constraints tc
               JOIN information_schema.key_column_usage kcu
                 ON tc.constraint_name = kcu.constraint_name
                AND tc.table_schema = kcu.table_schema
              WHERE tc.constraint_type = 'PRIMARY KEY') pk
    ON pk.table_schema = c.table_schema
   AND pk.table_name = c.table_name
   AND pk.column_name = c.column_name
 WHERE c.table_schema = $1
   AND c.table_name = $2
 ORDER BY c.ordinal_position`,
	selectTables: `SELECT table_schema AS owner, table_name
  FROM information_schema.tables
 WHERE table_schema = $1
   AND table_type = 'BASE TABLE'
 ORDER BY table_name`,
	selectVersion: "SELECT version() AS version",
	sessionSetup:  []string{"SET TIME ZONE 'UTC'"},
	hashFormat:    "md5(concat_ws('',%s))",
	valueSep:      ",",
	concatFormat:  "concat(%s)",
	concatSep:     ",",
	placeholder:   func(i int) string { return fmt.Sprintf("$%d", i) },
	shard: func(col string, parallel, shard int) string {
		return fmt.Sprintf("mod(abs(hashtext(%s::text)),%d) = %d", col, parallel, shard)
	},
}

// loaderSessionSetup is applied to repository loader connections. The
// staging rows are recoverable by re-running, so durability is traded for
// ingest rate.
var loaderSessionSetup = []string{
	"SET synchronous_commit = 'off'",
	"SET work_mem = '256MB'",
}

// LoaderSessionSetup returns the repository session settings used by
// staging loaders.
func LoaderSessionSetup() []string { return loaderSessionSetup }

func postgresBuildDSN(cfg Config) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.DBName, sslmode)
}
