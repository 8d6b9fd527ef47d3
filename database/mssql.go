package database

import (
	"fmt"
	"net/url"
)

var mssqlTemplates = templates{
	driverName: "sqlserver",
	quoteChar:  "[",
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
 WHERE c.table_schema = @p1
   AND c.table_name = @p2
 ORDER BY c.ordinal_position`,
	selectTables: `SELECT table_schema AS owner, table_name
  FROM information_schema.tables
 WHERE table_schema = @p1
   AND table_type = 'BASE TABLE'
 ORDER BY table_name`,
	selectVersion: "SELECT @@version AS version",
	sessionSetup:  nil,
	// concat() treats NULL as '' which matches the canonical NULL form.
	// concat promotes to nvarchar as soon as one fragment is nvarchar, and
	// hashbytes would then digest UTF-16LE bytes; recollating the varchar
	// conversion to a UTF-8 collation makes the digest byte-compatible
	// with md5() on the other engines.
	hashFormat:   "lower(convert(varchar(32),hashbytes('MD5',convert(varchar(max),concat('',%s)) collate Latin1_General_100_CI_AS_SC_UTF8),2))",
	valueSep:     ",",
	concatFormat: "concat(%s)",
	concatSep:    ",",
	placeholder:  func(i int) string { return fmt.Sprintf("@p%d", i) },
	shard: func(col string, parallel, shard int) string {
		return fmt.Sprintf("abs(checksum(%s)) %% %d = %d", col, parallel, shard)
	},
}

func mssqlBuildDSN(cfg Config) string {
	query := url.Values{}
	query.Add("database", cfg.DBName)
	if cfg.SSLMode == "disable" {
		query.Add("encrypt", "disable")
	} else if cfg.SSLMode == "require" {
		query.Add("encrypt", "true")
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
