package database

import "fmt"

// MariaDB shares the MySQL driver, wire protocol and catalog; only the
// dialect tag differs so discovery records the engine it actually saw.
var mysqlTemplates = templates{
	driverName: "mysql",
	quoteChar:  "`",
	nativeCase: CaseLower,
	selectColumns: `SELECT c.table_schema AS owner, c.table_name, c.column_name,
       c.data_type,
       coalesce(c.character_maximum_length, 0) AS data_length,
       coalesce(c.numeric_precision, 0) AS data_precision,
       coalesce(c.numeric_scale, 0) AS data_scale,
       CASE WHEN c.is_nullable = 'YES' THEN 'Y' ELSE 'N' END AS nullable,
       CASE WHEN c.column_key = 'PRI' THEN 'Y' ELSE 'N' END AS pk
  FROM information_schema.columns c
 WHERE c.table_schema = ?
   AND c.table_name = ?
 ORDER BY c.ordinal_position`,
	selectTables: `SELECT table_schema AS owner, table_name
  FROM information_schema.tables
 WHERE table_schema = ?
   AND table_type = 'BASE TABLE'
 ORDER BY table_name`,
	selectVersion: "SELECT version() AS version",
	sessionSetup:  []string{"SET SESSION time_zone = '+00:00'"},
	hashFormat:    "md5(concat_ws('',%s))",
	valueSep:      ",",
	concatFormat:  "concat(%s)",
	concatSep:     ",",
	placeholder:   func(i int) string { return "?" },
	shard: func(col string, parallel, shard int) string {
		return fmt.Sprintf("mod(crc32(%s),%d) = %d", col, parallel, shard)
	},
}

var mariadbTemplates = func() templates {
	t := mysqlTemplates
	return t
}()

func mysqlBuildDSN(cfg Config) string {
	tls := "preferred"
	switch cfg.SSLMode {
	case "disable":
		tls = "false"
	case "require":
		tls = "true"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?tls=%s&parseTime=false",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, tls)
}
