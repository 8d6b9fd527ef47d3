package database

import "fmt"

var db2Templates = templates{
	driverName: "go_ibm_db",
	quoteChar:  `"`,
	nativeCase: CaseUpper,
	selectColumns: `SELECT c.tabschema AS owner, c.tabname AS table_name, c.colname AS column_name,
       lower(c.typename) AS data_type,
       coalesce(c.length, 0) AS data_length,
       coalesce(c.length, 0) AS data_precision,
       coalesce(c.scale, 0) AS data_scale,
       CASE WHEN c.nulls = 'Y' THEN 'Y' ELSE 'N' END AS nullable,
       CASE WHEN c.keyseq IS NULL OR c.keyseq = 0 THEN 'N' ELSE 'Y' END AS pk
  FROM syscat.columns c
 WHERE c.tabschema = ?
   AND c.tabname = ?
 ORDER BY c.colno`,
	selectTables: `SELECT tabschema AS owner, tabname AS table_name
  FROM syscat.tables
 WHERE tabschema = ?
   AND type = 'T'
 ORDER BY tabname`,
	selectVersion: "SELECT service_level AS version FROM sysibmadm.env_inst_info",
	sessionSetup:  nil,
	// HASH(expr, 0) is MD5 on Db2 11.1+.
	hashFormat:   "lower(hex(hash(%s,0)))",
	valueSep:     " || ",
	concatFormat: "%s",
	concatSep:    " || ",
	placeholder:  func(i int) string { return "?" },
	shard: func(col string, parallel, shard int) string {
		return fmt.Sprintf("mod(abs(hash4(%s)),%d) = %d", col, parallel, shard)
	},
}

func db2BuildDSN(cfg Config) string {
	return fmt.Sprintf("HOSTNAME=%s;PORT=%d;DATABASE=%s;UID=%s;PWD=%s",
		cfg.Host, cfg.Port, cfg.DBName, cfg.User, cfg.Password)
}
