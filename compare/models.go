package compare

import "time"

// Side names one end of the reconciliation.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// Sides in processing order.
var Sides = []Side{SideSource, SideTarget}

// RunMode distinguishes a full compare from a recheck pass.
type RunMode int

const (
	ModeCompare RunMode = iota
	ModeCheck
)

// Table status values of the reconciliation state machine.
const (
	StatusPending    = "pending"
	StatusRunning    = "running"
	StatusCompared   = "compared"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
	StatusRechecking = "rechecking"
	StatusRechecked  = "rechecked"
)

// TableEntry is one reconcilable table (dc_table).
type TableEntry struct {
	Tid            int    `db:"tid"`
	Pid            int    `db:"pid"`
	Alias          string `db:"alias"`
	Enabled        bool   `db:"enabled"`
	BatchNbr       int    `db:"batch_nbr"`
	ParallelDegree int    `db:"parallel_degree"`
}

// TableMap is one side's physical mapping of a TableEntry (dc_table_map).
type TableMap struct {
	Tid                int    `db:"tid"`
	DestType           Side   `db:"dest_type"`
	SchemaName         string `db:"schema_name"`
	TableName          string `db:"table_name"`
	ModColumn          string `db:"mod_column"`
	TableFilter        string `db:"table_filter"`
	SchemaPreserveCase bool   `db:"schema_preserve_case"`
	TablePreserveCase  bool   `db:"table_preserve_case"`
}

// ColumnSide is the per-side half of a mapped column
// (dc_table_column_map).
type ColumnSide struct {
	ColumnName      string `db:"column_name"`
	DataType        string `db:"data_type"`
	DataLength      int    `db:"data_length"`
	DataPrecision   int    `db:"data_precision"`
	DataScale       int    `db:"data_scale"`
	Nullable        bool   `db:"nullable"`
	PrimaryKey      bool   `db:"pk"`
	DataClass       string `db:"data_class"`
	PreserveCase    bool   `db:"preserve_case"`
	ValueExpression string `db:"value_expression"`
	Supported       bool   `db:"supported"`
}

// MappedColumn pairs the two sides of one logical column. A side left nil
// has no counterpart and is excluded from hashing.
type MappedColumn struct {
	Alias  string
	Source *ColumnSide
	Target *ColumnSide
}

func (m *MappedColumn) side(s Side) *ColumnSide {
	if s == SideSource {
		return m.Source
	}
	return m.Target
}

// Hashable reports whether the column participates in fingerprinting:
// present and supported on both sides.
func (m *MappedColumn) Hashable() bool {
	return m.Source != nil && m.Target != nil && m.Source.Supported && m.Target.Supported
}

// IsPrimaryKey is true when both sides declare the column as key.
func (m *MappedColumn) IsPrimaryKey() bool {
	return m.Hashable() && m.Source.PrimaryKey && m.Target.PrimaryKey
}

// SideExpressions holds the compiled projection for one side.
type SideExpressions struct {
	PKExpression     string // md5 over ordered pk values
	ColumnExpression string // md5 over ordered non-pk values
	PKJSON           string // JSON object literal of pk aliases/values
}

// ColumnMap is the aligned, compiled mapping for one table.
type ColumnMap struct {
	Tid     int
	Columns []MappedColumn // ordered lexicographically by alias
	Source  SideExpressions
	Target  SideExpressions
}

// Expressions returns the compiled projection for a side.
func (cm *ColumnMap) Expressions(s Side) SideExpressions {
	if s == SideSource {
		return cm.Source
	}
	return cm.Target
}

// PKColumns returns the mapped primary-key columns in alias order.
func (cm *ColumnMap) PKColumns() []MappedColumn {
	var pks []MappedColumn
	for _, c := range cm.Columns {
		if c.IsPrimaryKey() {
			pks = append(pks, c)
		}
	}
	return pks
}

// RowFingerprint is one staged row: the pk digest, the non-pk column
// digest and the pk values as a JSON object.
type RowFingerprint struct {
	Tid        int    `db:"tid"`
	PKHash     string `db:"pk_hash"`
	ColumnHash string `db:"column_hash"`
	PK         string `db:"pk"`
}

// Batch is the unit moved between extractor and loader. An empty batch is
// the end-of-shard sentinel.
type Batch []RowFingerprint

// Finding is a per-row out-of-sync verdict (dc_*_findings).
const (
	FindingNotEqual = "not_equal"
	FindingMissing  = "missing"
)

type Finding struct {
	Tid      int    `db:"tid"`
	BatchNbr int    `db:"batch_nbr"`
	Side     Side   `db:"side"`
	PK       string `db:"pk"`
	Status   string `db:"status"`
}

// Recheck outcomes.
const (
	RecheckConfirmed    = "confirmed"
	RecheckResolved     = "resolved"
	RecheckStillMissing = "still_missing"
)

// CompareCounts is the per-table verdict tally.
type CompareCounts struct {
	Equal         int64 `json:"equal"`
	NotEqual      int64 `json:"notEqual"`
	MissingSource int64 `json:"missingSource"`
	MissingTarget int64 `json:"missingTarget"`
}

// OutOfSync is the number of rows that are not equal on both sides.
func (c CompareCounts) OutOfSync() int64 {
	return c.NotEqual + c.MissingSource + c.MissingTarget
}

// Total is the row count of the union of both sides by pk_hash.
func (c CompareCounts) Total() int64 {
	return c.Equal + c.OutOfSync()
}

// TableResult is the reconciler's per-table outcome, consumed by the run
// summary and the HTML report.
type TableResult struct {
	Tid       int           `json:"tid"`
	Alias     string        `json:"tableName"`
	BatchNbr  int           `json:"batchNbr"`
	Status    string        `json:"compareStatus"`
	Counts    CompareCounts `json:"counts"`
	Elapsed   time.Duration `json:"elapsed"`
	Rechecks  []RecheckResult
	StartedAt time.Time
}

// RowsPerSecond is the sustained throughput of the table's run.
func (r TableResult) RowsPerSecond() int64 {
	secs := int64(r.Elapsed / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return r.Counts.Total() / secs
}

// RecheckResult records the re-examination of one finding.
type RecheckResult struct {
	Finding Finding
	Outcome string
}
