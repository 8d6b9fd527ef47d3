package compare

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/pgcompare/pgcompare/database"
)

// MapError reports that the compiler could not align the primary keys of
// the two sides; the table cannot be reconciled.
type MapError struct {
	Tid    int
	Reason string
}

func (e *MapError) Error() string {
	return fmt.Sprintf("column map for tid %d: %s", e.Tid, e.Reason)
}

// CompileColumnMap aligns source and target column metadata by
// case-insensitive alias, compiles the per-side value expressions and the
// two hash projections. aliasOverride maps a physical column name (either
// side, case-insensitive) to the logical alias it should pair under.
func CompileColumnMap(
	tid int,
	sourceDialect, targetDialect database.Dialect,
	sourceCols, targetCols []database.ColumnInfo,
	aliasOverride map[string]string,
	opts CastOptions,
) (*ColumnMap, error) {
	entries := map[string]*MappedColumn{}

	aliasFor := func(columnName string) string {
		for physical, alias := range aliasOverride {
			if strings.EqualFold(physical, columnName) {
				return strings.ToLower(alias)
			}
		}
		return strings.ToLower(columnName)
	}

	for i := range sourceCols {
		col := &sourceCols[i]
		alias := aliasFor(col.ColumnName)
		entry := entries[alias]
		if entry == nil {
			entry = &MappedColumn{Alias: alias}
			entries[alias] = entry
		}
		entry.Source = compileSide(sourceDialect, col, opts)
	}
	for i := range targetCols {
		col := &targetCols[i]
		alias := aliasFor(col.ColumnName)
		entry := entries[alias]
		if entry == nil {
			entry = &MappedColumn{Alias: alias}
			entries[alias] = entry
		}
		entry.Target = compileSide(targetDialect, col, opts)
	}

	// Lexicographic alias order keeps the hash input alignment-stable
	// regardless of catalog ordering.
	aliases := make([]string, 0, len(entries))
	for alias := range entries {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	cm := &ColumnMap{Tid: tid}
	for _, alias := range aliases {
		entry := entries[alias]
		if entry.Source == nil || entry.Target == nil {
			log.WithField("thread", "column-map").Warnf(
				"Column %s has no match on the %s side and is excluded from hashing",
				alias, missingSideOf(entry))
		} else if !entry.Source.Supported || !entry.Target.Supported {
			log.WithField("thread", "column-map").Warnf(
				"Column %s has an unsupported data type and is excluded from hashing", alias)
		}
		cm.Columns = append(cm.Columns, *entry)
	}

	if err := cm.validateKeys(); err != nil {
		return nil, err
	}

	cm.Source = compileExpressions(sourceDialect, cm, SideSource)
	cm.Target = compileExpressions(targetDialect, cm, SideTarget)
	return cm, nil
}

func missingSideOf(entry *MappedColumn) Side {
	if entry.Source == nil {
		return SideSource
	}
	return SideTarget
}

func compileSide(d database.Dialect, col *database.ColumnInfo, opts CastOptions) *ColumnSide {
	supported := Classify(col.DataType) != ClassUnsupported
	if !supported {
		log.WithField("thread", "column-map").Warnf(
			"Unsupported data type (%s) for column (%s)", col.DataType, col.ColumnName)
	}

	preserve := d.PreserveCase(col.ColumnName)
	quoted := d.Quote(col.ColumnName, preserve)

	side := &ColumnSide{
		ColumnName:    col.ColumnName,
		DataType:      col.DataType,
		DataLength:    col.DataLength,
		DataPrecision: col.DataPrecision,
		DataScale:     col.DataScale,
		Nullable:      col.Nullable == "Y",
		PrimaryKey:    col.PrimaryKey == "Y",
		DataClass:     DataClass(col.DataType),
		PreserveCase:  preserve,
		Supported:     supported,
	}
	if supported {
		side.ValueExpression = ValueExpression(d, quoted, col.DataType, col.DataPrecision, col.DataScale, opts)
	}
	return side
}

func (cm *ColumnMap) validateKeys() error {
	var sourceKeys, targetKeys int
	for _, c := range cm.Columns {
		if c.Source != nil && c.Source.PrimaryKey {
			sourceKeys++
		}
		if c.Target != nil && c.Target.PrimaryKey {
			targetKeys++
		}
	}
	if sourceKeys == 0 || targetKeys == 0 {
		return &MapError{Tid: cm.Tid, Reason: "no primary key columns on one or both sides"}
	}
	if sourceKeys != targetKeys {
		return &MapError{Tid: cm.Tid, Reason: fmt.Sprintf(
			"primary key cardinality differs: source=%d target=%d", sourceKeys, targetKeys)}
	}
	if len(cm.PKColumns()) != sourceKeys {
		return &MapError{Tid: cm.Tid, Reason: "primary key columns do not align across sides"}
	}
	return nil
}

func compileExpressions(d database.Dialect, cm *ColumnMap, s Side) SideExpressions {
	var pkValues, colValues []string

	for i := range cm.Columns {
		c := &cm.Columns[i]
		if !c.Hashable() {
			continue
		}
		expr := c.side(s).ValueExpression
		if c.IsPrimaryKey() {
			pkValues = append(pkValues, expr)
		} else {
			colValues = append(colValues, expr)
		}
	}

	// A table whose every hashable column is part of the key still needs
	// a well-formed column digest: hash the empty string.
	if len(colValues) == 0 {
		colValues = []string{d.StringLiteral("")}
	}

	return SideExpressions{
		PKExpression:     d.HashExpr(pkValues),
		ColumnExpression: d.HashExpr(colValues),
		PKJSON:           buildPKJSON(d, cm, s),
	}
}

// buildPKJSON emits the SQL expression producing the pk JSON object
// literal, e.g. {"id": "42"}.
func buildPKJSON(d database.Dialect, cm *ColumnMap, s Side) string {
	var parts []string
	first := true
	for i := range cm.Columns {
		c := &cm.Columns[i]
		if !c.IsPrimaryKey() {
			continue
		}
		prefix := `, "`
		if first {
			prefix = `{"`
			first = false
		}
		parts = append(parts,
			d.StringLiteral(prefix+c.Alias+`": "`),
			c.side(s).ValueExpression,
			d.StringLiteral(`"`),
		)
	}
	parts = append(parts, d.StringLiteral("}"))
	return d.ConcatExpr(parts)
}
