package compare

import (
	"regexp"
	"strconv"
	"strings"
)

// TypeClass groups declared column types by hashing behavior.
type TypeClass int

const (
	ClassBoolean TypeClass = iota
	ClassString
	ClassNumeric
	ClassTimestamp
	ClassBinary
	ClassUnsupported
)

var booleanTypes = typeSet("bool", "boolean")

var stringTypes = typeSet(
	"bpchar", "char", "character", "clob", "enum", "json", "jsonb", "nchar", "nclob",
	"ntext", "nvarchar", "nvarchar2", "text", "varchar", "varchar2", "xml",
)

var numericTypes = typeSet(
	"bigint", "bigserial", "binary_double", "binary_float", "dec",
	"decimal", "double", "double precision", "fixed", "float", "float4",
	"float8", "int", "integer", "int2", "int4", "int8", "money", "number",
	"numeric", "real", "serial", "smallint", "smallmoney", "smallserial", "tinyint",
)

var timestampTypes = typeSet(
	"date", "datetime", "datetimeoffset", "datetime2", "smalldatetime",
	"time", "timestamp", "timestamptz", "year",
)

var binaryTypes = typeSet("bytea", "binary", "blob", "raw", "varbinary")

var unsupportedTypes = typeSet(
	"bfile", "bit", "cursor", "hierarchyid", "image", "rowid", "rowversion",
	"set", "sql_variant", "uniqueidentifier", "long", "long raw",
)

// integerTypes always take the integer text cast; the engines declare no
// scale for them (or declare precision in bits, which must not be
// mistaken for decimal digits).
var integerTypes = typeSet(
	"bigint", "bigserial", "int", "integer", "int2", "int4", "int8",
	"serial", "smallint", "smallserial", "tinyint",
)

var floatTypes = typeSet(
	"binary_double", "binary_float", "double", "double precision",
	"float", "float4", "float8", "real",
)

// timestampPrecisionRE matches a declared fractional precision such as
// timestamp(3) or timestamp(6) with time zone.
var timestampPrecisionRE = regexp.MustCompile(`^timestamp\((\d+)\)( with(?: local)? time zone)?$`)

func typeSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Classify places a lowercased declared type into its class. Unknown
// types default to string, matching the engines' text coercion.
func Classify(dataType string) TypeClass {
	t := strings.ToLower(strings.TrimSpace(dataType))
	switch {
	case unsupportedTypes[t]:
		return ClassUnsupported
	case booleanTypes[t]:
		return ClassBoolean
	case numericTypes[t]:
		return ClassNumeric
	case binaryTypes[t]:
		return ClassBinary
	case timestampTypes[t], timestampPrecisionRE.MatchString(t),
		strings.HasPrefix(t, "timestamp ") || strings.HasPrefix(t, "time "):
		return ClassTimestamp
	case stringTypes[t]:
		return ClassString
	default:
		return ClassString
	}
}

// DataClass collapses the class for the persisted column map: timestamps,
// strings and binary all hash through their canonical text form.
func DataClass(dataType string) string {
	switch Classify(dataType) {
	case ClassBoolean:
		return "boolean"
	case ClassNumeric:
		return "numeric"
	default:
		return "char"
	}
}

func isFloat(dataType string) bool {
	return floatTypes[strings.ToLower(strings.TrimSpace(dataType))]
}

func isInteger(dataType string) bool {
	return integerTypes[strings.ToLower(strings.TrimSpace(dataType))]
}

// hasTimeZone reports whether a timestamp type carries zone information.
func hasTimeZone(dataType string) bool {
	t := strings.ToLower(strings.TrimSpace(dataType))
	return t == "timestamptz" || t == "datetimeoffset" || strings.Contains(t, "with time zone") ||
		strings.Contains(t, "with local time zone")
}

// fractionalPrecision returns the fractional-second digits a timestamp
// type declares. Types without sub-second resolution return 0; plain
// timestamp types default to the engines' maximum of 6.
func fractionalPrecision(dataType string, dataScale int) int {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if m := timestampPrecisionRE.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	switch t {
	case "date", "smalldatetime", "year":
		return 0
	}
	if dataScale > 0 {
		return dataScale
	}
	// Catalogs that spell the full type name ("timestamp without time
	// zone") report no numeric scale for it, so the bare name defaults to
	// the engine's maximum resolution.
	switch {
	case t == "datetime2":
		return 7
	case t == "datetime", t == "datetimeoffset", strings.HasPrefix(t, "time"):
		return 6
	}
	return 0
}
