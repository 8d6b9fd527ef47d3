package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := map[string]TypeClass{
		"boolean":                        ClassBoolean,
		"bool":                           ClassBoolean,
		"varchar":                        ClassString,
		"VARCHAR2":                       ClassString,
		"text":                           ClassString,
		"jsonb":                          ClassString,
		"nvarchar":                       ClassString,
		"integer":                        ClassNumeric,
		"bigint":                         ClassNumeric,
		"numeric":                        ClassNumeric,
		"number":                         ClassNumeric,
		"double precision":               ClassNumeric,
		"money":                          ClassNumeric,
		"date":                           ClassTimestamp,
		"datetime2":                      ClassTimestamp,
		"timestamptz":                    ClassTimestamp,
		"timestamp(3)":                   ClassTimestamp,
		"timestamp(6) with time zone":    ClassTimestamp,
		"timestamp without time zone":    ClassTimestamp,
		"time without time zone":         ClassTimestamp,
		"year":                           ClassTimestamp,
		"bytea":                          ClassBinary,
		"blob":                           ClassBinary,
		"raw":                            ClassBinary,
		"varbinary":                      ClassBinary,
		"uniqueidentifier":               ClassUnsupported,
		"sql_variant":                    ClassUnsupported,
		"long raw":                       ClassUnsupported,
		"bit":                            ClassUnsupported,
		"some_custom_domain":             ClassString, // unknown types coerce to text
	}
	for dataType, want := range cases {
		assert.Equal(t, want, Classify(dataType), dataType)
	}
}

func TestDataClass(t *testing.T) {
	assert.Equal(t, "boolean", DataClass("bool"))
	assert.Equal(t, "numeric", DataClass("decimal"))
	assert.Equal(t, "char", DataClass("varchar"))
	assert.Equal(t, "char", DataClass("timestamptz"))
	assert.Equal(t, "char", DataClass("bytea"))
}

func TestHasTimeZone(t *testing.T) {
	assert.True(t, hasTimeZone("timestamptz"))
	assert.True(t, hasTimeZone("datetimeoffset"))
	assert.True(t, hasTimeZone("timestamp(6) with time zone"))
	assert.True(t, hasTimeZone("timestamp(6) with local time zone"))
	assert.False(t, hasTimeZone("timestamp"))
	assert.False(t, hasTimeZone("datetime2"))
	assert.False(t, hasTimeZone("date"))
}

func TestFractionalPrecision(t *testing.T) {
	assert.Equal(t, 3, fractionalPrecision("timestamp(3)", 0))
	assert.Equal(t, 6, fractionalPrecision("timestamp(6) with time zone", 0))
	assert.Equal(t, 0, fractionalPrecision("date", 6))
	assert.Equal(t, 0, fractionalPrecision("smalldatetime", 0))
	assert.Equal(t, 0, fractionalPrecision("year", 0))
	assert.Equal(t, 7, fractionalPrecision("datetime2", 0))
	assert.Equal(t, 6, fractionalPrecision("timestamp", 0))
	assert.Equal(t, 6, fractionalPrecision("timestamptz", 0))
	// Catalogs spelling the full name report no numeric scale for it; the
	// bare name still means microsecond resolution.
	assert.Equal(t, 6, fractionalPrecision("timestamp without time zone", 0))
	assert.Equal(t, 6, fractionalPrecision("timestamp with time zone", 0))
	assert.Equal(t, 3, fractionalPrecision("timestamp without time zone", 3))
	// Catalog-reported scale wins when declared.
	assert.Equal(t, 3, fractionalPrecision("datetime2", 3))
}

func TestIntegerAndFloatSets(t *testing.T) {
	assert.True(t, isInteger("bigint"))
	assert.True(t, isInteger("serial"))
	assert.False(t, isInteger("numeric"))
	assert.True(t, isFloat("double precision"))
	assert.True(t, isFloat("binary_double"))
	assert.False(t, isFloat("decimal"))
}
