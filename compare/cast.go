package compare

import (
	"fmt"
	"strings"

	"github.com/pgcompare/pgcompare/config"
	"github.com/pgcompare/pgcompare/database"
)

// maxIntegerPrecision is the widest decimal precision rendered through
// the integer text cast; anything wider goes through the fixed-point
// path so the engines cannot silently round.
const maxIntegerPrecision = 18

// notationThreshold is the magnitude at which the notation cast modes
// switch to scientific form. Some engines clip very wide fixed-point
// text, which would desynchronize the hash input.
const notationThreshold = "1e15"

// CastOptions selects the hashing method and the numeric renderings.
type CastOptions struct {
	Method     string // config.HashMethodNormalized or config.HashMethodRaw
	NumberCast string // config.CastStandard or config.CastNotation
	FloatCast  string
}

// ValueExpression compiles the dialect-specific SQL fragment that yields
// the canonical text form of a column. Fingerprint equality across
// engines depends on every cast producing byte-identical text for
// semantically equal values; the per-class renderings below fix those
// byte forms.
func ValueExpression(d database.Dialect, quoted string, dataType string, precision, scale int, opts CastOptions) string {
	if opts.Method == config.HashMethodRaw {
		return castRaw(d, quoted)
	}
	switch Classify(dataType) {
	case ClassBoolean:
		return castBoolean(d, quoted)
	case ClassNumeric:
		return castNumeric(d, quoted, dataType, precision, scale, opts)
	case ClassTimestamp:
		return castTimestamp(d, quoted, dataType, scale)
	case ClassBinary:
		return castBinary(d, quoted)
	default:
		return castString(d, quoted)
	}
}

// castRaw is the dialect's safest text coercion, NULL to empty string and
// nothing else.
func castRaw(d database.Dialect, c string) string {
	switch d {
	case database.Oracle:
		return fmt.Sprintf("to_char(%s)", c)
	case database.MySQL, database.MariaDB:
		return fmt.Sprintf("coalesce(cast(%s as char),'')", c)
	case database.SQLServer:
		return fmt.Sprintf("coalesce(convert(varchar(max),%s),'')", c)
	case database.DB2:
		return fmt.Sprintf("coalesce(varchar(%s),'')", c)
	default:
		return fmt.Sprintf("coalesce(%s::text,'')", c)
	}
}

func castBoolean(d database.Dialect, c string) string {
	switch d {
	case database.MySQL, database.MariaDB:
		return fmt.Sprintf("coalesce(case when %s then 'true' else 'false' end,'')", c)
	case database.Oracle:
		return fmt.Sprintf("case when %s then 'true' else 'false' end", c)
	default:
		return fmt.Sprintf("coalesce(case when %s then 'true' else 'false' end,'')", c)
	}
}

func castString(d database.Dialect, c string) string {
	switch d {
	case database.Oracle:
		return fmt.Sprintf("to_char(%s)", c)
	case database.MySQL, database.MariaDB:
		return fmt.Sprintf("coalesce(cast(%s as char),'')", c)
	case database.SQLServer:
		return fmt.Sprintf("coalesce(cast(%s as nvarchar(max)),'')", c)
	case database.DB2:
		return fmt.Sprintf("coalesce(varchar(%s),'')", c)
	default:
		return fmt.Sprintf("coalesce(%s::text,'')", c)
	}
}

func castBinary(d database.Dialect, c string) string {
	switch d {
	case database.Oracle:
		return fmt.Sprintf("lower(rawtohex(%s))", c)
	case database.MySQL, database.MariaDB:
		return fmt.Sprintf("coalesce(lower(hex(%s)),'')", c)
	case database.SQLServer:
		return fmt.Sprintf("coalesce(lower(convert(varchar(max),%s,2)),'')", c)
	case database.DB2:
		return fmt.Sprintf("coalesce(lower(hex(%s)),'')", c)
	default:
		return fmt.Sprintf("coalesce(encode(%s,'hex'),'')", c)
	}
}

func castNumeric(d database.Dialect, c, dataType string, precision, scale int, opts CastOptions) string {
	if isFloat(dataType) {
		if opts.FloatCast == config.CastNotation {
			return castDecimalNotation(d, c)
		}
		return castDecimalStandard(d, c)
	}
	if isInteger(dataType) || (scale == 0 && precision > 0 && precision <= maxIntegerPrecision) {
		return castInteger(d, c)
	}
	if opts.NumberCast == config.CastNotation {
		return castDecimalNotation(d, c)
	}
	return castDecimalStandard(d, c)
}

func castInteger(d database.Dialect, c string) string {
	switch d {
	case database.Oracle:
		return fmt.Sprintf("to_char(trunc(%s))", c)
	case database.MySQL, database.MariaDB:
		return fmt.Sprintf("coalesce(cast(cast(%s as signed) as char),'')", c)
	case database.SQLServer:
		return fmt.Sprintf("coalesce(convert(varchar(32),cast(%s as bigint)),'')", c)
	case database.DB2:
		return fmt.Sprintf("coalesce(varchar(bigint(%s)),'')", c)
	default:
		return fmt.Sprintf("coalesce(%s::bigint::text,'')", c)
	}
}

// castDecimalStandard renders a fixed-point decimal: trailing zeros
// trimmed, '.' separator, leading '-' for negatives.
func castDecimalStandard(d database.Dialect, c string) string {
	switch d {
	case database.Oracle:
		return fmt.Sprintf("rtrim(rtrim(to_char(%s,'%s'),'0'),'.')", c, oracleDecimalFormat)
	case database.MySQL, database.MariaDB:
		return fmt.Sprintf("coalesce(case when instr(cast(%s as char),'.') > 0 then trim(trailing '.' from trim(trailing '0' from cast(%s as char))) else cast(%s as char) end,'')", c, c, c)
	case database.SQLServer:
		return fmt.Sprintf("coalesce(format(%s,'0.####################'),'')", c)
	case database.DB2:
		return fmt.Sprintf("coalesce(case when locate('.',varchar(%s)) > 0 then strip(strip(varchar(%s),trailing,'0'),trailing,'.') else varchar(%s) end,'')", c, c, c)
	default:
		return fmt.Sprintf("coalesce(trim_scale(%s::numeric)::text,'')", c)
	}
}

// castDecimalNotation is the standard rendering below the threshold and
// scientific form above it.
func castDecimalNotation(d database.Dialect, c string) string {
	switch d {
	case database.Oracle:
		return fmt.Sprintf("case when abs(%s) >= %s then to_char(%s,'FM9.999999999999999EEEE') else %s end",
			c, notationThreshold, c, castDecimalStandard(d, c))
	case database.MySQL, database.MariaDB:
		return fmt.Sprintf("coalesce(case when abs(%s) >= %s then cast(cast(%s as double) as char) else %s end,'')",
			c, notationThreshold, c, stripCoalesce(castDecimalStandard(d, c)))
	case database.SQLServer:
		return fmt.Sprintf("coalesce(case when abs(%s) >= %s then lower(format(%s,'0.0###############e+00')) else %s end,'')",
			c, notationThreshold, c, stripCoalesce(castDecimalStandard(d, c)))
	case database.DB2:
		return fmt.Sprintf("coalesce(case when abs(%s) >= %s then lower(varchar(double(%s))) else %s end,'')",
			c, notationThreshold, c, stripCoalesce(castDecimalStandard(d, c)))
	default:
		return fmt.Sprintf("coalesce(case when abs(%s) >= %s then trim(to_char(%s,'0.9999999999999999EEEE')) else %s end,'')",
			c, notationThreshold, c, stripCoalesce(castDecimalStandard(d, c)))
	}
}

const oracleDecimalFormat = "FM999999999999999999999990.999999999999999999999999"

// stripCoalesce unwraps the outer coalesce(x,'') so the fragment can be
// nested inside another null-handled expression.
func stripCoalesce(expr string) string {
	if strings.HasPrefix(expr, "coalesce(") && strings.HasSuffix(expr, ",'')") {
		return expr[len("coalesce(") : len(expr)-len(",'')")]
	}
	return expr
}

// castTimestamp renders ISO 8601 in UTC. Every time-bearing value gets an
// explicit +00:00 offset: zone-aware types are converted, zoneless types
// are pinned to UTC by the connection's session setup, so both sides of a
// cross-engine pair produce identical text. Fractional seconds appear
// only when the declared precision allows them and never with trailing
// zeros.
func castTimestamp(d database.Dialect, c, dataType string, dataScale int) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	prec := fractionalPrecision(dataType, dataScale)

	switch t {
	case "year":
		return castYear(d, c)
	}
	if t == "time" || strings.HasPrefix(t, "time ") || strings.HasPrefix(t, "time(") {
		return castTimeOfDay(d, c, prec)
	}
	return castDatetime(d, c, hasTimeZone(dataType), prec)
}

func castDatetime(d database.Dialect, c string, zoned bool, prec int) string {
	switch d {
	case database.Oracle:
		expr := c
		if zoned {
			expr = fmt.Sprintf("(%s at time zone 'UTC')", c)
		}
		body := fmt.Sprintf("to_char(%s,'YYYY-MM-DD\"T\"HH24:MI:SS%s')", expr, oracleFraction(prec))
		if prec > 0 {
			body = fmt.Sprintf("rtrim(rtrim(%s,'0'),'.')", body)
		}
		return body + " || '+00:00'"
	case database.MySQL, database.MariaDB:
		expr := c
		if zoned {
			expr = fmt.Sprintf("convert_tz(%s,@@session.time_zone,'+00:00')", c)
		}
		format := "%Y-%m-%dT%H:%i:%s"
		body := fmt.Sprintf("date_format(%s,'%s')", expr, format)
		if prec > 0 {
			body = fmt.Sprintf("trim(trailing '.' from trim(trailing '0' from date_format(%s,'%s.%%f')))", expr, format)
		}
		return fmt.Sprintf("coalesce(concat(%s,'+00:00'),'')", body)
	case database.SQLServer:
		expr := c
		if zoned {
			expr = fmt.Sprintf("cast(%s at time zone 'UTC' as datetime2(7))", c)
		}
		body := fmt.Sprintf("format(%s,'yyyy-MM-dd\"T\"HH:mm:ss%s')", expr, mssqlFraction(prec))
		return fmt.Sprintf("coalesce(concat(%s,'+00:00'),'')", body)
	case database.DB2:
		body := fmt.Sprintf("varchar_format(timestamp(%s),'YYYY-MM-DD\"T\"HH24:MI:SS%s')", c, oracleFraction(prec))
		if prec > 0 {
			body = fmt.Sprintf("strip(strip(%s,trailing,'0'),trailing,'.')", body)
		}
		return fmt.Sprintf("coalesce(%s || '+00:00','')", body)
	default:
		expr := c
		if zoned {
			expr = fmt.Sprintf("(%s at time zone 'UTC')", c)
		}
		body := fmt.Sprintf("to_char(%s,'YYYY-MM-DD\"T\"HH24:MI:SS%s')", expr, oracleFraction(prec))
		if prec > 0 {
			body = fmt.Sprintf("rtrim(rtrim(%s,'0'),'.')", body)
		}
		return fmt.Sprintf("coalesce(%s||'+00:00','')", body)
	}
}

func castTimeOfDay(d database.Dialect, c string, prec int) string {
	switch d {
	case database.Oracle:
		return fmt.Sprintf("to_char(%s,'HH24:MI:SS')", c)
	case database.MySQL, database.MariaDB:
		return fmt.Sprintf("coalesce(time_format(%s,'%%H:%%i:%%s'),'')", c)
	case database.SQLServer:
		return fmt.Sprintf("coalesce(convert(varchar(8),%s,108),'')", c)
	case database.DB2:
		return fmt.Sprintf("coalesce(char(%s,JIS),'')", c)
	default:
		return fmt.Sprintf("coalesce(to_char(%s,'HH24:MI:SS'),'')", c)
	}
}

func castYear(d database.Dialect, c string) string {
	switch d {
	case database.MySQL, database.MariaDB:
		return fmt.Sprintf("coalesce(cast(%s as char),'')", c)
	default:
		return castString(d, c)
	}
}

// oracleFraction renders the FF<p> suffix shared by the Oracle and Db2
// format grammars.
func oracleFraction(prec int) string {
	if prec <= 0 {
		return ""
	}
	if prec > 9 {
		prec = 9
	}
	return fmt.Sprintf(".FF%d", prec)
}

// mssqlFraction renders .NET "F" specifiers, which already omit trailing
// zeros and drop the separator when the fraction is zero.
func mssqlFraction(prec int) string {
	if prec <= 0 {
		return ""
	}
	if prec > 7 {
		prec = 7
	}
	return "." + strings.Repeat("F", prec)
}
