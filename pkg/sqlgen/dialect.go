// Package sqlgen renders definitions as SQL queries for multiple warehouse
// dialects. Dialects differ only in final rendering: quoting, limit syntax,
// date truncation and inline IN-list limits; the IR level is shared with
// the other generators.
package sqlgen

import (
	"fmt"
	"strings"
)

// Dialect identifies a target SQL engine syntax profile.
type Dialect string

const (
	DialectStandard   Dialect = "standard"
	DialectPostgres   Dialect = "postgresql"
	DialectMySQL      Dialect = "mysql"
	DialectSQLServer  Dialect = "sqlserver"
	DialectSnowflake  Dialect = "snowflake"
	DialectBigQuery   Dialect = "bigquery"
	DialectDatabricks Dialect = "databricks"
)

// Dialects lists every supported dialect.
func Dialects() []Dialect {
	return []Dialect{
		DialectStandard,
		DialectPostgres,
		DialectMySQL,
		DialectSQLServer,
		DialectSnowflake,
		DialectBigQuery,
		DialectDatabricks,
	}
}

// ParseDialect resolves a dialect name, accepting a few common aliases.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard", "ansi":
		return DialectStandard, nil
	case "postgresql", "postgres":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlserver", "mssql", "tsql":
		return DialectSQLServer, nil
	case "snowflake":
		return DialectSnowflake, nil
	case "bigquery":
		return DialectBigQuery, nil
	case "databricks":
		return DialectDatabricks, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

// Profile carries everything rendering needs to know about a dialect.
type Profile struct {
	QuoteStart string
	QuoteEnd   string
	// LimitSyntax is LIMIT or TOP
	LimitSyntax string
	// DateTrunc is the date truncation function name
	DateTrunc string
	// StringConcat is the concatenation operator or function
	StringConcat string
	// MaxInlineInList is the largest IN list rendered literally; longer
	// lists become a values-table join
	MaxInlineInList int
	SupportsPercentile bool
}

var profiles = map[Dialect]Profile{
	DialectStandard: {
		QuoteStart: `"`, QuoteEnd: `"`,
		LimitSyntax: "LIMIT", DateTrunc: "DATE_TRUNC", StringConcat: "||",
		MaxInlineInList: 1000, SupportsPercentile: true,
	},
	DialectPostgres: {
		QuoteStart: `"`, QuoteEnd: `"`,
		LimitSyntax: "LIMIT", DateTrunc: "DATE_TRUNC", StringConcat: "||",
		MaxInlineInList: 1000, SupportsPercentile: true,
	},
	DialectMySQL: {
		QuoteStart: "`", QuoteEnd: "`",
		LimitSyntax: "LIMIT", DateTrunc: "DATE_FORMAT", StringConcat: "CONCAT",
		MaxInlineInList: 500, SupportsPercentile: false,
	},
	DialectSQLServer: {
		QuoteStart: "[", QuoteEnd: "]",
		LimitSyntax: "TOP", DateTrunc: "DATETRUNC", StringConcat: "+",
		MaxInlineInList: 2000, SupportsPercentile: true,
	},
	DialectSnowflake: {
		QuoteStart: `"`, QuoteEnd: `"`,
		LimitSyntax: "LIMIT", DateTrunc: "DATE_TRUNC", StringConcat: "||",
		MaxInlineInList: 16000, SupportsPercentile: true,
	},
	DialectBigQuery: {
		QuoteStart: "`", QuoteEnd: "`",
		LimitSyntax: "LIMIT", DateTrunc: "TIMESTAMP_TRUNC", StringConcat: "||",
		MaxInlineInList: 10000, SupportsPercentile: true,
	},
	DialectDatabricks: {
		QuoteStart: "`", QuoteEnd: "`",
		LimitSyntax: "LIMIT", DateTrunc: "DATE_TRUNC", StringConcat: "||",
		MaxInlineInList: 10000, SupportsPercentile: true,
	},
}

// Profile returns the rendering profile for the dialect; unknown dialects
// fall back to the standard profile.
func (d Dialect) Profile() Profile {
	if p, ok := profiles[d]; ok {
		return p
	}
	return profiles[DialectStandard]
}

// QuoteIdentifier quotes an identifier in the dialect's style. Qualified
// names are quoted per part.
func (p Profile) QuoteIdentifier(identifier string) string {
	parts := strings.Split(identifier, ".")
	for i, part := range parts {
		parts[i] = p.QuoteStart + part + p.QuoteEnd
	}
	return strings.Join(parts, ".")
}
