package db

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavor of the target store. Its value is the
// db_driver configuration string.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	MSSQL    Dialect = "mssql"
	SQLite   Dialect = "sqlite"
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{MySQL, Postgres, MSSQL, SQLite}

// ParseDialect maps a driver name onto a Dialect.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case MySQL, Postgres, MSSQL, SQLite:
		return d, nil
	}
	return "", fmt.Errorf("unknown driver: %s", s)
}

// DriverName is the database/sql driver registered for the dialect. Postgres
// goes through pgx directly and has none.
func (d Dialect) DriverName() string {
	switch d {
	case MySQL:
		return "mysql"
	case MSSQL:
		return "sqlserver"
	case SQLite:
		return "sqlite3"
	}
	return ""
}

// DefaultPort is used when no port is configured.
func (d Dialect) DefaultPort() int {
	switch d {
	case MySQL:
		return 3306
	case Postgres:
		return 5432
	case MSSQL:
		return 1433
	}
	return 0
}

// ColumnType is the portable type of a staging column.
type ColumnType int

const (
	Integer ColumnType = iota
	Text
	Float
)

// Column is one staging table column.
type Column struct {
	Name string
	Type ColumnType
}

// Table describes a staging table. Key names the natural-key column that
// makes inserts idempotent.
type Table struct {
	Name    string
	Columns []Column
	Key     string
}

// CatalogTable is the staging table for catalog records.
func CatalogTable(name string) Table {
	return Table{
		Name: name,
		Columns: []Column{
			{Name: "id", Type: Integer},
			{Name: "title", Type: Text},
			{Name: "genres", Type: Text},
		},
		Key: "id",
	}
}

// RatingTable is the staging table for mean ratings.
func RatingTable(name string) Table {
	return Table{
		Name: name,
		Columns: []Column{
			{Name: "entityId", Type: Integer},
			{Name: "meanRating", Type: Float},
		},
		Key: "entityId",
	}
}

// Quote quotes a possibly schema-qualified identifier.
func (d Dialect) Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		switch d {
		case MySQL:
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		case MSSQL:
			parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
		default:
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Placeholder renders the i-th (1-based) bind parameter.
func (d Dialect) Placeholder(i int) string {
	switch d {
	case Postgres:
		return fmt.Sprintf("$%d", i)
	case MSSQL:
		return fmt.Sprintf("@p%d", i)
	}
	return "?"
}

func (d Dialect) sqlType(t ColumnType) string {
	switch d {
	case MySQL:
		return [...]string{"BIGINT", "TEXT", "DOUBLE"}[t]
	case Postgres:
		return [...]string{"BIGINT", "TEXT", "DOUBLE PRECISION"}[t]
	case MSSQL:
		return [...]string{"BIGINT", "NVARCHAR(MAX)", "FLOAT"}[t]
	}
	return [...]string{"INTEGER", "TEXT", "REAL"}[t]
}

func (d Dialect) quotedColumns(t Table) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = d.Quote(c.Name)
	}
	return out
}

// CreateTable renders create-if-missing DDL with the natural key as primary
// key.
func (d Dialect) CreateTable(t Table) string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def := d.Quote(c.Name) + " " + d.sqlType(c.Type)
		if c.Name == t.Key {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY ("+d.Quote(t.Key)+")")
	body := d.Quote(t.Name) + " (" + strings.Join(defs, ", ") + ")"

	if d == MSSQL {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s",
			strings.ReplaceAll(t.Name, "'", "''"), body)
	}
	return "CREATE TABLE IF NOT EXISTS " + body
}

// InsertIgnore renders the single-row idempotent insert for t: the row is
// written only when its key is absent; otherwise the statement is a no-op
// and raises no error.
func (d Dialect) InsertIgnore(t Table) string {
	cols := d.quotedColumns(t)
	ph := make([]string, len(cols))
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	target := d.Quote(t.Name)
	colList := strings.Join(cols, ", ")

	switch d {
	case MySQL:
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", target, colList, strings.Join(ph, ", "))
	case Postgres:
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			target, colList, strings.Join(ph, ", "), d.Quote(t.Key))
	case MSSQL:
		sel := make([]string, len(cols))
		vals := make([]string, len(cols))
		for i, c := range cols {
			sel[i] = ph[i] + " AS " + c
			vals[i] = "src." + c
		}
		key := d.Quote(t.Key)
		return fmt.Sprintf("MERGE INTO %s WITH (HOLDLOCK) AS tgt USING (SELECT %s) AS src ON tgt.%s = src.%s "+
			"WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
			target, strings.Join(sel, ", "), key, key, colList, strings.Join(vals, ", "))
	}
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)", target, colList, strings.Join(ph, ", "))
}

// maxBindParams is the bind parameter limit of one statement.
func (d Dialect) maxBindParams() int {
	switch d {
	case MySQL:
		return 65535
	case SQLite:
		return 32766
	}
	return 0
}

// RowsPerStatement is how many rows of cols columns one multi-row insert may
// carry. It is 1 for dialects that insert one row per statement.
func (d Dialect) RowsPerStatement(cols int) int {
	limit := d.maxBindParams()
	if limit == 0 || cols <= 0 {
		return 1
	}
	return max(limit/cols, 1)
}

// ExpandValues turns a single-row insert rendered by InsertIgnore into one
// carrying n value tuples. It reports false when d or stmt has no multi-row
// form.
func (d Dialect) ExpandValues(stmt string, n int) (string, bool) {
	if (d != MySQL && d != SQLite) || n < 1 {
		return "", false
	}
	i := strings.LastIndex(stmt, " VALUES (")
	if i < 0 {
		return "", false
	}
	tuple := stmt[i+len(" VALUES "):]
	if !strings.HasSuffix(tuple, ")") || strings.Trim(tuple, "(?, )") != "" {
		return "", false
	}
	var b strings.Builder
	b.Grow(len(stmt) + (n-1)*(len(tuple)+2))
	b.WriteString(stmt)
	for k := 1; k < n; k++ {
		b.WriteString(", ")
		b.WriteString(tuple)
	}
	return b.String(), true
}
