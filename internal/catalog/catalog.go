// Package catalog builds the schema map from the sqlite_schema table: one
// full scan of the B-tree rooted on page 1, decoding each row's DDL to
// recover column names without a SQL parser.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/ndyer/sqlitekit/internal/btree"
	"github.com/ndyer/sqlitekit/internal/dberr"
	"github.com/ndyer/sqlitekit/internal/record"
)

// Kind is the object kind a schema row describes.
type Kind string

const (
	KindTable   Kind = "table"
	KindIndex   Kind = "index"
	KindView    Kind = "view"
	KindTrigger Kind = "trigger"
)

// Column is one entry from a CREATE TABLE's column list.
type Column struct {
	Name       string
	TypeHint   string
	RowidAlias bool // true for an INTEGER PRIMARY KEY column
}

// Object is one row of the schema table, with its column list parsed out
// of the CREATE statement for tables and indexes.
type Object struct {
	Kind      Kind
	Name      string
	TableName string // for indexes: the table they belong to
	RootPage  uint32
	SQL       string
	Columns   []Column
}

// Catalog maps object name to its schema entry.
type Catalog struct {
	byName map[string]Object
}

// builtinSchemaColumns describes the schema table's own fixed shape,
// since it has no CREATE statement of its own to parse.
var builtinSchemaColumns = []Column{
	{Name: "type"}, {Name: "name"}, {Name: "tbl_name"}, {Name: "rootpage"}, {Name: "sql"},
}

// Load performs a full scan of the schema B-tree rooted on page 1 and
// builds the name -> Object map.
func Load(ctx context.Context, src btree.PageSource) (*Catalog, error) {
	cells, err := btree.ScanTable(ctx, src, 1)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]Object, len(cells))
	for _, cell := range cells {
		obj, err := parseSchemaRow(cell.Record)
		if err != nil {
			return nil, err
		}
		byName[obj.Name] = obj
	}
	return &Catalog{byName: byName}, nil
}

// Lookup returns the named table or index, or NoSuchName.
func (c *Catalog) Lookup(name string) (Object, error) {
	obj, ok := c.byName[name]
	if !ok {
		return Object{}, dberr.NoSuchName("catalog.Lookup", "no such table or index: %s", name)
	}
	return obj, nil
}

// Tables returns the names of every user table in ascending order,
// excluding SQLite's own sqlite_-prefixed bookkeeping objects.
func (c *Catalog) Tables() []string {
	var names []string
	for name, obj := range c.byName {
		if obj.Kind == KindTable && !strings.HasPrefix(name, "sqlite_") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ObjectCount returns the total number of rows in the schema table,
// across every kind (tables, indexes, views, triggers).
func (c *Catalog) ObjectCount() int {
	return len(c.byName)
}

// IndexesOn returns every index whose tbl_name matches table.
func (c *Catalog) IndexesOn(table string) []Object {
	var out []Object
	for _, obj := range c.byName {
		if obj.Kind == KindIndex && obj.TableName == table {
			out = append(out, obj)
		}
	}
	return out
}

func parseSchemaRow(rec record.Record) (Object, error) {
	if len(rec.Values) < 5 {
		return Object{}, dberr.Corrupt("catalog.parseSchemaRow", "schema row has %d fields, want 5", len(rec.Values))
	}

	typ := Kind(rec.Values[0].String())
	name := rec.Values[1].String()
	tblName := rec.Values[2].String()
	sql := rec.Values[4].String()

	rootPage, err := rootPageOf(rec.Values[3])
	if err != nil {
		return Object{}, err
	}

	obj := Object{
		Kind:      typ,
		Name:      name,
		TableName: tblName,
		RootPage:  rootPage,
		SQL:       sql,
	}

	switch {
	case name == "sqlite_schema" || name == "sqlite_master":
		obj.Columns = builtinSchemaColumns
	case typ == KindTable || typ == KindIndex:
		// The same parenthesized-list extraction rule recovers a
		// CREATE INDEX's indexed columns as well as a CREATE TABLE's.
		obj.Columns = parseColumnList(sql)
	}

	return obj, nil
}

// rootPageOf decodes the schema row's rootpage field. The field is a
// signed integer of whatever serial-type width the record writer chose;
// this widens it fully rather than truncating to its first byte.
func rootPageOf(v record.Value) (uint32, error) {
	if v.Kind != record.KindInt {
		return 0, dberr.Corrupt("catalog.rootPageOf", "rootpage field has kind %v, want integer", v.Kind)
	}
	if v.Int < 0 {
		return 0, dberr.Corrupt("catalog.rootPageOf", "rootpage %d is negative", v.Int)
	}
	return uint32(v.Int), nil
}

// parseColumnList implements the column-extraction rule: take the
// substring between the first '(' and its matching ')', split on ',',
// and for each segment the first whitespace-delimited token is the
// column name and the rest are type/constraint words.
func parseColumnList(sql string) []Column {
	open := strings.IndexByte(sql, '(')
	if open < 0 {
		return nil
	}
	closeIdx := matchingParen(sql, open)
	if closeIdx < 0 {
		return nil
	}
	body := sql[open+1 : closeIdx]

	var columns []Column
	for _, segment := range splitTopLevelCommas(body) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			continue
		}
		col := Column{Name: trimQuotes(fields[0])}
		if len(fields) > 1 {
			col.TypeHint = fields[1]
		}
		col.RowidAlias = isIntegerPrimaryKey(fields[1:])
		columns = append(columns, col)
	}
	return columns
}

func isIntegerPrimaryKey(rest []string) bool {
	if len(rest) < 2 {
		return false
	}
	return strings.EqualFold(rest[0], "integer") && strings.EqualFold(rest[1], "primary")
}

// matchingParen returns the index of the ')' matching the '(' at open,
// accounting for nested parentheses (e.g. "NUMERIC(10,2)" type bounds).
func matchingParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevelCommas splits on ',' but not inside a nested parenthesized
// group, so a type bound like "NUMERIC(10, 2)" doesn't get split.
func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"',
			s[0] == '`' && s[len(s)-1] == '`',
			s[0] == '[' && s[len(s)-1] == ']':
			return s[1 : len(s)-1]
		}
	}
	return s
}
