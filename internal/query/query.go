// Package query executes the one shape of SQL this reader understands:
// SELECT a projection of columns, optionally filtered by a single
// equality condition, from one table.
package query

import (
	"context"
	"strconv"
	"strings"

	"github.com/ndyer/sqlitekit/internal/btree"
	"github.com/ndyer/sqlitekit/internal/catalog"
	"github.com/ndyer/sqlitekit/internal/dberr"
	"github.com/ndyer/sqlitekit/internal/record"
)

// ColumnRef names a requested output column, or one of the two special
// projections: CountStar for COUNT(*), Star for SELECT * (expanded to the
// table's full column list once the table is known).
type ColumnRef struct {
	Name      string
	CountStar bool
	Star      bool
}

// Condition is a single equality filter: col = literal.
type Condition struct {
	Column  string
	Literal string
}

// Request is a parsed query: project these columns from this table,
// optionally filtered by condition.
type Request struct {
	Projection []ColumnRef
	Table      string
	Condition  *Condition
}

// Row is one output row: the projected values in projection order.
type Row struct {
	Values []record.Value
}

// Executor binds a catalog and page source together to run Requests.
type Executor struct {
	cat *catalog.Catalog
	src btree.PageSource
}

func NewExecutor(cat *catalog.Catalog, src btree.PageSource) *Executor {
	return &Executor{cat: cat, src: src}
}

// Count returns the row count for a request of exactly [COUNT(*)] with
// no condition.
func (e *Executor) Count(ctx context.Context, req Request) (int, error) {
	table, err := e.cat.Lookup(req.Table)
	if err != nil {
		return 0, err
	}
	// A full scan of leaf cells always gives the correct count, and is
	// the only approach that's correct when the tree has more than one
	// leaf page (counting only the root's own header cell count is
	// wrong for multi-leaf tables).
	cells, err := btree.ScanTable(ctx, e.src, table.RootPage)
	if err != nil {
		return 0, err
	}
	return len(cells), nil
}

// Select runs req and returns the projected, optionally filtered rows.
// COUNT(*) always collapses to a single aggregate row, whether or not a
// WHERE clause narrowed the rows counted.
func (e *Executor) Select(ctx context.Context, req Request) ([]Row, error) {
	if isCountStar(req.Projection) {
		if req.Condition == nil {
			n, err := e.Count(ctx, req)
			if err != nil {
				return nil, err
			}
			return []Row{{Values: []record.Value{record.IntValue(int64(n))}}}, nil
		}

		table, err := e.cat.Lookup(req.Table)
		if err != nil {
			return nil, err
		}
		colIndex, err := columnIndex(table)
		if err != nil {
			return nil, err
		}
		rows, err := e.gatherRows(ctx, table, req.Condition, colIndex)
		if err != nil {
			return nil, err
		}
		return []Row{{Values: []record.Value{record.IntValue(int64(len(rows)))}}}, nil
	}

	table, err := e.cat.Lookup(req.Table)
	if err != nil {
		return nil, err
	}

	colIndex, err := columnIndex(table)
	if err != nil {
		return nil, err
	}

	projection := expandStar(req.Projection, table)

	fields, err := e.gatherRows(ctx, table, req.Condition, colIndex)
	if err != nil {
		return nil, err
	}

	return project(fields, projection, colIndex, table)
}

type tableRow struct {
	rowid  uint64
	values []record.Value
}

func (e *Executor) gatherRows(ctx context.Context, table catalog.Object, cond *Condition, colIndex map[string]int) ([]tableRow, error) {
	if cond == nil {
		cells, err := btree.ScanTable(ctx, e.src, table.RootPage)
		if err != nil {
			return nil, err
		}
		rows := make([]tableRow, len(cells))
		for i, c := range cells {
			rows[i] = tableRow{rowid: c.RowID, values: c.Record.Values}
		}
		return rows, nil
	}

	for _, candidate := range e.cat.IndexesOn(table.Name) {
		if len(candidate.Columns) > 0 && candidate.Columns[0].Name == cond.Column {
			return e.gatherViaIndex(ctx, table, candidate, cond)
		}
	}
	return e.gatherViaScan(ctx, table, cond, colIndex)
}

func (e *Executor) gatherViaIndex(ctx context.Context, table, index catalog.Object, cond *Condition) ([]tableRow, error) {
	// The search key takes the declared type of the filtered column: an
	// integer-typed column is searched numerically, anything else as TEXT.
	key := record.TextValue(cond.Literal)
	for _, c := range table.Columns {
		if c.Name == cond.Column && strings.Contains(strings.ToUpper(c.TypeHint), "INT") {
			if n, err := strconv.ParseInt(cond.Literal, 10, 64); err == nil {
				key = record.IntValue(n)
			}
		}
	}
	matches, err := btree.FindByIndexKey(ctx, e.src, index.RootPage, []record.Value{key})
	if err != nil {
		return nil, err
	}
	var rows []tableRow
	for _, m := range matches {
		cell, ok, err := btree.FindByRowid(ctx, e.src, table.RootPage, m.RowID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rows = append(rows, tableRow{rowid: cell.RowID, values: cell.Record.Values})
	}
	return rows, nil
}

func (e *Executor) gatherViaScan(ctx context.Context, table catalog.Object, cond *Condition, colIndex map[string]int) ([]tableRow, error) {
	cells, err := btree.ScanTable(ctx, e.src, table.RootPage)
	if err != nil {
		return nil, err
	}
	i, ok := colIndex[cond.Column]
	if !ok {
		return nil, dberr.NoSuchName("query.gatherViaScan", "no such column: %s", cond.Column)
	}

	var rows []tableRow
	for _, c := range cells {
		v := materialize(c.RowID, c.Record.Values, i, table)
		if v.String() == cond.Literal {
			rows = append(rows, tableRow{rowid: c.RowID, values: c.Record.Values})
		}
	}
	return rows, nil
}

func materialize(rowid uint64, values []record.Value, i int, table catalog.Object) record.Value {
	if i < len(values) {
		v := values[i]
		if v.Kind == record.KindNull && isRowidAliasIndex(table, i) {
			return record.IntValue(int64(rowid))
		}
		return v
	}
	return record.Null
}

func isRowidAliasIndex(table catalog.Object, i int) bool {
	return i < len(table.Columns) && table.Columns[i].RowidAlias
}

// project builds output rows for a plain column projection; CountStar
// requests are collapsed to a single aggregate row before reaching here.
func project(rows []tableRow, projection []ColumnRef, colIndex map[string]int, table catalog.Object) ([]Row, error) {
	out := make([]Row, len(rows))
	for r, row := range rows {
		values := make([]record.Value, len(projection))
		for p, col := range projection {
			i, ok := colIndex[col.Name]
			if !ok {
				return nil, dberr.NoSuchName("query.project", "no such column: %s", col.Name)
			}
			values[p] = materialize(row.rowid, row.values, i, table)
		}
		out[r] = Row{Values: values}
	}
	return out, nil
}

func columnIndex(table catalog.Object) (map[string]int, error) {
	if len(table.Columns) == 0 {
		return nil, dberr.Corrupt("query.columnIndex", "table %s has no parsed columns", table.Name)
	}
	idx := make(map[string]int, len(table.Columns))
	for i, c := range table.Columns {
		idx[c.Name] = i
	}
	return idx, nil
}

func isCountStar(projection []ColumnRef) bool {
	return len(projection) == 1 && projection[0].CountStar
}

// expandStar replaces a bare SELECT * projection with one ColumnRef per
// declared table column, in declaration order.
func expandStar(projection []ColumnRef, table catalog.Object) []ColumnRef {
	if len(projection) != 1 || !projection[0].Star {
		return projection
	}
	expanded := make([]ColumnRef, len(table.Columns))
	for i, c := range table.Columns {
		expanded[i] = ColumnRef{Name: c.Name}
	}
	return expanded
}
