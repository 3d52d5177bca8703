// Package sqlfrontend turns SQL text into the parsed triple the query
// executor runs: a projection, a table name, and at most one equality
// condition.
package sqlfrontend

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/ndyer/sqlitekit/internal/dberr"
	"github.com/ndyer/sqlitekit/internal/query"
)

// Parse parses a single SELECT statement into a query.Request.
func Parse(sql string) (query.Request, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return query.Request{}, dberr.Unsupported("sqlfrontend.Parse", "failed to parse SQL: %v", err)
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return query.Request{}, dberr.Unsupported("sqlfrontend.Parse", "unsupported statement type: %T", stmt)
	}

	tableName := extractTableName(sel)
	if tableName == "" {
		return query.Request{}, dberr.Unsupported("sqlfrontend.Parse", "could not extract table name from SELECT statement")
	}

	projection, err := extractProjection(sel)
	if err != nil {
		return query.Request{}, err
	}

	cond, err := extractCondition(sel.Where)
	if err != nil {
		return query.Request{}, err
	}

	return query.Request{
		Projection: projection,
		Table:      tableName,
		Condition:  cond,
	}, nil
}

func extractTableName(sel *sqlparser.Select) string {
	if len(sel.From) == 0 {
		return ""
	}
	switch tableExpr := sel.From[0].(type) {
	case *sqlparser.AliasedTableExpr:
		if simple, ok := tableExpr.Expr.(sqlparser.TableName); ok {
			return simple.Name.String()
		}
	}
	return ""
}

// extractProjection handles the three projection shapes this reader
// understands: SELECT *, SELECT COUNT(*), SELECT col[, col...]. Mixing
// COUNT(*) or * with named columns is rejected: the executor has no
// grouping concept to make that meaningful.
func extractProjection(sel *sqlparser.Select) ([]query.ColumnRef, error) {
	var columns []query.ColumnRef
	var hasStar, hasCount bool

	for _, expr := range sel.SelectExprs {
		switch e := expr.(type) {
		case *sqlparser.StarExpr:
			hasStar = true
		case *sqlparser.AliasedExpr:
			switch inner := e.Expr.(type) {
			case *sqlparser.FuncExpr:
				if !strings.EqualFold(inner.Name.String(), "count") {
					return nil, dberr.Unsupported("sqlfrontend.extractProjection", "unsupported function: %s", inner.Name.String())
				}
				hasCount = true
			case *sqlparser.ColName:
				columns = append(columns, query.ColumnRef{Name: inner.Name.String()})
			default:
				return nil, dberr.Unsupported("sqlfrontend.extractProjection", "unsupported select expression: %T", inner)
			}
		default:
			return nil, dberr.Unsupported("sqlfrontend.extractProjection", "unsupported select expression: %T", e)
		}
	}

	switch {
	case hasCount && (hasStar || len(columns) > 0):
		return nil, dberr.Unsupported("sqlfrontend.extractProjection", "COUNT(*) cannot be mixed with other columns")
	case hasStar && len(columns) > 0:
		return nil, dberr.Unsupported("sqlfrontend.extractProjection", "* cannot be mixed with named columns")
	case hasCount:
		return []query.ColumnRef{{CountStar: true}}, nil
	case hasStar:
		return []query.ColumnRef{{Star: true}}, nil
	case len(columns) == 0:
		return nil, dberr.Unsupported("sqlfrontend.extractProjection", "no projected columns found")
	default:
		return columns, nil
	}
}

// extractCondition handles exactly one shape: WHERE col = literal, where
// the literal is a string, integer or float constant (see extractLiteral). Any
// other WHERE expression (AND/OR, inequality, subqueries) is Unsupported,
// matching the single-equality-condition scope this reader implements.
func extractCondition(where *sqlparser.Where) (*query.Condition, error) {
	if where == nil {
		return nil, nil
	}

	cmp, ok := where.Expr.(*sqlparser.ComparisonExpr)
	if !ok {
		return nil, dberr.Unsupported("sqlfrontend.extractCondition", "unsupported WHERE expression: %T", where.Expr)
	}
	if cmp.Operator != sqlparser.EqualStr {
		return nil, dberr.Unsupported("sqlfrontend.extractCondition", "unsupported comparison operator: %s", cmp.Operator)
	}

	col, ok := cmp.Left.(*sqlparser.ColName)
	if !ok {
		return nil, dberr.Unsupported("sqlfrontend.extractCondition", "left side of WHERE must be a column name")
	}

	literal, err := extractLiteral(cmp.Right)
	if err != nil {
		return nil, err
	}

	return &query.Condition{Column: col.Name.String(), Literal: literal}, nil
}

func extractLiteral(expr sqlparser.Expr) (string, error) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok {
		return "", dberr.Unsupported("sqlfrontend.extractLiteral", "right side of WHERE must be a literal, got %T", expr)
	}
	switch val.Type {
	case sqlparser.StrVal, sqlparser.IntVal, sqlparser.FloatVal:
		return string(val.Val), nil
	default:
		return "", dberr.Unsupported("sqlfrontend.extractLiteral", "unsupported literal type: %v", val.Type)
	}
}

// Describe renders sql's parsed shape for debug logging, never for the
// data path.
func Describe(req query.Request) string {
	cols := make([]string, len(req.Projection))
	for i, c := range req.Projection {
		if c.CountStar {
			cols[i] = "COUNT(*)"
		} else {
			cols[i] = c.Name
		}
	}
	if req.Condition == nil {
		return fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), req.Table)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = %q", strings.Join(cols, ", "), req.Table, req.Condition.Column, req.Condition.Literal)
}
