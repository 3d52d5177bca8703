package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ndyer/sqlitekit/internal/query"
)

// consoleFormatter writes query results the way the CLI surface specifies:
// one row per line, fields `|`-joined, COUNT(*) as a bare integer line.
type consoleFormatter struct {
	out io.Writer
}

var printer = &consoleFormatter{out: os.Stdout}

func (c *consoleFormatter) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// PrintTables prints a single space-separated line, matching the teacher's
// ConsoleFormatter-adjacent .tables handler (app/sqlite_engine.go's
// handleTables, trailing space included).
func (c *consoleFormatter) PrintTables(names []string) {
	for _, name := range names {
		fmt.Fprintf(c.out, "%s ", name)
	}
	fmt.Fprintln(c.out)
}

// PrintRows prints one line per row. A single-column row whose only value
// came from COUNT(*) still prints as a bare integer, since the projection
// already collapsed to one int column by the time rows reach here.
func (c *consoleFormatter) PrintRows(rows []query.Row) {
	for _, row := range rows {
		parts := make([]string, len(row.Values))
		for i, v := range row.Values {
			parts[i] = v.String()
		}
		fmt.Fprintln(c.out, strings.Join(parts, "|"))
	}
}
