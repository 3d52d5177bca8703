// Command sqlitekit reads one on-disk SQLite3 file and answers a small
// fixed set of introspection and read-only query commands against it.
//
// Usage: sqlitekit <db-path> <.dbinfo|.tables|"<SQL>">
package main

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ndyer/sqlitekit/internal/catalog"
	"github.com/ndyer/sqlitekit/internal/pager"
	"github.com/ndyer/sqlitekit/internal/query"
	"github.com/ndyer/sqlitekit/internal/sqlfrontend"
)

const operationTimeout = 30 * time.Second

func main() {
	if len(os.Args) != 3 {
		log.Errorf("usage: %s <db-path> <.dbinfo|.tables|\"<SQL>\">", os.Args[0])
		os.Exit(1)
	}

	dbPath := os.Args[1]
	command := os.Args[2]

	if err := run(dbPath, command); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(dbPath, command string) error {
	p, err := pager.Open(dbPath)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	cat, err := catalog.Load(ctx, p)
	if err != nil {
		return err
	}

	switch command {
	case ".dbinfo":
		return runDBInfo(p, cat)
	case ".tables":
		return runTables(cat)
	default:
		return runSQL(ctx, cat, p, command)
	}
}

func runDBInfo(p *pager.Pager, cat *catalog.Catalog) error {
	printer.Printf("database page size: %d\n", p.PageSize())
	printer.Printf("number of tables: %d\n", cat.ObjectCount())
	return nil
}

func runTables(cat *catalog.Catalog) error {
	printer.PrintTables(cat.Tables())
	return nil
}

func runSQL(ctx context.Context, cat *catalog.Catalog, p *pager.Pager, sql string) error {
	req, err := sqlfrontend.Parse(sql)
	if err != nil {
		return err
	}

	ex := query.NewExecutor(cat, p)
	rows, err := ex.Select(ctx, req)
	if err != nil {
		return err
	}

	printer.PrintRows(rows)
	return nil
}
