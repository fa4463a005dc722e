// Command ehiload stages a directory of tab-separated export files into a
// SQLite database, typed and keyed according to the schema descriptors.
//
// Restaging the same files is safe: tables with a declared primary key are
// upserted in place.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ehi/internal/load"
	"ehi/internal/metrics"
	"ehi/internal/schema"

	_ "modernc.org/sqlite"
)

func main() {
	var (
		schemaDir string
		dataDir   string
		dbPath    string
		batchSize int
		job       string
	)

	flag.StringVar(&schemaDir, "schemas", "schemas", "directory of schema descriptor JSON files")
	flag.StringVar(&dataDir, "dir", "", "directory of .tsv export files to stage")
	flag.StringVar(&dbPath, "db", "ehi.db", "SQLite database path")
	flag.IntVar(&batchSize, "batch", load.DefaultBatchSize, "rows per insert transaction")
	flag.StringVar(&job, "job", "ehi", "job name for metrics")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if dataDir == "" {
		fatalf("-dir is required")
	}

	catalog, err := schema.Load(schemaDir)
	if err != nil {
		fatalf("load schemas: %v", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath)
	if err != nil {
		fatalf("open %s: %v", dbPath, err)
	}
	defer db.Close()

	loader, err := load.NewLoader(db, catalog, batchSize)
	if err != nil {
		fatalf("%v", err)
	}

	start := time.Now()
	summary, err := loader.LoadDir(context.Background(), dataDir)
	metrics.RecordStep(job, "load", err, time.Since(start))
	if err != nil {
		fatalf("stage %s: %v", dataDir, err)
	}
	metrics.RecordRows(job, "staged", summary.Rows)

	if *verbose {
		for _, t := range summary.Tables {
			suffix := ""
			if t.Untyped {
				suffix = " (no descriptor, staged as TEXT)"
			}
			log.Printf("staged %s: %d rows%s", t.Table, t.Rows, suffix)
		}
	}
	log.Printf("staged %d rows across %d tables in %s",
		summary.Rows, len(summary.Tables), time.Since(start).Truncate(time.Millisecond))
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
