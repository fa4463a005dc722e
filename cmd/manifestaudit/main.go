// Command manifestaudit checks column coverage for a staged export: every
// column that carries data must be mapped to a destination field or skipped
// with a reason in the run file's manifests.
//
// Findings print one per line. By default the exit code reflects only
// operational failures; pass -strict to exit non-zero when findings exist,
// which is the mode CI should run in.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ehi/internal/config"
	"ehi/internal/manifest"
	"ehi/internal/metrics"
	"ehi/internal/rowstore"
	"ehi/internal/schema"

	_ "ehi/internal/rowstore/all"
)

func main() {
	var (
		cfgPath string
		strict  bool
	)

	flag.StringVar(&cfgPath, "config", "configs/run.json", "run config JSON path")
	flag.BoolVar(&strict, "strict", false, "exit non-zero when any finding exists")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	issues := config.ValidatePipeline(*p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fatalf("configuration is invalid: %v", cfgPath)
	}
	if len(p.Manifests) == 0 {
		fatalf("no manifests declared in %s", cfgPath)
	}

	ctx := context.Background()

	catalog, err := schema.Load(p.SchemaDir)
	if err != nil {
		fatalf("load schemas: %v", err)
	}
	store, err := rowstore.Open(ctx, p.Store)
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer store.Close()

	checker := manifest.NewChecker(store, catalog)
	checker.SampleLimit = p.Runtime.SampleLimit

	start := time.Now()
	violations, err := checker.AuditAll(ctx, p.Manifests)
	metrics.RecordStep(p.Job, "audit", err, time.Since(start))
	if err != nil {
		fatalf("%v", err)
	}
	metrics.RecordRows(p.Job, "violations", int64(len(violations)))

	for _, v := range violations {
		fmt.Println(v)
	}
	if *verbose {
		log.Printf("audited %d manifest(s) in %s: %d finding(s)",
			len(p.Manifests), time.Since(start).Truncate(time.Millisecond), len(violations))
	}

	if strict && len(violations) > 0 {
		os.Exit(1)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
