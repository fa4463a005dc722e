// Command ehigraph assembles per-patient record graphs from a staged export
// and writes them as JSON.
//
// The run file supplies everything: the store holding the staged export, the
// schema directory, and the curated declarations (split groups, relationship
// registry, bridges, child attachments). A typical invocation:
//
//	ehigraph -config configs/export-2023-10.json -out graphs.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ehi/internal/attach"
	"ehi/internal/bridge"
	"ehi/internal/config"
	"ehi/internal/exportver"
	"ehi/internal/graph"
	"ehi/internal/metrics"
	"ehi/internal/metrics/datadog"
	"ehi/internal/metrics/prompush"
	"ehi/internal/relation"
	"ehi/internal/rowstore"
	"ehi/internal/schema"
	"ehi/internal/splitgroup"

	// register all row store backends with the factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "ehi/internal/rowstore/all"
)

func main() {
	var (
		cfgPath  string
		outPath  string
		patient  string
		validate bool
	)

	flag.StringVar(&cfgPath, "config", "configs/run.json", "run config JSON path")
	flag.StringVar(&outPath, "out", "", "output path for graph JSON (default stdout)")
	flag.StringVar(&patient, "patient", "", "build only this patient key")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
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
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	setupMetrics(p.Job, p.Metrics, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()
	start := time.Now()

	catalog, err := schema.Load(p.SchemaDir)
	if err != nil {
		fatalf("load schemas: %v", err)
	}

	store, err := rowstore.Open(ctx, p.Store)
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer store.Close()

	split, err := splitgroup.NewResolver(p.SplitGroups)
	if err != nil {
		fatalf("split groups: %v", err)
	}
	registry, err := relation.NewRegistry(p.Relations.Edges, p.Relations.CSNColumns)
	if err != nil {
		fatalf("relationship registry: %v", err)
	}
	bridges, err := bridge.NewResolver(store, p.Bridges)
	if err != nil {
		fatalf("bridges: %v", err)
	}

	if *verbose {
		fp := exportver.Fingerprint(catalog, p.SplitGroups, p.Relations.Edges, p.Relations.CSNColumns)
		log.Printf("run %s: %d tables, export fingerprint %s", p.Job, catalog.Len(), exportver.String(fp))
	}

	builder, err := graph.NewBuilder(graph.Params{
		Store:            store,
		Catalog:          catalog,
		Split:            split,
		Registry:         registry,
		Bridges:          bridges,
		PatientTable:     p.Patient.Table,
		PatientKeyColumn: p.Patient.KeyColumn,
		Children:         childSpecs(p),
		Workers:          p.Runtime.Workers,
	})
	if err != nil {
		fatalf("graph builder: %v", err)
	}

	var graphs []*graph.Graph
	if patient != "" {
		g, err := builder.BuildPatient(ctx, patient)
		metrics.RecordStep(p.Job, "graph", err, time.Since(start))
		if err != nil {
			fatalf("build patient %s: %v", patient, err)
		}
		graphs = []*graph.Graph{g}
	} else {
		graphs, err = builder.BuildAll(ctx)
		metrics.RecordStep(p.Job, "graph", err, time.Since(start))
		if err != nil {
			fatalf("build graphs: %v", err)
		}
	}
	metrics.RecordPatients(p.Job, int64(len(graphs)))

	if err := writeJSON(outPath, graphs); err != nil {
		fatalf("%v", err)
	}

	if *verbose {
		log.Printf("built %d patient graph(s) in %s", len(graphs), time.Since(start).Truncate(time.Millisecond))
	}
}

// childSpecs returns the attachment specs map, never nil.
func childSpecs(p *config.Pipeline) map[string][]attach.ChildSpec {
	if p.Children != nil {
		return p.Children
	}
	return map[string][]attach.ChildSpec{}
}

// setupMetrics installs the configured metrics backend, if any. Failures fall
// back to the nop backend with a log line; metrics never block a run.
func setupMetrics(job string, cfg config.MetricsConfig, verbose bool) {
	switch cfg.Kind {
	case "prometheus":
		b, err := prompush.NewBackend(job, cfg.GatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prometheus backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=prometheus url=%s job=%s", cfg.GatewayURL, job)
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       cfg.StatsdAddr,
			Namespace:  cfg.Namespace,
			GlobalTags: cfg.Tags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%s job=%s", cfg.StatsdAddr, job)
		metrics.SetBackend(b)

	case "":
		if verbose {
			log.Printf("metrics: disabled")
		}
	}
}

// writeJSON writes v as indented JSON to path, or stdout when path is empty.
func writeJSON(path string, v any) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode graphs: %w", err)
	}
	return nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
