// Package config defines the canonical, JSON-serializable configuration model
// for an export-processing run. It is intentionally small, explicit, and
// dependency-free so that run files can be loaded from disk (or other sources)
// and passed through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in run files
//     under configs/*.json.
//  3. Minimalism: No third-party config libraries; decoding is performed by the
//     standard library, and the curated declaration types (split groups,
//     relationship edges, bridge declarations, child specs, manifests) are
//     reused directly from the packages that interpret them.
//
// Example (trimmed):
//
//	{
//	  "job":        "export-2023-10",
//	  "schema_dir": "schemas/",
//	  "store":      { "kind": "sqlite", "dsn": "file:ehi.db" },
//	  "patient":    { "table": "PATIENT", "key_column": "PAT_ID" },
//	  "split_groups": [
//	    { "logical": "PATIENT", "fragments": [
//	      { "table": "PATIENT",   "join_key": "PAT_ID" },
//	      { "table": "PATIENT_2", "join_key": "PAT_ID" }
//	    ]}
//	  ]
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"ehi/internal/attach"
	"ehi/internal/bridge"
	"ehi/internal/manifest"
	"ehi/internal/relation"
	"ehi/internal/rowstore"
	"ehi/internal/splitgroup"
)

// Pipeline describes one full export-processing run in JSON. It is the
// top-level object decoded from a run file.
type Pipeline struct {
	// Job names the run. It is used for metrics labeling and log prefixes.
	Job string `json:"job"`

	// SchemaDir is the directory holding the export's per-table JSON schema
	// descriptors.
	SchemaDir string `json:"schema_dir"`

	// Store selects and configures the row store holding the staged export.
	Store rowstore.Config `json:"store"`

	// Patient identifies the root table of every record graph.
	Patient PatientConfig `json:"patient"`

	// SplitGroups declares the logical tables assembled from physical
	// fragment tables.
	SplitGroups []splitgroup.Group `json:"split_groups"`

	// Relations carries the curated relationship registry: typed edges plus
	// the per-table interpretation of encounter (CSN) columns.
	Relations RelationsConfig `json:"relations"`

	// Bridges declares how entity tables reach patients through bridge
	// tables, including entities whose bridge is known to be absent from
	// the export.
	Bridges []bridge.Declaration `json:"bridges"`

	// Children maps a parent table name to the child attachments performed
	// when that parent's rows are assembled.
	Children map[string][]attach.ChildSpec `json:"children"`

	// Manifests lists the extraction manifests audited against observed data.
	Manifests []manifest.Entry `json:"manifests"`

	Runtime RuntimeConfig `json:"runtime"`
	Metrics MetricsConfig `json:"metrics"`
}

// PatientConfig identifies the patient root table and its key column.
type PatientConfig struct {
	Table     string `json:"table"`
	KeyColumn string `json:"key_column"`
}

// RelationsConfig groups the relationship registry inputs.
type RelationsConfig struct {
	Edges      []relation.Edge     `json:"edges"`
	CSNColumns []relation.CSNEntry `json:"csn_columns"`
}

// RuntimeConfig controls concurrency and sampling.
type RuntimeConfig struct {
	// Workers bounds the number of patient graphs built concurrently.
	// Zero or negative means a small default chosen by the graph builder.
	Workers int `json:"workers"`

	// SampleLimit caps how many rows per table the manifest audit scans
	// when looking for populated columns. Zero means scan everything.
	SampleLimit int `json:"sample_limit"`

	// BatchSize is the number of rows per staging-load transaction batch.
	BatchSize int `json:"batch_size"`
}

// MetricsConfig selects an optional metrics backend.
type MetricsConfig struct {
	// Kind selects the backend: "", "prometheus", or "datadog".
	// Empty disables metrics.
	Kind string `json:"kind"`

	// GatewayURL is the Prometheus Pushgateway base URL ("prometheus" kind).
	GatewayURL string `json:"gateway_url,omitempty"`

	// StatsdAddr is the DogStatsD address ("datadog" kind).
	StatsdAddr string `json:"statsd_addr,omitempty"`

	// Namespace is an optional metric name prefix ("datadog" kind).
	Namespace string `json:"namespace,omitempty"`

	// Tags are global tags applied to all metrics ("datadog" kind).
	Tags []string `json:"tags,omitempty"`
}

// Load reads and decodes a run file from disk.
//
// Load performs JSON decoding only; use ValidatePipeline to lint the result
// before acting on it.
func Load(path string) (*Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var p Pipeline
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &p, nil
}
