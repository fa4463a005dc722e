package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"ehi/internal/relation"
)

// -----------------------------------------------------------------------------
// Pipeline decoding tests
// -----------------------------------------------------------------------------
//
// These tests validate that the top-level Pipeline JSON structure decodes into
// the intended Go struct graph. The goal is to ensure the JSON schema used in
// run files (configs/*.json) maps cleanly to the Go types. We prefer parsing
// from JSON strings here to keep tests hermetic and focused on the API surface
// rather than filesystem wiring.

const sampleRun = `{
  "job":        "export-2023-10",
  "schema_dir": "testdata/schemas",
  "store":      { "kind": "sqlite", "dsn": "file:ehi.db" },
  "patient":    { "table": "PATIENT", "key_column": "PAT_ID" },
  "split_groups": [
    { "logical": "PATIENT", "fragments": [
      { "table": "PATIENT",   "join_key": "PAT_ID" },
      { "table": "PATIENT_2", "join_key": "PAT_ID" }
    ]},
    { "logical": "ACCOUNT", "fragments": [
      { "table": "ACCOUNT",   "join_key": "ACCOUNT_ID" },
      { "table": "ACCOUNT_2", "join_key": "ACCT_ID" }
    ]}
  ],
  "relations": {
    "edges": [
      { "source": "ALLERGY", "target": "PATIENT", "key_column": "PAT_ID", "kind": "structural_child" },
      { "source": "REFERRAL", "target": "PATIENT", "key_column": "PAT_ID", "kind": "cross_reference" }
    ],
    "csn_columns": [
      { "table": "ALLERGY", "column": "ALRGY_ENTERED_CSN", "meaning": "provenance" },
      { "table": "HNO_INFO", "column": "PAT_ENC_CSN_ID", "ambiguous": true, "note": "context unresolved" }
    ]
  },
  "bridges": [
    { "entity_table": "ACCOUNT", "entity_key_column": "ACCOUNT_ID",
      "bridge_table": "PAT_ACCT_CVG", "patient_key_column": "PAT_ID",
      "entity_pk_column": "ACCOUNT_ID" },
    { "entity_table": "COVERAGE", "absent": true }
  ],
  "children": {
    "ALLERGY": [
      { "child_table": "ALLERGY_REACTIONS", "foreign_key_column": "ALLERGY_ID",
        "output_key": "reactions", "kind": "structural_child" }
    ]
  },
  "manifests": [
    { "table": "PATIENT", "mapped": { "PAT_ID": "id" }, "skipped": { "PAT_MRN_ID": "identifier policy" } }
  ],
  "runtime": { "workers": 4, "sample_limit": 1000, "batch_size": 500 },
  "metrics": { "kind": "prometheus", "gateway_url": "http://pushgateway:9091" }
}`

func TestPipeline_Decode(t *testing.T) {
	t.Parallel()

	var p Pipeline
	if err := json.Unmarshal([]byte(sampleRun), &p); err != nil {
		t.Fatalf("json.Unmarshal(Pipeline): %v", err)
	}

	if p.Job != "export-2023-10" || p.SchemaDir != "testdata/schemas" {
		t.Fatalf("top-level decoded = job=%q schema_dir=%q", p.Job, p.SchemaDir)
	}

	// Store
	if p.Store.Kind != "sqlite" || p.Store.DSN != "file:ehi.db" {
		t.Fatalf("store decoded = %#v, want kind=sqlite dsn=file:ehi.db", p.Store)
	}

	// Patient root
	if p.Patient.Table != "PATIENT" || p.Patient.KeyColumn != "PAT_ID" {
		t.Fatalf("patient decoded = %#v", p.Patient)
	}

	// Split groups
	if len(p.SplitGroups) != 2 {
		t.Fatalf("split_groups: got %d groups, want 2", len(p.SplitGroups))
	}
	acct := p.SplitGroups[1]
	if acct.Logical != "ACCOUNT" || len(acct.Fragments) != 2 {
		t.Fatalf("split_groups[1] = %#v", acct)
	}
	if acct.Fragments[1].Table != "ACCOUNT_2" || acct.Fragments[1].JoinKey != "ACCT_ID" {
		t.Fatalf("split_groups[1].fragments[1] = %#v, want ACCOUNT_2/ACCT_ID", acct.Fragments[1])
	}

	// Relations
	if len(p.Relations.Edges) != 2 || p.Relations.Edges[0].Kind != relation.StructuralChild {
		t.Fatalf("relations.edges = %#v", p.Relations.Edges)
	}
	csn := p.Relations.CSNColumns
	if len(csn) != 2 || csn[0].Meaning != relation.MeaningProvenance {
		t.Fatalf("relations.csn_columns = %#v", csn)
	}
	if !csn[1].Ambiguous || csn[1].Note != "context unresolved" {
		t.Fatalf("csn_columns[1] = %#v, want ambiguous with note", csn[1])
	}

	// Bridges
	if len(p.Bridges) != 2 {
		t.Fatalf("bridges: got %d, want 2", len(p.Bridges))
	}
	if p.Bridges[0].BridgeTable != "PAT_ACCT_CVG" || p.Bridges[0].Absent {
		t.Fatalf("bridges[0] = %#v", p.Bridges[0])
	}
	if p.Bridges[1].EntityTable != "COVERAGE" || !p.Bridges[1].Absent {
		t.Fatalf("bridges[1] = %#v, want COVERAGE declared absent", p.Bridges[1])
	}

	// Children
	specs := p.Children["ALLERGY"]
	if len(specs) != 1 || specs[0].OutputKey != "reactions" || specs[0].Kind != relation.StructuralChild {
		t.Fatalf("children[ALLERGY] = %#v", specs)
	}

	// Manifests
	if len(p.Manifests) != 1 || p.Manifests[0].Table != "PATIENT" {
		t.Fatalf("manifests = %#v", p.Manifests)
	}
	if !reflect.DeepEqual(p.Manifests[0].Mapped, map[string]string{"PAT_ID": "id"}) {
		t.Fatalf("manifests[0].mapped = %#v", p.Manifests[0].Mapped)
	}

	// Runtime and metrics
	if p.Runtime.Workers != 4 || p.Runtime.SampleLimit != 1000 || p.Runtime.BatchSize != 500 {
		t.Fatalf("runtime decoded = %#v, want {4 1000 500}", p.Runtime)
	}
	if p.Metrics.Kind != "prometheus" || p.Metrics.GatewayURL != "http://pushgateway:9091" {
		t.Fatalf("metrics decoded = %#v", p.Metrics)
	}
}

// -----------------------------------------------------------------------------
// Load tests
// -----------------------------------------------------------------------------

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	if err := os.WriteFile(path, []byte(sampleRun), 0o644); err != nil {
		t.Fatalf("write run file: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Job != "export-2023-10" {
		t.Fatalf("Load: job = %q, want export-2023-10", p.Job)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("Load of missing file should error")
	}
}

func TestLoad_BadJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"job": `), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load of malformed JSON should error")
	}
}
