package config

import (
	"strings"
	"testing"

	"ehi/internal/attach"
	"ehi/internal/bridge"
	"ehi/internal/relation"
	"ehi/internal/rowstore"
	"ehi/internal/splitgroup"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

// validRun builds a well-formed pipeline that passes the linter cleanly.
// Individual tests break one section at a time.
func validRun() Pipeline {
	return Pipeline{
		Job:       "export-2023-10",
		SchemaDir: "schemas/",
		Store:     rowstore.Config{Kind: "sqlite", DSN: "file:ehi.db"},
		Patient:   PatientConfig{Table: "PATIENT", KeyColumn: "PAT_ID"},
		SplitGroups: []splitgroup.Group{
			{Logical: "PATIENT", Fragments: []splitgroup.Fragment{
				{Table: "PATIENT", JoinKey: "PAT_ID"},
				{Table: "PATIENT_2", JoinKey: "PAT_ID"},
			}},
		},
		Relations: RelationsConfig{
			Edges: []relation.Edge{
				{Source: "ALLERGY", Target: "PATIENT", KeyColumn: "PAT_ID", Kind: relation.StructuralChild},
			},
			CSNColumns: []relation.CSNEntry{
				{Table: "ALLERGY", Column: "ALRGY_ENTERED_CSN", Meaning: relation.MeaningProvenance},
			},
		},
		Bridges: []bridge.Declaration{
			{
				EntityTable:      "ACCOUNT",
				EntityKeyColumn:  "ACCOUNT_ID",
				BridgeTable:      "PAT_ACCT_CVG",
				PatientKeyColumn: "PAT_ID",
				EntityPKColumn:   "ACCOUNT_ID",
			},
		},
		Children: map[string][]attach.ChildSpec{
			"ALLERGY": {
				{
					ChildTable:       "ALLERGY_REACTIONS",
					ForeignKeyColumn: "ALLERGY_ID",
					OutputKey:        "reactions",
					Kind:             relation.StructuralChild,
				},
			},
		},
		Runtime: RuntimeConfig{Workers: 4, SampleLimit: 1000, BatchSize: 500},
	}
}

/*
TestValidatePipeline_ValidRun verifies that a well-formed run produces no
issues (errors or warnings).
*/
func TestValidatePipeline_ValidRun(t *testing.T) {
	t.Parallel()

	issues := ValidatePipeline(validRun())
	if len(issues) != 0 {
		t.Fatalf("expected no issues for valid run; got: %+v", issues)
	}
}

/*
TestValidatePipeline_MissingJob verifies that a missing or empty Job field
produces a SeverityError with path "job".
*/
func TestValidatePipeline_MissingJob(t *testing.T) {
	t.Parallel()

	p := validRun()
	p.Job = ""

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "job", "job must not be empty") {
		t.Fatalf("expected SeverityError for job; got issues: %+v", issues)
	}
}

func TestValidatePipeline_Store(t *testing.T) {
	t.Parallel()

	p := validRun()
	p.Store.Kind = ""
	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "store.kind", "must not be empty") {
		t.Fatalf("expected SeverityError for store.kind; got: %+v", issues)
	}

	p = validRun()
	p.Store.Kind = "oracle"
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "store.kind", "unknown store kind") {
		t.Fatalf("expected SeverityWarning for unknown store kind; got: %+v", issues)
	}

	p = validRun()
	p.Store.DSN = ""
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "store.dsn", "must not be empty") {
		t.Fatalf("expected SeverityError for store.dsn; got: %+v", issues)
	}
}

func TestValidatePipeline_Patient(t *testing.T) {
	t.Parallel()

	p := validRun()
	p.Patient = PatientConfig{}

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "patient.table", "must not be empty") {
		t.Fatalf("expected SeverityError for patient.table; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "patient.key_column", "must not be empty") {
		t.Fatalf("expected SeverityError for patient.key_column; got: %+v", issues)
	}
}

func TestValidatePipeline_SplitGroups(t *testing.T) {
	t.Parallel()

	p := validRun()
	p.SplitGroups = []splitgroup.Group{
		{Logical: "ACCOUNT"}, // no fragments
		{Logical: "ORDER", Fragments: []splitgroup.Fragment{
			{Table: "ORDER_PROC", JoinKey: "ORDER_PROC_ID"},
		}},
		{Logical: "X", Fragments: []splitgroup.Fragment{
			{Table: "", JoinKey: "K"},
			{Table: "X_2", JoinKey: "K"},
		}},
	}

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "split_groups[0].fragments", "no fragments") {
		t.Fatalf("expected SeverityError for empty fragment list; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityWarning, "split_groups[1].fragments", "single fragment") {
		t.Fatalf("expected SeverityWarning for single fragment; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "split_groups[2].fragments[0]", "table and join_key") {
		t.Fatalf("expected SeverityError for incomplete fragment; got: %+v", issues)
	}
}

func TestValidatePipeline_Relations(t *testing.T) {
	t.Parallel()

	p := validRun()
	p.Relations.Edges = []relation.Edge{
		{Source: "ALLERGY", Target: "PATIENT", KeyColumn: "PAT_ID", Kind: relation.Kind("owns")},
	}
	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "relations.edges[0].kind", "unknown relationship kind") {
		t.Fatalf("expected SeverityError for unknown edge kind; got: %+v", issues)
	}

	p = validRun()
	p.Relations.CSNColumns = []relation.CSNEntry{
		{Table: "HNO_INFO", Column: "PAT_ENC_CSN_ID"}, // neither meaning nor ambiguous
	}
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "relations.csn_columns[0]", "carry a meaning or be marked ambiguous") {
		t.Fatalf("expected SeverityError for meaningless csn entry; got: %+v", issues)
	}

	p = validRun()
	p.Relations.CSNColumns = []relation.CSNEntry{
		{Table: "HNO_INFO", Column: "PAT_ENC_CSN_ID", Meaning: relation.MeaningIdentity, Ambiguous: true},
	}
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "relations.csn_columns[0]", "the meaning is ignored") {
		t.Fatalf("expected SeverityWarning for ambiguous entry with meaning; got: %+v", issues)
	}

	p = validRun()
	p.Relations.Edges = nil
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "relations.edges", "no relationship edges") {
		t.Fatalf("expected SeverityWarning for empty edge list; got: %+v", issues)
	}
}

func TestValidatePipeline_Bridges(t *testing.T) {
	t.Parallel()

	p := validRun()
	p.Bridges = append(p.Bridges, p.Bridges[0])
	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "bridges[1]", "duplicate bridge declaration") {
		t.Fatalf("expected SeverityError for duplicate bridge; got: %+v", issues)
	}

	p = validRun()
	p.Bridges = []bridge.Declaration{
		{EntityTable: "ACCOUNT", EntityKeyColumn: "ACCOUNT_ID"}, // no bridge table, not absent
	}
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "bridges[0]", "unless declared absent") {
		t.Fatalf("expected SeverityError for incomplete bridge; got: %+v", issues)
	}

	p = validRun()
	p.Bridges = []bridge.Declaration{
		{EntityTable: "COVERAGE", Absent: true, BridgeTable: "PAT_CVG"},
	}
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityWarning, "bridges[0]", "the table is ignored") {
		t.Fatalf("expected SeverityWarning for absent bridge naming a table; got: %+v", issues)
	}
}

func TestValidatePipeline_Children(t *testing.T) {
	t.Parallel()

	p := validRun()
	p.Children = map[string][]attach.ChildSpec{
		"ALLERGY": {
			{ChildTable: "ALLERGY_REACTIONS", ForeignKeyColumn: "ALLERGY_ID", OutputKey: "reactions", Kind: relation.StructuralChild},
			{ChildTable: "ALLERGY_FLAGS", ForeignKeyColumn: "ALLERGY_ID", OutputKey: "reactions", Kind: relation.StructuralChild},
		},
	}
	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, `children["ALLERGY"][1].output_key`, "duplicate output_key") {
		t.Fatalf("expected SeverityError for duplicate output_key; got: %+v", issues)
	}

	p = validRun()
	p.Children = map[string][]attach.ChildSpec{
		"ALLERGY": {
			{Kind: relation.StructuralChild},
		},
	}
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, `children["ALLERGY"][0].child_table`, "requires child_table") {
		t.Fatalf("expected SeverityError for missing child_table; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, `children["ALLERGY"][0].foreign_key_column`, "requires foreign_key_column") {
		t.Fatalf("expected SeverityError for missing foreign_key_column; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, `children["ALLERGY"][0].output_key`, "requires output_key") {
		t.Fatalf("expected SeverityError for missing output_key; got: %+v", issues)
	}
}

func TestValidatePipeline_Metrics(t *testing.T) {
	t.Parallel()

	p := validRun()
	p.Metrics = MetricsConfig{Kind: "prometheus"}
	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "metrics.gateway_url", "require gateway_url") {
		t.Fatalf("expected SeverityError for missing gateway_url; got: %+v", issues)
	}

	p = validRun()
	p.Metrics = MetricsConfig{Kind: "datadog"}
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "metrics.statsd_addr", "require statsd_addr") {
		t.Fatalf("expected SeverityError for missing statsd_addr; got: %+v", issues)
	}

	p = validRun()
	p.Metrics = MetricsConfig{Kind: "graphite"}
	issues = ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "metrics.kind", "unknown metrics kind") {
		t.Fatalf("expected SeverityError for unknown metrics kind; got: %+v", issues)
	}
}

func TestValidatePipeline_Runtime(t *testing.T) {
	t.Parallel()

	p := validRun()
	p.Runtime = RuntimeConfig{Workers: -1, SampleLimit: -5, BatchSize: -2}

	issues := ValidatePipeline(p)
	if !hasIssue(t, issues, SeverityError, "runtime.workers", "must not be negative") {
		t.Fatalf("expected SeverityError for negative workers; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "runtime.sample_limit", "must not be negative") {
		t.Fatalf("expected SeverityError for negative sample_limit; got: %+v", issues)
	}
	if !hasIssue(t, issues, SeverityError, "runtime.batch_size", "must not be negative") {
		t.Fatalf("expected SeverityError for negative batch_size; got: %+v", issues)
	}
}

func TestHasErrors(t *testing.T) {
	t.Parallel()

	if HasErrors(nil) {
		t.Fatal("HasErrors(nil) = true")
	}
	warn := []Issue{{Severity: SeverityWarning, Path: "x", Message: "m"}}
	if HasErrors(warn) {
		t.Fatal("HasErrors(warnings only) = true")
	}
	mixed := append(warn, Issue{Severity: SeverityError, Path: "y", Message: "m"})
	if !HasErrors(mixed) {
		t.Fatal("HasErrors(mixed) = false")
	}
}
