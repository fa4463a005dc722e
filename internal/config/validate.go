// Package config provides configuration models and helpers for
// export-processing runs.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests. Deep
// structural validation (fragment ownership, registry forest shape, bridge
// completeness) is performed by the packages that consume each section; the
// linter catches the obvious misconfigurations before those constructors run.
package config

import (
	"fmt"
	"strings"

	"ehi/internal/relation"
	"ehi/internal/rowstore"
	"ehi/internal/splitgroup"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "store.kind",
// "split_groups[1].fragments"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue in the slice has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
//
// Example:
//
//	p, err := config.Load(path)
//	if err != nil { ... }
//	issues := config.ValidatePipeline(*p)
//	for _, iss := range issues {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	// Top-level checks.
	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	if strings.TrimSpace(p.SchemaDir) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "schema_dir",
			Message:  "schema_dir must not be empty; per-table schema descriptors are required",
		})
	}

	issues = append(issues, validateStore(p.Store)...)
	issues = append(issues, validatePatient(p.Patient)...)
	issues = append(issues, validateSplitGroups(p.SplitGroups)...)
	issues = append(issues, validateRelations(p.Relations)...)
	issues = append(issues, validateBridges(p)...)
	issues = append(issues, validateChildren(p)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

// validateStore validates row store selection and connection settings.
func validateStore(s rowstore.Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "store.kind",
			Message:  "store.kind must not be empty",
		})
		return issues
	}

	// Known store kinds. Unknown kinds are warnings (for forward
	// compatibility); rowstore.Open fails hard if nothing registered matches.
	known := map[string]struct{}{
		"sqlite":   {},
		"postgres": {},
		"mysql":    {},
		"mssql":    {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "store.kind",
			Message:  fmt.Sprintf("unknown store kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "store.dsn",
			Message:  "store.dsn must not be empty",
		})
	}

	return issues
}

// validatePatient validates the patient root table configuration.
func validatePatient(p PatientConfig) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Table) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "patient.table",
			Message:  "patient.table must not be empty",
		})
	}
	if strings.TrimSpace(p.KeyColumn) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "patient.key_column",
			Message:  "patient.key_column must not be empty",
		})
	}

	return issues
}

// validateSplitGroups performs shallow checks over split-group declarations.
// Fragment ownership and key-column validity are enforced by
// splitgroup.NewResolver; the linter only reports shapes that are certainly
// wrong.
func validateSplitGroups(groups []splitgroup.Group) []Issue {
	var issues []Issue

	for i, g := range groups {
		if strings.TrimSpace(g.Logical) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("split_groups[%d].logical", i),
				Message:  "logical table name must not be empty",
			})
		}
		if len(g.Fragments) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("split_groups[%d].fragments", i),
				Message:  "split group declares no fragments",
			})
			continue
		}
		if len(g.Fragments) == 1 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("split_groups[%d].fragments", i),
				Message:  "split group has a single fragment; the declaration is redundant",
			})
		}
		for j, f := range g.Fragments {
			if strings.TrimSpace(f.Table) == "" || strings.TrimSpace(f.JoinKey) == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("split_groups[%d].fragments[%d]", i, j),
					Message:  "fragment requires both table and join_key",
				})
			}
		}
	}

	return issues
}

// validateRelations performs shallow checks over the relationship registry
// inputs. Forest shape and duplicate detection are enforced by
// relation.NewRegistry.
func validateRelations(r RelationsConfig) []Issue {
	var issues []Issue

	if len(r.Edges) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "relations.edges",
			Message:  "no relationship edges declared; child attachment and cross-referencing will be inert",
		})
	}

	for i, e := range r.Edges {
		path := fmt.Sprintf("relations.edges[%d]", i)
		if strings.TrimSpace(e.Source) == "" || strings.TrimSpace(e.Target) == "" || strings.TrimSpace(e.KeyColumn) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  "edge requires source, target, and key_column",
			})
		}
		if !e.Kind.Valid() {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".kind",
				Message:  fmt.Sprintf("unknown relationship kind %q", e.Kind),
			})
		}
	}

	for i, c := range r.CSNColumns {
		path := fmt.Sprintf("relations.csn_columns[%d]", i)
		if strings.TrimSpace(c.Table) == "" || strings.TrimSpace(c.Column) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  "csn column entry requires table and column",
			})
		}
		if c.Ambiguous && c.Meaning != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path,
				Message:  "entry is marked ambiguous but also carries a meaning; the meaning is ignored",
			})
		}
		if !c.Ambiguous && c.Meaning == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  "entry must either carry a meaning or be marked ambiguous",
			})
		}
	}

	return issues
}

// validateBridges performs shallow checks over bridge declarations and flags
// entity tables that reference patients without any bridge declaration.
func validateBridges(p Pipeline) []Issue {
	var issues []Issue

	declared := make(map[string]bool, len(p.Bridges))
	for i, d := range p.Bridges {
		path := fmt.Sprintf("bridges[%d]", i)
		if strings.TrimSpace(d.EntityTable) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".entity_table",
				Message:  "entity_table must not be empty",
			})
			continue
		}
		if declared[d.EntityTable] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("duplicate bridge declaration for entity table %q", d.EntityTable),
			})
		}
		declared[d.EntityTable] = true

		if d.Absent {
			if d.BridgeTable != "" {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     path,
					Message:  "bridge is declared absent but names a bridge_table; the table is ignored",
				})
			}
			continue
		}
		if strings.TrimSpace(d.BridgeTable) == "" || strings.TrimSpace(d.PatientKeyColumn) == "" || strings.TrimSpace(d.EntityKeyColumn) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  "bridge requires bridge_table, patient_key_column, and entity_key_column unless declared absent",
			})
		}
	}

	return issues
}

// validateChildren performs shallow checks over child attachment specs.
func validateChildren(p Pipeline) []Issue {
	var issues []Issue

	for parent, specs := range p.Children {
		if len(specs) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     fmt.Sprintf("children[%q]", parent),
				Message:  "parent declares no child specs",
			})
			continue
		}
		seenOut := make(map[string]bool, len(specs))
		for i, s := range specs {
			path := fmt.Sprintf("children[%q][%d]", parent, i)
			if s.Kind == relation.StructuralChild && strings.TrimSpace(s.ChildTable) == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".child_table",
					Message:  "structural child spec requires child_table",
				})
			}
			if strings.TrimSpace(s.ForeignKeyColumn) == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".foreign_key_column",
					Message:  "child spec requires foreign_key_column",
				})
			}
			if strings.TrimSpace(s.OutputKey) == "" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".output_key",
					Message:  "child spec requires output_key",
				})
			} else if seenOut[s.OutputKey] {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".output_key",
					Message:  fmt.Sprintf("duplicate output_key %q under parent %q", s.OutputKey, parent),
				})
			}
			seenOut[s.OutputKey] = true
			if !s.Kind.Valid() {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".kind",
					Message:  fmt.Sprintf("unknown relationship kind %q", s.Kind),
				})
			}
		}
	}

	return issues
}

// validateMetrics validates the optional metrics backend selection.
func validateMetrics(m MetricsConfig) []Issue {
	var issues []Issue

	switch m.Kind {
	case "":
		// metrics disabled
	case "prometheus":
		if strings.TrimSpace(m.GatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.gateway_url",
				Message:  "prometheus metrics require gateway_url",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.StatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.statsd_addr",
				Message:  "datadog metrics require statsd_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.kind",
			Message:  fmt.Sprintf("unknown metrics kind %q (want \"\", \"prometheus\", or \"datadog\")", m.Kind),
		})
	}

	return issues
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations
// (negative worker counts, negative limits).
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.SampleLimit < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.sample_limit",
			Message:  "sample_limit must not be negative",
		})
	}
	if r.BatchSize < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "batch_size must not be negative",
		})
	}

	return issues
}
