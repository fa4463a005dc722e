// Tests for the backend-agnostic rowstore contract: identifier validation,
// null semantics, and the factory registry.
package rowstore

import (
	"context"
	"strings"
	"testing"
)

//
// ---- identifiers -----------------------------------------------------------
//

func TestValidIdent(t *testing.T) {
	t.Parallel()

	valid := []string{"PATIENT", "PATIENT_2", "PAT_ENC_CSN_ID", "_private", "a1"}
	for _, s := range valid {
		if !ValidIdent(s) {
			t.Errorf("ValidIdent(%q) = false; want true", s)
		}
	}
	invalid := []string{"", "1abc", "PAT-ID", `PAT"ID`, "PAT ID", "t;DROP TABLE x"}
	for _, s := range invalid {
		if ValidIdent(s) {
			t.Errorf("ValidIdent(%q) = true; want false", s)
		}
	}
}

func TestCheckIdents_NamesOffender(t *testing.T) {
	t.Parallel()

	err := CheckIdents("PATIENT", "PAT ID")
	if err == nil || !strings.Contains(err.Error(), `"PAT ID"`) {
		t.Fatalf("CheckIdents err = %v; want mention of offending name", err)
	}
}

//
// ---- null semantics --------------------------------------------------------
//

func TestIsNull(t *testing.T) {
	t.Parallel()

	nulls := []any{nil, "", []byte{}}
	for _, v := range nulls {
		if !IsNull(v) {
			t.Errorf("IsNull(%#v) = false; want true", v)
		}
	}
	notNulls := []any{"x", []byte("x"), int64(0), 0.0, false}
	for _, v := range notNulls {
		if IsNull(v) {
			t.Errorf("IsNull(%#v) = true; want false", v)
		}
	}
}

//
// ---- factory ---------------------------------------------------------------
//

type nopReader struct{}

func (nopReader) QueryRows(context.Context, string, string, any) ([]Row, error) { return nil, nil }
func (nopReader) ScanTable(context.Context, string, int) ([]Row, error)         { return nil, nil }
func (nopReader) CountNonNull(context.Context, string, []string, int) (map[string]int, error) {
	return nil, nil
}
func (nopReader) HasTable(context.Context, string) (bool, error)                { return false, nil }
func (nopReader) Close() error                                                  { return nil }

func TestRegisterAndOpen(t *testing.T) {
	// Not parallel: mutates the process-wide registry.
	const kind = "test-fake-backend"

	var gotDSN string
	Register(kind, func(_ context.Context, cfg Config) (Reader, error) {
		gotDSN = cfg.DSN
		return nopReader{}, nil
	})

	r, err := Open(context.Background(), Config{Kind: kind, DSN: "dsn://x"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if gotDSN != "dsn://x" {
		t.Fatalf("factory saw DSN %q", gotDSN)
	}
}

func TestOpen_UnknownKindListsRegistered(t *testing.T) {
	// Not parallel: reads the process-wide registry.
	Register("listed-kind", func(context.Context, Config) (Reader, error) { return nopReader{}, nil })

	_, err := Open(context.Background(), Config{Kind: "no-such-kind"})
	if err == nil {
		t.Fatalf("unknown kind should fail")
	}
	if !strings.Contains(err.Error(), "listed-kind") {
		t.Fatalf("error should list registered kinds; got %v", err)
	}
}

func TestRowClone(t *testing.T) {
	t.Parallel()

	orig := Row{"PAT_ID": "Z7004242", "PAT_NAME": "TEST,PATIENT"}
	cp := orig.Clone()
	cp["_synthetic"] = "x"
	if _, leaked := orig["_synthetic"]; leaked {
		t.Fatalf("Clone must not alias the source row")
	}
}
