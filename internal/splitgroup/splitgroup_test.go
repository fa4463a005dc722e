// Tests cover declaration validation, join-key lookup, the ACCOUNT
// three-fragment merge, mismatch detection, and secondary-key ordering.
package splitgroup

import (
	"context"
	"errors"
	"testing"

	"ehi/internal/rowstore"
	"ehi/internal/rowstore/rowstoretest"
)

// accountGroups declares ACCOUNT split across three fragments whose key
// columns disagree: ACCOUNT_ID, ACCT_ID, ACCOUNT_ID.
func accountGroups() []Group {
	return []Group{{
		Logical: "ACCOUNT",
		Fragments: []Fragment{
			{Table: "ACCOUNT", JoinKey: "ACCOUNT_ID"},
			{Table: "ACCOUNT_2", JoinKey: "ACCT_ID"},
			{Table: "ACCOUNT_3", JoinKey: "ACCOUNT_ID"},
		},
	}}
}

//
// ---- declarations ----------------------------------------------------------
//

func TestNewResolver_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		groups []Group
	}{
		{"empty logical", []Group{{Fragments: []Fragment{{Table: "T", JoinKey: "K"}}}}},
		{"no fragments", []Group{{Logical: "T"}}},
		{"bad join key", []Group{{Logical: "T", Fragments: []Fragment{{Table: "T", JoinKey: "K;DROP"}}}}},
		{"duplicate group", append(accountGroups(), accountGroups()...)},
		{"fragment claimed twice", []Group{
			{Logical: "A", Fragments: []Fragment{{Table: "SHARED", JoinKey: "K"}}},
			{Logical: "B", Fragments: []Fragment{{Table: "SHARED", JoinKey: "K"}}},
		}},
	}
	for _, tc := range cases {
		if _, err := NewResolver(tc.groups); err == nil {
			t.Errorf("%s: want error", tc.name)
		}
	}
}

func TestJoinKeyFor(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(accountGroups())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	key, err := r.JoinKeyFor("ACCOUNT_2")
	if err != nil || key != "ACCT_ID" {
		t.Fatalf("JoinKeyFor(ACCOUNT_2) = %q, %v; want ACCT_ID", key, err)
	}
	if _, err := r.JoinKeyFor("PATIENT"); err == nil {
		t.Fatalf("undeclared fragment should fail")
	}

	owner, ok := r.FragmentOwner("ACCOUNT_3")
	if !ok || owner != "ACCOUNT" {
		t.Fatalf("FragmentOwner(ACCOUNT_3) = %q, %v", owner, ok)
	}
}

//
// ---- merging ---------------------------------------------------------------
//

// TestLogicalRow_AccountMerge is the canonical split-table scenario: key value
// 4793998 present in all three fragments under differing key column names;
// the merge yields one row carrying the union of all fragments' columns.
func TestLogicalRow_AccountMerge(t *testing.T) {
	t.Parallel()

	store := rowstoretest.New().
		Add("ACCOUNT",
			rowstore.Row{"ACCOUNT_ID": int64(4793998), "ACCOUNT_NAME": "TEST,PATIENT", "CITY": "MADISON"}).
		Add("ACCOUNT_2",
			rowstore.Row{"ACCT_ID": int64(4793998), "CONTACT_STATUS_C_NAME": "Active", "CITY": "IGNORED"},
			rowstore.Row{"ACCT_ID": int64(1111111), "CONTACT_STATUS_C_NAME": "Other"}).
		Add("ACCOUNT_3",
			rowstore.Row{"ACCOUNT_ID": int64(4793998), "BILLING_CYCLE_C_NAME": "Monthly"})

	r, err := NewResolver(accountGroups())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	row, err := r.LogicalRow(context.Background(), store, "ACCOUNT", 4793998)
	if err != nil {
		t.Fatalf("LogicalRow: %v", err)
	}
	if row == nil {
		t.Fatalf("LogicalRow returned nil row")
	}

	want := map[string]any{
		"ACCOUNT_ID":            int64(4793998),
		"ACCOUNT_NAME":          "TEST,PATIENT",
		"CITY":                  "MADISON", // primary fragment wins the duplicate column
		"ACCT_ID":               int64(4793998),
		"CONTACT_STATUS_C_NAME": "Active",
		"BILLING_CYCLE_C_NAME":  "Monthly",
	}
	for col, v := range want {
		if row[col] != v {
			t.Errorf("merged[%q] = %v; want %v", col, row[col], v)
		}
	}
}

func TestLogicalRow_NoRow(t *testing.T) {
	t.Parallel()

	store := rowstoretest.New().
		Add("ACCOUNT").Add("ACCOUNT_2").Add("ACCOUNT_3")
	r, _ := NewResolver(accountGroups())

	row, err := r.LogicalRow(context.Background(), store, "ACCOUNT", 404)
	if err != nil {
		t.Fatalf("LogicalRow: %v", err)
	}
	if row != nil {
		t.Fatalf("want nil row for absent key, got %v", row)
	}
}

func TestMergeRows_MismatchWithoutSecondaryKey(t *testing.T) {
	t.Parallel()

	store := rowstoretest.New().
		Add("ACCOUNT", rowstore.Row{"ACCOUNT_ID": int64(1)}).
		Add("ACCOUNT_2",
			rowstore.Row{"ACCT_ID": int64(1), "X": "a"},
			rowstore.Row{"ACCT_ID": int64(1), "X": "b"}).
		Add("ACCOUNT_3")

	r, _ := NewResolver(accountGroups())
	_, err := r.LogicalRow(context.Background(), store, "ACCOUNT", 1)

	var mm *MismatchError
	if !errors.As(err, &mm) {
		t.Fatalf("err = %v; want *MismatchError", err)
	}
	if mm.Fragment != "ACCOUNT_2" || mm.Count != 2 {
		t.Fatalf("MismatchError = %+v", mm)
	}
}

func TestMergeRows_SecondaryKeyOrdersDeterministically(t *testing.T) {
	t.Parallel()

	groups := []Group{{
		Logical: "HSP_ACCOUNT",
		Fragments: []Fragment{
			{Table: "HSP_ACCOUNT", JoinKey: "HSP_ACCOUNT_ID"},
			{Table: "HSP_ACCT_NOTES", JoinKey: "HSP_ACCT_ID", SecondaryKey: "LINE"},
		},
	}}
	r, err := NewResolver(groups)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	primary := rowstore.Row{"HSP_ACCOUNT_ID": int64(7)}
	fragRows := map[string][]rowstore.Row{
		"HSP_ACCT_NOTES": {
			{"HSP_ACCT_ID": int64(7), "LINE": int64(2), "NOTE": "second"},
			{"HSP_ACCT_ID": int64(7), "LINE": int64(1), "NOTE": "first"},
		},
	}
	merged, err := r.MergeRows("HSP_ACCOUNT", 7, primary, fragRows)
	if err != nil {
		t.Fatalf("MergeRows: %v", err)
	}
	// First non-null in LINE order wins: the LINE=1 note.
	if merged["NOTE"] != "first" {
		t.Fatalf("merged[NOTE] = %v; want first", merged["NOTE"])
	}
}

// TestLogicalRow_MultiRowPrimaryFoldsInLineOrder: a primary fragment with a
// declared secondary key can legally hold several rows per key value. The
// merge must fold all of them in secondary-key order, never anchor on
// whichever row the store returned first.
func TestLogicalRow_MultiRowPrimaryFoldsInLineOrder(t *testing.T) {
	t.Parallel()

	groups := []Group{{
		Logical: "NOTES",
		Fragments: []Fragment{
			{Table: "NOTES", JoinKey: "NOTE_ID", SecondaryKey: "LINE"},
			{Table: "NOTES_2", JoinKey: "NOTE_ID"},
		},
	}}
	r, err := NewResolver(groups)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	// Store order is deliberately LINE=2 before LINE=1, and the LINE=1 row
	// carries a column the LINE=2 row leaves null.
	store := rowstoretest.New().
		Add("NOTES",
			rowstore.Row{"NOTE_ID": int64(9), "LINE": int64(2), "TEXT": "second", "AUTHOR": nil},
			rowstore.Row{"NOTE_ID": int64(9), "LINE": int64(1), "TEXT": "first", "AUTHOR": "SMITH"}).
		Add("NOTES_2",
			rowstore.Row{"NOTE_ID": int64(9), "NOTE_TYPE_C_NAME": "Progress"})

	row, err := r.LogicalRow(context.Background(), store, "NOTES", 9)
	if err != nil {
		t.Fatalf("LogicalRow: %v", err)
	}
	if row["TEXT"] != "first" {
		t.Errorf("merged[TEXT] = %v; want first (LINE-ordered fold)", row["TEXT"])
	}
	if row["AUTHOR"] != "SMITH" {
		t.Errorf("merged[AUTHOR] = %v; want SMITH (later primary rows fill nulls)", row["AUTHOR"])
	}
	if row["NOTE_TYPE_C_NAME"] != "Progress" {
		t.Errorf("merged[NOTE_TYPE_C_NAME] = %v; want Progress", row["NOTE_TYPE_C_NAME"])
	}
}

func TestLogicalRow_MultiRowPrimaryWithoutSecondaryKey(t *testing.T) {
	t.Parallel()

	store := rowstoretest.New().
		Add("ACCOUNT",
			rowstore.Row{"ACCOUNT_ID": int64(1), "X": "a"},
			rowstore.Row{"ACCOUNT_ID": int64(1), "X": "b"}).
		Add("ACCOUNT_2").Add("ACCOUNT_3")

	r, _ := NewResolver(accountGroups())
	_, err := r.LogicalRow(context.Background(), store, "ACCOUNT", 1)

	var mm *MismatchError
	if !errors.As(err, &mm) {
		t.Fatalf("err = %v; want *MismatchError", err)
	}
	if mm.Fragment != "ACCOUNT" || mm.Count != 2 {
		t.Fatalf("MismatchError = %+v", mm)
	}
}

func TestMergeRows_DoesNotMutatePrimary(t *testing.T) {
	t.Parallel()

	r, _ := NewResolver(accountGroups())
	primary := rowstore.Row{"ACCOUNT_ID": int64(1)}
	frag := map[string][]rowstore.Row{
		"ACCOUNT_2": {{"ACCT_ID": int64(1), "EXTRA": "x"}},
	}
	if _, err := r.MergeRows("ACCOUNT", 1, primary, frag); err != nil {
		t.Fatalf("MergeRows: %v", err)
	}
	if _, leaked := primary["EXTRA"]; leaked {
		t.Fatalf("MergeRows mutated the primary row")
	}
}
