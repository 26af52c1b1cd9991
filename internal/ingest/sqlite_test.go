package ingest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// newTestDB creates a decrypted-layout database with the positional schema
// the client writes: group IDs in column 0 and names in column 5 of
// group_list, nick/name/group/uid in columns 0/1/2/5 of group_member3.
func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "group_info.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE group_list (c0 TEXT, c1 TEXT, c2 TEXT, c3 TEXT, c4 TEXT, c5 TEXT)`,
		`CREATE TABLE group_member3 (c0 TEXT, c1 TEXT, c2 TEXT, c3 TEXT, c4 TEXT, c5 TEXT)`,
		`INSERT INTO group_list VALUES ('100', '', '', '', '', 'Alumni')`,
		`INSERT INTO group_list VALUES ('200', '', '', '', '', 'Work')`,
		`INSERT INTO group_member3 VALUES ('ali', 'Alice', '100', '', '', 'alice')`,
		`INSERT INTO group_member3 VALUES ('bobby', '', '100', '', '', 'bob')`,
		`INSERT INTO group_member3 VALUES ('', 'Me', '100', '', '', 'owner')`,
		`INSERT INTO group_member3 VALUES ('ali', 'Alice', '200', '', '', 'alice')`,
		`INSERT INTO group_member3 VALUES ('', '', '', '', '', '')`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seeding test database: %v", err)
		}
	}
	return path
}

// TestSQLiteSourceRecords verifies positional reads, the group-name join,
// owner exclusion, and the nickname fallback.
func TestSQLiteSourceRecords(t *testing.T) {
	src := NewSQLiteSource(newTestDB(t), "owner")
	records, err := src.Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}

	// 3 valid rows survive (owner excluded) plus 1 malformed carried through.
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4: %v", len(records), records)
	}

	valid := 0
	for _, rec := range records {
		if rec.MemberID == "owner" {
			t.Fatal("owner row not excluded")
		}
		if !rec.Valid() {
			continue
		}
		valid++
		if rec.MemberID == "alice" && rec.GroupID == "100" {
			if rec.GroupName != "Alumni" || rec.MemberName != "Alice" || rec.MemberGroupName != "ali" {
				t.Errorf("alice record = %+v", rec)
			}
		}
		if rec.MemberID == "bob" {
			if rec.MemberName != "bobby" || rec.MemberGroupName != "bobby" {
				t.Errorf("expected nickname fallback, got %+v", rec)
			}
		}
	}
	if valid != 3 {
		t.Errorf("got %d valid records, want 3", valid)
	}
}

// TestSQLiteSourceIntegerColumns verifies integer-typed ID columns come out
// as decimal strings.
func TestSQLiteSourceIntegerColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "group_info.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	stmts := []string{
		`CREATE TABLE group_list (c0 INTEGER, c1 TEXT, c2 TEXT, c3 TEXT, c4 TEXT, c5 TEXT)`,
		`CREATE TABLE group_member3 (c0 TEXT, c1 TEXT, c2 INTEGER, c3 TEXT, c4 TEXT, c5 INTEGER)`,
		`INSERT INTO group_list VALUES (100, '', '', '', '', 'Numbers')`,
		`INSERT INTO group_member3 VALUES ('n', 'N', 100, '', '', 42)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seeding test database: %v", err)
		}
	}
	db.Close()

	records, err := NewSQLiteSource(path, "owner").Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.GroupID != "100" || rec.MemberID != "42" || rec.GroupName != "Numbers" {
		t.Errorf("record = %+v", rec)
	}
}

// TestSQLiteSourceMissingTable verifies a wrong database errors instead of
// returning an empty dataset.
func TestSQLiteSourceMissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE unrelated (x TEXT)`); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	db.Close()

	if _, err := NewSQLiteSource(path, "owner").Records(context.Background()); err == nil {
		t.Fatal("expected error for missing tables")
	}
}
