package db

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMigrateUp_AppliesEveryStatement(t *testing.T) {
	database := testDB(t)

	if err := MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	// Every object in the migration file must exist, including those whose
	// chunk starts with a comment line.
	for _, want := range []struct{ kind, name string }{
		{"table", "documents"},
		{"table", "users"},
		{"index", "idx_documents_collection_created"},
	} {
		var n int
		err := database.Get(&n,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
			want.kind, want.name)
		if err != nil {
			t.Fatalf("sqlite_master query failed: %v", err)
		}
		if n != 1 {
			t.Errorf("%s %s missing after MigrateUp", want.kind, want.name)
		}
	}

	// Re-running is a no-op.
	if err := MigrateUp(database); err != nil {
		t.Errorf("second MigrateUp() error = %v", err)
	}
}

func TestMigrateStatus(t *testing.T) {
	database := testDB(t)

	statuses, err := MigrateStatus(database)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v", err)
	}
	if len(statuses) == 0 {
		t.Fatal("no migrations found")
	}
	if statuses[0].Applied {
		t.Error("migration reported applied before MigrateUp")
	}

	if err := MigrateUp(database); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	statuses, err = MigrateStatus(database)
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied after MigrateUp", s.ID)
		}
	}
}

func TestStripLineComments(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  string
	}{
		{
			name:  "comment attached to statement",
			chunk: "\n-- header\nCREATE TABLE t (id TEXT)",
			want:  "CREATE TABLE t (id TEXT)",
		},
		{
			name:  "comment only",
			chunk: "-- nothing here\n  -- still nothing",
			want:  "",
		},
		{
			name:  "whitespace only",
			chunk: "  \n\t\n",
			want:  "",
		},
		{
			name:  "plain statement untouched",
			chunk: "DELETE FROM t",
			want:  "DELETE FROM t",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripLineComments(tt.chunk); got != tt.want {
				t.Errorf("stripLineComments(%q) = %q, want %q", tt.chunk, got, tt.want)
			}
		})
	}
}
