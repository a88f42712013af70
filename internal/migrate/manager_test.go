package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCollectSQLOrdersByFilename(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_roles.up.sql", "0001_init.up.sql", "0001_init.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	files, err := collectSQL(dir, ".up.sql")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	if files[0].Base != "0001_init.up.sql" || files[1].Base != "0002_roles.up.sql" {
		t.Fatalf("unexpected order: %s, %s", files[0].Base, files[1].Base)
	}
}

func TestCollectSQLMissingDir(t *testing.T) {
	files, err := collectSQL(filepath.Join(t.TempDir(), "nope"), ".sql")
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if files != nil {
		t.Fatalf("expected no files, got %v", files)
	}
}

func TestSplitStatementsRespectsStringLiterals(t *testing.T) {
	sql := `insert into permissions(name) values ('a;b');
create index idx on t(c);`
	stmts := splitStatements(sql)
	if len(stmts) != 2 {
		t.Fatalf("statements = %d, want 2: %q", len(stmts), stmts)
	}
	if want := "insert into permissions(name) values ('a;b');"; stmts[0] != want {
		t.Fatalf("first statement = %q", stmts[0])
	}
}
