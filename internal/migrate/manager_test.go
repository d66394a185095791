package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0002_second.up.sql", "create table b (id int);")
	writeFile(t, dir, "0001_first.up.sql", "create table a (id int);")

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists migration_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists seed_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from migration_history").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_first.up.sql"))

	// Only the second migration is pending; version order decides.
	mock.ExpectBegin()
	mock.ExpectExec("create table b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into migration_history").WithArgs("0002_second.up.sql", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))

	runner := NewRunner(db, dir, "")
	if err := runner.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDiscoverRejectsMalformedNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "first.up.sql", "select 1;")

	if _, err := discover(dir); err == nil {
		t.Fatalf("expected error for missing version prefix")
	}
}

func TestDiscoverRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0001_a.up.sql", "select 1;")
	writeFile(t, dir, "0001_b.up.sql", "select 1;")

	if _, err := discover(dir); err == nil {
		t.Fatalf("expected error for duplicate version")
	}
}

func TestSplitStatements(t *testing.T) {
	script := `
-- setup; note the semicolon in this comment
create table t (name text default 'a;b');
insert into t values ('x');
`
	stmts := splitStatements(script)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
}
