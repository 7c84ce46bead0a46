package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadMigrationsOrdersSQLFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "002_personas.sql", "SELECT 2;")
	writeFile(t, dir, "001_init.sql", "SELECT 1;")
	writeFile(t, dir, "README.md", "not a migration")
	if err := os.Mkdir(filepath.Join(dir, "archive.sql"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	migrations, err := loadMigrations(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected two migrations, got %d", len(migrations))
	}
	if migrations[0].Name != "001_init.sql" || migrations[1].Name != "002_personas.sql" {
		t.Fatalf("unexpected order %s, %s", migrations[0].Name, migrations[1].Name)
	}
	if migrations[0].SQL != "SELECT 1;" || len(migrations[0].Checksum) != 64 {
		t.Fatalf("unexpected migration %+v", migrations[0])
	}
	if migrations[0].Checksum == migrations[1].Checksum {
		t.Fatal("different contents should have different checksums")
	}
}

func TestLoadMigrationsMissingDirectory(t *testing.T) {
	if _, err := loadMigrations(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestPendingMigrations(t *testing.T) {
	migrations := []migration{
		{Name: "001_init.sql", Checksum: "aaa"},
		{Name: "002_personas.sql", Checksum: "bbb"},
		{Name: "003_jobs.sql", Checksum: "ccc"},
	}

	pending, err := pendingMigrations(migrations, map[string]string{"001_init.sql": "aaa", "002_personas.sql": ""})
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "003_jobs.sql" {
		t.Fatalf("unexpected pending set %+v", pending)
	}

	_, err = pendingMigrations(migrations, map[string]string{"001_init.sql": "changed"})
	if !errors.Is(err, errMigrationDrift) {
		t.Fatalf("expected drift error, got %v", err)
	}
}

func TestPrintStatus(t *testing.T) {
	migrations := []migration{
		{Name: "001_init.sql", Checksum: "aaa"},
		{Name: "002_personas.sql", Checksum: "bbb"},
		{Name: "003_jobs.sql", Checksum: "ccc"},
	}

	var buf bytes.Buffer
	printStatus(&buf, migrations, map[string]string{"001_init.sql": "aaa", "002_personas.sql": "old"})

	want := "[x] 001_init.sql\n[!] 002_personas.sql (modified after apply)\n[ ] 003_jobs.sql\n"
	if buf.String() != want {
		t.Fatalf("unexpected status output:\n%s", buf.String())
	}
}

func TestSeedFileName(t *testing.T) {
	if got := seedFileName("dev"); got != "dev_seed.sql" {
		t.Fatalf("expected dev_seed.sql, got %s", got)
	}
	if got := seedFileName("custom.sql"); got != "custom.sql" {
		t.Fatalf("expected custom.sql, got %s", got)
	}
}

func TestResolveDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "migrations")
	got, err := resolveDir(abs)
	if err != nil || got != abs {
		t.Fatalf("expected absolute path unchanged, got %q %v", got, err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	got, err = resolveDir("migrations")
	if err != nil || got != filepath.Join(wd, "migrations") {
		t.Fatalf("expected path under working directory, got %q %v", got, err)
	}
}

func TestMigrationBackoff(t *testing.T) {
	cases := map[int]time.Duration{
		0:  0,
		1:  100 * time.Millisecond,
		2:  200 * time.Millisecond,
		3:  400 * time.Millisecond,
		10: migrationMaxBackoff,
		70: migrationMaxBackoff,
	}
	for attempt, want := range cases {
		if got := migrationBackoff(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestShouldRetryMigration(t *testing.T) {
	retryable := []error{
		context.DeadlineExceeded,
		pgx.ErrTxClosed,
		fmt.Errorf("apply: %w", &pgconn.PgError{Code: "40001"}),
		&pgconn.PgError{Code: "40P01"},
	}
	for _, err := range retryable {
		if !shouldRetryMigration(err) {
			t.Fatalf("expected %v to be retryable", err)
		}
	}

	permanent := []error{
		nil,
		errors.New("syntax error"),
		&pgconn.PgError{Code: "42601"},
	}
	for _, err := range permanent {
		if shouldRetryMigration(err) {
			t.Fatalf("expected %v to be permanent", err)
		}
	}
}

func TestRunRejectsUnsupportedMigrateCommands(t *testing.T) {
	if err := Run(context.Background(), []string{"migrate", "down"}); err == nil {
		t.Fatal("expected down migrations to be rejected")
	}
	if err := Run(context.Background(), []string{"migrate", "sideways"}); err == nil {
		t.Fatal("expected unknown migrate command to be rejected")
	}
	if err := Run(context.Background(), []string{"seed"}); err == nil {
		t.Fatal("expected seed without a name to be rejected")
	}
}
