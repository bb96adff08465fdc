package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	intake "github.com/hireloop/go-intake"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestIntakeTablesMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := intake.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/20260301000000_create_intake_tables.up.sql",
		"data/sql/migrations/20260301000000_create_intake_tables.down.sql",
		"data/sql/migrations/sqlite/20260301000000_create_intake_tables.up.sql",
		"data/sql/migrations/sqlite/20260301000000_create_intake_tables.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteIntakeTablesMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-intake-tables?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := intake.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(
		context.Background(),
		db,
		sqliteMigrations,
		"20260301000000_create_intake_tables.up.sql",
	); err != nil {
		t.Fatalf("apply intake tables migration up: %v", err)
	}

	requiredTables := []string{
		"webhook_events",
		"interviews",
		"campaigns",
		"campaign_sends",
		"email_suppressions",
	}
	for _, tableName := range requiredTables {
		var count int
		if err := db.QueryRowContext(
			context.Background(),
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
			tableName,
		).Scan(&count); err != nil {
			t.Fatalf("query sqlite_master for %s: %v", tableName, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	insertEvent := `
		INSERT INTO webhook_events (id, provider, event_type, event_id, status, attempts, max_attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertEvent,
		"evt-row-1", "meet", "meeting.started", "evt-1", "received", 0, 3,
	); err != nil {
		t.Fatalf("insert webhook event: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertEvent,
		"evt-row-2", "meet", "meeting.started", "evt-1", "received", 0, 3,
	); err == nil {
		t.Fatalf("expected (provider, event_id) unique violation after up migration")
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertEvent,
		"evt-row-3", "mail", "email.opened", "evt-1", "received", 0, 3,
	); err != nil {
		t.Fatalf("expected same event_id under different provider to insert: %v", err)
	}

	insertSuppression := `
		INSERT INTO email_suppressions (id, company_id, email, reason)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertSuppression,
		"sup-1", "co-1", "lead@example.com", "bounce",
	); err != nil {
		t.Fatalf("insert suppression: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertSuppression,
		"sup-2", "co-1", "lead@example.com", "bounce",
	); err == nil {
		t.Fatalf("expected (company_id, email, reason) unique violation after up migration")
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertSuppression,
		"sup-3", "co-1", "lead@example.com", "complaint",
	); err != nil {
		t.Fatalf("expected different reason for same email to insert: %v", err)
	}

	if err := execSQLMigration(
		context.Background(),
		db,
		sqliteMigrations,
		"20260301000000_create_intake_tables.down.sql",
	); err != nil {
		t.Fatalf("apply intake tables migration down: %v", err)
	}

	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"webhook_events",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down migration: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected webhook_events to be dropped after down migration")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
