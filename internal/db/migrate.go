// Package db provides versioned schema migrations for the social store.
package db

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/humancuration/cpc-core/internal/errors"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one applied schema change, as recorded in schema_migrations.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrationFile is a parsed V<version>__<description>.up.sql directory entry.
type migrationFile struct {
	version     int
	description string
	name        string
}

// Migrator applies versioned SQL migrations from a file system. Each
// migration is a V<version>__<description>.up.sql file, with an optional
// .down.sql twin for rollback.
type Migrator struct {
	db   *sql.DB
	fsys fs.FS
}

// NewMigrator creates a Migrator reading migration files from fsys.
func NewMigrator(db *sql.DB, fsys fs.FS) *Migrator {
	return &Migrator{db: db, fsys: fsys}
}

// NewEmbeddedMigrator creates a Migrator over the migrations compiled into
// the binary, so the shared library needs no migration files on disk.
func NewEmbeddedMigrator(db *sql.DB) *Migrator {
	// fs.Sub cannot fail for the directory the embed directive created.
	sub, _ := fs.Sub(embeddedMigrations, "migrations")
	return &Migrator{db: db, fsys: sub}
}

// Initialize creates the schema_migrations bookkeeping table if missing.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the highest applied version, 0 when none.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Applied returns the recorded migrations, oldest first.
func (m *Migrator) Applied() ([]Migration, error) {
	rows, err := m.db.Query(
		"SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies every pending migration in version order.
func (m *Migrator) Up() error {
	applied, err := m.Applied()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read migration state", err)
	}
	done := make(map[int]bool, len(applied))
	for _, mig := range applied {
		done[mig.Version] = true
	}

	files, err := m.pendingFiles()
	if err != nil {
		return err
	}
	for _, file := range files {
		if done[file.version] {
			continue
		}
		if err := m.apply(file); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("migration V%d (%s) failed", file.version, file.description), err)
		}
	}
	return nil
}

// pendingFiles lists the up migrations on the file system in version order.
func (m *Migrator) pendingFiles() ([]migrationFile, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to read migrations directory", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if file, ok := parseMigrationName(entry.Name()); ok {
			files = append(files, file)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].version < files[j].version
	})
	return files, nil
}

// parseMigrationName splits V<version>__<description>.up.sql. Files that do
// not follow the scheme are skipped, so the directory can hold down files
// and notes alongside.
func parseMigrationName(name string) (migrationFile, bool) {
	base, ok := strings.CutSuffix(name, ".up.sql")
	if !ok {
		return migrationFile{}, false
	}
	prefix, description, ok := strings.Cut(base, "__")
	if !ok || description == "" {
		return migrationFile{}, false
	}
	version, err := strconv.Atoi(strings.TrimPrefix(prefix, "V"))
	if err != nil {
		return migrationFile{}, false
	}
	return migrationFile{version: version, description: description, name: name}, true
}

// apply runs one migration inside a transaction and records it together
// with a SHA-256 checksum of its content.
func (m *Migrator) apply(file migrationFile) error {
	content, err := fs.ReadFile(m.fsys, file.name)
	if err != nil {
		return fmt.Errorf("read %s: %w", file.name, err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return err
	}

	sum := sha256.Sum256(content)
	_, err = tx.Exec(
		`INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)`,
		file.version, time.Now().Unix(), file.description, hex.EncodeToString(sum[:]))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Down rolls back the most recent migration using its .down.sql twin.
func (m *Migrator) Down() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if current == 0 {
		return apperrors.New(apperrors.ErrMigration, "no migrations to rollback")
	}

	matches, err := fs.Glob(m.fsys, fmt.Sprintf("V%d__*.down.sql", current))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to search for rollback file", err)
	}
	if len(matches) == 0 {
		return apperrors.Newf(apperrors.ErrMigration, "no rollback file for version %d", current)
	}
	content, err := fs.ReadFile(m.fsys, matches[0])
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read rollback file", err)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration,
			fmt.Sprintf("rollback of V%d failed", current), err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", current); err != nil {
		return err
	}
	return tx.Commit()
}
