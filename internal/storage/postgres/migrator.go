package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Схема витрины версионируется парами NNNN_name.up.sql / NNNN_name.down.sql.
// Для каждой применённой миграции хранится sha256 up-файла: правка уже применённого
// файла останавливает MigrateUp с ErrMigrationDrift.

const (
	migrationsDir    = "sql/migrations"
	migrationsTable  = "storefront_migrations"
	migrationLockKey = int64(0x636f66666565) // "coffee"
	migrationTimeout = 5 * time.Second

	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS storefront_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

	// ErrMigrationDrift — содержимое применённой миграции не совпадает со встроенным файлом.
	ErrMigrationDrift = errors.New("applied migration differs from embedded file")
	errStoreNotReady  = errors.New("postgres store is not initialized")
)

// MigrationState — строка вывода `storefrontctl migrate status`.
type MigrationState struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

type migrationFile struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migrationFile) label() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

func (m migrationFile) checksum() string {
	sum := sha256.Sum256([]byte(m.up))
	return hex.EncodeToString(sum[:])
}

type appliedMigration struct {
	name      string
	checksum  string
	appliedAt time.Time
}

// MigrateUp применяет ожидающие миграции по возрастанию версии и возвращает их число.
// steps=0 означает все.
func (s *Store) MigrateUp(ctx context.Context, steps int) (int, error) {
	return s.migrateUp(ctx, migrationsFS, steps)
}

// MigrateDown откатывает последние steps миграций; steps<=0 означает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	return s.migrateDown(ctx, migrationsFS, steps)
}

// Migrations перечисляет встроенные миграции вместе с отметкой о применении.
func (s *Store) Migrations(ctx context.Context) ([]MigrationState, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotReady
	}
	files, err := parseMigrations(migrationsFS)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(queryCtx, migrationTableDDL); err != nil {
		return nil, fmt.Errorf("ensure %s: %w", migrationsTable, err)
	}
	applied, err := loadApplied(queryCtx, s.db)
	if err != nil {
		return nil, err
	}

	states := make([]MigrationState, 0, len(files))
	for _, file := range files {
		state := MigrationState{Version: file.version, Name: file.name}
		if rec, ok := applied[file.version]; ok {
			state.Applied = true
			state.AppliedAt = rec.appliedAt
		}
		states = append(states, state)
	}
	return states, nil
}

func (s *Store) migrateUp(ctx context.Context, fsys fs.FS, steps int) (int, error) {
	files, err := parseMigrations(fsys)
	if err != nil {
		return 0, err
	}

	done := 0
	err = s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		applied, err := loadApplied(ctx, conn)
		if err != nil {
			return err
		}
		for _, file := range files {
			rec, ok := applied[file.version]
			if !ok {
				continue
			}
			if rec.checksum != file.checksum() {
				return fmt.Errorf("%w: %s", ErrMigrationDrift, file.label())
			}
		}

		for _, file := range files {
			if _, ok := applied[file.version]; ok {
				continue
			}
			if steps > 0 && done >= steps {
				break
			}
			record := psql.Insert(migrationsTable).
				Columns("version", "name", "checksum").
				Values(file.version, file.name, file.checksum())
			if err := runMigration(ctx, conn, "up "+file.label(), file.up, record); err != nil {
				return err
			}
			done++
		}
		return nil
	})
	return done, err
}

func (s *Store) migrateDown(ctx context.Context, fsys fs.FS, steps int) (int, error) {
	files, err := parseMigrations(fsys)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]migrationFile, len(files))
	for _, file := range files {
		byVersion[file.version] = file
	}

	done := 0
	err = s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		applied, err := loadApplied(ctx, conn)
		if err != nil {
			return err
		}
		versions := make([]int64, 0, len(applied))
		for version := range applied {
			versions = append(versions, version)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
		if len(versions) > steps {
			versions = versions[:steps]
		}

		for _, version := range versions {
			file, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("cannot roll back version %d: no embedded migration", version)
			}
			record := psql.Delete(migrationsTable).Where(sq.Eq{"version": version})
			if err := runMigration(ctx, conn, "down "+file.label(), file.down, record); err != nil {
				return err
			}
			done++
		}
		return nil
	})
	return done, err
}

// withMigrationLock держит advisory lock на отдельном соединении, чтобы реплики сервиса
// не мигрировали одновременно.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if s == nil || s.db == nil {
		return errStoreNotReady
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure %s: %w", migrationsTable, err)
	}
	return fn(conn)
}

// runMigration выполняет тело миграции и запись в журнал одной транзакцией.
func runMigration(ctx context.Context, conn *sql.Conn, label, body string, record sq.Sqlizer) error {
	query, args, err := record.ToSql()
	if err != nil {
		return fmt.Errorf("build journal query for %s: %w", label, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute %s: %w", label, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("journal %s: %w", label, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadApplied(ctx context.Context, q queryer) (map[int64]appliedMigration, error) {
	query, args, err := psql.Select("version", "name", "checksum", "applied_at").
		From(migrationsTable).
		OrderBy("version").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", migrationsTable, err)
	}
	defer rows.Close()

	applied := make(map[int64]appliedMigration)
	for rows.Next() {
		var (
			version int64
			rec     appliedMigration
		)
		if err := rows.Scan(&version, &rec.name, &rec.checksum, &rec.appliedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", migrationsTable, err)
		}
		applied[version] = rec
	}
	return applied, rows.Err()
}

// parseMigrations читает пары up/down из каталога миграций и сортирует по версии.
func parseMigrations(fsys fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migrationFile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFileName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("unexpected file in %s: %s", migrationsDir, entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("bad migration version in %s", entry.Name())
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		file := byVersion[version]
		if file == nil {
			file = &migrationFile{version: version, name: parts[2]}
			byVersion[version] = file
		}
		if file.name != parts[2] {
			return nil, fmt.Errorf("version %d has two names: %s and %s", version, file.name, parts[2])
		}

		target := &file.up
		if parts[3] == "down" {
			target = &file.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migrations embedded")
	}

	files := make([]migrationFile, 0, len(byVersion))
	for _, file := range byVersion {
		if file.up == "" || file.down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", file.label())
		}
		files = append(files, *file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
