package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"expanderd/internal/expansion"
)

// SQLiteStore keeps groups, expansions and settings in SQLite and records
// expansion usage.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is empty", ErrInvalid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := ValidateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// SchemaVersion returns the applied migration version.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	return SchemaVersion(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// constraintError translates UNIQUE violations into store errors.
func constraintError(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.ExtendedCode != sqlite3.ErrConstraintUnique {
		return err
	}
	msg := se.Error()
	switch {
	case strings.Contains(msg, "expansions.prefix"):
		return fmt.Errorf("%w: %v", ErrDuplicatePrefix, err)
	case strings.Contains(msg, "expansion_groups.name"):
		return fmt.Errorf("%w: %v", ErrDuplicateGroup, err)
	}
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) Groups(ctx context.Context) ([]expansion.Group, error) {
	return loadGroups(ctx, s.db)
}

func loadGroups(ctx context.Context, q queryer) ([]expansion.Group, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name FROM expansion_groups ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := []expansion.Group{}
	index := make(map[string]int)
	for rows.Next() {
		g := expansion.Group{Expansions: []expansion.Expansion{}}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	erows, err := q.QueryContext(ctx, `
		SELECT id, group_id, prefix, body, description, trigger_immediate, trigger_delay_ms
		FROM expansions ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query expansions: %w", err)
	}
	defer erows.Close()

	for erows.Next() {
		var e expansion.Expansion
		var groupID string
		if err := erows.Scan(&e.ID, &groupID, &e.Prefix, &e.Body, &e.Description, &e.TriggerImmediate, &e.TriggerDelayMs); err != nil {
			return nil, fmt.Errorf("scan expansion: %w", err)
		}
		if i, ok := index[groupID]; ok {
			groups[i].Expansions = append(groups[i].Expansions, e)
		}
	}
	return groups, erows.Err()
}

// LoadExpansions implements engine.ConfigSource.
func (s *SQLiteStore) LoadExpansions(ctx context.Context) ([]expansion.Expansion, error) {
	groups, err := s.Groups(ctx)
	if err != nil {
		return nil, err
	}
	return (&Document{Groups: groups}).Expansions(), nil
}

// LoadWhitelist implements engine.ConfigSource.
func (s *SQLiteStore) LoadWhitelist(ctx context.Context) (expansion.WhitelistConfig, error) {
	settings, err := s.Settings(ctx)
	if err != nil {
		return expansion.WhitelistConfig{}, err
	}
	return settings.Whitelist(), nil
}

func (s *SQLiteStore) AddGroup(ctx context.Context, name string) (string, error) {
	name, err := validateGroupName(name)
	if err != nil {
		return "", err
	}
	id := newID()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM expansion_groups WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("check group name: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %q", ErrDuplicateGroup, name)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO expansion_groups (id, name, position)
			VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM expansion_groups))`,
			id, name)
		if err != nil {
			return fmt.Errorf("insert group: %w", constraintError(err))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) RenameGroup(ctx context.Context, id, name string) error {
	name, err := validateGroupName(name)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM expansion_groups WHERE name = ? AND id <> ?`, name, id).Scan(&n); err != nil {
			return fmt.Errorf("check group name: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %q", ErrDuplicateGroup, name)
		}
		res, err := tx.ExecContext(ctx, `UPDATE expansion_groups SET name = ? WHERE id = ?`, name, id)
		if err != nil {
			return fmt.Errorf("rename group: %w", constraintError(err))
		}
		return requireAffected(res, "group", id)
	})
}

func (s *SQLiteStore) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expansion_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return requireAffected(res, "group", id)
}

func (s *SQLiteStore) AddExpansion(ctx context.Context, groupID string, in ExpansionInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	id := newID()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM expansion_groups WHERE id = ?`, groupID).Scan(&n); err != nil {
			return fmt.Errorf("check group: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
		}
		if err := checkPrefix(ctx, tx, in.Prefix, ""); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO expansions (id, group_id, position, prefix, body, description, trigger_immediate, trigger_delay_ms)
			VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM expansions WHERE group_id = ?), ?, ?, ?, ?, ?)`,
			id, groupID, groupID, in.Prefix, in.Body, in.Description, in.TriggerImmediate, in.TriggerDelayMs)
		if err != nil {
			return fmt.Errorf("insert expansion: %w", constraintError(err))
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) UpdateExpansion(ctx context.Context, id string, in ExpansionInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM expansions WHERE id = ?`, id).Scan(&n); err != nil {
			return fmt.Errorf("check expansion: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("expansion %s: %w", id, ErrNotFound)
		}
		if err := checkPrefix(ctx, tx, in.Prefix, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE expansions
			SET prefix = ?, body = ?, description = ?, trigger_immediate = ?, trigger_delay_ms = ?
			WHERE id = ?`,
			in.Prefix, in.Body, in.Description, in.TriggerImmediate, in.TriggerDelayMs, id)
		if err != nil {
			return fmt.Errorf("update expansion: %w", constraintError(err))
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteExpansion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expansions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expansion: %w", err)
	}
	return requireAffected(res, "expansion", id)
}

func (s *SQLiteStore) IsPrefixUnique(ctx context.Context, prefix, excludeID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expansions WHERE prefix = ? AND id <> ?`, prefix, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check prefix: %w", err)
	}
	return n == 0, nil
}

func checkPrefix(ctx context.Context, tx *sql.Tx, prefix, excludeID string) error {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expansions WHERE prefix = ? AND id <> ?`, prefix, excludeID).Scan(&n)
	if err != nil {
		return fmt.Errorf("check prefix: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %q", ErrDuplicatePrefix, prefix)
	}
	return nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Settings(ctx context.Context) (expansion.Settings, error) {
	return loadSettings(ctx, s.db)
}

func loadSettings(ctx context.Context, q queryer) (expansion.Settings, error) {
	settings := expansion.Settings{WhitelistApps: []expansion.AppWhitelistEntry{}}

	var enabled string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = 'whitelist_enabled'`).Scan(&enabled)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return settings, fmt.Errorf("query settings: %w", err)
	default:
		settings.WhitelistEnabled, _ = strconv.ParseBool(enabled)
	}

	rows, err := q.QueryContext(ctx, `SELECT process_name, window_title FROM whitelist_apps ORDER BY id`)
	if err != nil {
		return settings, fmt.Errorf("query whitelist: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e expansion.AppWhitelistEntry
		if err := rows.Scan(&e.ProcessName, &e.WindowTitle); err != nil {
			return settings, fmt.Errorf("scan whitelist entry: %w", err)
		}
		settings.WhitelistApps = append(settings.WhitelistApps, e)
	}
	return settings, rows.Err()
}

func (s *SQLiteStore) UpdateSettings(ctx context.Context, settings expansion.Settings) error {
	settings, err := validateSettings(settings)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return writeSettings(ctx, tx, settings)
	})
}

func writeSettings(ctx context.Context, tx *sql.Tx, settings expansion.Settings) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ('whitelist_enabled', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.FormatBool(settings.WhitelistEnabled))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM whitelist_apps`); err != nil {
		return fmt.Errorf("clear whitelist: %w", err)
	}
	for _, e := range settings.WhitelistApps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO whitelist_apps (process_name, window_title) VALUES (?, ?)`,
			e.ProcessName, e.WindowTitle); err != nil {
			return fmt.Errorf("insert whitelist entry: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) document(ctx context.Context, q queryer) (*Document, error) {
	doc := NewDocument()
	settings, err := loadSettings(ctx, q)
	if err != nil {
		return nil, err
	}
	groups, err := loadGroups(ctx, q)
	if err != nil {
		return nil, err
	}
	doc.Settings = settings
	doc.Groups = groups
	return doc, nil
}

func (s *SQLiteStore) Export(ctx context.Context, w io.Writer) error {
	doc, err := s.document(ctx, s.db)
	if err != nil {
		return err
	}
	return doc.Encode(w)
}

func (s *SQLiteStore) Import(ctx context.Context, r io.Reader, merge bool) error {
	src, err := DecodeDocument(r)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := s.document(ctx, tx)
		if err != nil {
			return err
		}
		out, err := current.importInto(src, merge)
		if err != nil {
			return err
		}
		return replaceAll(ctx, tx, out)
	})
}

// replaceAll overwrites every table with the contents of doc.
func replaceAll(ctx context.Context, tx *sql.Tx, doc *Document) error {
	for _, table := range []string{"expansions", "expansion_groups"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := writeSettings(ctx, tx, doc.Settings); err != nil {
		return err
	}

	for gi, g := range doc.Groups {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expansion_groups (id, name, position) VALUES (?, ?, ?)`,
			g.ID, g.Name, gi); err != nil {
			return fmt.Errorf("insert group %q: %w", g.Name, constraintError(err))
		}
		for ei, e := range g.Expansions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO expansions (id, group_id, position, prefix, body, description, trigger_immediate, trigger_delay_ms)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				e.ID, g.ID, ei, e.Prefix, e.Body, e.Description, e.TriggerImmediate, e.TriggerDelayMs); err != nil {
				return fmt.Errorf("insert expansion %q: %w", e.Prefix, constraintError(err))
			}
		}
	}
	return nil
}

// RecordUsage logs one completed substitution.
func (s *SQLiteStore) RecordUsage(ctx context.Context, expansionID, prefix string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage (expansion_id, prefix, used_at) VALUES (?, ?, ?)`,
		expansionID, prefix, at.UnixNano())
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// UsageStats returns per-expansion counts, most used first. A non-positive
// limit returns every row.
func (s *SQLiteStore) UsageStats(ctx context.Context, limit int) ([]UsageStat, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT expansion_id, prefix, COUNT(*), MAX(used_at)
		FROM usage
		GROUP BY expansion_id
		ORDER BY COUNT(*) DESC, MAX(used_at) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var stats []UsageStat
	for rows.Next() {
		var st UsageStat
		var last int64
		if err := rows.Scan(&st.ExpansionID, &st.Prefix, &st.Count, &last); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		st.LastUsed = time.Unix(0, last)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
