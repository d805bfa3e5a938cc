// Package sqlitestore backs the presence table with SQLite. One boolean
// column per attribute; schema drift between deploys shows up as
// unknown-column errors which the presence client degrades around.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/presence"
)

const table = "presence"

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file and returns a store. The
// schema is NOT created here; call Migrate for that, so tests can model
// a wholesale-missing table.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite handles are not safe for concurrent writers.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// New wraps an existing handle, owned by the caller.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the presence table with the full attribute set.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+table+` (
	subject_id        TEXT    NOT NULL,
	scope_id          TEXT    NOT NULL,
	is_live_available INTEGER NOT NULL DEFAULT 0,
	is_unmuted        INTEGER NOT NULL DEFAULT 0,
	is_tab_visible    INTEGER NOT NULL DEFAULT 0,
	is_subscribed     INTEGER NOT NULL DEFAULT 0,
	last_seen_at      INTEGER NOT NULL,
	PRIMARY KEY (subject_id, scope_id)
)`)
	if err != nil {
		return fmt.Errorf("migrate presence: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, rec domain.PresenceRecord) error {
	cols := []string{"subject_id", "scope_id", "last_seen_at"}
	args := []any{string(rec.SubjectID), string(rec.ScopeID), rec.LastSeenAt.UnixMilli()}
	for _, name := range sortedFlagNames(rec.Flags) {
		cols = append(cols, name)
		args = append(args, boolToInt(rec.Flags[name]))
	}

	sets := make([]string, 0, len(cols)-2)
	for _, c := range cols[2:] {
		sets = append(sets, c+"=excluded."+c)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(subject_id, scope_id) DO UPDATE SET %s",
		table,
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
		strings.Join(sets, ", "),
	)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, subject domain.SubjectID, scope domain.ScopeID) error {
	var err error
	if scope == "" {
		_, err = s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE subject_id = ?", string(subject))
	} else {
		_, err = s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE subject_id = ? AND scope_id = ?", string(subject), string(scope))
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

// Scan reads every row in a scope. Columns other than the key and
// last_seen_at are treated as boolean attributes, whatever the deployed
// schema happens to carry.
func (s *Store) Scan(ctx context.Context, scope domain.ScopeID) ([]domain.PresenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+table+" WHERE scope_id = ?", string(scope))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []domain.PresenceRecord
	for rows.Next() {
		vals := make([]any, len(cols))
		for i := range vals {
			vals[i] = new(any)
		}
		if err := rows.Scan(vals...); err != nil {
			return nil, err
		}
		rec := domain.PresenceRecord{Flags: make(domain.Flags)}
		for i, col := range cols {
			v := *(vals[i].(*any))
			switch col {
			case "subject_id":
				rec.SubjectID = domain.SubjectID(asString(v))
			case "scope_id":
				rec.ScopeID = domain.ScopeID(asString(v))
			case "last_seen_at":
				rec.LastSeenAt = time.UnixMilli(asInt(v)).UTC()
			default:
				rec.Flags[col] = asInt(v) != 0
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var noColumnRe = regexp.MustCompile(`(?:has no column named|no such column:?)\s+([A-Za-z0-9_.]+)`)

// classify maps sqlite error text onto the presence error classes.
func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "no such table") {
		return fmt.Errorf("%w: %v", presence.ErrStoreMissing, err)
	}
	if m := noColumnRe.FindStringSubmatch(msg); m != nil {
		name := m[1]
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			name = name[i+1:]
		}
		return &presence.UnknownAttributeError{Name: name}
	}
	return err
}

func sortedFlagNames(flags domain.Flags) []string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
