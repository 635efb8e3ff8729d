// Package store mirrors the published tract records into a SQLite table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jalad-shrimali/ffiec-income/record"
)

const Table = "ffiec_income"

var identRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store writes one row per tract, keyed by geoid, inside a single
// transaction per run.
type Store struct {
	db      *sql.DB
	tx      *sql.Tx
	insert  *sql.Stmt
	key     string
	columns []string
	bools   map[string]bool
	count   int
}

// Open creates (or reuses) the database at path with the given columns. key
// is the primary key column and must be among columns; bools lists columns
// stored as 0/1.
func Open(ctx context.Context, path, key string, columns, bools []string) (*Store, error) {
	found := false
	for _, c := range columns {
		if !identRE.MatchString(c) {
			return nil, fmt.Errorf("store: invalid column name %q", c)
		}
		if c == key {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("store: key %q not among columns", key)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("cannot open sqlite db at %s: %w", path, err)
	}
	s := &Store{db: db, key: key, columns: columns, bools: map[string]bool{}}
	for _, b := range bools {
		s.bools[b] = true
	}

	if _, err := db.ExecContext(ctx, s.createSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return s, nil
}

func (s *Store) columnType(c string) string {
	switch {
	case c == s.key:
		return "TEXT PRIMARY KEY"
	case s.bools[c]:
		return "INTEGER"
	case record.Opaque(c):
		return "TEXT"
	default:
		return "NUMERIC"
	}
}

func (s *Store) createSQL() string {
	defs := make([]string, len(s.columns))
	for i, c := range s.columns {
		defs[i] = fmt.Sprintf("%q %s", c, s.columnType(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Table, strings.Join(defs, ", "))
}

// Begin starts the run's transaction.
func (s *Store) Begin(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	quoted := make([]string, len(s.columns))
	marks := make([]string, len(s.columns))
	for i, c := range s.columns {
		quoted[i] = fmt.Sprintf("%q", c)
		marks[i] = "?"
	}
	q := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		Table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	s.tx, s.insert = tx, stmt
	return nil
}

func (s *Store) Write(ctx context.Context, r record.Record) error {
	if s.insert == nil {
		return errors.New("store: Write before Begin")
	}
	args := make([]any, len(s.columns))
	for i, c := range s.columns {
		v := r[c]
		if b, ok := v.(bool); ok {
			if b {
				v = 1
			} else {
				v = 0
			}
		}
		args[i] = v
	}
	if _, err := s.insert.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("insert tract %s: %w", r.String(s.key), err)
	}
	s.count++
	return nil
}

func (s *Store) Count() int { return s.count }

// Commit ends the transaction started by Begin.
func (s *Store) Commit() error {
	if s.tx == nil {
		return errors.New("store: Commit before Begin")
	}
	s.insert.Close()
	err := s.tx.Commit()
	s.tx, s.insert = nil, nil
	return err
}

// Rollback discards the run's rows. No-op without an open transaction.
func (s *Store) Rollback() {
	if s.tx == nil {
		return
	}
	s.insert.Close()
	s.tx.Rollback()
	s.tx, s.insert = nil, nil
}

func (s *Store) Close() error {
	s.Rollback()
	return s.db.Close()
}

// LookupTract reads one tract back by key.
func (s *Store) LookupTract(ctx context.Context, geoid string) (record.Record, bool, error) {
	quoted := make([]string, len(s.columns))
	for i, c := range s.columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %q = ? LIMIT 1`, strings.Join(quoted, ", "), Table, s.key)

	vals := make([]any, len(s.columns))
	ptrs := make([]any, len(s.columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	err := s.db.QueryRowContext(ctx, q, geoid).Scan(ptrs...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	out := make(record.Record, len(s.columns))
	for i, c := range s.columns {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if s.bools[c] {
			if n, ok := v.(int64); ok {
				v = n != 0
			}
		}
		out[c] = v
	}
	return out, true, nil
}
