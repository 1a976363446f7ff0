package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
)

// SQLConfig names the table and columns a SQLSource reads.
type SQLConfig struct {
	Table      string
	IDColumn   string
	TextColumn string
	// IDType is the SQL column type used by EnsureTable (INTEGER or TEXT).
	IDType string
	// SeqColumn records insertion order; Upsert assigns the next value to
	// new rows. RowIDOrder orders by rowid instead, which for an INTEGER
	// PRIMARY KEY is id order.
	SeqColumn string
}

// RowIDOrder as SeqColumn lists rows in rowid order.
const RowIDOrder = "rowid"

// DefaultSQLConfig returns the layout used by the CLI: entities(id, text).
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Table:      "entities",
		IDColumn:   "id",
		TextColumn: "text",
		IDType:     "TEXT",
		SeqColumn:  "seq",
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that every name is a plain SQL identifier, since names
// are interpolated into statements.
func (c SQLConfig) Validate() error {
	for name, v := range map[string]string{
		"table":       c.Table,
		"id column":   c.IDColumn,
		"text column": c.TextColumn,
		"seq column":  c.SeqColumn,
	} {
		if !identifierPattern.MatchString(v) {
			return nrterrors.InvalidInput(fmt.Sprintf("invalid %s name %q", name, v), nil)
		}
	}
	switch strings.ToUpper(c.IDType) {
	case "", "INTEGER", "TEXT":
	default:
		return nrterrors.InvalidInput(fmt.Sprintf("invalid id type %q", c.IDType), nil)
	}
	return nil
}

// OpenSQLite opens a SQLite database at path with the pragmas used for
// concurrent readers and a single writer. An empty path opens a private
// in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: a private :memory: database only exists on the
	// connection that created it, and SQLite allows one writer anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

// SQLSource reads Records from one table.
type SQLSource[ID comparable] struct {
	db  *sql.DB
	cfg SQLConfig
}

// NewSQLSource returns a source over db. The table is not created; see
// EnsureTable.
func NewSQLSource[ID comparable](db *sql.DB, cfg SQLConfig) (*SQLSource[ID], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SQLSource[ID]{db: db, cfg: cfg}, nil
}

func sourceError(op string, err error) error {
	return nrterrors.New(nrterrors.ErrCodeSourceFailed, "entity source "+op+" failed", err)
}

// EnsureTable creates the table if it does not exist.
func (s *SQLSource[ID]) EnsureTable(ctx context.Context) error {
	idType := strings.ToUpper(s.cfg.IDType)
	if idType == "" {
		idType = "TEXT"
	}
	columns := fmt.Sprintf("%s %s PRIMARY KEY, %s TEXT NOT NULL",
		s.cfg.IDColumn, idType, s.cfg.TextColumn)
	if s.sequenced() {
		columns += fmt.Sprintf(", %s INTEGER NOT NULL DEFAULT 0", s.cfg.SeqColumn)
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.cfg.Table, columns)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return sourceError("create table", err)
	}
	return nil
}

func (s *SQLSource[ID]) sequenced() bool {
	return !strings.EqualFold(s.cfg.SeqColumn, RowIDOrder)
}

// Upsert inserts a record or replaces its text. A replaced record keeps its
// place in insertion order.
func (s *SQLSource[ID]) Upsert(ctx context.Context, id ID, text string) error {
	var stmt string
	if s.sequenced() {
		stmt = fmt.Sprintf(
			"INSERT INTO %s (%s, %s, %s) VALUES (?, ?, (SELECT COALESCE(MAX(%s), 0) + 1 FROM %s)) "+
				"ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s",
			s.cfg.Table, s.cfg.IDColumn, s.cfg.TextColumn, s.cfg.SeqColumn,
			s.cfg.SeqColumn, s.cfg.Table,
			s.cfg.IDColumn, s.cfg.TextColumn, s.cfg.TextColumn)
	} else {
		stmt = fmt.Sprintf(
			"INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT(%s) DO UPDATE SET %s = excluded.%s",
			s.cfg.Table, s.cfg.IDColumn, s.cfg.TextColumn,
			s.cfg.IDColumn, s.cfg.TextColumn, s.cfg.TextColumn)
	}
	if _, err := s.db.ExecContext(ctx, stmt, id, text); err != nil {
		return sourceError("upsert", err)
	}
	return nil
}

// Remove deletes the record with id. Removing a missing id is not an error.
func (s *SQLSource[ID]) Remove(ctx context.Context, id ID) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", s.cfg.Table, s.cfg.IDColumn)
	if _, err := s.db.ExecContext(ctx, stmt, id); err != nil {
		return sourceError("delete", err)
	}
	return nil
}

func (s *SQLSource[ID]) selectClause() string {
	return fmt.Sprintf("SELECT %s, %s FROM %s", s.cfg.IDColumn, s.cfg.TextColumn, s.cfg.Table)
}

func (s *SQLSource[ID]) query(ctx context.Context, op, stmt string, args ...any) ([]Record[ID], error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, sourceError(op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record[ID]
	for rows.Next() {
		var r Record[ID]
		if err := rows.Scan(&r.ID, &r.Text); err != nil {
			return nil, sourceError(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, sourceError(op, err)
	}
	return out, nil
}

// ListAll implements Source in insertion order, so a rebuild stamps
// documents in the order their entities were created.
func (s *SQLSource[ID]) ListAll(ctx context.Context) ([]Record[ID], error) {
	order := " ORDER BY rowid"
	if s.sequenced() {
		order = fmt.Sprintf(" ORDER BY %s, rowid", s.cfg.SeqColumn)
	}
	out, err := s.query(ctx, "list", s.selectClause()+order)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Record[ID]{}
	}
	return out, nil
}

// ByIDs implements Source. Results follow the order of ids.
func (s *SQLSource[ID]) ByIDs(ctx context.Context, ids []ID) ([]Record[ID], error) {
	if len(ids) == 0 {
		return []Record[ID]{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	stmt := fmt.Sprintf("%s WHERE %s IN (%s)", s.selectClause(), s.cfg.IDColumn, placeholders)
	found, err := s.query(ctx, "fetch", stmt, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[ID]Record[ID], len(found))
	for _, r := range found {
		byID[r.ID] = r
	}
	out := make([]Record[ID], 0, len(found))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// ByID implements Source.
func (s *SQLSource[ID]) ByID(ctx context.Context, id ID) (Record[ID], bool, error) {
	stmt := fmt.Sprintf("%s WHERE %s = ?", s.selectClause(), s.cfg.IDColumn)
	var r Record[ID]
	err := s.db.QueryRowContext(ctx, stmt, id).Scan(&r.ID, &r.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return Record[ID]{}, false, nil
	}
	if err != nil {
		return Record[ID]{}, false, sourceError("fetch", err)
	}
	return r, true, nil
}
