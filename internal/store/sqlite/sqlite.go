// Package sqlite implements the record store on SQLite.
//
// Each statement is one row keyed by (record, property, value key), so the
// database itself refuses a second statement with an equal value. The
// statement body, including qualifiers and references, is stored as JSON.
// Every mutation runs in its own transaction and bumps the record revision.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/agentstation/factmap/pkg/constants"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/records"
	"github.com/agentstation/factmap/pkg/store"
)

var (
	_ store.Store  = (*Store)(nil)
	_ store.Writer = (*Store)(nil)
	_ store.Lister = (*Store)(nil)
)

// Store is a SQLite-backed record store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. The path can be ":memory:".
// Creates tables and indexes if they don't exist.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, constants.StoreBusyTimeout.Milliseconds())
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		revision INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS statements (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		record_id TEXT NOT NULL,
		property TEXT NOT NULL,
		value_key TEXT NOT NULL,
		rank TEXT NOT NULL,
		body TEXT NOT NULL,
		FOREIGN KEY (record_id) REFERENCES records(id),
		UNIQUE (record_id, property, value_key)
	);

	CREATE INDEX IF NOT EXISTS idx_statements_record ON statements(record_id);
	CREATE INDEX IF NOT EXISTS idx_statements_lookup ON statements(property, value_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put creates or replaces a whole record.
func (s *Store) Put(ctx context.Context, rec *records.Record) error {
	return s.tx(ctx, "put record", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, revision) VALUES (?, 1)
			ON CONFLICT(id) DO UPDATE SET revision = revision + 1`, rec.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM statements WHERE record_id = ?`, rec.ID); err != nil {
			return err
		}
		for _, p := range rec.Properties() {
			for _, stmt := range rec.Statements[p] {
				if err := insertStatement(ctx, tx, rec.ID, stmt); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// List returns every record id, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM records ORDER BY id`)
	if err != nil {
		return nil, classify("list records", err)
	}
	defer func() { _ = rows.Close() }()
	return scanIDs(rows)
}

// Load returns a snapshot of the record.
func (s *Store) Load(ctx context.Context, recordID string) (*records.Record, error) {
	rec := records.NewRecord(recordID)
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM records WHERE id = ?`, recordID).Scan(&rec.Revision)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("record", recordID)
	}
	if err != nil {
		return nil, classify("load record", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT body FROM statements WHERE record_id = ? ORDER BY seq`, recordID)
	if err != nil {
		return nil, classify("load statements", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, classify("load statements", err)
		}
		var stmt records.Statement
		if err := json.Unmarshal([]byte(body), &stmt); err != nil {
			return nil, errors.WrapParse("json", "statement", err)
		}
		rec.Append(&stmt)
	}
	return rec, classify("load statements", rows.Err())
}

// AddStatement commits a new statement.
func (s *Store) AddStatement(ctx context.Context, recordID string, stmt *records.Statement) error {
	if stmt.ID == "" {
		return errors.NewStructuralError(recordID, string(stmt.Property), stmt.Value.Key(), "statement id is empty")
	}
	return s.tx(ctx, "add statement", func(tx *sql.Tx) error {
		if err := bump(ctx, tx, recordID); err != nil {
			return err
		}
		var n int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM statements
			WHERE id = ? OR (record_id = ? AND property = ? AND value_key = ?)`,
			stmt.ID, recordID, string(stmt.Property), stmt.Value.Key()).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return errors.NewStructuralError(recordID, string(stmt.Property), stmt.Value.Key(), "statement already exists")
		}
		return insertStatement(ctx, tx, recordID, stmt)
	})
}

// AddQualifier appends a qualifier value to a statement.
func (s *Store) AddQualifier(ctx context.Context, recordID, statementID string, property records.PropertyID, value records.Value) error {
	return s.mutate(ctx, "add qualifier", recordID, statementID, func(stmt *records.Statement) error {
		if stmt.Qualifiers == nil {
			stmt.Qualifiers = make(map[records.PropertyID][]records.Value)
		}
		stmt.Qualifiers[property] = append(stmt.Qualifiers[property], value)
		return nil
	})
}

// AddReference appends a reference to a statement.
func (s *Store) AddReference(ctx context.Context, recordID, statementID string, ref records.Reference) error {
	return s.mutate(ctx, "add reference", recordID, statementID, func(stmt *records.Statement) error {
		stmt.References = append(stmt.References, ref.Clone())
		return nil
	})
}

// UpdateReference replaces the reference at index.
func (s *Store) UpdateReference(ctx context.Context, recordID, statementID string, index int, ref records.Reference) error {
	return s.mutate(ctx, "update reference", recordID, statementID, func(stmt *records.Statement) error {
		if index < 0 || index >= len(stmt.References) {
			return errors.NewValidationError("index", index, "reference index out of range")
		}
		stmt.References[index] = ref.Clone()
		return nil
	})
}

// SetRank changes a statement's rank.
func (s *Store) SetRank(ctx context.Context, recordID, statementID string, rank records.Rank) error {
	if !rank.Valid() {
		return errors.NewValidationError("rank", rank, "unknown rank")
	}
	return s.mutate(ctx, "set rank", recordID, statementID, func(stmt *records.Statement) error {
		stmt.Rank = rank
		return nil
	})
}

// FindByProperty returns the ids of records holding a non-deprecated
// statement property=value, sorted.
func (s *Store) FindByProperty(ctx context.Context, property records.PropertyID, value records.Value) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT record_id FROM statements
		WHERE property = ? AND value_key = ? AND rank != ?
		ORDER BY record_id`,
		string(property), value.Key(), string(records.RankDeprecated))
	if err != nil {
		return nil, classify("find records", err)
	}
	defer func() { _ = rows.Close() }()
	return scanIDs(rows)
}

// mutate loads one statement, applies fn and writes it back.
func (s *Store) mutate(ctx context.Context, op, recordID, statementID string, fn func(*records.Statement) error) error {
	return s.tx(ctx, op, func(tx *sql.Tx) error {
		if err := bump(ctx, tx, recordID); err != nil {
			return err
		}
		var body string
		err := tx.QueryRowContext(ctx, `SELECT body FROM statements WHERE id = ? AND record_id = ?`, statementID, recordID).Scan(&body)
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("statement", statementID)
		}
		if err != nil {
			return err
		}
		var stmt records.Statement
		if err := json.Unmarshal([]byte(body), &stmt); err != nil {
			return errors.WrapParse("json", "statement", err)
		}
		if err := fn(&stmt); err != nil {
			return err
		}
		data, err := json.Marshal(&stmt)
		if err != nil {
			return errors.WrapParse("json", "statement", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE statements SET body = ?, rank = ? WHERE id = ?`, string(data), string(stmt.Rank), statementID)
		return err
	})
}

// tx runs fn in a transaction. Typed errors from fn pass through; driver
// errors are classified.
func (s *Store) tx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if isTyped(err) {
			return err
		}
		return classify(op, err)
	}
	return classify(op, tx.Commit())
}

func bump(ctx context.Context, tx *sql.Tx, recordID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE records SET revision = revision + 1 WHERE id = ?`, recordID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("record", recordID)
	}
	return nil
}

func insertStatement(ctx context.Context, tx *sql.Tx, recordID string, stmt *records.Statement) error {
	data, err := json.Marshal(stmt)
	if err != nil {
		return errors.WrapParse("json", "statement", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO statements (id, record_id, property, value_key, rank, body)
		VALUES (?, ?, ?, ?, ?, ?)`,
		stmt.ID, recordID, string(stmt.Property), stmt.Value.Key(), string(stmt.Rank), string(data))
	return err
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isTyped(err error) bool {
	return errors.IsNotFound(err) || errors.IsStructural(err) || errors.IsValidationError(err) ||
		errors.As(err, new(*errors.ParseError))
}

// classify marks lock contention as transient and wraps everything else as
// a resource error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return errors.WrapTransient(op, err)
	}
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return errors.NewStructuralError("", "", "", msg)
	}
	return errors.WrapResource(op, "record", "", err)
}
