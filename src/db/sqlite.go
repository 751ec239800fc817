package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/zvdy/dbpulse/src/models"
)

// SQLiteStore is the embedded application store.
// WAL mode, single writer connection.
type SQLiteStore struct {
	db      *sql.DB
	name    string
	schemas schemaSet
	log     *logrus.Logger
	now     func() time.Time
}

// OpenSQLite creates or opens dir/store.db and migrates the given schemas
func OpenSQLite(dir string, schemas []TableSchema, log *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "store.db")
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite is single-writer
	conn.SetMaxIdleConns(1)

	s := &SQLiteStore{
		db:      conn,
		name:    strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath)),
		schemas: newSchemaSet(schemas),
		log:     log,
		now:     time.Now,
	}
	if err := s.migrate(schemas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infof("Opened SQLite store at %s", dbPath)
	return s, nil
}

// migrate runs idempotent schema migrations
func (s *SQLiteStore) migrate(schemas []TableSchema) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS archive_runs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name     TEXT NOT NULL,
			condition      TEXT NOT NULL,
			archived_count INTEGER NOT NULL,
			space_saved_mb REAL NOT NULL,
			retention_days INTEGER NOT NULL,
			applied_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_runs_applied ON archive_runs(applied_at)`,
	}
	for _, schema := range schemas {
		migrations = append(migrations, createTableSQL(schema, "REAL")...)
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Name returns the store name used in metrics
func (s *SQLiteStore) Name() string { return s.name }

// Close cleanly shuts down the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tables lists the application tables
func (s *SQLiteStore) Tables(ctx context.Context) ([]string, error) {
	return s.schemas.names(), nil
}

func (s *SQLiteStore) schema(table string) (TableSchema, error) {
	schema, ok := s.schemas[table]
	if !ok {
		return TableSchema{}, fmt.Errorf("%w: %s", models.ErrTableNotFound, table)
	}
	return schema, nil
}

// Get performs a point lookup by id. A missing row returns (nil, nil).
func (s *SQLiteStore) Get(ctx context.Context, table, id string) (Record, error) {
	if _, err := s.schema(table); err != nil {
		return nil, err
	}

	var payload string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT data FROM %s WHERE id = ?", pq.QuoteIdentifier(table)), id,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(payload)
}

// Sample returns the first limit records of table in insertion order
func (s *SQLiteStore) Sample(ctx context.Context, table string, limit int) ([]Record, error) {
	if _, err := s.schema(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT data FROM %s ORDER BY rowid LIMIT ?", pq.QuoteIdentifier(table)), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			s.log.Warnf("Skipping undecodable row in %s: %v", table, err)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Insert stores a record and returns its id
func (s *SQLiteStore) Insert(ctx context.Context, table string, rec Record) (string, error) {
	schema, err := s.schema(table)
	if err != nil {
		return "", err
	}

	id, values, payload, err := prepareRecord(schema, rec)
	if err != nil {
		return "", err
	}

	cols := []string{"id"}
	marks := []string{"?"}
	for _, c := range schema.Columns {
		cols = append(cols, pq.QuoteIdentifier(c.Name))
		marks = append(marks, "?")
	}
	cols = append(cols, "data")
	marks = append(marks, "?")

	args := append([]interface{}{id}, values...)
	args = append(args, payload)

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", pq.QuoteIdentifier(table), strings.Join(cols, ", "), strings.Join(marks, ", ")),
		args...,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces the record stored under id
func (s *SQLiteStore) Update(ctx context.Context, table, id string, rec Record) error {
	schema, err := s.schema(table)
	if err != nil {
		return err
	}

	rec = withID(rec, id)
	_, values, payload, err := prepareRecord(schema, rec)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(schema.Columns)+1)
	for _, c := range schema.Columns {
		sets = append(sets, pq.QuoteIdentifier(c.Name)+" = ?")
	}
	sets = append(sets, "data = ?")

	args := append(values, payload, id)
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", pq.QuoteIdentifier(table), strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s/%s: %w", table, id, sql.ErrNoRows)
	}
	return nil
}

// Delete removes a record
func (s *SQLiteStore) Delete(ctx context.Context, table, id string) error {
	if _, err := s.schema(table); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", pq.QuoteIdentifier(table)), id)
	return err
}

// Indexes reads the secondary indexes of table from the catalog
func (s *SQLiteStore) Indexes(ctx context.Context, table string) ([][]string, error) {
	if _, err := s.schema(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT il.name, ii.name
		 FROM pragma_index_list(?) AS il
		 JOIN pragma_index_info(il.name) AS ii
		 WHERE il.origin = 'c'
		 ORDER BY il.name, ii.seqno`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		indexes [][]string
		current string
	)
	for rows.Next() {
		var idxName string
		var col sql.NullString
		if err := rows.Scan(&idxName, &col); err != nil {
			return nil, err
		}
		if idxName != current || len(indexes) == 0 {
			indexes = append(indexes, nil)
			current = idxName
		}
		if col.Valid {
			indexes[len(indexes)-1] = append(indexes[len(indexes)-1], col.String)
		}
	}
	return indexes, rows.Err()
}

// ─── Key-value state ────────────────────────────────────────────────────────

// GetState retrieves a value from the kv table
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// PutState stores a key-value pair
func (s *SQLiteStore) PutState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, s.now().Unix(),
	)
	return err
}

// ─── Archive journal ────────────────────────────────────────────────────────

// JournalArchive records an applied archiving rule
func (s *SQLiteStore) JournalArchive(ctx context.Context, e ArchiveEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archive_runs (table_name, condition, archived_count, space_saved_mb, retention_days, applied_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Table, e.Condition, e.ArchivedCount, e.SpaceSavedMB, e.RetentionDays, e.AppliedAt.Unix(),
	)
	return err
}

// ArchiveRunCount returns how many archive entries were journaled
func (s *SQLiteStore) ArchiveRunCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_runs`).Scan(&n)
	return n, err
}

func withID(rec Record, id string) Record {
	out := make(Record, len(rec)+1)
	for k, v := range rec {
		out[k] = v
	}
	out["id"] = id
	return out
}
