package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/dbpulse/src/models"
)

// ConnectionConfig holds PostgreSQL connection configuration
type ConnectionConfig struct {
	DSN             string
	MaxConnections  int
	MinConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PostgresStore runs the application tables on PostgreSQL instead of the
// embedded database. Same layout: projected columns plus a JSON data column.
type PostgresStore struct {
	pool    *pgxpool.Pool
	name    string
	schemas schemaSet
	log     *logrus.Logger
	now     func() time.Time
}

// OpenPostgres connects, pings and migrates the given schemas
func OpenPostgres(ctx context.Context, config ConnectionConfig, schemas []TableSchema, log *logrus.Logger) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConnections > 0 {
		poolConfig.MaxConns = int32(config.MaxConnections)
	} else {
		poolConfig.MaxConns = 10
	}

	if config.MinConnections > 0 {
		poolConfig.MinConns = int32(config.MinConnections)
	} else {
		poolConfig.MinConns = 1
	}

	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	} else {
		poolConfig.MaxConnLifetime = time.Hour
	}

	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	} else {
		poolConfig.MaxConnIdleTime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{
		pool:    pool,
		name:    poolConfig.ConnConfig.Database,
		schemas: newSchemaSet(schemas),
		log:     log,
		now:     time.Now,
	}
	if err := s.migrate(ctx, schemas); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Infof("Successfully connected to PostgreSQL database %s", s.name)
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context, schemas []TableSchema) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS archive_runs (
			id             BIGSERIAL PRIMARY KEY,
			table_name     TEXT NOT NULL,
			condition      TEXT NOT NULL,
			archived_count INTEGER NOT NULL,
			space_saved_mb DOUBLE PRECISION NOT NULL,
			retention_days INTEGER NOT NULL,
			applied_at     BIGINT NOT NULL
		)`,
	}
	for _, schema := range schemas {
		migrations = append(migrations, createTableSQL(schema, "DOUBLE PRECISION")...)
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Name returns the database name
func (s *PostgresStore) Name() string { return s.name }

// Close closes all connections in the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	s.log.Infof("Closed connection pool for %s", s.name)
	return nil
}

// Ping performs a health check on the connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Tables lists the application tables
func (s *PostgresStore) Tables(ctx context.Context) ([]string, error) {
	return s.schemas.names(), nil
}

func (s *PostgresStore) schema(table string) (TableSchema, error) {
	schema, ok := s.schemas[table]
	if !ok {
		return TableSchema{}, fmt.Errorf("%w: %s", models.ErrTableNotFound, table)
	}
	return schema, nil
}

// Get performs a point lookup by id. A missing row returns (nil, nil).
func (s *PostgresStore) Get(ctx context.Context, table, id string) (Record, error) {
	if _, err := s.schema(table); err != nil {
		return nil, err
	}

	var payload string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT data FROM %s WHERE id = $1", pq.QuoteIdentifier(table)), id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(payload)
}

// Sample returns up to limit records of table
func (s *PostgresStore) Sample(ctx context.Context, table string, limit int) ([]Record, error) {
	if _, err := s.schema(table); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT data FROM %s ORDER BY ctid LIMIT $1", pq.QuoteIdentifier(table)), limit)
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
func (s *PostgresStore) Insert(ctx context.Context, table string, rec Record) (string, error) {
	schema, err := s.schema(table)
	if err != nil {
		return "", err
	}

	id, values, payload, err := prepareRecord(schema, rec)
	if err != nil {
		return "", err
	}

	cols := []string{"id"}
	for _, c := range schema.Columns {
		cols = append(cols, pq.QuoteIdentifier(c.Name))
	}
	cols = append(cols, "data")

	args := append([]interface{}{id}, values...)
	args = append(args, payload)

	_, err = s.pool.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", pq.QuoteIdentifier(table), strings.Join(cols, ", "), placeholders(1, len(args))),
		args...,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update replaces the record stored under id
func (s *PostgresStore) Update(ctx context.Context, table, id string, rec Record) error {
	schema, err := s.schema(table)
	if err != nil {
		return err
	}

	_, values, payload, err := prepareRecord(schema, withID(rec, id))
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(schema.Columns)+1)
	for i, c := range schema.Columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(c.Name), i+1))
	}
	sets = append(sets, fmt.Sprintf("data = $%d", len(schema.Columns)+1))

	args := append(values, payload, id)
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", pq.QuoteIdentifier(table), strings.Join(sets, ", "), len(args)),
		args...,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s/%s: %w", table, id, pgx.ErrNoRows)
	}
	return nil
}

// Delete removes a record
func (s *PostgresStore) Delete(ctx context.Context, table, id string) error {
	if _, err := s.schema(table); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", pq.QuoteIdentifier(table)), id)
	return err
}

// Indexes reads the secondary indexes of table from pg_index
func (s *PostgresStore) Indexes(ctx context.Context, table string) ([][]string, error) {
	if _, err := s.schema(table); err != nil {
		return nil, err
	}

	query := `
		SELECT array_agg(a.attname ORDER BY k.n)
		FROM pg_index x
		JOIN pg_class c ON c.oid = x.indrelid
		JOIN pg_class i ON i.oid = x.indexrelid
		CROSS JOIN LATERAL unnest(x.indkey) WITH ORDINALITY AS k(attnum, n)
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = k.attnum
		WHERE c.relname = $1 AND NOT x.indisprimary
		GROUP BY i.relname
		ORDER BY i.relname
	`

	rows, err := s.pool.Query(ctx, query, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes [][]string
	for rows.Next() {
		var cols []string
		if err := rows.Scan(&cols); err != nil {
			return nil, err
		}
		indexes = append(indexes, cols)
	}
	return indexes, rows.Err()
}

// GetState retrieves a value from the kv table
func (s *PostgresStore) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// PutState stores a key-value pair
func (s *PostgresStore) PutState(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value, s.now().Unix(),
	)
	return err
}

// JournalArchive records an applied archiving rule
func (s *PostgresStore) JournalArchive(ctx context.Context, e ArchiveEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO archive_runs (table_name, condition, archived_count, space_saved_mb, retention_days, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Table, e.Condition, e.ArchivedCount, e.SpaceSavedMB, e.RetentionDays, e.AppliedAt.Unix(),
	)
	return err
}

// PoolStats returns statistics for the connection pool
func (s *PostgresStore) PoolStats() map[string]interface{} {
	stat := s.pool.Stat()
	return map[string]interface{}{
		"acquired_conns":         stat.AcquiredConns(),
		"canceled_acquire_count": stat.CanceledAcquireCount(),
		"idle_conns":             stat.IdleConns(),
		"max_conns":              stat.MaxConns(),
		"total_conns":            stat.TotalConns(),
		"new_conns_count":        stat.NewConnsCount(),
	}
}

func placeholders(start, n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(marks, ", ")
}
