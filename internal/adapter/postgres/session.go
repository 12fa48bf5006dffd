package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlpilot/sqlpilot/internal/domain"
	"github.com/sqlpilot/sqlpilot/internal/port/database"
)

// DB implements the database port over a pgx pool.
type DB struct {
	pool *pgxpool.Pool
}

var _ database.Database = (*DB)(nil)

// New wraps an established pool.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Acquire checks out one dedicated connection for an optimization run.
// Every statement of the run sees the same connection state, which keeps
// repeated performance measurements comparable.
func (d *DB) Acquire(ctx context.Context) (database.Session, error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &session{conn: conn}, nil
}

// Ping verifies connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close shuts down the pool.
func (d *DB) Close() {
	d.pool.Close()
}

type session struct {
	conn    *pgxpool.Conn
	release sync.Once
}

var _ database.Session = (*session)(nil)

// Release returns the connection to the pool. Safe to call more than once.
func (s *session) Release() {
	s.release.Do(s.conn.Release)
}

// Execute runs a read statement and maps each row by column name.
func (s *session) Execute(ctx context.Context, sql string) ([]database.Row, error) {
	rows, err := s.conn.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []database.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(database.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// normalizeValue converts driver values to JSON-stable Go types so result
// digests do not depend on driver representation.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

const columnsQuery = `
SELECT column_name,
       data_type,
       is_nullable = 'YES' AS nullable,
       COALESCE(column_default, '') AS column_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`

const indexesQuery = `
SELECT c2.relname AS index_name,
       ix.indisunique,
       pg_get_indexdef(ix.indexrelid) AS definition,
       ARRAY(
           SELECT pg_get_indexdef(ix.indexrelid, k + 1, true)
           FROM generate_subscripts(ix.indkey, 1) AS k
           ORDER BY k
       ) AS columns
FROM pg_index ix
JOIN pg_class c ON c.oid = ix.indrelid
JOIN pg_class c2 ON c2.oid = ix.indexrelid
WHERE c.relname = $1`

// Schema returns the columns and indexes of the named table.
func (s *session) Schema(ctx context.Context, table string) (*database.TableSchema, error) {
	rows, err := s.conn.Query(ctx, columnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (database.ColumnInfo, error) {
		var col database.ColumnInfo
		err := row.Scan(&col.Name, &col.DataType, &col.Nullable, &col.Default)
		return col, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, domain.ErrNotFound)
	}

	rows, err = s.conn.Query(ctx, indexesQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	indexes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (database.IndexInfo, error) {
		var idx database.IndexInfo
		err := row.Scan(&idx.Name, &idx.Unique, &idx.Definition, &idx.Columns)
		return idx, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect indexes: %w", err)
	}

	return &database.TableSchema{Table: table, Columns: columns, Indexes: indexes}, nil
}

const statsQuery = `
SELECT c.reltuples::bigint AS row_estimate,
       pg_total_relation_size(c.oid) AS total_bytes,
       pg_indexes_size(c.oid) AS index_bytes,
       COALESCE(s.n_live_tup, 0),
       COALESCE(s.n_dead_tup, 0),
       COALESCE(s.seq_scan, 0),
       COALESCE(s.idx_scan, 0),
       COALESCE(s.last_analyze::text, ''),
       COALESCE(io.heap_blks_hit, 0),
       COALESCE(io.heap_blks_read, 0)
FROM pg_class c
LEFT JOIN pg_stat_user_tables s ON s.relid = c.oid
LEFT JOIN pg_statio_user_tables io ON io.relid = c.oid
WHERE c.relname = $1 AND c.relkind = 'r'`

// Statistics returns planner statistics for the named table.
func (s *session) Statistics(ctx context.Context, table string) (*database.TableStats, error) {
	stats := &database.TableStats{Table: table}
	var blksHit, blksRead int64
	err := s.conn.QueryRow(ctx, statsQuery, table).Scan(
		&stats.RowEstimate,
		&stats.TotalBytes,
		&stats.IndexBytes,
		&stats.LiveTuples,
		&stats.DeadTuples,
		&stats.SeqScans,
		&stats.IndexScans,
		&stats.LastAnalyze,
		&blksHit,
		&blksRead,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", table, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	if total := blksHit + blksRead; total > 0 {
		stats.CacheHitRatio = float64(blksHit) / float64(total)
	}
	return stats, nil
}

// Explain returns the planner's text plan without executing the statement.
func (s *session) Explain(ctx context.Context, sql string) (*database.ExplainPlan, error) {
	rows, err := s.conn.Query(ctx, "EXPLAIN "+sql)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var line string
		err := row.Scan(&line)
		return line, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect plan: %w", err)
	}
	return &database.ExplainPlan{SQL: sql, Plan: strings.Join(lines, "\n")}, nil
}

// Version returns the server version string.
func (s *session) Version(ctx context.Context) (string, error) {
	var version string
	if err := s.conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}
	return version, nil
}
