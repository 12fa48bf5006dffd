// Package database defines the shadow-database port (interface).
package database

import "context"

// Row is one result row keyed by column name.
type Row map[string]any

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

// IndexInfo describes one index of a table.
type IndexInfo struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	Unique     bool     `json:"unique"`
	Definition string   `json:"definition,omitempty"`
}

// TableSchema is the full structural description of one table.
type TableSchema struct {
	Table   string       `json:"table"`
	Columns []ColumnInfo `json:"columns"`
	Indexes []IndexInfo  `json:"indexes"`
}

// TableStats holds planner-relevant statistics for one table.
type TableStats struct {
	Table         string  `json:"table"`
	RowEstimate   int64   `json:"row_estimate"`
	TotalBytes    int64   `json:"total_bytes"`
	IndexBytes    int64   `json:"index_bytes"`
	LiveTuples    int64   `json:"live_tuples"`
	DeadTuples    int64   `json:"dead_tuples"`
	LastAnalyze   string  `json:"last_analyze,omitempty"`
	SeqScans      int64   `json:"seq_scans"`
	IndexScans    int64   `json:"index_scans"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
}

// ExplainPlan is the planner's execution plan for a statement.
type ExplainPlan struct {
	SQL  string `json:"sql"`
	Plan string `json:"plan"`
}

// Session is one dedicated connection to the shadow database. A session
// serves exactly one optimization run so every statement in the run sees the
// same connection state. Release must be called on every exit path.
type Session interface {
	// Execute runs a read statement and returns the result rows.
	Execute(ctx context.Context, sql string) ([]Row, error)

	// Schema returns the structure of the named table.
	Schema(ctx context.Context, table string) (*TableSchema, error)

	// Statistics returns planner statistics for the named table.
	Statistics(ctx context.Context, table string) (*TableStats, error)

	// Explain returns the execution plan for the statement without running it.
	Explain(ctx context.Context, sql string) (*ExplainPlan, error)

	// Version returns the server version string.
	Version(ctx context.Context) (string, error)

	// Release returns the underlying connection to the pool. Safe to call
	// more than once.
	Release()
}

// Database is the port interface for the shadow database holding the live
// dataset that optimization candidates are verified against.
type Database interface {
	// Acquire checks out a dedicated session for one optimization run.
	Acquire(ctx context.Context) (Session, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close shuts down the connection pool.
	Close()
}
