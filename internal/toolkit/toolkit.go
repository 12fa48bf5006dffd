package toolkit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/port/cache"
	"github.com/sqlpilot/sqlpilot/internal/port/database"
	"github.com/sqlpilot/sqlpilot/internal/safety"
)

// Options configures a Toolkit.
type Options struct {
	// PerformanceRuns is the default run count for performance measurement.
	PerformanceRuns int

	// QueryTimeout bounds each verification statement. Zero disables.
	QueryTimeout time.Duration

	// Cache, when non-nil, serves schema and statistics lookups. TTL applies
	// to cached entries.
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Toolkit binds the tool catalog to one database session for the duration of
// a single optimization run. All statements pass through the safety guard
// before reaching the session.
type Toolkit struct {
	session  database.Session
	guard    *safety.Guard
	opts     Options
	log      *slog.Logger
	handlers map[string]handler
}

type handler func(ctx context.Context, args json.RawMessage) Report

// New builds a Toolkit over the given session. The handler table is fixed at
// construction; unknown tool names are a checked error case in Dispatch.
func New(session database.Session, guard *safety.Guard, log *slog.Logger, opts Options) *Toolkit {
	if opts.PerformanceRuns < 1 {
		opts.PerformanceRuns = 3
	}
	tk := &Toolkit{
		session: session,
		guard:   guard,
		opts:    opts,
		log:     log,
	}
	tk.handlers = map[string]handler{
		"get_table_schema":     tk.tableSchema,
		"get_table_statistics": tk.tableStatistics,
		"explain_sql":          tk.explainSQL,
		"execute_and_compare":  tk.executeAndCompare,
		"measure_performance":  tk.measurePerformance,
		"execute_custom_test":  tk.executeCustomTest,
	}
	return tk
}

// Dispatch invokes the named tool with raw JSON arguments. Unknown names and
// malformed arguments produce error reports, never errors; a single failing
// tool must not abort the conversation.
func (t *Toolkit) Dispatch(ctx context.Context, name string, args json.RawMessage) Report {
	h, ok := t.handlers[name]
	if !ok {
		t.log.Warn("unknown tool requested", "tool", name)
		return errorReport(name, "unknown tool %q", name)
	}

	if t.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.QueryTimeout)
		defer cancel()
	}

	report := h(ctx, args)
	if report.Failed() {
		t.log.Debug("tool reported error", "tool", name, "error", report.Err)
	}
	return report
}

type tableArgs struct {
	TableName string `json:"table_name"`
}

func (t *Toolkit) tableSchema(ctx context.Context, raw json.RawMessage) Report {
	const tool = "get_table_schema"
	var args tableArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReport(tool, "decode arguments: %v", err)
	}
	if args.TableName == "" {
		return errorReport(tool, "table_name is required")
	}

	if payload, ok := t.cacheGet(ctx, "schema:"+args.TableName); ok {
		return successReport(tool, payload)
	}

	schema, err := t.session.Schema(ctx, args.TableName)
	if err != nil {
		return errorReport(tool, "get schema for %s: %v", args.TableName, err)
	}
	t.cacheSet(ctx, "schema:"+args.TableName, schema)
	return successReport(tool, schema)
}

func (t *Toolkit) tableStatistics(ctx context.Context, raw json.RawMessage) Report {
	const tool = "get_table_statistics"
	var args tableArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReport(tool, "decode arguments: %v", err)
	}
	if args.TableName == "" {
		return errorReport(tool, "table_name is required")
	}

	if payload, ok := t.cacheGet(ctx, "stats:"+args.TableName); ok {
		return successReport(tool, payload)
	}

	stats, err := t.session.Statistics(ctx, args.TableName)
	if err != nil {
		return errorReport(tool, "get statistics for %s: %v", args.TableName, err)
	}
	t.cacheSet(ctx, "stats:"+args.TableName, stats)
	return successReport(tool, stats)
}

type sqlArgs struct {
	SQL string `json:"sql"`
}

func (t *Toolkit) explainSQL(ctx context.Context, raw json.RawMessage) Report {
	const tool = "explain_sql"
	var args sqlArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReport(tool, "decode arguments: %v", err)
	}
	if err := t.guard.Check(args.SQL); err != nil {
		return errorReport(tool, "sql rejected: %v", err)
	}

	plan, err := t.session.Explain(ctx, args.SQL)
	if err != nil {
		return errorReport(tool, "explain sql: %v", err)
	}
	return successReport(tool, plan)
}

type compareArgs struct {
	OriginalSQL  string `json:"original_sql"`
	OptimizedSQL string `json:"optimized_sql"`
}

func (t *Toolkit) executeAndCompare(ctx context.Context, raw json.RawMessage) Report {
	const tool = "execute_and_compare"
	var args compareArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReport(tool, "decode arguments: %v", err)
	}
	return t.compare(ctx, tool, args.OriginalSQL, args.OptimizedSQL)
}

// compare runs the full equivalence pipeline: guard both statements, enforce
// row limits, execute on the shared session, compare counts then digests.
// Unsafe SQL never reaches the database.
func (t *Toolkit) compare(ctx context.Context, tool, originalSQL, optimizedSQL string) Report {
	limitedOrig, err := t.guard.Prepare(originalSQL)
	if err != nil {
		return errorReport(tool, "original sql rejected: %v", err)
	}
	limitedOpt, err := t.guard.Prepare(optimizedSQL)
	if err != nil {
		return errorReport(tool, "optimized sql rejected: %v", err)
	}

	origRows, err := t.session.Execute(ctx, limitedOrig)
	if err != nil {
		return errorReport(tool, "execute original sql: %v", err)
	}
	optRows, err := t.session.Execute(ctx, limitedOpt)
	if err != nil {
		return errorReport(tool, "execute optimized sql: %v", err)
	}

	verdict, err := compareResults(origRows, optRows)
	if err != nil {
		return errorReport(tool, "compare results: %v", err)
	}
	return successReport(tool, verdict)
}

type measureArgs struct {
	SQL  string `json:"sql"`
	Runs int    `json:"runs"`
}

func (t *Toolkit) measurePerformance(ctx context.Context, raw json.RawMessage) Report {
	const tool = "measure_performance"
	var args measureArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReport(tool, "decode arguments: %v", err)
	}
	if args.Runs < 1 {
		args.Runs = t.opts.PerformanceRuns
	}

	limited, err := t.guard.Prepare(args.SQL)
	if err != nil {
		return errorReport(tool, "sql rejected: %v", err)
	}

	sample, err := measure(ctx, t.session, limited, args.Runs)
	if err != nil {
		return errorReport(tool, "measure performance: %v", err)
	}
	return successReport(tool, sample)
}

type customTestArgs struct {
	TestName     string `json:"test_name"`
	OriginalSQL  string `json:"original_sql"`
	OptimizedSQL string `json:"optimized_sql"`
	Description  string `json:"description"`
}

// testOutcome wraps an equivalence check with test metadata.
type testOutcome struct {
	TestName    string `json:"test_name"`
	Description string `json:"description"`
	Result      any    `json:"result"`
}

func (t *Toolkit) executeCustomTest(ctx context.Context, raw json.RawMessage) Report {
	const tool = "execute_custom_test"
	var args customTestArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorReport(tool, "decode arguments: %v", err)
	}

	inner := t.compare(ctx, tool, args.OriginalSQL, args.OptimizedSQL)
	result := inner.Payload
	if inner.Failed() {
		result = map[string]string{"error": inner.Err}
	}
	return successReport(tool, testOutcome{
		TestName:    args.TestName,
		Description: args.Description,
		Result:      result,
	})
}

// cacheGet returns the cached JSON payload for key, decoded into a generic
// value, when a cache is configured and holds the key.
func (t *Toolkit) cacheGet(ctx context.Context, key string) (any, bool) {
	if t.opts.Cache == nil {
		return nil, false
	}
	data, ok, err := t.opts.Cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	return payload, true
}

// cacheSet stores the payload as JSON. Cache failures are ignored; the
// lookup already succeeded against the database.
func (t *Toolkit) cacheSet(ctx context.Context, key string, payload any) {
	if t.opts.Cache == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = t.opts.Cache.Set(ctx, key, data, t.opts.CacheTTL)
}
