package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pscheid92/teamdraft/internal/adapter/metrics"
)

// MetricsTracer implements pgx.QueryTracer and records per-statement latency and errors.
type MetricsTracer struct {
	m *metrics.StoreMetrics
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.StoreMetrics) *MetricsTracer {
	return &MetricsTracer{m: m}
}

type queryContextKey struct{}

type queryContext struct {
	start time.Time
	name  string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{start: time.Now(), name: queryName(data.SQL)})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}
	t.m.DBQueryDuration.WithLabelValues(qctx.name).Observe(time.Since(qctx.start).Seconds())
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		t.m.DBErrorsTotal.WithLabelValues(qctx.name).Inc()
	}
}

// queryName reduces a statement to its verb and first table, e.g. "select drafts".
// It keeps label cardinality bounded.
func queryName(sql string) string {
	fields := strings.Fields(strings.ToLower(sql))
	if len(fields) == 0 {
		return "unknown"
	}
	verb := fields[0]
	marker := map[string]string{"select": "from", "delete": "from", "insert": "into", "update": ""}[verb]
	for i, f := range fields {
		if verb == "update" && i == 1 {
			return verb + " " + f
		}
		if marker != "" && f == marker && i+1 < len(fields) {
			return verb + " " + strings.TrimRight(fields[i+1], "(,;")
		}
	}
	return verb
}
