package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pamsync/pkg/metrics"
	"pamsync/pkg/otel"
)

type queryKey struct{}

type queryInfo struct {
	start time.Time
	sql   string
	span  trace.Span
}

// QueryTracer 实现 pgx.QueryTracer：为每条查询创建 span，并记录慢查询
type QueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
	now           func() time.Time
}

// NewQueryTracer 创建 tracer，阈值为 0 时默认 100ms
func NewQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *QueryTracer {
	if slowThreshold <= 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &QueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
		now:           time.Now,
	}
}

func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := Operation(data.SQL)
	ctx, span := otel.StartSpan(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			semconv.DBOperationKey.String(op),
			semconv.DBStatementKey.String(truncate(data.SQL, 500)),
		),
	)
	return context.WithValue(ctx, queryKey{}, &queryInfo{start: t.now(), sql: data.SQL, span: span})
}

func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	info, ok := ctx.Value(queryKey{}).(*queryInfo)
	if !ok {
		return
	}

	err := data.Err
	if err == pgx.ErrNoRows {
		err = nil
	}
	otel.EndSpan(info.span, err)

	duration := t.now().Sub(info.start)
	if duration <= t.slowThreshold {
		return
	}

	sql := truncate(info.sql, 200)
	t.logger.Warn("slow-query",
		zap.String("sql", sql),
		zap.Duration("took", duration),
		zap.String("command_tag", data.CommandTag.String()),
	)
	metrics.IncrementSlowQuery(Operation(info.sql), duration)
}

// Operation 返回 SQL 的第一个关键字（小写），用作 span 名和指标标签
func Operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
