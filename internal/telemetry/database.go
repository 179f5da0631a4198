package telemetry

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	dbSystemKey    = "db.system"
	dbTableKey     = "db.table"
	dbOperationKey = "db.operation"
	dbStatementKey = "db.statement"

	spanKey      = "otel:span"
	startTimeKey = "otel:startTime"

	maxStatementLen = 500
)

// GORMTracingPlugin returns a GORM plugin that wraps create/query/update/delete in spans
func GORMTracingPlugin() gorm.Plugin {
	return &tracingPlugin{tracer: otel.Tracer("gorm")}
}

type tracingPlugin struct {
	tracer trace.Tracer
}

func (p *tracingPlugin) Name() string {
	return "telemetry:tracing"
}

func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
		op     string
	}{
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register, "SELECT"},
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register, "INSERT"},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register, "UPDATE"},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register, "DELETE"},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register, "SELECT"},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register, "RAW"},
	}

	for _, h := range hooks {
		op := h.op
		if err := h.before("telemetry:before_"+h.name, func(tx *gorm.DB) { p.startSpan(tx, op) }); err != nil {
			return fmt.Errorf("failed to register before_%s callback: %w", h.name, err)
		}
		if err := h.after("telemetry:after_"+h.name, p.endSpan); err != nil {
			return fmt.Errorf("failed to register after_%s callback: %w", h.name, err)
		}
	}
	return nil
}

func (p *tracingPlugin) startSpan(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}

	table := db.Statement.Table
	if table == "" {
		table = "unknown"
	}

	_, span := p.tracer.Start(ctx, "db."+strings.ToLower(operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(dbSystemKey, dbSystem(db)),
			attribute.String(dbTableKey, table),
			attribute.String(dbOperationKey, operation),
		),
	)

	db.InstanceSet(spanKey, span)
	db.InstanceSet(startTimeKey, time.Now())
}

func (p *tracingPlugin) endSpan(db *gorm.DB) {
	raw, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := raw.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if v, ok := db.InstanceGet(startTimeKey); ok {
		if start, ok := v.(time.Time); ok {
			span.SetAttributes(attribute.Int64("db.duration_ms", time.Since(start).Milliseconds()))
		}
	}

	if sql := db.Statement.SQL.String(); sql != "" {
		if len(sql) > maxStatementLen {
			sql = sql[:maxStatementLen] + "... (truncated)"
		}
		span.SetAttributes(attribute.String(dbStatementKey, sql))
	}

	if db.RowsAffected > 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))
	}

	if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}

func dbSystem(db *gorm.DB) string {
	switch name := db.Dialector.Name(); name {
	case "postgres":
		return "postgresql"
	default:
		return name
	}
}
