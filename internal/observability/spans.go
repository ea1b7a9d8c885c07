package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceLayer starts client and internal spans around datastore and broker calls.
type TraceLayer struct {
	tracer trace.Tracer
}

func NewTraceLayer(tracer trace.Tracer) *TraceLayer {
	return &TraceLayer{tracer: tracer}
}

// GetTraceLayer binds to whatever Tracer InitTracing installed.
func GetTraceLayer() *TraceLayer {
	return NewTraceLayer(Tracer)
}

func (l *TraceLayer) start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// TraceRepositoryMethod spans one Postgres repository call.
func (l *TraceLayer) TraceRepositoryMethod(ctx context.Context, method, table string) (context.Context, trace.Span) {
	return l.start(ctx, "repository."+method, trace.SpanKindInternal,
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", method),
		attribute.String("db.table", table),
	)
}

func (l *TraceLayer) TraceRedisOperation(ctx context.Context, op string) (context.Context, trace.Span) {
	return l.start(ctx, "redis."+op, trace.SpanKindClient,
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", op),
	)
}

// TraceMongoOperation spans one identity-store call.
func (l *TraceLayer) TraceMongoOperation(ctx context.Context, collection, op string) (context.Context, trace.Span) {
	return l.start(ctx, "mongo."+op, trace.SpanKindClient,
		attribute.String("db.system", "mongodb"),
		attribute.String("db.operation", op),
		attribute.String("db.mongodb.collection", collection),
	)
}

// TracePublish is a producer span named after the event type.
func (l *TraceLayer) TracePublish(ctx context.Context, transport, eventType string) (context.Context, trace.Span) {
	return l.start(ctx, "publish."+eventType, trace.SpanKindProducer,
		attribute.String("messaging.system", transport),
		attribute.String("messaging.destination.name", eventType),
	)
}

// RecordErrorInContext marks the span carried by ctx as failed. A nil err
// is ignored.
func RecordErrorInContext(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
