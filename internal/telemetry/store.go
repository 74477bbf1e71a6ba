package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/tasktree/internal/engine"
	"github.com/roach88/tasktree/internal/ir"
)

const storeScopeName = "github.com/roach88/tasktree/store"

// InstrumentedStore wraps engine.Store with OTel tracing and metrics.
// Every method gets a span and is counted in tasktree.store.* metrics;
// conflict rejections are additionally counted in tasktree.store.conflicts.
// Use WrapStore to create one.
type InstrumentedStore struct {
	inner     engine.Store
	tracer    trace.Tracer
	ops       metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	conflicts metric.Int64Counter
}

var _ engine.Store = (*InstrumentedStore)(nil)

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s engine.Store) engine.Store {
	if !Enabled() {
		return s
	}
	return newInstrumentedStore(s)
}

func newInstrumentedStore(s engine.Store) *InstrumentedStore {
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("tasktree.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("tasktree.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("tasktree.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	conflicts, _ := m.Int64Counter("tasktree.store.conflicts",
		metric.WithDescription("Writes rejected by the optimistic concurrency check"),
	)
	return &InstrumentedStore{
		inner:     s,
		tracer:    Tracer(storeScopeName),
		ops:       ops,
		dur:       dur,
		errs:      errs,
		conflicts: conflicts,
	}
}

// op starts a span and records a metric for the named store operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		kind := attribute.String("tasktree.error.kind", string(ir.KindOf(err)))
		s.errs.Add(ctx, 1, metric.WithAttributes(append(attrs, kind)...))
		if ir.IsConflict(err) {
			s.conflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}
	span.End()
}

// ── Reads ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) GetTask(ctx context.Context, id string) (ir.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("tasktree.task.id", id)}
	ctx, span, t := s.op(ctx, "GetTask", attrs...)
	v, err := s.inner.GetTask(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListScope(ctx context.Context, scope ir.Scope) ([]ir.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("tasktree.scope", scope.String())}
	ctx, span, t := s.op(ctx, "ListScope", attrs...)
	v, err := s.inner.ListScope(ctx, scope)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListTransition(ctx context.Context, transitionID string) ([]ir.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("tasktree.transition.id", transitionID)}
	ctx, span, t := s.op(ctx, "ListTransition", attrs...)
	v, err := s.inner.ListTransition(ctx, transitionID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListChildren(ctx context.Context, parentID string) ([]ir.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("tasktree.task.id", parentID)}
	ctx, span, t := s.op(ctx, "ListChildren", attrs...)
	v, err := s.inner.ListChildren(ctx, parentID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) Ancestors(ctx context.Context, id string) ([]ir.Task, error) {
	attrs := []attribute.KeyValue{attribute.String("tasktree.task.id", id)}
	ctx, span, t := s.op(ctx, "Ancestors", attrs...)
	v, err := s.inner.Ancestors(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListEvents(ctx context.Context, transitionID, taskID string) ([]ir.Event, error) {
	attrs := []attribute.KeyValue{attribute.String("tasktree.transition.id", transitionID)}
	ctx, span, t := s.op(ctx, "ListEvents", attrs...)
	v, err := s.inner.ListEvents(ctx, transitionID, taskID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Writes ──────────────────────────────────────────────────────────────────

func (s *InstrumentedStore) InsertTask(ctx context.Context, w ir.InsertWrite) (ir.Task, error) {
	attrs := []attribute.KeyValue{
		attribute.String("tasktree.caller", w.Caller.ID),
		attribute.String("tasktree.scope", w.Guard.Scope.String()),
	}
	ctx, span, t := s.op(ctx, "InsertTask", attrs...)
	v, err := s.inner.InsertTask(ctx, w)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ApplyMove(ctx context.Context, w ir.MoveWrite) (ir.Task, error) {
	attrs := []attribute.KeyValue{
		attribute.String("tasktree.caller", w.Caller.ID),
		attribute.String("tasktree.task.id", w.TaskID),
		attribute.Int("tasktree.resequence.count", len(w.Resequence)),
	}
	ctx, span, t := s.op(ctx, "ApplyMove", attrs...)
	v, err := s.inner.ApplyMove(ctx, w)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ApplyResequence(ctx context.Context, w ir.ResequenceWrite) error {
	attrs := []attribute.KeyValue{
		attribute.String("tasktree.caller", w.Caller.ID),
		attribute.String("tasktree.scope", w.Guard.Scope.String()),
		attribute.Int("tasktree.resequence.count", len(w.Keys)),
	}
	ctx, span, t := s.op(ctx, "ApplyResequence", attrs...)
	err := s.inner.ApplyResequence(ctx, w)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) DeleteTask(ctx context.Context, w ir.DeleteWrite) ([]string, error) {
	attrs := []attribute.KeyValue{
		attribute.String("tasktree.caller", w.Caller.ID),
		attribute.String("tasktree.task.id", w.TaskID),
		attribute.String("tasktree.delete.policy", string(w.Policy)),
	}
	ctx, span, t := s.op(ctx, "DeleteTask", attrs...)
	v, err := s.inner.DeleteTask(ctx, w)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}
