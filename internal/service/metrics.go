package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

var tracer = otel.Tracer("be-doc-approvals.service")

var (
	// decisionsTotal counts recorded decisions by action and routing outcome
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doc_approvals_decisions_total",
		Help: "Approval decisions by action and routing outcome",
	}, []string{"action", "outcome"})

	// submissionsTotal counts submissions by routing mode (route or manual)
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doc_approvals_submissions_total",
		Help: "Documents submitted for approval by routing mode",
	}, []string{"mode"})

	overridesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doc_approvals_status_overrides_total",
		Help: "Manual status overrides by target status",
	}, []string{"to"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doc_approvals_operation_duration_seconds",
		Help:    "Lifecycle operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"operation", "code"})
)

// startSpan opens a span for a lifecycle operation on a document.
func startSpan(ctx context.Context, operation, documentID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ApprovalRoutingService."+operation,
		trace.WithAttributes(attribute.String("document.id", documentID)),
	)
}

// finish ends span and observes the operation duration labelled by error code.
func finish(span trace.Span, operation string, start time.Time, err error) {
	code := "OK"
	if err != nil {
		code = string(errors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("result.code", code))
	span.End()
	operationDuration.WithLabelValues(operation, code).Observe(time.Since(start).Seconds())
}
