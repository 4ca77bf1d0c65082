package iam

import (
	"context"
	"log/slog"
)

// AuditMetrics counts audit writes that could not be persisted.
type AuditMetrics interface {
	AuditWriteFailed()
}

// AuditStore is the slice of storage the recorder needs.
type AuditStore interface {
	InsertAuditEvent(ctx context.Context, event AuditEvent) error
	ListAuditEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// Recorder appends audit events. Writes are best-effort: a failed insert is
// logged and counted but never turns a successful operation into an error.
type Recorder struct {
	store   AuditStore
	logger  *slog.Logger
	metrics AuditMetrics
}

func NewRecorder(store AuditStore, logger *slog.Logger, metrics AuditMetrics) *Recorder {
	return &Recorder{store: store, logger: logger, metrics: metrics}
}

// Record persists one audit event.
func (a *Recorder) Record(ctx context.Context, event AuditEvent) {
	if err := a.store.InsertAuditEvent(ctx, event); err != nil {
		a.logger.Error("audit event write failed",
			"action", event.Action, "actor_id", event.ActorID, "error", err)
		if a.metrics != nil {
			a.metrics.AuditWriteFailed()
		}
	}
}

// List returns recent events, newest first.
func (a *Recorder) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return a.store.ListAuditEvents(ctx, filter)
}
