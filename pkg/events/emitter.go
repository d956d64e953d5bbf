// Package events handles event emission for version lifecycle changes.
// Emission is best effort: publish failures are logged and counted but never
// fail the operation that produced them.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Event type names carried in the event_type header
const (
	EventTypeVersionCreated       = "version.created"
	EventTypeVersionStatusChanged = "version.status_changed"
	EventTypeVersionPublished     = "version.published"
	EventTypeBranchCreated        = "branch.created"
	EventTypeBranchMerged         = "branch.merged"
)

// Publisher is the producer surface the emitter needs. Satisfied by
// kafka.Producer; swapped for a capture fake in tests.
type Publisher interface {
	PublishVersionEvent(ctx context.Context, event *kafka.VersionEvent) error
}

// Emitter handles event emission for Sage
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitVersionCreated emits a version.created event
func (e *Emitter) EmitVersionCreated(ctx context.Context, version *models.ContentVersion) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitVersionCreated")
	defer span.End()

	e.publish(ctx, &kafka.VersionEvent{
		EventType:     EventTypeVersionCreated,
		TenantID:      version.TenantID.String(),
		EntityType:    version.EntityType,
		EntityID:      version.EntityID.String(),
		VersionID:     version.ID.String(),
		BranchName:    version.BranchName,
		VersionNumber: version.VersionNumber,
		Status:        string(version.Status),
		Actor:         version.CreatedBy.String(),
	})
}

// EmitVersionStatusChanged emits a version.status_changed event
func (e *Emitter) EmitVersionStatusChanged(ctx context.Context, version *models.ContentVersion, previous models.VersionStatus, actor string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitVersionStatusChanged")
	defer span.End()

	e.publish(ctx, &kafka.VersionEvent{
		EventType:     EventTypeVersionStatusChanged,
		TenantID:      version.TenantID.String(),
		EntityType:    version.EntityType,
		EntityID:      version.EntityID.String(),
		VersionID:     version.ID.String(),
		BranchName:    version.BranchName,
		VersionNumber: version.VersionNumber,
		Status:        string(version.Status),
		PreviousState: string(previous),
		Actor:         actor,
	})
}

// EmitVersionPublished emits a version.published event
func (e *Emitter) EmitVersionPublished(ctx context.Context, version *models.ContentVersion, actor string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitVersionPublished")
	defer span.End()

	e.publish(ctx, &kafka.VersionEvent{
		EventType:     EventTypeVersionPublished,
		TenantID:      version.TenantID.String(),
		EntityType:    version.EntityType,
		EntityID:      version.EntityID.String(),
		VersionID:     version.ID.String(),
		BranchName:    version.BranchName,
		VersionNumber: version.VersionNumber,
		Status:        string(version.Status),
		Actor:         actor,
	})
}

// EmitBranchCreated emits a branch.created event
func (e *Emitter) EmitBranchCreated(ctx context.Context, branch *models.VersionBranch) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBranchCreated")
	defer span.End()

	e.publish(ctx, &kafka.VersionEvent{
		EventType:  EventTypeBranchCreated,
		TenantID:   branch.TenantID.String(),
		EntityType: branch.EntityType,
		EntityID:   branch.EntityID.String(),
		BranchName: branch.Name,
		Actor:      branch.CreatedBy.String(),
	})
}

// EmitBranchMerged emits a branch.merged event carrying the merge record as
// its detail payload.
func (e *Emitter) EmitBranchMerged(ctx context.Context, merge *models.VersionMerge, result *models.ContentVersion) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBranchMerged")
	defer span.End()

	detail, err := json.Marshal(merge)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to encode merge detail")
		detail = nil
	}

	event := &kafka.VersionEvent{
		EventType: EventTypeBranchMerged,
		TenantID:  merge.TenantID.String(),
		Status:    string(merge.Status),
		Actor:     merge.MergedBy.String(),
		Detail:    detail,
	}
	if result != nil {
		event.EntityType = result.EntityType
		event.EntityID = result.EntityID.String()
		event.VersionID = result.ID.String()
		event.BranchName = result.BranchName
		event.VersionNumber = result.VersionNumber
	}

	e.publish(ctx, event)
}

func (e *Emitter) publish(ctx context.Context, event *kafka.VersionEvent) {
	if e.producer == nil {
		return // events disabled
	}

	if err := e.producer.PublishVersionEvent(ctx, event); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(event.EventType, "error").Inc()
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
			"entity_id":  event.EntityID,
		}).Error("Failed to emit version event")
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(event.EventType, "ok").Inc()
}
