package events

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/models"
)

type capturePublisher struct {
	events []*kafka.VersionEvent
	err    error
}

func (c *capturePublisher) PublishVersionEvent(_ context.Context, event *kafka.VersionEvent) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func sampleVersion() *models.ContentVersion {
	return &models.ContentVersion{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		EntityType:    "course",
		EntityID:      uuid.New(),
		BranchName:    "main",
		VersionNumber: 3,
		Status:        models.VersionStatusDraft,
		CreatedBy:     uuid.New(),
	}
}

func TestEmitVersionCreated(t *testing.T) {
	publisher := &capturePublisher{}
	emitter := NewEmitter(publisher, noopLogger())
	version := sampleVersion()

	emitter.EmitVersionCreated(context.Background(), version)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, EventTypeVersionCreated, event.EventType)
	assert.Equal(t, version.ID.String(), event.VersionID)
	assert.Equal(t, version.EntityID.String(), event.EntityID)
	assert.Equal(t, "main", event.BranchName)
	assert.Equal(t, 3, event.VersionNumber)
	assert.Equal(t, string(models.VersionStatusDraft), event.Status)
}

func TestEmitVersionStatusChanged_CarriesPreviousState(t *testing.T) {
	publisher := &capturePublisher{}
	emitter := NewEmitter(publisher, noopLogger())
	version := sampleVersion()
	version.Status = models.VersionStatusInReview

	emitter.EmitVersionStatusChanged(context.Background(), version, models.VersionStatusDraft, "someone")

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, EventTypeVersionStatusChanged, event.EventType)
	assert.Equal(t, string(models.VersionStatusInReview), event.Status)
	assert.Equal(t, string(models.VersionStatusDraft), event.PreviousState)
	assert.Equal(t, "someone", event.Actor)
}

func TestEmitBranchMerged_DetailPayload(t *testing.T) {
	publisher := &capturePublisher{}
	emitter := NewEmitter(publisher, noopLogger())

	merge := &models.VersionMerge{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Strategy: models.MergeStrategyThreeWay,
		Status:   models.MergeStatusCompleted,
		MergedBy: uuid.New(),
	}
	result := sampleVersion()

	emitter.EmitBranchMerged(context.Background(), merge, result)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.Equal(t, EventTypeBranchMerged, event.EventType)
	assert.Equal(t, result.ID.String(), event.VersionID)
	assert.NotEmpty(t, event.Detail)
}

func TestEmitter_NilProducerIsDisabled(t *testing.T) {
	emitter := NewEmitter(nil, noopLogger())

	assert.NotPanics(t, func() {
		emitter.EmitVersionCreated(context.Background(), sampleVersion())
		emitter.EmitBranchCreated(context.Background(), &models.VersionBranch{})
	})
}

func TestEmitter_PublishFailureDoesNotPropagate(t *testing.T) {
	publisher := &capturePublisher{err: errors.New("broker down")}
	emitter := NewEmitter(publisher, noopLogger())

	assert.NotPanics(t, func() {
		emitter.EmitVersionCreated(context.Background(), sampleVersion())
	})
}
