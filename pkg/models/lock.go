package models

import (
	"time"

	"github.com/google/uuid"
)

// LockLevel describes what a content lock covers. The single-active-lock
// invariant applies regardless of level; the level is advisory for callers.
type LockLevel string

const (
	// LockLevelExclusive blocks all concurrent editing of the entity
	LockLevelExclusive LockLevel = "exclusive"
	// LockLevelContent covers body text edits
	LockLevelContent LockLevel = "content"
	// LockLevelStructure covers reordering and adding/removing sections
	LockLevelStructure LockLevel = "structure"
)

// ContentLock is an application-level mutual-exclusion record for one entity
type ContentLock struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TenantID      uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	EntityType    string     `db:"entity_type" json:"entity_type"`
	EntityID      uuid.UUID  `db:"entity_id" json:"entity_id"`
	VersionID     *uuid.UUID `db:"version_id" json:"version_id,omitempty"`
	LockedBy      uuid.UUID  `db:"locked_by" json:"locked_by"`
	Reason        *string    `db:"reason" json:"reason,omitempty"`
	LockLevel     LockLevel  `db:"lock_level" json:"lock_level"`
	IsActive      bool       `db:"is_active" json:"is_active"`
	AcquiredAt    time.Time  `db:"acquired_at" json:"acquired_at"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expires_at"`
	LastHeartbeat time.Time  `db:"last_heartbeat" json:"last_heartbeat"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (ContentLock) TableName() string {
	return "content_locks"
}

// IsExpired reports whether the lease has lapsed at the given instant.
func (l *ContentLock) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// AcquireLockRequest requests an editing lock on an entity
type AcquireLockRequest struct {
	EntityType string         `json:"entity_type" validate:"required"`
	EntityID   uuid.UUID      `json:"entity_id" validate:"required"`
	VersionID  *uuid.UUID     `json:"version_id,omitempty"`
	LockedBy   uuid.UUID      `json:"locked_by" validate:"required"`
	Reason     *string        `json:"reason,omitempty"`
	LockLevel  LockLevel      `json:"lock_level,omitempty"`
	TTL        *time.Duration `json:"ttl,omitempty"`
}
