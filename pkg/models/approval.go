package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/database"
)

// ApprovalStatus is the decision state of a single reviewer assignment
type ApprovalStatus string

const (
	// ApprovalStatusPending means the reviewer has not decided yet
	ApprovalStatusPending ApprovalStatus = "pending"
	// ApprovalStatusApproved is a reviewer sign-off
	ApprovalStatusApproved ApprovalStatus = "approved"
	// ApprovalStatusRejected is a terminal reviewer rejection
	ApprovalStatusRejected ApprovalStatus = "rejected"
	// ApprovalStatusChangesRequested sends the version back to the author
	ApprovalStatusChangesRequested ApprovalStatus = "changes_requested"
)

// VersionApproval is one reviewer's assignment and decision for a version.
// A version can carry several approvals at once.
type VersionApproval struct {
	ID               uuid.UUID                `db:"id" json:"id"`
	TenantID         uuid.UUID                `db:"tenant_id" json:"tenant_id"`
	VersionID        uuid.UUID                `db:"version_id" json:"version_id"`
	ReviewerID       uuid.UUID                `db:"reviewer_id" json:"reviewer_id"`
	RequestedBy      uuid.UUID                `db:"requested_by" json:"requested_by"`
	Status           ApprovalStatus           `db:"status" json:"status"`
	DecisionNotes    *string                  `db:"decision_notes" json:"decision_notes,omitempty"`
	RequestedChanges database.JSONB[[]string] `db:"requested_changes" json:"requested_changes,omitempty"`
	AssignedAt       time.Time                `db:"assigned_at" json:"assigned_at"`
	DecidedAt        *time.Time               `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt        time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time                `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (VersionApproval) TableName() string {
	return "version_approvals"
}

// AssignApprovalRequest assigns a reviewer to a version in review
type AssignApprovalRequest struct {
	VersionID   uuid.UUID `json:"version_id" validate:"required"`
	ReviewerID  uuid.UUID `json:"reviewer_id" validate:"required"`
	RequestedBy uuid.UUID `json:"requested_by" validate:"required"`
}

// DecideApprovalRequest records a reviewer decision on a pending approval
type DecideApprovalRequest struct {
	ApprovalID       uuid.UUID      `json:"approval_id" validate:"required"`
	ReviewerID       uuid.UUID      `json:"reviewer_id" validate:"required"`
	Status           ApprovalStatus `json:"status" validate:"required,oneof=approved rejected changes_requested"`
	DecisionNotes    *string        `json:"decision_notes,omitempty"`
	RequestedChanges []string       `json:"requested_changes,omitempty"`
}
