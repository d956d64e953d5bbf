package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/document"
)

// MergeStrategyType selects how two branches are reconciled
type MergeStrategyType string

const (
	// MergeStrategyFastForward advances the target when its history is a strict prefix of the source's
	MergeStrategyFastForward MergeStrategyType = "fast_forward"
	// MergeStrategyThreeWay merges both branches' changes from their common ancestor
	MergeStrategyThreeWay MergeStrategyType = "three_way"
	// MergeStrategyManual surfaces conflicts for the caller to resolve before completion
	MergeStrategyManual MergeStrategyType = "manual"
	// MergeStrategyOurs resolves every conflicting path with the target branch's value
	MergeStrategyOurs MergeStrategyType = "ours"
	// MergeStrategyTheirs resolves every conflicting path with the source branch's value
	MergeStrategyTheirs MergeStrategyType = "theirs"
)

// MergeStatus is the lifecycle state of a merge record
type MergeStatus string

const (
	// MergeStatusPending means conflicts are awaiting manual resolution
	MergeStatusPending MergeStatus = "pending"
	// MergeStatusCompleted means the result version exists and the record is frozen
	MergeStatusCompleted MergeStatus = "completed"
	// MergeStatusFailed means the merge was abandoned
	MergeStatusFailed MergeStatus = "failed"
)

// MergeConflict is a path changed differently on both diverging branches
type MergeConflict struct {
	Path          string            `json:"path"`
	Base          *document.Value   `json:"base,omitempty"`
	Source        *document.Value   `json:"source,omitempty"`
	Target        *document.Value   `json:"target,omitempty"`
	Resolution    MergeStrategyType `json:"resolution,omitempty"`
	ResolvedValue *document.Value   `json:"resolved_value,omitempty"`
}

// VersionMerge records one reconciliation of a source branch into a target branch
type VersionMerge struct {
	ID                uuid.UUID                       `db:"id" json:"id"`
	TenantID          uuid.UUID                       `db:"tenant_id" json:"tenant_id"`
	SourceBranchID    uuid.UUID                       `db:"source_branch_id" json:"source_branch_id"`
	TargetBranchID    uuid.UUID                       `db:"target_branch_id" json:"target_branch_id"`
	SourceVersionID   uuid.UUID                       `db:"source_version_id" json:"source_version_id"`
	TargetVersionID   *uuid.UUID                      `db:"target_version_id" json:"target_version_id,omitempty"`
	ResultVersionID   *uuid.UUID                      `db:"result_version_id" json:"result_version_id,omitempty"`
	Strategy          MergeStrategyType               `db:"strategy" json:"strategy"`
	Status            MergeStatus                     `db:"status" json:"status"`
	IsComplete        bool                            `db:"is_complete" json:"is_complete"`
	HadConflicts      bool                            `db:"had_conflicts" json:"had_conflicts"`
	ConflictsResolved bool                            `db:"conflicts_resolved" json:"conflicts_resolved"`
	ConflictDetails   database.JSONB[[]MergeConflict] `db:"conflict_details" json:"conflict_details"`
	MergedBy          uuid.UUID                       `db:"merged_by" json:"merged_by"`
	CompletedAt       *time.Time                      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt         time.Time                       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                       `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (VersionMerge) TableName() string {
	return "version_merges"
}

// MergeRequest asks for a source branch to be merged into a target branch
type MergeRequest struct {
	EntityType    string            `json:"entity_type" validate:"required"`
	EntityID      uuid.UUID         `json:"entity_id" validate:"required"`
	SourceBranch  string            `json:"source_branch" validate:"required"`
	TargetBranch  string            `json:"target_branch" validate:"required"`
	Strategy      MergeStrategyType `json:"strategy" validate:"required,oneof=fast_forward three_way manual ours theirs"`
	MergedBy      uuid.UUID         `json:"merged_by" validate:"required"`
	ChangeSummary *string           `json:"change_summary,omitempty"`
}

// CompleteMergeRequest supplies manual resolutions for a pending merge,
// keyed by conflicting path
type CompleteMergeRequest struct {
	MergeID     uuid.UUID                 `json:"merge_id" validate:"required"`
	Resolutions map[string]document.Value `json:"resolutions" validate:"required"`
	CompletedBy uuid.UUID                 `json:"completed_by" validate:"required"`
}
