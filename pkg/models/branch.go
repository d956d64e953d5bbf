package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultBranchName is the branch implicitly created with an entity's first version
const DefaultBranchName = "main"

// VersionBranch is a named, independent version line for one content entity
type VersionBranch struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	TenantID              uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	EntityType            string     `db:"entity_type" json:"entity_type"`
	EntityID              uuid.UUID  `db:"entity_id" json:"entity_id"`
	Name                  string     `db:"name" json:"name"`
	Description           *string    `db:"description" json:"description,omitempty"`
	ParentBranchID        *uuid.UUID `db:"parent_branch_id" json:"parent_branch_id,omitempty"`
	BranchedFromVersionID *uuid.UUID `db:"branched_from_version_id" json:"branched_from_version_id,omitempty"`
	IsActive              bool       `db:"is_active" json:"is_active"`
	IsDefault             bool       `db:"is_default" json:"is_default"`
	IsProtected           bool       `db:"is_protected" json:"is_protected"`
	IsMerged              bool       `db:"is_merged" json:"is_merged"`
	MergedIntoBranchID    *uuid.UUID `db:"merged_into_branch_id" json:"merged_into_branch_id,omitempty"`
	MergedAt              *time.Time `db:"merged_at" json:"merged_at,omitempty"`
	CreatedBy             uuid.UUID  `db:"created_by" json:"created_by"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (VersionBranch) TableName() string {
	return "version_branches"
}

// CreateBranchRequest is the request for creating a branch on an entity
type CreateBranchRequest struct {
	EntityType            string     `json:"entity_type" validate:"required"`
	EntityID              uuid.UUID  `json:"entity_id" validate:"required"`
	Name                  string     `json:"name" validate:"required"`
	Description           *string    `json:"description,omitempty"`
	ParentBranchID        *uuid.UUID `json:"parent_branch_id,omitempty"`
	BranchedFromVersionID *uuid.UUID `json:"branched_from_version_id,omitempty"`
	CreatedBy             uuid.UUID  `json:"created_by" validate:"required"`
}

// UpdateBranchRequest toggles branch flags. Nil fields are left unchanged.
type UpdateBranchRequest struct {
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsProtected *bool   `json:"is_protected,omitempty"`
}
