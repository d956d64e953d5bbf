package models

import "github.com/google/uuid"

// BranchSummary is one branch's contribution to an entity's history aggregate
type BranchSummary struct {
	BranchID     uuid.UUID `db:"branch_id" json:"branch_id"`
	Name         string    `db:"name" json:"name"`
	IsDefault    bool      `db:"is_default" json:"is_default"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	VersionCount int       `db:"version_count" json:"version_count"`
	HeadNumber   int       `db:"head_number" json:"head_number"`
}

// VersionHistory is the derived per-entity aggregate. It is computed on
// demand and never persisted.
type VersionHistory struct {
	EntityType     string           `json:"entity_type"`
	EntityID       uuid.UUID        `json:"entity_id"`
	TotalVersions  int              `json:"total_versions"`
	TotalBranches  int              `json:"total_branches"`
	Branches       []BranchSummary  `json:"branches"`
	CurrentVersion *ContentVersion  `json:"current_version,omitempty"`
	RecentVersions []ContentVersion `json:"recent_versions"`
}
