package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/document"
)

// VersionStatus is the review lifecycle state of a content version
type VersionStatus string

const (
	// VersionStatusDraft is a freshly created, unsubmitted version
	VersionStatusDraft VersionStatus = "draft"
	// VersionStatusInReview means the version is awaiting reviewer decisions
	VersionStatusInReview VersionStatus = "in_review"
	// VersionStatusApproved means a reviewer signed the version off
	VersionStatusApproved VersionStatus = "approved"
	// VersionStatusRejected means a reviewer rejected the version
	VersionStatusRejected VersionStatus = "rejected"
	// VersionStatusChangesRequested means the author must revise and resubmit
	VersionStatusChangesRequested VersionStatus = "changes_requested"
	// VersionStatusPublished is the live version of the entity
	VersionStatusPublished VersionStatus = "published"
	// VersionStatusArchived is retired content kept for history
	VersionStatusArchived VersionStatus = "archived"
)

// ContentVersion is one snapshot of a content entity on a branch
type ContentVersion struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	TenantID        uuid.UUID      `db:"tenant_id" json:"tenant_id"`
	EntityType      string         `db:"entity_type" json:"entity_type"`
	EntityID        uuid.UUID      `db:"entity_id" json:"entity_id"`
	BranchID        uuid.UUID      `db:"branch_id" json:"branch_id"`
	BranchName      string         `db:"branch_name" json:"branch_name"`
	VersionNumber   int            `db:"version_number" json:"version_number"`
	ContentData     document.Value `db:"content_data" json:"content_data"`
	ContentHash     string         `db:"content_hash" json:"content_hash"`
	Status          VersionStatus  `db:"status" json:"status"`
	IsCurrent       bool           `db:"is_current" json:"is_current"`
	IsLatest        bool           `db:"is_latest" json:"is_latest"`
	ParentVersionID *uuid.UUID     `db:"parent_version_id" json:"parent_version_id,omitempty"`
	CreatedBy       uuid.UUID      `db:"created_by" json:"created_by"`
	ChangeSummary   *string        `db:"change_summary" json:"change_summary,omitempty"`
	ReviewedBy      *uuid.UUID     `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes     *string        `db:"review_notes" json:"review_notes,omitempty"`
	ContentSize     int            `db:"content_size_bytes" json:"content_size_bytes"`
	WordCount       int            `db:"word_count" json:"word_count"`
	PublishedAt     *time.Time     `db:"published_at" json:"published_at,omitempty"`
	ArchivedAt      *time.Time     `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (ContentVersion) TableName() string {
	return "content_versions"
}

// CreateVersionRequest is the request for writing a new version of an entity.
// Branch defaults to the entity's default branch when empty.
type CreateVersionRequest struct {
	EntityType    string         `json:"entity_type" validate:"required"`
	EntityID      uuid.UUID      `json:"entity_id" validate:"required"`
	BranchName    string         `json:"branch_name,omitempty"`
	ContentData   document.Value `json:"content_data"`
	ChangeSummary *string        `json:"change_summary,omitempty"`
	CreatedBy     uuid.UUID      `json:"created_by" validate:"required"`
}

// VersionListResponse is the response for listing versions
type VersionListResponse struct {
	Items      []ContentVersion `json:"items"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
}
