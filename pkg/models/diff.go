package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/document"
)

// DiffOperation classifies one structural change between two documents
type DiffOperation string

const (
	// DiffOpAdd is a path present in the target but not the source
	DiffOpAdd DiffOperation = "add"
	// DiffOpModify is a path present in both with different values
	DiffOpModify DiffOperation = "modify"
	// DiffOpDelete is a path present in the source but not the target
	DiffOpDelete DiffOperation = "delete"
)

// DiffChange is one ordered change record in a version diff
type DiffChange struct {
	Path   string          `json:"path"`
	Op     DiffOperation   `json:"op"`
	Before *document.Value `json:"before,omitempty"`
	After  *document.Value `json:"after,omitempty"`
}

// VersionDiff is a cached structural comparison between two versions
type VersionDiff struct {
	ID                 uuid.UUID                    `db:"id" json:"id"`
	TenantID           uuid.UUID                    `db:"tenant_id" json:"tenant_id"`
	SourceVersionID    uuid.UUID                    `db:"source_version_id" json:"source_version_id"`
	TargetVersionID    uuid.UUID                    `db:"target_version_id" json:"target_version_id"`
	Changes            database.JSONB[[]DiffChange] `db:"changes" json:"changes"`
	AdditionsCount     int                          `db:"additions_count" json:"additions_count"`
	ModificationsCount int                          `db:"modifications_count" json:"modifications_count"`
	DeletionsCount     int                          `db:"deletions_count" json:"deletions_count"`
	WordDelta          int                          `db:"word_delta" json:"word_delta"`
	ComputedAt         time.Time                    `db:"computed_at" json:"computed_at"`
	CreatedAt          time.Time                    `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (VersionDiff) TableName() string {
	return "version_diffs"
}
