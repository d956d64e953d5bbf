// Package branches implements branch lifecycle: creation, lookup, flag
// updates, and the implicit default branch every entity gets with its first
// version.
package branches

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/internal/repositories"
	branchrepo "github.com/Ramsey-B/sage/internal/repositories/branches"
	"github.com/Ramsey-B/sage/internal/repositories/versions"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Manager handles branch lifecycle for content entities
type Manager struct {
	logger      ectologger.Logger
	branchRepo  *branchrepo.Repository
	versionRepo *versions.Repository
}

// NewManager creates a new branch manager
func NewManager(logger ectologger.Logger, branchRepo *branchrepo.Repository, versionRepo *versions.Repository) *Manager {
	return &Manager{
		logger:      logger,
		branchRepo:  branchRepo,
		versionRepo: versionRepo,
	}
}

// CreateBranch creates a named branch on an entity. The parent branch and the
// version the branch starts from must belong to the same entity; the branch
// point defaults to the parent's head when omitted.
func (m *Manager) CreateBranch(ctx context.Context, req models.CreateBranchRequest) (*models.VersionBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Manager.CreateBranch")
	defer span.End()

	branch := &models.VersionBranch{
		EntityType:            req.EntityType,
		EntityID:              req.EntityID,
		Name:                  req.Name,
		Description:           req.Description,
		ParentBranchID:        req.ParentBranchID,
		BranchedFromVersionID: req.BranchedFromVersionID,
		IsActive:              true,
		CreatedBy:             req.CreatedBy,
	}

	if req.ParentBranchID != nil {
		parent, err := m.branchRepo.GetByID(ctx, *req.ParentBranchID)
		if err != nil {
			return nil, err
		}
		if parent.EntityType != req.EntityType || parent.EntityID != req.EntityID {
			return nil, repositories.InvalidState("parent branch %s belongs to a different entity", parent.ID)
		}

		if branch.BranchedFromVersionID == nil {
			head, err := m.versionRepo.GetHead(ctx, parent.ID)
			if err != nil {
				return nil, err
			}
			if head != nil {
				branch.BranchedFromVersionID = &head.ID
			}
		}
	}

	if branch.BranchedFromVersionID != nil {
		from, err := m.versionRepo.GetByID(ctx, *branch.BranchedFromVersionID)
		if err != nil {
			return nil, err
		}
		if from.EntityType != req.EntityType || from.EntityID != req.EntityID {
			return nil, repositories.InvalidState("version %s belongs to a different entity", from.ID)
		}
	}

	if err := m.branchRepo.Create(ctx, branch); err != nil {
		return nil, err
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"branch_id":   branch.ID,
		"entity_type": branch.EntityType,
		"entity_id":   branch.EntityID,
		"name":        branch.Name,
	}).Info("Created branch")
	return branch, nil
}

// GetByID retrieves a branch by id
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*models.VersionBranch, error) {
	return m.branchRepo.GetByID(ctx, id)
}

// GetByName retrieves a branch by name on an entity
func (m *Manager) GetByName(ctx context.Context, entityType string, entityID uuid.UUID, name string) (*models.VersionBranch, error) {
	return m.branchRepo.GetByName(ctx, entityType, entityID, name)
}

// List returns an entity's branches
func (m *Manager) List(ctx context.Context, entityType string, entityID uuid.UUID, includeInactive bool) ([]models.VersionBranch, error) {
	return m.branchRepo.List(ctx, entityType, entityID, includeInactive)
}

// EnsureDefaultBranch returns the entity's default branch, creating "main"
// when the entity has none. Called implicitly before an entity's first
// version write.
func (m *Manager) EnsureDefaultBranch(ctx context.Context, entityType string, entityID uuid.UUID, createdBy uuid.UUID) (*models.VersionBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Manager.EnsureDefaultBranch")
	defer span.End()

	return m.branchRepo.EnsureDefault(ctx, entityType, entityID, createdBy)
}

// UpdateBranch applies flag and description changes. The default branch
// cannot be deactivated.
func (m *Manager) UpdateBranch(ctx context.Context, id uuid.UUID, req models.UpdateBranchRequest) (*models.VersionBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Manager.UpdateBranch")
	defer span.End()

	branch, err := m.branchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.IsActive != nil && !*req.IsActive && branch.IsDefault {
		return nil, repositories.InvalidState("the default branch %q cannot be deactivated", branch.Name)
	}

	return m.branchRepo.Update(ctx, id, req)
}

// MarkMerged records that the branch was merged into another branch.
func (m *Manager) MarkMerged(ctx context.Context, id, mergedInto uuid.UUID) error {
	return m.branchRepo.MarkMerged(ctx, id, mergedInto)
}
