// Package branches persists version branches and enforces the per-entity
// naming and single-default invariants.
package branches

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/internal/repositories"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const branchesTable = "version_branches"

var branchStruct = database.NewStruct(new(models.VersionBranch))

// Repository handles version branch persistence
type Repository struct {
	*repositories.Repository
}

// NewRepository creates a new branch repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{Repository: repositories.NewRepository(db, logger)}
}

// Create inserts a new branch. A name collision within the entity surfaces as
// Conflict via the unique constraint.
func (r *Repository) Create(ctx context.Context, branch *models.VersionBranch) error {
	ctx, span := tracing.StartSpan(ctx, "branches.Repository.Create")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	branch.TenantID = tenantID

	if branch.ID == uuid.Nil {
		branch.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(branchesTable).
		Cols("id", "tenant_id", "entity_type", "entity_id", "name", "description",
			"parent_branch_id", "branched_from_version_id", "is_active", "is_default",
			"is_protected", "is_merged", "merged_into_branch_id", "merged_at",
			"created_by", "created_at", "updated_at").
		Values(branch.ID, branch.TenantID, branch.EntityType, branch.EntityID, branch.Name, branch.Description,
			branch.ParentBranchID, branch.BranchedFromVersionID, branch.IsActive, branch.IsDefault,
			branch.IsProtected, false, nil, nil,
			branch.CreatedBy, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&branch.CreatedAt, &branch.UpdatedAt)
	if err != nil {
		if repositories.IsUniqueViolation(err) {
			return repositories.Conflict("branch %q already exists for %s %s", branch.Name, branch.EntityType, branch.EntityID)
		}
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": branch.EntityType,
			"entity_id":   branch.EntityID,
			"name":        branch.Name,
		}).Error("failed to create branch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create branch")
	}

	r.Logger().WithContext(ctx).WithFields(map[string]any{"branch_id": branch.ID, "name": branch.Name}).Debug("Created branch")
	return nil
}

// GetByID retrieves a branch by id (tenant-scoped)
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.VersionBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Repository.GetByID")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := branchStruct.SelectFrom(branchesTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var branch models.VersionBranch
	err = r.DB().GetContext(ctx, &branch, query, args...)
	if repositories.IsNoRows(err) {
		return nil, repositories.NotFound("branch %s does not exist", id)
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": id}).Error("failed to get branch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get branch")
	}
	return &branch, nil
}

// GetByName retrieves a branch by its name on an entity
func (r *Repository) GetByName(ctx context.Context, entityType string, entityID uuid.UUID, name string) (*models.VersionBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Repository.GetByName")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := branchStruct.SelectFrom(branchesTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
		sb.Equal("name", name),
	)

	query, args := sb.Build()
	var branch models.VersionBranch
	err = r.DB().GetContext(ctx, &branch, query, args...)
	if repositories.IsNoRows(err) {
		return nil, repositories.NotFound("branch %q does not exist for %s %s", name, entityType, entityID)
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID, "name": name}).Error("failed to get branch by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get branch")
	}
	return &branch, nil
}

// GetDefault retrieves the entity's default branch. Returns nil when the
// entity has no branches yet.
func (r *Repository) GetDefault(ctx context.Context, entityType string, entityID uuid.UUID) (*models.VersionBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Repository.GetDefault")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := branchStruct.SelectFrom(branchesTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
		sb.Equal("is_default", true),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var branch models.VersionBranch
	err = r.DB().GetContext(ctx, &branch, query, args...)
	if repositories.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to get default branch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get default branch")
	}
	return &branch, nil
}

// EnsureDefault returns the entity's default branch, creating "main"
// atomically when none exists. Two concurrent first writers race on the
// partial unique index; the loser's insert is a no-op and the reread returns
// the winner's row.
func (r *Repository) EnsureDefault(ctx context.Context, entityType string, entityID uuid.UUID, createdBy uuid.UUID) (*models.VersionBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Repository.EnsureDefault")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := r.GetDefault(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(branchesTable).
		Cols("id", "tenant_id", "entity_type", "entity_id", "name", "description",
			"parent_branch_id", "branched_from_version_id", "is_active", "is_default",
			"is_protected", "is_merged", "merged_into_branch_id", "merged_at",
			"created_by", "created_at", "updated_at").
		Values(uuid.New(), tenantID, entityType, entityID, models.DefaultBranchName, nil,
			nil, nil, true, true,
			false, false, nil, nil,
			createdBy, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to create default branch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create default branch")
	}

	branch, err := r.GetDefault(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if branch == nil {
		r.Logger().WithContext(ctx).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("default branch missing after ensure")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create default branch")
	}
	return branch, nil
}

// List returns the entity's branches, default first. Inactive branches are
// excluded unless requested.
func (r *Repository) List(ctx context.Context, entityType string, entityID uuid.UUID, includeInactive bool) ([]models.VersionBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Repository.List")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := branchStruct.SelectFrom(branchesTable)
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	}
	if !includeInactive {
		where = append(where, sb.Equal("is_active", true))
	}
	sb.Where(where...)
	sb.OrderBy("is_default DESC", "created_at ASC")

	query, args := sb.Build()
	branches := []models.VersionBranch{}
	if err := r.DB().SelectContext(ctx, &branches, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to list branches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list branches")
	}
	return branches, nil
}

// CountByEntity returns the entity's branch count.
func (r *Repository) CountByEntity(ctx context.Context, entityType string, entityID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Repository.CountByEntity")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return 0, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(branchesTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	)

	query, args := sb.Build()
	var count int
	if err := r.DB().GetContext(ctx, &count, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to count branches")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count branches")
	}
	return count, nil
}

// Update applies the non-nil fields of req to the branch.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, req models.UpdateBranchRequest) (*models.VersionBranch, error) {
	ctx, span := tracing.StartSpan(ctx, "branches.Repository.Update")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	ub := database.NewUpdateBuilder()
	assignments := []string{ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))}
	if req.Description != nil {
		assignments = append(assignments, ub.Assign("description", *req.Description))
	}
	if req.IsActive != nil {
		assignments = append(assignments, ub.Assign("is_active", *req.IsActive))
	}
	if req.IsProtected != nil {
		assignments = append(assignments, ub.Assign("is_protected", *req.IsProtected))
	}

	ub.Update(branchesTable).
		Set(assignments...).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": id}).Error("failed to update branch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update branch")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": id}).Error("failed to update branch")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update branch")
	}
	if rows == 0 {
		return nil, repositories.NotFound("branch %s does not exist", id)
	}

	return r.GetByID(ctx, id)
}

// MarkMerged records that the branch's line was merged into another branch.
func (r *Repository) MarkMerged(ctx context.Context, id uuid.UUID, mergedInto uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "branches.Repository.MarkMerged")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(branchesTable).
		Set(
			ub.Assign("is_merged", true),
			ub.Assign("merged_into_branch_id", mergedInto),
			ub.Assign("merged_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("tenant_id", tenantID), ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": id}).Error("failed to mark branch merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark branch merged")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": id}).Error("failed to mark branch merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark branch merged")
	}
	if rows == 0 {
		return repositories.NotFound("branch %s does not exist", id)
	}
	return nil
}
