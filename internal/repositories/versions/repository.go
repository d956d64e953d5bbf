// Package versions persists content versions and maintains the per-branch
// numbering and head/current pointer invariants.
package versions

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

const versionsTable = "content_versions"

// numberRetryAttempts bounds the retry loop for the version-number race.
// Two writers can read the same MAX(version_number); the unique constraint
// rejects the loser, who re-reads and tries again.
const numberRetryAttempts = 3

var versionStruct = database.NewStruct(new(models.ContentVersion))

// Repository handles content version persistence
type Repository struct {
	*repositories.Repository
}

// NewRepository creates a new content version repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{Repository: repositories.NewRepository(db, logger)}
}

// Create inserts a new version on a branch, allocating the next
// version_number and flipping the branch's is_latest pointer in one
// transaction. When ctx already carries a transaction the insert joins it and
// a numbering collision surfaces immediately as Conflict; when the repository
// owns the transaction the allocation is retried a bounded number of times.
func (r *Repository) Create(ctx context.Context, version *models.ContentVersion) error {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.Create")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	version.TenantID = tenantID

	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}

	attempts := numberRetryAttempts
	if database.HasTx(ctx) {
		attempts = 1 // the caller owns the transaction; a retry would replay its other writes
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = r.createOnce(ctx, version)
		if lastErr == nil {
			return nil
		}
		if !repositories.IsUniqueViolation(lastErr) {
			return lastErr
		}
	}

	r.Logger().WithContext(ctx).WithError(lastErr).WithFields(map[string]any{
		"entity_type": version.EntityType,
		"entity_id":   version.EntityID,
		"branch_id":   version.BranchID,
	}).Error("version number allocation exhausted retries")
	return repositories.Conflict("version number contention on branch %s, retry the write", version.BranchName)
}

// createOnce performs one allocation attempt. Unique violations are returned
// raw so Create can decide whether to retry.
func (r *Repository) createOnce(ctx context.Context, version *models.ContentVersion) error {
	ctx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create version")
	}
	defer tx.Rollback(ctx)

	log := r.Logger().WithContext(ctx).WithFields(map[string]any{
		"entity_type": version.EntityType,
		"entity_id":   version.EntityID,
		"branch_id":   version.BranchID,
	})

	next, err := r.nextVersionNumber(ctx, tx, version.TenantID, version.BranchID)
	if err != nil {
		log.WithError(err).Error("failed to allocate version number")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create version")
	}
	version.VersionNumber = next

	ub := database.NewUpdateBuilder()
	ub.Update(versionsTable).
		Set(
			ub.Assign("is_latest", false),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", version.TenantID),
			ub.Equal("branch_id", version.BranchID),
			ub.Equal("is_latest", true),
		)
	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("failed to clear branch head pointer")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create version")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(versionsTable).
		Cols("id", "tenant_id", "entity_type", "entity_id", "branch_id", "branch_name",
			"version_number", "content_data", "content_hash", "status", "is_current", "is_latest",
			"parent_version_id", "created_by", "change_summary", "reviewed_by", "reviewed_at",
			"review_notes", "content_size_bytes", "word_count", "published_at", "archived_at",
			"created_at", "updated_at").
		Values(version.ID, version.TenantID, version.EntityType, version.EntityID, version.BranchID, version.BranchName,
			version.VersionNumber, version.ContentData, version.ContentHash, version.Status, false, true,
			version.ParentVersionID, version.CreatedBy, version.ChangeSummary, nil, nil,
			nil, version.ContentSize, version.WordCount, nil, nil,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args = ib.Build()
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&version.CreatedAt, &version.UpdatedAt); err != nil {
		if repositories.IsUniqueViolation(err) {
			return err // raw, so the caller can retry the allocation
		}
		log.WithError(err).Error("failed to insert version")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create version")
	}

	version.IsCurrent = false
	version.IsLatest = true

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create version")
	}

	log.WithFields(map[string]any{"version_id": version.ID, "version_number": version.VersionNumber}).Debug("Created content version")
	return nil
}

// nextVersionNumber returns MAX(version_number)+1 for the branch inside the
// given transaction. The unique constraint on (tenant_id, branch_id,
// version_number) makes concurrent allocations safe.
func (r *Repository) nextVersionNumber(ctx context.Context, tx database.Tx, tenantID, branchID uuid.UUID) (int, error) {
	sb := database.NewSelectBuilder()
	sb.Select("COALESCE(MAX(version_number), 0) + 1")
	sb.From(versionsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("branch_id", branchID))

	query, args := sb.Build()
	var next int
	if err := tx.GetContext(ctx, &next, query, args...); err != nil {
		return 0, err
	}
	return next, nil
}

// GetNextVersionNumber reports the number the next version on the branch will
// receive. Advisory: the authoritative allocation happens inside Create.
func (r *Repository) GetNextVersionNumber(ctx context.Context, branchID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.GetNextVersionNumber")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return 0, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("COALESCE(MAX(version_number), 0) + 1")
	sb.From(versionsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("branch_id", branchID))

	query, args := sb.Build()
	var next int
	if err := r.DB().GetContext(ctx, &next, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": branchID}).Error("failed to get next version number")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get next version number")
	}
	return next, nil
}

// GetByID retrieves a version by id (tenant-scoped)
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.GetByID")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := versionStruct.SelectFrom(versionsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var version models.ContentVersion
	err = r.DB().GetContext(ctx, &version, query, args...)
	if repositories.IsNoRows(err) {
		return nil, repositories.NotFound("version %s does not exist", id)
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"version_id": id}).Error("failed to get version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get version")
	}
	return &version, nil
}

// GetByNumber retrieves a version by its number on a branch
func (r *Repository) GetByNumber(ctx context.Context, branchID uuid.UUID, number int) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.GetByNumber")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := versionStruct.SelectFrom(versionsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("branch_id", branchID), sb.Equal("version_number", number))

	query, args := sb.Build()
	var version models.ContentVersion
	err = r.DB().GetContext(ctx, &version, query, args...)
	if repositories.IsNoRows(err) {
		return nil, repositories.NotFound("version %d does not exist on branch %s", number, branchID)
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": branchID, "version_number": number}).Error("failed to get version by number")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get version")
	}
	return &version, nil
}

// GetHead retrieves the branch's highest-numbered version. Returns nil when
// the branch has no versions yet.
func (r *Repository) GetHead(ctx context.Context, branchID uuid.UUID) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.GetHead")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := versionStruct.SelectFrom(versionsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("branch_id", branchID))
	sb.OrderBy("version_number DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var version models.ContentVersion
	err = r.DB().GetContext(ctx, &version, query, args...)
	if repositories.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": branchID}).Error("failed to get branch head")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get branch head")
	}
	return &version, nil
}

// GetCurrent retrieves the entity's published current version. Returns nil
// when nothing is published.
func (r *Repository) GetCurrent(ctx context.Context, entityType string, entityID uuid.UUID) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.GetCurrent")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := versionStruct.SelectFrom(versionsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
		sb.Equal("is_current", true),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var version models.ContentVersion
	err = r.DB().GetContext(ctx, &version, query, args...)
	if repositories.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to get current version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get current version")
	}
	return &version, nil
}

// List returns a page of the entity's versions, newest first, optionally
// restricted to one branch.
func (r *Repository) List(ctx context.Context, entityType string, entityID uuid.UUID, branchID *uuid.UUID, page, pageSize int) (*models.VersionListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.List")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	countSb := database.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(versionsTable)
	countWhere := []string{
		countSb.Equal("tenant_id", tenantID),
		countSb.Equal("entity_type", entityType),
		countSb.Equal("entity_id", entityID),
	}
	if branchID != nil {
		countWhere = append(countWhere, countSb.Equal("branch_id", *branchID))
	}
	countSb.Where(countWhere...)

	query, args := countSb.Build()
	var total int
	if err := r.DB().GetContext(ctx, &total, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to count versions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list versions")
	}

	sb := versionStruct.SelectFrom(versionsTable)
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	}
	if branchID != nil {
		where = append(where, sb.Equal("branch_id", *branchID))
	}
	sb.Where(where...)
	sb.OrderBy("version_number DESC", "created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args = sb.Build()
	items := []models.ContentVersion{}
	if err := r.DB().SelectContext(ctx, &items, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to list versions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list versions")
	}

	return &models.VersionListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// SetStatus transitions a version's status, guarded by the set of statuses
// the transition is legal from. Zero rows affected means the version either
// does not exist (NotFound) or sits in a state the transition is not legal
// from (InvalidState); a reread disambiguates.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, to models.VersionStatus, from ...models.VersionStatus) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.SetStatus")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	fromValues := make([]any, len(from))
	for i, s := range from {
		fromValues[i] = s
	}

	ub := database.NewUpdateBuilder()
	ub.Update(versionsTable).
		Set(
			ub.Assign("status", to),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", id),
			ub.In("status", fromValues...),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"version_id": id, "to": to}).Error("failed to set version status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update version status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"version_id": id}).Error("failed to set version status")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update version status")
	}
	if rows == 0 {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, repositories.InvalidState("version %s is %s, cannot transition to %s", id, current.Status, to)
	}

	return r.GetByID(ctx, id)
}

// SetReview stamps reviewer metadata alongside a decision-driven status change.
func (r *Repository) SetReview(ctx context.Context, id uuid.UUID, status models.VersionStatus, reviewerID uuid.UUID, notes *string) error {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.SetReview")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(versionsTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("reviewed_by", reviewerID),
			ub.Assign("reviewed_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("review_notes", notes),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", id),
			ub.Equal("status", models.VersionStatusInReview),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"version_id": id, "status": status}).Error("failed to record review decision")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record review decision")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"version_id": id}).Error("failed to record review decision")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record review decision")
	}
	if rows == 0 {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		return repositories.InvalidState("version %s is %s, not in review", id, current.Status)
	}
	return nil
}

// Publish flips the entity's current pointer to the given approved version in
// one transaction: the prior published version is archived and loses
// is_current, the new one gains it. The approved-status guard keeps two
// concurrent publishes of the same version from both succeeding.
func (r *Repository) Publish(ctx context.Context, id uuid.UUID) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.Publish")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	version, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ctx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to publish version")
	}
	defer tx.Rollback(ctx)

	log := r.Logger().WithContext(ctx).WithFields(map[string]any{
		"version_id":  id,
		"entity_type": version.EntityType,
		"entity_id":   version.EntityID,
	})

	archive := database.NewUpdateBuilder()
	archive.Update(versionsTable).
		Set(
			archive.Assign("is_current", false),
			archive.Assign("status", models.VersionStatusArchived),
			archive.Assign("archived_at", sqlbuilder.Raw("NOW()")),
			archive.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			archive.Equal("tenant_id", tenantID),
			archive.Equal("entity_type", version.EntityType),
			archive.Equal("entity_id", version.EntityID),
			archive.Equal("is_current", true),
			archive.NotEqual("id", id),
		)
	query, args := archive.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("failed to archive prior published version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to publish version")
	}

	promote := database.NewUpdateBuilder()
	promote.Update(versionsTable).
		Set(
			promote.Assign("is_current", true),
			promote.Assign("status", models.VersionStatusPublished),
			promote.Assign("published_at", sqlbuilder.Raw("NOW()")),
			promote.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			promote.Equal("tenant_id", tenantID),
			promote.Equal("id", id),
			promote.Equal("status", models.VersionStatusApproved),
		)
	query, args = promote.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("failed to promote version to published")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to publish version")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		log.WithError(err).Error("failed to promote version to published")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to publish version")
	}
	if rows == 0 {
		return nil, repositories.InvalidState("version %s is %s, only approved versions can be published", id, version.Status)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to publish version")
	}

	log.Info("Published content version")
	return r.GetByID(ctx, id)
}

// Archive retires a version. The current published version cannot be
// archived directly; publishing a successor archives it.
func (r *Repository) Archive(ctx context.Context, id uuid.UUID) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.Archive")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(versionsTable).
		Set(
			ub.Assign("status", models.VersionStatusArchived),
			ub.Assign("archived_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", id),
			ub.Equal("is_current", false),
			ub.NotEqual("status", models.VersionStatusArchived),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"version_id": id}).Error("failed to archive version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to archive version")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"version_id": id}).Error("failed to archive version")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to archive version")
	}
	if rows == 0 {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.IsCurrent {
			return nil, repositories.InvalidState("version %s is the current published version and cannot be archived", id)
		}
		return nil, repositories.InvalidState("version %s is already archived", id)
	}

	return r.GetByID(ctx, id)
}

// CountByEntity returns the entity's total version count across branches.
func (r *Repository) CountByEntity(ctx context.Context, entityType string, entityID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.CountByEntity")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return 0, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(versionsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	)

	query, args := sb.Build()
	var count int
	if err := r.DB().GetContext(ctx, &count, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to count versions")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count versions")
	}
	return count, nil
}

// Recent returns the entity's most recent versions across branches.
func (r *Repository) Recent(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.Recent")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	if limit < 1 || limit > 100 {
		limit = 10
	}

	sb := versionStruct.SelectFrom(versionsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
	)
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	items := []models.ContentVersion{}
	if err := r.DB().SelectContext(ctx, &items, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to list recent versions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list recent versions")
	}
	return items, nil
}

// BranchSummaries aggregates per-branch version counts and head numbers for
// the history view.
func (r *Repository) BranchSummaries(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.BranchSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.Repository.BranchSummaries")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT b.id AS branch_id,
		       b.name,
		       b.is_default,
		       b.is_active,
		       COUNT(v.id) AS version_count,
		       COALESCE(MAX(v.version_number), 0) AS head_number
		FROM version_branches b
		LEFT JOIN content_versions v
		       ON v.branch_id = b.id AND v.tenant_id = b.tenant_id
		WHERE b.tenant_id = $1
		  AND b.entity_type = $2
		  AND b.entity_id = $3
		GROUP BY b.id, b.name, b.is_default, b.is_active
		ORDER BY b.is_default DESC, b.created_at ASC
	`

	summaries := []models.BranchSummary{}
	if err := r.DB().SelectContext(ctx, &summaries, query, tenantID, entityType, entityID); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to aggregate branch summaries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate branch summaries")
	}
	return summaries, nil
}
