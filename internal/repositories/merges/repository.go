// Package merges persists branch merge records. Completed merges are
// append-only: every mutation is guarded by is_complete = FALSE.
package merges

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

const mergesTable = "version_merges"

var mergeStruct = database.NewStruct(new(models.VersionMerge))

// Repository handles version merge persistence
type Repository struct {
	*repositories.Repository
}

// NewRepository creates a new merge repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{Repository: repositories.NewRepository(db, logger)}
}

// Create inserts a merge record. Callers that also create the result version
// run both inside one ambient transaction; the insert joins it via GetTx.
func (r *Repository) Create(ctx context.Context, merge *models.VersionMerge) error {
	ctx, span := tracing.StartSpan(ctx, "merges.Repository.Create")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	merge.TenantID = tenantID

	if merge.ID == uuid.Nil {
		merge.ID = uuid.New()
	}

	ctx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge record")
	}
	defer tx.Rollback(ctx)

	var completedAt any
	if merge.IsComplete {
		completedAt = sqlbuilder.Raw("NOW()")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(mergesTable).
		Cols("id", "tenant_id", "source_branch_id", "target_branch_id", "source_version_id",
			"target_version_id", "result_version_id", "strategy", "status", "is_complete",
			"had_conflicts", "conflicts_resolved", "conflict_details", "merged_by",
			"completed_at", "created_at", "updated_at").
		Values(merge.ID, merge.TenantID, merge.SourceBranchID, merge.TargetBranchID, merge.SourceVersionID,
			merge.TargetVersionID, merge.ResultVersionID, merge.Strategy, merge.Status, merge.IsComplete,
			merge.HadConflicts, merge.ConflictsResolved, merge.ConflictDetails, merge.MergedBy,
			completedAt, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("completed_at", "created_at", "updated_at")

	query, args := ib.Build()
	err = tx.QueryRowContext(ctx, query, args...).Scan(&merge.CompletedAt, &merge.CreatedAt, &merge.UpdatedAt)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_branch_id": merge.SourceBranchID,
			"target_branch_id": merge.TargetBranchID,
			"strategy":         merge.Strategy,
		}).Error("failed to create merge record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge record")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge record")
	}

	r.Logger().WithContext(ctx).WithFields(map[string]any{"merge_id": merge.ID, "strategy": merge.Strategy}).Debug("Created merge record")
	return nil
}

// GetByID retrieves a merge by id (tenant-scoped)
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.VersionMerge, error) {
	ctx, span := tracing.StartSpan(ctx, "merges.Repository.GetByID")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := mergeStruct.SelectFrom(mergesTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var merge models.VersionMerge
	err = r.DB().GetContext(ctx, &merge, query, args...)
	if repositories.IsNoRows(err) {
		return nil, repositories.NotFound("merge %s does not exist", id)
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_id": id}).Error("failed to get merge")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge")
	}
	return &merge, nil
}

// Complete marks a pending merge completed with its result version and
// resolved conflicts. The is_complete guard freezes finished records: a
// second completion touches zero rows and fails Conflict.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, resultVersionID uuid.UUID, conflicts []models.MergeConflict) (*models.VersionMerge, error) {
	ctx, span := tracing.StartSpan(ctx, "merges.Repository.Complete")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	ctx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete merge")
	}
	defer tx.Rollback(ctx)

	details := database.JSONB[[]models.MergeConflict]{Data: conflicts}

	ub := database.NewUpdateBuilder()
	ub.Update(mergesTable).
		Set(
			ub.Assign("result_version_id", resultVersionID),
			ub.Assign("status", models.MergeStatusCompleted),
			ub.Assign("is_complete", true),
			ub.Assign("conflicts_resolved", true),
			ub.Assign("conflict_details", details),
			ub.Assign("completed_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", id),
			ub.Equal("is_complete", false),
		)

	query, args := ub.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_id": id}).Error("failed to complete merge")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete merge")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_id": id}).Error("failed to complete merge")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete merge")
	}
	if rows == 0 {
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, repositories.Conflict("merge %s is already complete (status %s)", id, existing.Status)
	}

	// read back through the same transaction; a pool-side read would not see
	// the update while the caller's ambient transaction is still open
	sb := mergeStruct.SelectFrom(mergesTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))
	query, args = sb.Build()

	var merge models.VersionMerge
	if err := tx.GetContext(ctx, &merge, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_id": id}).Error("failed to read back completed merge")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete merge")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete merge")
	}

	return &merge, nil
}

// MarkFailed abandons a pending merge.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "merges.Repository.MarkFailed")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(mergesTable).
		Set(
			ub.Assign("status", models.MergeStatusFailed),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", id),
			ub.Equal("is_complete", false),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_id": id}).Error("failed to mark merge failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark merge failed")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_id": id}).Error("failed to mark merge failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark merge failed")
	}
	if rows == 0 {
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		return repositories.Conflict("merge %s is already complete (status %s)", id, existing.Status)
	}
	return nil
}

// ListByBranch returns merges touching the branch as source or target,
// newest first.
func (r *Repository) ListByBranch(ctx context.Context, branchID uuid.UUID, limit int) ([]models.VersionMerge, error) {
	ctx, span := tracing.StartSpan(ctx, "merges.Repository.ListByBranch")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := mergeStruct.SelectFrom(mergesTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Or(sb.Equal("source_branch_id", branchID), sb.Equal("target_branch_id", branchID)),
	)
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	merges := []models.VersionMerge{}
	if err := r.DB().SelectContext(ctx, &merges, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": branchID}).Error("failed to list merges")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merges")
	}
	return merges, nil
}
