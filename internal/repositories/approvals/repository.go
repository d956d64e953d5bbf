// Package approvals persists reviewer assignments and their decisions.
package approvals

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

const approvalsTable = "version_approvals"

var approvalStruct = database.NewStruct(new(models.VersionApproval))

// Repository handles version approval persistence
type Repository struct {
	*repositories.Repository
}

// NewRepository creates a new approval repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{Repository: repositories.NewRepository(db, logger)}
}

// Create inserts a pending reviewer assignment. A second pending assignment
// of the same reviewer to the same version surfaces as Conflict via the
// partial unique index.
func (r *Repository) Create(ctx context.Context, approval *models.VersionApproval) error {
	ctx, span := tracing.StartSpan(ctx, "approvals.Repository.Create")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	approval.TenantID = tenantID

	if approval.ID == uuid.Nil {
		approval.ID = uuid.New()
	}
	approval.Status = models.ApprovalStatusPending

	ib := database.NewInsertBuilder()
	ib.InsertInto(approvalsTable).
		Cols("id", "tenant_id", "version_id", "reviewer_id", "requested_by", "status",
			"decision_notes", "requested_changes", "assigned_at", "decided_at",
			"created_at", "updated_at").
		Values(approval.ID, approval.TenantID, approval.VersionID, approval.ReviewerID, approval.RequestedBy, approval.Status,
			nil, approval.RequestedChanges, sqlbuilder.Raw("NOW()"), nil,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("assigned_at", "created_at", "updated_at")

	query, args := ib.Build()
	err = r.DB().QueryRowContext(ctx, query, args...).Scan(&approval.AssignedAt, &approval.CreatedAt, &approval.UpdatedAt)
	if err != nil {
		if repositories.IsUniqueViolation(err) {
			return repositories.Conflict("reviewer %s already has a pending approval for version %s", approval.ReviewerID, approval.VersionID)
		}
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{
			"version_id":  approval.VersionID,
			"reviewer_id": approval.ReviewerID,
		}).Error("failed to create approval")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create approval")
	}

	r.Logger().WithContext(ctx).WithFields(map[string]any{"approval_id": approval.ID, "version_id": approval.VersionID}).Debug("Assigned reviewer")
	return nil
}

// GetByID retrieves an approval by id (tenant-scoped)
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.VersionApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.Repository.GetByID")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := approvalStruct.SelectFrom(approvalsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var approval models.VersionApproval
	err = r.DB().GetContext(ctx, &approval, query, args...)
	if repositories.IsNoRows(err) {
		return nil, repositories.NotFound("approval %s does not exist", id)
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"approval_id": id}).Error("failed to get approval")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get approval")
	}
	return &approval, nil
}

// ListByVersion returns the version's approvals, newest assignment first.
func (r *Repository) ListByVersion(ctx context.Context, versionID uuid.UUID) ([]models.VersionApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.Repository.ListByVersion")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := approvalStruct.SelectFrom(approvalsTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("version_id", versionID))
	sb.OrderBy("assigned_at DESC")

	query, args := sb.Build()
	approvals := []models.VersionApproval{}
	if err := r.DB().SelectContext(ctx, &approvals, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"version_id": versionID}).Error("failed to list approvals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list approvals")
	}
	return approvals, nil
}

// Decide transitions a pending approval to its decision. The pending guard
// makes the transition idempotence-safe: deciding an already-decided approval
// touches zero rows and fails Conflict.
func (r *Repository) Decide(ctx context.Context, id uuid.UUID, status models.ApprovalStatus, notes *string, requestedChanges []string) (*models.VersionApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.Repository.Decide")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	changes := database.JSONB[[]string]{Data: requestedChanges}

	ub := database.NewUpdateBuilder()
	ub.Update(approvalsTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("decision_notes", notes),
			ub.Assign("requested_changes", changes),
			ub.Assign("decided_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", id),
			ub.Equal("status", models.ApprovalStatusPending),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"approval_id": id, "status": status}).Error("failed to decide approval")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decide approval")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"approval_id": id}).Error("failed to decide approval")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to decide approval")
	}
	if rows == 0 {
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, repositories.Conflict("approval %s was already decided as %s", id, existing.Status)
	}

	return r.GetByID(ctx, id)
}
