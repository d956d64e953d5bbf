// Package approvals implements the review state machine for content
// versions: draft → in_review → approved | rejected | changes_requested,
// with resubmission from changes_requested back to in_review.
package approvals

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/internal/repositories"
	approvalrepo "github.com/Ramsey-B/sage/internal/repositories/approvals"
	"github.com/Ramsey-B/sage/internal/repositories/versions"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// Workflow handles reviewer assignment and decisions
type Workflow struct {
	logger       ectologger.Logger
	versionRepo  *versions.Repository
	approvalRepo *approvalrepo.Repository
}

// NewWorkflow creates a new approval workflow
func NewWorkflow(logger ectologger.Logger, versionRepo *versions.Repository, approvalRepo *approvalrepo.Repository) *Workflow {
	return &Workflow{
		logger:       logger,
		versionRepo:  versionRepo,
		approvalRepo: approvalRepo,
	}
}

// SubmitForReview moves a draft (or changes_requested, for resubmission)
// version into review. Any other state fails InvalidState.
func (w *Workflow) SubmitForReview(ctx context.Context, versionID uuid.UUID) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.Workflow.SubmitForReview")
	defer span.End()

	version, err := w.versionRepo.SetStatus(ctx, versionID, models.VersionStatusInReview,
		models.VersionStatusDraft, models.VersionStatusChangesRequested)
	if err != nil {
		return nil, err
	}

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"version_id":  versionID,
		"entity_type": version.EntityType,
		"entity_id":   version.EntityID,
	}).Info("Submitted version for review")
	return version, nil
}

// AssignReviewer creates a pending approval for a reviewer on an in-review
// version. Several reviewers can be assigned at once; assigning the same
// reviewer twice while the first assignment is pending fails Conflict.
func (w *Workflow) AssignReviewer(ctx context.Context, req models.AssignApprovalRequest) (*models.VersionApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.Workflow.AssignReviewer")
	defer span.End()

	version, err := w.versionRepo.GetByID(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	if version.Status != models.VersionStatusInReview {
		return nil, repositories.InvalidState("version %s is %s, reviewers can only be assigned in review", version.ID, version.Status)
	}

	approval := &models.VersionApproval{
		VersionID:   req.VersionID,
		ReviewerID:  req.ReviewerID,
		RequestedBy: req.RequestedBy,
	}
	if err := w.approvalRepo.Create(ctx, approval); err != nil {
		return nil, err
	}

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"approval_id": approval.ID,
		"version_id":  req.VersionID,
		"reviewer_id": req.ReviewerID,
	}).Info("Assigned reviewer")
	return approval, nil
}

// Decide records a reviewer's decision on their pending approval and
// advances the version accordingly: approved sign-off moves it to approved,
// rejected to rejected, changes_requested to changes_requested with the
// requested changes attached for the author. The first decision wins; the
// version must still be in review when the decision lands.
func (w *Workflow) Decide(ctx context.Context, req models.DecideApprovalRequest) (*models.VersionApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "approvals.Workflow.Decide")
	defer span.End()

	approval, err := w.approvalRepo.GetByID(ctx, req.ApprovalID)
	if err != nil {
		return nil, err
	}
	if approval.ReviewerID != req.ReviewerID {
		return nil, repositories.Conflict("approval %s belongs to reviewer %s", approval.ID, approval.ReviewerID)
	}

	var versionStatus models.VersionStatus
	switch req.Status {
	case models.ApprovalStatusApproved:
		versionStatus = models.VersionStatusApproved
	case models.ApprovalStatusRejected:
		versionStatus = models.VersionStatusRejected
	case models.ApprovalStatusChangesRequested:
		versionStatus = models.VersionStatusChangesRequested
	default:
		return nil, repositories.BadRequest("decision status must be approved, rejected, or changes_requested")
	}

	decided, err := w.approvalRepo.Decide(ctx, req.ApprovalID, req.Status, req.DecisionNotes, req.RequestedChanges)
	if err != nil {
		return nil, err
	}

	if err := w.versionRepo.SetReview(ctx, approval.VersionID, versionStatus, req.ReviewerID, req.DecisionNotes); err != nil {
		// the version already left in_review (another reviewer decided first);
		// the decision still stands on the approval record itself
		w.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"approval_id": req.ApprovalID,
			"version_id":  approval.VersionID,
		}).Warn("Decision recorded but version already left review")
	}

	metrics.ApprovalDecisionsTotal.WithLabelValues(string(req.Status)).Inc()

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"approval_id": req.ApprovalID,
		"version_id":  approval.VersionID,
		"status":      req.Status,
	}).Info("Recorded reviewer decision")
	return decided, nil
}

// ListApprovals returns a version's approvals, newest first.
func (w *Workflow) ListApprovals(ctx context.Context, versionID uuid.UUID) ([]models.VersionApproval, error) {
	return w.approvalRepo.ListByVersion(ctx, versionID)
}
