// Package versioning is the service facade over version storage, branching,
// locking, review, diffing, and merging. Callers go through this package;
// the repositories and managers underneath stay internal wiring.
package versioning

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/internal/repositories"
	diffrepo "github.com/Ramsey-B/sage/internal/repositories/diffs"
	"github.com/Ramsey-B/sage/internal/repositories/versions"
	"github.com/Ramsey-B/sage/pkg/approvals"
	"github.com/Ramsey-B/sage/pkg/branches"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/diff"
	"github.com/Ramsey-B/sage/pkg/document"
	"github.com/Ramsey-B/sage/pkg/events"
	"github.com/Ramsey-B/sage/pkg/fingerprint"
	"github.com/Ramsey-B/sage/pkg/locks"
	"github.com/Ramsey-B/sage/pkg/merging"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// historyRecentLimit caps the recent-versions slice in history aggregates.
const historyRecentLimit = 10

// Service is the entry point for all versioning operations
type Service struct {
	logger      ectologger.Logger
	validate    *validator.Validate
	versionRepo *versions.Repository
	diffRepo    *diffrepo.Repository
	branches    *branches.Manager
	locks       *locks.Manager
	approvals   *approvals.Workflow
	merges      *merging.Coordinator
	emitter     *events.Emitter
	engine      *diff.Engine
}

// NewService creates a new versioning service
func NewService(
	logger ectologger.Logger,
	versionRepo *versions.Repository,
	diffRepo *diffrepo.Repository,
	branchManager *branches.Manager,
	lockManager *locks.Manager,
	approvalWorkflow *approvals.Workflow,
	mergeCoordinator *merging.Coordinator,
	emitter *events.Emitter,
) *Service {
	return &Service{
		logger:      logger,
		validate:    validator.New(),
		versionRepo: versionRepo,
		diffRepo:    diffRepo,
		branches:    branchManager,
		locks:       lockManager,
		approvals:   approvalWorkflow,
		merges:      mergeCoordinator,
		emitter:     emitter,
		engine:      diff.NewEngine(),
	}
}

func (s *Service) checkRequest(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return repositories.BadRequest(err.Error())
	}
	return nil
}

// CreateVersion writes a new draft version of an entity. The target branch
// defaults to "main", which is created on first write. Writing content
// identical to the branch head is rejected as a no-op.
func (s *Service) CreateVersion(ctx context.Context, req models.CreateVersionRequest) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versioning.Service.CreateVersion")
	defer span.End()

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	if err := s.locks.CheckWritable(ctx, req.EntityType, req.EntityID, req.CreatedBy); err != nil {
		return nil, err
	}

	var branch *models.VersionBranch
	var err error
	if req.BranchName == "" || req.BranchName == models.DefaultBranchName {
		branch, err = s.branches.EnsureDefaultBranch(ctx, req.EntityType, req.EntityID, req.CreatedBy)
	} else {
		branch, err = s.branches.GetByName(ctx, req.EntityType, req.EntityID, req.BranchName)
	}
	if err != nil {
		return nil, err
	}
	if !branch.IsActive {
		return nil, repositories.InvalidState("branch %q is inactive and cannot accept new versions", branch.Name)
	}

	hash := fingerprint.Generate(req.ContentData)

	head, err := s.versionRepo.GetHead(ctx, branch.ID)
	if err != nil {
		return nil, err
	}
	if head != nil && head.ContentHash == hash {
		return nil, repositories.Conflict("content is identical to version %d on branch %q", head.VersionNumber, branch.Name)
	}

	var parentID *uuid.UUID
	if head != nil {
		parentID = &head.ID
	} else {
		// first write on a branch chains back to the branch point so
		// ancestry walks cross branch boundaries
		parentID = branch.BranchedFromVersionID
	}

	encoded, err := req.ContentData.MarshalJSON()
	if err != nil {
		return nil, repositories.BadRequest(fmt.Sprintf("content cannot be encoded: %v", err))
	}

	version := &models.ContentVersion{
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		BranchID:        branch.ID,
		BranchName:      branch.Name,
		ContentData:     req.ContentData,
		ContentHash:     hash,
		Status:          models.VersionStatusDraft,
		ParentVersionID: parentID,
		CreatedBy:       req.CreatedBy,
		ChangeSummary:   req.ChangeSummary,
		ContentSize:     len(encoded),
		WordCount:       document.WordCount(req.ContentData),
	}
	if err := s.versionRepo.Create(ctx, version); err != nil {
		return nil, err
	}

	metrics.VersionsCreatedTotal.WithLabelValues(req.EntityType, branch.Name).Inc()
	s.emitter.EmitVersionCreated(ctx, version)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"version_id":     version.ID,
		"entity_type":    version.EntityType,
		"entity_id":      version.EntityID,
		"branch":         version.BranchName,
		"version_number": version.VersionNumber,
	}).Info("Created version")

	return version, nil
}

// GetVersion retrieves a version by id
func (s *Service) GetVersion(ctx context.Context, id uuid.UUID) (*models.ContentVersion, error) {
	return s.versionRepo.GetByID(ctx, id)
}

// GetVersionByNumber retrieves a version by its number on a branch
func (s *Service) GetVersionByNumber(ctx context.Context, entityType string, entityID uuid.UUID, branchName string, number int) (*models.ContentVersion, error) {
	branch, err := s.resolveBranch(ctx, entityType, entityID, branchName)
	if err != nil {
		return nil, err
	}
	return s.versionRepo.GetByNumber(ctx, branch.ID, number)
}

// ListVersions pages through an entity's versions, newest first. An empty
// branch name lists across all branches.
func (s *Service) ListVersions(ctx context.Context, entityType string, entityID uuid.UUID, branchName string, page, pageSize int) (*models.VersionListResponse, error) {
	var branchID *uuid.UUID
	if branchName != "" {
		branch, err := s.branches.GetByName(ctx, entityType, entityID, branchName)
		if err != nil {
			return nil, err
		}
		branchID = &branch.ID
	}
	return s.versionRepo.List(ctx, entityType, entityID, branchID, page, pageSize)
}

// GetCurrentVersion returns the published version of an entity, or nil when
// nothing is published.
func (s *Service) GetCurrentVersion(ctx context.Context, entityType string, entityID uuid.UUID) (*models.ContentVersion, error) {
	return s.versionRepo.GetCurrent(ctx, entityType, entityID)
}

// SubmitForReview moves a draft or changes-requested version into review
func (s *Service) SubmitForReview(ctx context.Context, versionID uuid.UUID) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versioning.Service.SubmitForReview")
	defer span.End()

	previous, err := s.versionRepo.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	version, err := s.approvals.SubmitForReview(ctx, versionID)
	if err != nil {
		return nil, err
	}

	s.emitter.EmitVersionStatusChanged(ctx, version, previous.Status, version.CreatedBy.String())
	return version, nil
}

// AssignReviewer assigns a reviewer to a version in review
func (s *Service) AssignReviewer(ctx context.Context, req models.AssignApprovalRequest) (*models.VersionApproval, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	return s.approvals.AssignReviewer(ctx, req)
}

// DecideApproval records a reviewer decision and surfaces the version's
// resulting status change.
func (s *Service) DecideApproval(ctx context.Context, req models.DecideApprovalRequest) (*models.VersionApproval, error) {
	ctx, span := tracing.StartSpan(ctx, "versioning.Service.DecideApproval")
	defer span.End()

	if err := s.checkRequest(req); err != nil {
		return nil, err
	}

	approval, err := s.approvals.Decide(ctx, req)
	if err != nil {
		return nil, err
	}

	version, err := s.versionRepo.GetByID(ctx, approval.VersionID)
	if err != nil {
		return nil, err
	}
	s.emitter.EmitVersionStatusChanged(ctx, version, models.VersionStatusInReview, req.ReviewerID.String())

	return approval, nil
}

// ListApprovals lists reviewer assignments for a version
func (s *Service) ListApprovals(ctx context.Context, versionID uuid.UUID) ([]models.VersionApproval, error) {
	return s.approvals.ListApprovals(ctx, versionID)
}

// PublishVersion promotes an approved version to the entity's single live
// version, archiving whichever version held that slot.
func (s *Service) PublishVersion(ctx context.Context, versionID uuid.UUID, publishedBy uuid.UUID) (*models.ContentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versioning.Service.PublishVersion")
	defer span.End()

	version, err := s.versionRepo.Publish(ctx, versionID)
	if err != nil {
		return nil, err
	}

	metrics.VersionsPublishedTotal.WithLabelValues(version.EntityType).Inc()
	s.emitter.EmitVersionPublished(ctx, version, publishedBy.String())

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"version_id":  version.ID,
		"entity_type": version.EntityType,
		"entity_id":   version.EntityID,
	}).Info("Published version")

	return version, nil
}

// ArchiveVersion retires a non-current version
func (s *Service) ArchiveVersion(ctx context.Context, versionID uuid.UUID) (*models.ContentVersion, error) {
	return s.versionRepo.Archive(ctx, versionID)
}

// CreateBranch forks a new version line off an entity's history
func (s *Service) CreateBranch(ctx context.Context, req models.CreateBranchRequest) (*models.VersionBranch, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	branch, err := s.branches.CreateBranch(ctx, req)
	if err != nil {
		return nil, err
	}
	s.emitter.EmitBranchCreated(ctx, branch)
	return branch, nil
}

// GetBranch retrieves a branch by id
func (s *Service) GetBranch(ctx context.Context, id uuid.UUID) (*models.VersionBranch, error) {
	return s.branches.GetByID(ctx, id)
}

// GetBranchByName retrieves a branch by name
func (s *Service) GetBranchByName(ctx context.Context, entityType string, entityID uuid.UUID, name string) (*models.VersionBranch, error) {
	return s.branches.GetByName(ctx, entityType, entityID, name)
}

// ListBranches lists an entity's branches
func (s *Service) ListBranches(ctx context.Context, entityType string, entityID uuid.UUID, includeInactive bool) ([]models.VersionBranch, error) {
	return s.branches.List(ctx, entityType, entityID, includeInactive)
}

// UpdateBranch toggles branch flags
func (s *Service) UpdateBranch(ctx context.Context, id uuid.UUID, req models.UpdateBranchRequest) (*models.VersionBranch, error) {
	return s.branches.UpdateBranch(ctx, id, req)
}

// AcquireLock takes or extends an editing lock on an entity
func (s *Service) AcquireLock(ctx context.Context, req models.AcquireLockRequest) (*models.ContentLock, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	return s.locks.Acquire(ctx, req)
}

// HeartbeatLock extends a held lock's lease
func (s *Service) HeartbeatLock(ctx context.Context, lockID, holder uuid.UUID) (*models.ContentLock, error) {
	return s.locks.Heartbeat(ctx, lockID, holder)
}

// ReleaseLock releases a held lock. Releasing an expired or already released
// lock succeeds.
func (s *Service) ReleaseLock(ctx context.Context, lockID, holder uuid.UUID) error {
	return s.locks.Release(ctx, lockID, holder)
}

// GetLock retrieves a lock by id
func (s *Service) GetLock(ctx context.Context, lockID uuid.UUID) (*models.ContentLock, error) {
	return s.locks.Get(ctx, lockID)
}

// GetActiveLock returns the live lock on an entity, or nil when unlocked
func (s *Service) GetActiveLock(ctx context.Context, entityType string, entityID uuid.UUID) (*models.ContentLock, error) {
	return s.locks.GetActiveForEntity(ctx, entityType, entityID)
}

// CleanupExpiredLocks deactivates lapsed locks across all tenants
func (s *Service) CleanupExpiredLocks(ctx context.Context) (int64, error) {
	return s.locks.CleanupExpired(ctx)
}

// GetDiff returns the structural diff between two versions of the same
// entity, reading a cached result when one exists.
func (s *Service) GetDiff(ctx context.Context, sourceVersionID, targetVersionID uuid.UUID) (*models.VersionDiff, error) {
	ctx, span := tracing.StartSpan(ctx, "versioning.Service.GetDiff")
	defer span.End()

	// a version never differs from itself; answer directly without touching
	// the cache
	if sourceVersionID == targetVersionID {
		if _, err := s.versionRepo.GetByID(ctx, sourceVersionID); err != nil {
			return nil, err
		}
		return &models.VersionDiff{
			SourceVersionID: sourceVersionID,
			TargetVersionID: targetVersionID,
			Changes:         database.JSONB[[]models.DiffChange]{Data: []models.DiffChange{}},
			ComputedAt:      time.Now().UTC(),
		}, nil
	}

	cached, err := s.diffRepo.GetBySourceAndTarget(ctx, sourceVersionID, targetVersionID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		metrics.RecordDiffCacheLookup("hit")
		return cached, nil
	}
	metrics.RecordDiffCacheLookup("miss")

	source, err := s.versionRepo.GetByID(ctx, sourceVersionID)
	if err != nil {
		return nil, err
	}
	target, err := s.versionRepo.GetByID(ctx, targetVersionID)
	if err != nil {
		return nil, err
	}
	if source.EntityType != target.EntityType || source.EntityID != target.EntityID {
		return nil, repositories.BadRequest("versions belong to different entities")
	}

	result := s.engine.Compare(source.ContentData, target.ContentData)

	return s.diffRepo.Create(ctx, &models.VersionDiff{
		SourceVersionID:    sourceVersionID,
		TargetVersionID:    targetVersionID,
		Changes:            database.JSONB[[]models.DiffChange]{Data: result.Changes},
		AdditionsCount:     result.AdditionsCount,
		ModificationsCount: result.ModificationsCount,
		DeletionsCount:     result.DeletionsCount,
		WordDelta:          result.WordDelta,
		ComputedAt:         time.Now().UTC(),
	})
}

// PruneDiffCache drops cached diffs computed before the cutoff
func (s *Service) PruneDiffCache(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.diffRepo.DeleteOlderThan(ctx, cutoff)
}

// Merge reconciles a source branch into a target branch
func (s *Service) Merge(ctx context.Context, req models.MergeRequest) (*merging.Result, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	result, err := s.merges.Merge(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.Merge.IsComplete {
		s.emitter.EmitBranchMerged(ctx, result.Merge, result.ResultVersion)
	}
	return result, nil
}

// CompleteMerge finishes a pending manual merge
func (s *Service) CompleteMerge(ctx context.Context, req models.CompleteMergeRequest) (*merging.Result, error) {
	if err := s.checkRequest(req); err != nil {
		return nil, err
	}
	result, err := s.merges.CompleteMerge(ctx, req)
	if err != nil {
		return nil, err
	}
	s.emitter.EmitBranchMerged(ctx, result.Merge, result.ResultVersion)
	return result, nil
}

// GetMerge retrieves a merge record by id
func (s *Service) GetMerge(ctx context.Context, id uuid.UUID) (*models.VersionMerge, error) {
	return s.merges.GetMerge(ctx, id)
}

// ListMerges lists merges touching a branch
func (s *Service) ListMerges(ctx context.Context, branchID uuid.UUID, limit int) ([]models.VersionMerge, error) {
	return s.merges.ListMerges(ctx, branchID, limit)
}

// GetHistory assembles the per-entity history aggregate: totals, per-branch
// summaries, the published version, and the most recent versions.
func (s *Service) GetHistory(ctx context.Context, entityType string, entityID uuid.UUID) (*models.VersionHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "versioning.Service.GetHistory")
	defer span.End()

	total, err := s.versionRepo.CountByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, repositories.NotFound("entity %s/%s has no versions", entityType, entityID)
	}

	branchSummaries, err := s.versionRepo.BranchSummaries(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	current, err := s.versionRepo.GetCurrent(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	recent, err := s.versionRepo.Recent(ctx, entityType, entityID, historyRecentLimit)
	if err != nil {
		return nil, err
	}

	return &models.VersionHistory{
		EntityType:     entityType,
		EntityID:       entityID,
		TotalVersions:  total,
		TotalBranches:  len(branchSummaries),
		Branches:       branchSummaries,
		CurrentVersion: current,
		RecentVersions: recent,
	}, nil
}

func (s *Service) resolveBranch(ctx context.Context, entityType string, entityID uuid.UUID, branchName string) (*models.VersionBranch, error) {
	if branchName == "" {
		branchName = models.DefaultBranchName
	}
	return s.branches.GetByName(ctx, entityType, entityID, branchName)
}
