// Package merging reconciles divergent branches: fast-forward detection,
// three-way merges from a common ancestor, deterministic ours/theirs
// resolution, and manual conflict resolution over two phases.
package merging

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/sage/internal/repositories"
	branchrepo "github.com/Ramsey-B/sage/internal/repositories/branches"
	mergerepo "github.com/Ramsey-B/sage/internal/repositories/merges"
	"github.com/Ramsey-B/sage/internal/repositories/versions"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/diff"
	"github.com/Ramsey-B/sage/pkg/document"
	"github.com/Ramsey-B/sage/pkg/fingerprint"
	"github.com/Ramsey-B/sage/pkg/metrics"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

// maxAncestryDepth bounds parent-chain walks so a corrupted chain cannot
// loop forever.
const maxAncestryDepth = 1000

// Result is the outcome of a merge attempt. ResultVersion is nil while a
// merge waits on manual resolution.
type Result struct {
	Merge         *models.VersionMerge   `json:"merge"`
	ResultVersion *models.ContentVersion `json:"result_version,omitempty"`
	Conflicts     []models.MergeConflict `json:"conflicts,omitempty"`
}

// Coordinator orchestrates branch merges
type Coordinator struct {
	logger      ectologger.Logger
	db          database.DB
	branchRepo  *branchrepo.Repository
	versionRepo *versions.Repository
	mergeRepo   *mergerepo.Repository
	engine      *diff.Engine
}

// NewCoordinator creates a new merge coordinator
func NewCoordinator(
	logger ectologger.Logger,
	db database.DB,
	branchRepo *branchrepo.Repository,
	versionRepo *versions.Repository,
	mergeRepo *mergerepo.Repository,
) *Coordinator {
	return &Coordinator{
		logger:      logger,
		db:          db,
		branchRepo:  branchRepo,
		versionRepo: versionRepo,
		mergeRepo:   mergeRepo,
		engine:      diff.NewEngine(),
	}
}

// Merge reconciles the source branch into the target branch with the
// requested strategy. Strategies that resolve everything produce the result
// version and a completed merge record atomically; manual (or three-way)
// merges with conflicts return a pending record for CompleteMerge.
func (c *Coordinator) Merge(ctx context.Context, req models.MergeRequest) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Coordinator.Merge")
	defer span.End()

	started := time.Now()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type":   req.EntityType,
		"entity_id":     req.EntityID,
		"source_branch": req.SourceBranch,
		"target_branch": req.TargetBranch,
		"strategy":      req.Strategy,
	})

	if req.SourceBranch == req.TargetBranch {
		return nil, repositories.InvalidState("cannot merge branch %q into itself", req.SourceBranch)
	}

	sourceBranch, err := c.branchRepo.GetByName(ctx, req.EntityType, req.EntityID, req.SourceBranch)
	if err != nil {
		return nil, err
	}
	targetBranch, err := c.branchRepo.GetByName(ctx, req.EntityType, req.EntityID, req.TargetBranch)
	if err != nil {
		return nil, err
	}

	sourceHead, err := c.versionRepo.GetHead(ctx, sourceBranch.ID)
	if err != nil {
		return nil, err
	}
	if sourceHead == nil {
		return nil, repositories.NotFound("branch %q has no versions to merge", req.SourceBranch)
	}

	targetHead, err := c.versionRepo.GetHead(ctx, targetBranch.ID)
	if err != nil {
		return nil, err
	}

	if targetBranch.IsProtected &&
		sourceHead.Status != models.VersionStatusApproved && sourceHead.Status != models.VersionStatusPublished {
		return nil, repositories.InvalidState("branch %q is protected; merges into it require an approved source head (got %s)",
			targetBranch.Name, sourceHead.Status)
	}

	// an empty target takes the source line wholesale, whatever the strategy
	if targetHead == nil {
		result, err := c.applyResolved(ctx, req, sourceBranch, targetBranch, sourceHead, nil, sourceHead.ContentData.Clone(), nil, false)
		if err != nil {
			return nil, err
		}
		metrics.RecordMerge(string(req.Strategy), string(models.MergeStatusCompleted), 0, time.Since(started))
		return result, nil
	}

	linear, err := c.isAncestor(ctx, targetHead.ID, sourceHead)
	if err != nil {
		return nil, err
	}

	if req.Strategy == models.MergeStrategyFastForward {
		if !linear {
			return nil, repositories.Conflict("target %q has diverged from %q; fast-forward is not possible",
				req.TargetBranch, req.SourceBranch)
		}
		result, err := c.applyResolved(ctx, req, sourceBranch, targetBranch, sourceHead, targetHead, sourceHead.ContentData.Clone(), nil, false)
		if err != nil {
			return nil, err
		}
		metrics.RecordMerge(string(req.Strategy), string(models.MergeStatusCompleted), 0, time.Since(started))
		return result, nil
	}

	// linear history degenerates every remaining strategy to a fast-forward
	if linear {
		result, err := c.applyResolved(ctx, req, sourceBranch, targetBranch, sourceHead, targetHead, sourceHead.ContentData.Clone(), nil, false)
		if err != nil {
			return nil, err
		}
		metrics.RecordMerge(string(req.Strategy), string(models.MergeStatusCompleted), 0, time.Since(started))
		return result, nil
	}

	base, err := c.commonAncestorContent(ctx, sourceBranch, sourceHead, targetHead)
	if err != nil {
		return nil, err
	}

	threeway, err := threeWay(c.engine, base, sourceHead.ContentData, targetHead.ContentData)
	if err != nil {
		return nil, repositories.Conflict("branches made incompatible structural changes: %v", err)
	}

	switch req.Strategy {
	case models.MergeStrategyOurs, models.MergeStrategyTheirs:
		merged := threeway.Merged
		resolved, err := resolveConflicts(&merged, threeway.Conflicts, req.Strategy, func(conflict models.MergeConflict) *document.Value {
			if req.Strategy == models.MergeStrategyTheirs {
				return conflict.Source
			}
			return conflict.Target
		})
		if err != nil {
			return nil, repositories.Conflict("branches made incompatible structural changes: %v", err)
		}
		result, err := c.applyResolved(ctx, req, sourceBranch, targetBranch, sourceHead, targetHead, merged, resolved, len(resolved) > 0)
		if err != nil {
			return nil, err
		}
		metrics.RecordMerge(string(req.Strategy), string(models.MergeStatusCompleted), len(resolved), time.Since(started))
		return result, nil

	case models.MergeStrategyThreeWay, models.MergeStrategyManual:
		if !threeway.HasConflicts() {
			result, err := c.applyResolved(ctx, req, sourceBranch, targetBranch, sourceHead, targetHead, threeway.Merged, nil, false)
			if err != nil {
				return nil, err
			}
			metrics.RecordMerge(string(req.Strategy), string(models.MergeStatusCompleted), 0, time.Since(started))
			return result, nil
		}

		merge := &models.VersionMerge{
			SourceBranchID:    sourceBranch.ID,
			TargetBranchID:    targetBranch.ID,
			SourceVersionID:   sourceHead.ID,
			TargetVersionID:   &targetHead.ID,
			Strategy:          req.Strategy,
			Status:            models.MergeStatusPending,
			IsComplete:        false,
			HadConflicts:      true,
			ConflictsResolved: false,
			ConflictDetails:   database.JSONB[[]models.MergeConflict]{Data: threeway.Conflicts},
			MergedBy:          req.MergedBy,
		}
		if err := c.mergeRepo.Create(ctx, merge); err != nil {
			return nil, err
		}

		log.WithFields(map[string]any{"merge_id": merge.ID, "conflicts": len(threeway.Conflicts)}).Info("Merge pending manual resolution")
		metrics.RecordMerge(string(req.Strategy), string(models.MergeStatusPending), len(threeway.Conflicts), time.Since(started))
		return &Result{Merge: merge, Conflicts: threeway.Conflicts}, nil

	default:
		return nil, repositories.BadRequest(fmt.Sprintf("unknown merge strategy %q", req.Strategy))
	}
}

// CompleteMerge finishes a pending manual merge with caller-supplied
// resolutions, one per conflicting path. The result version and the merge
// completion are applied in one transaction.
func (c *Coordinator) CompleteMerge(ctx context.Context, req models.CompleteMergeRequest) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Coordinator.CompleteMerge")
	defer span.End()

	started := time.Now()

	merge, err := c.mergeRepo.GetByID(ctx, req.MergeID)
	if err != nil {
		return nil, err
	}
	if merge.IsComplete {
		return nil, repositories.Conflict("merge %s is already complete", merge.ID)
	}

	conflicts := merge.ConflictDetails.Data
	var missing []string
	for _, conflict := range conflicts {
		if _, ok := req.Resolutions[conflict.Path]; !ok {
			missing = append(missing, conflict.Path)
		}
	}
	if len(missing) > 0 {
		return nil, repositories.InvalidState("merge %s is missing resolutions for: %v", merge.ID, missing)
	}

	sourceBranch, err := c.branchRepo.GetByID(ctx, merge.SourceBranchID)
	if err != nil {
		return nil, err
	}
	targetBranch, err := c.branchRepo.GetByID(ctx, merge.TargetBranchID)
	if err != nil {
		return nil, err
	}
	sourceVersion, err := c.versionRepo.GetByID(ctx, merge.SourceVersionID)
	if err != nil {
		return nil, err
	}

	var targetVersion *models.ContentVersion
	if merge.TargetVersionID != nil {
		targetVersion, err = c.versionRepo.GetByID(ctx, *merge.TargetVersionID)
		if err != nil {
			return nil, err
		}
	}

	// rebuild the auto-merged document from the recorded heads, then lay the
	// caller's resolutions over the conflicting paths
	var merged document.Value
	if targetVersion == nil {
		merged = sourceVersion.ContentData.Clone()
	} else {
		base, err := c.commonAncestorContent(ctx, sourceBranch, sourceVersion, targetVersion)
		if err != nil {
			return nil, err
		}
		threeway, err := threeWay(c.engine, base, sourceVersion.ContentData, targetVersion.ContentData)
		if err != nil {
			return nil, repositories.Conflict("branches made incompatible structural changes: %v", err)
		}
		merged = threeway.Merged
	}

	resolved := make([]models.MergeConflict, len(conflicts))
	for i, conflict := range conflicts {
		value := req.Resolutions[conflict.Path]
		cloned := value.Clone()
		if err := merged.SetPath(conflict.Path, cloned); err != nil {
			return nil, repositories.BadRequest(fmt.Sprintf("resolution for %q does not fit the document: %v", conflict.Path, err))
		}
		conflict.Resolution = models.MergeStrategyManual
		conflict.ResolvedValue = &cloned
		resolved[i] = conflict
	}

	ctx, tx, err := c.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete merge")
	}
	defer tx.Rollback(ctx)

	resultVersion, err := c.createResultVersion(ctx, mergeDescription(sourceBranch, targetBranch, merge.Strategy), targetBranch, sourceVersion, targetVersion, merged, req.CompletedBy)
	if err != nil {
		return nil, err
	}

	completed, err := c.mergeRepo.Complete(ctx, merge.ID, resultVersion.ID, resolved)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete merge")
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"merge_id":          merge.ID,
		"result_version_id": resultVersion.ID,
	}).Info("Completed manual merge")
	metrics.RecordMerge(string(merge.Strategy), string(models.MergeStatusCompleted), len(resolved), time.Since(started))

	return &Result{Merge: completed, ResultVersion: resultVersion, Conflicts: resolved}, nil
}

// GetMerge retrieves a merge record by id
func (c *Coordinator) GetMerge(ctx context.Context, id uuid.UUID) (*models.VersionMerge, error) {
	return c.mergeRepo.GetByID(ctx, id)
}

// ListMerges returns merges touching a branch
func (c *Coordinator) ListMerges(ctx context.Context, branchID uuid.UUID, limit int) ([]models.VersionMerge, error) {
	return c.mergeRepo.ListByBranch(ctx, branchID, limit)
}

// applyResolved writes the result version and its completed merge record in
// one transaction, then marks the source branch merged.
func (c *Coordinator) applyResolved(
	ctx context.Context,
	req models.MergeRequest,
	sourceBranch, targetBranch *models.VersionBranch,
	sourceHead, targetHead *models.ContentVersion,
	merged document.Value,
	resolved []models.MergeConflict,
	hadConflicts bool,
) (*Result, error) {
	ctx, tx, err := c.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to apply merge")
	}
	defer tx.Rollback(ctx)

	summary := req.ChangeSummary
	if summary == nil {
		s := mergeDescription(sourceBranch, targetBranch, req.Strategy)
		summary = &s
	}

	resultVersion, err := c.createResultVersion(ctx, *summary, targetBranch, sourceHead, targetHead, merged, req.MergedBy)
	if err != nil {
		return nil, err
	}

	merge := &models.VersionMerge{
		SourceBranchID:    sourceBranch.ID,
		TargetBranchID:    targetBranch.ID,
		SourceVersionID:   sourceHead.ID,
		ResultVersionID:   &resultVersion.ID,
		Strategy:          req.Strategy,
		Status:            models.MergeStatusCompleted,
		IsComplete:        true,
		HadConflicts:      hadConflicts,
		ConflictsResolved: true,
		ConflictDetails:   database.JSONB[[]models.MergeConflict]{Data: resolved},
		MergedBy:          req.MergedBy,
	}
	if targetHead != nil {
		merge.TargetVersionID = &targetHead.ID
	}
	if err := c.mergeRepo.Create(ctx, merge); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to apply merge")
	}

	// branch bookkeeping happens after the atomic pair lands; failure here
	// leaves a completed merge with a stale flag, not a broken history
	if !sourceBranch.IsDefault {
		if err := c.branchRepo.MarkMerged(ctx, sourceBranch.ID, targetBranch.ID); err != nil {
			c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"branch_id": sourceBranch.ID}).Warn("Failed to flag source branch as merged")
		}
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"merge_id":          merge.ID,
		"result_version_id": resultVersion.ID,
		"strategy":          req.Strategy,
		"had_conflicts":     hadConflicts,
	}).Info("Merged branch")

	return &Result{Merge: merge, ResultVersion: resultVersion, Conflicts: resolved}, nil
}

// createResultVersion writes the merge's result as a new draft version on
// the target branch, parented on the prior target head.
func (c *Coordinator) createResultVersion(
	ctx context.Context,
	summary string,
	targetBranch *models.VersionBranch,
	sourceHead, targetHead *models.ContentVersion,
	merged document.Value,
	createdBy uuid.UUID,
) (*models.ContentVersion, error) {
	encoded, err := merged.MarshalJSON()
	if err != nil {
		return nil, repositories.BadRequest(fmt.Sprintf("merged document cannot be encoded: %v", err))
	}

	version := &models.ContentVersion{
		EntityType:    sourceHead.EntityType,
		EntityID:      sourceHead.EntityID,
		BranchID:      targetBranch.ID,
		BranchName:    targetBranch.Name,
		ContentData:   merged,
		ContentHash:   fingerprint.Generate(merged),
		Status:        models.VersionStatusDraft,
		CreatedBy:     createdBy,
		ChangeSummary: &summary,
		ContentSize:   len(encoded),
		WordCount:     document.WordCount(merged),
	}
	if targetHead != nil {
		version.ParentVersionID = &targetHead.ID
	} else {
		version.ParentVersionID = &sourceHead.ID
	}

	if err := c.versionRepo.Create(ctx, version); err != nil {
		return nil, err
	}
	return version, nil
}

// isAncestor walks from's parent chain looking for ancestorID.
func (c *Coordinator) isAncestor(ctx context.Context, ancestorID uuid.UUID, from *models.ContentVersion) (bool, error) {
	current := from
	for depth := 0; depth < maxAncestryDepth; depth++ {
		if current.ID == ancestorID {
			return true, nil
		}
		if current.ParentVersionID == nil {
			return false, nil
		}
		next, err := c.versionRepo.GetByID(ctx, *current.ParentVersionID)
		if err != nil {
			return false, err
		}
		current = next
	}
	return false, repositories.InvalidState("version ancestry deeper than %d, history looks corrupted", maxAncestryDepth)
}

// commonAncestorContent finds the closest version both heads descend from
// and returns its content. Falls back to the source branch's branch point,
// then to an empty document for histories with no shared root.
func (c *Coordinator) commonAncestorContent(ctx context.Context, sourceBranch *models.VersionBranch, sourceHead, targetHead *models.ContentVersion) (document.Value, error) {
	sourceChain := map[uuid.UUID]bool{}
	current := sourceHead
	for depth := 0; depth < maxAncestryDepth; depth++ {
		sourceChain[current.ID] = true
		if current.ParentVersionID == nil {
			break
		}
		next, err := c.versionRepo.GetByID(ctx, *current.ParentVersionID)
		if err != nil {
			return document.Null(), err
		}
		current = next
	}

	current = targetHead
	for depth := 0; depth < maxAncestryDepth; depth++ {
		if sourceChain[current.ID] {
			return current.ContentData, nil
		}
		if current.ParentVersionID == nil {
			break
		}
		next, err := c.versionRepo.GetByID(ctx, *current.ParentVersionID)
		if err != nil {
			return document.Null(), err
		}
		current = next
	}

	if sourceBranch.BranchedFromVersionID != nil {
		from, err := c.versionRepo.GetByID(ctx, *sourceBranch.BranchedFromVersionID)
		if err != nil {
			return document.Null(), err
		}
		return from.ContentData, nil
	}

	return document.Object(nil), nil
}

func mergeDescription(source, target *models.VersionBranch, strategy models.MergeStrategyType) string {
	return fmt.Sprintf("Merged branch %q into %q (%s)", source.Name, target.Name, strategy)
}
