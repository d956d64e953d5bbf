// Package diffs caches computed version diffs keyed by (source, target).
package diffs

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/internal/repositories"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const diffsTable = "version_diffs"

var diffStruct = database.NewStruct(new(models.VersionDiff))

// Repository handles version diff cache persistence
type Repository struct {
	*repositories.Repository
}

// NewRepository creates a new diff cache repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{Repository: repositories.NewRepository(db, logger)}
}

// Create stores a computed diff. Losing a cache race is harmless: the insert
// is ON CONFLICT DO NOTHING and the caller rereads the winner's row.
func (r *Repository) Create(ctx context.Context, diff *models.VersionDiff) (*models.VersionDiff, error) {
	ctx, span := tracing.StartSpan(ctx, "diffs.Repository.Create")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}
	diff.TenantID = tenantID

	if diff.ID == uuid.Nil {
		diff.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(diffsTable).
		Cols("id", "tenant_id", "source_version_id", "target_version_id", "changes",
			"additions_count", "modifications_count", "deletions_count", "word_delta",
			"computed_at", "created_at").
		Values(diff.ID, diff.TenantID, diff.SourceVersionID, diff.TargetVersionID, diff.Changes,
			diff.AdditionsCount, diff.ModificationsCount, diff.DeletionsCount, diff.WordDelta,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_version_id": diff.SourceVersionID,
			"target_version_id": diff.TargetVersionID,
		}).Error("failed to cache diff")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to cache diff")
	}

	stored, err := r.GetBySourceAndTarget(ctx, diff.SourceVersionID, diff.TargetVersionID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		r.Logger().WithContext(ctx).WithFields(map[string]any{
			"source_version_id": diff.SourceVersionID,
			"target_version_id": diff.TargetVersionID,
		}).Error("diff missing after cache write")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to cache diff")
	}
	return stored, nil
}

// GetBySourceAndTarget retrieves the cached diff for the ordered pair.
// Returns nil on a cache miss.
func (r *Repository) GetBySourceAndTarget(ctx context.Context, sourceID, targetID uuid.UUID) (*models.VersionDiff, error) {
	ctx, span := tracing.StartSpan(ctx, "diffs.Repository.GetBySourceAndTarget")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := diffStruct.SelectFrom(diffsTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("source_version_id", sourceID),
		sb.Equal("target_version_id", targetID),
	)

	query, args := sb.Build()
	var diff models.VersionDiff
	err = r.DB().GetContext(ctx, &diff, query, args...)
	if repositories.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"source_version_id": sourceID, "target_version_id": targetID}).Error("failed to get cached diff")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get cached diff")
	}
	return &diff, nil
}

// DeleteOlderThan prunes cache entries computed before the cutoff. Like the
// lock sweep this runs as a system job across tenants.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "diffs.Repository.DeleteOlderThan")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(diffsTable)
	db.Where(db.LessThan("computed_at", cutoff))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).Error("failed to prune diff cache")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to prune diff cache")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).Error("failed to prune diff cache")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to prune diff cache")
	}

	if rows > 0 {
		r.Logger().WithContext(ctx).WithFields(map[string]any{"count": rows}).Info("Pruned diff cache entries")
	}
	return rows, nil
}
