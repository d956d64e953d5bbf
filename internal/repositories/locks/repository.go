// Package locks persists content editing locks. Acquisition, renewal, and
// expiry sweeps are each a single conditional statement so the database is
// the serialization point: no check-then-insert window exists anywhere.
package locks

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

const locksTable = "content_locks"

var lockStruct = database.NewStruct(new(models.ContentLock))

// Repository handles content lock persistence
type Repository struct {
	*repositories.Repository
}

// NewRepository creates a new content lock repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{Repository: repositories.NewRepository(db, logger)}
}

// acquireQuery is one atomic conditional upsert against the partial unique
// index on active locks. The DO UPDATE fires only when the existing active
// row belongs to the same holder (lease extension) or has expired (takeover);
// a live foreign holder makes the statement touch zero rows.
const acquireQuery = `
	INSERT INTO content_locks (
		id, tenant_id, entity_type, entity_id, version_id, locked_by, reason,
		lock_level, is_active, acquired_at, expires_at, last_heartbeat,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, TRUE, NOW(), NOW() + make_interval(secs => $9), NOW(),
		NOW(), NOW()
	)
	ON CONFLICT (tenant_id, entity_type, entity_id) WHERE is_active
	DO UPDATE SET
		version_id = EXCLUDED.version_id,
		locked_by = EXCLUDED.locked_by,
		reason = EXCLUDED.reason,
		lock_level = EXCLUDED.lock_level,
		expires_at = EXCLUDED.expires_at,
		last_heartbeat = NOW(),
		updated_at = NOW(),
		acquired_at = CASE
			WHEN content_locks.locked_by = EXCLUDED.locked_by AND content_locks.expires_at > NOW()
			THEN content_locks.acquired_at
			ELSE NOW()
		END
	WHERE content_locks.locked_by = EXCLUDED.locked_by OR content_locks.expires_at <= NOW()
	RETURNING id, tenant_id, entity_type, entity_id, version_id, locked_by, reason,
		lock_level, is_active, acquired_at, expires_at, last_heartbeat,
		created_at, updated_at
`

// Acquire takes or extends the entity's editing lock for the requested
// holder. Re-acquisition by the current holder extends the lease; a live lock
// held by anyone else yields Conflict carrying the holder and expiry.
func (r *Repository) Acquire(ctx context.Context, req models.AcquireLockRequest, ttl time.Duration) (*models.ContentLock, error) {
	ctx, span := tracing.StartSpan(ctx, "locks.Repository.Acquire")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	level := req.LockLevel
	if level == "" {
		level = models.LockLevelExclusive
	}

	var lock models.ContentLock
	err = r.DB().GetContext(ctx, &lock, acquireQuery,
		uuid.New(), tenantID, req.EntityType, req.EntityID, req.VersionID, req.LockedBy, req.Reason,
		level, ttl.Seconds(),
	)
	if repositories.IsNoRows(err) {
		// a live foreign holder won; report who and until when
		holder, getErr := r.GetActiveByEntity(ctx, req.EntityType, req.EntityID)
		if getErr == nil && holder != nil {
			return nil, repositories.Conflict("entity %s %s is locked by %s until %s",
				req.EntityType, req.EntityID, holder.LockedBy, holder.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return nil, repositories.Conflict("entity %s %s is locked by another editor", req.EntityType, req.EntityID)
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": req.EntityType,
			"entity_id":   req.EntityID,
			"locked_by":   req.LockedBy,
		}).Error("failed to acquire content lock")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to acquire lock")
	}

	r.Logger().WithContext(ctx).WithFields(map[string]any{
		"lock_id":     lock.ID,
		"entity_type": lock.EntityType,
		"entity_id":   lock.EntityID,
		"locked_by":   lock.LockedBy,
	}).Debug("Acquired content lock")
	return &lock, nil
}

// Heartbeat renews the lease on an active, unexpired lock held by holder.
func (r *Repository) Heartbeat(ctx context.Context, lockID, holder uuid.UUID, ttl time.Duration) (*models.ContentLock, error) {
	ctx, span := tracing.StartSpan(ctx, "locks.Repository.Heartbeat")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE content_locks
		SET last_heartbeat = NOW(),
		    expires_at = NOW() + make_interval(secs => $1),
		    updated_at = NOW()
		WHERE tenant_id = $2
		  AND id = $3
		  AND locked_by = $4
		  AND is_active
		  AND expires_at > NOW()
		RETURNING id, tenant_id, entity_type, entity_id, version_id, locked_by, reason,
			lock_level, is_active, acquired_at, expires_at, last_heartbeat,
			created_at, updated_at
	`

	var lock models.ContentLock
	err = r.DB().GetContext(ctx, &lock, query, ttl.Seconds(), tenantID, lockID, holder)
	if repositories.IsNoRows(err) {
		existing, getErr := r.GetByID(ctx, lockID)
		if getErr != nil {
			return nil, getErr
		}
		if existing.LockedBy != holder {
			return nil, repositories.Conflict("lock %s is held by %s", lockID, existing.LockedBy)
		}
		return nil, repositories.NotFound("lock %s is no longer active", lockID)
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"lock_id": lockID, "locked_by": holder}).Error("failed to heartbeat lock")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to heartbeat lock")
	}
	return &lock, nil
}

// Release deactivates the holder's lock. Releasing a lock that is already
// inactive is a no-op success so retried releases stay safe.
func (r *Repository) Release(ctx context.Context, lockID, holder uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "locks.Repository.Release")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(locksTable).
		Set(
			ub.Assign("is_active", false),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("tenant_id", tenantID),
			ub.Equal("id", lockID),
			ub.Equal("locked_by", holder),
			ub.Equal("is_active", true),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"lock_id": lockID, "locked_by": holder}).Error("failed to release lock")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to release lock")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"lock_id": lockID}).Error("failed to release lock")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to release lock")
	}
	if rows == 0 {
		existing, getErr := r.GetByID(ctx, lockID)
		if getErr != nil {
			return getErr
		}
		if existing.LockedBy != holder {
			return repositories.Conflict("lock %s is held by %s", lockID, existing.LockedBy)
		}
		// already inactive
	}

	r.Logger().WithContext(ctx).WithFields(map[string]any{"lock_id": lockID}).Debug("Released content lock")
	return nil
}

// GetByID retrieves a lock by id (tenant-scoped)
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ContentLock, error) {
	ctx, span := tracing.StartSpan(ctx, "locks.Repository.GetByID")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := lockStruct.SelectFrom(locksTable)
	sb.Where(sb.Equal("tenant_id", tenantID), sb.Equal("id", id))

	query, args := sb.Build()
	var lock models.ContentLock
	err = r.DB().GetContext(ctx, &lock, query, args...)
	if repositories.IsNoRows(err) {
		return nil, repositories.NotFound("lock %s does not exist", id)
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"lock_id": id}).Error("failed to get lock")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get lock")
	}
	return &lock, nil
}

// GetActiveByEntity retrieves the entity's live lock, or nil when it is
// unlocked (no row, inactive row, or expired lease).
func (r *Repository) GetActiveByEntity(ctx context.Context, entityType string, entityID uuid.UUID) (*models.ContentLock, error) {
	ctx, span := tracing.StartSpan(ctx, "locks.Repository.GetActiveByEntity")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := lockStruct.SelectFrom(locksTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("entity_type", entityType),
		sb.Equal("entity_id", entityID),
		sb.Equal("is_active", true),
		sb.GreaterThan("expires_at", sqlbuilder.Raw("NOW()")),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var lock models.ContentLock
	err = r.DB().GetContext(ctx, &lock, query, args...)
	if repositories.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": entityType, "entity_id": entityID}).Error("failed to get active lock")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get active lock")
	}
	return &lock, nil
}

// CleanupExpired deactivates every active lock whose lease has lapsed, in one
// conditional update. It runs as a system sweep across tenants and is safe to
// run concurrently with Acquire: both statements serialize on the same rows
// and neither can produce a second active lock.
func (r *Repository) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "locks.Repository.CleanupExpired")
	defer span.End()

	query := `
		UPDATE content_locks
		SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND expires_at <= NOW()
	`

	result, err := r.DB().ExecContext(ctx, query)
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).Error("failed to cleanup expired locks")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to cleanup expired locks")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.Logger().WithContext(ctx).WithError(err).Error("failed to cleanup expired locks")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to cleanup expired locks")
	}

	if rows > 0 {
		r.Logger().WithContext(ctx).WithFields(map[string]any{"count": rows}).Info("Deactivated expired content locks")
	}
	return rows, nil
}

// ListActive returns the tenant's live locks, soonest expiry first.
func (r *Repository) ListActive(ctx context.Context, limit int) ([]models.ContentLock, error) {
	ctx, span := tracing.StartSpan(ctx, "locks.Repository.ListActive")
	defer span.End()

	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := lockStruct.SelectFrom(locksTable)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("is_active", true),
		sb.GreaterThan("expires_at", sqlbuilder.Raw("NOW()")),
	)
	sb.OrderBy("expires_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	locks := []models.ContentLock{}
	if err := r.DB().SelectContext(ctx, &locks, query, args...); err != nil {
		r.Logger().WithContext(ctx).WithError(err).Error("failed to list active locks")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list active locks")
	}
	return locks, nil
}
