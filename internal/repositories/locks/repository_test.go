package locks_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/sage/internal/repositories/locks"
	appctx "github.com/Ramsey-B/sage/pkg/context"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "sage"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func getTestContext(tenantID uuid.UUID) context.Context {
	return appctx.SetTenantID(context.Background(), tenantID.String())
}

func acquireRequest(entityID, editor uuid.UUID) models.AcquireLockRequest {
	return models.AcquireLockRequest{
		EntityType: "course",
		EntityID:   entityID,
		LockedBy:   editor,
		LockLevel:  models.LockLevelExclusive,
	}
}

func TestLockRepository_AcquireAndContention(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := locks.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	entityID := uuid.New()
	holder := uuid.New()

	lock, err := repo.Acquire(ctx, acquireRequest(entityID, holder), time.Minute)
	require.NoError(t, err)
	assert.True(t, lock.IsActive)
	assert.Equal(t, holder, lock.LockedBy)
	assert.True(t, lock.ExpiresAt.After(time.Now()))

	// a second editor is refused while the lease lives
	_, err = repo.Acquire(ctx, acquireRequest(entityID, uuid.New()), time.Minute)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	// the holder reacquiring extends the same lock
	extended, err := repo.Acquire(ctx, acquireRequest(entityID, holder), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, lock.ID, extended.ID)
	assert.Equal(t, lock.AcquiredAt.Unix(), extended.AcquiredAt.Unix())
}

func TestLockRepository_ExpiredLockIsTakeable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := locks.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	entityID := uuid.New()

	stale, err := repo.Acquire(ctx, acquireRequest(entityID, uuid.New()), time.Second)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	successor := uuid.New()
	taken, err := repo.Acquire(ctx, acquireRequest(entityID, successor), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, stale.ID, taken.ID) // the row is reused
	assert.Equal(t, successor, taken.LockedBy)
}

func TestLockRepository_HeartbeatExtendsLease(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := locks.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	holder := uuid.New()

	lock, err := repo.Acquire(ctx, acquireRequest(uuid.New(), holder), time.Minute)
	require.NoError(t, err)

	renewed, err := repo.Heartbeat(ctx, lock.ID, holder, 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(lock.ExpiresAt))

	// only the holder can heartbeat
	_, err = repo.Heartbeat(ctx, lock.ID, uuid.New(), time.Minute)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestLockRepository_ReleaseIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := locks.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	entityID := uuid.New()
	holder := uuid.New()

	lock, err := repo.Acquire(ctx, acquireRequest(entityID, holder), time.Minute)
	require.NoError(t, err)

	require.NoError(t, repo.Release(ctx, lock.ID, holder))
	require.NoError(t, repo.Release(ctx, lock.ID, holder))

	active, err := repo.GetActiveByEntity(ctx, "course", entityID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestLockRepository_CleanupExpired(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := locks.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	entityID := uuid.New()

	_, err := repo.Acquire(ctx, acquireRequest(entityID, uuid.New()), time.Second)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	swept, err := repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, swept, int64(1))

	active, err := repo.GetActiveByEntity(ctx, "course", entityID)
	require.NoError(t, err)
	assert.Nil(t, active)
}
