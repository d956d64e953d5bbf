package branches_test

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/sage/internal/repositories/branches"
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

func TestBranchRepository_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := branches.NewRepository(db, getTestLogger())

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)
	entityID := uuid.New()

	branch := &models.VersionBranch{
		EntityType: "course",
		EntityID:   entityID,
		Name:       "rewrite",
		IsActive:   true,
		CreatedBy:  uuid.New(),
	}
	require.NoError(t, repo.Create(ctx, branch))
	assert.NotEqual(t, uuid.Nil, branch.ID)
	assert.Equal(t, tenantID, branch.TenantID)

	fetched, err := repo.GetByName(ctx, "course", entityID, "rewrite")
	require.NoError(t, err)
	assert.Equal(t, branch.ID, fetched.ID)

	// duplicate name on the same entity is rejected
	duplicate := &models.VersionBranch{
		EntityType: "course",
		EntityID:   entityID,
		Name:       "rewrite",
		IsActive:   true,
		CreatedBy:  uuid.New(),
	}
	err = repo.Create(ctx, duplicate)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestBranchRepository_EnsureDefaultIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := branches.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	entityID := uuid.New()

	first, err := repo.EnsureDefault(ctx, "course", entityID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultBranchName, first.Name)
	assert.True(t, first.IsDefault)

	again, err := repo.EnsureDefault(ctx, "course", entityID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestBranchRepository_ListFiltersInactive(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := branches.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	entityID := uuid.New()

	_, err := repo.EnsureDefault(ctx, "course", entityID, uuid.New())
	require.NoError(t, err)

	retired := &models.VersionBranch{
		EntityType: "course",
		EntityID:   entityID,
		Name:       "retired",
		IsActive:   false,
		CreatedBy:  uuid.New(),
	}
	require.NoError(t, repo.Create(ctx, retired))

	active, err := repo.List(ctx, "course", entityID, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.DefaultBranchName, active[0].Name)

	all, err := repo.List(ctx, "course", entityID, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBranchRepository_MarkMerged(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := branches.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	entityID := uuid.New()

	target, err := repo.EnsureDefault(ctx, "course", entityID, uuid.New())
	require.NoError(t, err)

	source := &models.VersionBranch{
		EntityType: "course",
		EntityID:   entityID,
		Name:       "feature",
		IsActive:   true,
		CreatedBy:  uuid.New(),
	}
	require.NoError(t, repo.Create(ctx, source))

	require.NoError(t, repo.MarkMerged(ctx, source.ID, target.ID))

	merged, err := repo.GetByID(ctx, source.ID)
	require.NoError(t, err)
	assert.True(t, merged.IsMerged)
	require.NotNil(t, merged.MergedIntoBranchID)
	assert.Equal(t, target.ID, *merged.MergedIntoBranchID)
	require.NotNil(t, merged.MergedAt)
}
