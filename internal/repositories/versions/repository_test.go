package versions_test

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

	branchrepo "github.com/Ramsey-B/sage/internal/repositories/branches"
	"github.com/Ramsey-B/sage/internal/repositories/versions"
	appctx "github.com/Ramsey-B/sage/pkg/context"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/document"
	"github.com/Ramsey-B/sage/pkg/fingerprint"
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

func mustDoc(t *testing.T, raw string) document.Value {
	t.Helper()
	v, err := document.FromJSON([]byte(raw))
	require.NoError(t, err)
	return v
}

func createTestBranch(t *testing.T, ctx context.Context, db database.DB, entityID uuid.UUID) *models.VersionBranch {
	t.Helper()
	repo := branchrepo.NewRepository(db, getTestLogger())
	branch, err := repo.EnsureDefault(ctx, "course", entityID, uuid.New())
	require.NoError(t, err)
	return branch
}

func newTestVersion(t *testing.T, branch *models.VersionBranch, raw string) *models.ContentVersion {
	t.Helper()
	doc := mustDoc(t, raw)
	return &models.ContentVersion{
		EntityType:  branch.EntityType,
		EntityID:    branch.EntityID,
		BranchID:    branch.ID,
		BranchName:  branch.Name,
		ContentData: doc,
		ContentHash: fingerprint.Generate(doc),
		Status:      models.VersionStatusDraft,
		CreatedBy:   uuid.New(),
	}
}

func TestVersionRepository_CreateAssignsSequentialNumbers(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := versions.NewRepository(db, getTestLogger())

	tenantID := uuid.New()
	ctx := getTestContext(tenantID)
	entityID := uuid.New()
	branch := createTestBranch(t, ctx, db, entityID)

	first := newTestVersion(t, branch, `{"title":"v1"}`)
	require.NoError(t, repo.Create(ctx, first))
	assert.Equal(t, 1, first.VersionNumber)
	assert.Equal(t, tenantID, first.TenantID)
	assert.True(t, first.IsLatest)
	assert.False(t, first.IsCurrent)

	second := newTestVersion(t, branch, `{"title":"v2"}`)
	require.NoError(t, repo.Create(ctx, second))
	assert.Equal(t, 2, second.VersionNumber)

	// the head pointer moved to the newer version
	head, err := repo.GetHead(ctx, branch.ID)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, second.ID, head.ID)

	older, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, older.IsLatest)
}

func TestVersionRepository_CreateRequiresTenant(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := versions.NewRepository(db, getTestLogger())

	version := &models.ContentVersion{EntityType: "course", EntityID: uuid.New()}
	err := repo.Create(context.Background(), version)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))
}

func TestVersionRepository_GetByNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := versions.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	branch := createTestBranch(t, ctx, db, uuid.New())

	created := newTestVersion(t, branch, `{"title":"numbered"}`)
	require.NoError(t, repo.Create(ctx, created))

	fetched, err := repo.GetByNumber(ctx, branch.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)

	_, err = repo.GetByNumber(ctx, branch.ID, 99)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestVersionRepository_StatusTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := versions.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	branch := createTestBranch(t, ctx, db, uuid.New())

	version := newTestVersion(t, branch, `{"title":"draft"}`)
	require.NoError(t, repo.Create(ctx, version))

	inReview, err := repo.SetStatus(ctx, version.ID, models.VersionStatusInReview,
		models.VersionStatusDraft, models.VersionStatusChangesRequested)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusInReview, inReview.Status)

	// repeating the same guarded transition fails: the version is no longer draft
	_, err = repo.SetStatus(ctx, version.ID, models.VersionStatusInReview,
		models.VersionStatusDraft, models.VersionStatusChangesRequested)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
}

func TestVersionRepository_PublishFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := versions.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	entityID := uuid.New()
	branch := createTestBranch(t, ctx, db, entityID)

	version := newTestVersion(t, branch, `{"title":"publishable"}`)
	require.NoError(t, repo.Create(ctx, version))

	// publishing a draft fails; only approved versions go live
	_, err := repo.Publish(ctx, version.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))

	_, err = repo.SetStatus(ctx, version.ID, models.VersionStatusInReview, models.VersionStatusDraft)
	require.NoError(t, err)
	require.NoError(t, repo.SetReview(ctx, version.ID, models.VersionStatusApproved, uuid.New(), nil))

	published, err := repo.Publish(ctx, version.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusPublished, published.Status)
	assert.True(t, published.IsCurrent)
	require.NotNil(t, published.PublishedAt)

	current, err := repo.GetCurrent(ctx, "course", entityID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, version.ID, current.ID)

	// publishing a successor archives the prior current version
	successor := newTestVersion(t, branch, `{"title":"successor"}`)
	require.NoError(t, repo.Create(ctx, successor))
	_, err = repo.SetStatus(ctx, successor.ID, models.VersionStatusInReview, models.VersionStatusDraft)
	require.NoError(t, err)
	require.NoError(t, repo.SetReview(ctx, successor.ID, models.VersionStatusApproved, uuid.New(), nil))
	_, err = repo.Publish(ctx, successor.ID)
	require.NoError(t, err)

	former, err := repo.GetByID(ctx, version.ID)
	require.NoError(t, err)
	assert.False(t, former.IsCurrent)
	assert.Equal(t, models.VersionStatusArchived, former.Status)
}

func TestVersionRepository_ListPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := versions.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	entityID := uuid.New()
	branch := createTestBranch(t, ctx, db, entityID)

	for i := 0; i < 5; i++ {
		v := newTestVersion(t, branch, `{"n":`+string(rune('0'+i))+`}`)
		require.NoError(t, repo.Create(ctx, v))
	}

	page, err := repo.List(ctx, "course", entityID, &branch.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	require.Len(t, page.Items, 2)
	// newest first
	assert.Equal(t, 5, page.Items[0].VersionNumber)
	assert.Equal(t, 4, page.Items[1].VersionNumber)

	last, err := repo.List(ctx, "course", entityID, &branch.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, 1, last.Items[0].VersionNumber)
}

func TestVersionRepository_TenantIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := versions.NewRepository(db, getTestLogger())

	ctx := getTestContext(uuid.New())
	branch := createTestBranch(t, ctx, db, uuid.New())

	version := newTestVersion(t, branch, `{"title":"private"}`)
	require.NoError(t, repo.Create(ctx, version))

	otherTenant := getTestContext(uuid.New())
	_, err := repo.GetByID(otherTenant, version.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}
