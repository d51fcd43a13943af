package files

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fileshare/internal/domain"
	"fileshare/internal/repository"
	"fileshare/internal/storage"
)

type MockFileRepository struct {
	mock.Mock
}

func (m *MockFileRepository) Create(ctx context.Context, file *domain.File) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *MockFileRepository) GetByID(ctx context.Context, id string) (*domain.File, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.File), args.Error(1)
}

func (m *MockFileRepository) ListByOwner(ctx context.Context, ownerID int64) ([]domain.File, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.File), args.Error(1)
}

func (m *MockFileRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockShareRepository struct {
	mock.Mock
}

func (m *MockShareRepository) GetByFile(ctx context.Context, fileID string) (*domain.Share, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Share), args.Error(1)
}

func (m *MockShareRepository) GetByFileWithLog(ctx context.Context, fileID string) (*domain.Share, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Share), args.Error(1)
}

func (m *MockShareRepository) GetByLinkToken(ctx context.Context, token string) (*domain.Share, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Share), args.Error(1)
}

func (m *MockShareRepository) UpsertGrant(ctx context.Context, fileID string, ownerID int64, granteeIDs []int64, expiry *time.Time) (*domain.Share, error) {
	args := m.Called(ctx, fileID, ownerID, granteeIDs, expiry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Share), args.Error(1)
}

func (m *MockShareRepository) IssueOrReuseLink(ctx context.Context, fileID string, ownerID int64, candidate string, expiry *time.Time) (*domain.Share, error) {
	args := m.Called(ctx, fileID, ownerID, candidate, expiry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Share), args.Error(1)
}

func (m *MockShareRepository) RevokeGrant(ctx context.Context, fileID string, userID int64) error {
	args := m.Called(ctx, fileID, userID)
	return args.Error(0)
}

func (m *MockShareRepository) AppendAccessLog(ctx context.Context, shareID, userID int64, action string) error {
	args := m.Called(ctx, shareID, userID, action)
	return args.Error(0)
}

func (m *MockShareRepository) DeleteByFile(ctx context.Context, fileID string) error {
	args := m.Called(ctx, fileID)
	return args.Error(0)
}

func (m *MockShareRepository) ListSharedWith(ctx context.Context, userID int64) ([]repository.SharedFileRow, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.SharedFileRow), args.Error(1)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, files *MockFileRepository, shares *MockShareRepository) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	svc := NewService(files, shares, store, storage.NewPreviewCache())
	svc.now = func() time.Time { return testNow }
	return svc, store
}

// putArtifact writes content through the store and returns a File record
// pointing at it.
func putArtifact(t *testing.T, store *storage.Store, content []byte, compress bool, owner int64) *domain.File {
	t.Helper()
	res, err := store.Write(context.Background(), bytes.NewReader(content), "report.pdf", compress)
	require.NoError(t, err)
	return &domain.File{
		ID:           "f1",
		StoredName:   res.StoredName,
		OriginalName: "report.pdf",
		MimeType:     "application/pdf",
		Size:         res.Size,
		Path:         res.Path,
		OwnerID:      owner,
		Compressed:   res.Compressed,
		UploadedAt:   testNow,
	}
}

func readAll(t *testing.T, d *Delivery) []byte {
	t.Helper()
	defer d.Reader.Close()
	got, err := io.ReadAll(d.Reader)
	require.NoError(t, err)
	return got
}

func timePtr(tm time.Time) *time.Time { return &tm }

func strPtr(s string) *string { return &s }

func TestUpload_RecordsOriginalSize(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, _ := newTestService(t, mockFiles, mockShares)

	content := bytes.Repeat([]byte("row,of,data\n"), 2048)
	mockFiles.On("Create", mock.Anything, mock.AnythingOfType("*domain.File")).Return(nil)

	file, err := svc.Upload(context.Background(), 1, "data.csv", "text/csv", bytes.NewReader(content), true)

	require.NoError(t, err)
	assert.NotEmpty(t, file.ID)
	assert.True(t, file.Compressed)
	assert.Equal(t, int64(len(content)), file.Size)

	// The stored artifact is gzipped, so smaller than the original.
	info, err := os.Stat(file.Path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(content)))
}

func TestUpload_RecordFailureRemovesArtifact(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	mockFiles.On("Create", mock.Anything, mock.Anything).Return(assert.AnError)

	_, err := svc.Upload(context.Background(), 1, "data.csv", "text/csv", bytes.NewReader([]byte("abc")), false)
	assert.Error(t, err)

	leftovers, err := filepath.Glob(filepath.Join(store.BaseDir(), "*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestDownload_CompressedRoundTrip(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	content := bytes.Repeat([]byte("the same line again and again\n"), 512)
	file := putArtifact(t, store, content, true, 1)
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("GetByFile", mock.Anything, "f1").Return(nil, gorm.ErrRecordNotFound)

	d, err := svc.Download(context.Background(), "f1", 1, "")

	require.NoError(t, err)
	assert.Equal(t, content, readAll(t, d))
	assert.Equal(t, int64(len(content)), d.File.Size)
}

func TestDownload_OwnerWithoutShareWritesNoLog(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("mine"), false, 1)
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("GetByFile", mock.Anything, "f1").Return(nil, gorm.ErrRecordNotFound)

	d, err := svc.Download(context.Background(), "f1", 1, "")

	require.NoError(t, err)
	d.Reader.Close()
	mockShares.AssertNotCalled(t, "AppendAccessLog", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDownload_GranteeIsLogged(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("shared bytes"), false, 1)
	share := &domain.Share{ID: 10, FileID: "f1", OwnerID: 1, Grants: []domain.ShareGrant{{ShareID: 10, UserID: 2}}}
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("GetByFile", mock.Anything, "f1").Return(share, nil)
	mockShares.On("AppendAccessLog", mock.Anything, int64(10), int64(2), domain.ActionDownload).Return(nil)

	d, err := svc.Download(context.Background(), "f1", 2, "")

	require.NoError(t, err)
	assert.Equal(t, []byte("shared bytes"), readAll(t, d))
	mockShares.AssertExpectations(t)
}

func TestDownload_StrangerForbidden(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("private"), false, 1)
	share := &domain.Share{ID: 10, FileID: "f1", OwnerID: 1, Grants: []domain.ShareGrant{{ShareID: 10, UserID: 2}}}
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("GetByFile", mock.Anything, "f1").Return(share, nil)

	_, err := svc.Download(context.Background(), "f1", 3, "")
	assert.ErrorIs(t, err, ErrForbidden)
	mockShares.AssertNotCalled(t, "AppendAccessLog", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDownload_RevokedGranteeForbidden(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("was shared"), false, 1)
	// Grant set after revocation no longer lists user 2.
	share := &domain.Share{ID: 10, FileID: "f1", OwnerID: 1, Grants: []domain.ShareGrant{{ShareID: 10, UserID: 3}}}
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("GetByFile", mock.Anything, "f1").Return(share, nil)

	_, err := svc.Download(context.Background(), "f1", 2, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDownload_ExpiredLinkToken(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("linked"), false, 1)
	share := &domain.Share{
		ID: 10, FileID: "f1", OwnerID: 1,
		LinkToken:  strPtr("tok"),
		LinkExpiry: timePtr(testNow.Add(-time.Minute)),
	}
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("GetByFile", mock.Anything, "f1").Return(share, nil)

	_, err := svc.Download(context.Background(), "f1", 5, "tok")
	assert.ErrorIs(t, err, ErrLinkExpired)
}

func TestDownload_DirectGrantOutlivesLinkExpiry(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("still yours"), false, 1)
	share := &domain.Share{
		ID: 10, FileID: "f1", OwnerID: 1,
		Grants:     []domain.ShareGrant{{ShareID: 10, UserID: 2}},
		LinkToken:  strPtr("tok"),
		LinkExpiry: timePtr(testNow.Add(-time.Hour)),
	}
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("GetByFile", mock.Anything, "f1").Return(share, nil)
	mockShares.On("AppendAccessLog", mock.Anything, int64(10), int64(2), domain.ActionDownload).Return(nil)

	d, err := svc.Download(context.Background(), "f1", 2, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("still yours"), readAll(t, d))
}

func TestDownload_LogFailureDoesNotFailDownload(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("content"), false, 1)
	share := &domain.Share{ID: 10, FileID: "f1", OwnerID: 1, Grants: []domain.ShareGrant{{ShareID: 10, UserID: 2}}}
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("GetByFile", mock.Anything, "f1").Return(share, nil)
	mockShares.On("AppendAccessLog", mock.Anything, int64(10), int64(2), domain.ActionDownload).Return(assert.AnError)

	d, err := svc.Download(context.Background(), "f1", 2, "")
	require.NoError(t, err)
	assert.Equal(t, []byte("content"), readAll(t, d))
}

func TestDownload_UnknownFile(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, _ := newTestService(t, mockFiles, mockShares)

	mockFiles.On("GetByID", mock.Anything, "nope").Return(nil, gorm.ErrRecordNotFound)

	_, err := svc.Download(context.Background(), "nope", 1, "")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDelete_CascadeEndsWithRecord(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("going away"), false, 1)
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)

	shareDeleted := false
	mockShares.On("DeleteByFile", mock.Anything, "f1").Run(func(args mock.Arguments) {
		shareDeleted = true
	}).Return(nil)
	mockFiles.On("Delete", mock.Anything, "f1").Run(func(args mock.Arguments) {
		// The registry record goes strictly last.
		assert.True(t, shareDeleted)
		_, statErr := os.Stat(file.Path)
		assert.True(t, os.IsNotExist(statErr))
	}).Return(nil)

	err := svc.Delete(context.Background(), "f1", 1)
	require.NoError(t, err)
	mockFiles.AssertExpectations(t)
	mockShares.AssertExpectations(t)
}

func TestDelete_ShareFailureKeepsRecord(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("half gone"), false, 1)
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("DeleteByFile", mock.Anything, "f1").Return(assert.AnError)

	err := svc.Delete(context.Background(), "f1", 1)
	assert.Error(t, err)
	mockFiles.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDelete_NotOwner(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	file := putArtifact(t, store, []byte("not yours"), false, 1)
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)

	err := svc.Delete(context.Background(), "f1", 2)
	assert.ErrorIs(t, err, ErrForbidden)

	// Artifact untouched.
	_, statErr := os.Stat(file.Path)
	assert.NoError(t, statErr)
}

func TestDelete_DeferredPastInFlightDownload(t *testing.T) {
	mockFiles := new(MockFileRepository)
	mockShares := new(MockShareRepository)
	svc, store := newTestService(t, mockFiles, mockShares)

	content := []byte("read me while deleting")
	file := putArtifact(t, store, content, false, 1)
	mockFiles.On("GetByID", mock.Anything, "f1").Return(file, nil)
	mockShares.On("GetByFile", mock.Anything, "f1").Return(nil, gorm.ErrRecordNotFound)
	mockShares.On("DeleteByFile", mock.Anything, "f1").Return(nil)
	mockFiles.On("Delete", mock.Anything, "f1").Return(nil)

	d, err := svc.Download(context.Background(), "f1", 1, "")
	require.NoError(t, err)

	// Delete lands while the download is still open.
	require.NoError(t, svc.Delete(context.Background(), "f1", 1))

	assert.Equal(t, content, readAll(t, d))

	// Closing the last reader removes the artifact.
	_, statErr := os.Stat(file.Path)
	assert.True(t, os.IsNotExist(statErr))
}
