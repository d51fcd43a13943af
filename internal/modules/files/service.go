package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fileshare/internal/access"
	"fileshare/internal/domain"
	"fileshare/internal/repository"
	"fileshare/internal/storage"
)

// Delivery is a permitted download: an open stream of the original bytes
// plus the metadata needed for response headers. The caller must close
// the reader.
type Delivery struct {
	File   *domain.File
	Reader io.ReadCloser
}

// Service is the file registry and delivery pipeline: upload, listing,
// authorized streaming download and cascading delete.
type Service struct {
	files    repository.FileRepository
	shares   repository.ShareRepository
	store    *storage.Store
	previews *storage.PreviewCache
	now      func() time.Time
}

func NewService(files repository.FileRepository, shares repository.ShareRepository, store *storage.Store, previews *storage.PreviewCache) *Service {
	return &Service{
		files:    files,
		shares:   shares,
		store:    store,
		previews: previews,
		now:      time.Now,
	}
}

// Upload persists one uploaded part: artifact first, registry record
// second, so a failed record insert never leaves a dangling File row.
// Size in the record is the pre-compression byte count.
func (s *Service) Upload(ctx context.Context, ownerID int64, originalName, mimeType string, src io.Reader, compress bool) (*domain.File, error) {
	res, err := s.store.Write(ctx, src, originalName, compress)
	if err != nil {
		return nil, err
	}

	file := &domain.File{
		ID:           uuid.NewString(),
		StoredName:   res.StoredName,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         res.Size,
		Path:         res.Path,
		OwnerID:      ownerID,
		Compressed:   res.Compressed,
		UploadedAt:   s.now(),
	}

	if err := s.files.Create(ctx, file); err != nil {
		s.store.Delete(res.Path)
		return nil, err
	}

	return file, nil
}

func (s *Service) ListOwn(ctx context.Context, ownerID int64) ([]domain.File, error) {
	return s.files.ListByOwner(ctx, ownerID)
}

func (s *Service) ListSharedWith(ctx context.Context, userID int64) ([]repository.SharedFileRow, error) {
	return s.shares.ListSharedWith(ctx, userID)
}

// Download resolves access for (file, requester, optional link token) and
// opens the artifact stream, gunzipping transparently when the stored
// bytes are compressed. A download log entry is appended best-effort —
// unless the requester is the owner and no share exists, in which case
// there is nothing to log against.
func (s *Service) Download(ctx context.Context, fileID string, requesterID int64, linkToken string) (*Delivery, error) {
	file, share, err := s.loadFileAndShare(ctx, fileID)
	if err != nil {
		return nil, err
	}

	decision := access.Resolve(file, share, requesterID, linkToken, s.now())
	if !decision.Allowed {
		return nil, denyError(decision.Reason)
	}

	reader, err := s.store.OpenRead(file.Path, file.Compressed)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	if decision.Share != nil {
		s.appendLog(ctx, decision.Share.ID, requesterID, domain.ActionDownload)
	}

	return &Delivery{File: file, Reader: reader}, nil
}

// Delete cascades: artifact bytes (deferred past in-flight reads), the
// preview copy, the share with its grants and log, and the registry
// record strictly last — a failure mid-cascade leaves orphaned bytes or
// an orphaned share, never a File record pointing at nothing.
func (s *Service) Delete(ctx context.Context, fileID string, requesterID int64) error {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return err
	}
	if file.OwnerID != requesterID {
		return ErrForbidden
	}

	if err := s.store.Delete(file.Path); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	s.previews.Invalidate(file.Path)

	if err := s.shares.DeleteByFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete share: %w", err)
	}

	return s.files.Delete(ctx, fileID)
}

func (s *Service) loadFileAndShare(ctx context.Context, fileID string) (*domain.File, *domain.Share, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, err
	}

	share, err := s.shares.GetByFile(ctx, fileID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, err
		}
		share = nil
	}
	return file, share, nil
}

// appendLog records an access entry best-effort: a logging failure is a
// diagnostic, never a failed download.
func (s *Service) appendLog(ctx context.Context, shareID, userID int64, action string) {
	if err := s.shares.AppendAccessLog(ctx, shareID, userID, action); err != nil {
		log.Printf("access_log_append_failed share_id=%d user_id=%d action=%s error=%q", shareID, userID, action, err)
	}
}

func denyError(reason access.DenyReason) error {
	switch reason {
	case access.DenyNotFound:
		return ErrFileNotFound
	case access.DenyLinkExpired:
		return ErrLinkExpired
	default:
		return ErrForbidden
	}
}
