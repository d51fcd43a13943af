package share

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"fileshare/internal/access"
	"fileshare/internal/domain"
	"fileshare/internal/pkg/linktoken"
	"fileshare/internal/repository"
	"fileshare/internal/storage"
)

// Service is the share registry surface: direct grants, link issuance,
// link resolution, audit and revocation, plus the public PDF preview.
type Service struct {
	files    repository.FileRepository
	shares   repository.ShareRepository
	users    repository.UserRepository
	previews *storage.PreviewCache
	now      func() time.Time
}

func NewService(files repository.FileRepository, shares repository.ShareRepository, users repository.UserRepository, previews *storage.PreviewCache) *Service {
	return &Service{
		files:    files,
		shares:   shares,
		users:    users,
		previews: previews,
		now:      time.Now,
	}
}

// GrantUsers shares a file with the users behind emails. Unknown addresses
// are skipped. The grant set only grows on this path, and the link expiry
// is touched only when a duration is supplied.
func (s *Service) GrantUsers(ctx context.Context, ownerID int64, req GrantRequest) (*domain.Share, error) {
	if err := s.requireOwnedFile(ctx, req.FileID, ownerID); err != nil {
		return nil, err
	}

	emails := make([]string, 0, len(req.UserEmails))
	for _, e := range req.UserEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			emails = append(emails, e)
		}
	}

	grantees, err := s.users.GetByEmails(ctx, emails)
	if err != nil {
		return nil, err
	}
	granteeIDs := make([]int64, len(grantees))
	for i, u := range grantees {
		granteeIDs[i] = u.ID
	}

	expiry := linktoken.ExpiryFrom(s.now(), req.ExpiresInHours)
	return s.shares.UpsertGrant(ctx, req.FileID, ownerID, granteeIDs, expiry)
}

// IssueLink returns the file's share link token, minting one only when the
// share has none yet — re-issuing never rotates an existing token.
func (s *Service) IssueLink(ctx context.Context, ownerID int64, req LinkRequest) (*domain.Share, string, error) {
	if err := s.requireOwnedFile(ctx, req.FileID, ownerID); err != nil {
		return nil, "", err
	}

	candidate, err := linktoken.New()
	if err != nil {
		return nil, "", err
	}

	expiry := linktoken.ExpiryFrom(s.now(), req.ExpiresInHours)
	share, err := s.shares.IssueOrReuseLink(ctx, req.FileID, ownerID, candidate, expiry)
	if err != nil {
		return nil, "", err
	}
	if share.LinkToken == nil {
		return nil, "", errors.New("share link missing after issuance")
	}
	return share, *share.LinkToken, nil
}

// ResolveLink returns the file and owner behind a link token and records a
// view access (best-effort).
func (s *Service) ResolveLink(ctx context.Context, requesterID int64, token string) (*domain.Share, *domain.File, *domain.User, error) {
	share, file, err := s.shareByToken(ctx, token)
	if err != nil {
		return nil, nil, nil, err
	}

	owner, err := s.users.GetByID(ctx, share.OwnerID)
	if err != nil {
		return nil, nil, nil, err
	}

	s.appendLog(ctx, share.ID, requesterID, domain.ActionView)

	return share, file, owner, nil
}

// Audit returns the owner-facing share view: grantee identities and the
// ordered access log. A nil share means the file was never shared.
func (s *Service) Audit(ctx context.Context, ownerID int64, fileID string) (*AuditResponse, error) {
	if err := s.requireOwnedFile(ctx, fileID, ownerID); err != nil {
		return nil, err
	}

	share, err := s.shares.GetByFileWithLog(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	ids := make([]int64, 0, len(share.Grants)+len(share.AccessLog))
	for _, g := range share.Grants {
		ids = append(ids, g.UserID)
	}
	for _, e := range share.AccessLog {
		ids = append(ids, e.UserID)
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*domain.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	audit := &AuditResponse{
		ID:         share.ID,
		FileID:     share.FileID,
		SharedWith: make([]GranteeResponse, 0, len(share.Grants)),
		HasLink:    share.LinkToken != nil,
		LinkExpiry: share.LinkExpiry,
		AccessLog:  make([]AccessLogEntryResponse, 0, len(share.AccessLog)),
	}
	for _, g := range share.Grants {
		if u, ok := byID[g.UserID]; ok {
			audit.SharedWith = append(audit.SharedWith, toGranteeResponse(u))
		}
	}
	for _, e := range share.AccessLog {
		entry := AccessLogEntryResponse{Action: e.Action, Timestamp: e.CreatedAt}
		if u, ok := byID[e.UserID]; ok {
			g := toGranteeResponse(u)
			entry.User = &g
		}
		audit.AccessLog = append(audit.AccessLog, entry)
	}
	return audit, nil
}

// Revoke removes one grantee from the file's share. Revoking a user who
// was never granted is a no-op; the share link is unaffected.
func (s *Service) Revoke(ctx context.Context, ownerID int64, fileID string, userID int64) error {
	share, err := s.shares.GetByFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrShareNotFound
		}
		return err
	}
	if share.OwnerID != ownerID {
		return ErrForbidden
	}
	return s.shares.RevokeGrant(ctx, fileID, userID)
}

// PreviewFile validates a link token for the public preview page and
// returns the file when it can be embedded. Only PDFs are previewable.
func (s *Service) PreviewFile(ctx context.Context, token string) (*domain.File, error) {
	_, file, err := s.shareByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if file.MimeType != "application/pdf" {
		return nil, ErrUnsupportedPreview
	}
	return file, nil
}

// PreviewPDFPath returns the on-disk path of a plain (decompressed) copy
// of a shared PDF. Decompression happens at most once per artifact; the
// copy is reused until the file is deleted.
func (s *Service) PreviewPDFPath(ctx context.Context, fileID string) (string, *domain.File, error) {
	share, err := s.shares.GetByFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrShareNotFound
		}
		return "", nil, err
	}
	if access.LinkExpired(share, s.now()) {
		return "", nil, ErrLinkExpired
	}

	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrFileNotFound
		}
		return "", nil, err
	}
	if file.MimeType != "application/pdf" {
		return "", nil, ErrUnsupportedPreview
	}

	path, err := s.previews.Materialize(file.Path, file.Compressed)
	if err != nil {
		return "", nil, err
	}
	return path, file, nil
}

func (s *Service) requireOwnedFile(ctx context.Context, fileID string, ownerID int64) error {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return err
	}
	if file.OwnerID != ownerID {
		return ErrForbidden
	}
	return nil
}

func (s *Service) shareByToken(ctx context.Context, token string) (*domain.Share, *domain.File, error) {
	share, err := s.shares.GetByLinkToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrShareNotFound
		}
		return nil, nil, err
	}
	if access.LinkExpired(share, s.now()) {
		return nil, nil, ErrLinkExpired
	}

	file, err := s.files.GetByID(ctx, share.FileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, err
	}
	return share, file, nil
}

func (s *Service) appendLog(ctx context.Context, shareID, userID int64, action string) {
	if err := s.shares.AppendAccessLog(ctx, shareID, userID, action); err != nil {
		log.Printf("access_log_append_failed share_id=%d user_id=%d action=%s error=%q", shareID, userID, action, err)
	}
}
