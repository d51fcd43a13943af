package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fileshare/internal/domain"
)

// SharedFileRow is one file shared with a user, joined with the sharer's
// identity for the "shared with me" listing.
type SharedFileRow struct {
	File     domain.File
	SharedBy domain.User
	ShareID  int64
}

// ShareRepository owns the per-file sharing state: the 1:1 share row, its
// grant set, its link token and the append-only access log.
//
// UpsertGrant and IssueOrReuseLink are read-modify-write atomic per file:
// both run in a transaction that locks the share row, so two concurrent
// grant requests cannot create duplicate shares or mint two distinct
// tokens for one file.
type ShareRepository interface {
	GetByFile(ctx context.Context, fileID string) (*domain.Share, error)
	GetByFileWithLog(ctx context.Context, fileID string) (*domain.Share, error)
	GetByLinkToken(ctx context.Context, token string) (*domain.Share, error)
	UpsertGrant(ctx context.Context, fileID string, ownerID int64, granteeIDs []int64, expiry *time.Time) (*domain.Share, error)
	IssueOrReuseLink(ctx context.Context, fileID string, ownerID int64, candidate string, expiry *time.Time) (*domain.Share, error)
	RevokeGrant(ctx context.Context, fileID string, userID int64) error
	AppendAccessLog(ctx context.Context, shareID, userID int64, action string) error
	DeleteByFile(ctx context.Context, fileID string) error
	ListSharedWith(ctx context.Context, userID int64) ([]SharedFileRow, error)
}

type shareRepository struct {
	db *gorm.DB
}

func NewShareRepository(db *gorm.DB) ShareRepository {
	return &shareRepository{db: db}
}

func (r *shareRepository) GetByFile(ctx context.Context, fileID string) (*domain.Share, error) {
	var share domain.Share
	err := r.db.WithContext(ctx).
		Preload("Grants").
		Where("file_id = ?", fileID).
		First(&share).Error
	if err != nil {
		return nil, err
	}
	return &share, nil
}

func (r *shareRepository) GetByFileWithLog(ctx context.Context, fileID string) (*domain.Share, error) {
	var share domain.Share
	err := r.db.WithContext(ctx).
		Preload("Grants").
		Preload("AccessLog", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where("file_id = ?", fileID).
		First(&share).Error
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// GetByLinkToken resolves a share by exact token match.
func (r *shareRepository) GetByLinkToken(ctx context.Context, token string) (*domain.Share, error) {
	var share domain.Share
	err := r.db.WithContext(ctx).
		Preload("Grants").
		Where("link_token = ?", token).
		First(&share).Error
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// UpsertGrant creates the file's share on first use and merges granteeIDs
// into its grant set (set union — this path never shrinks sharedWith).
// The link expiry is touched only when expiry is non-nil, so granting
// without a duration never clears a previously configured expiry.
func (r *shareRepository) UpsertGrant(ctx context.Context, fileID string, ownerID int64, granteeIDs []int64, expiry *time.Time) (*domain.Share, error) {
	var shareID int64
	err := r.withFirstGrantRetry(ctx, func(tx *gorm.DB) error {
		share, err := lockShareByFile(tx, fileID)
		if err != nil {
			return err
		}
		if share == nil {
			share = &domain.Share{FileID: fileID, OwnerID: ownerID, LinkExpiry: expiry}
			if err := tx.Create(share).Error; err != nil {
				return err
			}
		} else if expiry != nil {
			if err := tx.Model(&domain.Share{}).Where("id = ?", share.ID).
				Update("link_expiry", expiry).Error; err != nil {
				return err
			}
		}
		shareID = share.ID

		for _, userID := range granteeIDs {
			grant := domain.ShareGrant{ShareID: share.ID, UserID: userID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.getByID(ctx, shareID)
}

// IssueOrReuseLink stores candidate as the share's link token unless one
// already exists; an existing token is returned unchanged, never rotated.
// Expiry follows the same only-when-supplied rule as UpsertGrant.
func (r *shareRepository) IssueOrReuseLink(ctx context.Context, fileID string, ownerID int64, candidate string, expiry *time.Time) (*domain.Share, error) {
	var shareID int64
	err := r.withFirstGrantRetry(ctx, func(tx *gorm.DB) error {
		share, err := lockShareByFile(tx, fileID)
		if err != nil {
			return err
		}
		if share == nil {
			share = &domain.Share{FileID: fileID, OwnerID: ownerID, LinkToken: &candidate, LinkExpiry: expiry}
			if err := tx.Create(share).Error; err != nil {
				return err
			}
			shareID = share.ID
			return nil
		}

		updates := map[string]any{}
		if share.LinkToken == nil {
			updates["link_token"] = candidate
		}
		if expiry != nil {
			updates["link_expiry"] = expiry
		}
		if len(updates) > 0 {
			if err := tx.Model(&domain.Share{}).Where("id = ?", share.ID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		shareID = share.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.getByID(ctx, shareID)
}

// RevokeGrant removes userID from the file's grant set. Revoking a user
// who was never granted is a no-op; link sharing is unaffected.
func (r *shareRepository) RevokeGrant(ctx context.Context, fileID string, userID int64) error {
	share, err := r.GetByFile(ctx, fileID)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("share_id = ? AND user_id = ?", share.ID, userID).
		Delete(&domain.ShareGrant{}).Error
}

func (r *shareRepository) AppendAccessLog(ctx context.Context, shareID, userID int64, action string) error {
	entry := domain.AccessLogEntry{ShareID: shareID, UserID: userID, Action: action}
	return r.db.WithContext(ctx).Create(&entry).Error
}

// DeleteByFile removes the file's share together with its grants and log.
func (r *shareRepository) DeleteByFile(ctx context.Context, fileID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var share domain.Share
		if err := tx.Where("file_id = ?", fileID).First(&share).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Where("share_id = ?", share.ID).Delete(&domain.AccessLogEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("share_id = ?", share.ID).Delete(&domain.ShareGrant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&share).Error
	})
}

// ListSharedWith returns the files granted to userID, each joined with the
// sharer's identity.
func (r *shareRepository) ListSharedWith(ctx context.Context, userID int64) ([]SharedFileRow, error) {
	var shares []domain.Share
	err := r.db.WithContext(ctx).
		Joins("JOIN share_grants ON share_grants.share_id = shares.id").
		Where("share_grants.user_id = ?", userID).
		Find(&shares).Error
	if err != nil {
		return nil, err
	}

	rows := make([]SharedFileRow, 0, len(shares))
	for _, share := range shares {
		var file domain.File
		if err := r.db.WithContext(ctx).Where("id = ?", share.FileID).First(&file).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		var owner domain.User
		if err := r.db.WithContext(ctx).First(&owner, share.OwnerID).Error; err != nil {
			return nil, err
		}
		rows = append(rows, SharedFileRow{File: file, SharedBy: owner, ShareID: share.ID})
	}
	return rows, nil
}

func (r *shareRepository) getByID(ctx context.Context, id int64) (*domain.Share, error) {
	var share domain.Share
	err := r.db.WithContext(ctx).Preload("Grants").First(&share, id).Error
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// withFirstGrantRetry runs fn in a transaction, retrying once when the
// unique file_id index rejects a Create: two concurrent first-ever
// mutations for one file can both observe "no share row" under the lock,
// and the loser must re-run to merge into the winner's row instead of
// surfacing the constraint violation.
func (r *shareRepository) withFirstGrantRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(fn)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = r.db.WithContext(ctx).Transaction(fn)
	}
	return err
}

// lockShareByFile loads the file's share row under a row lock, or nil when
// no share exists yet. The lock serializes concurrent mutations per file.
func lockShareByFile(tx *gorm.DB, fileID string) (*domain.Share, error) {
	var share domain.Share
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("file_id = ?", fileID).
		First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &share, nil
}
