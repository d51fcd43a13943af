package domain

import "time"

// Access log actions.
const (
	ActionView     = "view"
	ActionDownload = "download"
)

// Share holds the sharing state of exactly one file: at most one Share
// row exists per file (unique file_id). The link token is sparse-unique
// across all shares; expiry belongs to the link, not to direct grants.
type Share struct {
	ID         int64            `gorm:"column:id;primaryKey" json:"id"`
	FileID     string           `gorm:"column:file_id;uniqueIndex" json:"file_id"`
	OwnerID    int64            `gorm:"column:owner_id" json:"owner_id"`
	LinkToken  *string          `gorm:"column:link_token;uniqueIndex" json:"link_token,omitempty"`
	LinkExpiry *time.Time       `gorm:"column:link_expiry" json:"link_expiry,omitempty"`
	CreatedAt  time.Time        `gorm:"column:created_at" json:"created_at"`
	Grants     []ShareGrant     `gorm:"foreignKey:ShareID" json:"grants,omitempty"`
	AccessLog  []AccessLogEntry `gorm:"foreignKey:ShareID" json:"access_log,omitempty"`
}

func (Share) TableName() string { return "shares" }

// SharedWith reports whether userID holds a direct grant on this share.
func (s *Share) SharedWith(userID int64) bool {
	for _, g := range s.Grants {
		if g.UserID == userID {
			return true
		}
	}
	return false
}

// ShareGrant is one direct grantee of a share. The composite unique
// index gives sharedWith set semantics.
type ShareGrant struct {
	ID      int64 `gorm:"column:id;primaryKey" json:"-"`
	ShareID int64 `gorm:"column:share_id;uniqueIndex:idx_share_user" json:"-"`
	UserID  int64 `gorm:"column:user_id;uniqueIndex:idx_share_user" json:"user_id"`
}

func (ShareGrant) TableName() string { return "share_grants" }

// AccessLogEntry is one append-only access record. Entries are never
// edited or removed except when the owning share is cascade-deleted.
type AccessLogEntry struct {
	ID        int64     `gorm:"column:id;primaryKey" json:"-"`
	ShareID   int64     `gorm:"column:share_id;index:idx_access_log_share_time,priority:1" json:"-"`
	UserID    int64     `gorm:"column:user_id" json:"user_id"`
	Action    string    `gorm:"column:action" json:"action"`
	CreatedAt time.Time `gorm:"column:created_at;index:idx_access_log_share_time,priority:2" json:"timestamp"`
}

func (AccessLogEntry) TableName() string { return "access_log_entries" }
