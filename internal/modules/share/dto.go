package share

import (
	"time"

	"fileshare/internal/domain"
)

type GrantRequest struct {
	FileID         string   `json:"file_id" binding:"required"`
	UserEmails     []string `json:"user_emails" binding:"required,min=1"`
	ExpiresInHours *int     `json:"expires_in_hours"`
}

type LinkRequest struct {
	FileID         string `json:"file_id" binding:"required"`
	ExpiresInHours *int   `json:"expires_in_hours"`
}

type LinkResponse struct {
	Token  string     `json:"token"`
	URL    string     `json:"url"`
	Expiry *time.Time `json:"expiry,omitempty"`
}

type GranteeResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type ShareSummaryResponse struct {
	ID         int64      `json:"id"`
	FileID     string     `json:"file_id"`
	SharedWith []int64    `json:"shared_with"`
	HasLink    bool       `json:"has_link"`
	LinkExpiry *time.Time `json:"link_expiry,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type AccessLogEntryResponse struct {
	User      *GranteeResponse `json:"user,omitempty"`
	Action    string           `json:"action"`
	Timestamp time.Time        `json:"timestamp"`
}

// AuditResponse is the owner-facing view of a share: who holds grants and
// every recorded access, in order.
type AuditResponse struct {
	ID         int64                    `json:"id"`
	FileID     string                   `json:"file_id"`
	SharedWith []GranteeResponse        `json:"shared_with"`
	HasLink    bool                     `json:"has_link"`
	LinkExpiry *time.Time               `json:"link_expiry,omitempty"`
	AccessLog  []AccessLogEntryResponse `json:"access_log"`
}

type LinkMetadataResponse struct {
	File   fileMetadata    `json:"file"`
	Owner  GranteeResponse `json:"owner"`
	Expiry *time.Time      `json:"expiry,omitempty"`
}

type fileMetadata struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

func ToShareSummaryResponse(s *domain.Share) ShareSummaryResponse {
	granteeIDs := make([]int64, len(s.Grants))
	for i, g := range s.Grants {
		granteeIDs[i] = g.UserID
	}
	return ShareSummaryResponse{
		ID:         s.ID,
		FileID:     s.FileID,
		SharedWith: granteeIDs,
		HasLink:    s.LinkToken != nil,
		LinkExpiry: s.LinkExpiry,
		CreatedAt:  s.CreatedAt,
	}
}

func toGranteeResponse(u *domain.User) GranteeResponse {
	return GranteeResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

func toFileMetadata(f *domain.File) fileMetadata {
	return fileMetadata{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		MimeType:     f.MimeType,
		Size:         f.Size,
		UploadedAt:   f.UploadedAt,
	}
}
