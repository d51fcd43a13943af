package files

import (
	"time"

	"fileshare/internal/domain"
	"fileshare/internal/repository"
)

type FileResponse struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	Compressed   bool      `json:"compressed"`
	OwnerID      int64     `json:"owner_id"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type SharerResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SharedFileResponse is a file in the "shared with me" listing, enriched
// with the sharer's identity.
type SharedFileResponse struct {
	FileResponse
	SharedBy SharerResponse `json:"shared_by"`
	ShareID  int64          `json:"share_id"`
}

func ToFileResponse(f *domain.File) FileResponse {
	return FileResponse{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		MimeType:     f.MimeType,
		Size:         f.Size,
		Compressed:   f.Compressed,
		OwnerID:      f.OwnerID,
		UploadedAt:   f.UploadedAt,
	}
}

func ToFileListResponse(files []domain.File) []FileResponse {
	items := make([]FileResponse, len(files))
	for i := range files {
		items[i] = ToFileResponse(&files[i])
	}
	return items
}

func ToSharedFileListResponse(rows []repository.SharedFileRow) []SharedFileResponse {
	items := make([]SharedFileResponse, len(rows))
	for i, row := range rows {
		items[i] = SharedFileResponse{
			FileResponse: ToFileResponse(&row.File),
			SharedBy: SharerResponse{
				ID:       row.SharedBy.ID,
				Username: row.SharedBy.Username,
				Email:    row.SharedBy.Email,
			},
			ShareID: row.ShareID,
		}
	}
	return items
}
