package domain

import "time"

// File represents one uploaded artifact stored on disk.
// Size is always the original uncompressed byte count, even when the
// stored artifact is gzip-encoded.
type File struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	StoredName   string    `gorm:"column:stored_name" json:"-"`
	OriginalName string    `gorm:"column:original_name" json:"original_name"`
	MimeType     string    `gorm:"column:mime_type" json:"mime_type"`
	Size         int64     `gorm:"column:size" json:"size"`
	Path         string    `gorm:"column:path" json:"-"`
	OwnerID      int64     `gorm:"column:owner_id;index" json:"owner_id"`
	Compressed   bool      `gorm:"column:compressed" json:"compressed"`
	UploadedAt   time.Time `gorm:"column:uploaded_at" json:"uploaded_at"`
}

func (File) TableName() string { return "files" }
