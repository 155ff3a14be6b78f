package domain

import (
	"errors"
	"time"
)

// ErrFileNotFound is returned by file stores when no record exists for an id.
var ErrFileNotFound = errors.New("file record not found")

// FileStatus is the processing state of an uploaded file.
type FileStatus string

const (
	StatusPending    FileStatus = "PENDING"
	StatusProcessing FileStatus = "PROCESSING"
	StatusCompleted  FileStatus = "COMPLETED"
	StatusFailed     FileStatus = "FAILED"
)

// FileRecord is one row per uploaded object. It is the single source of
// truth for resumability: after a crash the worker reconstructs its position
// purely from LastProcessedOffset/LastProcessedLine.
type FileRecord struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Filename            string     `gorm:"not null" json:"filename"`
	Bucket              string     `gorm:"not null" json:"bucket"`
	ObjectKey           string     `gorm:"not null;index" json:"objectKey"`
	SizeBytes           int64      `gorm:"not null;default:0" json:"sizeBytes"`
	Status              FileStatus `gorm:"type:varchar(16);not null;default:PENDING;index" json:"status"`
	LastProcessedOffset int64      `gorm:"not null;default:0" json:"lastProcessedOffset"`
	LastProcessedLine   int64      `gorm:"not null;default:0" json:"lastProcessedLine"`
	Attempts            int        `gorm:"not null;default:0" json:"attempts"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// TableName keeps the table name stable regardless of gorm pluralization.
func (FileRecord) TableName() string {
	return "files"
}
