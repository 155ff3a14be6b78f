package domain

import "time"

// ProgressEvent is a transient status update pushed to subscribers while a
// file is being ingested. Events are best-effort and never persisted.
type ProgressEvent struct {
	FileID           uint       `json:"fileId"`
	Status           FileStatus `json:"status"`
	ProgressPercent  int        `json:"progressPercent"`
	ProcessedBytes   int64      `json:"processedBytes"`
	TotalBytes       int64      `json:"totalBytes"`
	ProcessedEntries int        `json:"processedEntries"`
	Message          string     `json:"message"`
	Timestamp        time.Time  `json:"timestamp"`
}
