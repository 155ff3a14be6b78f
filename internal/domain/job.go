package domain

// JobMessage is one unit of queued ingestion work. It carries no parsing
// state; all resumability state lives in the FileRecord row.
type JobMessage struct {
	FileID    uint   `json:"fileId"`
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"objectKey"`
}
