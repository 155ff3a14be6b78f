package domain

import "time"

// IngestMetrics captures throughput figures for one completed ingestion run.
// Written to ClickHouse for monitoring; one row per processed file.
type IngestMetrics struct {
	Timestamp        time.Time
	FileID           uint
	ObjectKey        string
	BytesProcessed   uint64
	LinesProcessed   uint64
	RecordsParsed    uint64
	RecordsInserted  uint64
	RecordsRejected  uint64
	DurationMs       uint64
	RecordsPerSecond float64
}
