package writer

import (
	"context"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// BulkWriter persists parsed log records in batches.
type BulkWriter interface {
	// InsertBatch writes a batch of records, skipping ones already present,
	// and returns how many rows were actually inserted.
	InsertBatch(ctx context.Context, records []*domain.LogRecord) (int, error)

	// WriteIngestMetrics records per-file ingestion statistics.
	WriteIngestMetrics(ctx context.Context, m *domain.IngestMetrics) error
}
