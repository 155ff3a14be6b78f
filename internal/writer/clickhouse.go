package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/clickhouse"
	"github.com/fleetdiag/log-ingest/internal/domain"
	"github.com/fleetdiag/log-ingest/internal/retry"
)

// ClickHouseWriter writes log records to ClickHouse with fingerprint-based
// duplicate suppression. Records whose fingerprint is already present, either
// in the local cache or in the table, are skipped.
type ClickHouseWriter struct {
	client *clickhouse.Client
	cache  *FingerprintCache
}

// NewClickHouseWriter creates a writer over an established client. The cache
// may be nil, in which case only the table-side check applies.
func NewClickHouseWriter(client *clickhouse.Client, cache *FingerprintCache) *ClickHouseWriter {
	return &ClickHouseWriter{client: client, cache: cache}
}

// InsertBatch writes records not yet present in the table and returns the
// number of rows inserted. Safe to call again with the same records; a replay
// inserts nothing.
func (w *ClickHouseWriter) InsertBatch(ctx context.Context, records []*domain.LogRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	fingerprints := make([]string, len(records))
	for i, r := range records {
		fingerprints[i] = Fingerprint(r)
	}

	cached, err := w.cache.Seen(fingerprints)
	if err != nil {
		// Cache trouble is not fatal; fall through to the table check.
		log.Warn().Err(err).Msg("Fingerprint cache lookup failed")
		cached = map[string]bool{}
	}

	unknown := make([]string, 0, len(fingerprints))
	for _, fp := range fingerprints {
		if !cached[fp] {
			unknown = append(unknown, fp)
		}
	}

	existing, err := w.lookupExisting(ctx, unknown)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing fingerprints: %w", err)
	}

	toInsert, insertFps := filterNew(records, fingerprints, cached, existing)

	if len(toInsert) == 0 {
		log.Debug().Int("batch_size", len(records)).Msg("Batch already ingested, skipping")
		return 0, nil
	}

	err = retry.Do(ctx, w.client.RetryConfig(), func() error {
		batch, err := w.client.Conn().PrepareBatch(ctx, `
			INSERT INTO vehicle_logs (file_id, vehicle_id, timestamp, level, code, message, fingerprint)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}
		for i, r := range toInsert {
			if err := batch.Append(
				uint64(r.FileID),
				r.VehicleID,
				r.Timestamp,
				string(r.Level),
				r.Code,
				r.Message,
				insertFps[i],
			); err != nil {
				return fmt.Errorf("failed to append record: %w", err)
			}
		}
		return batch.Send()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}

	if err := w.cache.Add(insertFps); err != nil {
		log.Warn().Err(err).Msg("Failed to update fingerprint cache")
	}

	log.Debug().
		Int("batch_size", len(records)).
		Int("inserted", len(toInsert)).
		Int("skipped", len(records)-len(toInsert)).
		Msg("Batch written")

	return len(toInsert), nil
}

// filterNew returns, in stream order, the records whose fingerprint appears
// in neither the cache nor the table, paired with those fingerprints. A full
// replay of an already-ingested batch yields an empty result.
func filterNew(records []*domain.LogRecord, fingerprints []string, cached, existing map[string]bool) ([]*domain.LogRecord, []string) {
	toInsert := make([]*domain.LogRecord, 0, len(records))
	fps := make([]string, 0, len(records))
	for i, r := range records {
		fp := fingerprints[i]
		if cached[fp] || existing[fp] {
			continue
		}
		toInsert = append(toInsert, r)
		fps = append(fps, fp)
	}
	return toInsert, fps
}

// lookupExisting returns the subset of fingerprints already present in the table.
func (w *ClickHouseWriter) lookupExisting(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return existing, nil
	}

	rows, err := w.client.Query(ctx,
		"SELECT fingerprint FROM vehicle_logs WHERE fingerprint IN (?)",
		fingerprints,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, err
		}
		existing[fp] = true
	}
	return existing, rows.Err()
}

// WriteIngestMetrics records ingestion statistics for a completed file.
func (w *ClickHouseWriter) WriteIngestMetrics(ctx context.Context, m *domain.IngestMetrics) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	err := w.client.Exec(ctx, `
		INSERT INTO ingest_metrics
			(timestamp, file_id, object_key, bytes_processed, lines_processed,
			 records_parsed, records_inserted, records_rejected, duration_ms, records_per_second)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ts,
		uint64(m.FileID),
		m.ObjectKey,
		m.BytesProcessed,
		m.LinesProcessed,
		m.RecordsParsed,
		m.RecordsInserted,
		m.RecordsRejected,
		m.DurationMs,
		m.RecordsPerSecond,
	)
	if err != nil {
		return fmt.Errorf("failed to write ingest metrics: %w", err)
	}
	return nil
}
