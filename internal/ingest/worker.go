package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetdiag/log-ingest/internal/domain"
	"github.com/fleetdiag/log-ingest/internal/parser"
	"github.com/fleetdiag/log-ingest/internal/stream"
)

// ObjectStore reads uploaded file content.
type ObjectStore interface {
	Stat(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string, fromByte int64) (io.ReadCloser, error)
}

// FileStore tracks per-file processing state.
type FileStore interface {
	GetByID(ctx context.Context, id uint) (*domain.FileRecord, error)
	IncrementAttempts(ctx context.Context, id uint) (int, error)
	UpdateStatus(ctx context.Context, id uint, status domain.FileStatus, errMsg string) error
	Checkpoint(ctx context.Context, id uint, offset, line int64) error
}

// BulkWriter persists batches of parsed records.
type BulkWriter interface {
	InsertBatch(ctx context.Context, records []*domain.LogRecord) (int, error)
	WriteIngestMetrics(ctx context.Context, m *domain.IngestMetrics) error
}

// Notifier pushes progress events to subscribers.
type Notifier interface {
	Publish(ctx context.Context, ev domain.ProgressEvent) error
}

// Worker processes one queued file at a time: it resumes from the last
// checkpoint, parses the remainder, writes records in batches and advances the
// checkpoint after each batch. Crash recovery relies on the checkpoint plus
// fingerprint-deduplicated writes, so partial runs are safe to replay.
type Worker struct {
	objects   ObjectStore
	files     FileStore
	writer    BulkWriter
	notifier  Notifier
	batchSize int
	tracer    trace.Tracer
}

// NewWorker wires a worker. batchSize values below one fall back to 100.
func NewWorker(objects ObjectStore, files FileStore, writer BulkWriter, notifier Notifier, batchSize int) *Worker {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Worker{
		objects:   objects,
		files:     files,
		writer:    writer,
		notifier:  notifier,
		batchSize: batchSize,
		tracer:    otel.Tracer("ingest"),
	}
}

// ProcessJob handles one queued job. On failure it records the outcome on the
// file row (unless the row itself is gone) and returns a classified error for
// the queue's retry decision.
func (w *Worker) ProcessJob(ctx context.Context, job *domain.JobMessage) error {
	ctx, span := w.tracer.Start(ctx, "ingest.process_file",
		trace.WithAttributes(
			attribute.Int64("file.id", int64(job.FileID)),
			attribute.String("file.object_key", job.ObjectKey),
		))
	defer span.End()

	err := w.process(ctx, job)
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	perr := Classify(job.FileID, err)
	span.RecordError(perr)
	span.SetStatus(codes.Error, string(perr.Kind))

	if perr.Kind != KindNotFound {
		if uerr := w.files.UpdateStatus(ctx, job.FileID, domain.StatusFailed, perr.Error()); uerr != nil {
			log.Error().Err(uerr).Uint("file_id", job.FileID).Msg("Failed to record failure status")
		}
	}

	_ = w.notifier.Publish(ctx, domain.ProgressEvent{
		FileID:    job.FileID,
		Status:    domain.StatusFailed,
		Message:   perr.Error(),
		Timestamp: time.Now(),
	})

	return perr
}

func (w *Worker) process(ctx context.Context, job *domain.JobMessage) error {
	start := time.Now()

	rec, err := w.files.GetByID(ctx, job.FileID)
	if err != nil {
		return err
	}

	attempts, err := w.files.IncrementAttempts(ctx, job.FileID)
	if err != nil {
		return NewPersistence(job.FileID, err)
	}

	if err := w.files.UpdateStatus(ctx, job.FileID, domain.StatusProcessing, ""); err != nil {
		return NewPersistence(job.FileID, err)
	}

	size, err := w.objects.Stat(ctx, job.ObjectKey)
	if err != nil {
		return NewStorage(job.FileID, err)
	}

	resumeOffset := rec.LastProcessedOffset
	resumeLine := rec.LastProcessedLine

	log.Info().
		Uint("file_id", job.FileID).
		Str("object_key", job.ObjectKey).
		Int64("size_bytes", size).
		Int64("resume_offset", resumeOffset).
		Int("attempt", attempts).
		Msg("Processing file")

	startPct := 0
	if size > 0 {
		startPct = int(resumeOffset * 100 / size)
	}
	w.publishProgress(ctx, job.FileID, domain.StatusProcessing, startPct, resumeOffset, size, 0)

	if resumeOffset >= size {
		// A previous run consumed everything but died before the final
		// status write. Nothing left to parse.
		return w.complete(ctx, job, &runStats{
			startedAt:   start,
			finalOffset: resumeOffset,
			finalLine:   resumeLine,
			totalBytes:  size,
		})
	}

	body, err := w.objects.Get(ctx, job.ObjectKey, resumeOffset)
	if err != nil {
		return NewStorage(job.FileID, err)
	}
	defer body.Close()

	entries, stats, err := w.parseRemainder(job.FileID, body, resumeOffset, resumeLine)
	if err != nil {
		return NewStorage(job.FileID, err)
	}
	stats.startedAt = start
	stats.totalBytes = size

	inserted := 0
	processed := 0
	for from := 0; from < len(entries); from += w.batchSize {
		to := from + w.batchSize
		if to > len(entries) {
			to = len(entries)
		}
		batch := entries[from:to]

		records := make([]*domain.LogRecord, len(batch))
		for i, e := range batch {
			records[i] = e.record
		}

		n, err := w.writer.InsertBatch(ctx, records)
		if err != nil {
			return NewPersistence(job.FileID, err)
		}
		inserted += n
		processed += len(batch)

		last := batch[len(batch)-1]
		if err := w.files.Checkpoint(ctx, job.FileID, last.endOffset, last.line); err != nil {
			return NewPersistence(job.FileID, err)
		}

		pct := processed * 100 / len(entries)
		w.publishProgress(ctx, job.FileID, domain.StatusProcessing, pct, last.endOffset, size, processed)
	}
	stats.inserted = uint64(inserted)

	// Trailing rejected lines advance the offset past the last parsed entry;
	// checkpoint the true end of the stream so a replay starts at EOF.
	if err := w.files.Checkpoint(ctx, job.FileID, stats.finalOffset, stats.finalLine); err != nil {
		return NewPersistence(job.FileID, err)
	}

	return w.complete(ctx, job, stats)
}

// entry is one parsed record together with the stream position after its line.
type entry struct {
	record    *domain.LogRecord
	endOffset int64
	line      int64
}

type runStats struct {
	startedAt   time.Time
	finalOffset int64
	finalLine   int64
	totalBytes  int64
	bytesRead   uint64
	linesRead   uint64
	parsed      uint64
	rejected    uint64
	inserted    uint64
}

// parseRemainder reads the stream from resumeOffset to EOF, parsing every
// line. Unparseable lines are counted and skipped; they still advance the
// offset so the checkpoint never points into the middle of a line.
func (w *Worker) parseRemainder(fileID uint, body io.Reader, resumeOffset, resumeLine int64) ([]entry, *runStats, error) {
	r := stream.NewReader(body, resumeOffset)
	stats := &runStats{finalOffset: resumeOffset, finalLine: resumeLine}

	var entries []entry
	for {
		line, n, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read at offset %d: %w", stats.finalOffset, err)
		}

		stats.bytesRead += uint64(n)
		stats.linesRead++
		stats.finalOffset = r.Offset()
		stats.finalLine = resumeLine + r.Lines()

		if line == "" {
			continue
		}

		record, perr := parser.Parse(line)
		if perr != nil {
			stats.rejected++
			log.Debug().
				Uint("file_id", fileID).
				Int64("line", stats.finalLine).
				Err(perr).
				Msg("Skipping malformed line")
			continue
		}
		record.FileID = fileID
		stats.parsed++
		entries = append(entries, entry{
			record:    record,
			endOffset: stats.finalOffset,
			line:      stats.finalLine,
		})
	}

	return entries, stats, nil
}

func (w *Worker) complete(ctx context.Context, job *domain.JobMessage, stats *runStats) error {
	if err := w.files.UpdateStatus(ctx, job.FileID, domain.StatusCompleted, ""); err != nil {
		return NewPersistence(job.FileID, err)
	}

	w.publishProgress(ctx, job.FileID, domain.StatusCompleted, 100, stats.totalBytes, stats.totalBytes, int(stats.parsed))

	duration := time.Since(stats.startedAt)
	rps := 0.0
	if duration > 0 {
		rps = float64(stats.inserted) / duration.Seconds()
	}

	metrics := &domain.IngestMetrics{
		Timestamp:        time.Now(),
		FileID:           job.FileID,
		ObjectKey:        job.ObjectKey,
		BytesProcessed:   stats.bytesRead,
		LinesProcessed:   stats.linesRead,
		RecordsParsed:    stats.parsed,
		RecordsInserted:  stats.inserted,
		RecordsRejected:  stats.rejected,
		DurationMs:       uint64(duration.Milliseconds()),
		RecordsPerSecond: rps,
	}
	if err := w.writer.WriteIngestMetrics(ctx, metrics); err != nil {
		// Metrics are advisory; the file itself is done.
		log.Warn().Err(err).Uint("file_id", job.FileID).Msg("Failed to write ingest metrics")
	}

	log.Info().
		Uint("file_id", job.FileID).
		Uint64("lines", stats.linesRead).
		Uint64("parsed", stats.parsed).
		Uint64("inserted", stats.inserted).
		Uint64("rejected", stats.rejected).
		Dur("duration", duration).
		Msg("File ingested")

	return nil
}

func (w *Worker) publishProgress(ctx context.Context, fileID uint, status domain.FileStatus, pct int, processedBytes, totalBytes int64, entries int) {
	if pct > 100 {
		pct = 100
	}

	msg := fmt.Sprintf("%d%% complete", pct)
	if status == domain.StatusCompleted {
		msg = "Processing completed"
	}

	_ = w.notifier.Publish(ctx, domain.ProgressEvent{
		FileID:           fileID,
		Status:           status,
		ProgressPercent:  pct,
		ProcessedBytes:   processedBytes,
		TotalBytes:       totalBytes,
		ProcessedEntries: entries,
		Message:          msg,
		Timestamp:        time.Now(),
	})
}
