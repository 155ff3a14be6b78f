package files

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/domain"
	"github.com/fleetdiag/log-ingest/internal/parser"
)

// ObjectStorage is the slice of the object store the file service needs.
type ObjectStorage interface {
	Bucket() string
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	Stat(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string, fromByte int64) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// FileStore persists file records.
type FileStore interface {
	Create(ctx context.Context, rec *domain.FileRecord) error
	GetByID(ctx context.Context, id uint) (*domain.FileRecord, error)
	List(ctx context.Context, limit, offset int) ([]domain.FileRecord, error)
	SetSize(ctx context.Context, id uint, size int64) error
	UpdateStatus(ctx context.Context, id uint, status domain.FileStatus, errMsg string) error
	Delete(ctx context.Context, id uint) error
}

// LogStore exposes the log-side operations tied to a file's lifecycle.
type LogStore interface {
	CountByFile(ctx context.Context, fileID uint) (uint64, error)
	DeleteByFile(ctx context.Context, fileID uint) error
}

// Enqueuer submits ingestion jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.JobMessage) error
}

// UploadTicket is handed to a client that wants to upload a file.
type UploadTicket struct {
	FileID    uint   `json:"fileId"`
	UploadURL string `json:"uploadUrl"`
	ObjectKey string `json:"objectKey"`
	ExpiresIn int    `json:"expiresInSecs"`
}

// Progress is the current ingestion position of a file.
type Progress struct {
	FileID           uint              `json:"fileId"`
	Status           domain.FileStatus `json:"status"`
	ProgressPercent  int               `json:"progressPercent"`
	ProcessedBytes   int64             `json:"processedBytes"`
	TotalBytes       int64             `json:"totalBytes"`
	ProcessedEntries uint64            `json:"processedEntries"`
	Attempts         int               `json:"attempts"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
}

var allowedExtensions = map[string]bool{
	".log": true,
	".txt": true,
}

// Service owns the upload-to-ingestion lifecycle of files.
type Service struct {
	objects     ObjectStorage
	store       FileStore
	logs        LogStore
	queue       Enqueuer
	presignTTL  time.Duration
	sampleLines int
	minRatio    float64
}

// NewService wires a file service.
func NewService(objects ObjectStorage, store FileStore, logs LogStore, queue Enqueuer, presignTTL time.Duration, sampleLines int, minRatio float64) *Service {
	if sampleLines <= 0 {
		sampleLines = parser.DefaultSampleLines
	}
	if minRatio <= 0 {
		minRatio = parser.DefaultMinValidRatio
	}
	return &Service{
		objects:     objects,
		store:       store,
		logs:        logs,
		queue:       queue,
		presignTTL:  presignTTL,
		sampleLines: sampleLines,
		minRatio:    minRatio,
	}
}

// GenerateUploadURL registers a pending file and returns a presigned PUT URL.
func (s *Service) GenerateUploadURL(ctx context.Context, filename string) (*UploadTicket, error) {
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, fmt.Errorf("filename is required")
	}
	ext := strings.ToLower(path.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("unsupported file type %q, expected .log or .txt", ext)
	}

	key := fmt.Sprintf("uploads/%d-%s/%s", time.Now().UnixMilli(), uuid.NewString(), filename)

	url, err := s.objects.PresignPut(ctx, key, s.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	rec := &domain.FileRecord{
		Filename:  filename,
		Bucket:    s.objects.Bucket(),
		ObjectKey: key,
		Status:    domain.StatusPending,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to register file: %w", err)
	}

	log.Info().
		Uint("file_id", rec.ID).
		Str("object_key", key).
		Msg("Upload URL issued")

	return &UploadTicket{
		FileID:    rec.ID,
		UploadURL: url,
		ObjectKey: key,
		ExpiresIn: int(s.presignTTL.Seconds()),
	}, nil
}

// NotifyUploadComplete validates the uploaded object and enqueues ingestion.
// Files that fail the format gate are marked FAILED and never enqueued.
func (s *Service) NotifyUploadComplete(ctx context.Context, id uint) error {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	size, err := s.objects.Stat(ctx, rec.ObjectKey)
	if err != nil {
		return fmt.Errorf("uploaded object not found: %w", err)
	}
	if err := s.store.SetSize(ctx, id, size); err != nil {
		return err
	}
	// Re-confirm PENDING so a re-notified file that failed an earlier gate
	// gets a clean slate (and a cleared error message) before the worker
	// takes over.
	if err := s.store.UpdateStatus(ctx, id, domain.StatusPending, ""); err != nil {
		return err
	}

	if err := s.validateFormat(ctx, rec.ObjectKey); err != nil {
		if uerr := s.store.UpdateStatus(ctx, id, domain.StatusFailed, err.Error()); uerr != nil {
			log.Error().Err(uerr).Uint("file_id", id).Msg("Failed to record validation failure")
		}
		return err
	}

	job := &domain.JobMessage{
		FileID:    id,
		Bucket:    rec.Bucket,
		ObjectKey: rec.ObjectKey,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue file %d: %w", id, err)
	}

	log.Info().Uint("file_id", id).Int64("size_bytes", size).Msg("File enqueued for ingestion")
	return nil
}

func (s *Service) validateFormat(ctx context.Context, key string) error {
	body, err := s.objects.Get(ctx, key, 0)
	if err != nil {
		return fmt.Errorf("failed to read uploaded object: %w", err)
	}
	defer body.Close()

	return parser.ValidateFormat(body, s.sampleLines, s.minRatio)
}

// Get returns one file record.
func (s *Service) Get(ctx context.Context, id uint) (*domain.FileRecord, error) {
	return s.store.GetByID(ctx, id)
}

// List returns file records, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.FileRecord, error) {
	return s.store.List(ctx, limit, offset)
}

// GetProgress reports the current ingestion position of a file.
func (s *Service) GetProgress(ctx context.Context, id uint) (*Progress, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	pct := 0
	if rec.SizeBytes > 0 {
		pct = int(rec.LastProcessedOffset * 100 / rec.SizeBytes)
	}
	if rec.Status == domain.StatusCompleted {
		pct = 100
	}
	if pct > 100 {
		pct = 100
	}

	entries, err := s.logs.CountByFile(ctx, id)
	if err != nil {
		// Progress stays useful without the entry count.
		log.Warn().Err(err).Uint("file_id", id).Msg("Failed to count ingested entries")
	}

	return &Progress{
		FileID:           rec.ID,
		Status:           rec.Status,
		ProgressPercent:  pct,
		ProcessedBytes:   rec.LastProcessedOffset,
		TotalBytes:       rec.SizeBytes,
		ProcessedEntries: entries,
		Attempts:         rec.Attempts,
		ErrorMessage:     rec.ErrorMessage,
	}, nil
}

// Delete removes a file's object, its ingested records and its state row.
func (s *Service) Delete(ctx context.Context, id uint) error {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.objects.Delete(ctx, rec.ObjectKey); err != nil {
		// The object may already be gone; the row is what matters.
		log.Warn().Err(err).Uint("file_id", id).Msg("Failed to delete object")
	}
	if err := s.logs.DeleteByFile(ctx, id); err != nil {
		return fmt.Errorf("failed to delete ingested records: %w", err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Uint("file_id", id).Str("object_key", rec.ObjectKey).Msg("File deleted")
	return nil
}
