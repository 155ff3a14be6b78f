package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

type fakeObjects struct {
	content    string
	statErr    error
	presignErr error
	deleted    []string
}

func (f *fakeObjects) Bucket() string { return "vehicle-logs" }

func (f *fakeObjects) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://minio.local/" + key + "?signed", nil
}

func (f *fakeObjects) Stat(ctx context.Context, key string) (int64, error) {
	if f.statErr != nil {
		return 0, f.statErr
	}
	return int64(len(f.content)), nil
}

func (f *fakeObjects) Get(ctx context.Context, key string, fromByte int64) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeStore struct {
	recs     map[uint]*domain.FileRecord
	nextID   uint
	statuses []domain.FileStatus
	errMsgs  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[uint]*domain.FileRecord), nextID: 1}
}

func (f *fakeStore) Create(ctx context.Context, rec *domain.FileRecord) error {
	rec.ID = f.nextID
	f.nextID++
	cp := *rec
	f.recs[rec.ID] = &cp
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uint) (*domain.FileRecord, error) {
	rec, ok := f.recs[id]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) List(ctx context.Context, limit, offset int) ([]domain.FileRecord, error) {
	var out []domain.FileRecord
	for _, r := range f.recs {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) SetSize(ctx context.Context, id uint, size int64) error {
	rec, ok := f.recs[id]
	if !ok {
		return domain.ErrFileNotFound
	}
	rec.SizeBytes = size
	return nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id uint, status domain.FileStatus, errMsg string) error {
	rec, ok := f.recs[id]
	if !ok {
		return domain.ErrFileNotFound
	}
	rec.Status = status
	rec.ErrorMessage = errMsg
	f.statuses = append(f.statuses, status)
	f.errMsgs = append(f.errMsgs, errMsg)
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id uint) error {
	if _, ok := f.recs[id]; !ok {
		return domain.ErrFileNotFound
	}
	delete(f.recs, id)
	return nil
}

type fakeLogs struct {
	count   uint64
	deleted []uint
}

func (f *fakeLogs) CountByFile(ctx context.Context, fileID uint) (uint64, error) {
	return f.count, nil
}

func (f *fakeLogs) DeleteByFile(ctx context.Context, fileID uint) error {
	f.deleted = append(f.deleted, fileID)
	return nil
}

type fakeQueue struct {
	jobs []*domain.JobMessage
	err  error
}

func (f *fakeQueue) Enqueue(ctx context.Context, job *domain.JobMessage) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func validContent(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[2025-01-06T18:45:30.000Z] [VEHICLE_ID:1017] [ERROR] [CODE:P0171] [msg %d]\n", i)
	}
	return b.String()
}

func newTestService(objects *fakeObjects, store *fakeStore, logs *fakeLogs, queue *fakeQueue) *Service {
	return NewService(objects, store, logs, queue, time.Hour, 100, 0.5)
}

func TestGenerateUploadURL(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(&fakeObjects{}, store, &fakeLogs{}, &fakeQueue{})

	ticket, err := svc.GenerateUploadURL(context.Background(), "engine.log")
	if err != nil {
		t.Fatalf("GenerateUploadURL failed: %v", err)
	}
	if ticket.FileID == 0 {
		t.Error("expected an assigned file id")
	}
	if !strings.HasPrefix(ticket.ObjectKey, "uploads/") || !strings.HasSuffix(ticket.ObjectKey, "/engine.log") {
		t.Errorf("unexpected object key: %s", ticket.ObjectKey)
	}
	if ticket.ExpiresIn != 3600 {
		t.Errorf("expected 3600s expiry, got %d", ticket.ExpiresIn)
	}

	rec := store.recs[ticket.FileID]
	if rec == nil || rec.Status != domain.StatusPending {
		t.Errorf("expected a PENDING record, got %+v", rec)
	}
}

func TestGenerateUploadURL_RejectsExtensions(t *testing.T) {
	svc := newTestService(&fakeObjects{}, newFakeStore(), &fakeLogs{}, &fakeQueue{})

	for _, name := range []string{"payload.exe", "archive.zip", "noext", ""} {
		if _, err := svc.GenerateUploadURL(context.Background(), name); err == nil {
			t.Errorf("expected rejection for %q", name)
		}
	}
}

func TestGenerateUploadURL_StripsPathComponents(t *testing.T) {
	svc := newTestService(&fakeObjects{}, newFakeStore(), &fakeLogs{}, &fakeQueue{})

	ticket, err := svc.GenerateUploadURL(context.Background(), "../../etc/engine.log")
	if err != nil {
		t.Fatalf("GenerateUploadURL failed: %v", err)
	}
	if strings.Contains(ticket.ObjectKey, "..") {
		t.Errorf("object key must not contain path traversal: %s", ticket.ObjectKey)
	}
}

func TestNotifyUploadComplete_EnqueuesValidFile(t *testing.T) {
	objects := &fakeObjects{content: validContent(50)}
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := newTestService(objects, store, &fakeLogs{}, queue)

	ticket, _ := svc.GenerateUploadURL(context.Background(), "engine.log")
	if err := svc.NotifyUploadComplete(context.Background(), ticket.FileID); err != nil {
		t.Fatalf("NotifyUploadComplete failed: %v", err)
	}

	if len(queue.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(queue.jobs))
	}
	job := queue.jobs[0]
	if job.FileID != ticket.FileID || job.ObjectKey != ticket.ObjectKey {
		t.Errorf("unexpected job: %+v", job)
	}
	if store.recs[ticket.FileID].SizeBytes != int64(len(objects.content)) {
		t.Error("file size should be recorded")
	}
}

func TestNotifyUploadComplete_FormatGateFails(t *testing.T) {
	objects := &fakeObjects{content: "this is\nnot a log file\nat all\n"}
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := newTestService(objects, store, &fakeLogs{}, queue)

	ticket, _ := svc.GenerateUploadURL(context.Background(), "engine.log")
	err := svc.NotifyUploadComplete(context.Background(), ticket.FileID)
	if err == nil {
		t.Fatal("expected a validation error")
	}

	if len(queue.jobs) != 0 {
		t.Error("invalid file must not be enqueued")
	}
	rec := store.recs[ticket.FileID]
	if rec.Status != domain.StatusFailed {
		t.Errorf("expected FAILED, got %s", rec.Status)
	}
	if rec.ErrorMessage == "" {
		t.Error("expected a descriptive error message")
	}
}

func TestNotifyUploadComplete_ResetsEarlierFailure(t *testing.T) {
	objects := &fakeObjects{content: validContent(50)}
	store := newFakeStore()
	queue := &fakeQueue{}
	svc := newTestService(objects, store, &fakeLogs{}, queue)

	ticket, _ := svc.GenerateUploadURL(context.Background(), "engine.log")
	rec := store.recs[ticket.FileID]
	rec.Status = domain.StatusFailed
	rec.ErrorMessage = "file format validation failed"

	if err := svc.NotifyUploadComplete(context.Background(), ticket.FileID); err != nil {
		t.Fatalf("NotifyUploadComplete failed: %v", err)
	}

	rec = store.recs[ticket.FileID]
	if rec.Status != domain.StatusPending {
		t.Errorf("re-notified file should be PENDING again, got %s", rec.Status)
	}
	if rec.ErrorMessage != "" {
		t.Errorf("stale error message should be cleared, got %q", rec.ErrorMessage)
	}
	if len(queue.jobs) != 1 {
		t.Errorf("expected the file to be enqueued, got %d jobs", len(queue.jobs))
	}
}

func TestNotifyUploadComplete_MissingObject(t *testing.T) {
	objects := &fakeObjects{statErr: errors.New("key not found")}
	store := newFakeStore()
	svc := newTestService(objects, store, &fakeLogs{}, &fakeQueue{})

	ticket, _ := svc.GenerateUploadURL(context.Background(), "engine.log")
	if err := svc.NotifyUploadComplete(context.Background(), ticket.FileID); err == nil {
		t.Fatal("expected an error for a missing object")
	}
}

func TestNotifyUploadComplete_UnknownFile(t *testing.T) {
	svc := newTestService(&fakeObjects{}, newFakeStore(), &fakeLogs{}, &fakeQueue{})
	err := svc.NotifyUploadComplete(context.Background(), 42)
	if !errors.Is(err, domain.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestGetProgress(t *testing.T) {
	store := newFakeStore()
	store.recs[1] = &domain.FileRecord{
		ID:                  1,
		SizeBytes:           1000,
		LastProcessedOffset: 250,
		Status:              domain.StatusProcessing,
		Attempts:            2,
	}
	svc := newTestService(&fakeObjects{}, store, &fakeLogs{count: 42}, &fakeQueue{})

	p, err := svc.GetProgress(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if p.ProgressPercent != 25 {
		t.Errorf("expected 25%%, got %d", p.ProgressPercent)
	}
	if p.ProcessedEntries != 42 {
		t.Errorf("expected 42 entries, got %d", p.ProcessedEntries)
	}
	if p.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", p.Attempts)
	}
}

func TestGetProgress_CompletedIsAlways100(t *testing.T) {
	store := newFakeStore()
	store.recs[1] = &domain.FileRecord{
		ID:        1,
		SizeBytes: 0,
		Status:    domain.StatusCompleted,
	}
	svc := newTestService(&fakeObjects{}, store, &fakeLogs{}, &fakeQueue{})

	p, err := svc.GetProgress(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if p.ProgressPercent != 100 {
		t.Errorf("completed file should report 100%%, got %d", p.ProgressPercent)
	}
}

func TestDelete_RemovesEverything(t *testing.T) {
	objects := &fakeObjects{}
	store := newFakeStore()
	logs := &fakeLogs{}
	svc := newTestService(objects, store, logs, &fakeQueue{})

	store.recs[1] = &domain.FileRecord{ID: 1, ObjectKey: "uploads/x/engine.log"}

	if err := svc.Delete(context.Background(), 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != "uploads/x/engine.log" {
		t.Errorf("object not deleted: %v", objects.deleted)
	}
	if len(logs.deleted) != 1 || logs.deleted[0] != 1 {
		t.Errorf("log records not deleted: %v", logs.deleted)
	}
	if _, ok := store.recs[1]; ok {
		t.Error("file record should be gone")
	}
}
