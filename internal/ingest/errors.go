package ingest

import (
	"errors"
	"fmt"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// Kind classifies a processing failure.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindStorage     Kind = "storage_error"
	KindParse       Kind = "parse_error"
	KindPersistence Kind = "persistence_error"
	KindUnknown     Kind = "unknown_error"
)

// ProcessingError is a classified failure of one ingestion job. Only missing
// file records are permanent; everything else is worth retrying.
type ProcessingError struct {
	Kind   Kind
	FileID uint
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: file %d: %v", e.Kind, e.FileID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed.
func (e *ProcessingError) Retryable() bool {
	return e.Kind != KindNotFound
}

// NewNotFound marks a job whose file record no longer exists.
func NewNotFound(fileID uint, err error) *ProcessingError {
	return &ProcessingError{Kind: KindNotFound, FileID: fileID, Err: err}
}

// NewStorage marks an object storage failure.
func NewStorage(fileID uint, err error) *ProcessingError {
	return &ProcessingError{Kind: KindStorage, FileID: fileID, Err: err}
}

// NewParse marks a failure while parsing file content.
func NewParse(fileID uint, err error) *ProcessingError {
	return &ProcessingError{Kind: KindParse, FileID: fileID, Err: err}
}

// NewPersistence marks a failure writing records or state.
func NewPersistence(fileID uint, err error) *ProcessingError {
	return &ProcessingError{Kind: KindPersistence, FileID: fileID, Err: err}
}

// Classify wraps err as a ProcessingError, passing through errors already
// classified and mapping known sentinels.
func Classify(fileID uint, err error) *ProcessingError {
	var perr *ProcessingError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, domain.ErrFileNotFound) {
		return NewNotFound(fileID, err)
	}
	return &ProcessingError{Kind: KindUnknown, FileID: fileID, Err: err}
}
