package ingest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

func TestProcessingError_Retryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindNotFound, false},
		{KindStorage, true},
		{KindParse, true},
		{KindPersistence, true},
		{KindUnknown, true},
	}
	for _, tt := range tests {
		e := &ProcessingError{Kind: tt.kind, FileID: 1, Err: errors.New("boom")}
		if e.Retryable() != tt.want {
			t.Errorf("%s: Retryable() = %v, want %v", tt.kind, e.Retryable(), tt.want)
		}
	}
}

func TestClassify_PassesThroughClassified(t *testing.T) {
	orig := NewStorage(3, errors.New("minio down"))
	wrapped := fmt.Errorf("processing failed: %w", orig)
	got := Classify(3, wrapped)
	if got != orig {
		t.Errorf("Classify should return the original classified error")
	}
}

func TestClassify_MapsNotFoundSentinel(t *testing.T) {
	err := fmt.Errorf("load: %w", domain.ErrFileNotFound)
	got := Classify(9, err)
	if got.Kind != KindNotFound {
		t.Errorf("expected not_found, got %s", got.Kind)
	}
	if got.Retryable() {
		t.Error("missing file record must not be retryable")
	}
}

func TestClassify_UnknownDefaultsRetryable(t *testing.T) {
	got := Classify(4, errors.New("something odd"))
	if got.Kind != KindUnknown {
		t.Errorf("expected unknown_error, got %s", got.Kind)
	}
	if !got.Retryable() {
		t.Error("unknown errors should be retryable")
	}
}

func TestProcessingError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	e := NewParse(2, fmt.Errorf("line 10: %w", inner))
	if !errors.Is(e, inner) {
		t.Error("errors.Is should reach the root cause")
	}
}
