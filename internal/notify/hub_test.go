package notify

import (
	"context"
	"testing"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

func TestHub_DeliversToFileSubscriber(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(7, 4)
	defer cancel()

	ev := domain.ProgressEvent{FileID: 7, Status: domain.StatusProcessing, ProgressPercent: 50}
	if err := h.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-ch:
		if got.FileID != 7 || got.ProgressPercent != 50 {
			t.Errorf("unexpected event: %+v", got)
		}
	default:
		t.Fatal("expected an event")
	}
}

func TestHub_FiltersByFileID(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1, 4)
	defer cancel()

	_ = h.Publish(context.Background(), domain.ProgressEvent{FileID: 2})

	select {
	case ev := <-ch:
		t.Errorf("subscriber for file 1 received event for file %d", ev.FileID)
	default:
	}
}

func TestHub_GlobalSubscriberSeesAll(t *testing.T) {
	h := NewHub()
	ch, cancel := h.SubscribeAll(4)
	defer cancel()

	_ = h.Publish(context.Background(), domain.ProgressEvent{FileID: 1})
	_ = h.Publish(context.Background(), domain.ProgressEvent{FileID: 2})

	if len(ch) != 2 {
		t.Errorf("expected 2 buffered events, got %d", len(ch))
	}
}

func TestHub_NonBlockingOnFullBuffer(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe(1, 1)
	defer cancel()

	// Second publish must not block even though the buffer is full.
	_ = h.Publish(context.Background(), domain.ProgressEvent{FileID: 1})
	_ = h.Publish(context.Background(), domain.ProgressEvent{FileID: 1})
}

func TestHub_CancelRemovesSubscriber(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1, 4)
	cancel()

	_ = h.Publish(context.Background(), domain.ProgressEvent{FileID: 1})
	if len(ch) != 0 {
		t.Error("cancelled subscriber should not receive events")
	}
}
