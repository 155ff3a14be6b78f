package queue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type permanentErr struct{ msg string }

func (e *permanentErr) Error() string   { return e.msg }
func (e *permanentErr) Retryable() bool { return false }

func TestIsRetryable(t *testing.T) {
	if !isRetryable(errors.New("plain error")) {
		t.Error("plain errors should default to retryable")
	}
	if isRetryable(&permanentErr{"gone"}) {
		t.Error("permanent errors must not be retryable")
	}
	wrapped := fmt.Errorf("processing: %w", &permanentErr{"gone"})
	if isRetryable(wrapped) {
		t.Error("wrapped permanent errors must not be retryable")
	}
}

func TestDeliveryAttempts(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"no headers", nil, 1},
		{"missing key", amqp.Table{}, 1},
		{"int32", amqp.Table{attemptsHeader: int32(3)}, 3},
		{"int64", amqp.Table{attemptsHeader: int64(5)}, 5},
		{"wrong type", amqp.Table{attemptsHeader: "2"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deliveryAttempts(amqp.Delivery{Headers: tt.headers})
			if got != tt.want {
				t.Errorf("deliveryAttempts() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	c := &Consumer{policy: RetryPolicy{
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		MaxAttempts:  10,
	}}

	if got := c.backoff(1); got != time.Second {
		t.Errorf("attempt 1: got %v, want 1s", got)
	}
	if got := c.backoff(2); got != 2*time.Second {
		t.Errorf("attempt 2: got %v, want 2s", got)
	}
	if got := c.backoff(3); got != 4*time.Second {
		t.Errorf("attempt 3: got %v, want 4s", got)
	}
	if got := c.backoff(4); got != 5*time.Second {
		t.Errorf("attempt 4: got %v, want capped 5s", got)
	}
	if got := c.backoff(8); got != 5*time.Second {
		t.Errorf("attempt 8: got %v, want capped 5s", got)
	}
}
