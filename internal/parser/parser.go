package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// Line grammar: [timestamp] [VEHICLE_ID:id] [level] [CODE:code] [message]
// The final segment is the message even when it contains brackets, so the
// message group is greedy and anchored to the closing bracket at end of line.
var lineRe = regexp.MustCompile(`^\[([^\]]+)\]\s*\[VEHICLE_ID:([^\]]+)\]\s*\[([^\]]+)\]\s*\[CODE:([^\]]+)\]\s*\[(.+)\]$`)

// Timestamp layouts accepted, tried in order.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Parse parses a single log line (trailing newline already stripped) into a
// LogRecord. A non-nil error means the line is rejected; rejects are not
// failures, the caller logs them at low severity and moves on.
func Parse(line string) (*domain.LogRecord, error) {
	m := lineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, fmt.Errorf("line does not match log format")
	}

	ts, err := parseTimestamp(m[1])
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", m[1], err)
	}

	level, ok := domain.NormalizeLevel(m[3])
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", m[3])
	}

	return &domain.LogRecord{
		VehicleID: strings.TrimSpace(m[2]),
		Timestamp: ts,
		Level:     level,
		Code:      strings.TrimSpace(m[4]),
		Message:   strings.TrimSpace(m[5]),
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timeLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
