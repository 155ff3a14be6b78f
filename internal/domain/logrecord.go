package domain

import (
	"strings"
	"time"
)

// Level is the severity of a diagnostic log line.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelDebug Level = "DEBUG"
)

// NormalizeLevel maps a raw level token to a Level. Matching is
// case-insensitive and WARNING is accepted as an alias for WARN.
func NormalizeLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "DEBUG":
		return LevelDebug, true
	default:
		return "", false
	}
}

// LogRecord is one successfully parsed log line. Its logical identity is the
// fingerprint over (VehicleID, Timestamp, Code, Message), not a store-assigned
// id; the fingerprint is what makes re-ingestion after a crash idempotent.
type LogRecord struct {
	FileID    uint      `json:"fileId"`
	VehicleID string    `json:"vehicleId"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
}
