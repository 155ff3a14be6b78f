package writer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fleetdiag/log-ingest/internal/domain"
)

// Fingerprint computes a deterministic identity for a log record from its
// semantic fields. The same record parsed from the same file twice yields the
// same fingerprint regardless of byte offset or line number.
func Fingerprint(r *domain.LogRecord) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		r.VehicleID,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Code,
		r.Message,
	)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
