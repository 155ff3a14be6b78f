package parser

import (
	"bufio"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultSampleLines is how many lines of the file head the format gate
	// inspects before a file is accepted for ingestion.
	DefaultSampleLines = 100

	// DefaultMinValidRatio is the fraction of sampled lines that must parse.
	DefaultMinValidRatio = 0.5
)

// ValidateFormat samples up to sampleLines lines from r and returns an error
// when fewer than minRatio of them parse. This gates a file before it is
// enqueued; per-line rejects during ingestion itself are never fatal.
func ValidateFormat(r io.Reader, sampleLines int, minRatio float64) error {
	if sampleLines <= 0 {
		sampleLines = DefaultSampleLines
	}
	if minRatio <= 0 {
		minRatio = DefaultMinValidRatio
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var total, valid int
	for scanner.Scan() && total < sampleLines {
		total++
		if _, err := Parse(scanner.Text()); err == nil {
			valid++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read sample lines: %w", err)
	}

	ratio := 0.0
	if total > 0 {
		ratio = float64(valid) / float64(total)
	}

	log.Debug().
		Int("sampled_lines", total).
		Int("valid_lines", valid).
		Float64("valid_ratio", ratio).
		Msg("Validated file format sample")

	if ratio < minRatio {
		return fmt.Errorf("file format validation failed: only %.1f%% of %d sampled lines match the expected format", ratio*100, total)
	}

	return nil
}
