package stream

import (
	"io"
	"strings"
	"testing"
)

func readAll(t *testing.T, r *Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, _, err := r.Next()
		if err == io.EOF {
			return lines
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		lines = append(lines, line)
	}
}

func TestReader_OffsetTracking(t *testing.T) {
	input := "alpha\nbeta\n\ngamma\n"
	r := NewReader(strings.NewReader(input), 0)

	lines := readAll(t, r)
	want := []string{"alpha", "beta", "", "gamma"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
	if r.Offset() != int64(len(input)) {
		t.Errorf("expected final offset %d, got %d", len(input), r.Offset())
	}
	if r.Lines() != 4 {
		t.Errorf("expected 4 lines counted, got %d", r.Lines())
	}
}

func TestReader_BaseOffset(t *testing.T) {
	// Simulates a ranged GET: the stream starts mid-file at offset 100.
	r := NewReader(strings.NewReader("tail line\n"), 100)
	if _, n, err := r.Next(); err != nil || n != 10 {
		t.Fatalf("Next() = n=%d err=%v, want n=10", n, err)
	}
	if r.Offset() != 110 {
		t.Errorf("expected offset 110, got %d", r.Offset())
	}
}

func TestReader_CRLF(t *testing.T) {
	input := "one\r\ntwo\r\n"
	r := NewReader(strings.NewReader(input), 0)

	line, n, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if line != "one" {
		t.Errorf("expected carriage return stripped from content, got %q", line)
	}
	if n != 5 {
		t.Errorf("expected 5 bytes consumed for CRLF line, got %d", n)
	}
	readAll(t, r)
	if r.Offset() != int64(len(input)) {
		t.Errorf("expected byte-exact offset %d, got %d", len(input), r.Offset())
	}
}

func TestReader_FinalLineWithoutNewline(t *testing.T) {
	r := NewReader(strings.NewReader("a\nlast"), 0)

	lines := readAll(t, r)
	if len(lines) != 2 || lines[1] != "last" {
		t.Fatalf("expected unterminated final line to be yielded, got %v", lines)
	}
	if r.Offset() != 6 {
		t.Errorf("expected offset 6, got %d", r.Offset())
	}
}

func TestNewReaderAt_SkipsByByteCount(t *testing.T) {
	input := "0123456789\nresume here\n"
	skip := int64(len("0123456789\n"))

	r, err := NewReaderAt(strings.NewReader(input), skip)
	if err != nil {
		t.Fatalf("NewReaderAt() error: %v", err)
	}
	line, _, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if line != "resume here" {
		t.Errorf("expected first line after skip to be %q, got %q", "resume here", line)
	}
	if r.Offset() != int64(len(input)) {
		t.Errorf("expected offset %d, got %d", len(input), r.Offset())
	}
}

func TestNewReaderAt_SkipMidLine(t *testing.T) {
	// Skip-by-count lands mid-line; the remainder of that line is yielded
	// as-is, which is exactly what byte-exact resume requires.
	r, err := NewReaderAt(strings.NewReader("abcdef\n"), 3)
	if err != nil {
		t.Fatalf("NewReaderAt() error: %v", err)
	}
	line, n, err := r.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if line != "def" || n != 4 {
		t.Errorf("expected (def, 4), got (%q, %d)", line, n)
	}
}

func TestNewReaderAt_SkipPastEnd(t *testing.T) {
	if _, err := NewReaderAt(strings.NewReader("short"), 100); err == nil {
		t.Error("expected error when skip exceeds stream length")
	}
}
