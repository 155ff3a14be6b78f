package stream

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Reader yields line-delimited reads from a byte stream while tracking the
// absolute byte offset consumed. The offset advances by the actual bytes read
// per line (content plus separator), so checkpoints stay byte-exact for both
// LF and CRLF input; a trailing \r is stripped from the returned content.
type Reader struct {
	br     *bufio.Reader
	offset int64
	lines  int64
}

// NewReader wraps r, which must already be positioned at absolute offset base
// (e.g. via a ranged object-store GET).
func NewReader(r io.Reader, base int64) *Reader {
	return &Reader{
		br:     bufio.NewReaderSize(r, 64*1024),
		offset: base,
	}
}

// NewReaderAt wraps a non-seekable stream positioned at byte zero and
// discards exactly from bytes before the first read. The skip is by byte
// count, not by line, so resume offsets stay exact.
func NewReaderAt(r io.Reader, from int64) (*Reader, error) {
	if from > 0 {
		if _, err := io.CopyN(io.Discard, r, from); err != nil {
			return nil, fmt.Errorf("failed to skip to offset %d: %w", from, err)
		}
	}
	return NewReader(r, from), nil
}

// Next returns the next line with its trailing separator stripped and the
// number of bytes consumed from the stream, including the separator. It
// returns io.EOF once the stream is exhausted; a final line without a
// trailing newline is still returned before EOF.
func (r *Reader) Next() (string, int, error) {
	raw, err := r.br.ReadString('\n')
	if len(raw) == 0 {
		if err == nil {
			err = io.EOF
		}
		return "", 0, err
	}
	if err != nil && err != io.EOF {
		return "", 0, err
	}

	n := len(raw)
	line := strings.TrimSuffix(raw, "\n")
	line = strings.TrimSuffix(line, "\r")

	r.offset += int64(n)
	r.lines++
	return line, n, nil
}

// Offset is the absolute byte offset consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Lines is the number of lines yielded so far.
func (r *Reader) Lines() int64 {
	return r.lines
}
