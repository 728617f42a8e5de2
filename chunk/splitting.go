// Package chunk implements fixed-size block splitting.
//
// Boundaries depend only on the input bytes and the block size, so the same
// content always splits the same way and yields the same CIDs.
package chunk

import (
	"errors"
	"io"

	"nearfs.io/upload/model"
)

// DefaultSize is the maximum block size, matching the Kubo default chunker
// (size-262144).
const DefaultSize = 256 * 1024

// Splitter lazily reads fixed-size chunks from a reader.
type Splitter struct {
	r    io.Reader
	size int
	n    int // chunks returned so far
	done bool
}

// NewSplitter returns a Splitter producing chunks of at most size bytes.
func NewSplitter(r io.Reader, size int) (*Splitter, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	return &Splitter{r: r, size: size}, nil
}

// Size returns the configured maximum chunk size.
func (s *Splitter) Size() int { return s.size }

// Next returns the next chunk, or io.EOF once the input is exhausted.
// An empty input yields exactly one empty chunk before io.EOF.
func (s *Splitter) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
	case errors.Is(err, io.EOF):
		s.done = true
		if s.n > 0 {
			return nil, io.EOF
		}
	default:
		return nil, err
	}
	s.n++
	return buf[:n], nil
}

// Split partitions data into chunks of at most size bytes.
// The chunks alias data.
func Split(data []byte, size int) ([][]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{data[:0:0]}, nil
	}
	out := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		out = append(out, data[off:end:end])
	}
	return out, nil
}

// Count returns how many chunks Split would produce for n bytes.
func Count(n int64, size int) int {
	if n <= 0 || size <= 0 {
		return 1
	}
	return int((n + int64(size) - 1) / int64(size))
}

func checkSize(size int) error {
	if size <= 0 {
		return model.NewError(model.KindConfiguration, "chunk: block size must be positive, got %d", size)
	}
	return nil
}
