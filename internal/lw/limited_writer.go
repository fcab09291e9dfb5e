// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Writers with bounded capacity.
//
// LimitedWriter is a symmetrical implementation to io.LimitedReader, it
// refuses writes past its limit. TailWriter never refuses a write and keeps
// only the most recent bytes, which suits subprocess output capture.
package lw

import (
	"errors"
	"io"
	"sync"
)

var ErrLimitedWriterOverflow = errors.New("LimitedWriter overflow")

type LimitedWriter struct {
	// Apply limits to this Writer
	W io.Writer
	// Remaining capacity
	N uint
}

// Write implements io.Writer for *LimitedWriter. A write that does not fit
// is rejected as a whole.
func (s *LimitedWriter) Write(b []byte) (int, error) {
	if uint(len(b)) > s.N {
		return 0, ErrLimitedWriterOverflow
	}
	n, err := s.W.Write(b)
	s.N -= uint(n)
	return n, err
}

func LimitWriter(w io.Writer, n uint) *LimitedWriter {
	return &LimitedWriter{w, n}
}

// TailWriter keeps the last Size bytes written to it. It is safe for
// concurrent use.
type TailWriter struct {
	mu      sync.Mutex
	size    int
	buf     []byte
	dropped int64
}

func NewTailWriter(size int) *TailWriter {
	return &TailWriter{size: size, buf: make([]byte, 0, size)}
}

// Write implements io.Writer for *TailWriter, it never fails.
func (t *TailWriter) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(b)
	if len(b) > t.size {
		t.dropped += int64(len(b) - t.size)
		b = b[len(b)-t.size:]
	}
	if over := len(t.buf) + len(b) - t.size; over > 0 {
		t.dropped += int64(over)
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, b...)
	return n, nil
}

// Bytes returns a copy of the retained tail.
func (t *TailWriter) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf...)
}

// Truncated reports whether some output was dropped.
func (t *TailWriter) Truncated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped > 0
}

func (t *TailWriter) String() string {
	if t.Truncated() {
		return "[...]" + string(t.Bytes())
	}
	return string(t.Bytes())
}
