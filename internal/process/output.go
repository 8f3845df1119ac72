// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package process

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxLineBytes caps a single buffered line. Longer output without a newline
// is split into several lines.
const maxLineBytes = 64 * 1024

// Stream identifies the source stream.
type Stream int

const (
	// Stdout is standard output.
	Stdout Stream = iota
	// Stderr is standard error.
	Stderr
)

// String returns the stream name.
func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// MarshalText encodes the stream by name.
func (s Stream) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stream name.
func (s *Stream) UnmarshalText(text []byte) error {
	switch string(text) {
	case "stdout":
		*s = Stdout
	case "stderr":
		*s = Stderr
	default:
		return fmt.Errorf("unknown stream %q", text)
	}
	return nil
}

// Line is one line of child output.
type Line struct {
	// Seq numbers lines across both streams, starting at 1.
	Seq    uint64    `json:"seq"`
	Stream Stream    `json:"stream"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// RingBuffer keeps the most recent lines of output. It is safe for
// concurrent use.
type RingBuffer struct {
	mu    sync.RWMutex
	lines []Line
	start int
	count int
	seq   uint64
}

// NewRingBuffer creates a buffer holding up to capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{lines: make([]Line, capacity)}
}

// Add appends a line, evicting the oldest when full.
func (b *RingBuffer) Add(stream Stream, text string) Line {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	line := Line{Seq: b.seq, Stream: stream, Text: text, Time: time.Now()}

	idx := (b.start + b.count) % len(b.lines)
	b.lines[idx] = line
	if b.count < len(b.lines) {
		b.count++
	} else {
		b.start = (b.start + 1) % len(b.lines)
	}
	return line
}

// Lines returns up to the last n lines, oldest first. n <= 0 returns all
// buffered lines.
func (b *RingBuffer) Lines(n int) []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]Line, n)
	for i := 0; i < n; i++ {
		out[i] = b.lines[(b.start+b.count-n+i)%len(b.lines)]
	}
	return out
}

// LinesAfter returns buffered lines with Seq greater than after, oldest
// first, and the highest Seq written so far. Passing the returned value back
// in yields only new lines. Lines already evicted are skipped.
func (b *RingBuffer) LinesAfter(after uint64) ([]Line, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if after >= b.seq {
		return nil, b.seq
	}
	n := b.seq - after
	if n > uint64(b.count) {
		n = uint64(b.count)
	}
	out := make([]Line, n)
	for i := uint64(0); i < n; i++ {
		out[i] = b.lines[(b.start+b.count-int(n)+int(i))%len(b.lines)]
	}
	return out, b.seq
}

// lineWriter splits a byte stream into lines for a RingBuffer. os/exec
// copies each child pipe into one of these from its own goroutine.
type lineWriter struct {
	mu      sync.Mutex
	buf     *RingBuffer
	stream  Stream
	log     zerolog.Logger
	partial []byte
}

func newLineWriter(buf *RingBuffer, stream Stream, logger zerolog.Logger) *lineWriter {
	return &lineWriter{
		buf:    buf,
		stream: stream,
		log:    logger.With().Str("stream", stream.String()).Logger(),
	}
}

// Write never fails, so the copy goroutine keeps reading and the child is
// never blocked on a full pipe.
func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.partial = append(w.partial, p...)
			for len(w.partial) >= maxLineBytes {
				w.emit(w.partial[:maxLineBytes])
				w.partial = append(w.partial[:0], w.partial[maxLineBytes:]...)
			}
			break
		}
		w.partial = append(w.partial, p[:i]...)
		w.emit(w.partial)
		w.partial = w.partial[:0]
		p = p[i+1:]
	}
	return n, nil
}

// flush emits a trailing line that had no newline.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.emit(w.partial)
		w.partial = w.partial[:0]
	}
}

func (w *lineWriter) emit(b []byte) {
	text := strings.TrimSuffix(string(b), "\r")
	line := w.buf.Add(w.stream, text)
	w.log.Debug().Uint64("seq", line.Seq).Str("line", text).Msg("Child output")
}
