package log

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
)

// DefaultFileBuffer is the write buffer of a FileLogger.
const DefaultFileBuffer = 64 << 10

// FileOptions tunes a FileLogger.
type FileOptions struct {
	// SkipFrames drops transport-layer frame events. BLOB downloads make
	// frames the bulk of a capture; decoded messages still record their
	// size.
	SkipFrames bool

	// BufferSize is the write buffer in bytes (default: DefaultFileBuffer).
	// Buffered events reach the file on Flush, Close or when the buffer
	// fills.
	BufferSize int
}

// FileLogger appends protocol events to an .ilog file.
// It is safe for concurrent use.
type FileLogger struct {
	opts FileOptions

	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	enc    *cbor.Encoder
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewFileLogger opens path for appending with default options, creating
// the file with mode 0644 when needed.
func NewFileLogger(path string) (*FileLogger, error) {
	return OpenFileLogger(path, FileOptions{})
}

// OpenFileLogger opens path for appending.
func OpenFileLogger(path string, opts FileOptions) (*FileLogger, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultFileBuffer
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	buf := bufio.NewWriterSize(f, opts.BufferSize)
	return &FileLogger{
		opts: opts,
		file: f,
		buf:  buf,
		enc:  NewEncoder(buf),
	}, nil
}

// Log appends an event. Events that fail to encode are counted as dropped;
// logging never fails the caller.
func (l *FileLogger) Log(event Event) {
	if l.opts.SkipFrames && event.Frame != nil && event.Layer == LayerTransport {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.dropped.Add(1)
		return
	}
	l.written.Add(1)
}

// Flush writes buffered events to the file.
func (l *FileLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	return l.buf.Flush()
}

// Written returns the number of events encoded so far.
func (l *FileLogger) Written() uint64 { return l.written.Load() }

// Dropped returns the number of events that failed to encode or write.
func (l *FileLogger) Dropped() uint64 { return l.dropped.Load() }

// Close flushes and closes the file. Later calls to Log are ignored and
// further Close calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	flushErr := l.buf.Flush()
	closeErr := l.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

var _ Logger = (*FileLogger)(nil)
