package trace

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"github.com/fxamacker/cbor/v2"
)

const (
	defaultDirPerm    = 0o755
	defaultFilePerm   = 0o644
	DefaultBufferSize = 256
)

// FileRecorder appends records to a file from a background goroutine.
type FileRecorder struct {
	file    *os.File
	encoder *cbor.Encoder
	records chan Record
	done    chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewFileRecorder opens path for appending, creating it and its directory
// as needed.
func NewFileRecorder(path string, bufferSize int) (*FileRecorder, error) {
	errFactory := errors.New()

	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrOpenFile, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFile, err)
	}

	r := &FileRecorder{
		file:    f,
		encoder: encMode.NewEncoder(f),
		records: make(chan Record, bufferSize),
		done:    make(chan struct{}),
	}
	go r.writer()

	return r, nil
}

// Record queues rec. It never blocks; records are dropped when the queue
// is full or the recorder is closed.
func (r *FileRecorder) Record(rec Record) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return
	}

	select {
	case r.records <- rec:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many records were discarded.
func (r *FileRecorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Failed returns how many records could not be encoded.
func (r *FileRecorder) Failed() uint64 {
	return r.failed.Load()
}

// Close flushes queued records and closes the file. Safe to call more
// than once.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.records)
	r.mu.Unlock()

	<-r.done

	if err := r.file.Close(); err != nil {
		return errors.New().Wrap(ErrCloseFile, err)
	}
	return nil
}

func (r *FileRecorder) writer() {
	defer close(r.done)

	for rec := range r.records {
		if err := r.encoder.Encode(rec); err != nil {
			r.failed.Add(1)
		}
	}
}

var _ Recorder = (*FileRecorder)(nil)
