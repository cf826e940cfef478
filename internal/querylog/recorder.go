package querylog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/salesqa/salesqa/internal/observability"
)

var errQueueFull = errors.New("query log queue is full")

type RecorderConfig struct {
	QueueSize int
	Timeout   time.Duration
}

// Recorder hands entries to a background writer. Record never blocks; when
// the queue is full the entry is dropped and reported.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

func NewRecorder(sink Sink, cfg RecorderConfig, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r := &Recorder{
		sink:    sink,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
		queue:   make(chan Entry, queueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) Record(entry Entry) {
	if r == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Debug("query log entry dropped after close", slog.String("id", entry.ID))
		return
	}
	select {
	case r.queue <- entry:
	default:
		observability.ObserveQueryLogWrite(errQueueFull)
		r.logger.Warn("query log entry dropped", slog.String("id", entry.ID), slog.Any("error", errQueueFull))
	}
}

// Close stops accepting entries and waits for queued ones to be written or
// for ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.queue {
		r.write(entry)
	}
}

func (r *Recorder) write(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	err := r.sink.Insert(ctx, entry)
	observability.ObserveQueryLogWrite(err)
	if err != nil {
		r.logger.Warn("query log write failed",
			slog.String("id", entry.ID),
			slog.String("mode", entry.Mode),
			slog.Any("error", err),
		)
	}
}
