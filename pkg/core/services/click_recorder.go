package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wadjakorntonsri/nexlink/pkg/core/domain"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
	"go.uber.org/zap"
)

// recordTimeout bounds a single click write; it is detached from the request.
const recordTimeout = 5 * time.Second

// ClickRecorder persists clicks off the redirect path. Track never blocks:
// events queue on a buffered channel served by a fixed worker pool, and when
// the buffer is full the event is written by its own goroutine instead of
// being dropped.
type ClickRecorder struct {
	repo   ports.ClickRepository
	logger *zap.Logger
	events chan domain.Click

	mu       sync.RWMutex
	closed   bool
	workers  sync.WaitGroup
	overflow sync.WaitGroup

	recorded atomic.Int64
	failed   atomic.Int64
}

// NewClickRecorder starts workerCount workers reading from a buffer of bufferSize.
func NewClickRecorder(repo ports.ClickRepository, workerCount, bufferSize int, logger *zap.Logger) *ClickRecorder {
	if workerCount < 1 {
		workerCount = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	r := &ClickRecorder{
		repo:   repo,
		logger: logger,
		events: make(chan domain.Click, bufferSize),
	}

	logger.Info("starting click workers", zap.Int("workers", workerCount), zap.Int("buffer", bufferSize))
	for i := 0; i < workerCount; i++ {
		r.workers.Add(1)
		go r.worker()
	}
	return r
}

// Track queues a click. Clicks arriving after Close are discarded.
func (r *ClickRecorder) Track(click domain.Click) {
	if click.ClickedAt.IsZero() {
		click.ClickedAt = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("click recorder closed, dropping click", zap.Int64("link_id", click.LinkID))
		return
	}

	select {
	case r.events <- click:
	default:
		r.overflow.Add(1)
		go func() {
			defer r.overflow.Done()
			r.record(click)
		}()
	}
}

// Close stops intake and waits for queued clicks to be written, or for ctx.
func (r *ClickRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		r.overflow.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports how many clicks were written and how many failed.
func (r *ClickRecorder) Stats() (recorded, failed int64) {
	return r.recorded.Load(), r.failed.Load()
}

func (r *ClickRecorder) worker() {
	defer r.workers.Done()
	for click := range r.events {
		r.record(click)
	}
}

func (r *ClickRecorder) record(click domain.Click) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.Record(ctx, &click); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to record click",
			zap.Int64("link_id", click.LinkID),
			zap.String("ip", click.IPAddress),
			zap.String("user_agent", click.UserAgent),
			zap.Error(err))
		return
	}
	r.recorded.Add(1)
}

var _ ports.ClickTracker = (*ClickRecorder)(nil)
