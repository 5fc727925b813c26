package answerpipeline

import (
	"context"
	"sync"
	"time"

	"quizlive/internal/retryutil"
	"quizlive/internal/sessionstore"

	"github.com/rs/zerolog/log"
)

// flushRetryOptions bounds the in-process retry of a durable batch flush
// before the batch is handed back to the accumulator for the next
// interval/size-triggered attempt (component J, used by E per spec.md
// §4.E "Write batching").
var flushRetryOptions = retryutil.Options{
	MaxRetries:        2,
	InitialDelay:      50 * time.Millisecond,
	BackoffMultiplier: 2,
	IsRetryable:       retryutil.IsTransient(),
}

// flushFunc lets the caller wire whichever durable sink (possibly the
// logging decorator) should receive flushed batches.
type flushFunc func(ctx context.Context, answers []*sessionstore.Answer) error

// Accumulator is the per-process write-batching buffer for durable
// persistence: it flushes every batchInterval or once batchSize answers
// have queued, whichever comes first. A failed flush keeps the batch for
// the next attempt; the answer_accepted acknowledgement the client
// already received is never rolled back.
type Accumulator struct {
	flush flushFunc

	mu            sync.Mutex
	pending       []*sessionstore.Answer
	batchSize     int
	batchInterval time.Duration

	stop chan struct{}
	once sync.Once
}

// NewAccumulator builds an Accumulator that calls flush on each batch.
func NewAccumulator(batchSize int, batchInterval time.Duration, flush flushFunc) *Accumulator {
	return &Accumulator{
		batchSize:     batchSize,
		batchInterval: batchInterval,
		flush:         flush,
		stop:          make(chan struct{}),
	}
}

// Add enqueues one scored-or-unscored answer for the next batch flush.
func (a *Accumulator) Add(answer *sessionstore.Answer) {
	a.mu.Lock()
	a.pending = append(a.pending, answer)
	full := len(a.pending) >= a.batchSize
	a.mu.Unlock()

	if full {
		a.flushNow(context.Background())
	}
}

// Run drives the interval-based flush until Stop is called.
func (a *Accumulator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.batchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-ticker.C:
			a.flushNow(ctx)
		}
	}
}

func (a *Accumulator) Stop() {
	a.once.Do(func() { close(a.stop) })
}

func (a *Accumulator) flushNow(ctx context.Context) {
	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if a.flush == nil {
		return
	}
	err := retryutil.WithBackoff(ctx, func(ctx context.Context) error {
		return a.flush(ctx, batch)
	}, flushRetryOptions)
	if err != nil {
		log.Error().Err(err).Int("batch_size", len(batch)).Msg("durable batch flush failed, retaining for retry")
		a.mu.Lock()
		a.pending = append(batch, a.pending...)
		a.mu.Unlock()
	}
}
