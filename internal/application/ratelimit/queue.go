package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

var (
	ErrQueueClosed  = errors.New("request queue closed")
	ErrQueueCleared = errors.New("request queue cleared")
)

// Func is one call against the backend.
type Func func(ctx context.Context) error

type item struct {
	ctx     context.Context
	fn      Func
	retries int
	addedAt time.Time
	done    chan error
}

// QueueStatus is a snapshot for status endpoints.
type QueueStatus struct {
	Length     int  `json:"length"`
	Processing bool `json:"processing"`
}

// Queue runs calls one at a time in FIFO order. A worker goroutine is
// started on the first enqueue and exits when the queue drains.
type Queue struct {
	limiter *Limiter
	clock   application.Clock
	sleep   application.SleepFunc
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	items      []*item
	processing bool
	closed     bool
	wg         sync.WaitGroup
}

func NewQueue(limiter *Limiter, clock application.Clock, sleep application.SleepFunc) *Queue {
	if sleep == nil {
		sleep = application.Sleep
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		limiter: limiter,
		clock:   clock,
		sleep:   sleep,
		cfg:     limiter.Config(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Do enqueues fn and waits for its outcome. A rate_limit error from fn is
// retried at the front of the queue up to MaxRetries times. Cancelling ctx
// abandons the wait; a call already dispatched runs to completion with the
// values of ctx but without its cancellation.
func (q *Queue) Do(ctx context.Context, fn Func) error {
	it := &item{ctx: ctx, fn: fn, addedAt: q.clock.Now(), done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, it)
	start := !q.processing
	q.processing = true
	q.mu.Unlock()

	if start {
		q.wg.Add(1)
		go q.run()
	}

	select {
	case err := <-it.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) backoff(retry int) time.Duration {
	return time.Duration(float64(q.cfg.RetryDelay) * math.Pow(q.cfg.BackoffMultiplier, float64(retry-1)))
}

func (q *Queue) pop() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		q.processing = false
		return nil
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it
}

func (q *Queue) pushFront(it *item) {
	q.mu.Lock()
	q.items = append([]*item{it}, q.items...)
	q.mu.Unlock()
}

func (q *Queue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		q.processing = false
		return true
	}
	return false
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		if q.empty() {
			return
		}
		if wait := q.limiter.Cooldown(q.ctx); wait > 0 {
			log.Info().Dur("wait", wait).Msg("queue waiting for rate limit cooldown")
			if err := q.sleep(q.ctx, wait); err != nil {
				q.drain(ErrQueueClosed)
				return
			}
		}
		if q.ctx.Err() != nil {
			q.drain(ErrQueueClosed)
			return
		}
		it := q.pop()
		if it == nil {
			return
		}
		if err := it.ctx.Err(); err != nil {
			it.done <- err
			continue
		}

		log.Debug().Dur("queued", q.clock.Now().Sub(it.addedAt)).Int("retries", it.retries).Msg("dispatching request")
		q.limiter.TrackRequest(q.ctx)
		err := it.fn(context.WithoutCancel(it.ctx))

		if err != nil && apperr.Is(err, apperr.KindRateLimit) {
			q.limiter.SetRateLimited(q.ctx, apperr.RetryAfterOf(err))
			if it.retries < q.cfg.MaxRetries {
				it.retries++
				delay := q.backoff(it.retries)
				log.Warn().Int("retry", it.retries).Dur("delay", delay).Msg("rate limited, retrying")
				if serr := q.sleep(q.ctx, delay); serr != nil {
					it.done <- ErrQueueClosed
					q.drain(ErrQueueClosed)
					return
				}
				q.pushFront(it)
				continue
			}
			err = &apperr.Error{
				Kind:    apperr.KindRateLimit,
				Message: "rate limit exceeded, please try again later",
				Err:     err,
			}
		}
		it.done <- err

		if serr := q.sleep(q.ctx, q.cfg.Spacing); serr != nil {
			q.drain(ErrQueueClosed)
			return
		}
	}
}

func (q *Queue) drain(err error) {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.processing = false
	q.mu.Unlock()
	for _, it := range items {
		it.done <- err
	}
}

// Clear rejects every pending call.
func (q *Queue) Clear() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	for _, it := range items {
		it.done <- ErrQueueCleared
	}
}

func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{Length: len(q.items), Processing: q.processing}
}

// Close stops the worker and rejects pending calls.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
	q.drain(ErrQueueClosed)
}

// Status combines limiter and queue state.
type Status struct {
	IsLimited       bool        `json:"isLimited"`
	CooldownSeconds int         `json:"cooldownSeconds"`
	RecentRequests  int         `json:"recentRequests"`
	MaxRequests     int         `json:"maxRequests"`
	Queue           QueueStatus `json:"queue"`
}

func (q *Queue) RateStatus(ctx context.Context) Status {
	cd := q.limiter.Cooldown(ctx)
	return Status{
		IsLimited:       cd > 0,
		CooldownSeconds: int(math.Ceil(cd.Seconds())),
		RecentRequests:  q.limiter.RecentRequests(ctx),
		MaxRequests:     q.cfg.MaxRequestsPerMinute,
		Queue:           q.Status(),
	}
}
