// Package jobs keeps the in-memory registry of background analyses so a
// client can disconnect and pick up the result later.
package jobs

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/analysis"
	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	domain "github.com/bryanwahyu/trapscan/internal/domain/jobs"
)

const DefaultRetention = 30 * time.Minute

type entry struct {
	job   domain.Job
	timer *time.Timer
	subs  []chan domain.Job
}

// Registry maps URL to its latest job. Safe for concurrent use.
type Registry struct {
	clock     application.Clock
	retention time.Duration

	mu     sync.RWMutex
	jobs   map[string]*entry
	closed bool
}

func NewRegistry(clock application.Clock, retention time.Duration) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{clock: clock, retention: retention, jobs: make(map[string]*entry)}
}

// Start registers a new analyzing job for url, replacing any previous one.
func (r *Registry) Start(url string) domain.Job {
	job := domain.Job{
		ID:        ulid.Make().String(),
		URL:       url,
		Status:    domain.StatusAnalyzing,
		StartTime: r.clock.Now(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.jobs[url]; ok {
		if old.timer != nil {
			old.timer.Stop()
		}
		// subscribers of a superseded run follow the new one
		r.jobs[url] = &entry{job: job, subs: old.subs}
	} else {
		r.jobs[url] = &entry{job: job}
	}
	return job
}

// Complete records a successful result for job id. It is a no-op when a
// newer run has replaced the job.
func (r *Registry) Complete(id, url string, result *analysis.Result) bool {
	return r.finish(id, url, func(j *domain.Job) {
		j.Status = domain.StatusComplete
		j.Result = result
	})
}

// Fail records the error for job id.
func (r *Registry) Fail(id, url string, err error) bool {
	msg := "analysis failed"
	if err != nil {
		msg = err.Error()
	}
	return r.finish(id, url, func(j *domain.Job) {
		j.Status = domain.StatusError
		j.Error = msg
		j.ErrorKind = apperr.KindOf(err)
		if j.ErrorKind == "" {
			j.ErrorKind = apperr.KindUnknown
		}
	})
}

func (r *Registry) finish(id, url string, apply func(*domain.Job)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[url]
	if !ok || e.job.ID != id || e.job.Done() {
		log.Debug().Str("url", url).Str("job", id).Msg("dropping stale job completion")
		return false
	}
	now := r.clock.Now()
	apply(&e.job)
	e.job.CompletedAt = &now

	for _, ch := range e.subs {
		ch <- e.job
		close(ch)
	}
	e.subs = nil

	if !r.closed {
		e.timer = time.AfterFunc(r.retention, func() { r.expire(url, id) })
	}
	return true
}

func (r *Registry) expire(url, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.jobs[url]; ok && e.job.ID == id {
		delete(r.jobs, url)
		log.Debug().Str("url", url).Msg("job expired")
	}
}

func (r *Registry) Get(url string) (domain.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[url]
	if !ok {
		return domain.Job{}, false
	}
	return e.job, true
}

// Status returns the polling view for url; status none when unknown.
func (r *Registry) Status(url string) domain.View {
	job, ok := r.Get(url)
	if !ok {
		return domain.View{Status: domain.StatusNone}
	}
	return job.View()
}

// Subscribe returns a channel that receives the job for url once it
// finishes. A finished job is delivered immediately. ok is false when no job
// exists for url.
func (r *Registry) Subscribe(url string) (<-chan domain.Job, func(), bool) {
	ch := make(chan domain.Job, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, exists := r.jobs[url]
	if !exists {
		return nil, func() {}, false
	}
	if e.job.Done() {
		ch <- e.job
		close(ch)
		return ch, func() {}, true
	}
	e.subs = append(e.subs, ch)
	cancel := func() { r.unsubscribe(url, ch) }
	return ch, cancel, true
}

func (r *Registry) unsubscribe(url string, ch chan domain.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[url]
	if !ok {
		return
	}
	for i, c := range e.subs {
		if c == ch {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Len is the number of tracked URLs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Running counts jobs still analyzing.
func (r *Registry) Running() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.jobs {
		if !e.job.Done() {
			n++
		}
	}
	return n
}

// Close stops pending expiry timers.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, e := range r.jobs {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}
