package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/PrimeBot/internal/models"
)

var (
	// ErrSessionBusy is returned when a user's inbound queue is full.
	ErrSessionBusy = errors.New("session busy")
	// ErrRunnerClosed is returned after Close.
	ErrRunnerClosed = errors.New("session runner closed")
)

// Default runner tuning.
const (
	DefaultQueueSize   = 8
	DefaultIdleTimeout = 10 * time.Minute
)

type turnProcessor interface {
	Send(ctx context.Context, sess models.Session, text string) TurnResult
}

type sessionStore interface {
	Load(ctx context.Context, userID string) (models.Session, error)
	Save(ctx context.Context, sess models.Session) error
	Reset(ctx context.Context, userID string) error
}

type jobKind int

const (
	jobSend jobKind = iota
	jobReset
)

type job struct {
	ctx  context.Context
	kind jobKind
	text string
	// done runs on the worker goroutine before the next job starts.
	done func(jobResult)
}

type jobResult struct {
	result TurnResult
	err    error
}

type worker struct {
	userID string
	jobs   chan job
}

// SessionRunner serializes turns per user. Each active user gets one goroutine
// reading an ordered queue; different users run in parallel.
type SessionRunner struct {
	proc        turnProcessor
	sessions    sessionStore
	queueSize   int
	idleTimeout time.Duration

	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// RunnerOption configures a SessionRunner.
type RunnerOption func(*SessionRunner)

// WithQueueSize sets how many turns may wait per user before ErrSessionBusy.
func WithQueueSize(n int) RunnerOption {
	return func(r *SessionRunner) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithIdleTimeout sets how long an idle worker lives.
func WithIdleTimeout(d time.Duration) RunnerOption {
	return func(r *SessionRunner) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// NewSessionRunner creates a runner that loads sessions from sessions, runs them
// through proc and saves them back.
func NewSessionRunner(proc turnProcessor, sessions sessionStore, opts ...RunnerOption) *SessionRunner {
	r := &SessionRunner{
		proc:        proc,
		sessions:    sessions,
		queueSize:   DefaultQueueSize,
		idleTimeout: DefaultIdleTimeout,
		workers:     make(map[string]*worker),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit queues text for userID and waits for the turn to complete.
func (r *SessionRunner) Submit(ctx context.Context, userID, text string) (TurnResult, error) {
	res := r.await(ctx, userID, job{ctx: ctx, kind: jobSend, text: text})
	return res.result, res.err
}

// SubmitAsync queues text for userID and returns once it is queued. fn receives
// the outcome on the user's worker goroutine, so callbacks for one user run in
// submission order and never overlap.
func (r *SessionRunner) SubmitAsync(ctx context.Context, userID, text string, fn func(TurnResult, error)) error {
	return r.enqueue(userID, job{ctx: ctx, kind: jobSend, text: text, done: func(res jobResult) {
		fn(res.result, res.err)
	}})
}

// Reset deletes the user's session, ordered after any queued turns.
func (r *SessionRunner) Reset(ctx context.Context, userID string) error {
	return r.await(ctx, userID, job{ctx: ctx, kind: jobReset}).err
}

func (r *SessionRunner) await(ctx context.Context, userID string, j job) jobResult {
	reply := make(chan jobResult, 1)
	j.done = func(res jobResult) { reply <- res }
	if err := r.enqueue(userID, j); err != nil {
		return jobResult{err: err}
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return jobResult{err: ctx.Err()}
	}
}

func (r *SessionRunner) enqueue(userID string, j job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}
	w, ok := r.workers[userID]
	if !ok {
		w = &worker{userID: userID, jobs: make(chan job, r.queueSize)}
		r.workers[userID] = w
		r.wg.Add(1)
		go r.run(w)
	}
	select {
	case w.jobs <- j:
		return nil
	default:
		slog.Warn("SessionRunner.enqueue: queue full", "userID", userID, "queueSize", r.queueSize)
		return ErrSessionBusy
	}
}

func (r *SessionRunner) run(w *worker) {
	defer r.wg.Done()
	slog.Debug("SessionRunner.run: worker started", "userID", w.userID)

	idle := time.NewTimer(r.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case j := <-w.jobs:
			select {
			case <-r.done:
				j.done(jobResult{err: ErrRunnerClosed})
				continue
			default:
			}
			j.done(r.process(w.userID, j))
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.idleTimeout)
		case <-idle.C:
			r.mu.Lock()
			if len(w.jobs) > 0 {
				r.mu.Unlock()
				idle.Reset(r.idleTimeout)
				continue
			}
			delete(r.workers, w.userID)
			r.mu.Unlock()
			slog.Debug("SessionRunner.run: worker idle, exiting", "userID", w.userID)
			return
		case <-r.done:
			for {
				select {
				case j := <-w.jobs:
					j.done(jobResult{err: ErrRunnerClosed})
				default:
					return
				}
			}
		}
	}
}

func (r *SessionRunner) process(userID string, j job) jobResult {
	if err := j.ctx.Err(); err != nil {
		return jobResult{err: err}
	}
	if j.kind == jobReset {
		return jobResult{err: r.sessions.Reset(j.ctx, userID)}
	}

	sess, err := r.sessions.Load(j.ctx, userID)
	if err != nil {
		return jobResult{err: err}
	}
	res := r.proc.Send(j.ctx, sess, j.text)
	if err := r.sessions.Save(context.WithoutCancel(j.ctx), res.Session); err != nil {
		return jobResult{result: res, err: err}
	}
	slog.Debug("SessionRunner.process: turn complete", "userID", userID, "mode", res.Session.Mode, "replies", len(res.Replies))
	return jobResult{result: res}
}

// ActiveSessions reports how many user workers are running.
func (r *SessionRunner) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

func (r *SessionRunner) queued(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[userID]; ok {
		return len(w.jobs)
	}
	return 0
}

// Close stops accepting turns, fails queued ones with ErrRunnerClosed and waits
// for in-flight turns to finish.
func (r *SessionRunner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	slog.Info("SessionRunner.Close: all workers stopped")
	return nil
}
