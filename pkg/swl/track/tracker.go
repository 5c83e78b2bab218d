// Package track runs the client-side view of the backend profile-cache
// refresh job. A Tracker starts or resumes a run, polls its status on a
// fixed cadence, folds each response into the watchlist rows, and tells
// subscribers whenever the picture changes. At most one poll loop is alive
// per tracker; starting a new run supersedes the old loop instead of
// queueing behind it.
package track

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/screenerlab/swl/pkg/swl/aggregate"
	"github.com/screenerlab/swl/pkg/swl/api"
	"github.com/screenerlab/swl/pkg/swl/types"
)

// State is the tracker's lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StatePolling    State = "polling"
	StateCancelling State = "cancelling"
)

const (
	defaultInterval     = time.Second
	defaultFetchTimeout = 5 * time.Second
)

// ErrNoActiveJob is returned by Cancel when nothing is running.
var ErrNoActiveJob = errors.New("no refresh job is running")

// Backend is the slice of the API client the tracker needs.
type Backend interface {
	StartRefresh(ctx context.Context, waitSec float64, limit *int) (*api.JobRun, error)
	ResumeRefresh(ctx context.Context, waitSec float64, limit *int, skipCompleted bool) (*api.ResumeOutcome, error)
	RunStatus(ctx context.Context, jobID string) (*api.JobRun, error)
	AggregateStatus(ctx context.Context) (*api.AggregateStatus, error)
	CancelRefresh(ctx context.Context, jobID string) (*api.CancelResult, error)
}

// Tracker owns the rows, counters and poll loop for one refresh job.
type Tracker struct {
	backend Backend
	hub     *Hub

	interval     time.Duration
	fetchTimeout time.Duration

	mu       sync.Mutex
	state    State
	jobID    string
	rows     []types.Row
	counters types.Counters
	message  string

	stop chan struct{} // closed to halt the poll loop
	done chan struct{} // closed by the poll loop on exit
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithInterval sets the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithFetchTimeout bounds each status fetch inside a tick, so one stuck
// request cannot block the loop forever.
func WithFetchTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.fetchTimeout = d }
}

// New creates an idle tracker on top of a backend client.
func New(backend Backend, opts ...Option) *Tracker {
	t := &Tracker{
		backend:      backend,
		hub:          NewHub(),
		interval:     defaultInterval,
		fetchTimeout: defaultFetchTimeout,
		state:        StateIdle,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Subscribe registers a channel that receives a snapshot after every
// change. Callers must Unsubscribe when done.
func (t *Tracker) Subscribe() chan Event { return t.hub.Subscribe() }

// Unsubscribe removes a subscriber channel.
func (t *Tracker) Unsubscribe(ch chan Event) { t.hub.Unsubscribe(ch) }

// SetRows replaces the watchlist rows wholesale, normally after loading or
// refreshing the symbol cache. The row count becomes the fallback total
// until a run reports its own.
func (t *Tracker) SetRows(rows []types.Row) {
	t.mu.Lock()
	t.rows = append([]types.Row(nil), rows...)
	t.counters = aggregate.DeriveCounters(nil, nil, len(rows))
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.hub.Publish(snap)
}

// Snapshot returns a copy of the tracker's current view.
func (t *Tracker) Snapshot() Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Event {
	return Event{
		State:    t.state,
		JobID:    t.jobID,
		Rows:     append([]types.Row(nil), t.rows...),
		Counters: t.counters,
		Message:  t.message,
	}
}

// RunNow starts a fresh refresh run and begins polling it. Any poll loop
// already active is stopped first; the new run supersedes it rather than
// queueing. On a start failure the tracker ends up idle with its rows
// untouched.
func (t *Tracker) RunNow(ctx context.Context, waitSec float64, limit *int) error {
	t.stopPolling()

	run, err := t.backend.StartRefresh(ctx, waitSec, limit)
	if err != nil {
		return errors.Wrap(err, "failed to start refresh job")
	}
	t.beginRun(run)
	return nil
}

// Resume continues a partially-completed sweep. A backend answer of
// "nothing to do" sets an informational message and starts no polling.
func (t *Tracker) Resume(ctx context.Context, waitSec float64, limit *int, skipCompleted bool) error {
	t.stopPolling()

	out, err := t.backend.ResumeRefresh(ctx, waitSec, limit, skipCompleted)
	if err != nil {
		return errors.Wrap(err, "failed to resume refresh job")
	}
	if out.NoOp() {
		msg := out.Message
		if msg == "" {
			msg = "nothing to resume"
		}
		t.mu.Lock()
		t.message = msg
		snap := t.snapshotLocked()
		t.mu.Unlock()
		t.hub.Publish(snap)
		return nil
	}
	t.beginRun(out.Run)
	return nil
}

// beginRun merges the immediate start/resume response, seeds the counters
// from it, and spins up the poll loop. Runs that come back already
// finished, or without a job id to poll, are terminal right away.
func (t *Tracker) beginRun(run *api.JobRun) {
	t.mu.Lock()
	t.rows = aggregate.MergeRun(t.rows, run)
	t.counters = aggregate.DeriveCounters(run, nil, t.counters.Total)
	t.message = ""

	pollable := run.ID != "" && !run.Complete()
	if pollable {
		t.state = StatePolling
		t.jobID = run.ID
		t.stop = make(chan struct{})
		t.done = make(chan struct{})
	} else {
		t.state = StateIdle
		t.jobID = ""
	}
	stop, done := t.stop, t.done
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.hub.Publish(snap)
	if pollable {
		go t.poll(run.ID, stop, done)
	}
}

func (t *Tracker) poll(jobID string, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		// Re-check before going to the network so a cancel that landed
		// between ticks never spawns another fetch.
		select {
		case <-stop:
			return
		default:
		}
		if t.tick(jobID) {
			return
		}
	}
}

// tick fetches the run status and the all-time aggregate, in that order,
// and applies both in a single row/counter update. Returns true when the
// run is finished. Fetch failures are logged and swallowed; the loop keeps
// its schedule.
func (t *Tracker) tick(jobID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), t.fetchTimeout)
	defer cancel()

	run, err := t.backend.RunStatus(ctx, jobID)
	if err != nil {
		log.WithError(err).WithField("job_id", jobID).Warnln("status fetch failed, will retry next tick")
		return false
	}

	agg, err := t.backend.AggregateStatus(ctx)
	if err != nil {
		log.WithError(err).Debugln("aggregate fetch failed, falling back to run counters")
		agg = nil
	}

	t.mu.Lock()
	t.rows = aggregate.MergeRun(t.rows, run)
	t.counters = aggregate.DeriveCounters(run, agg, t.counters.Total)
	finished := run.Complete()
	if finished {
		t.state = StateIdle
		t.jobID = ""
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.hub.Publish(snap)
	return finished
}

// Cancel stops the poll loop, asks the backend to cancel the active run,
// and does one best-effort status fetch to reconcile the final counts.
// Returns ErrNoActiveJob when nothing is running. The in-flight tick, if
// any, finishes and applies its merge before the backend cancel goes out.
func (t *Tracker) Cancel(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StatePolling || t.jobID == "" {
		t.mu.Unlock()
		return ErrNoActiveJob
	}
	jobID := t.jobID
	t.state = StateCancelling
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	snap := t.snapshotLocked()
	t.mu.Unlock()
	t.hub.Publish(snap)

	if stop != nil {
		close(stop)
		<-done
	}

	res, cancelErr := t.backend.CancelRefresh(ctx, jobID)
	if cancelErr != nil {
		log.WithError(cancelErr).WithField("job_id", jobID).Warnln("cancel request failed")
	}

	if run, err := t.backend.RunStatus(ctx, jobID); err == nil {
		t.mu.Lock()
		t.rows = aggregate.MergeRun(t.rows, run)
		t.counters = aggregate.DeriveCounters(run, nil, t.counters.Total)
		t.mu.Unlock()
	} else {
		log.WithError(err).WithField("job_id", jobID).Debugln("final status fetch after cancel failed")
	}

	t.mu.Lock()
	t.state = StateIdle
	t.jobID = ""
	if res != nil {
		t.message = res.Message
	}
	snap = t.snapshotLocked()
	t.mu.Unlock()
	t.hub.Publish(snap)

	if cancelErr != nil {
		return errors.Wrap(cancelErr, "failed to cancel refresh job")
	}
	return nil
}

// Close stops any active polling without touching the backend job. Safe to
// call repeatedly and after natural completion.
func (t *Tracker) Close() {
	t.stopPolling()
}

// stopPolling halts the current poll loop, if any, and waits for it to
// exit so the next run never overlaps a stale in-flight tick.
func (t *Tracker) stopPolling() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	if t.state != StateIdle {
		t.state = StateIdle
		t.jobID = ""
	}
	t.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
