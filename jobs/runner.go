// Package jobs runs persisted deferred actions. A job is written to the store
// before its timer is armed, so pending work is picked up again after a restart.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketplace/models"
	"marketplace/store"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotCancellable = errors.New("job is not pending")
	ErrUnknownKind    = errors.New("unknown job kind")
)

// Handler performs the deferred action of one kind. A returned error marks the job failed.
type Handler func(ctx context.Context, job *models.Job) error

// Recorder receives job execution metrics.
type Recorder interface {
	RecordJob(kind, status string, d time.Duration)
	SetJobsArmed(n int)
}

// Publisher receives job lifecycle events.
type Publisher interface {
	Publish(eventType string, payload interface{})
}

type Option func(*Runner)

func WithRecorder(r Recorder) Option   { return func(rn *Runner) { rn.recorder = r } }
func WithPublisher(p Publisher) Option { return func(rn *Runner) { rn.publisher = p } }
func WithClock(now func() time.Time) Option {
	return func(rn *Runner) { rn.now = now }
}
func WithRunTimeout(d time.Duration) Option { return func(rn *Runner) { rn.runTimeout = d } }

type Runner struct {
	jobs       store.Repository[models.Job]
	log        *logrus.Logger
	recorder   Recorder
	publisher  Publisher
	now        func() time.Time
	runTimeout time.Duration

	mu       sync.Mutex
	handlers map[models.JobKind]Handler
	timers   map[string]*time.Timer
	stopped  bool

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(jobs store.Repository[models.Job], log *logrus.Logger, opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		jobs:       jobs,
		log:        log,
		now:        time.Now,
		runTimeout: 30 * time.Second,
		handlers:   make(map[models.JobKind]Handler),
		timers:     make(map[string]*time.Timer),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Register(kind models.JobKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Schedule persists a pending job due after delay and arms its timer.
func (r *Runner) Schedule(ctx context.Context, kind models.JobKind, target primitive.ObjectID, delay time.Duration, payload map[string]string) (*models.Job, error) {
	r.mu.Lock()
	_, known := r.handlers[kind]
	r.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	job := &models.Job{
		ID:           primitive.NewObjectID(),
		Kind:         kind,
		TargetID:     target,
		Status:       models.JobPending,
		ScheduledFor: r.now().Add(delay),
		Payload:      payload,
	}
	if err := r.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	r.arm(*job)
	r.log.WithFields(logrus.Fields{
		"job_id": job.ID.Hex(),
		"kind":   kind,
		"target": target.Hex(),
		"delay":  delay.String(),
	}).Info("Job scheduled")
	return job, nil
}

func (r *Runner) Get(ctx context.Context, id string) (*models.Job, error) {
	return r.jobs.Get(ctx, id)
}

// Cancel stops a pending job. Jobs that already started or finished return ErrNotCancellable.
func (r *Runner) Cancel(ctx context.Context, id string) (*models.Job, error) {
	q, err := store.ByID(id)
	if err != nil {
		return nil, err
	}
	now := r.now()
	job, err := r.jobs.UpdateOne(ctx, q.Eq("status", models.JobPending), bson.M{
		"status":     models.JobCancelled,
		"finishedAt": now,
	})
	if errors.Is(err, store.ErrNotFound) {
		if _, getErr := r.jobs.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNotCancellable
	}
	if err != nil {
		return nil, err
	}

	r.disarm(id)
	r.log.WithField("job_id", id).Info("Job cancelled")
	r.publish("job.cancelled", job)
	return job, nil
}

// CancelPending cancels every pending job of kind for target and returns how many were cancelled.
func (r *Runner) CancelPending(ctx context.Context, kind models.JobKind, target primitive.ObjectID) (int, error) {
	pending, err := r.jobs.List(ctx, store.Query{}.
		Eq("kind", kind).
		Eq("targetId", target).
		Eq("status", models.JobPending))
	if err != nil {
		return 0, err
	}

	n := 0
	for _, job := range pending {
		if _, err := r.Cancel(ctx, job.ID.Hex()); err != nil {
			if errors.Is(err, ErrNotCancellable) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// Recover re-arms pending jobs after a restart. Jobs that were running when
// the process died go back to pending first.
func (r *Runner) Recover(ctx context.Context) (int, error) {
	reset, err := r.jobs.UpdateMany(ctx, store.Query{}.Eq("status", models.JobRunning), bson.M{
		"status": models.JobPending,
	})
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}

	pending, err := r.jobs.List(ctx, store.Query{}.Eq("status", models.JobPending).Sort("scheduledFor", false))
	if err != nil {
		return 0, fmt.Errorf("list pending jobs: %w", err)
	}
	for _, job := range pending {
		r.arm(job)
	}

	r.log.WithFields(logrus.Fields{
		"rearmed": len(pending),
		"reset":   reset,
	}).Info("Pending jobs recovered")
	return len(pending), nil
}

// Start runs the periodic sweep that re-arms overdue pending jobs without a timer.
func (r *Runner) Start(schedule string) error {
	c := cron.New(cron.WithLocation(time.UTC), cron.WithSeconds())
	if _, err := c.AddFunc(schedule, r.Sweep); err != nil {
		return fmt.Errorf("register job sweep: %w", err)
	}
	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()
	c.Start()
	return nil
}

func (r *Runner) Sweep() {
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()

	overdue, err := r.jobs.List(ctx, store.Query{}.
		Eq("status", models.JobPending).
		Lte("scheduledFor", r.now()))
	if err != nil {
		r.log.WithError(err).Error("Job sweep failed")
		return
	}

	armed := 0
	for _, job := range overdue {
		r.mu.Lock()
		_, ok := r.timers[job.ID.Hex()]
		r.mu.Unlock()
		if !ok {
			r.arm(job)
			armed++
		}
	}
	if armed > 0 {
		r.log.WithField("count", armed).Warn("Sweep re-armed orphaned jobs")
	}
}

// Stop halts the sweeper and timers and waits for running jobs. Pending jobs stay pending.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	c := r.cron
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	r.wg.Wait()
	r.cancel()
}

// Armed reports how many jobs are waiting on a timer.
func (r *Runner) Armed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

func (r *Runner) arm(job models.Job) {
	id := job.ID.Hex()
	delay := job.ScheduledFor.Sub(r.now())
	if delay < 0 {
		delay = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if existing, ok := r.timers[id]; ok {
		existing.Stop()
	}
	r.timers[id] = time.AfterFunc(delay, func() { r.execute(id) })
	r.reportArmed()
}

func (r *Runner) disarm(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
		r.reportArmed()
	}
}

// reportArmed must be called with mu held.
func (r *Runner) reportArmed() {
	if r.recorder != nil {
		r.recorder.SetJobsArmed(len(r.timers))
	}
}

func (r *Runner) execute(id string) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	delete(r.timers, id)
	r.reportArmed()
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(r.ctx, r.runTimeout)
	defer cancel()

	log := r.log.WithField("job_id", id)

	current, err := r.jobs.Get(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to load job")
		return
	}
	q, _ := store.ByID(id)
	job, err := r.jobs.UpdateOne(ctx, q.Eq("status", models.JobPending), bson.M{
		"status":   models.JobRunning,
		"attempts": current.Attempts + 1,
	})
	if errors.Is(err, store.ErrNotFound) {
		// cancelled or claimed elsewhere
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to claim job")
		return
	}

	r.mu.Lock()
	h := r.handlers[job.Kind]
	r.mu.Unlock()

	start := time.Now()
	runErr := ErrUnknownKind
	if h != nil {
		runErr = r.safeRun(ctx, h, job)
	}

	set := bson.M{"status": models.JobCompleted, "finishedAt": r.now()}
	event := "job.completed"
	if runErr != nil {
		set["status"] = models.JobFailed
		set["lastError"] = runErr.Error()
		event = "job.failed"
		log.WithError(runErr).WithField("kind", job.Kind).Warn("Job failed")
	} else {
		log.WithField("kind", job.Kind).Info("Job completed")
	}
	if r.recorder != nil {
		r.recorder.RecordJob(string(job.Kind), set["status"].(string), time.Since(start))
	}

	finished, err := r.jobs.Update(ctx, id, set)
	if err != nil {
		log.WithError(err).Error("Failed to record job outcome")
		return
	}
	r.publish(event, finished)
}

func (r *Runner) safeRun(ctx context.Context, h Handler, job *models.Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return h(ctx, job)
}

func (r *Runner) publish(event string, job *models.Job) {
	if r.publisher != nil && job != nil {
		r.publisher.Publish(event, job)
	}
}
