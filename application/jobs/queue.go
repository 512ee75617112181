// Package jobs runs operation requests asynchronously: a bounded queue
// drained by a fixed number of workers, with task status kept for polling
// and an optional completion callback.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"social_automation/application/normalize"
	"social_automation/domain/entities"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers   = 1
	defaultQueueSize = 64
	// finished tasks kept for polling before the oldest are dropped
	defaultRetention = 1024
)

// ErrQueueFull is returned by Submit when no slot is free
var ErrQueueFull = errors.New("job queue is full")

// Executor runs one request to completion
type Executor interface {
	Run(ctx context.Context, req entities.Request) entities.Envelope
}

// Notifier delivers the callback of a finished task
type Notifier interface {
	Notify(ctx context.Context, url string, payload normalize.CallbackPayload) error
}

// Gauge receives the number of queued tasks
type Gauge interface {
	Set(float64)
}

// Queue holds submitted tasks until a worker picks them up
type Queue struct {
	exec       Executor
	notifier   Notifier
	depth      Gauge
	logger     *logrus.Logger
	serverUUID string
	workers    int
	retention  int

	pending chan string

	mu       sync.RWMutex
	tasks    map[string]*entities.Task
	finished []string
}

// Option customizes a Queue
type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.pending = make(chan string, n)
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(q *Queue) {
		q.notifier = n
	}
}

func WithDepthGauge(g Gauge) Option {
	return func(q *Queue) {
		q.depth = g
	}
}

// WithServerUUID - identifies this bridge in callback payloads
func WithServerUUID(id string) Option {
	return func(q *Queue) {
		q.serverUUID = id
	}
}

func WithRetention(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.retention = n
		}
	}
}

// NewQueue - creates a queue; call Run to start the workers
func NewQueue(exec Executor, logger *logrus.Logger, opts ...Option) *Queue {
	q := &Queue{
		exec:       exec,
		logger:     logger,
		serverUUID: uuid.NewString(),
		workers:    defaultWorkers,
		retention:  defaultRetention,
		pending:    make(chan string, defaultQueueSize),
		tasks:      make(map[string]*entities.Task),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// ServerUUID - identifier reported in callbacks
func (q *Queue) ServerUUID() string {
	return q.serverUUID
}

// Submit - enqueues req and returns the queued task. Never blocks.
func (q *Queue) Submit(req entities.Request, callbackURL string) (entities.Task, error) {
	task := &entities.Task{
		ID:          uuid.NewString(),
		Request:     req,
		Status:      entities.TaskStatusQueued,
		CallbackURL: callbackURL,
		CreatedAt:   time.Now(),
	}
	if task.Request.ID == "" {
		task.Request.ID = task.ID
	}

	q.mu.Lock()
	q.tasks[task.ID] = task
	q.mu.Unlock()

	select {
	case q.pending <- task.ID:
	default:
		q.mu.Lock()
		delete(q.tasks, task.ID)
		q.mu.Unlock()
		return entities.Task{}, ErrQueueFull
	}
	q.reportDepth()

	q.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"platform":  req.Platform,
		"operation": req.Operation,
	}).Info("Task queued")

	return q.snapshot(task), nil
}

// Get - current state of a task
func (q *Queue) Get(id string) (entities.Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	task, ok := q.tasks[id]
	if !ok {
		return entities.Task{}, false
	}
	return *task, true
}

// Depth - tasks waiting for a worker
func (q *Queue) Depth() int {
	return len(q.pending)
}

// Run - starts the workers and blocks until ctx is done. Tasks still
// queued at that point stay queued.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		worker := i
		g.Go(func() error {
			q.work(ctx, worker)
			return nil
		})
	}
	return g.Wait()
}

func (q *Queue) work(ctx context.Context, worker int) {
	logger := q.logger.WithField("worker", worker)
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.pending:
			q.reportDepth()
			q.process(ctx, id, logger)
		}
	}
}

func (q *Queue) process(ctx context.Context, id string, logger *logrus.Entry) {
	now := time.Now()
	q.mu.Lock()
	task, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	task.Status = entities.TaskStatusRunning
	task.StartedAt = &now
	req := task.Request
	callbackURL := task.CallbackURL
	q.mu.Unlock()

	logger = logger.WithField("task_id", id)
	logger.Debug("Task started")

	env := q.exec.Run(ctx, req)

	finished := time.Now()
	status := entities.TaskStatusCompleted
	if !env.Success {
		status = entities.TaskStatusFailed
	}

	q.mu.Lock()
	task.Status = status
	task.Result = &env
	task.FinishedAt = &finished
	q.finished = append(q.finished, id)
	for len(q.finished) > q.retention {
		delete(q.tasks, q.finished[0])
		q.finished = q.finished[1:]
	}
	q.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"status":   status,
		"duration": finished.Sub(now),
	}).Info("Task finished")

	if callbackURL != "" && q.notifier != nil {
		payload := normalize.Callback(q.serverUUID, req, env)
		if err := q.notifier.Notify(ctx, callbackURL, payload); err != nil {
			logger.WithError(err).Warn("Callback delivery failed")
		}
	}
}

func (q *Queue) snapshot(task *entities.Task) entities.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return *task
}

func (q *Queue) reportDepth() {
	if q.depth != nil {
		q.depth.Set(float64(len(q.pending)))
	}
}
