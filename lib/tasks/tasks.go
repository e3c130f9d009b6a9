/*
Copyright 2024 University of Stuttgart

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tasks runs the registry's background work on an in-process
// worker pool. API handlers submit short jobs (crawl one URL, rebuild one
// tab membership) and return immediately; the pool executes them with a
// soft time limit and logs failures.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/utils"
)

var (
	tasksSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_tasks_submitted_total",
		Help: "Number of background tasks submitted, by task name.",
	}, []string{"task"})
	tasksFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registry_tasks_failed_total",
		Help: "Number of background tasks that returned an error, by task name.",
	}, []string{"task"})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "registry_tasks_queued",
		Help: "Number of background tasks waiting for a worker.",
	})
)

func init() {
	_ = utils.RegisterCollectors(tasksSubmitted, tasksFailed, queueDepth)
}

// Func is the body of a background task. The context carries the soft
// time limit; tasks must return once it is canceled.
type Func func(ctx context.Context) error

type task struct {
	id   uuid.UUID
	name string
	key  string
	fn   Func
}

// QueueConfig configures the worker pool.
type QueueConfig struct {
	// Workers is the pool size. Zero selects DefaultWorkers.
	Workers int
	// QueueLen is the submit buffer. A full buffer rejects submissions
	// instead of blocking API handlers. Zero selects DefaultQueueLen.
	QueueLen int
	// SoftTimeLimit bounds a single task run. Zero selects
	// DefaultSoftTimeLimit.
	SoftTimeLimit time.Duration
	Clock         clockwork.Clock
	Log           *slog.Logger
}

const (
	DefaultWorkers       = 4
	DefaultQueueLen      = 256
	DefaultSoftTimeLimit = 5 * time.Minute
)

// Queue is an in-process task queue with a fixed worker pool.
type Queue struct {
	workers   int
	tasks     chan task
	timeLimit time.Duration
	clock     clockwork.Clock
	log       *slog.Logger

	mu sync.Mutex
	// pending tracks the dedupe keys of tasks queued or running, so
	// duplicate keyed submissions collapse into the existing task.
	pending map[string]bool
	closed  bool
}

// NewQueue creates a queue. Workers start when Run is called.
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = DefaultQueueLen
	}
	if cfg.SoftTimeLimit <= 0 {
		cfg.SoftTimeLimit = DefaultSoftTimeLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Queue{
		workers:   cfg.Workers,
		tasks:     make(chan task, cfg.QueueLen),
		timeLimit: cfg.SoftTimeLimit,
		clock:     cfg.Clock,
		log:       cfg.Log.With("component", "tasks"),
		pending:   map[string]bool{},
	}
}

// Run executes tasks until the context is canceled, then stops accepting
// work and waits for the workers to finish.
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}
	<-ctx.Done()
	q.mu.Lock()
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	wg.Wait()
	return nil
}

func (q *Queue) worker(ctx context.Context) {
	for t := range q.tasks {
		queueDepth.Dec()
		q.runTask(ctx, t)
	}
}

func (q *Queue) runTask(ctx context.Context, t task) {
	defer q.clearPending(t.key)
	if ctx.Err() != nil {
		return
	}
	taskCtx, cancel := context.WithTimeout(ctx, q.timeLimit)
	defer cancel()
	started := q.clock.Now()
	if err := t.fn(taskCtx); err != nil {
		tasksFailed.WithLabelValues(t.name).Inc()
		q.log.WarnContext(ctx, "background task failed",
			"task", t.name, "id", t.id, "error", err,
			"elapsed", q.clock.Since(started))
		return
	}
	q.log.DebugContext(ctx, "background task finished",
		"task", t.name, "id", t.id, "elapsed", q.clock.Since(started))
}

func (q *Queue) clearPending(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()
}

// Submit queues a task and returns its id. Submissions are rejected when
// the queue is full or already shut down.
func (q *Queue) Submit(name string, fn Func) (uuid.UUID, error) {
	return q.submit(task{id: uuid.New(), name: name, fn: fn})
}

// SubmitUnique queues a task unless one with the same key is already
// queued or running. A collapsed duplicate reports uuid.Nil without an
// error.
func (q *Queue) SubmitUnique(key, name string, fn Func) (uuid.UUID, error) {
	return q.submit(task{id: uuid.New(), name: name, key: key, fn: fn})
}

func (q *Queue) submit(t task) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return uuid.Nil, trace.LimitExceeded("the task queue is shut down")
	}
	if t.key != "" {
		if q.pending[t.key] {
			return uuid.Nil, nil
		}
		q.pending[t.key] = true
	}
	select {
	case q.tasks <- t:
		tasksSubmitted.WithLabelValues(t.name).Inc()
		queueDepth.Inc()
		return t.id, nil
	default:
		if t.key != "" {
			delete(q.pending, t.key)
		}
		return uuid.Nil, trace.LimitExceeded("the task queue is full")
	}
}
