/*
Copyright 2026 The Gantry Authors

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

package build

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gantry-ci/gantry/pkg/gantry/constants"
	"github.com/gantry-ci/gantry/pkg/gantry/output/log"
)

// RunFunc performs one build, writing its log to out and recording service
// results on the task in place. It returns when the build finished or
// observed cancellation.
type RunFunc func(ctx context.Context, task *Task, out io.Writer) error

// QueueInfo is the per-pipeline signal set the UI polls.
type QueueInfo struct {
	HasQueuedTasks    bool   `json:"has_queued_tasks"`
	QueueLength       int    `json:"queue_length"`
	CurrentTaskStatus string `json:"current_task_status,omitempty"`
}

type queueItem struct {
	taskID string
	seq    uint64
}

// Scheduler dispatches build tasks from one FIFO queue per pipeline onto a
// fixed pool of workers. At most one task per pipeline runs at a time.
type Scheduler struct {
	store    *Store
	run      RunFunc
	workers  int
	onFinish func(*Task)

	mu      sync.Mutex
	seq     uint64
	queues  map[string][]queueItem
	active  map[string]string
	cancels map[string]context.CancelFunc

	notify chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler returns a stopped scheduler with the given worker count.
// onFinish, when non-nil, observes every task that reaches a terminal
// state on a worker.
func NewScheduler(store *Store, run RunFunc, workers int, onFinish func(*Task)) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		store:    store,
		run:      run,
		workers:  workers,
		onFinish: onFinish,
		queues:   map[string][]queueItem{},
		active:   map[string]string{},
		cancels:  map[string]context.CancelFunc{},
		notify:   make(chan struct{}, 1),
	}
}

// Start launches the worker pool. Queues start empty: interrupted tasks
// were already swept to failed and are never resumed.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// Stop signals all workers and waits for them to observe cancellation.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Enqueue persists the task as pending and queues it on its pipeline.
// queued reports whether it has to wait behind other work of the same
// pipeline; queueLen counts the tasks waiting in the pipeline's queue,
// this one included.
func (s *Scheduler) Enqueue(task *Task) (queued bool, queueLen int, err error) {
	if err := s.store.Save(task); err != nil {
		return false, 0, err
	}

	s.mu.Lock()
	key := s.queueKey(task)
	s.seq++
	s.queues[key] = append(s.queues[key], queueItem{taskID: task.ID, seq: s.seq})
	queueLen = len(s.queues[key])
	_, activeNow := s.active[key]
	queued = activeNow || queueLen > 1
	s.mu.Unlock()

	s.wake()
	return queued, queueLen, nil
}

// Cancel stops a task. Pending tasks leave the queue without consuming a
// worker; running tasks get their context cancelled and are marked stopped
// once the worker observes it.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	if cancel, running := s.cancels[taskID]; running {
		s.mu.Unlock()
		cancel()
		return nil
	}

	for key, queue := range s.queues {
		for i, item := range queue {
			if item.taskID != taskID {
				continue
			}
			s.queues[key] = append(queue[:i], queue[i+1:]...)
			s.mu.Unlock()

			now := time.Now()
			_, err := s.store.Mutate(taskID, func(t *Task) {
				t.Status = StatusStopped
				t.CompletedAt = &now
			})
			return err
		}
	}
	s.mu.Unlock()

	// Not queued and not running here: only terminal tasks remain.
	task, err := s.store.Get(taskID)
	if err != nil {
		return err
	}
	return fmt.Errorf("build task %q is already %s", taskID, task.Status)
}

// QueueInfo reports the pipeline's queue signals.
func (s *Scheduler) QueueInfo(pipelineID string) QueueInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := QueueInfo{
		QueueLength:    len(s.queues[pipelineID]),
		HasQueuedTasks: len(s.queues[pipelineID]) > 0,
	}
	if taskID, ok := s.active[pipelineID]; ok {
		if task, err := s.store.Get(taskID); err == nil {
			info.CurrentTaskStatus = string(task.Status)
		}
	}
	return info
}

func (s *Scheduler) queueKey(task *Task) string {
	// Ad-hoc tasks without a pipeline each get their own queue.
	if task.PipelineID == "" {
		return "task:" + task.ID
	}
	return task.PipelineID
}

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	logCtx := log.WithEventContext(ctx, constants.Build, fmt.Sprintf("worker-%d", id))
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}

		for {
			task, taskCtx := s.next(ctx)
			if task == nil {
				break
			}
			// Other queues may be dispatchable too; let idle workers look.
			s.wake()
			s.execute(logCtx, taskCtx, task)
		}
	}
}

// next pops the oldest head-of-queue task whose pipeline is not active and
// claims it, or returns nil when no queue is dispatchable.
func (s *Scheduler) next(ctx context.Context) (*Task, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bestKey := ""
	var bestSeq uint64
	for key, queue := range s.queues {
		if len(queue) == 0 {
			continue
		}
		if _, busy := s.active[key]; busy {
			continue
		}
		if bestKey == "" || queue[0].seq < bestSeq {
			bestKey, bestSeq = key, queue[0].seq
		}
	}
	if bestKey == "" {
		return nil, nil
	}

	item := s.queues[bestKey][0]
	s.queues[bestKey] = s.queues[bestKey][1:]

	task, err := s.store.Get(item.taskID)
	if err != nil {
		// Deleted while queued; nothing to run.
		return nil, nil
	}

	taskCtx, cancel := context.WithCancel(ctx)
	s.active[bestKey] = task.ID
	s.cancels[task.ID] = cancel
	return task, taskCtx
}

// execute runs one claimed task to a terminal state.
func (s *Scheduler) execute(logCtx context.Context, taskCtx context.Context, task *Task) {
	key := s.queueKey(task)
	defer func() {
		s.mu.Lock()
		delete(s.active, key)
		if cancel, ok := s.cancels[task.ID]; ok {
			cancel()
			delete(s.cancels, task.ID)
		}
		s.mu.Unlock()
		// The freed slot may unblock this pipeline's next task.
		s.wake()
	}()

	started := time.Now()
	running, err := s.store.Mutate(task.ID, func(t *Task) {
		t.Status = StatusRunning
		t.StartedAt = &started
	})
	if err != nil {
		log.Entry(logCtx).Warnf("dispatching task %s: %v", task.ID, err)
		return
	}
	task = running

	logger, err := s.store.OpenLog(task)
	if err != nil {
		s.finalize(logCtx, task, fmt.Errorf("opening build log: %w", err), false)
		return
	}

	runErr := s.runRecovered(taskCtx, task, logger)
	cancelled := taskCtx.Err() != nil
	logger.Close()

	s.finalize(logCtx, task, runErr, cancelled)
	log.Entry(logCtx).Infof("Build task %s finished in %s", task.ID, humanize.RelTime(started, time.Now(), "", ""))
}

// runRecovered invokes the builder, turning a worker panic into a plain
// failure so the worker slot is always released.
func (s *Scheduler) runRecovered(ctx context.Context, task *Task, out io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Entry(ctx).Errorf("build task %s panicked: %v", task.ID, r)
			err = fmt.Errorf("internal error")
		}
	}()
	return s.run(ctx, task, out)
}

func (s *Scheduler) finalize(ctx context.Context, task *Task, runErr error, cancelled bool) {
	now := time.Now()
	final, err := s.store.Mutate(task.ID, func(t *Task) {
		t.Plan = task.Plan
		t.CompletedAt = &now
		switch {
		case cancelled:
			t.Status = StatusStopped
		case runErr != nil:
			t.Status = StatusFailed
			t.Error = runErr.Error()
		default:
			t.Status = StatusCompleted
		}
	})
	if err != nil {
		log.Entry(ctx).Warnf("finalizing task %s: %v", task.ID, err)
		return
	}
	if s.onFinish != nil {
		s.onFinish(final)
	}
}
