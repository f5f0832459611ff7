// Package worker runs periodic background tasks.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Worker runs each registered Task on its own ticker.
type Worker struct {
	tasks  []Task
	config Config
	logger *slog.Logger

	// Synchronization
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Register adds a task. Call this before Start().
func (w *Worker) Register(task Task) {
	w.tasks = append(w.tasks, task)
	w.logger.Debug("Registered task", "task", task.Name())
}

// Start runs every task once and then on each tick until Stop is called.
func (w *Worker) Start(ctx context.Context) {
	for _, task := range w.tasks {
		w.wg.Add(1)
		go w.runTask(ctx, task)
	}

	w.logger.Info("Worker started", "tasks", len(w.tasks), "interval", w.config.Interval)
}

// Stop signals all tasks to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, some tasks may still be running")
	}
}

// runTask is the loop for one task goroutine.
func (w *Worker) runTask(ctx context.Context, task Task) {
	defer w.wg.Done()

	logger := w.logger.With("task", task.Name())

	if !w.runOnce(ctx, task, logger) {
		return
	}

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("Task stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.runOnce(ctx, task, logger) {
				return
			}
		}
	}
}

// runOnce executes a single pass and reports whether the task should keep running.
func (w *Worker) runOnce(ctx context.Context, task Task, logger *slog.Logger) bool {
	runCtx, cancel := context.WithTimeout(ctx, w.config.TaskTimeout)
	defer cancel()

	if err := task.Run(runCtx); err != nil {
		if IsPermanent(err) {
			logger.Error("Task failed permanently, will not run again", "error", err)
			return false
		}
		logger.Error("Task failed", "error", err)
	}
	return true
}
