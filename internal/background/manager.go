package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"indeed-crawler/internal/config"
	"indeed-crawler/pkg/models"
	"indeed-crawler/pkg/utils"
)

// Task manager configuration constants
const (
	// Default configuration values
	DefaultMaxWorkers   = 2
	DefaultMaxQueueSize = 20

	// Maximum configuration values for safety. Each crawl worker holds an
	// exclusive browser, so the ceiling is deliberately low.
	MaxWorkers   = 16
	MaxQueueSize = 1000
)

// CrawlRunner executes a crawl request. The crawler service satisfies it.
type CrawlRunner interface {
	Crawl(ctx context.Context, req models.CrawlRequest) ([]*models.ListingRecord, error)
}

// TaskManager defines the interface for managing background tasks
type TaskManager interface {
	// Start starts the task manager
	Start(ctx context.Context) error

	// Stop stops the task manager gracefully
	Stop(ctx context.Context) error

	// SubmitCrawlTask submits a crawl task for background processing
	SubmitCrawlTask(ctx context.Context, processID string, request models.CrawlRequest, runner CrawlRunner) error

	// GetTaskResult retrieves the result of a task by process ID
	GetTaskResult(ctx context.Context, processID string) (*TaskResult, error)

	// GetTaskStatus retrieves the status of a task by process ID
	GetTaskStatus(ctx context.Context, processID string) (TaskStatus, error)

	// ListTasks lists all active tasks (for monitoring)
	ListTasks(ctx context.Context) ([]*TaskResult, error)

	// IsHealthy checks if the task manager is healthy
	IsHealthy() bool
}

// TaskManagerImpl implements the TaskManager interface
type TaskManagerImpl struct {
	config       *config.Config
	store        TaskStore
	logger       *logrus.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex
	running      bool
	taskChan     chan *TaskExecution
	maxWorkers   int
	maxQueueSize int
}

// TaskExecution represents a task execution context
type TaskExecution struct {
	ProcessID   string
	Type        TaskType
	Context     context.Context
	Cancel      context.CancelFunc
	ExecuteFunc func(context.Context) (*TaskResult, error)
}

// validateTaskManagerConfig validates and returns safe configuration values
func validateTaskManagerConfig(cfg *config.Config) (maxWorkers, maxQueueSize int, err error) {
	maxWorkers = cfg.Workers.PoolSize
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	} else if maxWorkers > MaxWorkers {
		return 0, 0, fmt.Errorf("worker pool size (%d) exceeds maximum (%d)", maxWorkers, MaxWorkers)
	}

	maxQueueSize = cfg.Workers.QueueSize
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultMaxQueueSize
	} else if maxQueueSize > MaxQueueSize {
		return 0, 0, fmt.Errorf("queue size (%d) exceeds maximum (%d)", maxQueueSize, MaxQueueSize)
	}

	return maxWorkers, maxQueueSize, nil
}

// NewTaskManager creates a new task manager on the given store.
func NewTaskManager(cfg *config.Config, store TaskStore) *TaskManagerImpl {
	logger := utils.GetLogger()

	maxWorkers, maxQueueSize, err := validateTaskManagerConfig(cfg)
	if err != nil {
		logger.WithError(err).Warn("Task manager configuration validation failed, using defaults")
		maxWorkers = DefaultMaxWorkers
		maxQueueSize = DefaultMaxQueueSize
	}

	logger.WithFields(logrus.Fields{
		"max_workers":    maxWorkers,
		"max_queue_size": maxQueueSize,
	}).Info("Task manager configuration initialized")

	if store == nil {
		store = NewInMemoryTaskStore()
	}

	return &TaskManagerImpl{
		config:       cfg,
		store:        store,
		logger:       logger,
		maxWorkers:   maxWorkers,
		maxQueueSize: maxQueueSize,
		taskChan:     make(chan *TaskExecution, maxQueueSize),
	}
}

// Start starts the task manager
func (tm *TaskManagerImpl) Start(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.running {
		return fmt.Errorf("task manager already running")
	}

	tm.ctx, tm.cancel = context.WithCancel(ctx)
	tm.running = true

	for i := 0; i < tm.maxWorkers; i++ {
		tm.wg.Add(1)
		go tm.worker(i)
	}

	tm.wg.Add(1)
	go tm.cleanupRoutine()

	tm.logger.WithField("max_workers", tm.maxWorkers).Info("Task manager started")
	return nil
}

// Stop stops the task manager gracefully
func (tm *TaskManagerImpl) Stop(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if !tm.running {
		return nil
	}

	tm.logger.Info("Stopping task manager...")

	tm.cancel()
	close(tm.taskChan)

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		tm.logger.Info("Task manager stopped gracefully")
	case <-ctx.Done():
		tm.logger.Warn("Task manager shutdown timed out")
	}

	tm.running = false
	return nil
}

// SubmitCrawlTask submits a crawl task for background processing
func (tm *TaskManagerImpl) SubmitCrawlTask(ctx context.Context, processID string, request models.CrawlRequest, runner CrawlRunner) error {
	if !tm.IsHealthy() {
		return fmt.Errorf("task manager is not healthy")
	}

	result := &TaskResult{
		ProcessID: processID,
		Type:      TaskTypeCrawl,
		Status:    TaskStatusAccepted,
		CreatedAt: time.Now(),
		Metadata: map[string]interface{}{
			"job_title": request.Query.JobTitle,
			"location":  request.Query.Location,
		},
	}

	if err := tm.store.Store(ctx, result); err != nil {
		return fmt.Errorf("failed to store task result: %w", err)
	}

	tm.logger.WithFields(logrus.Fields{
		"process_id": processID,
		"task_type":  TaskTypeCrawl,
	}).Info("Task accepted")

	// Derived context keeps the task cancelable with the manager while
	// outliving the HTTP request that submitted it.
	taskCtx, cancelFunc := context.WithTimeout(tm.ctx, tm.config.BackgroundTasks.TaskTimeout)
	execution := &TaskExecution{
		ProcessID: processID,
		Type:      TaskTypeCrawl,
		Context:   taskCtx,
		Cancel:    cancelFunc,
		ExecuteFunc: func(execCtx context.Context) (*TaskResult, error) {
			return tm.executeCrawlTask(execCtx, processID, request, runner)
		},
	}

	select {
	case tm.taskChan <- execution:
		return nil
	case <-ctx.Done():
		cancelFunc()
		return ctx.Err()
	default:
		cancelFunc()
		return fmt.Errorf("task queue is full")
	}
}

// GetTaskResult retrieves the result of a task by process ID
func (tm *TaskManagerImpl) GetTaskResult(ctx context.Context, processID string) (*TaskResult, error) {
	return tm.store.Get(ctx, processID)
}

// GetTaskStatus retrieves the status of a task by process ID
func (tm *TaskManagerImpl) GetTaskStatus(ctx context.Context, processID string) (TaskStatus, error) {
	result, err := tm.store.Get(ctx, processID)
	if err != nil {
		return "", err
	}
	return result.Status, nil
}

// ListTasks lists all active tasks (for monitoring)
func (tm *TaskManagerImpl) ListTasks(ctx context.Context) ([]*TaskResult, error) {
	return tm.store.List(ctx)
}

// IsHealthy checks if the task manager is healthy
func (tm *TaskManagerImpl) IsHealthy() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.running && tm.ctx.Err() == nil
}

// worker processes tasks from the task channel
func (tm *TaskManagerImpl) worker(workerID int) {
	defer tm.wg.Done()

	tm.logger.WithField("worker_id", workerID).Info("Task worker started")

	for {
		select {
		case <-tm.ctx.Done():
			tm.logger.WithField("worker_id", workerID).Info("Task worker stopping")
			return
		case task, ok := <-tm.taskChan:
			if !ok {
				tm.logger.WithField("worker_id", workerID).Info("Task channel closed, worker stopping")
				return
			}

			tm.processTask(workerID, task)
		}
	}
}

// processTask processes a single task
func (tm *TaskManagerImpl) processTask(workerID int, task *TaskExecution) {
	startTime := time.Now()

	tm.logger.WithFields(logrus.Fields{
		"worker_id":  workerID,
		"process_id": task.ProcessID,
		"task_type":  task.Type,
	}).Info("Processing task")

	if err := tm.updateTaskStatus(task.ProcessID, TaskStatusProcessing); err != nil {
		tm.logger.WithError(err).Error("Failed to update task status to processing")
	}

	result, err := task.ExecuteFunc(task.Context)
	processingTime := time.Since(startTime)

	if err != nil {
		tm.logger.WithFields(logrus.Fields{
			"worker_id":       workerID,
			"process_id":      task.ProcessID,
			"processing_time": processingTime,
			"error":           err.Error(),
		}).Error("Task execution failed")

		existingResult, getErr := tm.store.Get(task.Context, task.ProcessID)
		if getErr != nil {
			// Fall back to a fresh result so the failure is not lost
			existingResult = &TaskResult{
				ProcessID: task.ProcessID,
				Type:      task.Type,
				CreatedAt: time.Now(),
			}
		}
		existingResult.Status = TaskStatusFailure
		existingResult.Error = err.Error()
		existingResult.ProcessingTime = &processingTime
		result = existingResult
	} else {
		tm.logger.WithFields(logrus.Fields{
			"worker_id":       workerID,
			"process_id":      task.ProcessID,
			"processing_time": processingTime,
		}).Info("Task execution completed successfully")

		result.Status = TaskStatusSuccess
		result.ProcessingTime = &processingTime
		completedAt := time.Now()
		result.CompletedAt = &completedAt
	}

	if err := tm.store.Update(context.Background(), result); err != nil {
		tm.logger.WithError(err).Error("Failed to store task result")
	}

	// Release the derived context
	if task.Cancel != nil {
		task.Cancel()
	}
}

// updateTaskStatus updates the status of a task
func (tm *TaskManagerImpl) updateTaskStatus(processID string, status TaskStatus) error {
	result, err := tm.store.Get(context.Background(), processID)
	if err != nil {
		return err
	}

	result.Status = status
	return tm.store.Update(context.Background(), result)
}

// cleanupRoutine periodically cleans up old task results
func (tm *TaskManagerImpl) cleanupRoutine() {
	defer tm.wg.Done()

	interval := tm.config.BackgroundTasks.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-tm.ctx.Done():
			return
		case <-ticker.C:
			if err := tm.store.Cleanup(context.Background(), tm.config.BackgroundTasks.MaxTaskAge); err != nil {
				tm.logger.WithError(err).Error("Failed to cleanup old task results")
			}
		}
	}
}

// executeCrawlTask executes a crawl task in the background
func (tm *TaskManagerImpl) executeCrawlTask(ctx context.Context, processID string, request models.CrawlRequest, runner CrawlRunner) (*TaskResult, error) {
	existingResult, err := tm.store.Get(ctx, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve existing task result: %w", err)
	}

	records, err := runner.Crawl(ctx, request)
	if err != nil && !utils.IsCaptchaAbortedError(err) {
		return nil, err
	}

	if err != nil {
		tm.logger.WithFields(logrus.Fields{
			"process_id": processID,
			"records":    len(records),
		}).Warn("Crawl blocked by unresolved challenge, storing partial results")
	}

	existingResult.Data = &CrawlTaskData{
		Records: records,
		Count:   len(records),
		Query:   request.Query,
		Partial: err != nil,
	}

	return existingResult, nil
}
