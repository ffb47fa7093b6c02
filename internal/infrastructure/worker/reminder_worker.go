package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/ringiflow/internal/application/port"
	"go.uber.org/zap"
)

// ReminderWorkerConfig holds configuration for the reminder worker
type ReminderWorkerConfig struct {
	PollInterval time.Duration
	ReminderAge  time.Duration
}

// DefaultReminderWorkerConfig returns default configuration
func DefaultReminderWorkerConfig() ReminderWorkerConfig {
	return ReminderWorkerConfig{
		PollInterval: 1 * time.Hour,
		ReminderAge:  24 * time.Hour,
	}
}

// ReminderWorker periodically re-notifies approvers whose active steps have
// been waiting longer than the configured age.
type ReminderWorker struct {
	config ReminderWorkerConfig

	stepRepo     port.StepRepository
	instanceRepo port.InstanceRepository
	notifier     port.Notifier
	logger       *zap.Logger

	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	isRunning     bool
	remindedCount int
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(
	config ReminderWorkerConfig,
	stepRepo port.StepRepository,
	instanceRepo port.InstanceRepository,
	notifier port.Notifier,
	logger *zap.Logger,
) *ReminderWorker {
	return &ReminderWorker{
		config:       config,
		stepRepo:     stepRepo,
		instanceRepo: instanceRepo,
		notifier:     notifier,
		logger:       logger,
	}
}

// Start begins the worker polling loop
func (w *ReminderWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("reminder worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("ReminderWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Duration("reminder_age", w.config.ReminderAge))

	go w.pollLoop()

	return nil
}

// Stop gracefully terminates the worker
func (w *ReminderWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}

	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	w.logger.Info("ReminderWorker stopped", zap.Int("reminded_count", w.remindedCount))
	return nil
}

// Name returns the worker name for identification
func (w *ReminderWorker) Name() string {
	return "ReminderWorker"
}

// pollLoop runs the main polling loop in background
func (w *ReminderWorker) pollLoop() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Poll loop context cancelled")
			return

		case <-ticker.C:
			if err := w.remindOverdueSteps(); err != nil {
				w.logger.Error("Failed to remind overdue steps", zap.Error(err))
			}
		}
	}
}

// remindOverdueSteps finds active steps older than the cutoff and re-notifies
// their assignees. Reminder failures are logged per step and never abort the
// sweep.
func (w *ReminderWorker) remindOverdueSteps() error {
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := time.Now().Add(-w.config.ReminderAge)
	steps, err := w.stepRepo.FindActiveOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to find overdue steps: %w", err)
	}

	for _, step := range steps {
		if step.AssignedTo == nil {
			continue
		}

		instance, err := w.instanceRepo.FindByID(ctx, step.InstanceID, step.TenantID)
		if err != nil || instance == nil {
			w.logger.Error("Failed to load instance for reminder",
				zap.String("instance_id", step.InstanceID),
				zap.Error(err))
			continue
		}

		notification := port.StepAssignedNotification{
			TenantID:              step.TenantID,
			AssigneeID:            *step.AssignedTo,
			InstanceTitle:         instance.Title,
			InstanceDisplayNumber: instance.DisplayNumber,
			StepName:              step.Name,
			StepDisplayNumber:     step.DisplayNumber,
		}
		if err := w.notifier.NotifyStepAssigned(ctx, notification); err != nil {
			w.logger.Error("Failed to send reminder",
				zap.String("step_id", step.ID),
				zap.Error(err))
			continue
		}

		w.mu.Lock()
		w.remindedCount++
		w.mu.Unlock()

		w.logger.Info("Reminder sent",
			zap.String("step_id", step.ID),
			zap.String("assignee", *step.AssignedTo))
	}

	return nil
}
