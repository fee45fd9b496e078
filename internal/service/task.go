package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AniketSaini0/task-manager/internal/domain"
	"github.com/AniketSaini0/task-manager/internal/event"
	"github.com/AniketSaini0/task-manager/internal/repository"
	apperrors "github.com/AniketSaini0/task-manager/pkg/errors"
	"github.com/AniketSaini0/task-manager/pkg/pagination"
)

// taskListCacheTTL bounds staleness of the cached task list when an
// invalidation is missed.
const taskListCacheTTL = 5 * time.Minute

// maxTitleLength caps task titles.
const maxTitleLength = 200

// TaskService implements the business logic for task operations. All
// operations are scoped to the owning user; a task belonging to someone else
// is indistinguishable from a missing one.
type TaskService struct {
	taskRepo repository.TaskRepository
	cache    repository.TaskCache
	producer *event.Producer
	logger   *slog.Logger
}

// NewTaskService creates a new task service. cache may be nil, in which case
// every list goes to the database.
func NewTaskService(
	taskRepo repository.TaskRepository,
	cache repository.TaskCache,
	producer *event.Producer,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		taskRepo: taskRepo,
		cache:    cache,
		producer: producer,
		logger:   logger,
	}
}

// CreateTaskInput holds the parameters for creating a task.
type CreateTaskInput struct {
	Title       string
	Description string
}

// UpdateTaskInput holds the parameters for updating a task. Nil fields are
// left unchanged.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Completed   *bool
}

// Create adds a new task for the user.
func (s *TaskService) Create(ctx context.Context, userID string, input CreateTaskInput) (*domain.Task, error) {
	if input.Title == "" {
		return nil, apperrors.InvalidInput("title is required")
	}
	if len(input.Title) > maxTitleLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		Completed:   false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.invalidateCache(ctx, userID)

	if err := s.producer.PublishTaskCreated(ctx, task); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish task.created event",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "task created",
		slog.String("task_id", task.ID),
		slog.String("user_id", userID),
	)

	return task, nil
}

// Get retrieves a single task owned by the user.
func (s *TaskService) Get(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	if task.UserID != userID {
		return nil, apperrors.NotFound("task", taskID)
	}

	return task, nil
}

// List returns a page of the user's tasks, newest first. Pages are served
// from the cache when present.
func (s *TaskService) List(ctx context.Context, userID string, params pagination.Params) (pagination.Result[domain.Task], error) {
	if s.cache != nil {
		tasks, total, hit, err := s.cache.GetList(ctx, userID, params)
		if err != nil {
			s.logger.WarnContext(ctx, "task cache read failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else if hit {
			return pagination.NewResult(tasks, total, params), nil
		}
	}

	tasks, total, err := s.taskRepo.ListByUserID(ctx, userID, params)
	if err != nil {
		return pagination.Result[domain.Task]{}, fmt.Errorf("list tasks: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetList(ctx, userID, params, tasks, total, taskListCacheTTL); err != nil {
			s.logger.WarnContext(ctx, "task cache write failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	return pagination.NewResult(tasks, total, params), nil
}

// Update modifies a task owned by the user.
func (s *TaskService) Update(ctx context.Context, userID, taskID string, input UpdateTaskInput) (*domain.Task, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		if *input.Title == "" {
			return nil, apperrors.InvalidInput("title must not be empty")
		}
		if len(*input.Title) > maxTitleLength {
			return nil, apperrors.InvalidInput(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
		}
		task.Title = *input.Title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}

	wasCompleted := task.Completed
	if input.Completed != nil {
		task.Completed = *input.Completed
	}

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	s.invalidateCache(ctx, userID)

	if !wasCompleted && task.Completed {
		s.publishCompleted(ctx, task)
	}

	s.logger.InfoContext(ctx, "task updated",
		slog.String("task_id", task.ID),
		slog.String("user_id", userID),
	)

	return task, nil
}

// Toggle flips the completion state of a task owned by the user.
func (s *TaskService) Toggle(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	task.Completed = !task.Completed

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("toggle task: %w", err)
	}

	s.invalidateCache(ctx, userID)

	if task.Completed {
		s.publishCompleted(ctx, task)
	}

	s.logger.InfoContext(ctx, "task toggled",
		slog.String("task_id", task.ID),
		slog.String("user_id", userID),
		slog.Bool("completed", task.Completed),
	)

	return task, nil
}

// Delete removes a task owned by the user.
func (s *TaskService) Delete(ctx context.Context, userID, taskID string) error {
	if err := s.taskRepo.Delete(ctx, taskID, userID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	s.invalidateCache(ctx, userID)

	s.logger.InfoContext(ctx, "task deleted",
		slog.String("task_id", taskID),
		slog.String("user_id", userID),
	)

	return nil
}

func (s *TaskService) invalidateCache(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "task cache invalidation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TaskService) publishCompleted(ctx context.Context, task *domain.Task) {
	if err := s.producer.PublishTaskCompleted(ctx, task); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish task.completed event",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}
