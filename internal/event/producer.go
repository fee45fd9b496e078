package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AniketSaini0/task-manager/internal/domain"
	pkgkafka "github.com/AniketSaini0/task-manager/pkg/kafka"
)

// Kafka topic constants for task manager domain events.
const (
	TopicUserRegistered = "taskmanager.user.registered"
	TopicTaskCreated    = "taskmanager.task.created"
	TopicTaskCompleted  = "taskmanager.task.completed"
)

// Aggregate type constants.
const (
	AggregateTypeUser = "user"
	AggregateTypeTask = "task"
)

// Source identifier for events originating from this service.
const Source = "task-manager"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// TaskData is the payload for task lifecycle events.
type TaskData struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Producer publishes task manager domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	}

	event, err := pkgkafka.NewEvent(TopicUserRegistered, user.ID, AggregateTypeUser, Source, data)
	if err != nil {
		return fmt.Errorf("create user.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.registered event",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return nil
}

// PublishTaskCreated publishes a task.created event.
func (p *Producer) PublishTaskCreated(ctx context.Context, task *domain.Task) error {
	return p.publishTaskEvent(ctx, TopicTaskCreated, task)
}

// PublishTaskCompleted publishes a task.completed event.
func (p *Producer) PublishTaskCompleted(ctx context.Context, task *domain.Task) error {
	return p.publishTaskEvent(ctx, TopicTaskCompleted, task)
}

func (p *Producer) publishTaskEvent(ctx context.Context, topic string, task *domain.Task) error {
	data := TaskData{
		ID:        task.ID,
		UserID:    task.UserID,
		Title:     task.Title,
		Completed: task.Completed,
	}

	event, err := pkgkafka.NewEvent(topic, task.ID, AggregateTypeTask, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published task event",
		slog.String("topic", topic),
		slog.String("task_id", task.ID),
		slog.String("user_id", task.UserID),
	)

	return nil
}
