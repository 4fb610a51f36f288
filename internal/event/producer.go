package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mzagorsky/auth-service/internal/domain"
	pkgkafka "github.com/mzagorsky/auth-service/pkg/kafka"
)

// Kafka topic constants for auth domain events.
const (
	TopicUserRegistered = "auth.user.registered"
	TopicUserDeleted    = "auth.user.deleted"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from the auth service.
const SourceAuthService = "auth-service"

// UserRegisteredData is the payload for an auth.user.registered event.
type UserRegisteredData struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	Provider string   `json:"provider"`
}

// UserDeletedData is the payload for an auth.user.deleted event.
type UserDeletedData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes an auth.user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:       user.ID.String(),
		Email:    user.Email,
		Roles:    user.Roles,
		Provider: user.Provider,
	}

	event, err := pkgkafka.NewEvent(TopicUserRegistered, user.ID.String(), AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create auth.user.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish auth.user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published auth.user.registered event",
		slog.String("user_id", user.ID.String()),
		slog.String("email", user.Email),
	)

	return nil
}

// PublishUserDeleted publishes an auth.user.deleted event.
func (p *Producer) PublishUserDeleted(ctx context.Context, user *domain.User) error {
	data := UserDeletedData{
		ID:    user.ID.String(),
		Email: user.Email,
	}

	event, err := pkgkafka.NewEvent(TopicUserDeleted, user.ID.String(), AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create auth.user.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserDeleted, event); err != nil {
		return fmt.Errorf("publish auth.user.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published auth.user.deleted event",
		slog.String("user_id", user.ID.String()),
	)

	return nil
}
