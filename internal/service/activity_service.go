package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/lumen-edu/lumen-quiz-api/internal/models"
	"github.com/lumen-edu/lumen-quiz-api/internal/repository"
)

// ActivityActor identifies who performed an action.
type ActivityActor struct {
	ID   uint
	Role string
}

// ActivityEntry describes a recorded attempt lifecycle event.
type ActivityEntry struct {
	Actor      ActivityActor
	Action     string
	EntityType string
	EntityID   *uint
	Metadata   map[string]interface{}
}

// ActivityRecorder persists lifecycle events and fans them out to
// downstream consumers. Recording failures never fail the request.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry)
	Recent(ctx context.Context, limit int) ([]models.ActivityLog, error)
}

type activityService struct {
	repo    repository.ActivityLogRepository
	nats    *nats.Conn
	subject string
	logger  zerolog.Logger
	now     func() time.Time
}

type activityEvent struct {
	Action     string                 `json:"action"`
	ActorID    uint                   `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uint                  `json:"entity_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	SentAt     time.Time              `json:"sent_at"`
}

// NewActivityService constructs the recorder. The NATS connection may be nil;
// events are then only written to the database.
func NewActivityService(repo repository.ActivityLogRepository, natsConn *nats.Conn, subject string, logger zerolog.Logger) ActivityRecorder {
	return &activityService{
		repo:    repo,
		nats:    natsConn,
		subject: subject,
		logger:  logger.With().Str("component", "activity_service").Logger(),
		now:     time.Now,
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) {
	log := models.ActivityLog{
		ActorID:    entry.Actor.ID,
		ActorRole:  entry.Actor.Role,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   sanitizeMetadata(entry.Metadata),
	}

	if err := s.repo.Create(ctx, &log); err != nil {
		s.logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to persist activity entry")
	}

	if s.nats == nil || s.subject == "" {
		return
	}

	event := activityEvent{
		Action:     entry.Action,
		ActorID:    entry.Actor.ID,
		ActorRole:  entry.Actor.Role,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   entry.Metadata,
		SentAt:     s.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to encode activity event")
		return
	}

	if err := s.nats.Publish(s.subject, payload); err != nil {
		s.logger.Warn().Err(err).Str("subject", s.subject).Msg("failed to publish activity event")
	}
}

func (s *activityService) Recent(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	return s.repo.ListRecent(ctx, limit)
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	if len(metadata) == 0 {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		if key == "" || value == nil {
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}
