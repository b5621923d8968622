package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/lumen-edu/lumen-quiz-api/internal/dto"
	"github.com/lumen-edu/lumen-quiz-api/pkg/ai"
)

// ErrTutorUnavailable indicates the relay has no upstream client configured.
var ErrTutorUnavailable = errors.New("tutor is not configured")

// TutorService relays chat conversations to the upstream model as a stream of
// content deltas. It carries no state of its own.
type TutorService interface {
	Stream(ctx context.Context, payload dto.TutorChatRequest, emit func(delta string) error) error
}

type tutorService struct {
	client    *ai.ChatClient
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTutorService constructs the relay. The client may be nil when no API key
// is configured; Stream then fails with ErrTutorUnavailable.
func NewTutorService(client *ai.ChatClient, validate *validator.Validate, logger zerolog.Logger) TutorService {
	return &tutorService{
		client:    client,
		validator: validate,
		logger:    logger.With().Str("component", "tutor_service").Logger(),
	}
}

func (s *tutorService) Stream(ctx context.Context, payload dto.TutorChatRequest, emit func(delta string) error) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	if s.client == nil {
		return ErrTutorUnavailable
	}

	messages := make([]ai.Message, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}

	return s.client.StreamChat(ctx, messages, emit)
}
