package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lumen-edu/lumen-quiz-api/internal/models"
	"github.com/lumen-edu/lumen-quiz-api/internal/observability"
	"github.com/lumen-edu/lumen-quiz-api/pkg/blobstore"
)

// ErrDefinitionNotFound indicates the quiz document does not exist.
var ErrDefinitionNotFound = errors.New("quiz definition not found")

// ErrMalformedDefinition indicates the quiz document failed validation.
var ErrMalformedDefinition = errors.New("quiz definition is malformed")

// DefinitionLocator identifies a published quiz document.
type DefinitionLocator struct {
	CourseID uint
	QuizPath string
}

func (l DefinitionLocator) blobPath() string {
	return fmt.Sprintf("courses/%d/%s", l.CourseID, l.QuizPath)
}

func (l DefinitionLocator) cacheKey() string {
	return fmt.Sprintf("lumen:quizdef:%d:%s", l.CourseID, l.QuizPath)
}

const quizDefinitionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["title", "max_attempts", "questions"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "time_limit_minutes": {"type": "integer", "minimum": 0},
    "max_attempts": {"type": "integer", "minimum": 1},
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["type", "prompt", "points"],
        "properties": {
          "type": {"enum": ["multiple_choice", "short_answer"]},
          "prompt": {"type": "string", "minLength": 1},
          "points": {"type": "integer", "minimum": 1},
          "options": {"type": "array", "minItems": 2, "items": {"type": "string"}},
          "correct_index": {"type": "integer", "minimum": 0}
        },
        "if": {"properties": {"type": {"const": "multiple_choice"}}},
        "then": {"required": ["options", "correct_index"]}
      }
    }
  }
}`

// DefinitionService loads and publishes immutable quiz definition documents.
type DefinitionService interface {
	Load(ctx context.Context, locator DefinitionLocator) (models.QuizDefinition, error)
	Publish(ctx context.Context, locator DefinitionLocator, payload []byte) (string, error)
}

type definitionService struct {
	store  blobstore.Store
	redis  *redis.Client
	ttl    time.Duration
	schema *jsonschema.Schema
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewDefinitionService constructs the loader. The redis client may be nil, in
// which case every load goes to the blob store.
func NewDefinitionService(store blobstore.Store, redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) DefinitionService {
	return &definitionService{
		store:  store,
		redis:  redisClient,
		ttl:    ttl,
		schema: jsonschema.MustCompileString("quiz_definition.json", quizDefinitionSchema),
		logger: logger.With().Str("component", "definition_service").Logger(),
		tracer: otel.Tracer("github.com/lumen-edu/lumen-quiz-api/internal/service/definition"),
	}
}

func (s *definitionService) Load(ctx context.Context, locator DefinitionLocator) (models.QuizDefinition, error) {
	ctx, span := s.tracer.Start(ctx, "definition.load", trace.WithAttributes(
		attribute.Int64("quiz.course_id", int64(locator.CourseID)),
		attribute.String("quiz.path", locator.QuizPath),
	))
	defer span.End()

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, locator.cacheKey()).Bytes()
		if err == nil {
			var def models.QuizDefinition
			if err := json.Unmarshal(cached, &def); err == nil {
				observability.DefinitionCache().WithLabelValues("hit").Inc()
				span.SetAttributes(attribute.Bool("quiz.cache_hit", true))
				return def, nil
			}
			s.logger.Warn().Str("key", locator.cacheKey()).Msg("discarding undecodable cached definition")
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("definition cache read failed")
		}
		observability.DefinitionCache().WithLabelValues("miss").Inc()
	}

	data, err := s.store.Download(ctx, locator.blobPath())
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			span.SetStatus(codes.Error, "definition_not_found")
			return models.QuizDefinition{}, ErrDefinitionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "definition_fetch_failed")
		return models.QuizDefinition{}, fmt.Errorf("failed to fetch quiz definition: %w", err)
	}

	def, err := s.decode(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "definition_malformed")
		return models.QuizDefinition{}, err
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, locator.cacheKey(), data, s.ttl).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("definition cache write failed")
		}
	}

	return def, nil
}

func (s *definitionService) Publish(ctx context.Context, locator DefinitionLocator, payload []byte) (string, error) {
	ctx, span := s.tracer.Start(ctx, "definition.publish", trace.WithAttributes(
		attribute.Int64("quiz.course_id", int64(locator.CourseID)),
		attribute.String("quiz.path", locator.QuizPath),
	))
	defer span.End()

	mime := mimetype.Detect(payload)
	if !mime.Is("application/json") && !mime.Is("text/plain") {
		err := fmt.Errorf("%w: unexpected content type %s", ErrMalformedDefinition, mime.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "definition_wrong_type")
		return "", err
	}

	if _, err := s.decode(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "definition_malformed")
		return "", err
	}

	url, err := s.store.Upload(ctx, locator.blobPath(), payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "definition_upload_failed")
		return "", fmt.Errorf("failed to publish quiz definition: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, locator.cacheKey()).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("definition cache invalidation failed")
		}
	}

	s.logger.Info().Uint("course_id", locator.CourseID).Str("quiz_path", locator.QuizPath).Msg("quiz definition published")

	return url, nil
}

// decode parses and validates a quiz definition document.
func (s *definitionService) decode(data []byte) (models.QuizDefinition, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.QuizDefinition{}, fmt.Errorf("%w: %v", ErrMalformedDefinition, err)
	}

	if err := s.schema.Validate(doc); err != nil {
		return models.QuizDefinition{}, fmt.Errorf("%w: %v", ErrMalformedDefinition, err)
	}

	var def models.QuizDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return models.QuizDefinition{}, fmt.Errorf("%w: %v", ErrMalformedDefinition, err)
	}

	for i, question := range def.Questions {
		if question.Type == models.QuestionTypeMultipleChoice {
			if question.CorrectIndex == nil || *question.CorrectIndex < 0 || *question.CorrectIndex >= len(question.Options) {
				return models.QuizDefinition{}, fmt.Errorf("%w: question %d correct_index out of range", ErrMalformedDefinition, i)
			}
		}
	}

	return def, nil
}
