package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	tutorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lumen",
		Subsystem: "tutor",
		Name:      "stream_duration_seconds",
		Help:      "Duration of tutor chat relay requests",
	}, []string{"model"})

	tutorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumen",
		Subsystem: "tutor",
		Name:      "stream_failures_total",
		Help:      "Number of failed tutor chat relays",
	}, []string{"model"})
)

// Message is one turn of a chat conversation sent upstream.
type Message struct {
	Role    string
	Content string
}

// ChatConfig defines configuration options for the chat relay client.
type ChatConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// ChatClient relays chat conversations to the OpenAI completion API and
// streams the deltas back. It holds no conversation state.
type ChatClient struct {
	client *openai.Client
	cfg    ChatConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewChatClient builds a relay client using the provided configuration.
func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	return &ChatClient{
		client: openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey)),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/lumen-edu/lumen-quiz-api/pkg/ai/openai"),
		logger: cfg.Logger,
	}, nil
}

// StreamChat forwards the conversation upstream and invokes emit for every
// content delta until the stream ends. An error from emit aborts the relay.
func (c *ChatClient) StreamChat(parent context.Context, messages []Message, emit func(delta string) error) error {
	ctx, span := c.tracer.Start(parent, "openai.stream_chat", trace.WithAttributes(
		attribute.String("model", c.cfg.Model),
		attribute.Int("messages", len(messages)),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Stream:      true,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	start := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		tutorFailures.WithLabelValues(c.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			tutorFailures.WithLabelValues(c.cfg.Model).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("openai recv: %w", err)
		}

		if len(response.Choices) == 0 {
			continue
		}

		if delta := response.Choices[0].Delta.Content; delta != "" {
			if err := emit(delta); err != nil {
				span.RecordError(err)
				return err
			}
		}
	}

	tutorDuration.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())

	return nil
}
