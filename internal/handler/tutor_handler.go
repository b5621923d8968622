package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lumen-edu/lumen-quiz-api/internal/dto"
	"github.com/lumen-edu/lumen-quiz-api/internal/service"
	"github.com/lumen-edu/lumen-quiz-api/internal/utils"
)

const tutorStreamTimeout = 2 * time.Minute

// TutorHandler relays tutor chats upstream and streams responses back as SSE.
type TutorHandler struct {
	service   service.TutorService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTutorHandler builds a tutor handler instance.
func NewTutorHandler(service service.TutorService, validator *validator.Validate, logger zerolog.Logger) *TutorHandler {
	return &TutorHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "tutor_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *TutorHandler) Register(router fiber.Router) {
	router.Post("/chat", h.chat)
}

func (h *TutorHandler) chat(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.TutorChatRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	logger := *requestLogger(h.logger, c)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// The fiber context is recycled once the handler returns, so the relay
	// runs on a detached context inside the stream writer.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), tutorStreamTimeout)
		defer cancel()

		err := h.service.Stream(ctx, payload, func(delta string) error {
			if err := writeTutorDelta(w, delta); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			logger.Warn().Err(err).Msg("tutor stream ended with error")
			fmt.Fprint(w, "event: error\ndata: tutor stream failed\n\n")
			_ = w.Flush()
			return
		}

		fmt.Fprint(w, "data: [DONE]\n\n")
		_ = w.Flush()
	})

	return nil
}

func writeTutorDelta(w *bufio.Writer, delta string) error {
	chunk, err := json.Marshal(fiber.Map{"delta": delta})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", chunk)
	return err
}
