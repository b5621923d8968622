package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lumen-edu/lumen-quiz-api/internal/service"
	"github.com/lumen-edu/lumen-quiz-api/internal/utils"
)

// ActivityHandler serves the staff-facing attempt activity feed.
type ActivityHandler struct {
	activity service.ActivityRecorder
	logger   zerolog.Logger
}

// NewActivityHandler builds an activity handler instance.
func NewActivityHandler(activity service.ActivityRecorder, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		activity: activity,
		logger:   logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("", h.recent)
}

func (h *ActivityHandler) recent(c *fiber.Ctx) error {
	limit, err := parseQueryUint(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	requested := 0
	if limit != nil {
		requested = int(*limit)
	}

	entries, err := h.activity.Recent(c.UserContext(), requested)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "activity retrieved", entries)
}
