package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lumen-edu/lumen-quiz-api/internal/dto"
	"github.com/lumen-edu/lumen-quiz-api/internal/service"
	"github.com/lumen-edu/lumen-quiz-api/internal/utils"
)

// AttemptHandler manages quiz attempt endpoints.
type AttemptHandler struct {
	service   service.AttemptService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAttemptHandler builds an attempt handler instance.
func NewAttemptHandler(service service.AttemptService, validator *validator.Validate, logger zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group. The autosave
// limiter guards clients that skip debouncing.
func (h *AttemptHandler) Register(router fiber.Router, autosaveLimiter fiber.Handler) {
	router.Post("/start", h.start)
	router.Get("", h.list)
	router.Get("/:id", h.get)
	if autosaveLimiter != nil {
		router.Patch("/:id/answers", autosaveLimiter, h.autosave)
	} else {
		router.Patch("/:id/answers", h.autosave)
	}
	router.Post("/:id/submit", h.submit)
}

func (h *AttemptHandler) start(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.StartAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	locator := service.DefinitionLocator{CourseID: payload.CourseID, QuizPath: payload.QuizPath}
	attempt, err := h.service.Start(c.UserContext(), userID, locator)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt ready", attempt)
}

func (h *AttemptHandler) get(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	attempt, err := h.service.Get(c.UserContext(), id, userID, userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt retrieved", attempt)
}

func (h *AttemptHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	courseID, err := parseQueryUint(c, "course_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if courseID == nil {
		return utils.SendError(c, fiber.StatusBadRequest, "course_id is required")
	}

	locator := service.DefinitionLocator{CourseID: *courseID, QuizPath: c.Query("quiz_path")}
	attempts, err := h.service.List(c.UserContext(), locator, userID, userRoleFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempts retrieved", attempts)
}

func (h *AttemptHandler) autosave(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SaveAnswersRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	attempt, err := h.service.Autosave(c.UserContext(), id, userID, dto.ToAnswerSet(payload.Answers))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "answers saved", attempt)
}

func (h *AttemptHandler) submit(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmitAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	attempt, err := h.service.Submit(c.UserContext(), id, userID, dto.ToAnswerSet(payload.Answers))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt submitted", attempt)
}

func (h *AttemptHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "attempt not found")
	case errors.Is(err, service.ErrDefinitionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "quiz not found")
	case errors.Is(err, service.ErrAttemptForbidden), errors.Is(err, service.ErrAttemptViewForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrAttemptLimitReached):
		return utils.SendError(c, fiber.StatusConflict, "maximum attempts reached")
	case errors.Is(err, service.ErrAlreadySubmitted), errors.Is(err, service.ErrAttemptImmutable):
		return utils.SendError(c, fiber.StatusConflict, "attempt already submitted")
	case errors.Is(err, service.ErrTimeLimitExceeded):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "quiz time limit exceeded")
	case errors.Is(err, service.ErrMalformedDefinition):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "quiz definition is malformed")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
