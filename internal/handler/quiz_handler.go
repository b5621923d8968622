package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/lumen-edu/lumen-quiz-api/internal/dto"
	"github.com/lumen-edu/lumen-quiz-api/internal/service"
	"github.com/lumen-edu/lumen-quiz-api/internal/utils"
)

// QuizHandler serves quiz definition endpoints.
type QuizHandler struct {
	definitions service.DefinitionService
	logger      zerolog.Logger
}

// NewQuizHandler builds a quiz handler instance.
func NewQuizHandler(definitions service.DefinitionService, logger zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		definitions: definitions,
		logger:      logger.With().Str("component", "quiz_handler").Logger(),
	}
}

// Register attaches the read route; RegisterStaff attaches the publish route
// behind the staff RBAC guard.
func (h *QuizHandler) Register(router fiber.Router) {
	router.Get("/definition", h.definition)
}

// RegisterStaff attaches staff-only routes.
func (h *QuizHandler) RegisterStaff(router fiber.Router) {
	router.Post("/definition", h.publish)
}

// definition serves the student-facing view with answer keys stripped.
func (h *QuizHandler) definition(c *fiber.Ctx) error {
	locator, err := locatorFromQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	def, err := h.definitions.Load(c.UserContext(), locator)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "quiz definition retrieved", dto.NewQuizDefinitionView(def))
}

func (h *QuizHandler) publish(c *fiber.Ctx) error {
	locator, err := locatorFromQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	payload := c.Body()
	if len(payload) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "definition payload is required")
	}

	url, err := h.definitions.Publish(c.UserContext(), locator, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "quiz definition published", fiber.Map{"url": url})
}

func locatorFromQuery(c *fiber.Ctx) (service.DefinitionLocator, error) {
	courseID, err := parseQueryUint(c, "course_id")
	if err != nil {
		return service.DefinitionLocator{}, err
	}
	if courseID == nil {
		return service.DefinitionLocator{}, errors.New("course_id is required")
	}

	path := c.Query("path")
	if path == "" {
		return service.DefinitionLocator{}, errors.New("path is required")
	}

	return service.DefinitionLocator{CourseID: *courseID, QuizPath: path}, nil
}

func (h *QuizHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrDefinitionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "quiz not found")
	case errors.Is(err, service.ErrMalformedDefinition):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
