package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem, problems.ProblemMediaType)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem, problems.ProblemMediaType)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem, problems.ProblemMediaType)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem, problems.ProblemMediaType)
}

// handleServiceError maps domain errors onto problem responses. Lifecycle
// violations are conflicts, validation failures are bad requests, missing
// entities are 404s.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrGraphCycle), errors.Is(err, models.ErrGraphIntegrity):
		return badRequest(c, err.Error())

	case errors.Is(err, models.ErrJourneyArchived):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("journey_archived").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem, problems.ProblemMediaType)

	case errors.Is(err, models.ErrInvalidState):
		return conflict(c, err.Error())

	case persistence.IsJourneyNotFound(err):
		return notFound(c, "journey not found")

	case persistence.IsVersionNotFound(err):
		return notFound(c, "journey has no published version")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	default:
		return internalError(c, err)
	}
}
