package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jwoo-kim/weather-etl/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the read-only run observability handlers into the
// Fiber app. Run failures remain visible through logs as well; this surface
// only mirrors the recorded outcomes.
func RegisterRoutes(app *fiber.App, history *store.RunHistory) {
	v1 := app.Group("/api/v1")

	v1.Get("/runs", func(c *fiber.Ctx) error {
		var req runsQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(fiber.Map{
			"runs": history.Recent(req.Limit),
		})
	})

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		latest, err := history.Latest()
		if err != nil {
			if errors.Is(err, store.ErrNoRuns) {
				return fiber.NewError(fiber.StatusNotFound, "no runs recorded yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch run history")
		}
		return c.JSON(latest)
	})
}

// runsQuery holds query parameters for the run listing endpoint.
type runsQuery struct {
	Limit int `validate:"gte=1,lte=100"`
}

func (q *runsQuery) bind(c *fiber.Ctx) error {
	q.Limit = 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("limit must be an integer")
		}
		q.Limit = n
	}
	return nil
}
