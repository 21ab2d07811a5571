package server

import (
	"secmaster/internal/middleware"
	"secmaster/internal/models"
	"secmaster/internal/service"
	"secmaster/internal/workflow"

	"github.com/gofiber/fiber/v2"
)

// mutationRequest is the body of a create or update. AuthoriserID names the
// reviewer and is ignored for actors who bypass review.
type mutationRequest[F any] struct {
	AuthoriserID uint `json:"authoriser_id"`
	Data         F    `json:"data"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// kindHandlers serves one governed kind.
type kindHandlers[F, E, P any, PP workflow.PendingPtr[P, F]] struct {
	svc *service.Governance[F, E, P, PP]
}

// mountKind registers the record and change-request routes of one kind
// under path. limit guards the mutating routes.
func mountKind[F, E, P any, PP workflow.PendingPtr[P, F]](router fiber.Router, path string, svc *service.Governance[F, E, P, PP], limit fiber.Handler) {
	h := &kindHandlers[F, E, P, PP]{svc: svc}
	g := router.Group(path)

	// Specific /pending routes before the generic /:id routes.
	g.Get("/pending", h.ListPending)
	g.Get("/pending/:id", h.GetPending)
	g.Post("/pending/:id/approve", h.Approve)
	g.Post("/pending/:id/reject", h.Reject)

	g.Get("/", h.List)
	g.Post("/", limit, h.Create)
	g.Get("/:id", h.Get)
	g.Put("/:id", limit, h.Update)
	g.Delete("/:id", limit, h.Delete)
}

func (h *kindHandlers[F, E, P, PP]) List(c *fiber.Ctx) error {
	p := parsePagination(c, defaultPageSize)
	page, err := h.svc.List(c.UserContext(), p.Page, p.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *kindHandlers[F, E, P, PP]) Get(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	entity, err := h.svc.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(entity)
}

// Create adds a record directly or proposes it, answering 201 or 202.
func (h *kindHandlers[F, E, P, PP]) Create(c *fiber.Ctx) error {
	var req mutationRequest[F]
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	m, err := h.svc.Create(c.UserContext(), middleware.ActorID(c), req.AuthoriserID, req.Data)
	if err != nil {
		return respondError(c, err)
	}
	if m.Applied {
		return c.Status(fiber.StatusCreated).JSON(m)
	}
	return c.Status(fiber.StatusAccepted).JSON(m)
}

func (h *kindHandlers[F, E, P, PP]) Update(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req mutationRequest[F]
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	m, err := h.svc.Update(c.UserContext(), middleware.ActorID(c), req.AuthoriserID, id, req.Data)
	if err != nil {
		return respondError(c, err)
	}
	return mutated(c, m.Applied, m)
}

// Delete takes the authoriser from the query string since DELETE carries no body.
func (h *kindHandlers[F, E, P, PP]) Delete(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	authoriserID := c.QueryInt("authoriser_id", 0)
	if authoriserID < 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid authoriser ID"))
	}
	m, err := h.svc.Delete(c.UserContext(), middleware.ActorID(c), uint(authoriserID), id)
	if err != nil {
		return respondError(c, err)
	}
	return mutated(c, m.Applied, m)
}

func (h *kindHandlers[F, E, P, PP]) ListPending(c *fiber.Ctx) error {
	p := parsePagination(c, defaultPageSize)
	page, err := h.svc.ListPending(c.UserContext(), p.Page, p.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (h *kindHandlers[F, E, P, PP]) GetPending(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	sub, err := h.svc.GetPending(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sub)
}

func (h *kindHandlers[F, E, P, PP]) Approve(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	mat, err := h.svc.Approve(c.UserContext(), middleware.ActorID(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(mat)
}

func (h *kindHandlers[F, E, P, PP]) Reject(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req rejectRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	rejected, err := h.svc.Reject(c.UserContext(), middleware.ActorID(c), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rejected)
}

// mutated answers 200 when the change was applied and 202 when it awaits review.
func mutated(c *fiber.Ctx, applied bool, body any) error {
	if applied {
		return c.Status(fiber.StatusOK).JSON(body)
	}
	return c.Status(fiber.StatusAccepted).JSON(body)
}
