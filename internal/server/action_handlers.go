package server

import (
	"encoding/json"

	"secmaster/internal/middleware"
	"secmaster/internal/models"
	"secmaster/internal/service"

	"github.com/gofiber/fiber/v2"
)

type proposeActionRequest struct {
	ModelType  string             `json:"model_type"`
	ActionType models.RequestType `json:"action_type"`
	ModelID    *uint              `json:"model_id"`
	Data       json.RawMessage    `json:"data"`
}

// ListPendingActions lists JSON change requests, optionally by ?status=.
func (s *Server) ListPendingActions(c *fiber.Ctx) error {
	status := models.PendingStatus(c.Query("status"))
	switch status {
	case "", models.PendingStatusPending, models.PendingStatusApproved, models.PendingStatusRejected:
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid status filter"))
	}
	p := parsePagination(c, defaultPageSize)
	page, err := s.actions.List(c.UserContext(), status, p.Page, p.PageSize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func (s *Server) GetPendingAction(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	action, err := s.actions.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(action)
}

// ProposePendingAction records a JSON change request for review.
func (s *Server) ProposePendingAction(c *fiber.Ctx) error {
	var req proposeActionRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	action, err := s.actions.Propose(c.UserContext(), middleware.ActorID(c), service.ProposeInput{
		ModelType:  req.ModelType,
		ActionType: req.ActionType,
		ModelID:    req.ModelID,
		Data:       req.Data,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(action)
}

func (s *Server) ApprovePendingAction(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	action, outcome, err := s.actions.Approve(c.UserContext(), middleware.ActorID(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"action": action, "outcome": outcome})
}

func (s *Server) RejectPendingAction(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req rejectRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
	}
	action, err := s.actions.Reject(c.UserContext(), middleware.ActorID(c), id, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(action)
}
