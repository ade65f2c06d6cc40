package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/services"
	"github.com/charlesng35/calsched/pkg/response"
)

// InvitationHandler exposes recipient responses and the organizer's negotiation views.
type InvitationHandler struct {
	service *services.InvitationService
}

// NewInvitationHandler constructs an invitation handler.
func NewInvitationHandler(service *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{service: service}
}

type respondRequest struct {
	Action        string     `json:"action" validate:"required"`
	ProposedStart *time.Time `json:"proposed_start"`
	ProposedEnd   *time.Time `json:"proposed_end"`
	Note          *string    `json:"note" validate:"omitempty,max=2000"`
}

type rejectProposalRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

// Respond handles POST /api/invitations/:id/respond for accept, decline and propose.
func (h *InvitationHandler) Respond(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req respondRequest
	if !bindAndValidate(c, &req) {
		return
	}
	action, err := invitation.ParseAction(req.Action)
	if err != nil {
		respondError(c, err)
		return
	}

	input := services.RespondInput{Action: action, Note: req.Note}
	if req.ProposedStart != nil {
		input.ProposedStart = *req.ProposedStart
	}
	if req.ProposedEnd != nil {
		input.ProposedEnd = *req.ProposedEnd
	}

	inv, err := h.service.Respond(requestContext(c), id, actor, input)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, inv)
}

// AcceptProposal handles POST /api/invitations/:id/accept-proposal.
func (h *InvitationHandler) AcceptProposal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.service.AcceptProposal(requestContext(c), id, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// RejectProposal handles POST /api/invitations/:id/reject-proposal. The body is optional.
func (h *InvitationHandler) RejectProposal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req rejectProposalRequest
	if !bindOptional(c, &req) {
		return
	}

	inv, err := h.service.RejectProposal(requestContext(c), id, actor, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, inv)
}

// ListForEvent handles GET /api/events/:id/invitations.
func (h *InvitationHandler) ListForEvent(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	invitations, err := h.service.ListForEvent(requestContext(c), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitations)
}

// ListProposals handles GET /api/events/:id/proposals.
func (h *InvitationHandler) ListProposals(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	proposals, err := h.service.ListProposals(requestContext(c), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, proposals)
}

// Summary handles GET /api/events/:id/invitations/summary.
func (h *InvitationHandler) Summary(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	summary, err := h.service.Summary(requestContext(c), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// ListMine handles GET /api/invitations?status=.
func (h *InvitationHandler) ListMine(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var filter *invitation.Status
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := invitation.ParseStatus(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter = &status
	}

	invitations, err := h.service.ListMine(requestContext(c), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitations)
}
