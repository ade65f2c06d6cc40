package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/calsched/internal/handlers"
)

func registerAvailabilityRoutes(api *gin.RouterGroup, handler *handlers.AvailabilityHandler) {
	group := api.Group("/availability")
	{
		group.POST("/check", handler.Check)
		group.POST("/slots", handler.Slots)
		group.GET("/collaborators", handler.Collaborators)
	}
}

func registerEventRoutes(api *gin.RouterGroup, events *handlers.EventHandler, invitations *handlers.InvitationHandler) {
	group := api.Group("/events")
	{
		group.POST("", events.Create)
		group.GET("", events.List)
		group.GET("/:id", events.Get)
		group.PATCH("/:id", events.Update)
		group.PATCH("/:id/time", events.UpdateTime)
		group.DELETE("/:id", events.Cancel)
		group.GET("/:id/ics", events.ExportICS)

		group.GET("/:id/invitations", invitations.ListForEvent)
		group.GET("/:id/invitations/summary", invitations.Summary)
		group.GET("/:id/proposals", invitations.ListProposals)
	}
}

func registerInvitationRoutes(api *gin.RouterGroup, handler *handlers.InvitationHandler) {
	group := api.Group("/invitations")
	{
		group.GET("", handler.ListMine)
		group.POST("/:id/respond", handler.Respond)
		group.POST("/:id/accept-proposal", handler.AcceptProposal)
		group.POST("/:id/reject-proposal", handler.RejectProposal)
	}
}
