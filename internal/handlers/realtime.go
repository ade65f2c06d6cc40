package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/calsched/internal/auth"
	"github.com/charlesng35/calsched/internal/middleware"
	"github.com/charlesng35/calsched/internal/realtime"
	"github.com/charlesng35/calsched/pkg/errors"
	"github.com/charlesng35/calsched/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into authenticated WebSocket streams.
type RealtimeHandler struct {
	hub            *realtime.Hub
	jwt            *iauth.JWTService
	actors         middleware.ActorResolver
	allowedStreams map[string]struct{}
}

// NewRealtimeHandler constructs a realtime handler restricted to the given streams.
// With no streams, every stream in realtime.Streams is allowed.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, actors middleware.ActorResolver, streams ...string) *RealtimeHandler {
	if len(streams) == 0 {
		streams = realtime.Streams()
	}
	allowed := make(map[string]struct{}, len(streams))
	for _, stream := range streams {
		if stream = normalizeStream(stream); stream != "" {
			allowed[stream] = struct{}{}
		}
	}

	return &RealtimeHandler{
		hub:            hub,
		jwt:            jwt,
		actors:         actors,
		allowedStreams: allowed,
	}
}

// Stream validates the caller and hands the connection to the hub. Browsers cannot set headers
// on websocket upgrades, so the token may also arrive as ?token= or ?access_token=.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		token, _ = iauth.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	if h.actors != nil {
		if _, err := h.actors.Actor(requestContext(c), userID); err != nil {
			response.Error(c, errors.ErrUnauthorized)
			return
		}
	}

	streams := gatherStreams(c)
	if len(streams) == 0 {
		streams = []string{realtime.StreamEvents, realtime.StreamNotifications}
	}
	for _, stream := range streams {
		if _, ok := h.allowedStreams[stream]; !ok {
			response.Error(c, errors.ErrNotFound.WithMessage("unknown stream "+stream))
			return
		}
	}

	h.hub.Serve(userID, streams, h.allowedStreams, c.Writer, c.Request)
}

func gatherStreams(c *gin.Context) []string {
	var streams []string

	if pathStream := normalizeStream(c.Param("stream")); pathStream != "" {
		streams = append(streams, pathStream)
	}
	for _, queryStream := range c.QueryArray("stream") {
		streams = append(streams, normalizeStream(queryStream))
	}
	if raw := c.Query("streams"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			streams = append(streams, normalizeStream(part))
		}
	}

	return uniqueStreams(streams)
}

func normalizeStream(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func uniqueStreams(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
