package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatroom-server/internal/core"
	"github.com/vovakirdan/chatroom-server/internal/store"
)

// ModerationHandlers exposes the administrative path of the moderation engine.
// Actors come from JWT claims, so these run concurrently with WebSocket traffic.
type ModerationHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewModerationHandlers creates a new moderation handlers instance.
func NewModerationHandlers(hub *core.Hub, logger *zerolog.Logger) *ModerationHandlers {
	return &ModerationHandlers{hub: hub, log: logger}
}

// ModerationRequest represents a moderation command body.
type ModerationRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Reason   string `json:"reason" binding:"max=256"`
}

// ModerationResponse acknowledges a moderation command.
type ModerationResponse struct {
	Action   string `json:"action"`
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
	Evicted  bool   `json:"evicted"`
}

// SessionResponse describes the caller.
type SessionResponse struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	IsModerator bool   `json:"is_moderator"`
}

// UserRecordResponse is a persisted user as shown to moderators.
type UserRecordResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Color       string `json:"color"`
	IsModerator bool   `json:"is_moderator"`
	Registered  bool   `json:"registered"`
	Banned      bool   `json:"banned"`
}

// BanResponse is one ban record.
type BanResponse struct {
	Username  string `json:"username"`
	BannedBy  string `json:"banned_by"`
	Reason    string `json:"reason"`
	CreatedAt int64  `json:"created_at"`
}

// Session reports who the token belongs to and the current moderator capability.
// GET /api/session
func (h *ModerationHandlers) Session(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	isMod, err := h.hub.Moderation().IsModerator(c.Request.Context(), actor)
	if err != nil {
		// Without persistence only the super-moderator has the flag.
		isMod = h.hub.Moderation().IsSuperModerator(actor.Username)
	}
	c.JSON(http.StatusOK, SessionResponse{UserID: actor.UserID, Username: actor.Username, IsModerator: isMod})
}

// ListUsers lists every persisted user. Moderators only.
// GET /api/users
func (h *ModerationHandlers) ListUsers(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	users, err := h.hub.Moderation().ListUsers(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(users, func(u core.UserRecord, _ int) UserRecordResponse {
		return UserRecordResponse(u)
	}))
}

// ListBans lists ban records. Moderators only.
// GET /api/bans
func (h *ModerationHandlers) ListBans(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	bans, err := h.hub.Moderation().ListBans(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(bans, func(b *store.Ban, _ int) BanResponse {
		return BanResponse{
			Username:  b.Username,
			BannedBy:  b.BannedByName,
			Reason:    b.Reason,
			CreatedAt: b.CreatedAt.Unix(),
		}
	}))
}

// Ban handles POST /api/moderation/ban
func (h *ModerationHandlers) Ban(c *gin.Context) {
	h.run(c, func(ctx context.Context, actor core.Actor, req ModerationRequest) (*core.ModerationResult, error) {
		return h.hub.Ban(ctx, actor, req.Username, req.Reason)
	})
}

// Unban handles POST /api/moderation/unban
func (h *ModerationHandlers) Unban(c *gin.Context) {
	h.run(c, func(ctx context.Context, actor core.Actor, req ModerationRequest) (*core.ModerationResult, error) {
		return h.hub.Unban(ctx, actor, req.Username)
	})
}

// Promote handles POST /api/moderation/promote
func (h *ModerationHandlers) Promote(c *gin.Context) {
	h.run(c, func(ctx context.Context, actor core.Actor, req ModerationRequest) (*core.ModerationResult, error) {
		return h.hub.Promote(ctx, actor, req.Username)
	})
}

// Demote handles POST /api/moderation/demote
func (h *ModerationHandlers) Demote(c *gin.Context) {
	h.run(c, func(ctx context.Context, actor core.Actor, req ModerationRequest) (*core.ModerationResult, error) {
		return h.hub.Demote(ctx, actor, req.Username)
	})
}

type moderationFunc func(ctx context.Context, actor core.Actor, req ModerationRequest) (*core.ModerationResult, error)

func (h *ModerationHandlers) run(c *gin.Context, fn moderationFunc) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req ModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid moderation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := fn(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ModerationResponse{
		Action:   result.Action,
		Username: result.Target,
		Reason:   result.Reason,
		Evicted:  result.Evicted,
	})
}

func (h *ModerationHandlers) actor(c *gin.Context) (core.Actor, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return core.Actor{}, false
	}
	return actor, true
}
