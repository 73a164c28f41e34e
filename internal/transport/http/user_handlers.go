package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatroom-server/internal/auth"
	"github.com/vovakirdan/chatroom-server/internal/core"
	"github.com/vovakirdan/chatroom-server/internal/store"
)

const (
	defaultMessagesLimit = 50
	maxMessagesLimit     = 500
)

// ChatHandlers provides read endpoints over the room and per-user settings.
type ChatHandlers struct {
	hub         *core.Hub
	store       store.Store
	authService *auth.Service
	log         *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance. st may be nil.
func NewChatHandlers(hub *core.Hub, st store.Store, authService *auth.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		hub:         hub,
		store:       st,
		authService: authService,
		log:         logger,
	}
}

// OnlineUserResponse represents an online user in API responses.
type OnlineUserResponse struct {
	Username    string `json:"username"`
	Color       string `json:"color"`
	IsModerator bool   `json:"is_moderator"`
}

// MessageResponse represents a persisted message in API responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	EditedAt  *int64 `json:"edited_at"`
}

// ColorRequest represents the color change request body.
type ColorRequest struct {
	Color string `json:"color" binding:"required"`
}

// UsernameRequest represents the username change request body.
type UsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

// UsernameResponse carries the new name and a token issued for it.
type UsernameResponse struct {
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
	Evicted  bool   `json:"evicted"`
}

// OnlineUsers lists the identities currently online.
// GET /api/users/online
func (h *ChatHandlers) OnlineUsers(c *gin.Context) {
	users := h.hub.OnlineUsers(c.Request.Context())
	c.JSON(http.StatusOK, lo.Map(users, func(u core.OnlineUser, _ int) OnlineUserResponse {
		return OnlineUserResponse{Username: u.Username, Color: u.Color, IsModerator: u.IsModerator}
	}))
}

// Messages lists recent messages in time order.
// GET /api/messages?limit=N
func (h *ChatHandlers) Messages(c *gin.Context) {
	limit := defaultMessagesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxMessagesLimit)
	}

	if h.store == nil {
		entries := lo.Filter(h.hub.History(), func(e core.HistoryEntry, _ int) bool {
			return e.Kind == core.EntryMessage
		})
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		c.JSON(http.StatusOK, lo.Map(entries, func(e core.HistoryEntry, _ int) MessageResponse {
			resp := MessageResponse{ID: e.MessageID, Username: e.Username, Message: e.Text, Timestamp: e.Timestamp.Unix()}
			if e.EditedAt != nil {
				resp.EditedAt = lo.ToPtr(e.EditedAt.Unix())
			}
			return resp
		}))
		return
	}

	messages, err := h.store.ListMessages(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list messages")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(messages, func(m *store.Message, _ int) MessageResponse {
		resp := MessageResponse{ID: m.ID, Username: m.Username, Message: m.Body, Timestamp: m.CreatedAt.Unix()}
		if m.EditedAt != nil {
			resp.EditedAt = lo.ToPtr(m.EditedAt.Unix())
		}
		return resp
	}))
}

// UpdateColor changes the persisted color of the caller. It applies on the next identify.
// PUT /api/me/color
func (h *ChatHandlers) UpdateColor(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	if h.store == nil {
		respondError(c, core.ErrPersistenceUnavailable)
		return
	}

	var req ColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	color := strings.ToUpper(strings.TrimSpace(req.Color))
	if !h.hub.Colors().Contains(color) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "color is not in the palette"})
		return
	}

	if err := h.store.UpdateUserColor(c.Request.Context(), actor.UserID, color); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, core.ErrUserNotFound)
			return
		}
		h.log.Error().Err(err).Int64("user_id", actor.UserID).Msg("failed to update color")
		respondError(c, err)
		return
	}

	h.log.Info().Str("username", actor.Username).Str("color", color).Msg("color updated")
	c.JSON(http.StatusOK, gin.H{"color": color})
}

// UpdateUsername renames the caller's account. An open chat connection of the
// account is closed and has to identify again.
// PUT /api/me/username
func (h *ChatHandlers) UpdateUsername(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req UsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Username)
	if err := auth.ValidateUsername(name); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	change, err := h.hub.ChangeUsername(c.Request.Context(), actor, name)
	if err != nil {
		h.log.Debug().Err(err).Int64("user_id", actor.UserID).Str("username", name).Msg("username change rejected")
		respondError(c, err)
		return
	}

	resp := UsernameResponse{Username: change.NewUsername, Evicted: change.Evicted}
	if h.authService != nil {
		token, err := h.authService.IssueToken(change.UserID, change.NewUsername)
		if err != nil {
			h.log.Error().Err(err).Int64("user_id", change.UserID).Msg("failed to issue token after rename")
			respondError(c, err)
			return
		}
		resp.Token = token
	}
	c.JSON(http.StatusOK, resp)
}
