package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatroom-server/internal/auth"
	"github.com/vovakirdan/chatroom-server/internal/config"
	"github.com/vovakirdan/chatroom-server/internal/core"
	"github.com/vovakirdan/chatroom-server/internal/proto"
	"github.com/vovakirdan/chatroom-server/internal/utils"
)

// closeError asks ServeHTTP to close with a specific status after the write loop flushed.
type closeError struct {
	status websocket.StatusCode
	reason string
}

func (e *closeError) Error() string {
	return e.reason
}

// observe picks the close status from the final notice sent before a kick.
// The notice may be written before the kick is seen.
func (e *closeError) observe(event *core.Event) {
	switch event.Kind {
	case core.EventBanNotice:
		e.reason = "banned"
	case core.EventShutdown:
		e.status = websocket.StatusGoingAway
		e.reason = "server shutting down"
	case core.EventUsernameChanged:
		e.status = websocket.StatusNormalClosure
		e.reason = "username changed"
	}
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub             *core.Hub
	auth            *auth.Service
	maxMessageBytes int64
	maxFrames       int
	log             *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. authService may be nil,
// in which case every connection is anonymous.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:             hub,
		auth:            authService,
		maxMessageBytes: cfg.MaxMessageBytes,
		maxFrames:       cfg.MaxFramesPerMinute,
		log:             logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	info, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stdhttp.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "invalid token"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), info)
	h.hub.Connect(client)
	defer h.hub.Disconnect(client.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh

	// Server-initiated close: the write loop already flushed the final events.
	var kicked *closeError
	if errors.As(err, &kicked) {
		h.log.Debug().Str("conn_id", client.ID).Str("reason", kicked.reason).Msg("closing kicked connection")
		conn.Close(kicked.status, kicked.reason)
		cancel()
		<-errCh
		return
	}

	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) authenticate(r *stdhttp.Request) (core.AuthInfo, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" || h.auth == nil {
		return core.AuthInfo{}, nil
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		return core.AuthInfo{}, err
	}
	return core.AuthInfo{UserID: claims.UserID, Username: claims.Username, Authenticated: true}, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	budget := newFrameBudget(h.maxFrames)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		ok, notify := budget.allow(time.Now())
		if !ok {
			if notify {
				h.log.Warn().Str("conn_id", client.ID).Msg("inbound frame budget exceeded")
				h.replyError(client, core.ErrThrottled.WithMessage("too many frames"))
			}
			continue
		}

		if typ != websocket.MessageText {
			h.log.Warn().Str("conn_id", client.ID).Msg("binary frame rejected")
			h.replyError(client, core.ErrBadRequest.WithMessage("expected text frame"))
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("malformed ws frame")
			h.replyError(client, core.ErrBadRequest.WithMessage("malformed frame"))
			continue
		}

		if err := h.dispatch(ctx, client, inbound); err != nil {
			ce := core.AsCoreError(err)
			logEvent := h.log.Debug()
			switch ce.Kind {
			case core.KindBadRequest:
				logEvent = h.log.Warn()
			case core.KindInternal, core.KindPersistenceUnavailable:
				logEvent = h.log.Error()
			}
			logEvent.Err(err).Str("conn_id", client.ID).Str("type", inbound.Type).Msg("ws command failed")
			h.replyError(client, ce)
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *core.Client, inbound proto.Inbound) error {
	switch inbound.Type {
	case proto.InboundTypeRequestUsername:
		var req proto.RequestUsernameData
		if err := decodePayload(inbound.Data, &req); err != nil {
			return err
		}
		if req.Protocol != 0 && req.Protocol != proto.ProtocolVersion {
			return errUnsupportedVersion
		}
		_, err := h.hub.Identify(ctx, client.ID, req.Custom)
		return err
	case proto.InboundTypeMessage:
		var msg proto.MessageData
		if err := decodePayload(inbound.Data, &msg); err != nil {
			return err
		}
		_, err := h.hub.SendMessage(ctx, client.ID, msg.Message)
		return err
	case proto.InboundTypeEditMessage:
		var edit proto.EditMessageData
		if err := decodePayload(inbound.Data, &edit); err != nil {
			return err
		}
		if edit.MessageID <= 0 {
			return core.ErrBadRequest.WithMessage("message_id is required")
		}
		return h.hub.EditMessage(ctx, client.ID, edit.MessageID, edit.NewContent)
	case proto.InboundTypeBan, proto.InboundTypeUnban, proto.InboundTypePromote, proto.InboundTypeDemote:
		return h.moderate(ctx, client, inbound)
	default:
		return core.ErrBadRequest.WithMessage("unknown message type")
	}
}

func (h *WSHandler) moderate(ctx context.Context, client *core.Client, inbound proto.Inbound) error {
	var req proto.ModerationData
	if err := decodePayload(inbound.Data, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Username) == "" {
		return core.ErrBadRequest.WithMessage("username is required")
	}
	actor, err := h.hub.ActorForConnection(client.ID)
	if err != nil {
		return err
	}

	var result *core.ModerationResult
	switch inbound.Type {
	case proto.InboundTypeBan:
		result, err = h.hub.Ban(ctx, actor, req.Username, req.Reason)
	case proto.InboundTypeUnban:
		result, err = h.hub.Unban(ctx, actor, req.Username)
	case proto.InboundTypePromote:
		result, err = h.hub.Promote(ctx, actor, req.Username)
	case proto.InboundTypeDemote:
		result, err = h.hub.Demote(ctx, actor, req.Username)
	}
	if err != nil {
		return err
	}
	h.hub.Unicast(client.ID, &core.Event{Kind: core.EventModerationResponse, Moderation: result})
	return nil
}

func (h *WSHandler) replyError(client *core.Client, err error) {
	if !h.hub.Unicast(client.ID, core.ErrorEvent(err)) {
		h.log.Debug().Str("conn_id", client.ID).Msg("error reply dropped")
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	kicked := &closeError{status: websocket.StatusPolicyViolation, reason: "disconnected by server"}
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			kicked.observe(event)
			if err := h.write(ctx, conn, client, event); err != nil {
				return err
			}
		case <-client.Done():
			return h.flush(ctx, conn, client, kicked)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// flush writes whatever is still queued for a kicked client.
func (h *WSHandler) flush(ctx context.Context, conn *websocket.Conn, client *core.Client, kicked *closeError) error {
	for {
		select {
		case event := <-client.Events:
			kicked.observe(event)
			if err := h.write(ctx, conn, client, event); err != nil {
				return err
			}
		default:
			return kicked
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, client *core.Client, event *core.Event) error {
	if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
		h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
		return err
	}
	return nil
}
