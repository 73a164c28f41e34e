package http

import (
	"encoding/json"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/vovakirdan/chatroom-server/internal/core"
	"github.com/vovakirdan/chatroom-server/internal/proto"
)

var errUnsupportedVersion = &core.CoreError{
	Kind:    core.KindBadRequest,
	Code:    proto.ErrCodeUnsupportedVersion,
	Message: "unsupported protocol version",
}

// decodePayload unmarshals inbound data. A missing payload leaves v zero.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return core.ErrBadRequest.WithMessage("malformed payload")
	}
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventSetUsername:
		return eventOutbound(proto.EventSetUsername, proto.EventSetUsernameData{
			Username:    event.Identity.Username,
			Color:       event.Identity.Color,
			IsModerator: event.Identity.IsModerator,
		})
	case core.EventHistory:
		items := lo.Map(event.History, func(e core.HistoryEntry, _ int) proto.HistoryItem {
			return proto.HistoryItem{Kind: string(e.Kind), EventMessageData: messageData(e)}
		})
		return eventOutbound(proto.EventChatHistory, proto.EventChatHistoryData{Messages: items})
	case core.EventMessage:
		if event.Entry.Kind == core.EntrySystem {
			return eventOutbound(proto.EventSystem, proto.EventSystemData{
				Message:   event.Entry.Text,
				Timestamp: event.Entry.Timestamp.Unix(),
			})
		}
		return eventOutbound(proto.EventMessage, messageData(*event.Entry))
	case core.EventMessageEdited:
		return eventOutbound(proto.EventMessageEdited, proto.EventMessageEditedData{
			MessageID:  event.Edit.MessageID,
			NewContent: event.Edit.Text,
			EditedAt:   event.Edit.EditedAt.Unix(),
		})
	case core.EventUserJoined:
		return eventOutbound(proto.EventUserJoined, presenceData(event.Entry))
	case core.EventUserLeft:
		return eventOutbound(proto.EventUserLeft, presenceData(event.Entry))
	case core.EventUserList:
		users := lo.Map(event.Users, func(u core.OnlineUser, _ int) proto.OnlineUser {
			return proto.OnlineUser{Username: u.Username, Color: u.Color, IsModerator: u.IsModerator}
		})
		return eventOutbound(proto.EventUpdateUserList, proto.EventUserListData{Users: users})
	case core.EventRateLimited:
		return eventOutbound(proto.EventRateLimited, proto.EventRateLimitedData{
			RetryAfterSeconds: retrySeconds(event.RetryAfter),
		})
	case core.EventBanNotice:
		return eventOutbound(proto.EventBanNotice, proto.EventReasonData{Reason: event.Reason})
	case core.EventModerationResponse:
		res := event.Moderation
		return eventOutbound(proto.ModerationResponseEvent(res.Action), proto.EventModerationResponseData{
			Success:  true,
			Username: res.Target,
			Reason:   res.Reason,
			Evicted:  res.Evicted,
		})
	case core.EventRoleUpdated:
		return eventOutbound(proto.EventUserRoleUpdated, roleData(event.Role))
	case core.EventPromotedNotice:
		return eventOutbound(proto.EventPromotedNotice, roleData(event.Role))
	case core.EventDemotedNotice:
		return eventOutbound(proto.EventDemotedNotice, roleData(event.Role))
	case core.EventShutdown:
		return eventOutbound(proto.EventShutdown, proto.EventReasonData{Reason: event.Reason})
	case core.EventUsernameChanged:
		return eventOutbound(proto.EventUsernameChanged, proto.EventUsernameChangedData{
			OldUsername: event.Rename.OldUsername,
			NewUsername: event.Rename.NewUsername,
		})
	case core.EventError:
		return errorOutbound(event.Error)
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}
	}
}

func errorOutbound(ce *core.CoreError) proto.Outbound {
	if ce == nil {
		ce = core.ErrInternal
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: ce.Code, Kind: string(ce.Kind), Msg: ce.Message},
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func messageData(e core.HistoryEntry) proto.EventMessageData {
	data := proto.EventMessageData{
		MessageID:      e.MessageID,
		Username:       e.Username,
		Message:        e.Text,
		Color:          e.Color,
		Timestamp:      e.Timestamp.Unix(),
		Mentions:       nonNil(e.Mentions),
		ValidUsernames: nonNil(e.ValidUsernames),
	}
	if e.EditedAt != nil {
		data.EditedAt = lo.ToPtr(e.EditedAt.Unix())
	}
	return data
}

func presenceData(e *core.HistoryEntry) proto.EventPresenceData {
	return proto.EventPresenceData{Username: e.Username, Color: e.Color, Timestamp: e.Timestamp.Unix()}
}

func roleData(r *core.RoleChange) proto.EventRoleData {
	return proto.EventRoleData{Username: r.Username, IsModerator: r.IsModerator}
}

// retrySeconds rounds up so clients never retry too early.
func retrySeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
