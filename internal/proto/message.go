package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeRequestUsername = "request_username"
	InboundTypeMessage         = "message"
	InboundTypeEditMessage     = "edit_message"
	InboundTypeBan             = "ban_user_command"
	InboundTypeUnban           = "unban_user_command"
	InboundTypePromote         = "promote_user_command"
	InboundTypeDemote          = "demote_user_command"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventSetUsername     = "set_username"
	EventChatHistory     = "chat_history"
	EventMessage         = "message"
	EventMessageEdited   = "message_edited"
	EventUserJoined      = "user_joined"
	EventUserLeft        = "user_left"
	EventSystem          = "system"
	EventUpdateUserList  = "update_user_list"
	EventRateLimited     = "rate_limited"
	EventBanNotice       = "ban_notice"
	EventUserRoleUpdated = "user_role_updated"
	EventPromotedNotice  = "promoted_notice"
	EventDemotedNotice   = "demoted_notice"
	EventShutdown        = "shutdown"
	EventUsernameChanged = "username_changed"
)

// ModerationResponseEvent names the acknowledgement of a moderation action, e.g. ban_response.
func ModerationResponseEvent(action string) string {
	return action + "_response"
}

// ErrCodeUnsupportedVersion is returned when a client speaks another protocol version.
const ErrCodeUnsupportedVersion = "unsupported_version"

// RequestUsernameData asks the server to bind a display name to the connection.
// An empty Custom requests a generated guest name.
type RequestUsernameData struct {
	Custom   string `json:"custom"`
	Protocol int    `json:"protocol,omitempty"`
}

// MessageData is a chat message from the client.
type MessageData struct {
	Message string `json:"message"`
}

// EditMessageData replaces the content of an own message.
type EditMessageData struct {
	MessageID  int64  `json:"message_id"`
	NewContent string `json:"new_content"`
}

// ModerationData targets a user by name. Reason is only used by bans.
type ModerationData struct {
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventSetUsernameData confirms the identity bound to the connection.
type EventSetUsernameData struct {
	Username    string `json:"username"`
	Color       string `json:"color"`
	IsModerator bool   `json:"is_moderator"`
}

// EventMessageData is a broadcast chat message.
type EventMessageData struct {
	MessageID      int64    `json:"message_id"`
	Username       string   `json:"username"`
	Message        string   `json:"message"`
	Color          string   `json:"color"`
	Timestamp      int64    `json:"timestamp"`
	Mentions       []string `json:"mentions"`
	ValidUsernames []string `json:"valid_usernames"`
	EditedAt       *int64   `json:"edited_at"`
}

// EventPresenceData announces a join or leave.
type EventPresenceData struct {
	Username  string `json:"username"`
	Color     string `json:"color"`
	Timestamp int64  `json:"timestamp"`
}

// EventSystemData is a server announcement.
type EventSystemData struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// HistoryItem is one replayed entry. Kind is message, join or leave.
type HistoryItem struct {
	Kind string `json:"kind"`
	EventMessageData
}

// EventChatHistoryData replays recent activity to a newly identified client.
type EventChatHistoryData struct {
	Messages []HistoryItem `json:"messages"`
}

// EventMessageEditedData carries new content for an existing message.
type EventMessageEditedData struct {
	MessageID  int64  `json:"message_id"`
	NewContent string `json:"new_content"`
	EditedAt   int64  `json:"edited_at"`
}

// OnlineUser is one row of the online list.
type OnlineUser struct {
	Username    string `json:"username"`
	Color       string `json:"color"`
	IsModerator bool   `json:"is_moderator"`
}

// EventUserListData is the full online list.
type EventUserListData struct {
	Users []OnlineUser `json:"users"`
}

// EventRateLimitedData tells the sender its message was dropped.
type EventRateLimitedData struct {
	RetryAfterSeconds int `json:"retry_after_seconds"`
}

// EventReasonData carries a human-readable reason (ban notice, shutdown).
type EventReasonData struct {
	Reason string `json:"reason"`
}

// EventUsernameChangedData tells a renamed connection to identify again.
type EventUsernameChangedData struct {
	OldUsername string `json:"old_username"`
	NewUsername string `json:"new_username"`
}

// EventModerationResponseData acknowledges a moderation command.
type EventModerationResponseData struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
	Evicted  bool   `json:"evicted,omitempty"`
}

// EventRoleData describes a moderator flag change.
type EventRoleData struct {
	Username    string `json:"username"`
	IsModerator bool   `json:"is_moderator"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Kind string `json:"kind,omitempty"`
	Msg  string `json:"msg"`
}
