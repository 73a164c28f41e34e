package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventSetUsername confirms the identity bound to the connection.
	EventSetUsername EventKind = iota
	// EventHistory delivers the recent history replay after identify.
	EventHistory
	// EventMessage carries a broadcast chat message.
	EventMessage
	// EventMessageEdited notifies clients about changed message content.
	EventMessageEdited
	// EventUserJoined notifies clients that an identity came online.
	EventUserJoined
	// EventUserLeft notifies clients that an identity went offline.
	EventUserLeft
	// EventUserList carries the full online list.
	EventUserList
	// EventRateLimited tells the sender its message was dropped.
	EventRateLimited
	// EventBanNotice is the last event a banned connection receives.
	EventBanNotice
	// EventModerationResponse acknowledges a successful moderation command.
	EventModerationResponse
	// EventRoleUpdated tells everyone a user's moderator flag changed.
	EventRoleUpdated
	// EventPromotedNotice is unicast to a freshly promoted user.
	EventPromotedNotice
	// EventDemotedNotice is unicast to a freshly demoted user.
	EventDemotedNotice
	// EventShutdown precedes a server-initiated close.
	EventShutdown
	// EventUsernameChanged is the last event a renamed connection receives.
	EventUsernameChanged
	// EventError notifies the originator about a domain error.
	EventError
)

var eventKindNames = [...]string{
	EventSetUsername:        "set_username",
	EventHistory:            "chat_history",
	EventMessage:            "message",
	EventMessageEdited:      "message_edited",
	EventUserJoined:         "user_joined",
	EventUserLeft:           "user_left",
	EventUserList:           "update_user_list",
	EventRateLimited:        "rate_limited",
	EventBanNotice:          "ban_notice",
	EventModerationResponse: "moderation_response",
	EventRoleUpdated:        "user_role_updated",
	EventPromotedNotice:     "promoted_notice",
	EventDemotedNotice:      "demoted_notice",
	EventShutdown:           "shutdown",
	EventUsernameChanged:    "username_changed",
	EventError:              "error",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind       EventKind
	Identity   *Identity      // EventSetUsername
	Entry      *HistoryEntry  // EventMessage, EventUserJoined, EventUserLeft
	History    []HistoryEntry // EventHistory
	Users      []OnlineUser   // EventUserList
	Edit       *MessageEdit   // EventMessageEdited
	Role       *RoleChange    // EventRoleUpdated and notices
	Moderation *ModerationResult
	Rename     *UsernameChange // EventUsernameChanged
	RetryAfter time.Duration
	Reason     string
	Error      *CoreError
}

// OnlineUser is one row of the online list.
type OnlineUser struct {
	Username    string
	Color       string
	IsModerator bool
}

// MessageEdit describes new content for an existing message.
type MessageEdit struct {
	MessageID int64
	Text      string
	EditedAt  time.Time
}

// RoleChange describes a moderator flag flip.
type RoleChange struct {
	Username    string
	IsModerator bool
}

// UsernameChange describes an account rename.
type UsernameChange struct {
	UserID      int64
	OldUsername string
	NewUsername string
	Evicted     bool
}

// ErrorEvent builds an error event for the originator of a failed operation.
func ErrorEvent(err error) *Event {
	return &Event{Kind: EventError, Error: AsCoreError(err)}
}
