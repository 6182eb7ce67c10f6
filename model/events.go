// ABOUTME: Websocket event envelope and the server event type constants
// ABOUTME: Events carry ids in Data or Broadcast inconsistently; handlers check both

package model

import (
	"encoding/json"
	"fmt"
)

// Server-push event types understood by the dispatcher. Types not listed
// here are ignored by design; the server may emit event types newer than
// this client.
const (
	EventPosted               = "posted"
	EventEphemeralMessage     = "ephemeral_message"
	EventPostEdited           = "post_edited"
	EventPostDeleted          = "post_deleted"
	EventPostUnread           = "post_unread"
	EventChannelCreated       = "channel_created"
	EventChannelUpdated       = "channel_updated"
	EventChannelConverted     = "channel_converted"
	EventChannelDeleted       = "channel_deleted"
	EventChannelUnarchived    = "channel_restored"
	EventChannelViewed        = "channel_viewed"
	EventChannelMemberUpdated = "channel_member_updated"
	EventDirectAdded          = "direct_added"
	EventGroupAdded           = "group_added"
	EventUserAdded            = "user_added"
	EventUserRemoved          = "user_removed"
	EventUserUpdated          = "user_updated"
	EventStatusChanged        = "status_change"
	EventTyping               = "typing"
	EventLeaveTeam            = "leave_team"
	EventUpdateTeam           = "update_team"
	EventAddedToTeam          = "added_to_team"
	EventDeleteTeam           = "delete_team"
	EventRestoreTeam          = "restore_team"
	EventPreferenceChanged    = "preference_changed"
	EventPreferencesChanged   = "preferences_changed"
	EventPreferencesDeleted   = "preferences_deleted"
	EventReactionAdded        = "reaction_added"
	EventReactionRemoved      = "reaction_removed"
	EventRoleUpdated          = "role_updated"
	EventUserRoleUpdated      = "user_role_updated"
	EventMemberRoleUpdated    = "memberrole_updated"
	EventThreadUpdated        = "thread_updated"
	EventThreadReadChanged    = "thread_read_changed"
	EventThreadFollowChanged  = "thread_follow_changed"
	EventConfigChanged        = "config_changed"
	EventLicenseChanged       = "license_changed"
	EventHello                = "hello"
)

// EventBroadcast describes the scope the server pushed an event to. The
// server is inconsistent about whether ids live here or in the event data,
// so handlers must consult both.
type EventBroadcast struct {
	ChannelID string `json:"channel_id"`
	TeamID    string `json:"team_id"`
	UserID    string `json:"user_id"`
}

// Event is a single server-push message. Data values are left as raw JSON
// scalars: strings, numbers (float64) and embedded JSON-encoded objects.
type Event struct {
	Type      string         `json:"event"`
	Data      map[string]any `json:"data"`
	Broadcast EventBroadcast `json:"broadcast"`
	Sequence  int64          `json:"seq"`
}

// DataString returns the named data field as a string, or "" if absent.
func (e *Event) DataString(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// DataInt64 returns the named data field as an int64. JSON numbers decode
// as float64; string-encoded integers are not accepted.
func (e *Event) DataInt64(key string) int64 {
	f, _ := e.Data[key].(float64)
	return int64(f)
}

// UnmarshalData decodes a JSON-object-encoded-as-string data field, the
// server's convention for embedded entities (posts, channels, members).
func (e *Event) UnmarshalData(key string, v any) error {
	s, ok := e.Data[key].(string)
	if !ok {
		return fmt.Errorf("event data field %q is not a JSON string", key)
	}
	return json.Unmarshal([]byte(s), v)
}
