// ABOUTME: Core domain entities for the sync engine, mirroring the server's REST payloads
// ABOUTME: All timestamps are Unix milliseconds; zero means unset

package model

// Channel type constants as reported by the server.
const (
	ChannelTypeOpen    = "O"
	ChannelTypePrivate = "P"
	ChannelTypeDirect  = "D"
	ChannelTypeGroup   = "G"
)

// Team is a server-global team. Visibility for the current user is carried
// by a TeamMembership row, not by the team itself.
type Team struct {
	ID          string `json:"id"`
	CreateAt    int64  `json:"create_at"`
	UpdateAt    int64  `json:"update_at"`
	DeleteAt    int64  `json:"delete_at"`
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	AllowedDomains string `json:"allowed_domains"`
}

// TeamMembership links the current user to a team. DeleteAt > 0 marks a
// membership the user has left; the team must be purged locally.
type TeamMembership struct {
	TeamID      string `json:"team_id"`
	UserID      string `json:"user_id"`
	Roles       string `json:"roles"`
	DeleteAt    int64  `json:"delete_at"`
	SchemeUser  bool   `json:"scheme_user"`
	SchemeAdmin bool   `json:"scheme_admin"`
}

// Channel is a server-global channel. DM/GM channels have an empty TeamID.
type Channel struct {
	ID            string `json:"id"`
	CreateAt      int64  `json:"create_at"`
	UpdateAt      int64  `json:"update_at"`
	DeleteAt      int64  `json:"delete_at"`
	TeamID        string `json:"team_id"`
	Type          string `json:"type"`
	DisplayName   string `json:"display_name"`
	Name          string `json:"name"`
	Header        string `json:"header"`
	Purpose       string `json:"purpose"`
	CreatorID     string `json:"creator_id"`
	Shared        bool   `json:"shared"`
	TotalMsgCount int64  `json:"total_msg_count"`
	LastPostAt    int64  `json:"last_post_at"`
}

// IsDirect reports whether the channel is a DM or GM channel.
func (c *Channel) IsDirect() bool {
	return c.Type == ChannelTypeDirect || c.Type == ChannelTypeGroup
}

// ChannelMembership is the server's channel-member record for any user.
type ChannelMembership struct {
	ChannelID    string            `json:"channel_id"`
	UserID       string            `json:"user_id"`
	Roles        string            `json:"roles"`
	LastViewedAt int64             `json:"last_viewed_at"`
	MsgCount     int64             `json:"msg_count"`
	MentionCount int64             `json:"mention_count"`
	NotifyProps  map[string]string `json:"notify_props"`
	LastUpdateAt int64             `json:"last_update_at"`
	SchemeUser   bool              `json:"scheme_user"`
	SchemeAdmin  bool              `json:"scheme_admin"`
}

// MyChannel carries the current user's per-channel state. Its existence
// implies membership; absence on the server means the local row is purged.
type MyChannel struct {
	ChannelID      string
	LastPostAt     int64
	LastViewedAt   int64
	LastFetchedAt  int64
	MessageCount   int64
	MentionCount   int64
	IsUnread       bool
	ManuallyUnread bool
	Roles          string
	ViewedAt       int64
}

// MyChannelSettings holds the current user's notification preferences for a
// channel, kept separate from MyChannel so bulk unread updates do not churn
// settings rows.
type MyChannelSettings struct {
	ChannelID   string
	NotifyProps map[string]string
}

// Post is immutable once created except for its edit and delete timestamps.
type Post struct {
	ID        string `json:"id"`
	CreateAt  int64  `json:"create_at"`
	UpdateAt  int64  `json:"update_at"`
	EditAt    int64  `json:"edit_at"`
	DeleteAt  int64  `json:"delete_at"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	RootID    string `json:"root_id"`
	OriginalID string `json:"original_id"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	PendingPostID string `json:"pending_post_id"`
	ReplyCount    int64  `json:"reply_count"`
	IsPinned      bool   `json:"is_pinned"`
	LastReplyAt   int64  `json:"last_reply_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// PostWindow is a contiguous [Earliest, Latest] create_at range over which a
// channel's or thread's posts are known to be fully synced locally. Windows
// are only ever extended, never shrunk, except on explicit post deletion.
type PostWindow struct {
	OwnerID  string // channel id or thread root post id
	Earliest int64
	Latest   int64
}

// Covers reports whether the window fully contains [earliest, latest].
func (w PostWindow) Covers(earliest, latest int64) bool {
	return w.Earliest <= earliest && w.Latest >= latest
}

// Merge extends the window to include [earliest, latest].
func (w PostWindow) Merge(earliest, latest int64) PostWindow {
	merged := w
	if earliest < merged.Earliest {
		merged.Earliest = earliest
	}
	if latest > merged.Latest {
		merged.Latest = latest
	}
	return merged
}

// Thread is the current user's view of a reply chain rooted at a post.
type Thread struct {
	ID             string `json:"id"` // root post id
	ReplyCount     int64  `json:"reply_count"`
	LastReplyAt    int64  `json:"last_reply_at"`
	LastViewedAt   int64  `json:"last_viewed_at"`
	UnreadReplies  int64  `json:"unread_replies"`
	UnreadMentions int64  `json:"unread_mentions"`
	IsFollowing    bool   `json:"is_following"`
	DeleteAt       int64  `json:"delete_at"`
	Participants   []User `json:"participants,omitempty"`
	Post           *Post  `json:"post,omitempty"`
}

// ThreadParticipant links a user to a thread root.
type ThreadParticipant struct {
	ThreadID string
	UserID   string
}

// TeamThreadsSync is the per-team thread watermark: the [Earliest, Latest]
// last_reply_at range of threads known to be complete locally.
type TeamThreadsSync struct {
	TeamID   string
	Earliest int64
	Latest   int64
}

// Draft is an unsent message for a channel or thread.
type Draft struct {
	ChannelID string
	RootID    string
	Message   string
	UpdateAt  int64
}

// FileInfo describes an uploaded file attached to a post.
type FileInfo struct {
	ID        string `json:"id"`
	PostID    string `json:"post_id"`
	Name      string `json:"name"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CreateAt  int64  `json:"create_at"`
	DeleteAt  int64  `json:"delete_at"`
}

// Reaction has a composite natural key (user, post, emoji) used for
// equality-dedup during reconciliation.
type Reaction struct {
	UserID    string `json:"user_id"`
	PostID    string `json:"post_id"`
	EmojiName string `json:"emoji_name"`
	CreateAt  int64  `json:"create_at"`
}

// Preference is keyed by (user id, category, name); last write wins.
type Preference struct {
	UserID   string `json:"user_id"`
	Category string `json:"category"`
	Name     string `json:"name"`
	Value    string `json:"value"`
}

// User is a lazily-fetched, cached profile.
type User struct {
	ID        string `json:"id"`
	CreateAt  int64  `json:"create_at"`
	UpdateAt  int64  `json:"update_at"`
	DeleteAt  int64  `json:"delete_at"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Nickname  string `json:"nickname"`
	Email     string `json:"email"`
	Locale    string `json:"locale"`
	Position  string `json:"position"`
	Roles     string `json:"roles"`
	Status    string `json:"status,omitempty"`
	IsBot     bool   `json:"is_bot"`
	NotifyProps map[string]string `json:"notify_props,omitempty"`
	Timezone    map[string]string `json:"timezone,omitempty"`
	LastPictureUpdate int64 `json:"last_picture_update"`
}

// IsGuest reports whether the user carries the guest system role.
func (u *User) IsGuest() bool {
	return containsRole(u.Roles, "system_guest")
}

func containsRole(roles, want string) bool {
	start := 0
	for i := 0; i <= len(roles); i++ {
		if i == len(roles) || roles[i] == ' ' {
			if roles[start:i] == want {
				return true
			}
			start = i + 1
		}
	}
	return false
}

// UserStatus is a presence snapshot for a user.
type UserStatus struct {
	UserID       string `json:"user_id"`
	Status       string `json:"status"`
	Manual       bool   `json:"manual"`
	LastActivity int64  `json:"last_activity_at"`
}

// Role names a permission set; fetched lazily when referenced by a
// membership's roles string.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Group is an LDAP/custom user group referenced by team or channel.
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Source      string `json:"source"`
	RemoteID    string `json:"remote_id"`
	MemberCount int    `json:"member_count"`
	CreateAt    int64  `json:"create_at"`
	UpdateAt    int64  `json:"update_at"`
	DeleteAt    int64  `json:"delete_at"`
}

// GroupMembership links a user to a group.
type GroupMembership struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

// TeamSearchHistory is a per-team saved search term, most recent first.
type TeamSearchHistory struct {
	TeamID    string
	Term      string
	CreatedAt int64
}

// Config is the server's client configuration, an opaque string map.
type Config map[string]string

// License is the server's license flags, an opaque string map.
type License map[string]string
