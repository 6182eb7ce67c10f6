// ABOUTME: Preference categories, system record identifiers, and user status values
// ABOUTME: System identifiers key the single-row key/value records in each server database

package model

// Preference categories and names used by the sync engine.
const (
	PreferenceCategoryTeamsOrder     = "teams_order"
	PreferenceCategoryDirectShow     = "direct_channel_show"
	PreferenceCategoryGroupShow      = "group_channel_show"
	PreferenceCategoryDisplay        = "display_settings"
	PreferenceNameTeammateNameDisplay = "name_format"
)

// System record identifiers. Exactly one row per identifier per server
// database; absence means unset.
const (
	SystemCurrentTeamID           = "currentTeamId"
	SystemCurrentChannelID        = "currentChannelId"
	SystemCurrentUserID           = "currentUserId"
	SystemConfig                  = "config"
	SystemLicense                 = "license"
	SystemWebSocketLastDisconnect = "webSocketLastDisconnect"
	SystemRecentMentions          = "recentMentions"
	SystemTeamHistory             = "teamHistory"
)

// User presence values.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusDND     = "dnd"
	StatusOffline = "offline"
)
