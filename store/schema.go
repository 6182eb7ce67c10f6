// ABOUTME: Schema creation for the per-server replica database
// ABOUTME: One table per synchronized entity plus the System key/value table

package store

// createSchema creates all replica tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			create_at INTEGER NOT NULL DEFAULT 0,
			update_at INTEGER NOT NULL DEFAULT 0,
			delete_at INTEGER NOT NULL DEFAULT 0,
			display_name TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			allowed_domains TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS team_memberships (
			team_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			roles TEXT NOT NULL DEFAULT '',
			delete_at INTEGER NOT NULL DEFAULT 0,
			scheme_user INTEGER NOT NULL DEFAULT 0,
			scheme_admin INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (team_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			create_at INTEGER NOT NULL DEFAULT 0,
			update_at INTEGER NOT NULL DEFAULT 0,
			delete_at INTEGER NOT NULL DEFAULT 0,
			team_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			display_name TEXT NOT NULL,
			name TEXT NOT NULL,
			header TEXT NOT NULL DEFAULT '',
			purpose TEXT NOT NULL DEFAULT '',
			creator_id TEXT NOT NULL DEFAULT '',
			shared INTEGER NOT NULL DEFAULT 0,
			total_msg_count INTEGER NOT NULL DEFAULT 0,
			last_post_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_channels_team ON channels(team_id);

		CREATE TABLE IF NOT EXISTS channel_memberships (
			channel_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			roles TEXT NOT NULL DEFAULT '',
			scheme_user INTEGER NOT NULL DEFAULT 0,
			scheme_admin INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (channel_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS my_channels (
			channel_id TEXT PRIMARY KEY,
			last_post_at INTEGER NOT NULL DEFAULT 0,
			last_viewed_at INTEGER NOT NULL DEFAULT 0,
			last_fetched_at INTEGER NOT NULL DEFAULT 0,
			message_count INTEGER NOT NULL DEFAULT 0,
			mention_count INTEGER NOT NULL DEFAULT 0,
			is_unread INTEGER NOT NULL DEFAULT 0,
			manually_unread INTEGER NOT NULL DEFAULT 0,
			roles TEXT NOT NULL DEFAULT '',
			viewed_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS my_channel_settings (
			channel_id TEXT PRIMARY KEY,
			notify_props TEXT NOT NULL DEFAULT '{}'
		);

		CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			create_at INTEGER NOT NULL DEFAULT 0,
			update_at INTEGER NOT NULL DEFAULT 0,
			edit_at INTEGER NOT NULL DEFAULT 0,
			delete_at INTEGER NOT NULL DEFAULT 0,
			user_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			root_id TEXT NOT NULL DEFAULT '',
			original_id TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			pending_post_id TEXT NOT NULL DEFAULT '',
			reply_count INTEGER NOT NULL DEFAULT 0,
			is_pinned INTEGER NOT NULL DEFAULT 0,
			last_reply_at INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}'
		);

		CREATE INDEX IF NOT EXISTS idx_posts_channel_create ON posts(channel_id, create_at);
		CREATE INDEX IF NOT EXISTS idx_posts_root ON posts(root_id);

		CREATE TABLE IF NOT EXISTS posts_in_channel (
			channel_id TEXT PRIMARY KEY,
			earliest INTEGER NOT NULL,
			latest INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS posts_in_thread (
			root_id TEXT PRIMARY KEY,
			earliest INTEGER NOT NULL,
			latest INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			reply_count INTEGER NOT NULL DEFAULT 0,
			last_reply_at INTEGER NOT NULL DEFAULT 0,
			last_viewed_at INTEGER NOT NULL DEFAULT 0,
			unread_replies INTEGER NOT NULL DEFAULT 0,
			unread_mentions INTEGER NOT NULL DEFAULT 0,
			is_following INTEGER NOT NULL DEFAULT 0,
			delete_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS thread_participants (
			thread_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (thread_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS threads_in_team (
			team_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			PRIMARY KEY (team_id, thread_id)
		);

		CREATE TABLE IF NOT EXISTS team_threads_sync (
			team_id TEXT PRIMARY KEY,
			earliest INTEGER NOT NULL DEFAULT 0,
			latest INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS drafts (
			channel_id TEXT NOT NULL,
			root_id TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			update_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (channel_id, root_id)
		);

		CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			post_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			extension TEXT NOT NULL DEFAULT '',
			mime_type TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			create_at INTEGER NOT NULL DEFAULT 0,
			delete_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_files_post ON files(post_id);

		CREATE TABLE IF NOT EXISTS reactions (
			user_id TEXT NOT NULL,
			post_id TEXT NOT NULL,
			emoji_name TEXT NOT NULL,
			create_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, post_id, emoji_name)
		);

		CREATE INDEX IF NOT EXISTS idx_reactions_post ON reactions(post_id);

		CREATE TABLE IF NOT EXISTS preferences (
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (user_id, category, name)
		);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			create_at INTEGER NOT NULL DEFAULT 0,
			update_at INTEGER NOT NULL DEFAULT 0,
			delete_at INTEGER NOT NULL DEFAULT 0,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			nickname TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			locale TEXT NOT NULL DEFAULT '',
			position TEXT NOT NULL DEFAULT '',
			roles TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			is_bot INTEGER NOT NULL DEFAULT 0,
			notify_props TEXT NOT NULL DEFAULT '{}',
			timezone TEXT NOT NULL DEFAULT '{}',
			last_picture_update INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS roles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			permissions TEXT NOT NULL DEFAULT '[]'
		);

		CREATE TABLE IF NOT EXISTS user_groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			remote_id TEXT NOT NULL DEFAULT '',
			member_count INTEGER NOT NULL DEFAULT 0,
			create_at INTEGER NOT NULL DEFAULT 0,
			update_at INTEGER NOT NULL DEFAULT 0,
			delete_at INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS group_memberships (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (group_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS system (
			id TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS team_search_history (
			team_id TEXT NOT NULL,
			term TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (team_id, term)
		);

		CREATE TABLE IF NOT EXISTS team_channel_history (
			team_id TEXT PRIMARY KEY,
			channel_ids TEXT NOT NULL DEFAULT '[]'
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}
