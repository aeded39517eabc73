package db

import (
	"context"
	"database/sql"
	"log"
)

const (
	sqlCreatePersonTable = `CREATE TABLE IF NOT EXISTS person (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ap_id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		inbox_url TEXT NOT NULL DEFAULT '',
		shared_inbox_url TEXT NOT NULL DEFAULT '',
		public_key TEXT NOT NULL DEFAULT '',
		local INTEGER NOT NULL DEFAULT 0,
		banned INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		published TIMESTAMP NOT NULL,
		updated TIMESTAMP,
		last_refreshed_at TIMESTAMP NOT NULL
	)`

	sqlCreateCommunityTable = `CREATE TABLE IF NOT EXISTS community (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ap_id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		inbox_url TEXT NOT NULL DEFAULT '',
		followers_url TEXT NOT NULL DEFAULT '',
		public_key TEXT NOT NULL DEFAULT '',
		local INTEGER NOT NULL DEFAULT 0,
		nsfw INTEGER NOT NULL DEFAULT 0,
		manually_approves_followers INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		published TIMESTAMP NOT NULL,
		updated TIMESTAMP,
		last_refreshed_at TIMESTAMP NOT NULL
	)`

	sqlCreatePostTable = `CREATE TABLE IF NOT EXISTS post (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ap_id TEXT UNIQUE NOT NULL,
		creator_id INTEGER NOT NULL REFERENCES person(id) ON DELETE CASCADE,
		community_id INTEGER NOT NULL REFERENCES community(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		nsfw INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		upvotes INTEGER NOT NULL DEFAULT 0,
		downvotes INTEGER NOT NULL DEFAULT 0,
		published TIMESTAMP NOT NULL,
		updated TIMESTAMP
	)`

	sqlCreateCommentTable = `CREATE TABLE IF NOT EXISTS comment (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ap_id TEXT UNIQUE NOT NULL,
		creator_id INTEGER NOT NULL REFERENCES person(id) ON DELETE CASCADE,
		post_id INTEGER NOT NULL REFERENCES post(id) ON DELETE CASCADE,
		parent_id INTEGER REFERENCES comment(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		upvotes INTEGER NOT NULL DEFAULT 0,
		downvotes INTEGER NOT NULL DEFAULT 0,
		published TIMESTAMP NOT NULL,
		updated TIMESTAMP
	)`

	sqlCreateVoteTable = `CREATE TABLE IF NOT EXISTS vote (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id INTEGER NOT NULL REFERENCES person(id) ON DELETE CASCADE,
		target_kind TEXT NOT NULL,
		target_id INTEGER NOT NULL,
		score INTEGER NOT NULL,
		ap_id TEXT NOT NULL DEFAULT '',
		published TIMESTAMP NOT NULL,
		UNIQUE(person_id, target_kind, target_id)
	)`

	sqlCreateFollowTable = `CREATE TABLE IF NOT EXISTS follow (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		follower_id INTEGER NOT NULL REFERENCES person(id) ON DELETE CASCADE,
		target_kind TEXT NOT NULL,
		target_id INTEGER NOT NULL,
		ap_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		published TIMESTAMP NOT NULL,
		updated TIMESTAMP,
		UNIQUE(follower_id, target_kind, target_id)
	)`

	// Activities log table (for deduplication & debugging)
	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT NOT NULL DEFAULT '',
		relay_uri TEXT NOT NULL DEFAULT '',
		raw_json TEXT NOT NULL,
		processed INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateIndices = `
		CREATE INDEX IF NOT EXISTS idx_post_community_id ON post(community_id, published DESC);
		CREATE INDEX IF NOT EXISTS idx_post_creator_id ON post(creator_id);
		CREATE INDEX IF NOT EXISTS idx_comment_post_id ON comment(post_id);
		CREATE INDEX IF NOT EXISTS idx_vote_target ON vote(target_kind, target_id);
		CREATE INDEX IF NOT EXISTS idx_follow_target ON follow(target_kind, target_id);
		CREATE INDEX IF NOT EXISTS idx_follow_ap_id ON follow(ap_id);
		CREATE INDEX IF NOT EXISTS idx_activities_created_at ON activities(created_at DESC);
	`
)

var tables = []struct {
	name string
	sql  string
}{
	{"person", sqlCreatePersonTable},
	{"community", sqlCreateCommunityTable},
	{"post", sqlCreatePostTable},
	{"comment", sqlCreateCommentTable},
	{"vote", sqlCreateVoteTable},
	{"follow", sqlCreateFollowTable},
	{"activities", sqlCreateActivitiesTable},
}

// RunMigrations executes all database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		for _, t := range tables {
			if err := db.createTableIfNotExists(tx, t.sql, t.name); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(sqlCreateIndices); err != nil {
			log.Printf("Warning: Failed to create indices: %v", err)
		}
		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	log.Printf("Table %s created or already exists", tableName)
	return nil
}
