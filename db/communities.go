package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/inboxd/domain"
)

var communityColumns = columns("id", "ap_id", "name", "title", "description", "icon", "inbox_url", "followers_url",
	"public_key", "local", "nsfw", "manually_approves_followers", "deleted", "published", "updated", "last_refreshed_at")

const (
	sqlInsertCommunity = `INSERT INTO community(ap_id, name, title, description, icon, inbox_url, followers_url, public_key, local, nsfw,
		manually_approves_followers, published, updated, last_refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(ap_id) DO NOTHING`
	sqlUpdateCommunity = `UPDATE community SET name = ?, title = ?, description = ?, icon = ?, inbox_url = ?, followers_url = ?,
		public_key = ?, nsfw = ?, manually_approves_followers = ?, updated = ?, last_refreshed_at = ? WHERE id = ?`
	sqlUpdateCommunityDeleted = `UPDATE community SET deleted = ? WHERE id = ? AND deleted <> ?`
	sqlDeleteCommunity        = `DELETE FROM community WHERE id = ?`
)

var (
	sqlSelectCommunityById        = `SELECT ` + communityColumns + ` FROM community WHERE id = ?`
	sqlSelectCommunityByApId      = `SELECT ` + communityColumns + ` FROM community WHERE ap_id = ?`
	sqlSelectLocalCommunityByName = `SELECT ` + communityColumns + ` FROM community WHERE name = ? AND local = 1`
)

func scanCommunity(row scanner) (*domain.Community, error) {
	var c domain.Community
	var updated sql.NullTime
	err := row.Scan(&c.Id, &c.ApId, &c.Name, &c.Title, &c.Description, &c.Icon, &c.InboxURL, &c.FollowersURL,
		&c.PublicKey, &c.Local, &c.Nsfw, &c.ManuallyApprovesFollowers, &c.Deleted, &c.Published, &updated, &c.LastRefreshedAt)
	if err != nil {
		return nil, notFound(err)
	}
	c.Updated = timePtr(updated)
	return &c, nil
}

// CreateCommunity inserts a community unless one with the same ap_id exists.
func (db *DB) CreateCommunity(ctx context.Context, form *domain.CommunityForm) (*domain.Community, bool, error) {
	var community *domain.Community
	var created bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlInsertCommunity,
			form.ApId,
			form.Name,
			form.Title,
			form.Description,
			form.Icon,
			form.InboxURL,
			form.FollowersURL,
			form.PublicKey,
			form.Local,
			form.Nsfw,
			form.ManuallyApprovesFollowers,
			form.Published,
			nullTime(form.Updated),
			time.Now(),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		community, err = scanCommunity(tx.QueryRowContext(ctx, sqlSelectCommunityByApId, form.ApId))
		return err
	})
	return community, created, err
}

func (db *DB) ReadCommunity(ctx context.Context, id int64) (*domain.Community, error) {
	return scanCommunity(db.db.QueryRowContext(ctx, sqlSelectCommunityById, id))
}

func (db *DB) ReadCommunityByApId(ctx context.Context, apId string) (*domain.Community, error) {
	return scanCommunity(db.db.QueryRowContext(ctx, sqlSelectCommunityByApId, apId))
}

func (db *DB) ReadLocalCommunityByName(ctx context.Context, name string) (*domain.Community, error) {
	return scanCommunity(db.db.QueryRowContext(ctx, sqlSelectLocalCommunityByName, name))
}

func (db *DB) UpdateCommunity(ctx context.Context, id int64, form *domain.CommunityForm) (*domain.Community, error) {
	var community *domain.Community
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlUpdateCommunity,
			form.Name,
			form.Title,
			form.Description,
			form.Icon,
			form.InboxURL,
			form.FollowersURL,
			form.PublicKey,
			form.Nsfw,
			form.ManuallyApprovesFollowers,
			nullTime(form.Updated),
			time.Now(),
			id,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		community, err = scanCommunity(tx.QueryRowContext(ctx, sqlSelectCommunityById, id))
		return err
	})
	return community, err
}

func (db *DB) UpdateCommunityDeleted(ctx context.Context, id int64, deleted bool) (*domain.Community, bool, error) {
	var community *domain.Community
	var changed bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlUpdateCommunityDeleted, deleted, id, deleted)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		changed = n > 0
		community, err = scanCommunity(tx.QueryRowContext(ctx, sqlSelectCommunityById, id))
		return err
	})
	return community, changed, err
}

func (db *DB) DeleteCommunity(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlDeleteCommunity, id)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	return count, err
}
