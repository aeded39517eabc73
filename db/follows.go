package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/deemkeen/inboxd/domain"
)

const (
	followColumns = `id, follower_id, target_kind, target_id, ap_id, status, published, updated`

	sqlSelectFollow       = `SELECT ` + followColumns + ` FROM follow WHERE follower_id = ? AND target_kind = ? AND target_id = ?`
	sqlSelectFollowById   = `SELECT ` + followColumns + ` FROM follow WHERE id = ?`
	sqlSelectFollowByApId = `SELECT ` + followColumns + ` FROM follow WHERE ap_id = ?`
	sqlInsertFollow       = `INSERT INTO follow(follower_id, target_kind, target_id, ap_id, status, published) VALUES (?, ?, ?, ?, ?, ?)`
	sqlUpdateFollow       = `UPDATE follow SET ap_id = ?, status = ?, updated = ? WHERE id = ?`
	sqlTransitionFollow   = `UPDATE follow SET status = ?, updated = ? WHERE id = ? AND status = ?`
	sqlDeleteFollow       = `DELETE FROM follow WHERE id = ?`
	sqlCountFollowers     = `SELECT COUNT(*) FROM follow WHERE target_kind = ? AND target_id = ? AND status = 'accepted'`
)

func scanFollow(row scanner) (*domain.Follow, error) {
	var f domain.Follow
	var kind, status string
	var updated sql.NullTime
	err := row.Scan(&f.Id, &f.FollowerId, &kind, &f.TargetId, &f.ApId, &status, &f.Published, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	f.TargetKind = domain.EntityKind(kind)
	f.Status = domain.FollowStatus(status)
	f.Updated = timePtr(updated)
	return &f, nil
}

func (db *DB) ReadFollow(ctx context.Context, followerId int64, kind domain.EntityKind, targetId int64) (*domain.Follow, error) {
	return scanFollow(db.db.QueryRowContext(ctx, sqlSelectFollow, followerId, string(kind), targetId))
}

func (db *DB) ReadFollowByApId(ctx context.Context, apId string) (*domain.Follow, error) {
	return scanFollow(db.db.QueryRowContext(ctx, sqlSelectFollowByApId, apId))
}

// UpsertFollow creates the follow relationship or, when it already exists,
// moves it to form.Status. changed is false when nothing was modified.
func (db *DB) UpsertFollow(ctx context.Context, form *domain.FollowForm) (*domain.Follow, bool, error) {
	var follow *domain.Follow
	var changed bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		existing, err := scanFollow(tx.QueryRowContext(ctx, sqlSelectFollow, form.FollowerId, string(form.TargetKind), form.TargetId))
		switch {
		case errors.Is(err, domain.ErrNotFound):
			res, err := tx.ExecContext(ctx, sqlInsertFollow, form.FollowerId, string(form.TargetKind), form.TargetId,
				form.ApId, string(form.Status), time.Now())
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			changed = true
			follow, err = scanFollow(tx.QueryRowContext(ctx, sqlSelectFollowById, id))
			return err
		case err != nil:
			return err
		}

		if existing.Status == form.Status {
			follow = existing
			return nil
		}
		if _, err := tx.ExecContext(ctx, sqlUpdateFollow, form.ApId, string(form.Status), time.Now(), existing.Id); err != nil {
			return err
		}
		changed = true
		follow, err = scanFollow(tx.QueryRowContext(ctx, sqlSelectFollowById, existing.Id))
		return err
	})
	return follow, changed, err
}

// TransitionFollow moves a follow from one status to another atomically.
// changed is false when the follow was not in the from status.
func (db *DB) TransitionFollow(ctx context.Context, id int64, from, to domain.FollowStatus) (*domain.Follow, bool, error) {
	var follow *domain.Follow
	var changed bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlTransitionFollow, string(to), time.Now(), id, string(from))
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		changed = n > 0
		follow, err = scanFollow(tx.QueryRowContext(ctx, sqlSelectFollowById, id))
		return err
	})
	return follow, changed, err
}

func (db *DB) DeleteFollow(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlDeleteFollow, id)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	return count, err
}

func (db *DB) CountFollowers(ctx context.Context, kind domain.EntityKind, targetId int64) (int64, error) {
	var n int64
	err := db.db.QueryRowContext(ctx, sqlCountFollowers, string(kind), targetId).Scan(&n)
	return n, err
}
