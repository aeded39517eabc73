package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/inboxd/domain"
	"github.com/google/uuid"
)

// Activity queries
const (
	sqlInsertActivity = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, relay_uri, raw_json, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(activity_uri) DO NOTHING`
	sqlMarkActivityProcessed = `UPDATE activities SET processed = 1 WHERE activity_uri = ?`
	sqlSelectActivityByURI   = `SELECT id, activity_uri, activity_type, actor_uri, object_uri, relay_uri, raw_json, processed, created_at
		FROM activities WHERE activity_uri = ?`
	sqlDeleteActivitiesBefore = `DELETE FROM activities WHERE created_at < ?`
)

// CreateActivity records a received activity in the ledger. created is false
// when the activity uri was already known.
func (db *DB) CreateActivity(ctx context.Context, activity *domain.Activity) (bool, error) {
	if activity.Id == uuid.Nil {
		activity.Id = uuid.New()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}

	var created bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlInsertActivity,
			activity.Id.String(),
			activity.ActivityURI,
			activity.ActivityType,
			activity.ActorURI,
			activity.ObjectURI,
			activity.RelayURI,
			activity.RawJSON,
			activity.Processed,
			activity.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		created = n > 0
		return err
	})
	return created, err
}

func (db *DB) ReadActivityByURI(ctx context.Context, uri string) (*domain.Activity, error) {
	row := db.db.QueryRowContext(ctx, sqlSelectActivityByURI, uri)
	var activity domain.Activity
	var idStr string
	err := row.Scan(
		&idStr,
		&activity.ActivityURI,
		&activity.ActivityType,
		&activity.ActorURI,
		&activity.ObjectURI,
		&activity.RelayURI,
		&activity.RawJSON,
		&activity.Processed,
		&activity.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	activity.Id, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (db *DB) MarkActivityProcessed(ctx context.Context, uri string) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlMarkActivityProcessed, uri)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// DeleteActivitiesBefore prunes ledger rows older than t.
func (db *DB) DeleteActivitiesBefore(ctx context.Context, t time.Time) (int64, error) {
	var count int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlDeleteActivitiesBefore, t)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	return count, err
}
