package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/inboxd/domain"
)

var personColumns = columns("id", "ap_id", "name", "display_name", "bio", "avatar", "inbox_url",
	"shared_inbox_url", "public_key", "local", "banned", "deleted", "published", "updated", "last_refreshed_at")

const (
	sqlInsertPerson = `INSERT INTO person(ap_id, name, display_name, bio, avatar, inbox_url, shared_inbox_url, public_key, local, published, updated, last_refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(ap_id) DO NOTHING`
	sqlUpdatePerson = `UPDATE person SET name = ?, display_name = ?, bio = ?, avatar = ?, inbox_url = ?, shared_inbox_url = ?,
		public_key = ?, updated = ?, last_refreshed_at = ? WHERE id = ?`
	sqlUpdatePersonDeleted = `UPDATE person SET deleted = ? WHERE id = ? AND deleted <> ?`
	sqlUpdatePersonBanned  = `UPDATE person SET banned = ? WHERE id = ?`
	sqlDeletePerson        = `DELETE FROM person WHERE id = ?`
)

var (
	sqlSelectPersonById   = `SELECT ` + personColumns + ` FROM person WHERE id = ?`
	sqlSelectPersonByApId = `SELECT ` + personColumns + ` FROM person WHERE ap_id = ?`
)

func scanPerson(row scanner) (*domain.Person, error) {
	var p domain.Person
	var updated sql.NullTime
	err := row.Scan(&p.Id, &p.ApId, &p.Name, &p.DisplayName, &p.Bio, &p.Avatar, &p.InboxURL,
		&p.SharedInboxURL, &p.PublicKey, &p.Local, &p.Banned, &p.Deleted, &p.Published, &updated, &p.LastRefreshedAt)
	if err != nil {
		return nil, notFound(err)
	}
	p.Updated = timePtr(updated)
	return &p, nil
}

// CreatePerson inserts a person unless one with the same ap_id exists.
// It always returns the stored row; created reports whether this call
// inserted it.
func (db *DB) CreatePerson(ctx context.Context, form *domain.PersonForm) (*domain.Person, bool, error) {
	var person *domain.Person
	var created bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlInsertPerson,
			form.ApId,
			form.Name,
			form.DisplayName,
			form.Bio,
			form.Avatar,
			form.InboxURL,
			form.SharedInboxURL,
			form.PublicKey,
			form.Local,
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
		person, err = scanPerson(tx.QueryRowContext(ctx, sqlSelectPersonByApId, form.ApId))
		return err
	})
	return person, created, err
}

func (db *DB) ReadPerson(ctx context.Context, id int64) (*domain.Person, error) {
	return scanPerson(db.db.QueryRowContext(ctx, sqlSelectPersonById, id))
}

func (db *DB) ReadPersonByApId(ctx context.Context, apId string) (*domain.Person, error) {
	return scanPerson(db.db.QueryRowContext(ctx, sqlSelectPersonByApId, apId))
}

// UpdatePerson overwrites the mutable profile fields and bumps last_refreshed_at.
func (db *DB) UpdatePerson(ctx context.Context, id int64, form *domain.PersonForm) (*domain.Person, error) {
	var person *domain.Person
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlUpdatePerson,
			form.Name,
			form.DisplayName,
			form.Bio,
			form.Avatar,
			form.InboxURL,
			form.SharedInboxURL,
			form.PublicKey,
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
		person, err = scanPerson(tx.QueryRowContext(ctx, sqlSelectPersonById, id))
		return err
	})
	return person, err
}

// UpdatePersonDeleted sets the soft-delete flag; changed is false when the
// flag already had the requested value.
func (db *DB) UpdatePersonDeleted(ctx context.Context, id int64, deleted bool) (*domain.Person, bool, error) {
	var person *domain.Person
	var changed bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlUpdatePersonDeleted, deleted, id, deleted)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		changed = n > 0
		person, err = scanPerson(tx.QueryRowContext(ctx, sqlSelectPersonById, id))
		return err
	})
	return person, changed, err
}

func (db *DB) UpdatePersonBanned(ctx context.Context, id int64, banned bool) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlUpdatePersonBanned, banned, id)
		return err
	})
}

// DeletePerson physically removes a person together with its content.
func (db *DB) DeletePerson(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlDeletePerson, id)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	return count, err
}
