package db

import (
	"context"
	"database/sql"

	"github.com/deemkeen/inboxd/domain"
)

var commentColumns = columns("id", "ap_id", "creator_id", "post_id", "parent_id", "content", "deleted",
	"score", "upvotes", "downvotes", "published", "updated")

const (
	sqlInsertComment = `INSERT INTO comment(ap_id, creator_id, post_id, parent_id, content, published, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(ap_id) DO NOTHING`
	sqlUpdateComment        = `UPDATE comment SET content = ?, updated = ? WHERE id = ?`
	sqlUpdateCommentDeleted = `UPDATE comment SET deleted = ? WHERE id = ? AND deleted <> ?`
	sqlDeleteComment        = `DELETE FROM comment WHERE id = ?`
)

var (
	sqlSelectCommentById   = `SELECT ` + commentColumns + ` FROM comment WHERE id = ?`
	sqlSelectCommentByApId = `SELECT ` + commentColumns + ` FROM comment WHERE ap_id = ?`
)

func scanComment(row scanner) (*domain.Comment, error) {
	var c domain.Comment
	var parent sql.NullInt64
	var updated sql.NullTime
	err := row.Scan(&c.Id, &c.ApId, &c.CreatorId, &c.PostId, &parent, &c.Content, &c.Deleted,
		&c.Score, &c.Upvotes, &c.Downvotes, &c.Published, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	c.ParentId = intPtr(parent)
	c.Updated = timePtr(updated)
	return &c, nil
}

// CreateComment inserts a comment unless one with the same ap_id exists.
func (db *DB) CreateComment(ctx context.Context, form *domain.CommentForm) (*domain.Comment, bool, error) {
	var comment *domain.Comment
	var created bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlInsertComment,
			form.ApId,
			form.CreatorId,
			form.PostId,
			nullInt(form.ParentId),
			form.Content,
			form.Published,
			nullTime(form.Updated),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		created = n > 0
		comment, err = scanComment(tx.QueryRowContext(ctx, sqlSelectCommentByApId, form.ApId))
		return err
	})
	return comment, created, err
}

func (db *DB) ReadComment(ctx context.Context, id int64) (*domain.Comment, error) {
	return scanComment(db.db.QueryRowContext(ctx, sqlSelectCommentById, id))
}

func (db *DB) ReadCommentByApId(ctx context.Context, apId string) (*domain.Comment, error) {
	return scanComment(db.db.QueryRowContext(ctx, sqlSelectCommentByApId, apId))
}

func (db *DB) UpdateComment(ctx context.Context, id int64, form *domain.CommentForm) (*domain.Comment, error) {
	var comment *domain.Comment
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlUpdateComment, form.Content, nullTime(form.Updated), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		comment, err = scanComment(tx.QueryRowContext(ctx, sqlSelectCommentById, id))
		return err
	})
	return comment, err
}

func (db *DB) UpdateCommentDeleted(ctx context.Context, id int64, deleted bool) (*domain.Comment, bool, error) {
	var comment *domain.Comment
	var changed bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlUpdateCommentDeleted, deleted, id, deleted)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		changed = n > 0
		comment, err = scanComment(tx.QueryRowContext(ctx, sqlSelectCommentById, id))
		return err
	})
	return comment, changed, err
}

func (db *DB) DeleteComment(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlDeleteComment, id)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	return count, err
}
