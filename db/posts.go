package db

import (
	"context"
	"database/sql"

	"github.com/deemkeen/inboxd/domain"
)

var postColumns = columns("id", "ap_id", "creator_id", "community_id", "name", "body", "url", "nsfw", "deleted",
	"score", "upvotes", "downvotes", "published", "updated")

const (
	sqlInsertPost = `INSERT INTO post(ap_id, creator_id, community_id, name, body, url, nsfw, published, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(ap_id) DO NOTHING`
	sqlUpdatePost        = `UPDATE post SET name = ?, body = ?, url = ?, nsfw = ?, updated = ? WHERE id = ?`
	sqlUpdatePostDeleted = `UPDATE post SET deleted = ? WHERE id = ? AND deleted <> ?`
	sqlDeletePost        = `DELETE FROM post WHERE id = ?`
)

var (
	sqlSelectPostById   = `SELECT ` + postColumns + ` FROM post WHERE id = ?`
	sqlSelectPostByApId = `SELECT ` + postColumns + ` FROM post WHERE ap_id = ?`
	sqlSelectPostsByCommunityId = `SELECT ` + postColumns + ` FROM post WHERE community_id = ? AND deleted = 0
		ORDER BY published DESC LIMIT ?`
)

func scanPost(row scanner) (*domain.Post, error) {
	var p domain.Post
	var updated sql.NullTime
	err := row.Scan(&p.Id, &p.ApId, &p.CreatorId, &p.CommunityId, &p.Name, &p.Body, &p.URL, &p.Nsfw, &p.Deleted,
		&p.Score, &p.Upvotes, &p.Downvotes, &p.Published, &updated)
	if err != nil {
		return nil, notFound(err)
	}
	p.Updated = timePtr(updated)
	return &p, nil
}

// CreatePost inserts a post unless one with the same ap_id exists.
func (db *DB) CreatePost(ctx context.Context, form *domain.PostForm) (*domain.Post, bool, error) {
	var post *domain.Post
	var created bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlInsertPost,
			form.ApId,
			form.CreatorId,
			form.CommunityId,
			form.Name,
			form.Body,
			form.URL,
			form.Nsfw,
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
		post, err = scanPost(tx.QueryRowContext(ctx, sqlSelectPostByApId, form.ApId))
		return err
	})
	return post, created, err
}

func (db *DB) ReadPost(ctx context.Context, id int64) (*domain.Post, error) {
	return scanPost(db.db.QueryRowContext(ctx, sqlSelectPostById, id))
}

func (db *DB) ReadPostByApId(ctx context.Context, apId string) (*domain.Post, error) {
	return scanPost(db.db.QueryRowContext(ctx, sqlSelectPostByApId, apId))
}

// ReadPostsByCommunityId returns the newest live posts of a community.
func (db *DB) ReadPostsByCommunityId(ctx context.Context, communityId int64, limit int) ([]domain.Post, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectPostsByCommunityId, communityId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return posts, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

// UpdatePost overwrites the editable fields of a post.
func (db *DB) UpdatePost(ctx context.Context, id int64, form *domain.PostForm) (*domain.Post, error) {
	var post *domain.Post
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlUpdatePost, form.Name, form.Body, form.URL, form.Nsfw, nullTime(form.Updated), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		post, err = scanPost(tx.QueryRowContext(ctx, sqlSelectPostById, id))
		return err
	})
	return post, err
}

func (db *DB) UpdatePostDeleted(ctx context.Context, id int64, deleted bool) (*domain.Post, bool, error) {
	var post *domain.Post
	var changed bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlUpdatePostDeleted, deleted, id, deleted)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		changed = n > 0
		post, err = scanPost(tx.QueryRowContext(ctx, sqlSelectPostById, id))
		return err
	})
	return post, changed, err
}

func (db *DB) DeletePost(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlDeletePost, id)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	return count, err
}
