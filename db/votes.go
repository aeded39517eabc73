package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deemkeen/inboxd/domain"
)

const (
	sqlSelectVote = `SELECT id, person_id, target_kind, target_id, score, ap_id, published FROM vote
		WHERE person_id = ? AND target_kind = ? AND target_id = ?`
	sqlUpsertVote = `INSERT INTO vote(person_id, target_kind, target_id, score, ap_id, published) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(person_id, target_kind, target_id) DO UPDATE SET score = excluded.score, ap_id = excluded.ap_id`
	sqlDeleteVote = `DELETE FROM vote WHERE person_id = ? AND target_kind = ? AND target_id = ?`

	// %[1]s is the target table, which is also the target_kind value
	sqlRecomputeScore = `UPDATE %[1]s SET
		upvotes = (SELECT COUNT(*) FROM vote WHERE target_kind = '%[1]s' AND target_id = ? AND score > 0),
		downvotes = (SELECT COUNT(*) FROM vote WHERE target_kind = '%[1]s' AND target_id = ? AND score < 0),
		score = (SELECT COALESCE(SUM(score), 0) FROM vote WHERE target_kind = '%[1]s' AND target_id = ?)
		WHERE id = ?`
)

func scanVote(row scanner) (*domain.Vote, error) {
	var v domain.Vote
	var kind string
	err := row.Scan(&v.Id, &v.PersonId, &kind, &v.TargetId, &v.Score, &v.ApId, &v.Published)
	if err != nil {
		return nil, notFound(err)
	}
	v.TargetKind = domain.EntityKind(kind)
	return &v, nil
}

func voteTable(kind domain.EntityKind) (string, error) {
	switch kind {
	case domain.KindPost, domain.KindComment:
		return string(kind), nil
	default:
		return "", fmt.Errorf("cannot vote on %s", kind)
	}
}

func (db *DB) ReadVote(ctx context.Context, personId int64, kind domain.EntityKind, targetId int64) (*domain.Vote, error) {
	return scanVote(db.db.QueryRowContext(ctx, sqlSelectVote, personId, string(kind), targetId))
}

// UpsertVote records a person's vote on a post or comment, replacing any
// previous vote by the same person, and recomputes the target's score in the
// same transaction. changed is false when an identical vote already existed.
func (db *DB) UpsertVote(ctx context.Context, form *domain.VoteForm) (*domain.Vote, bool, error) {
	table, err := voteTable(form.TargetKind)
	if err != nil {
		return nil, false, err
	}

	var vote *domain.Vote
	var changed bool
	err = db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		existing, err := scanVote(tx.QueryRowContext(ctx, sqlSelectVote, form.PersonId, table, form.TargetId))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil && existing.Score == form.Score {
			vote, changed = existing, false
			return nil
		}

		if _, err := tx.ExecContext(ctx, sqlUpsertVote, form.PersonId, table, form.TargetId, form.Score, form.ApId, time.Now()); err != nil {
			return err
		}
		if err := recomputeScore(ctx, tx, table, form.TargetId); err != nil {
			return err
		}
		changed = true
		vote, err = scanVote(tx.QueryRowContext(ctx, sqlSelectVote, form.PersonId, table, form.TargetId))
		return err
	})
	return vote, changed, err
}

// DeleteVote removes a vote and recomputes the target's score.
func (db *DB) DeleteVote(ctx context.Context, personId int64, kind domain.EntityKind, targetId int64) (int64, error) {
	table, err := voteTable(kind)
	if err != nil {
		return 0, err
	}

	var count int64
	err = db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlDeleteVote, personId, table, targetId)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		if err != nil || count == 0 {
			return err
		}
		return recomputeScore(ctx, tx, table, targetId)
	})
	return count, err
}

func recomputeScore(ctx context.Context, tx *sql.Tx, table string, targetId int64) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(sqlRecomputeScore, table), targetId, targetId, targetId, targetId)
	return err
}
