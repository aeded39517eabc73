package db

import (
	"context"

	"github.com/deemkeen/inboxd/domain"
)

const sqlSelectSiteAggregates = `SELECT
	(SELECT COUNT(*) FROM person WHERE deleted = 0),
	(SELECT COUNT(*) FROM community WHERE deleted = 0),
	(SELECT COUNT(*) FROM post WHERE deleted = 0),
	(SELECT COUNT(*) FROM comment WHERE deleted = 0)`

// ReadSiteAggregates counts the live mirrored entities of every kind.
func (db *DB) ReadSiteAggregates(ctx context.Context) (*domain.SiteAggregates, error) {
	var agg domain.SiteAggregates
	err := db.db.QueryRowContext(ctx, sqlSelectSiteAggregates).Scan(&agg.Persons, &agg.Communities, &agg.Posts, &agg.Comments)
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
