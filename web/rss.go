package web

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/deemkeen/inboxd/domain"
	"github.com/deemkeen/inboxd/util"
	"github.com/gorilla/feeds"
)

const feedSize = 50

// FeedStore is the read side the community feeds are built from.
type FeedStore interface {
	ReadLocalCommunityByName(ctx context.Context, name string) (*domain.Community, error)
	ReadPostsByCommunityId(ctx context.Context, communityId int64, limit int) ([]domain.Post, error)
}

// GetCommunityRSS renders the newest posts mirrored into a local community.
func GetCommunityRSS(ctx context.Context, store FeedStore, conf *util.AppConfig, name string) (string, error) {
	community, err := store.ReadLocalCommunityByName(ctx, name)
	if err != nil {
		return "", err
	}
	if community.Deleted {
		return "", fmt.Errorf("community %s: %w", name, domain.ErrNotFound)
	}

	posts, err := store.ReadPostsByCommunityId(ctx, community.Id, feedSize)
	if err != nil {
		log.Printf("Could not get posts of %s: %v", name, err)
		return "", err
	}

	title := community.Title
	if title == "" {
		title = community.Name
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: community.ApId},
		Description: community.Description,
		Created:     community.Published,
	}
	if len(posts) > 0 {
		feed.Updated = posts[0].Published
	} else {
		feed.Updated = time.Now()
	}

	for _, post := range posts {
		link := post.URL
		if link == "" {
			link = post.ApId
		}
		item := &feeds.Item{
			Id:      post.ApId,
			Title:   post.Name,
			Link:    &feeds.Link{Href: link},
			Content: post.Body,
			Created: post.Published,
		}
		if post.Updated != nil {
			item.Updated = *post.Updated
		}
		feed.Items = append(feed.Items, item)
	}

	return feed.ToRss()
}
