package activitypub

import (
	"context"
	"time"

	"github.com/deemkeen/inboxd/domain"
)

// Store is the persistence the pipeline needs. *db.DB implements it.
type Store interface {
	CreatePerson(ctx context.Context, form *domain.PersonForm) (*domain.Person, bool, error)
	ReadPerson(ctx context.Context, id int64) (*domain.Person, error)
	ReadPersonByApId(ctx context.Context, apId string) (*domain.Person, error)
	UpdatePerson(ctx context.Context, id int64, form *domain.PersonForm) (*domain.Person, error)
	UpdatePersonDeleted(ctx context.Context, id int64, deleted bool) (*domain.Person, bool, error)

	CreateCommunity(ctx context.Context, form *domain.CommunityForm) (*domain.Community, bool, error)
	ReadCommunity(ctx context.Context, id int64) (*domain.Community, error)
	ReadCommunityByApId(ctx context.Context, apId string) (*domain.Community, error)
	UpdateCommunity(ctx context.Context, id int64, form *domain.CommunityForm) (*domain.Community, error)
	UpdateCommunityDeleted(ctx context.Context, id int64, deleted bool) (*domain.Community, bool, error)

	CreatePost(ctx context.Context, form *domain.PostForm) (*domain.Post, bool, error)
	ReadPost(ctx context.Context, id int64) (*domain.Post, error)
	ReadPostByApId(ctx context.Context, apId string) (*domain.Post, error)
	UpdatePost(ctx context.Context, id int64, form *domain.PostForm) (*domain.Post, error)
	UpdatePostDeleted(ctx context.Context, id int64, deleted bool) (*domain.Post, bool, error)

	CreateComment(ctx context.Context, form *domain.CommentForm) (*domain.Comment, bool, error)
	ReadComment(ctx context.Context, id int64) (*domain.Comment, error)
	ReadCommentByApId(ctx context.Context, apId string) (*domain.Comment, error)
	UpdateComment(ctx context.Context, id int64, form *domain.CommentForm) (*domain.Comment, error)
	UpdateCommentDeleted(ctx context.Context, id int64, deleted bool) (*domain.Comment, bool, error)

	UpsertVote(ctx context.Context, form *domain.VoteForm) (*domain.Vote, bool, error)
	DeleteVote(ctx context.Context, personId int64, kind domain.EntityKind, targetId int64) (int64, error)

	ReadFollow(ctx context.Context, followerId int64, kind domain.EntityKind, targetId int64) (*domain.Follow, error)
	ReadFollowByApId(ctx context.Context, apId string) (*domain.Follow, error)
	UpsertFollow(ctx context.Context, form *domain.FollowForm) (*domain.Follow, bool, error)
	TransitionFollow(ctx context.Context, id int64, from, to domain.FollowStatus) (*domain.Follow, bool, error)
	DeleteFollow(ctx context.Context, id int64) (int64, error)

	CreateActivity(ctx context.Context, activity *domain.Activity) (bool, error)
	ReadActivityByURI(ctx context.Context, uri string) (*domain.Activity, error)
	MarkActivityProcessed(ctx context.Context, uri string) error
	DeleteActivitiesBefore(ctx context.Context, t time.Time) (int64, error)
}
