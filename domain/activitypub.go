package domain

import (
	"time"

	"github.com/google/uuid"
)

type FollowStatus string

const (
	FollowPending  FollowStatus = "pending"
	FollowAccepted FollowStatus = "accepted"
	FollowRejected FollowStatus = "rejected"
)

// Follow represents a follow relationship from a person to a community or another person
type Follow struct {
	Id         int64
	FollowerId int64      // always a person
	TargetKind EntityKind // KindCommunity or KindPerson
	TargetId   int64
	ApId       string // ActivityPub Follow activity URI
	Status     FollowStatus
	Published  time.Time
	Updated    *time.Time
}

type FollowForm struct {
	FollowerId int64
	TargetKind EntityKind
	TargetId   int64
	ApId       string
	Status     FollowStatus
}

// Vote is a person's like (+1) or dislike (-1) on a post or comment.
// There is at most one vote per person and target.
type Vote struct {
	Id         int64
	PersonId   int64
	TargetKind EntityKind // KindPost or KindComment
	TargetId   int64
	Score      int
	ApId       string // ActivityPub Like/Dislike activity URI
	Published  time.Time
}

type VoteForm struct {
	PersonId   int64
	TargetKind EntityKind
	TargetId   int64
	Score      int
	ApId       string
}

// Activity represents a received ActivityPub activity (for logging/deduplication)
type Activity struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string // Follow, Create, Like, Announce, Undo, etc.
	ActorURI     string
	ObjectURI    string
	RelayURI     string // community that announced the activity, if any
	RawJSON      string
	Processed    bool
	CreatedAt    time.Time
}

type Operation string

const (
	OpCreate         Operation = "Create"
	OpUpdate         Operation = "Update"
	OpDelete         Operation = "Delete"
	OpRestore        Operation = "Restore"
	OpVote           Operation = "Vote"
	OpUnvote         Operation = "Unvote"
	OpFollow         Operation = "Follow"
	OpUnfollow       Operation = "Unfollow"
	OpFollowAccepted Operation = "FollowAccepted"
	OpFollowRejected Operation = "FollowRejected"
)

// Event is a committed state change handed to live subscribers
type Event struct {
	Id          uuid.UUID
	EntityKind  EntityKind
	LocalId     int64
	Operation   Operation
	ActivityURI string
	Payload     any
	CreatedAt   time.Time
}

func NewEvent(kind EntityKind, localId int64, op Operation, payload any) *Event {
	return &Event{
		Id:         uuid.New(),
		EntityKind: kind,
		LocalId:    localId,
		Operation:  op,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
}
