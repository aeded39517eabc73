package domain

import "time"

// Post is a link or text submission inside a community
type Post struct {
	Id          int64
	ApId        string
	CreatorId   int64
	CommunityId int64
	Name        string
	Body        string
	URL         string
	Nsfw        bool
	Deleted     bool
	Score       int64
	Upvotes     int64
	Downvotes   int64
	Published   time.Time
	Updated     *time.Time
}

type PostForm struct {
	ApId        string
	CreatorId   int64
	CommunityId int64
	Name        string
	Body        string
	URL         string
	Nsfw        bool
	Published   time.Time
	Updated     *time.Time
}

func (p *Post) EntityKind() EntityKind { return KindPost }
func (p *Post) LocalId() int64         { return p.Id }
func (p *Post) RemoteId() string       { return p.ApId }
func (p *Post) IsDeleted() bool        { return p.Deleted }

// Comment is a reply to a post or to another comment
type Comment struct {
	Id        int64
	ApId      string
	CreatorId int64
	PostId    int64
	ParentId  *int64 // nil for top-level comments
	Content   string
	Deleted   bool
	Score     int64
	Upvotes   int64
	Downvotes int64
	Published time.Time
	Updated   *time.Time
}

type CommentForm struct {
	ApId      string
	CreatorId int64
	PostId    int64
	ParentId  *int64
	Content   string
	Published time.Time
	Updated   *time.Time
}

func (c *Comment) EntityKind() EntityKind { return KindComment }
func (c *Comment) LocalId() int64         { return c.Id }
func (c *Comment) RemoteId() string       { return c.ApId }
func (c *Comment) IsDeleted() bool        { return c.Deleted }

// SiteAggregates holds instance wide counters of live content
type SiteAggregates struct {
	Persons     int64
	Communities int64
	Posts       int64
	Comments    int64
}
