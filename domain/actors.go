package domain

import (
	"fmt"
	"time"
)

// Person is a local or federated user account
type Person struct {
	Id              int64
	ApId            string
	Name            string
	DisplayName     string
	Bio             string
	Avatar          string
	InboxURL        string
	SharedInboxURL  string
	PublicKey       string
	Local           bool
	Banned          bool
	Deleted         bool
	Published       time.Time
	Updated         *time.Time
	LastRefreshedAt time.Time
}

type PersonForm struct {
	ApId           string
	Name           string
	DisplayName    string
	Bio            string
	Avatar         string
	InboxURL       string
	SharedInboxURL string
	PublicKey      string
	Local          bool
	Published      time.Time
	Updated        *time.Time
}

func (p *Person) EntityKind() EntityKind { return KindPerson }
func (p *Person) LocalId() int64         { return p.Id }
func (p *Person) RemoteId() string       { return p.ApId }
func (p *Person) IsDeleted() bool        { return p.Deleted }
func (p *Person) PublicKeyPem() string   { return p.PublicKey }

func (p *Person) ToString() string {
	return fmt.Sprintf("\n\tId: %d \n\tName: %s \n\tApId: %s \n\tPublished: %s)", p.Id, p.Name, p.ApId, p.Published)
}

// Community is a group that posts are submitted to
type Community struct {
	Id                        int64
	ApId                      string
	Name                      string
	Title                     string
	Description               string
	Icon                      string
	InboxURL                  string
	FollowersURL              string
	PublicKey                 string
	Local                     bool
	Nsfw                      bool
	ManuallyApprovesFollowers bool
	Deleted                   bool
	Published                 time.Time
	Updated                   *time.Time
	LastRefreshedAt           time.Time
}

type CommunityForm struct {
	ApId                      string
	Name                      string
	Title                     string
	Description               string
	Icon                      string
	InboxURL                  string
	FollowersURL              string
	PublicKey                 string
	Local                     bool
	Nsfw                      bool
	ManuallyApprovesFollowers bool
	Published                 time.Time
	Updated                   *time.Time
}

func (c *Community) EntityKind() EntityKind { return KindCommunity }
func (c *Community) LocalId() int64         { return c.Id }
func (c *Community) RemoteId() string       { return c.ApId }
func (c *Community) IsDeleted() bool        { return c.Deleted }
func (c *Community) PublicKeyPem() string   { return c.PublicKey }
