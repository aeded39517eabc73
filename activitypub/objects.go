package activitypub

import (
	"encoding/json"
	"time"

	"github.com/deemkeen/inboxd/domain"
	"github.com/deemkeen/inboxd/util"
)

// RemoteObject is the JSON document a peer serves for a person, community,
// post or comment.
type RemoteObject struct {
	Context           any             `json:"@context"`
	ID                string          `json:"id"`
	RawType           json.RawMessage `json:"type"`
	PreferredUsername string          `json:"preferredUsername"`
	Name              string          `json:"name"`
	Summary           string          `json:"summary"`
	Content           string          `json:"content"`
	Inbox             string          `json:"inbox"`
	Outbox            string          `json:"outbox"`
	Followers         string          `json:"followers"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	Icon                      mediaRef   `json:"icon"`
	URL                       mediaRef   `json:"url"`
	AttributedTo              ObjectRef  `json:"attributedTo"`
	Audience                  ObjectRef  `json:"audience"`
	InReplyTo                 ObjectRef  `json:"inReplyTo"`
	To                        stringList `json:"to"`
	Cc                        stringList `json:"cc"`
	Sensitive                 bool       `json:"sensitive"`
	ManuallyApprovesFollowers bool       `json:"manuallyApprovesFollowers"`
	Published                 *time.Time `json:"published"`
	Updated                   *time.Time `json:"updated"`
	PublicKey                 struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`

	Type string            `json:"-"`
	Kind domain.EntityKind `json:"-"`
}

// mediaRef accepts a plain url, a Link/Image object or a list of either.
type mediaRef struct {
	Href string
}

func (m *mediaRef) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		m.Href = s
		return nil
	}
	var obj struct {
		URL  string `json:"url"`
		Href string `json:"href"`
	}
	if json.Unmarshal(b, &obj) == nil {
		m.Href = obj.URL
		if m.Href == "" {
			m.Href = obj.Href
		}
		return nil
	}
	var list []mediaRef
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	for _, l := range list {
		if l.Href != "" {
			m.Href = l.Href
			break
		}
	}
	return nil
}

// ParseObject decodes a remote object document and classifies it.
func ParseObject(data []byte) (*RemoteObject, error) {
	var obj RemoteObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fail(ErrInvalidRemoteObject, "malformed json: %v", err)
	}
	obj.Type = firstType(obj.RawType)
	if !isAbsoluteURL(obj.ID) {
		return nil, fail(ErrInvalidRemoteObject, "id %q is not an absolute url", obj.ID)
	}

	switch obj.Type {
	case "Person", "Service", "Application":
		obj.Kind = domain.KindPerson
	case "Group":
		obj.Kind = domain.KindCommunity
	case "Page", "Article", "Video":
		obj.Kind = domain.KindPost
	case "Note":
		if obj.InReplyTo.ID != "" {
			obj.Kind = domain.KindComment
		} else {
			obj.Kind = domain.KindPost
		}
	case "Tombstone":
		return nil, fail(ErrInvalidRemoteObject, "%s was deleted", obj.ID)
	default:
		return nil, fail(ErrInvalidRemoteObject, "unknown object type %q", obj.Type)
	}
	return &obj, nil
}

func (o *RemoteObject) published() time.Time {
	if o.Published != nil {
		return *o.Published
	}
	return time.Now()
}

// CreatorRef is the actor the object is attributed to.
func (o *RemoteObject) CreatorRef() string {
	return o.AttributedTo.ID
}

// CommunityRef is the community a post was submitted to: the audience, or
// else the first non public recipient.
func (o *RemoteObject) CommunityRef() string {
	if o.Audience.ID != "" {
		return o.Audience.ID
	}
	for _, addr := range append(append([]string{}, o.To...), o.Cc...) {
		if !isPublic(addr) && addr != o.AttributedTo.ID {
			return addr
		}
	}
	return ""
}

func (o *RemoteObject) PersonForm() (*domain.PersonForm, error) {
	if o.PreferredUsername == "" || o.Inbox == "" || o.PublicKey.PublicKeyPem == "" {
		return nil, fail(ErrInvalidRemoteObject, "actor %s missing required fields", o.ID)
	}
	return &domain.PersonForm{
		ApId:           o.ID,
		Name:           o.PreferredUsername,
		DisplayName:    o.Name,
		Bio:            o.Summary,
		Avatar:         o.Icon.Href,
		InboxURL:       o.Inbox,
		SharedInboxURL: o.Endpoints.SharedInbox,
		PublicKey:      o.PublicKey.PublicKeyPem,
		Published:      o.published(),
		Updated:        o.Updated,
	}, nil
}

func (o *RemoteObject) CommunityForm() (*domain.CommunityForm, error) {
	if o.PreferredUsername == "" || o.Inbox == "" || o.PublicKey.PublicKeyPem == "" {
		return nil, fail(ErrInvalidRemoteObject, "community %s missing required fields", o.ID)
	}
	return &domain.CommunityForm{
		ApId:                      o.ID,
		Name:                      o.PreferredUsername,
		Title:                     o.Name,
		Description:               o.Summary,
		Icon:                      o.Icon.Href,
		InboxURL:                  o.Inbox,
		FollowersURL:              o.Followers,
		PublicKey:                 o.PublicKey.PublicKeyPem,
		Nsfw:                      o.Sensitive,
		ManuallyApprovesFollowers: o.ManuallyApprovesFollowers,
		Published:                 o.published(),
		Updated:                   o.Updated,
	}, nil
}

// PostForm builds the post fields carried by the object itself; creator and
// community ids are filled in by the resolver.
func (o *RemoteObject) PostForm() (*domain.PostForm, error) {
	name := o.Name
	if name == "" {
		// microblog notes have no title
		name = util.Truncate(util.StripHTML(o.Content), 200)
	}
	if name == "" {
		return nil, fail(ErrInvalidRemoteObject, "post %s has neither name nor content", o.ID)
	}
	if o.CreatorRef() == "" {
		return nil, fail(ErrInvalidRemoteObject, "post %s has no creator", o.ID)
	}
	return &domain.PostForm{
		ApId:      o.ID,
		Name:      name,
		Body:      o.Content,
		URL:       o.URL.Href,
		Nsfw:      o.Sensitive,
		Published: o.published(),
		Updated:   o.Updated,
	}, nil
}

func (o *RemoteObject) CommentForm() (*domain.CommentForm, error) {
	if o.CreatorRef() == "" || o.InReplyTo.ID == "" {
		return nil, fail(ErrInvalidRemoteObject, "comment %s has no creator or parent", o.ID)
	}
	return &domain.CommentForm{
		ApId:      o.ID,
		Content:   o.Content,
		Published: o.published(),
		Updated:   o.Updated,
	}, nil
}
