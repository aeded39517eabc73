package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	ContentType = "application/activity+json"
	// PublicCollection addresses an activity to everyone.
	PublicCollection = "https://www.w3.org/ns/activitystreams#Public"
)

// Kind is the closed set of activity types the pipeline knows how to route.
type Kind int

const (
	KindUnknown Kind = iota
	KindCreate
	KindUpdate
	KindDelete
	KindUndo
	KindLike
	KindDislike
	KindFollow
	KindAccept
	KindReject
	KindAnnounce
)

var kindNames = map[Kind]string{
	KindUnknown:  "Unknown",
	KindCreate:   "Create",
	KindUpdate:   "Update",
	KindDelete:   "Delete",
	KindUndo:     "Undo",
	KindLike:     "Like",
	KindDislike:  "Dislike",
	KindFollow:   "Follow",
	KindAccept:   "Accept",
	KindReject:   "Reject",
	KindAnnounce: "Announce",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if k != KindUnknown && name == s {
			return k
		}
	}
	return KindUnknown
}

// ObjectRef is a reference to another object, either by bare id or with the
// object embedded.
type ObjectRef struct {
	ID   string
	Type string
	Raw  json.RawMessage // nil unless embedded
}

func (o ObjectRef) Embedded() bool {
	return len(o.Raw) > 0
}

func (o *ObjectRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '"':
		return json.Unmarshal(b, &o.ID)
	case b[0] == '{':
		var head struct {
			ID   string          `json:"id"`
			Type json.RawMessage `json:"type"`
		}
		if err := json.Unmarshal(b, &head); err != nil {
			return err
		}
		o.ID = head.ID
		o.Type = firstType(head.Type)
		o.Raw = append(json.RawMessage(nil), b...)
		return nil
	case b[0] == '[':
		// a single element list is common for attributedTo
		var refs []ObjectRef
		if err := json.Unmarshal(b, &refs); err != nil {
			return err
		}
		for _, r := range refs {
			if r.ID != "" {
				*o = r
				return nil
			}
		}
		return nil
	}
	return fmt.Errorf("unexpected object reference %s", string(b))
}

// firstType accepts both "Note" and ["Note", "Other"] type declarations.
func firstType(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// stringList decodes a property that may hold one string or a list of them.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one != "" {
			*l = stringList{one}
		}
		return nil
	}
	var refs []ObjectRef
	if err := json.Unmarshal(b, &refs); err != nil {
		return err
	}
	for _, r := range refs {
		if r.ID != "" {
			*l = append(*l, r.ID)
		}
	}
	return nil
}

// Activity is a parsed inbound activity envelope.
type Activity struct {
	ID        string
	Type      string
	Kind      Kind
	Actor     string
	Object    ObjectRef
	To        []string
	Cc        []string
	Audience  string
	Published time.Time
	Raw       json.RawMessage
}

type wireActivity struct {
	ID        string          `json:"id"`
	Type      json.RawMessage `json:"type"`
	Actor     ObjectRef       `json:"actor"`
	Object    ObjectRef       `json:"object"`
	To        stringList      `json:"to"`
	Cc        stringList      `json:"cc"`
	Audience  ObjectRef       `json:"audience"`
	Published string          `json:"published"`
}

// ParseActivity decodes and validates an activity envelope. Unknown
// activity types parse fine and carry KindUnknown.
func ParseActivity(body []byte) (*Activity, error) {
	var w wireActivity
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fail(ErrInvalidActivity, "malformed json: %v", err)
	}

	act := &Activity{
		ID:       w.ID,
		Type:     firstType(w.Type),
		Actor:    w.Actor.ID,
		Object:   w.Object,
		To:       w.To,
		Cc:       w.Cc,
		Audience: w.Audience.ID,
		Raw:      append(json.RawMessage(nil), body...),
	}
	act.Kind = ParseKind(act.Type)
	if t, err := time.Parse(time.RFC3339, w.Published); err == nil {
		act.Published = t
	}

	switch {
	case act.Type == "":
		return nil, fail(ErrInvalidActivity, "missing type")
	case !isAbsoluteURL(act.ID):
		return nil, fail(ErrInvalidActivity, "id %q is not an absolute url", act.ID)
	case !isAbsoluteURL(act.Actor):
		return nil, fail(ErrInvalidActivity, "actor %q is not an absolute url", act.Actor)
	case act.Object.ID == "" && !act.Object.Embedded():
		return nil, fail(ErrInvalidActivity, "missing object")
	case act.Object.ID != "" && !isAbsoluteURL(act.Object.ID):
		return nil, fail(ErrInvalidActivity, "object id %q is not an absolute url", act.Object.ID)
	}
	return act, nil
}

func (a *Activity) String() string {
	return fmt.Sprintf("%s %s by %s", a.Type, a.ID, a.Actor)
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

// authority returns scheme and host of an id, the unit domain checks compare.
func authority(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func sameAuthority(a, b string) bool {
	aa := authority(a)
	return aa != "" && aa == authority(b)
}

func isPublic(addr string) bool {
	return addr == PublicCollection || addr == "as:Public" || addr == "Public"
}
