package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by the store when no row matches.
var ErrNotFound = errors.New("not found")

type EntityKind string

const (
	KindPerson    EntityKind = "person"
	KindCommunity EntityKind = "community"
	KindPost      EntityKind = "post"
	KindComment   EntityKind = "comment"
)

// Entity is a locally mirrored remote object, addressable both by its
// local numeric id and by the URL it has on its origin server.
type Entity interface {
	EntityKind() EntityKind
	LocalId() int64
	RemoteId() string
	IsDeleted() bool
}

// Actor is an entity that can sign and send activities.
type Actor interface {
	Entity
	PublicKeyPem() string
}

func Describe(e Entity) string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s #%d (%s)", e.EntityKind(), e.LocalId(), e.RemoteId())
}
