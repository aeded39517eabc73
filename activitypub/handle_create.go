package activitypub

import (
	"context"
	"errors"

	"github.com/deemkeen/inboxd/domain"
)

// handleCreate mirrors a new post or comment.
func (d *Dispatcher) handleCreate(ctx context.Context, act *Activity, actor *domain.Person, b *Budget) (*domain.Event, error) {
	obj, err := d.objectOf(ctx, act, b)
	if err != nil {
		return nil, err
	}
	if obj.Kind != domain.KindPost && obj.Kind != domain.KindComment {
		return nil, fail(ErrTypeMismatch, "cannot create a %s", obj.Type)
	}
	if obj.CreatorRef() != actor.ApId {
		return nil, fail(ErrPermissionDenied, "%s is attributed to %s, not %s", obj.ID, obj.CreatorRef(), actor.ApId)
	}

	if _, err := d.resolver.Lookup(ctx, obj.ID); err == nil {
		return nil, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if obj.Kind == domain.KindPost {
		ref := obj.CommunityRef()
		if ref == "" {
			return nil, fail(ErrInvalidRemoteObject, "post %s names no community", obj.ID)
		}
		community, err := d.resolver.ResolveCommunity(ctx, ref, b)
		if err != nil {
			return nil, err
		}
		if community.Deleted {
			return nil, fail(ErrPermissionDenied, "community %s is deleted", community.ApId)
		}
	}

	e, created, err := d.resolver.Insert(ctx, obj, b)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	return domain.NewEvent(e.EntityKind(), e.LocalId(), domain.OpCreate, e), nil
}

// objectOf returns the object of act, parsed from the activity when it is
// embedded and fetched otherwise.
func (d *Dispatcher) objectOf(ctx context.Context, act *Activity, b *Budget) (*RemoteObject, error) {
	if !act.Object.Embedded() {
		return d.resolver.Dereference(ctx, act.Object.ID, b)
	}
	obj, err := ParseObject(act.Object.Raw)
	if err != nil {
		return nil, err
	}
	if !sameAuthority(obj.ID, act.Actor) {
		return nil, fail(ErrDomainMismatch, "embedded object %s sent by %s", obj.ID, act.Actor)
	}
	return obj, nil
}
