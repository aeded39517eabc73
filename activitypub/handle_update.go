package activitypub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deemkeen/inboxd/domain"
)

// handleUpdate applies an edit to a mirrored object. Updates never create
// anything: an object we do not know yet arrives through its Create.
func (d *Dispatcher) handleUpdate(ctx context.Context, act *Activity, actor domain.Actor, b *Budget) (*domain.Event, error) {
	obj, err := d.objectOf(ctx, act, b)
	if err != nil {
		return nil, err
	}

	target, err := d.resolver.Lookup(ctx, obj.ID)
	if errors.Is(err, ErrNotFound) {
		if act.Object.Embedded() {
			// fails when the object is gone at its origin
			if _, err := d.resolver.Dereference(ctx, obj.ID, b); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: update of unknown %s", ErrNotFound, obj.ID)
	}
	if err != nil {
		return nil, err
	}
	if target.EntityKind() != obj.Kind {
		return nil, fail(ErrTypeMismatch, "%s is a %s, update carries a %s", obj.ID, target.EntityKind(), obj.Kind)
	}
	if target.IsDeleted() {
		return nil, nil
	}

	var updated domain.Entity
	switch t := target.(type) {
	case *domain.Person, *domain.Community:
		if t.RemoteId() != actor.RemoteId() {
			return nil, fail(ErrPermissionDenied, "%s may not update %s", actor.RemoteId(), t.RemoteId())
		}
		if notNewer(obj.Updated, updatedAt(t)) {
			return nil, nil
		}
		a, err := d.resolver.UpdateActor(ctx, t.(domain.Actor), obj)
		if err != nil {
			return nil, err
		}
		updated = a

	case *domain.Post:
		if !owns(actor, t.CreatorId) {
			return nil, fail(ErrPermissionDenied, "%s may not update %s", actor.RemoteId(), t.ApId)
		}
		if notNewer(obj.Updated, t.Updated) {
			return nil, nil
		}
		form, err := obj.PostForm()
		if err != nil {
			return nil, err
		}
		form.CreatorId = t.CreatorId
		form.CommunityId = t.CommunityId
		p, err := d.store.UpdatePost(ctx, t.Id, form)
		if err != nil {
			return nil, err
		}
		updated = p

	case *domain.Comment:
		if !owns(actor, t.CreatorId) {
			return nil, fail(ErrPermissionDenied, "%s may not update %s", actor.RemoteId(), t.ApId)
		}
		if notNewer(obj.Updated, t.Updated) {
			return nil, nil
		}
		form, err := obj.CommentForm()
		if err != nil {
			return nil, err
		}
		form.CreatorId = t.CreatorId
		form.PostId = t.PostId
		form.ParentId = t.ParentId
		c, err := d.store.UpdateComment(ctx, t.Id, form)
		if err != nil {
			return nil, err
		}
		updated = c
	}

	return domain.NewEvent(updated.EntityKind(), updated.LocalId(), domain.OpUpdate, updated), nil
}

// notNewer reports whether an incoming edit is not more recent than the
// stored version. Missing timestamps always apply.
func notNewer(incoming, current *time.Time) bool {
	return incoming != nil && current != nil && !incoming.After(*current)
}

func updatedAt(e domain.Entity) *time.Time {
	switch t := e.(type) {
	case *domain.Person:
		return t.Updated
	case *domain.Community:
		return t.Updated
	}
	return nil
}

// owns reports whether actor is the person with the given local id.
func owns(actor domain.Actor, creatorId int64) bool {
	p, ok := actor.(*domain.Person)
	return ok && p.Id == creatorId
}
