package activitypub

import (
	"context"
	"errors"
	"log"

	"github.com/deemkeen/inboxd/domain"
)

// handleDelete soft deletes a post, comment, community or the sending
// account itself.
func (d *Dispatcher) handleDelete(ctx context.Context, act *Activity, actor domain.Actor) (*domain.Event, error) {
	target, err := d.resolver.Lookup(ctx, act.Object.ID)
	if errors.Is(err, ErrNotFound) {
		log.Printf("Inbox: Delete of unknown %s, nothing to do", act.Object.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.setDeleted(ctx, target, actor, true)
}

// setDeleted flips the deleted flag of target on behalf of actor. No event
// is returned when the flag already had the requested value.
func (d *Dispatcher) setDeleted(ctx context.Context, target domain.Entity, actor domain.Actor, deleted bool) (*domain.Event, error) {
	var (
		updated domain.Entity
		changed bool
	)

	switch t := target.(type) {
	case *domain.Post:
		if !owns(actor, t.CreatorId) {
			return nil, fail(ErrPermissionDenied, "%s does not own %s", actor.RemoteId(), t.ApId)
		}
		p, ok, err := d.store.UpdatePostDeleted(ctx, t.Id, deleted)
		if err != nil {
			return nil, err
		}
		updated, changed = p, ok

	case *domain.Comment:
		if !owns(actor, t.CreatorId) {
			return nil, fail(ErrPermissionDenied, "%s does not own %s", actor.RemoteId(), t.ApId)
		}
		c, ok, err := d.store.UpdateCommentDeleted(ctx, t.Id, deleted)
		if err != nil {
			return nil, err
		}
		updated, changed = c, ok

	case *domain.Community:
		if t.ApId != actor.RemoteId() {
			return nil, fail(ErrPermissionDenied, "%s may not delete %s", actor.RemoteId(), t.ApId)
		}
		c, ok, err := d.store.UpdateCommunityDeleted(ctx, t.Id, deleted)
		if err != nil {
			return nil, err
		}
		updated, changed = c, ok

	case *domain.Person:
		if t.ApId != actor.RemoteId() {
			return nil, fail(ErrPermissionDenied, "%s may not delete %s", actor.RemoteId(), t.ApId)
		}
		p, ok, err := d.store.UpdatePersonDeleted(ctx, t.Id, deleted)
		if err != nil {
			return nil, err
		}
		updated, changed = p, ok
	}

	if !changed {
		return nil, nil
	}
	op := domain.OpDelete
	if !deleted {
		op = domain.OpRestore
	}
	return domain.NewEvent(updated.EntityKind(), updated.LocalId(), op, updated), nil
}
