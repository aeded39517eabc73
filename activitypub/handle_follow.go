package activitypub

import (
	"context"
	"errors"
	"log"

	"github.com/deemkeen/inboxd/domain"
)

// handleFollow records a remote person following one of our communities or
// users.
func (d *Dispatcher) handleFollow(ctx context.Context, act *Activity, actor *domain.Person) (*domain.Event, error) {
	target, err := d.resolver.Lookup(ctx, act.Object.ID, domain.KindCommunity, domain.KindPerson)
	if err != nil {
		return nil, err
	}

	status := domain.FollowAccepted
	switch t := target.(type) {
	case *domain.Community:
		if !t.Local {
			return nil, fail(ErrPermissionDenied, "%s is not a local community", t.ApId)
		}
		if t.Deleted {
			return nil, fail(ErrNotFound, "community %s is deleted", t.ApId)
		}
		if t.ManuallyApprovesFollowers {
			status = domain.FollowPending
		}
	case *domain.Person:
		if !t.Local {
			return nil, fail(ErrPermissionDenied, "%s is not a local user", t.ApId)
		}
		if t.Deleted {
			return nil, fail(ErrNotFound, "user %s is deleted", t.ApId)
		}
	}

	existing, err := d.store.ReadFollow(ctx, actor.Id, target.EntityKind(), target.LocalId())
	switch {
	case err == nil && (existing.Status == status || existing.Status == domain.FollowAccepted):
		return nil, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	follow, changed, err := d.store.UpsertFollow(ctx, &domain.FollowForm{
		FollowerId: actor.Id,
		TargetKind: target.EntityKind(),
		TargetId:   target.LocalId(),
		ApId:       act.ID,
		Status:     status,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return domain.NewEvent(target.EntityKind(), target.LocalId(), domain.OpFollow, follow), nil
}

// handleFollowResponse settles one of our pending follows after the target
// accepted or rejected it.
func (d *Dispatcher) handleFollowResponse(ctx context.Context, act *Activity, actor domain.Actor) (*domain.Event, error) {
	follow, err := d.store.ReadFollowByApId(ctx, act.Object.ID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("Inbox: %s of unknown follow %s, nothing to do", act.Kind, act.Object.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if follow.TargetKind != actor.EntityKind() || follow.TargetId != actor.LocalId() {
		return nil, fail(ErrPermissionDenied, "%s cannot answer follow %s", actor.RemoteId(), follow.ApId)
	}

	to, op := domain.FollowAccepted, domain.OpFollowAccepted
	if act.Kind == KindReject {
		to, op = domain.FollowRejected, domain.OpFollowRejected
	}
	updated, changed, err := d.store.TransitionFollow(ctx, follow.Id, domain.FollowPending, to)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return domain.NewEvent(updated.TargetKind, updated.TargetId, op, updated), nil
}
