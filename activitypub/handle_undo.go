package activitypub

import (
	"context"
	"errors"
	"log"

	"github.com/deemkeen/inboxd/domain"
)

// handleUndo reverts the effect of an earlier vote, delete or follow.
func (d *Dispatcher) handleUndo(ctx context.Context, act *Activity, actor *domain.Person) (*domain.Event, error) {
	inner, err := d.undoneActivity(ctx, act)
	if err != nil {
		return nil, err
	}
	if inner == nil {
		log.Printf("Inbox: Undo of unknown activity %s, nothing to do", act.Object.ID)
		return nil, nil
	}
	if inner.Actor != actor.ApId {
		return nil, fail(ErrPermissionDenied, "%s may not undo %s by %s", actor.ApId, inner.ID, inner.Actor)
	}

	switch inner.Kind {
	case KindLike, KindDislike:
		return d.undoVote(ctx, inner, actor)
	case KindDelete:
		target, err := d.resolver.Lookup(ctx, inner.Object.ID)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return d.setDeleted(ctx, target, actor, false)
	case KindFollow:
		return d.undoFollow(ctx, inner, actor)
	}
	return nil, fail(ErrUnsupported, "undo of %s", inner.Type)
}

// undoneActivity returns the activity an Undo refers to, either embedded or
// from the ledger. It returns nil when we never saw it.
func (d *Dispatcher) undoneActivity(ctx context.Context, act *Activity) (*Activity, error) {
	if act.Object.Embedded() {
		inner, err := ParseActivity(act.Object.Raw)
		if err != nil {
			return nil, fail(ErrInvalidActivity, "undone activity: %v", err)
		}
		return inner, nil
	}

	rec, err := d.store.ReadActivityByURI(ctx, act.Object.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inner, err := ParseActivity([]byte(rec.RawJSON))
	if err != nil {
		return nil, err
	}
	return inner, nil
}

func (d *Dispatcher) undoVote(ctx context.Context, inner *Activity, actor *domain.Person) (*domain.Event, error) {
	target, err := d.resolver.Lookup(ctx, inner.Object.ID, domain.KindPost, domain.KindComment)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	removed, err := d.store.DeleteVote(ctx, actor.Id, target.EntityKind(), target.LocalId())
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, nil
	}
	return d.voteEvent(ctx, target, domain.OpUnvote)
}

func (d *Dispatcher) undoFollow(ctx context.Context, inner *Activity, actor *domain.Person) (*domain.Event, error) {
	target, err := d.resolver.Lookup(ctx, inner.Object.ID, domain.KindCommunity, domain.KindPerson)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	follow, err := d.store.ReadFollow(ctx, actor.Id, target.EntityKind(), target.LocalId())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	removed, err := d.store.DeleteFollow(ctx, follow.Id)
	if err != nil {
		return nil, err
	}
	if removed == 0 {
		return nil, nil
	}
	return domain.NewEvent(target.EntityKind(), target.LocalId(), domain.OpUnfollow, follow), nil
}
