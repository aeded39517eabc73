package activitypub

import (
	"context"
	"errors"

	"github.com/deemkeen/inboxd/domain"
)

// handleAnnounce processes an activity a community relays to its followers.
// The inner activity is handled as if its author had sent it, and shares the
// budget of the Announce.
func (d *Dispatcher) handleAnnounce(ctx context.Context, act *Activity, community *domain.Community, b *Budget) (*domain.Event, error) {
	var inner *Activity
	if act.Object.Embedded() {
		var err error
		inner, err = ParseActivity(act.Object.Raw)
		if err != nil {
			return nil, fail(ErrUnsupported, "announce of a plain %s", act.Object.Type)
		}
		// a community only speaks for its own instance, anything else is
		// taken from the origin
		if !sameAuthority(inner.ID, community.ApId) {
			inner, err = d.resolver.FetchActivity(ctx, inner.ID, b)
			if err != nil {
				return nil, err
			}
		}
	} else {
		var err error
		inner, err = d.resolver.FetchActivity(ctx, act.Object.ID, b)
		if err != nil {
			return nil, err
		}
	}
	if inner.ID == act.ID {
		return nil, fail(ErrInvalidActivity, "%s announces itself", act.ID)
	}

	switch inner.Kind {
	case KindUnknown:
		return nil, fail(ErrUnsupported, "announced activity type %q", inner.Type)
	case KindAnnounce:
		return nil, fail(ErrUnsupported, "nested announce %s", inner.ID)
	}

	out, err := d.exactlyOnce(ctx, inner, func() (*Outcome, error) {
		actor, err := d.verifier.VerifyEmbedded(ctx, inner, b)
		if err != nil {
			return nil, err
		}
		if err := d.checkRelay(ctx, inner, community, b); err != nil {
			return nil, err
		}
		if _, err := d.store.CreateActivity(ctx, ledgerRecord(inner, community.ApId)); err != nil {
			return nil, err
		}
		evt, err := d.process(ctx, inner, actor, b)
		if err != nil {
			return nil, err
		}
		d.markProcessed(ctx, inner.ID)
		if evt != nil {
			evt.ActivityURI = inner.ID
		}
		return &Outcome{Kind: inner.Kind, ActivityID: inner.ID, Event: evt}, nil
	})
	if err != nil {
		return nil, err
	}
	if out.Duplicate {
		return nil, nil
	}
	return out.Event, nil
}

// checkRelay rejects an inner activity that concerns content outside the
// announcing community.
func (d *Dispatcher) checkRelay(ctx context.Context, inner *Activity, community *domain.Community, b *Budget) error {
	if inner.Audience != "" && inner.Audience != community.ApId {
		return fail(ErrPermissionDenied, "%s is addressed to %s, not %s", inner.ID, inner.Audience, community.ApId)
	}

	target := inner
	if inner.Kind == KindUndo {
		undone, err := d.undoneActivity(ctx, inner)
		if err != nil || undone == nil {
			return err
		}
		target = undone
	}

	owner, err := d.communityOf(ctx, target.Object, target.Kind == KindDelete, b)
	if err != nil {
		return err
	}
	if owner != "" && owner != community.ApId {
		return fail(ErrPermissionDenied, "%s may not relay %s, it belongs to %s", community.ApId, inner.ID, owner)
	}
	if owner == "" && target.Kind != KindDelete {
		return fail(ErrPermissionDenied, "%s may not relay %s", community.ApId, inner.ID)
	}
	return nil
}

// communityOf returns the id of the community ref lives in. With localOnly
// an unknown object is not fetched and yields "".
func (d *Dispatcher) communityOf(ctx context.Context, ref ObjectRef, localOnly bool, b *Budget) (string, error) {
	e, err := d.resolver.Lookup(ctx, ref.ID)
	if err == nil {
		return d.entityCommunity(ctx, e)
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if localOnly {
		return "", nil
	}

	var obj *RemoteObject
	if ref.Embedded() {
		obj, err = ParseObject(ref.Raw)
	} else {
		obj, err = d.resolver.Dereference(ctx, ref.ID, b)
	}
	if err != nil {
		return "", err
	}
	switch obj.Kind {
	case domain.KindPost:
		return obj.CommunityRef(), nil
	case domain.KindComment:
		return d.communityOf(ctx, obj.InReplyTo, false, b)
	case domain.KindCommunity:
		return obj.ID, nil
	}
	return "", nil
}

func (d *Dispatcher) entityCommunity(ctx context.Context, e domain.Entity) (string, error) {
	switch v := e.(type) {
	case *domain.Community:
		return v.ApId, nil
	case *domain.Post:
		c, err := d.store.ReadCommunity(ctx, v.CommunityId)
		if err != nil {
			return "", err
		}
		return c.ApId, nil
	case *domain.Comment:
		p, err := d.store.ReadPost(ctx, v.PostId)
		if err != nil {
			return "", err
		}
		return d.entityCommunity(ctx, p)
	}
	return "", nil
}
