package activitypub

import (
	"context"
	"log"

	"github.com/deemkeen/inboxd/domain"
)

// handleVote records a Like (+1) or Dislike (-1) on a post or comment.
func (d *Dispatcher) handleVote(ctx context.Context, act *Activity, actor *domain.Person, b *Budget) (*domain.Event, error) {
	score := 1
	if act.Kind == KindDislike {
		if !d.opts.EnableDownvotes {
			log.Printf("Inbox: Downvotes are disabled, ignoring %s", act.ID)
			return nil, nil
		}
		score = -1
	}

	target, err := d.resolver.ResolvePostOrComment(ctx, act.Object.ID, b)
	if err != nil {
		return nil, err
	}
	if target.IsDeleted() {
		return nil, nil
	}

	_, changed, err := d.store.UpsertVote(ctx, &domain.VoteForm{
		PersonId:   actor.Id,
		TargetKind: target.EntityKind(),
		TargetId:   target.LocalId(),
		Score:      score,
		ApId:       act.ID,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return d.voteEvent(ctx, target, domain.OpVote)
}

// voteEvent re-reads target so the event carries the recomputed score.
func (d *Dispatcher) voteEvent(ctx context.Context, target domain.Entity, op domain.Operation) (*domain.Event, error) {
	fresh, err := d.resolver.Lookup(ctx, target.RemoteId(), target.EntityKind())
	if err != nil {
		return nil, err
	}
	return domain.NewEvent(fresh.EntityKind(), fresh.LocalId(), op, fresh), nil
}
