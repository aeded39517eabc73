package activitypub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/deemkeen/inboxd/broadcast"
	"github.com/deemkeen/inboxd/domain"
	"github.com/deemkeen/inboxd/util"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	// FetchLimit caps the remote fetches made for one inbound activity,
	// including the inner activity of an Announce.
	FetchLimit      int
	ProcessTimeout  time.Duration
	EnableDownvotes bool
}

func OptionsFromConfig(conf *util.AppConfig) Options {
	return Options{
		FetchLimit:      conf.Federation.FetchLimit,
		ProcessTimeout:  conf.Federation.ProcessTimeout,
		EnableDownvotes: conf.Federation.EnableDownvotes,
	}
}

// Outcome describes a successfully handled activity. Event is nil when the
// activity changed nothing.
type Outcome struct {
	Kind       Kind
	ActivityID string
	Duplicate  bool
	Event      *domain.Event
}

// Dispatcher runs inbound activities through verification, the handler for
// their kind and the broadcast of the resulting change.
type Dispatcher struct {
	store    Store
	resolver *Resolver
	verifier *Verifier
	events   broadcast.Broadcaster
	opts     Options

	flights singleflight.Group
}

func NewDispatcher(store Store, resolver *Resolver, verifier *Verifier, events broadcast.Broadcaster, opts Options) *Dispatcher {
	return &Dispatcher{
		store:    store,
		resolver: resolver,
		verifier: verifier,
		events:   events,
		opts:     opts,
	}
}

// Receive parses a request body and dispatches the activity in it.
func (d *Dispatcher) Receive(ctx context.Context, body []byte, req *http.Request) (*Outcome, error) {
	act, err := ParseActivity(body)
	if err != nil {
		activitiesTotal.WithLabelValues(KindUnknown.String(), string(ClassValidation)).Inc()
		log.Printf("Inbox: Rejected malformed activity: %v", err)
		return nil, err
	}
	return d.Dispatch(ctx, act, req)
}

func (d *Dispatcher) Dispatch(ctx context.Context, act *Activity, req *http.Request) (*Outcome, error) {
	start := time.Now()
	if d.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.ProcessTimeout)
		defer cancel()
	}
	out, err := d.exactlyOnce(ctx, act, func() (*Outcome, error) {
		return d.run(ctx, act, req)
	})
	d.observe(act, out, err, start)
	return out, err
}

// exactlyOnce runs fn unless act has been processed before. Concurrent
// deliveries of the same id wait for the first one, at most until ctx is
// done, and count as duplicates.
func (d *Dispatcher) exactlyOnce(ctx context.Context, act *Activity, fn func() (*Outcome, error)) (*Outcome, error) {
	duplicate := &Outcome{Kind: act.Kind, ActivityID: act.ID, Duplicate: true}

	done, err := d.processed(ctx, act.ID)
	if err != nil {
		return nil, err
	}
	if done {
		return duplicate, nil
	}

	ran := false
	ch := d.flights.DoChan(act.ID, func() (any, error) {
		ran = true
		done, err := d.processed(ctx, act.ID)
		if err != nil {
			return nil, err
		}
		if done {
			return duplicate, nil
		}
		return fn()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if !ran {
			return duplicate, nil
		}
		return res.Val.(*Outcome), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("gave up waiting for %s: %w", act.ID, ctx.Err())
	}
}

func (d *Dispatcher) run(ctx context.Context, act *Activity, req *http.Request) (*Outcome, error) {
	if act.Kind == KindUnknown {
		return nil, fail(ErrUnsupported, "activity type %q", act.Type)
	}

	out := &Outcome{Kind: act.Kind, ActivityID: act.ID}
	if d.isUnknownAccountDeletion(ctx, act) {
		return out, nil
	}

	b := NewBudget(d.opts.FetchLimit)
	actor, err := d.verifier.Verify(ctx, act, req, b)
	if err != nil {
		return nil, err
	}
	if _, err := d.store.CreateActivity(ctx, ledgerRecord(act, "")); err != nil {
		return nil, err
	}

	evt, err := d.process(ctx, act, actor, b)
	if err != nil {
		return nil, err
	}
	d.markProcessed(ctx, act.ID)

	if evt != nil {
		if evt.ActivityURI == "" {
			evt.ActivityURI = act.ID
		}
		d.publish(ctx, evt)
	}
	out.Event = evt
	return out, nil
}

// process routes a verified activity to its handler. The returned event
// describes the committed change, or is nil for a no-op.
func (d *Dispatcher) process(ctx context.Context, act *Activity, actor domain.Actor, b *Budget) (*domain.Event, error) {
	person, isPerson := actor.(*domain.Person)
	community, isCommunity := actor.(*domain.Community)

	switch {
	case act.Kind == KindCreate && isPerson:
		return d.handleCreate(ctx, act, person, b)
	case act.Kind == KindUpdate:
		return d.handleUpdate(ctx, act, actor, b)
	case act.Kind == KindDelete:
		return d.handleDelete(ctx, act, actor)
	case act.Kind == KindUndo && isPerson:
		return d.handleUndo(ctx, act, person)
	case (act.Kind == KindLike || act.Kind == KindDislike) && isPerson:
		return d.handleVote(ctx, act, person, b)
	case act.Kind == KindFollow && isPerson:
		return d.handleFollow(ctx, act, person)
	case act.Kind == KindAccept || act.Kind == KindReject:
		return d.handleFollowResponse(ctx, act, actor)
	case act.Kind == KindAnnounce && isCommunity:
		return d.handleAnnounce(ctx, act, community, b)
	}
	return nil, fail(ErrUnsupported, "%s from a %s", act.Kind, actor.EntityKind())
}

// isUnknownAccountDeletion reports whether act deletes an account we never
// mirrored. Such actors are usually gone at their origin, so verifying them
// would only fail.
func (d *Dispatcher) isUnknownAccountDeletion(ctx context.Context, act *Activity) bool {
	if act.Kind != KindDelete || act.Object.ID != act.Actor {
		return false
	}
	_, err := d.resolver.Lookup(ctx, act.Actor, domain.KindPerson, domain.KindCommunity)
	return errors.Is(err, ErrNotFound)
}

func (d *Dispatcher) processed(ctx context.Context, activityURI string) (bool, error) {
	rec, err := d.store.ReadActivityByURI(ctx, activityURI)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Processed, nil
}

func (d *Dispatcher) markProcessed(ctx context.Context, activityURI string) {
	// the change is committed already; a redelivery is absorbed by the handlers
	if err := d.store.MarkActivityProcessed(ctx, activityURI); err != nil {
		log.Printf("Inbox: Failed to mark %s as processed: %v", activityURI, err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, evt *domain.Event) {
	if d.events == nil {
		return
	}
	d.events.Publish(ctx, *evt)
}

func (d *Dispatcher) observe(act *Activity, out *Outcome, err error, start time.Time) {
	class := Classify(err)
	outcome := string(class)

	switch {
	case err == nil && out.Duplicate:
		outcome = "duplicate"
		log.Printf("Inbox: Skipping already processed %s", act)
	case err == nil && out.Event == nil:
		log.Printf("Inbox: Processed %s (no change)", act)
	case err == nil:
		log.Printf("Inbox: Processed %s -> %s %s #%d", act, out.Event.Operation, out.Event.EntityKind, out.Event.LocalId)
	case class == ClassUnsupported:
		log.Printf("Inbox: Ignoring %s: %v", act, err)
	default:
		log.Printf("Inbox: Failed to process %s: %v", act, err)
	}

	activitiesTotal.WithLabelValues(act.Kind.String(), outcome).Inc()
	processingSeconds.WithLabelValues(act.Kind.String()).Observe(time.Since(start).Seconds())
}

func ledgerRecord(act *Activity, relay string) *domain.Activity {
	return &domain.Activity{
		ActivityURI:  act.ID,
		ActivityType: act.Type,
		ActorURI:     act.Actor,
		ObjectURI:    act.Object.ID,
		RelayURI:     relay,
		RawJSON:      string(act.Raw),
	}
}
