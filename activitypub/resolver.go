package activitypub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/deemkeen/inboxd/domain"
	"golang.org/x/sync/singleflight"
)

var allKinds = []domain.EntityKind{domain.KindPerson, domain.KindCommunity, domain.KindPost, domain.KindComment}

// Resolver turns remote ids into local entities, fetching and storing
// whatever is not mirrored yet. Concurrent resolutions of the same id share
// one fetch.
type Resolver struct {
	store           Store
	fetcher         Fetcher
	policy          *InstancePolicy
	refreshInterval time.Duration

	flights singleflight.Group
	mu      sync.Mutex
	owners  map[string]*Budget
}

func NewResolver(store Store, fetcher Fetcher, policy *InstancePolicy, refreshInterval time.Duration) *Resolver {
	return &Resolver{
		store:           store,
		fetcher:         fetcher,
		policy:          policy,
		refreshInterval: refreshInterval,
		owners:          make(map[string]*Budget),
	}
}

// Resolve returns the local entity for apID, fetching it from its origin
// when it is not known yet. kinds restricts the acceptable entity kinds; an
// empty list accepts any.
func (r *Resolver) Resolve(ctx context.Context, apID string, b *Budget, kinds ...domain.EntityKind) (domain.Entity, error) {
	e, err := r.Lookup(ctx, apID, kinds...)
	if err == nil {
		if actor, ok := e.(domain.Actor); ok && r.stale(actor) {
			return r.refresh(ctx, actor, b), nil
		}
		return e, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	leave, err := b.enter(apID)
	if err != nil {
		return nil, err
	}
	defer leave()

	ch, err := r.join(ctx, apID, b, kinds)
	if err != nil {
		return nil, err
	}
	defer r.release(apID, b)
	select {
	case res := <-ch:
		if res.Shared {
			sharedFetchesTotal.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		e := res.Val.(domain.Entity)
		if !wants(kinds, e.EntityKind()) {
			return nil, fail(ErrTypeMismatch, "%s is a %s, not %s", apID, e.EntityKind(), kindList(kinds))
		}
		return e, nil
	case <-ctx.Done():
		return nil, fail(ErrFetchFailed, "gave up waiting for %s: %v", apID, ctx.Err())
	}
}

// join starts the fetch of apID or joins the one already running. A running
// fetch whose owner is itself waiting on one of our ids would never finish,
// so joining it is reported as a reference cycle.
func (r *Resolver) join(ctx context.Context, apID string, b *Budget, kinds []domain.EntityKind) (<-chan singleflight.Result, error) {
	waiting := b.pathIDs(apID)

	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[apID]
	if ok && owner != b && owner.onPath(waiting) {
		return nil, fail(ErrRecursionLimitExceeded, "reference cycle through %s across deliveries", apID)
	}
	if !ok {
		r.owners[apID] = b
	}
	return r.flights.DoChan(apID, func() (any, error) {
		return r.fetchAndStore(ctx, apID, b, kinds)
	}), nil
}

func (r *Resolver) release(apID string, b *Budget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[apID] == b {
		delete(r.owners, apID)
	}
}

func (r *Resolver) fetchAndStore(ctx context.Context, apID string, b *Budget, kinds []domain.EntityKind) (domain.Entity, error) {
	// an earlier flight may have stored it after our lookup
	if e, err := r.Lookup(ctx, apID); err == nil {
		return e, nil
	}

	obj, err := r.Dereference(ctx, apID, b)
	if err != nil {
		return nil, err
	}
	if !wants(kinds, obj.Kind) {
		return nil, fail(ErrTypeMismatch, "%s is a %s, not %s", apID, obj.Kind, kindList(kinds))
	}

	e, created, err := r.Insert(ctx, obj, b)
	if err != nil {
		return nil, err
	}
	if created {
		log.Printf("Resolver: Stored %s", domain.Describe(e))
	}
	return e, nil
}

// Lookup finds apID among the mirrored entities without touching the
// network.
func (r *Resolver) Lookup(ctx context.Context, apID string, kinds ...domain.EntityKind) (domain.Entity, error) {
	var other domain.Entity
	for _, kind := range allKinds {
		e, err := r.readLocal(ctx, apID, kind)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if wants(kinds, kind) {
			return e, nil
		}
		other = e
	}
	if other != nil {
		return nil, fail(ErrTypeMismatch, "%s is a %s, not %s", apID, other.EntityKind(), kindList(kinds))
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, apID)
}

func (r *Resolver) readLocal(ctx context.Context, apID string, kind domain.EntityKind) (domain.Entity, error) {
	switch kind {
	case domain.KindPerson:
		p, err := r.store.ReadPersonByApId(ctx, apID)
		if err != nil {
			return nil, err
		}
		return p, nil
	case domain.KindCommunity:
		c, err := r.store.ReadCommunityByApId(ctx, apID)
		if err != nil {
			return nil, err
		}
		return c, nil
	case domain.KindPost:
		p, err := r.store.ReadPostByApId(ctx, apID)
		if err != nil {
			return nil, err
		}
		return p, nil
	case domain.KindComment:
		c, err := r.store.ReadCommentByApId(ctx, apID)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// Dereference fetches and parses apID without storing anything.
func (r *Resolver) Dereference(ctx context.Context, apID string, b *Budget) (*RemoteObject, error) {
	data, err := r.fetch(ctx, apID, b)
	if err != nil {
		return nil, err
	}
	obj, err := ParseObject(data)
	if err != nil {
		return nil, err
	}
	if !sameAuthority(obj.ID, apID) {
		return nil, fail(ErrInvalidRemoteObject, "%s answered with foreign id %s", apID, obj.ID)
	}
	return obj, nil
}

// FetchActivity fetches an activity document, e.g. the inner activity of an
// Announce that only carries its id.
func (r *Resolver) FetchActivity(ctx context.Context, apID string, b *Budget) (*Activity, error) {
	data, err := r.fetch(ctx, apID, b)
	if err != nil {
		return nil, err
	}
	act, err := ParseActivity(data)
	if err != nil {
		return nil, fail(ErrInvalidRemoteObject, "%s: %v", apID, err)
	}
	if !sameAuthority(act.ID, apID) {
		return nil, fail(ErrInvalidRemoteObject, "%s answered with foreign id %s", apID, act.ID)
	}
	return act, nil
}

func (r *Resolver) fetch(ctx context.Context, apID string, b *Budget) ([]byte, error) {
	if err := r.policy.Check(apID); err != nil {
		return nil, err
	}
	if err := b.Spend(); err != nil {
		budgetExhaustedTotal.Inc()
		return nil, fail(err, "no fetches left for %s", apID)
	}
	data, err := r.fetcher.Fetch(ctx, apID)
	if err != nil {
		if Classify(err) == ClassInternal {
			return nil, fail(ErrFetchFailed, "%s: %v", apID, err)
		}
		return nil, err
	}
	return data, nil
}

// Insert stores a parsed object after resolving the references it cannot
// exist without. created is false when the object was already stored.
func (r *Resolver) Insert(ctx context.Context, obj *RemoteObject, b *Budget) (domain.Entity, bool, error) {
	switch obj.Kind {
	case domain.KindPerson:
		form, err := obj.PersonForm()
		if err != nil {
			return nil, false, err
		}
		p, created, err := r.store.CreatePerson(ctx, form)
		if err != nil {
			return nil, false, err
		}
		return p, created, nil

	case domain.KindCommunity:
		form, err := obj.CommunityForm()
		if err != nil {
			return nil, false, err
		}
		c, created, err := r.store.CreateCommunity(ctx, form)
		if err != nil {
			return nil, false, err
		}
		return c, created, nil

	case domain.KindPost:
		form, err := obj.PostForm()
		if err != nil {
			return nil, false, err
		}
		creator, err := r.ResolvePerson(ctx, obj.CreatorRef(), b)
		if err != nil {
			return nil, false, err
		}
		communityRef := obj.CommunityRef()
		if communityRef == "" {
			return nil, false, fail(ErrInvalidRemoteObject, "post %s names no community", obj.ID)
		}
		community, err := r.ResolveCommunity(ctx, communityRef, b)
		if err != nil {
			return nil, false, err
		}
		form.CreatorId = creator.Id
		form.CommunityId = community.Id
		p, created, err := r.store.CreatePost(ctx, form)
		if err != nil {
			return nil, false, err
		}
		return p, created, nil

	case domain.KindComment:
		form, err := obj.CommentForm()
		if err != nil {
			return nil, false, err
		}
		creator, err := r.ResolvePerson(ctx, obj.CreatorRef(), b)
		if err != nil {
			return nil, false, err
		}
		parent, err := r.ResolvePostOrComment(ctx, obj.InReplyTo.ID, b)
		if err != nil {
			return nil, false, err
		}
		form.CreatorId = creator.Id
		switch p := parent.(type) {
		case *domain.Post:
			form.PostId = p.Id
		case *domain.Comment:
			form.PostId = p.PostId
			form.ParentId = &p.Id
		}
		c, created, err := r.store.CreateComment(ctx, form)
		if err != nil {
			return nil, false, err
		}
		return c, created, nil
	}
	return nil, false, fail(ErrInvalidRemoteObject, "cannot store %s of kind %q", obj.ID, obj.Kind)
}

func (r *Resolver) ResolvePerson(ctx context.Context, apID string, b *Budget) (*domain.Person, error) {
	e, err := r.Resolve(ctx, apID, b, domain.KindPerson)
	if err != nil {
		return nil, err
	}
	return e.(*domain.Person), nil
}

func (r *Resolver) ResolveCommunity(ctx context.Context, apID string, b *Budget) (*domain.Community, error) {
	e, err := r.Resolve(ctx, apID, b, domain.KindCommunity)
	if err != nil {
		return nil, err
	}
	return e.(*domain.Community), nil
}

func (r *Resolver) ResolvePost(ctx context.Context, apID string, b *Budget) (*domain.Post, error) {
	e, err := r.Resolve(ctx, apID, b, domain.KindPost)
	if err != nil {
		return nil, err
	}
	return e.(*domain.Post), nil
}

func (r *Resolver) ResolveComment(ctx context.Context, apID string, b *Budget) (*domain.Comment, error) {
	e, err := r.Resolve(ctx, apID, b, domain.KindComment)
	if err != nil {
		return nil, err
	}
	return e.(*domain.Comment), nil
}

// ResolveActor resolves a person or a community.
func (r *Resolver) ResolveActor(ctx context.Context, apID string, b *Budget) (domain.Actor, error) {
	e, err := r.Resolve(ctx, apID, b, domain.KindPerson, domain.KindCommunity)
	if err != nil {
		return nil, err
	}
	return e.(domain.Actor), nil
}

func (r *Resolver) ResolvePostOrComment(ctx context.Context, apID string, b *Budget) (domain.Entity, error) {
	return r.Resolve(ctx, apID, b, domain.KindPost, domain.KindComment)
}

func (r *Resolver) stale(actor domain.Actor) bool {
	if r.refreshInterval <= 0 {
		return false
	}
	switch a := actor.(type) {
	case *domain.Person:
		return !a.Local && time.Since(a.LastRefreshedAt) > r.refreshInterval
	case *domain.Community:
		return !a.Local && time.Since(a.LastRefreshedAt) > r.refreshInterval
	}
	return false
}

// refresh refetches a cached actor, falling back to the cached row when the
// budget is spent or the peer is unreachable.
func (r *Resolver) refresh(ctx context.Context, actor domain.Actor, b *Budget) domain.Actor {
	if b.Remaining() == 0 {
		return actor
	}
	fresh, err := r.Refetch(ctx, actor, b)
	if err != nil {
		log.Printf("Resolver: Keeping cached %s, refresh failed: %v", domain.Describe(actor), err)
		return actor
	}
	return fresh
}

// Refetch downloads an actor again and overwrites the stored profile and key.
func (r *Resolver) Refetch(ctx context.Context, actor domain.Actor, b *Budget) (domain.Actor, error) {
	v, err, _ := r.flights.Do("refetch "+actor.RemoteId(), func() (any, error) {
		obj, err := r.Dereference(ctx, actor.RemoteId(), b)
		if err != nil {
			return nil, err
		}
		if obj.Kind != actor.EntityKind() {
			return nil, fail(ErrTypeMismatch, "%s turned from %s into %s", actor.RemoteId(), actor.EntityKind(), obj.Kind)
		}
		return r.UpdateActor(ctx, actor, obj)
	})
	if err != nil {
		return nil, err
	}
	return v.(domain.Actor), nil
}

// UpdateActor overwrites the stored profile of actor with obj.
func (r *Resolver) UpdateActor(ctx context.Context, actor domain.Actor, obj *RemoteObject) (domain.Actor, error) {
	switch a := actor.(type) {
	case *domain.Person:
		form, err := obj.PersonForm()
		if err != nil {
			return nil, err
		}
		p, err := r.store.UpdatePerson(ctx, a.Id, form)
		if err != nil {
			return nil, err
		}
		return p, nil
	case *domain.Community:
		form, err := obj.CommunityForm()
		if err != nil {
			return nil, err
		}
		c, err := r.store.UpdateCommunity(ctx, a.Id, form)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unexpected actor %T", actor)
}

func wants(kinds []domain.EntityKind, kind domain.EntityKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func kindList(kinds []domain.EntityKind) string {
	if len(kinds) == 0 {
		return "any"
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, " or ")
}
