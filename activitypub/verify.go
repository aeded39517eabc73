package activitypub

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/deemkeen/inboxd/domain"
)

// Actors refreshed more recently than this are not refetched after a
// failed signature check.
const keyRotationGrace = time.Minute

// Verifier establishes that an activity really comes from its actor before
// any handler touches the store.
type Verifier struct {
	resolver   *Resolver
	policy     *InstancePolicy
	signatures SignatureVerifier
}

func NewVerifier(resolver *Resolver, policy *InstancePolicy, signatures SignatureVerifier) *Verifier {
	return &Verifier{resolver: resolver, policy: policy, signatures: signatures}
}

// Verify checks an activity received over HTTP and returns its actor.
func (v *Verifier) Verify(ctx context.Context, act *Activity, req *http.Request, b *Budget) (domain.Actor, error) {
	actor, err := v.VerifyEmbedded(ctx, act, b)
	if err != nil {
		return nil, err
	}

	err = v.signatures.VerifySignature(req, act.Raw, actor)
	if err == nil {
		return actor, nil
	}
	if !errors.Is(err, ErrSignatureInvalid) || !refreshedBefore(actor, time.Now().Add(-keyRotationGrace)) {
		return nil, err
	}

	// the actor may have rotated its key since we cached it
	fresh, rerr := v.resolver.Refetch(ctx, actor, b)
	if rerr != nil {
		log.Printf("Verifier: Refetch of %s failed: %v", actor.RemoteId(), rerr)
		return nil, err
	}
	if fresh.PublicKeyPem() == actor.PublicKeyPem() {
		return nil, err
	}
	if err := v.signatures.VerifySignature(req, act.Raw, fresh); err != nil {
		return nil, err
	}
	log.Printf("Verifier: Accepted rotated key of %s", fresh.RemoteId())
	return fresh, nil
}

// VerifyEmbedded runs every check except the transport signature. It is
// used directly for activities relayed inside an Announce, whose signature
// belongs to the relaying community.
func (v *Verifier) VerifyEmbedded(ctx context.Context, act *Activity, b *Budget) (domain.Actor, error) {
	if err := checkDomains(act); err != nil {
		return nil, err
	}
	if err := v.policy.Check(act.Actor); err != nil {
		return nil, err
	}

	actor, err := v.resolver.ResolveActor(ctx, act.Actor, b)
	if err != nil {
		if isCanceled(err) {
			return nil, err
		}
		return nil, fail(ErrActorUnresolvable, "%s: %v", act.Actor, err)
	}
	if actor.IsDeleted() {
		return nil, fail(ErrActorUnresolvable, "%s is deleted", act.Actor)
	}
	if p, ok := actor.(*domain.Person); ok && p.Banned {
		return nil, fail(ErrActorUnresolvable, "%s is banned", act.Actor)
	}
	return actor, nil
}

// checkDomains requires the activity id, and the object for activities that
// author or modify it, to live on the actor's instance.
func checkDomains(act *Activity) error {
	if !sameAuthority(act.Actor, act.ID) {
		return fail(ErrDomainMismatch, "activity %s sent by %s", act.ID, act.Actor)
	}

	switch act.Kind {
	case KindCreate, KindUpdate, KindDelete:
		if act.Object.ID != "" && !sameAuthority(act.Actor, act.Object.ID) {
			return fail(ErrDomainMismatch, "object %s touched by %s", act.Object.ID, act.Actor)
		}
	case KindUndo:
		if act.Object.ID != "" && !sameAuthority(act.Actor, act.Object.ID) {
			return fail(ErrDomainMismatch, "activity %s undone by %s", act.Object.ID, act.Actor)
		}
	}
	return nil
}

func refreshedBefore(actor domain.Actor, t time.Time) bool {
	switch a := actor.(type) {
	case *domain.Person:
		return a.LastRefreshedAt.Before(t)
	case *domain.Community:
		return a.LastRefreshedAt.Before(t)
	}
	return false
}
