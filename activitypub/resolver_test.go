package activitypub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deemkeen/inboxd/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFetchesAndStoresMandatoryReferences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.peer

	alice := p.person("alice")
	golang := p.group("golang")
	postID := p.page("/post/1", alice, golang, "Generics in practice")
	commentID := p.note("/comments/1", alice, postID, "first")
	replyID := p.note("/comments/2", alice, commentID, "second")

	b := NewBudget(10)
	reply, err := env.resolver.ResolveComment(ctx, replyID, b)
	require.NoError(t, err)
	assert.Equal(t, 5, 10-b.Remaining(), "reply, alice, parent, post and community should be fetched once each")

	parent, err := env.db.ReadCommentByApId(ctx, commentID)
	require.NoError(t, err)
	post, err := env.db.ReadPostByApId(ctx, postID)
	require.NoError(t, err)
	community, err := env.db.ReadCommunityByApId(ctx, golang)
	require.NoError(t, err)
	person, err := env.db.ReadPersonByApId(ctx, alice)
	require.NoError(t, err)

	assert.Equal(t, post.Id, reply.PostId)
	require.NotNil(t, reply.ParentId)
	assert.Equal(t, parent.Id, *reply.ParentId)
	assert.Nil(t, parent.ParentId)
	assert.Equal(t, community.Id, post.CommunityId)
	assert.Equal(t, person.Id, post.CreatorId)
	assert.Equal(t, "Generics in practice", post.Name)

	// a second resolution is served locally
	before := p.totalHits()
	again, err := env.resolver.ResolveComment(ctx, replyID, NewBudget(0))
	require.NoError(t, err)
	assert.Equal(t, reply.Id, again.Id)
	assert.Equal(t, before, p.totalHits())
}

func TestResolveSingleFlight(t *testing.T) {
	env := newTestEnv(t)
	alice := env.peer.person("alice")
	env.peer.delay = 100 * time.Millisecond

	const workers = 20
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			person, err := env.resolver.ResolvePerson(context.Background(), alice, NewBudget(25))
			errs[i] = err
			if err == nil {
				ids[i] = person.Id
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, env.peer.hitsFor("/u/alice"))

	aggregates, err := env.db.ReadSiteAggregates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), aggregates.Persons)
}

func TestResolveDetectsReferenceCycles(t *testing.T) {
	env := newTestEnv(t)
	p := env.peer
	alice := p.person("alice")
	a := p.note("/comments/a", alice, p.url("/comments/b"), "a")
	p.note("/comments/b", alice, a, "b")

	b := NewBudget(8)
	_, err := env.resolver.Resolve(context.Background(), a, b)
	require.ErrorIs(t, err, ErrRecursionLimitExceeded)
	assert.GreaterOrEqual(t, b.Remaining(), 0)

	aggregates, err := env.db.ReadSiteAggregates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), aggregates.Comments)
	assert.Equal(t, int64(0), aggregates.Posts)
}

func TestResolveDetectsCyclesAcrossConcurrentDeliveries(t *testing.T) {
	env := newTestEnv(t)
	p := env.peer
	alice := p.person("alice")
	a := p.note("/comments/a", alice, p.url("/comments/b"), "a")
	b := p.note("/comments/b", alice, a, "b")

	_, err := env.resolver.ResolvePerson(context.Background(), alice, NewBudget(1))
	require.NoError(t, err)
	p.slowDown(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []string{a, b} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = env.resolver.ResolveComment(ctx, id, NewBudget(25))
		}(i, id)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 2*time.Second, "cyclic deliveries must not wait on each other")
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrRecursionLimitExceeded)
	}

	aggregates, err := env.db.ReadSiteAggregates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), aggregates.Comments)
}

func TestResolveStopsWhenBudgetIsSpent(t *testing.T) {
	env := newTestEnv(t)
	p := env.peer
	alice := p.person("alice")
	golang := p.group("golang")
	postID := p.page("/post/1", alice, golang, "title")
	commentID := p.note("/comments/1", alice, postID, "text")

	b := NewBudget(2)
	_, err := env.resolver.ResolveComment(context.Background(), commentID, b)
	require.ErrorIs(t, err, ErrRecursionLimitExceeded)
	assert.Equal(t, ClassResolution, Classify(err))
	assert.Equal(t, 0, b.Remaining())
	assert.Equal(t, 0, p.hitsFor("/post/1"))

	_, err = env.db.ReadCommentByApId(context.Background(), commentID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveRejectsForeignIds(t *testing.T) {
	env := newTestEnv(t)
	other := newPeer(t)

	doc := env.peer.actorDoc("Person", "/u/mallory", "mallory")
	doc["id"] = other.url("/u/mallory")
	env.peer.put("/u/mallory", doc)

	_, err := env.resolver.ResolvePerson(context.Background(), env.peer.url("/u/mallory"), NewBudget(5))
	assert.ErrorIs(t, err, ErrInvalidRemoteObject)
}

func TestResolveTypeMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	golang := env.peer.group("golang")

	_, err := env.resolver.ResolvePerson(ctx, golang, NewBudget(5))
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = env.resolver.ResolveCommunity(ctx, golang, NewBudget(5))
	require.NoError(t, err)

	// known locally now, still the wrong kind
	_, err = env.resolver.ResolvePerson(ctx, golang, NewBudget(5))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestResolveFetchFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.resolver.Resolve(ctx, env.peer.url("/u/nobody"), NewBudget(5))
	assert.ErrorIs(t, err, ErrFetchFailed)

	env.peer.put("/tombstone", map[string]any{"type": "Tombstone"})
	_, err = env.resolver.Resolve(ctx, env.peer.url("/tombstone"), NewBudget(5))
	assert.ErrorIs(t, err, ErrInvalidRemoteObject)

	_, err = env.resolver.Resolve(ctx, "https://"+localHost+"/u/ghost", NewBudget(5))
	assert.ErrorIs(t, err, ErrInstanceBlocked)
}

func TestResolveBlockedInstanceIsNeverFetched(t *testing.T) {
	env := newTestEnv(t)
	alice := env.peer.person("alice")
	env.resolver.policy.Blocked["127.0.0.1"] = true

	_, err := env.resolver.ResolvePerson(context.Background(), alice, NewBudget(5))
	assert.ErrorIs(t, err, ErrInstanceBlocked)
	assert.Equal(t, 0, env.peer.totalHits())
}

func TestRefetchUpdatesStaleActor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.peer.person("alice")

	person, err := env.resolver.ResolvePerson(ctx, alice, NewBudget(5))
	require.NoError(t, err)
	assert.Equal(t, "ALICE", person.DisplayName)

	doc := env.peer.actorDoc("Person", "/u/alice", "alice")
	doc["name"] = "Alice Liddell"
	env.peer.put("/u/alice", doc)

	env.resolver.refreshInterval = time.Nanosecond
	time.Sleep(time.Millisecond)
	refreshed, err := env.resolver.ResolvePerson(ctx, alice, NewBudget(5))
	require.NoError(t, err)
	assert.Equal(t, person.Id, refreshed.Id)
	assert.Equal(t, "Alice Liddell", refreshed.DisplayName)

	// an unreachable peer leaves the cached row in place
	env.peer.remove("/u/alice")
	time.Sleep(time.Millisecond)
	cached, err := env.resolver.ResolvePerson(ctx, alice, NewBudget(5))
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", cached.DisplayName)
}
