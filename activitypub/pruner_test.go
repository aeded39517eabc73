package activitypub

import (
	"context"
	"testing"
	"time"

	"github.com/deemkeen/inboxd/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := &domain.Activity{
		ActivityURI:  "https://peer.example/activities/old",
		ActivityType: "Like",
		ActorURI:     "https://peer.example/u/alice",
		CreatedAt:    time.Now().Add(-48 * time.Hour),
	}
	recent := &domain.Activity{
		ActivityURI:  "https://peer.example/activities/recent",
		ActivityType: "Like",
		ActorURI:     "https://peer.example/u/alice",
	}
	for _, a := range []*domain.Activity{old, recent} {
		_, err := env.db.CreateActivity(ctx, a)
		require.NoError(t, err)
	}

	pruneLedger(ctx, env.db, 24*time.Hour)

	_, err := env.db.ReadActivityByURI(ctx, old.ActivityURI)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.db.ReadActivityByURI(ctx, recent.ActivityURI)
	assert.NoError(t, err)
}

func TestStartLedgerPrunerStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := env.db.CreateActivity(ctx, &domain.Activity{
		ActivityURI: "https://peer.example/activities/ancient",
		ActorURI:    "https://peer.example/u/alice",
		CreatedAt:   time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	StartLedgerPruner(ctx, env.db, time.Minute)
	require.Eventually(t, func() bool {
		_, err := env.db.ReadActivityByURI(context.Background(), "https://peer.example/activities/ancient")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
}
