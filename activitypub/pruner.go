package activitypub

import (
	"context"
	"log"
	"time"
)

const pruneInterval = time.Hour

// StartLedgerPruner starts a background worker that forgets received
// activities older than retention. Redeliveries that old are not expected;
// their handlers stay idempotent regardless.
func StartLedgerPruner(ctx context.Context, store Store, retention time.Duration) {
	if retention <= 0 {
		log.Println("Ledger pruning disabled")
		return
	}
	log.Printf("Starting activity ledger pruner (retention %s)...", retention)

	ticker := time.NewTicker(pruneInterval)
	go func() {
		defer ticker.Stop()
		for {
			pruneLedger(ctx, store, retention)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func pruneLedger(ctx context.Context, store Store, retention time.Duration) {
	n, err := store.DeleteActivitiesBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("LedgerPruner: Failed to prune activities: %v", err)
		}
		return
	}
	if n > 0 {
		log.Printf("LedgerPruner: Removed %d activities older than %s", n, retention)
	}
}
