package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deemkeen/inboxd/activitypub"
	"github.com/deemkeen/inboxd/broadcast"
	"github.com/deemkeen/inboxd/db"
	"github.com/deemkeen/inboxd/util"
	"github.com/deemkeen/inboxd/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf); err != nil {
		log.Fatalln(err)
	}
	log.Println("Stopped")
}

func run(ctx context.Context, conf *util.AppConfig) error {
	database, err := db.Open(util.ResolvePath(conf.Conf.DatabasePath))
	if err != nil {
		return err
	}
	defer database.Close()

	log.Println("Running database migrations...")
	if err := database.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	log.Println("Database migrations complete")

	keypair, err := util.LoadOrCreateKeypair(util.ResolvePath(".keys", util.KeyFileName))
	if err != nil {
		return err
	}

	fetcher := activitypub.NewHTTPFetcher(conf.Federation.FetchTimeout, util.UserAgent(conf), conf.Federation.MaxFetchBytes)
	if conf.Federation.SignedFetch {
		key, err := activitypub.ParsePrivateKey(keypair.Private)
		if err != nil {
			return fmt.Errorf("instance key: %w", err)
		}
		fetcher.KeyId = web.InstanceKeyId(conf)
		fetcher.PrivateKey = key
	}

	policy := activitypub.NewInstancePolicy(conf)
	resolver := activitypub.NewResolver(database, fetcher, policy, conf.Federation.ActorRefreshInterval)
	verifier := activitypub.NewVerifier(resolver, policy, activitypub.NewHTTPSignatureVerifier(conf.Federation.SignatureMaxSkew))

	hub := broadcast.NewHub(broadcast.DefaultBufferSize)
	defer hub.Close()

	dispatcher := activitypub.NewDispatcher(database, resolver, verifier, hub, activitypub.OptionsFromConfig(conf))

	if conf.Federation.Enabled {
		activitypub.StartLedgerPruner(ctx, database, conf.Federation.LedgerRetention)
	}

	return web.Router(ctx, &web.Server{
		Conf:         conf,
		Store:        database,
		Inbox:        dispatcher,
		PublicKeyPem: keypair.Public,
	})
}
