// Copyright 2024-2026 Aiku AI

// Command bridgekit-demo runs the bridge framework against a built-in echo
// network: one actor, one room, every bridged message echoed back. It is
// the smallest complete deployment and doubles as an integration smoke
// test against a real homeserver.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exzerolog"
	flag "maunium.net/go/mauflag"

	"github.com/aiku/bridgekit/pkg/asapi"
	"github.com/aiku/bridgekit/pkg/bridge"
	"github.com/aiku/bridgekit/pkg/matrix"
	"github.com/aiku/bridgekit/pkg/memstore"
)

var configPath = flag.MakeFull("c", "config", "Path to the config file", "config.yaml").String()
var wantHelp, _ = flag.MakeHelpFlag()

func main() {
	flag.SetHelpTitles("bridgekit-demo - echo bridge for the bridgekit framework", "bridgekit-demo [-c config.yaml]")
	if err := flag.Parse(); err != nil {
		flag.PrintHelp()
		os.Exit(2)
	}
	if *wantHelp {
		flag.PrintHelp()
		return
	}

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	exzerolog.SetupDefaults(&log)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	as, err := matrix.NewAppService(cfg.AppService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up appservice")
	}
	client := matrix.NewClient(as, log)

	actors := memstore.NewActorStore[echoActorID]()
	actors.Add(echoActor, memstore.WithLocalUser(cfg.Owner))
	repos := memstore.NewRepositorySet[echoActorID, echoUserID, echoRoomID, echoMessageID](actors)

	worker, err := bridge.NewAppServiceWorker(bridge.WorkerOptions[echoActorID, echoUserID, echoRoomID, echoMessageID]{
		Config:       &cfg.Bridge,
		Client:       client,
		Repositories: repos,
		Factory:      newEchoWorker(cfg.Owner, log),
		Logger:       log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.EnsureBotRegistered(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to register bridge bot")
	}

	server := asapi.NewServer(as.Registration, worker, log)
	go func() {
		if err := server.ListenAndServe(ctx, cfg.Listen); err != nil {
			log.Fatal().Err(err).Str("listen", cfg.Listen).Msg("Appservice API server failed")
		}
	}()
	log.Info().Str("listen", cfg.Listen).Msg("Bridge running")

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Worker stopped unexpectedly")
	}
	log.Info().Msg("Shutting down")
}
