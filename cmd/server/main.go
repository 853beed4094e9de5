// Killfeed - Real-Time Killmail Tracking and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Command server runs the Killfeed process: the killmail stream client,
// the decision pipeline, the tracking syncer, the notification dispatcher
// and the operational HTTP surface, all under one supervision tree.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/killfeed/internal/api"
	"github.com/tomtom215/killfeed/internal/config"
	"github.com/tomtom215/killfeed/internal/dedup"
	"github.com/tomtom215/killfeed/internal/enrich"
	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/notifier"
	"github.com/tomtom215/killfeed/internal/pipeline"
	"github.com/tomtom215/killfeed/internal/store"
	"github.com/tomtom215/killfeed/internal/stream"
	"github.com/tomtom215/killfeed/internal/supervisor"
	"github.com/tomtom215/killfeed/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	kv, err := openStore(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("failed to close store")
		}
	}()

	// Collaborators are injected at construction time; nothing looks
	// anything up by name at runtime.
	gate := dedup.NewGate(kv, cfg.Dedup.TTL)
	index := tracking.NewIndex(kv)

	var enricher pipeline.Enricher
	if cfg.Enrichment.BaseURL != "" {
		enricher = enrich.NewClient(cfg.Enrichment)
	}

	dispatcher := notifier.NewDispatcher(cfg.Notifier, notifier.StaticEntitlements(cfg.Notifier.RichEmbeds))
	orchestrator := pipeline.New(cfg.Pipeline, gate, index, enricher, dispatcher, cfg.Notifications.Enabled)
	client := stream.NewClient(cfg.Stream, orchestrator)
	server := api.NewServer(cfg.Server, client, orchestrator)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddIngestService(orchestrator)
	tree.AddIngestService(dispatcher)
	tree.AddIngestService(client)
	if cfg.Tracking.MapURL != "" {
		syncer := tracking.NewSyncer(cfg.Tracking, kv, client.UpdateSubscription)
		tree.AddIngestService(syncer)
	}
	tree.AddAPIService(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("killfeed starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervision tree exited")
		os.Exit(1)
	}
	logging.Info().Msg("killfeed stopped")
}

// openStore builds the configured store backend.
func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "badger":
		return store.OpenBadger(cfg.Path)
	default:
		return store.NewMemory(), nil
	}
}
