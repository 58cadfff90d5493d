// Command pytrain-client is a thin remote-control process: it keeps a
// single reconnecting TCP connection to a pytrain-server control plane,
// forwards typed commands into it, and decodes whatever the server
// broadcasts back (spec §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pytrain/pytrain/internal/config"
	"github.com/pytrain/pytrain/internal/control"
	"github.com/pytrain/pytrain/internal/dispatch"
	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/state"
	"github.com/pytrain/pytrain/internal/telemetry"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

var version = "0.1.0"

const (
	dispatchQueueDepth = 64
	keepAliveInterval  = 10 * time.Second
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	listenPort := flag.Int("listen-port", 0, "port this client announces in its REGISTER frame")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pytrain-client %s\n", version)
		os.Exit(0)
	}

	if err := log.Configure(log.Config{Level: "info", Role: "client", Version: version}); err != nil {
		fmt.Fprintf(os.Stderr, "pytrain-client: %v\n", err)
		os.Exit(1)
	}
	logger := log.Logger().With().Str(log.FieldComponent, "main").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := log.Configure(log.Config{Level: cfg.LogLevel, Role: "client", Version: version}); err != nil {
		logger.Fatal().Err(err).Msg("failed to reconfigure logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled: false, ServiceName: "pytrain-client", Version: version, SamplingRate: 1.0,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init telemetry")
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	if err := run(ctx, cfg, *listenPort); err != nil {
		logger.Fatal().Err(err).Msg("pytrain-client exited with error")
	}
}

func run(ctx context.Context, cfg config.AppConfig, listenPort int) error {
	logger := log.Logger().With().Str(log.FieldComponent, "main").Logger()

	cat := catalog.NewDefault()
	dispatcher := dispatch.New(dispatchQueueDepth)
	listener := dispatch.NewListener(cat, dispatcher)

	// The client maintains its own in-memory mirror of every state the
	// server broadcasts (spec §1); it never owns a physical link, so it
	// has no hydration requests of its own to issue.
	store := state.New(nil)
	dispatcher.SubscribeAny(func(ctx context.Context, req *request.CommandRequest) {
		store.Apply(req)
	})

	client := control.NewClient(cfg.ClientServerAddr, listenPort, listener)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { dispatcher.Run(gCtx); return nil })
	g.Go(func() error { listener.Run(gCtx); return nil })
	g.Go(func() error { client.Run(gCtx); return nil })
	g.Go(func() error { client.RunKeepAlive(gCtx, keepAliveInterval); return nil })

	logger.Info().Str("server", cfg.ClientServerAddr).Msg("pytrain-client connecting")

	return g.Wait()
}
