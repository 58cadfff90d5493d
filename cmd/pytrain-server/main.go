// Command pytrain-server is the process that owns the physical Base 3
// link (serial and/or TCP), mirrors its state into the component store,
// runs the startup synchronizer, and serves the TCP control plane plus
// the admin/observability HTTP surface (spec §5, §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pytrain/pytrain/internal/commbuffer"
	"github.com/pytrain/pytrain/internal/config"
	"github.com/pytrain/pytrain/internal/control"
	adminhttp "github.com/pytrain/pytrain/internal/control/http"
	"github.com/pytrain/pytrain/internal/dispatch"
	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/pdi"
	"github.com/pytrain/pytrain/internal/pdi/devicestore"
	"github.com/pytrain/pytrain/internal/state"
	syncer "github.com/pytrain/pytrain/internal/sync"
	"github.com/pytrain/pytrain/internal/telemetry"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
	"github.com/pytrain/pytrain/internal/tmcc/request"
	"github.com/pytrain/pytrain/internal/transport/serialport"
)

var (
	version = "0.1.0"
	commit  = "none"
)

// dispatchQueueDepth sizes the dispatcher's inbound channel; large
// enough to absorb a burst from the startup BASE_MEMORY/D4 walk without
// blocking the listener goroutine.
const dispatchQueueDepth = 256

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pytrain-server %s (commit %s)\n", version, commit)
		os.Exit(0)
	}

	if err := log.Configure(log.Config{Level: "info", Role: "server", Version: version}); err != nil {
		fmt.Fprintf(os.Stderr, "pytrain-server: %v\n", err)
		os.Exit(1)
	}
	logger := log.Logger().With().Str(log.FieldComponent, "main").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := log.Configure(log.Config{Level: cfg.LogLevel, Role: "server", Version: version}); err != nil {
		logger.Fatal().Err(err).Msg("failed to reconfigure logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled: false, ServiceName: "pytrain-server", Version: version, SamplingRate: 1.0,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init telemetry")
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("pytrain-server exited with error")
	}
}

func run(ctx context.Context, cfg config.AppConfig) error {
	logger := log.Logger().With().Str(log.FieldComponent, "main").Logger()

	cat := catalog.NewDefault()
	dispatcher := dispatch.New(dispatchQueueDepth)
	listener := dispatch.NewListener(cat, dispatcher)

	sinks := make([]commbuffer.Sink, 0, 2)
	minInterval := map[string]time.Duration{}

	baseConn := control.NewBaseConn(fmt.Sprintf("%s:%d", cfg.BaseHost, cfg.BasePort))
	sinks = append(sinks, baseConn)
	minInterval[baseConn.Name()] = cfg.TCPInterval

	var serial *serialport.Port
	if cfg.SerialEnabled {
		p, err := serialport.Open(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			return fmt.Errorf("open serial port: %w", err)
		}
		serial = p
		sinks = append(sinks, serial)
		minInterval[serial.Name()] = cfg.SerialInterval
		defer func() { _ = serial.Close() }()
	}

	buf := commbuffer.New(sinks, minInterval, cfg.KeepAliveIdle, cfg.KeepAliveInterval)
	send := func(frame []byte) { buf.Enqueue(frame, 0) }

	devices := devicestore.New()

	// synchronizer is assigned below, but the store needs a hydration
	// callback now; the closure defers the lookup until Hydrate is
	// actually called, by which point synchronizer is set.
	var synchronizer *syncer.Synchronizer
	store := state.New(func(req state.HydrationRequest) {
		if synchronizer != nil {
			synchronizer.Hydrate(req)
		}
	})
	synchronizer = syncer.New(store, devices, send)
	store.SetBothListenersAttached(cfg.SerialEnabled)

	// Every dispatched command updates the component-state mirror (spec
	// §4.6): the store is the dispatcher's "any" subscriber, alongside the
	// control server's client-forwarding subscriber.
	dispatcher.SubscribeAny(func(ctx context.Context, req *request.CommandRequest) {
		store.Apply(req)
	})

	listener.OnPDI(func(pkt *pdi.Packet) {
		if resp, err := pdi.DecodeBaseMemory(pkt); err == nil {
			synchronizer.HandleBaseMemory(ctx, resp)
			return
		}
		if resp, err := pdi.DecodeD4(pkt); err == nil {
			synchronizer.HandleD4(ctx, resp)
			return
		}
		if lcsReq, err := pdi.DecodeLCS(pkt); err == nil && lcsReq.Action == pdi.LCSRx {
			synchronizer.HandleLCSConfig(devicestore.Device{
				Type: lcsReq.Device, TmccID: lcsReq.TmccID, Mode: lcsReq.Mode, BaseAddr: lcsReq.BaseAddr,
			})
		}
	})

	var sessions commbuffer.SessionBackend
	if cfg.SessionRedisAddr != "" {
		redisSessions, err := commbuffer.NewRedisSessionRegistry(cfg.SessionRedisAddr, cfg.KeepAliveIdle)
		if err != nil {
			return fmt.Errorf("connect session redis %s: %w", cfg.SessionRedisAddr, err)
		}
		sessions = redisSessions
		defer func() { _ = redisSessions.Close() }()
	} else {
		sessions = commbuffer.NewSessionRegistry()
	}

	server, err := control.NewServer(cfg.ServerListenAddr, listener, dispatcher, sessions)
	if err != nil {
		return fmt.Errorf("start control server: %w", err)
	}
	defer func() { _ = server.Close() }()

	httpSrv := &http.Server{
		Addr:              cfg.ServerHTTPAddr,
		Handler:           adminhttp.New(store, sessions, cfg.HTTPRateLimitRPS).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { dispatcher.Run(gCtx); return nil })
	g.Go(func() error { listener.Run(gCtx); return nil })
	g.Go(func() error { buf.Run(gCtx); return nil })
	g.Go(func() error { baseConn.Run(gCtx, listener); return nil })
	if serial != nil {
		g.Go(func() error { return serial.Run(gCtx, listener) })
	}
	g.Go(func() error { server.Run(gCtx); return nil })
	g.Go(func() error { synchronizer.RunRetrySweep(gCtx); return nil })
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info().Str("addr", httpSrv.Addr).Msg("admin http listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	synchronizer.Start(gCtx)

	return g.Wait()
}
