package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/gops/agent"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/pagefinder/internal/server"
)

func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	dbPath := fs.String("db", a.cfg.DBPath, "Database file path")
	grpcPort := fs.Int("port", a.cfg.GRPCPort, "gRPC port")
	httpPort := fs.Int("http-port", a.cfg.HTTPPort, "HTTP API and metrics port")
	debugAgent := fs.Bool("gops", true, "Start the gops diagnostics agent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.cfg.DBPath = *dbPath

	a.log.LogServerStart(*grpcPort, *httpPort, a.cfg.DBPath)

	if *debugAgent {
		if err := agent.Listen(agent.Options{}); err != nil {
			a.log.Warn("gops agent failed to start").Err(err).Send()
		} else {
			defer agent.Close()
		}
	}

	engine, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	srv := server.NewServer(store, engine, a.log, a.cfg.DBPath, a.cfg.MinConfidence)
	if st, err := store.Stats(); err == nil {
		a.metrics.UpdateStoreStats(st.Documents, st.DigitalPages, st.OCRPages)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", *grpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(100*1024*1024),
		grpc.MaxSendMsgSize(100*1024*1024),
		grpc.UnaryInterceptor(server.GrpcMetricsInterceptor(a.metrics, a.log)),
	)
	server.RegisterTableSearchServer(grpcServer, srv)
	reflection.Register(grpcServer)

	httpServer := server.NewObservabilityServer(srv, a.metrics, a.log, server.HTTPConfig{
		Port:        *httpPort,
		GinMode:     a.cfg.GinMode,
		CORSOrigins: a.cfg.CORSOrigins,
	})

	scheduler, err := a.scheduleIngest(ctx)
	if err != nil {
		return err
	}
	if scheduler != nil {
		scheduler.StartAsync()
		defer scheduler.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.LogServerReady(*grpcPort)
		return grpcServer.Serve(lis)
	})
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		a.log.LogServerShutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// scheduleIngest re-ingests the configured location on an interval and
// refreshes the store gauges afterwards. It returns nil when no interval
// is configured.
func (a *app) scheduleIngest(ctx context.Context) (*gocron.Scheduler, error) {
	if a.cfg.IngestInterval <= 0 || a.cfg.IngestLocation == "" {
		return nil, nil
	}
	ing, done, err := a.newIngester()
	if err != nil {
		return nil, err
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err = s.Every(a.cfg.IngestInterval).Tag("ingest").Do(func() {
		report, err := ing.Run(ctx, a.cfg.IngestLocation)
		if err != nil {
			a.log.Error("Scheduled ingestion failed").Err(err).Send()
			return
		}
		a.log.Info("Scheduled ingestion finished").
			Str("run_id", report.RunID).
			Int("processed", report.Processed).
			Int("failed", report.Failed).
			Send()
		if st, err := a.store.Stats(); err == nil {
			a.metrics.UpdateStoreStats(st.Documents, st.DigitalPages, st.OCRPages)
		}
	})
	if err != nil {
		done()
		return nil, fmt.Errorf("schedule ingestion: %w", err)
	}
	a.closers = append(a.closers, done)
	a.log.Info("Ingestion scheduled").
		Str("location", a.cfg.IngestLocation).
		Dur("interval", a.cfg.IngestInterval).
		Send()
	return s, nil
}
