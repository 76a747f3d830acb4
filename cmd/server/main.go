package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"peermesh/internal/attributes"
	attrmetrics "peermesh/internal/attributes/metrics"
	attrservice "peermesh/internal/attributes/service"
	"peermesh/internal/events"
	"peermesh/internal/notifications"
	"peermesh/internal/platform/config"
	"peermesh/internal/platform/httpserver"
	"peermesh/internal/platform/logger"
	platformredis "peermesh/internal/platform/redis"
	"peermesh/internal/relationships"
	"peermesh/internal/requests"
	reqmetrics "peermesh/internal/requests/metrics"
	"peermesh/internal/requests/processors"
	reqservice "peermesh/internal/requests/service"
	httptransport "peermesh/internal/transport/http"
	"peermesh/pkg/domain"
)

// lateDispatcher breaks the attributes/notifications construction cycle.
type lateDispatcher struct {
	target attrservice.NotificationDispatcher
}

func (d *lateDispatcher) Dispatch(ctx context.Context, n *notifications.Notification) error {
	return d.target.Dispatch(ctx, n)
}

// logSender stands in for the transport collaborator: outbound
// notifications are logged until a mesh transport is wired.
type logSender struct {
	logger *slog.Logger
}

func (s logSender) Send(ctx context.Context, n *notifications.Notification) error {
	s.logger.InfoContext(ctx, "outbound notification",
		"notification_id", n.ID.String(), "peer", n.Peer.String(), "items", len(n.Items))
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	address, err := domain.ParseAddress(cfg.Address)
	if err != nil {
		return fmt.Errorf("PEERMESH_ADDRESS: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: postgres when configured, in-memory otherwise.
	var (
		attributeStore attributes.Store    = attributes.NewInMemoryStore()
		requestStore   requests.Store      = requests.NewInMemoryStore()
		queue          notifications.Queue = notifications.NewInMemoryQueue()
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		for _, schema := range []string{attributes.Schema, requests.Schema} {
			if _, err := db.ExecContext(ctx, schema); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		attributeStore = attributes.NewPostgresStore(db)
		requestStore = requests.NewPostgresStore(db)
	}
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		queue = notifications.NewRedisQueue(redisClient.Client)
	}

	// Events: bus drained by a worker into kafka or the log.
	bus := events.NewBus(256, log)
	var sink events.Sink = events.LogSink{Logger: log}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaSink(cfg.KafkaBrokers, "peermesh.events")
		if err != nil {
			return err
		}
		defer kafka.Close()
		sink = kafka
	}

	dispatcher := &lateDispatcher{}
	attrs := attrservice.NewService(address, attributeStore, dispatcher, bus, attrmetrics.New(), log)
	relationshipService := relationships.NewService(relationships.NewInMemoryStore(), log)
	notificationService := notifications.NewService(logSender{logger: log}, queue,
		relationshipService, attrs, bus, log)
	dispatcher.target = notificationService
	relationshipService.AddListener(notificationService)

	outgoing, incoming := reqservice.NewControllers(address, requestStore,
		processors.NewRegistry(attrs), bus, reqmetrics.New(), log)

	handler := httptransport.NewHandler(attrs, outgoing, incoming,
		notificationService, relationshipService, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := events.NewWorker(bus.Inbox(), sink, log).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		log.Info("starting peermesh", "addr", cfg.Addr, "address", address.String())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
