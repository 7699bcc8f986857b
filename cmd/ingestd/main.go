// Package main starts the telemetry ingest daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chipmonitor/ingest/internal/bus"
	"github.com/chipmonitor/ingest/internal/config"
	"github.com/chipmonitor/ingest/internal/decoder"
	"github.com/chipmonitor/ingest/internal/event"
	"github.com/chipmonitor/ingest/internal/log"
	"github.com/chipmonitor/ingest/internal/mqtt"
	"github.com/chipmonitor/ingest/internal/postgres"
	"github.com/chipmonitor/ingest/internal/redis"
	"github.com/chipmonitor/ingest/internal/scheduler"
)

// services holds everything that needs an ordered shutdown.
type services struct {
	sched      *scheduler.Scheduler
	eventBus   *bus.Bus
	redisCli   *redis.Client
	buffer     *redis.Buffer
	store      *postgres.Store
	persist    *postgres.Service
	mqttClient *mqtt.Client
}

func run() int {
	logger := log.New()
	logger.Info("Starting telemetry ingest daemon")

	cfg, err := loadAndLogConfig(logger)
	if err != nil {
		return 1
	}

	svc, err := initializeServices(cfg, logger)
	if err != nil {
		return 1
	}

	return runMainLoop(svc, cfg, logger)
}

func loadAndLogConfig(logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	logger.Info("Configuration loaded successfully")
	logger.Info("MQTT: %s, Topics: %v", cfg.MQTT.Broker, cfg.MQTT.Topics)
	logger.Info("Redis: %s db=%d", cfg.Redis.Address, cfg.Redis.DB)
	logger.Info("Postgres: %s:%d/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Database)
	return cfg, nil
}

func initializeServices(cfg *config.Config, logger *log.Logger) (*services, error) {
	eventBus := bus.New(logger)
	sched := scheduler.New(cfg.Scheduler.Workers, cfg.Scheduler.RecentHistory, logger)

	redisCli, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to create Redis client: %v", err)
	}

	buffer := redis.NewBuffer(redisCli, logger)
	buffer.Start(cfg.Pipeline.BufferFlushInterval)
	attachBuffer(eventBus, sched, buffer, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Postgres.ConnectTimeout)
	defer cancel()

	store, err := postgres.NewStore(ctx, &cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("Failed to create Postgres store: %v", err)
	}
	if err := store.InitSchema(ctx); err != nil {
		logger.Fatal("Failed to initialize schema: %v", err)
	}

	persist := postgres.NewService(store, eventBus, sched, logger)
	persist.Start(cfg.Pipeline.PersistFlushInterval)

	router := decoder.NewRouter(sched, eventBus, logger)

	mqttClient, err := mqtt.NewClient(&cfg.MQTT, router, eventBus, logger)
	if err != nil {
		logger.Fatal("Failed to create MQTT client: %v", err)
	}
	if err := mqttClient.Subscribe(); err != nil {
		logger.Fatal("Failed to subscribe: %v", err)
	}

	return &services{
		sched:      sched,
		eventBus:   eventBus,
		redisCli:   redisCli,
		buffer:     buffer,
		store:      store,
		persist:    persist,
		mqttClient: mqttClient,
	}, nil
}

// attachBuffer subscribes the durable buffer to every channel. The bus
// handler only submits a scheduler task, so publishing never waits on Redis.
func attachBuffer(eventBus *bus.Bus, sched *scheduler.Scheduler, buffer *redis.Buffer, logger *log.Logger) {
	for _, ch := range event.Channels() {
		msgCh := ch
		_, ok := eventBus.Subscribe(msgCh, "redis_buffer", func(msg event.Message) {
			sched.Submit(scheduler.CategoryData, scheduler.PriorityNormal, func() (any, error) {
				buffer.Buffer(msg)
				return nil, nil
			})
		})
		if !ok {
			logger.Error("Buffer subscription failed on %s", msgCh)
		}
	}
}

// closeServices shuts everything down ingress-first so nothing new arrives
// while the queues drain.
func closeServices(svc *services, cfg *config.Config, logger *log.Logger) {
	if err := svc.mqttClient.Close(); err != nil {
		logger.Error("Error closing MQTT client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer cancel()
	if err := svc.sched.Shutdown(ctx); err != nil {
		logger.Error("Scheduler shutdown: %v", err)
	}

	svc.persist.Stop()
	svc.buffer.Close()

	if err := svc.redisCli.Close(); err != nil {
		logger.Error("Error closing Redis client: %v", err)
	}
	svc.store.Close()
}

func runMainLoop(svc *services, cfg *config.Config, logger *log.Logger) int {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	stopStats := make(chan struct{})
	go statsLoop(svc, cfg.Scheduler.StatsInterval, stopStats, logger)

	logger.Info("Pipeline running")

	sig := <-sigChan
	logger.Info("Received signal %v, initiating graceful shutdown", sig)
	close(stopStats)

	done := make(chan struct{})
	go func() {
		closeServices(svc, cfg, logger)
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown completed")
		return 0
	case <-time.After(cfg.Pipeline.ShutdownTimeout + 5*time.Second):
		logger.Error("Shutdown timeout exceeded")
		return 1
	}
}

// statsLoop logs a periodic health line per tier.
func statsLoop(svc *services, interval time.Duration, stop <-chan struct{}, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m := svc.sched.Metrics()
			mq := svc.mqttClient.GetStats()
			buf := svc.buffer.GetStats()
			db := svc.persist.GetStats()
			logger.Info("stats mqtt: recv=%d bytes=%d connected=%v",
				mq.MessagesReceived, mq.BytesReceived, mq.Connected)
			logger.Info("stats scheduler: submitted=%d completed=%d failed=%d queued=%d",
				m.TotalSubmitted, m.TotalCompleted, m.TotalFailed, svc.sched.QueueSize())
			logger.Info("stats buffer: buffered=%d flushes=%d dropped=%d skipped=%d connected=%v",
				buf.Buffered, buf.Flushes, buf.Dropped, buf.Skipped, buf.Connected)
			logger.Info("stats persistence: received=%d persisted=%d errors=%d",
				db.Received, db.Persisted, db.Errors)
		}
	}
}

func main() {
	// Keep main minimal so defers in run() execute correctly.
	os.Exit(run())
}
