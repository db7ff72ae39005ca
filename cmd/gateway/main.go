package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"exchange/internal/application"
	"exchange/internal/config"
	"exchange/internal/domain"
	"exchange/internal/infrastructure/broadcast"
	"exchange/internal/infrastructure/dhan"
	"exchange/internal/infrastructure/quotecache"
	"exchange/internal/infrastructure/tradesvc"
	infrahttp "exchange/internal/interfaces/http"
	"exchange/internal/matching"
	"exchange/internal/pubsub"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var batcher *broadcast.QuoteBatcher
	if cfg.RabbitMQ.URL != "" {
		amqpConn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer amqpConn.Close()

		publisher, err := broadcast.NewPublisher(amqpConn, cfg.RabbitMQ.TicksExchange, logger)
		if err != nil {
			logger.Fatalf("failed to init tick publisher: %v", err)
		}
		defer publisher.Close()

		batcher = broadcast.NewQuoteBatcher(broadcast.BatchConfig{
			Size:    cfg.RabbitMQ.BatchSize,
			Timeout: time.Duration(cfg.RabbitMQ.BatchTimeoutMS) * time.Millisecond,
		}, publisher.PublishBatch, logger)
		batcher.Run(ctx)
		defer func() {
			if err := batcher.Stop(context.Background()); err != nil {
				logger.Errorf("tick batch drain failed: %v", err)
			}
		}()
	}

	tradeClient, err := tradesvc.NewClient(cfg.TradeService.BaseURL, time.Duration(cfg.TradeService.TimeoutSeconds)*time.Second, logger)
	if err != nil {
		logger.Fatalf("failed to init trade service client: %v", err)
	}

	engine := matching.NewEngine(tradeClient, logger, cfg.Matching.QueueSize)
	defer engine.Stop()

	events := pubsub.NewSubject[dhan.FeedEvent]()
	adapter, err := dhan.NewAdapter(dhan.Config{
		Active:             cfg.Dhan.Active,
		FeedURL:            cfg.Dhan.FeedURL,
		QuoteURL:           cfg.Dhan.QuoteURL,
		APICredentials:     cfg.Dhan.APICredentials,
		AllowedConnections: cfg.Dhan.AllowedConnections,
		EncryptionKey:      cfg.Dhan.EncryptionKey,
		HeartbeatInterval:  time.Duration(cfg.Dhan.HeartbeatSeconds) * time.Second,
	}, events, logger)
	if err != nil {
		logger.Fatalf("failed to init dhan adapter: %v", err)
	}
	defer adapter.Shutdown()

	var cache *quotecache.Cache
	if redisClient != nil {
		cache = quotecache.NewCache(redisClient, time.Duration(cfg.Cache.TTLSeconds)*time.Second, logger)
	}

	events.Subscribe(func(event dhan.FeedEvent) {
		if event.Kind != dhan.EventQuote {
			return
		}
		engine.OnPriceUpdate(event.Quote.InstrumentID, event.Quote)
		if cache != nil {
			cache.Store(event.Quote)
		}
		if batcher != nil {
			if err := batcher.Add(event.Quote); err != nil {
				logger.Warnf("tick broadcast dropped: %v", err)
			}
		}
	})

	adapters := map[string]domain.ExchangePort{"dhan": adapter}
	facade := application.NewExchangeFacade(cfg.Vendor, adapters, engine, logger)
	if err := facade.Initialize(ctx); err != nil {
		logger.Fatalf("failed to initialize exchange facade: %v", err)
	}

	handler := infrahttp.NewHandler(facade, adapter.Pool())

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down gateway")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("gateway error: %v", err)
	}
	logger.Info("gateway stopped")
}
