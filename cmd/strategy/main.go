package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"dizzycode.xyz/strategy-engine/internal/application"
	"dizzycode.xyz/strategy-engine/internal/domain/strategy/strategies"
	"dizzycode.xyz/strategy-engine/internal/domain/value_objects"
	"dizzycode.xyz/strategy-engine/internal/infrastructure/api"
	"dizzycode.xyz/strategy-engine/internal/infrastructure/config"
	"dizzycode.xyz/strategy-engine/internal/infrastructure/logger"
	"dizzycode.xyz/strategy-engine/internal/infrastructure/marketdata"
	"dizzycode.xyz/strategy-engine/internal/infrastructure/messaging"
)

func main() {
	// 1. 載入配置
	cfg := config.Load()

	// 2. 創建 logger
	log := logger.Must(cfg)
	defer log.Sync()

	log.Info("Starting Strategy Engine", map[string]any{
		"environment":  cfg.Environment,
		"port":         cfg.Port,
		"grpcPort":     cfg.GRPCPort,
		"marketSource": cfg.MarketSource,
	})

	strategyConfigs, err := config.LoadStrategies(cfg.StrategiesFile)
	if err != nil {
		log.Error("Failed to load strategies", map[string]any{"error": err, "file": cfg.StrategiesFile})
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 創建 Redis 客戶端
	redisClient, err := messaging.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("Failed to connect to Redis", map[string]any{"error": err})
		os.Exit(1)
	}
	defer redisClient.Close()

	// 4. 訂單請求發布器（Redis，可選 RabbitMQ）
	var publisher application.OrderPublisher = messaging.NewRedisOrderPublisher(redisClient, log)
	if cfg.RabbitMQ.Enabled {
		rabbit, err := messaging.NewRabbitMQOrderPublisher(cfg.RabbitMQ, log)
		if err != nil {
			log.Error("Failed to connect to RabbitMQ", map[string]any{"error": err})
			os.Exit(1)
		}
		defer rabbit.Close()

		publisher = messaging.NewFanoutPublisher(publisher, func(err error) {
			log.Warn("Secondary order publish failed", map[string]any{"error": err})
		}, rabbit)
	}

	accounts := messaging.NewRedisAccountReader(redisClient, cfg.Account, log)
	dataReader := messaging.NewMarketDataReader(redisClient, log)
	candleSubscriber := messaging.NewCandleSubscriber(redisClient, log)
	eventSubscriber := messaging.NewOrderEventSubscriber(redisClient, log)

	grpcServer := api.NewGRPCServer(log)

	// 5. 每個交易對一個 StrategyService
	var (
		wg        sync.WaitGroup
		providers []api.StateProvider
	)

	for _, sc := range strategyConfigs {
		eng, err := strategies.New(sc.Name, sc.Params, log)
		if err != nil {
			log.Error("Failed to create strategy", map[string]any{"error": err, "strategy": sc.Name})
			os.Exit(1)
		}

		service, err := application.NewStrategyService(sc.InstID, eng, publisher, accounts, sc.HistoryLimit, log)
		if err != nil {
			log.Error("Failed to create strategy service", map[string]any{"error": err, "instId": sc.InstID})
			os.Exit(1)
		}

		// 預熱歷史K線
		history, err := dataReader.GetCandleHistories(ctx, sc.InstID, sc.Bar)
		if err != nil {
			log.Warn("Failed to load candle history", map[string]any{"error": err, "instId": sc.InstID})
		} else {
			service.Seed(history)
		}

		providers = append(providers, service)
		grpcServer.SetServing(sc.InstID, true)

		log.Info("Strategy service created", map[string]any{
			"strategy": sc.Name,
			"instId":   sc.InstID,
			"bar":      sc.Bar,
		})

		onCandle := func(candle value_objects.Candle) error {
			return service.HandleCandle(ctx, candle)
		}
		onEvent := func(event application.OrderEvent) error {
			return service.HandleOrderEvent(ctx, event)
		}

		run := func(name string, fn func() error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Subscription stopped", map[string]any{
						"subscription": name,
						"instId":       service.InstID(),
						"error":        err,
					})
					grpcServer.SetServing(service.InstID(), false)
				}
			}()
		}

		run("order-events", func() error {
			return eventSubscriber.Subscribe(ctx, sc.InstID, onEvent)
		})

		switch cfg.MarketSource {
		case config.MarketSourceOKX:
			feed := marketdata.NewOKXCandleFeed(marketdata.FeedConfig{
				URL:    cfg.OKXWSURL,
				InstID: sc.InstID,
				Bar:    sc.Bar,
			}, log)
			run("okx-candles", func() error { return feed.Run(ctx, onCandle) })
		default:
			run("redis-candles", func() error {
				return candleSubscriber.Subscribe(ctx, sc.InstID, sc.Bar, onCandle)
			})
		}
	}

	// 6. HTTP 狀態 API
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(api.NewHandler("strategy-engine", providers...)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", map[string]any{"address": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", map[string]any{"error": err})
			cancel()
		}
	}()

	// 7. gRPC 健康檢查
	go func() {
		if err := grpcServer.Start(cfg.GRPCPort); err != nil {
			log.Error("gRPC server failed", map[string]any{"error": err})
			cancel()
		}
	}()

	log.Info("Strategy Engine started successfully", map[string]any{
		"strategies": len(strategyConfigs),
	})

	// 8. 等待退出信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info("Shutting down Strategy Engine...")
	cancel() // Cancel context to stop subscriptions

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", map[string]any{"error": err})
	}
	grpcServer.GracefulStop()
	wg.Wait()

	for _, p := range providers {
		log.Info("Final strategy state", p.Snapshot())
	}
}
