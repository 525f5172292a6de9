package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hydro-events/common/database"
	"hydro-events/common/logger"
	commonmqtt "hydro-events/common/mqtt"
	commonredis "hydro-events/common/redis"
	"hydro-events/internal/config"
	"hydro-events/internal/consumer"
	"hydro-events/internal/events"
	httpapi "hydro-events/internal/http"
	"hydro-events/internal/notifier"
	"hydro-events/internal/repository"
	"hydro-events/internal/sequencer"
	"hydro-events/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg := config.Load()

	// 2. 初始化日志
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "hydro-events")
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting hydro-events service",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("sequencer_backend", cfg.Sequencer.Backend),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
	)

	// 3. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	zapLogger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	// 4. 连接 Redis
	redisClient := commonredis.NewRedisClient(&cfg.Redis)
	defer commonredis.Close(redisClient)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := commonredis.Ping(ctx, redisClient); err != nil {
			cancel()
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		cancel()
	}
	zapLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5. 初始化仓库
	zoneEventsRepo := repository.NewPostgresZoneEventsRepository(db, zapLogger)
	commandsRepo := repository.NewPostgresCommandsRepository(db, zapLogger)
	telemetryRepo := repository.NewPostgresTelemetryRepository(db, zapLogger)
	alertsRepo := repository.NewPostgresAlertsRepository(db, zapLogger)
	nodesRepo := repository.NewPostgresNodesRepository(db, zapLogger)

	// 6. 初始化事件定序器
	var seq sequencer.Sequencer
	if cfg.Sequencer.Backend == "memory" {
		zapLogger.Warn("Using in-memory sequencer, do not run multiple instances")
		seq = sequencer.NewMemorySequencer()
	} else {
		seq = sequencer.NewPostgresSequencer(db)
	}

	// 7. 初始化发射器（遥测台账过滤器状态放 Redis，多实例共享）
	recordStore := events.NewRedisRecordStateStore(redisClient)
	filter := events.NewTelemetryFilter(recordStore, nil, zapLogger)
	emitter := events.NewEmitter(seq, redisClient, zoneEventsRepo, filter, zapLogger)

	// 8. 初始化服务
	metrics := service.NewRedisCommandMetrics(redisClient)
	commandSvc := service.NewCommandService(commandsRepo, emitter, metrics, zapLogger)
	telemetrySvc := service.NewTelemetryService(telemetryRepo, nodesRepo, emitter, zapLogger)

	var alertNotifier service.AlertNotifier
	if cfg.AlertWebhookURL != "" {
		alertNotifier = notifier.NewWebhookNotifier(cfg.AlertWebhookURL, zapLogger)
		zapLogger.Info("Alert webhook enabled", zap.String("url", cfg.AlertWebhookURL))
	}
	alertSvc := service.NewAlertService(alertsRepo, emitter, alertNotifier, zapLogger)
	cycleSvc := service.NewCycleService(emitter, zapLogger)
	snapshotSvc := service.NewSnapshotService(seq, telemetryRepo, alertsRepo, commandsRepo, nodesRepo, zoneEventsRepo, zapLogger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 9. 启动命令超时清扫 worker
	if cfg.Sweeper.Enabled {
		sweeper := service.NewTimeoutSweeper(db, commandsRepo, commandSvc, cfg.Sweeper.Interval, cfg.Sweeper.Timeout, zapLogger)
		go sweeper.Run(rootCtx)
	}

	// 10. 启动台账保留清理 worker
	if cfg.Retention.Enabled {
		go runRetentionLoop(rootCtx, zoneEventsRepo, cfg.Retention.MaxAge, zapLogger)
	}

	// 11. 启动 MQTT 遥测消费者（可选）
	var mqttClient *commonmqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = commonmqtt.NewClient(&cfg.MQTT.MQTTConfig)
		if err != nil {
			zapLogger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer mqttClient.Disconnect()

		telemetryConsumer := consumer.NewTelemetryConsumer(cfg, mqttClient, telemetrySvc, zapLogger)
		go func() {
			if err := telemetryConsumer.Start(rootCtx); err != nil {
				zapLogger.Error("Telemetry consumer exited", zap.Error(err))
			}
		}()
		defer telemetryConsumer.Stop(context.Background())
	}

	// 12. 注册 HTTP 路由
	router := httpapi.NewRouter(zapLogger)
	router.RegisterZoneRoutes(httpapi.NewZoneHandler(snapshotSvc, telemetrySvc, commandSvc, alertSvc, cycleSvc, zapLogger))
	router.RegisterCommandRoutes(httpapi.NewCommandHandler(commandSvc, zapLogger))
	router.RegisterAlertRoutes(httpapi.NewAlertHandler(alertSvc, zapLogger))

	doctor := httpapi.NewDoctorHandler(db, redisClient, emitter, zapLogger)
	doctor.EnablePprof(cfg.PprofEnabled)
	router.RegisterDoctorRoutes(doctor)

	// 13. 启动 HTTP 服务
	server := service.NewServer(cfg.HTTP.Addr, router, zapLogger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 14. 等待退出信号，优雅停止
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Failed to stop HTTP server gracefully", zap.Error(err))
	}

	zapLogger.Info("hydro-events service stopped")
}

// runRetentionLoop 周期性清理超出保留期的台账行
func runRetentionLoop(ctx context.Context, repo repository.ZoneEventsRepository, maxAge time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	logger.Info("Ledger retention worker started", zap.Duration("max_age", maxAge))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Ledger retention worker stopped")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-maxAge)
			purged, err := repo.PurgeBefore(ctx, cutoff)
			if err != nil {
				logger.Error("Failed to purge old ledger rows", zap.Error(err))
				continue
			}
			if purged > 0 {
				logger.Info("Purged old ledger rows",
					zap.Int64("rows", purged),
					zap.Time("cutoff", cutoff),
				)
			}
		}
	}
}
