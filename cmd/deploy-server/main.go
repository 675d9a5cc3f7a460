package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"app-deployment-service/internal/deploy-server/api"
	"app-deployment-service/internal/deploy-server/config"
	"app-deployment-service/internal/deploy-server/generation"
	dsKafka "app-deployment-service/internal/deploy-server/kafka"
	"app-deployment-service/internal/deploy-server/notify"
	"app-deployment-service/internal/deploy-server/pipeline"
	"app-deployment-service/internal/deploy-server/publisher"
	"app-deployment-service/internal/deploy-server/scanner"
	"app-deployment-service/internal/deploy-server/services"
	"app-deployment-service/internal/deploy-server/store"
	gorm_db "app-deployment-service/pkg/db"
)

func main() {
	stdlog.Println("App Deployment Service starting...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		stdlog.Printf("Configuration error: %v", err)
		stdlog.Println("Please set up your environment based on .env.example")
	} else {
		stdlog.Println("Configuration validated successfully")
	}

	gormDB, err := gorm_db.NewGormDB()
	if err != nil {
		stdlog.Fatalf("Failed to initialize database: %v", err)
	}
	stdlog.Println("Database initialized successfully.")

	taskStore := store.NewStore(gormDB)
	if err := taskStore.Migrate(); err != nil {
		stdlog.Fatalf("Failed to migrate database: %v", err)
	}
	stdlog.Println("Database migration successful.")

	eventEmitter := dsKafka.NewEmitter(cfg.KafkaBrokers, cfg.EventTopic)

	generator, err := generation.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.GeneratedDir)
	if err != nil {
		stdlog.Fatalf("Failed to create generator: %v", err)
	}
	githubPublisher, err := publisher.New(cfg.GitHubAPIURL, cfg.GitHubToken, cfg.GitHubUsername)
	if err != nil {
		stdlog.Fatalf("Failed to create publisher: %v", err)
	}
	notifier, err := notify.New(cfg.RetryDelays)
	if err != nil {
		stdlog.Fatalf("Failed to create notifier: %v", err)
	}

	runner := &pipeline.Runner{
		Store:          taskStore,
		Generator:      generator,
		Scanner:        scanner.New(),
		Publisher:      githubPublisher,
		Notifier:       notifier,
		Events:         eventEmitter,
		AttachmentsDir: cfg.AttachmentsDir,
		Timeout:        cfg.PipelineTimeout,
		Margin:         cfg.TimeoutMargin,
	}

	watchdog, err := services.NewWatchdogService(taskStore, cfg.PipelineTimeout)
	if err != nil {
		stdlog.Fatalf("Failed to create watchdog service: %v", err)
	}
	if err := watchdog.Start(); err != nil {
		stdlog.Fatalf("Failed to start watchdog service: %v", err)
	}

	hlog.SetOutput(os.Stdout)
	hlog.SetLevel(hlog.LevelInfo)

	h := server.Default(server.WithHostPorts(cfg.ServerAddr), server.WithExitWaitTime(5*time.Second))

	taskHandler := api.NewTaskHandler(taskStore, runner, eventEmitter, cfg.StudentSecret)

	h.POST("/request", taskHandler.HandleRequest)
	h.GET("/status/:task", taskHandler.GetStatus)

	h.GET("/", func(c context.Context, ctxReq *app.RequestContext) {
		ctxReq.JSON(http.StatusOK, utils.H{
			"status":  "running",
			"service": "App Deployment API",
			"version": "1.0.0",
		})
	})
	h.GET("/ping", func(c context.Context, ctxReq *app.RequestContext) {
		ctxReq.JSON(http.StatusOK, utils.H{"message": "pong"})
	})

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signals
		hlog.Infof("Received signal: %s. Initiating graceful shutdown...", sig)

		shutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer httpShutdownCancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			hlog.Errorf("Hertz server shutdown error: %v", err)
		} else {
			hlog.Info("Hertz server gracefully stopped.")
		}

		watchdog.Stop()

		if err := eventEmitter.Close(); err != nil {
			hlog.Errorf("Event emitter close error: %v", err)
		} else {
			hlog.Info("Event emitter closed.")
		}
		hlog.Info("App Deployment Service gracefully shut down.")
	}()

	hlog.Infof("App Deployment Service fully initialized and starting Hertz server on %s...", cfg.ServerAddr)
	h.Spin()

	stdlog.Println("App Deployment Service has been shut down.")
}
