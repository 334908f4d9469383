package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"textile-sync/config"
	"textile-sync/internal/api"
	"textile-sync/internal/classify"
	"textile-sync/internal/engine"
	"textile-sync/internal/gateway"
	"textile-sync/internal/models"
	"textile-sync/internal/realtime"
	"textile-sync/internal/session"
	"textile-sync/internal/store"
	"textile-sync/internal/uploads"
	"textile-sync/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting textile-sync engine")

	tp, err := util.InitTracer("textile-sync", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	gw, err := gateway.NewPostgres(cfg.Gateway.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to remote data service: %v", err)
	}
	defer gw.Close()
	log.Println("Remote gateway connected")

	// Session markers are the only state that survives the session. A
	// missing Redis degrades to process-local markers rather than failing
	// startup.
	var markers session.MarkerStore
	redisMarkers, err := session.NewRedisMarkers(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "textile-sync")
	if err != nil {
		log.Printf("Redis unavailable, using in-memory session markers: %v", err)
		markers = session.NewMemoryMarkers()
	} else {
		defer redisMarkers.Close()
		markers = redisMarkers
	}

	cache := store.New()

	// The resolver owns the Actor; the engine and upload pipeline read it
	// through this closure once the resolver exists.
	var resolver *session.Resolver
	currentActor := func() *models.Actor {
		if resolver == nil {
			return nil
		}
		return resolver.Actor()
	}

	eng := engine.New(gw, cache, currentActor, cfg.Timeouts.ProfileCommit, cfg.Timeouts.AssetCommit)
	eng.WithUploads(
		uploads.NewPipeline(uploads.NewHTTPStore(cfg.Storage.BaseURL), cfg.Storage.Bucket, cfg.Timeouts.Upload, currentActor),
		classify.NewSimulator(),
	)
	eng.WithPayments(engine.NewSimWidget())

	provider := session.NewStaticProvider(cfg.Identity.StaticUserID)
	resolver = session.NewResolver(provider, markers, gw, cache, eng.FetchAll, cfg.Timeouts.Bootstrap)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), cfg.Timeouts.Bootstrap+5*time.Second)
	actor := resolver.Bootstrap(bootCtx)
	bootCancel()
	if actor != nil {
		logger.Info("Session resolved",
			zap.String("actor_id", actor.ID),
			zap.String("role", actor.Role),
			zap.String("authenticity", actor.Authenticity))
	} else {
		logger.Info("Session resolved as anonymous")
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	changeConsumer := realtime.NewConsumer(cfg.Realtime.Brokers, cfg.Realtime.TopicChanges, cfg.Realtime.ConsumerGroup)
	changeWorker := realtime.NewWorker(changeConsumer, realtime.NewApplier(cache))
	go func() {
		if err := changeWorker.Start(workerCtx); err != nil {
			log.Printf("Change-feed worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(eng, resolver)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	changeWorker.Stop()

	log.Println("Server exited")
}
