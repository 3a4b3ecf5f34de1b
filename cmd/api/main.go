package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vmforge/vmforge/internal/config"
	"github.com/vmforge/vmforge/internal/instance"
	"github.com/vmforge/vmforge/internal/models"
	"github.com/vmforge/vmforge/internal/storage/postgres"
	"github.com/vmforge/vmforge/middleware"
)

func main() {
	log.Println("Starting API...")

	ctx := context.Background()

	apiCfg, err := config.LoadAPIConfig(ctx)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		log.Fatal("Failed to load db config:", err)
	}

	db, err := postgres.ConnectDB(dbCfg)
	if err != nil {
		log.Fatal("Connection failed:", err)
	}

	if err := postgres.MigrateModels(db,
		&models.User{}, &models.Instance{}, &models.Task{},
		&models.IPLease{}, &models.AuditLog{},
	); err != nil {
		log.Fatal("Migration failed:", err)
	}

	svc := instance.NewService(
		db,
		postgres.NewTaskRepository(db),
		postgres.NewInstanceRepository(db),
		postgres.NewUserRepository(db),
		postgres.NewAuditRepository(db),
		apiCfg,
	)
	handler := instance.NewHandler(svc)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.ErrorHandler())

	api := router.Group("/api", middleware.RequireUser())
	{
		api.POST("/instances", handler.Create)
		api.GET("/instances", handler.List)
		api.GET("/instances/:id", handler.Get)
		api.POST("/instances/:id/start", handler.Start)
		api.POST("/instances/:id/stop", handler.Stop)
		api.POST("/instances/:id/reboot", handler.Reboot)
		api.DELETE("/instances/:id", handler.Delete)
		api.POST("/instances/:id/snapshots", handler.CreateSnapshot)
		api.GET("/instances/:id/snapshots", handler.ListSnapshots)
		api.POST("/instances/:id/console", handler.Console)
		api.POST("/instances/:id/refresh", handler.RefreshStatus)
		api.GET("/tasks/:id", handler.GetTask)
	}

	srv := &http.Server{Addr: apiCfg.Addr, Handler: router}

	go func() {
		log.Printf("API listening on %s", apiCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed:", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Shutdown complete.")
}
