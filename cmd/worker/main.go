package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vmforge/vmforge/internal/bridge"
	"github.com/vmforge/vmforge/internal/config"
	"github.com/vmforge/vmforge/internal/storage/postgres"
	"github.com/vmforge/vmforge/internal/worker"
)

func main() {
	log.Println("Starting Worker...")

	ctx := context.Background()

	workerCfg, err := config.LoadWorkerConfig(ctx)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	bridgeCfg, err := config.LoadBridgeConfig(ctx)
	if err != nil {
		log.Fatal("Failed to load bridge config:", err)
	}

	if err := config.ValidateWorkerBridge(workerCfg, bridgeCfg); err != nil {
		log.Fatal("Invalid config:", err)
	}

	// A missing bridge script means nothing can ever execute; abort now
	// rather than failing every task.
	exec, err := bridge.NewExecutor(bridgeCfg)
	if err != nil {
		log.Fatal("Bridge unavailable:", err)
	}

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		log.Fatal("Failed to load db config:", err)
	}

	db, err := postgres.ConnectDB(dbCfg)
	if err != nil {
		log.Fatal("Connection failed:", err)
	}

	log.Println("SUCCESS! Database connected")

	tasks := postgres.NewTaskRepository(db)
	instances := postgres.NewInstanceRepository(db)

	w := worker.New(tasks, instances, exec, workerCfg)
	j := worker.NewJanitor(tasks, workerCfg)

	w.Start(ctx)
	j.Start(ctx)
	log.Println("Worker active. Press Ctrl+C to stop.")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	w.Stop()
	j.Stop()
	log.Println("Shutdown complete.")
}
