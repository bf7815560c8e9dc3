package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskmanager/internal/server"
	"taskmanager/internal/taskstore"
	db "taskmanager/repository/db"
	inmemory "taskmanager/repository/inmemory"
	"taskmanager/repository/sqlite"
)

type apiServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

func main() {
	log.Println("[INFO] Starting task service...")

	cfg, err := server.ReadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("[ERROR] Invalid configuration: %v", err)
	}

	userRepo, taskRepo, closeRepos, err := InitializeRepositories(cfg)
	if err != nil {
		log.Fatalf("[ERROR] Failed to open storage: %v", err)
	}
	defer closeRepos()

	api := server.NewTaskAPI(userRepo, taskRepo, cfg)
	if api == nil {
		log.Fatal("[ERROR] Failed to initialize API")
	}

	bootCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = api.EnsureAdmin(bootCtx)
	cancel()
	if err != nil {
		log.Printf("[ERROR] Failed to bootstrap admin: %v", err)
	}

	sigChan, serverErr := StartServer(api, cfg)

	select {
	case sig := <-sigChan:
		if err := HandleShutdown(api, sig); err != nil {
			log.Printf("[ERROR] Graceful shutdown failed: %v", err)
		} else {
			log.Println("[SUCCESS] Graceful shutdown completed")
		}
	case err := <-serverErr:
		log.Printf("[ERROR] Server failed: %v", err)
	}

	log.Println("[INFO] Task service stopped")
}

func RunMigrations(cfg *server.Config) error {
	if err := db.Migration(cfg.DBStr, cfg.MigratePath); err != nil {
		return err
	}
	log.Println("[SUCCESS] Migrations applied")
	return nil
}

// InitializeRepositories opens the configured backend. An unreachable
// Postgres falls back to the in-memory store; a broken SQLite file does not.
func InitializeRepositories(cfg *server.Config) (taskstore.UserRepository, taskstore.TaskRepository, func(), error) {
	switch cfg.Storage {
	case server.StorageMemory:
		log.Println("[INFO] Using in-memory storage")
		return memoryRepositories()
	case server.StorageSQLite:
		store, err := sqlite.NewStorage(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Println("[INFO] Using sqlite storage:", cfg.SQLitePath)
		return store, store, func() {
			if err := store.Close(); err != nil {
				log.Println("[WARN] Failed to close sqlite storage:", err)
			}
		}, nil
	}

	if err := RunMigrations(cfg); err != nil {
		log.Println("[WARN] Migrations failed, using in-memory storage:", err)
		return memoryRepositories()
	}
	store, err := db.NewStorage(cfg.DBStr)
	if err != nil {
		log.Println("[WARN] Could not connect to database, using in-memory storage:", err)
		return memoryRepositories()
	}
	return store, store, store.Close, nil
}

func memoryRepositories() (taskstore.UserRepository, taskstore.TaskRepository, func(), error) {
	inmem := inmemory.NewStorage()
	return inmem, inmem, func() {}, nil
}

func StartServer(api apiServer, cfg *server.Config) (chan os.Signal, chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Println("[INFO] Service listening on", cfg.ListenAddr())
		if err := api.Start(); err != nil {
			serverErr <- err
		}
	}()
	return sigChan, serverErr
}

func HandleShutdown(api apiServer, sig os.Signal) error {
	log.Printf("[INFO] Received signal %v, shutting down...", sig)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return api.Shutdown(ctx)
}
