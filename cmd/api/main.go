// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"

	"property-delivery-api-server/config"
	"property-delivery-api-server/internal/api/middleware"
	"property-delivery-api-server/internal/api/routes"
	"property-delivery-api-server/internal/auth"
	"property-delivery-api-server/internal/blockchain"
	"property-delivery-api-server/internal/database"
	"property-delivery-api-server/internal/delivery"
	"property-delivery-api-server/internal/metrics"
	"property-delivery-api-server/internal/notify"
	"property-delivery-api-server/internal/outbox"
	"property-delivery-api-server/internal/pii"
	"property-delivery-api-server/internal/repository"
	"property-delivery-api-server/internal/repository/memory"
	"property-delivery-api-server/internal/repository/mongostore"
	"property-delivery-api-server/internal/s3"
	"property-delivery-api-server/internal/socket"
)

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero"

const shutdownTimeout = 15 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "property-delivery-api-server"
	app.Usage = "delivery tracking for managed properties"
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "./config",
			Usage: "directory holding config.yaml `DIR`",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP API and the outbox worker",
			Action: runServe,
		},
		{
			Name:   "seed",
			Usage:  "create the demo property and accounts in an empty database",
			Action: runSeed,
		},
	}
	app.Action = runServe

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%s: %v", app.Name, err)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.LoadConfig(c.GlobalString("config"))
	if err != nil {
		return cfg, fmt.Errorf("could not load config: %w", err)
	}
	return cfg, nil
}

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, func(), error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Println("Using in-memory storage, data is lost on exit")
		return memory.New(), func() {}, nil
	}

	store, err := mongostore.Connect(ctx, cfg.Mongo)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		store.Close(context.Background())
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(context.Background()); err != nil {
			log.Printf("Failed to disconnect from MongoDB: %v", err)
		}
	}, nil
}

func runSeed(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, release, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	return database.Seed(ctx, store, cfg.Seed)
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := context.Background()

	// 1. Storage
	store, release, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	if cfg.Seed.ManagerPassword != "" {
		if err := database.Seed(ctx, store, cfg.Seed); err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
	}

	// 2. Optional collaborators; interfaces stay nil when disabled
	deps := delivery.Deps{
		Store:      store,
		Hasher:     pii.NewHasher(cfg.PII.Secret),
		LedgerMode: cfg.Ledger.Mode,
	}
	var ledger outbox.LedgerSubmitter
	if cfg.Fabric.Enabled {
		fabricSetup, err := blockchain.Initialize(cfg.Fabric)
		if err != nil {
			return fmt.Errorf("failed to initialize Fabric setup: %w", err)
		}
		defer fabricSetup.Close()

		mirror := blockchain.NewMirror(fabricSetup)
		deps.Ledger = mirror
		ledger = mirror
		log.Printf("Ledger mirror enabled on channel %s in %s mode", cfg.Fabric.ChannelName, cfg.Ledger.Mode)
	} else {
		log.Println("Fabric disabled, deliveries are not mirrored to the ledger")
	}

	if cfg.S3.Bucket != "" {
		uploader, err := s3.NewUploader(cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 uploader: %w", err)
		}
		deps.Photos = uploader
	}

	// 3. Realtime notifications and the outbox worker
	wsHub := socket.NewHub()
	worker := outbox.New(store, notify.NewDispatcher(wsHub), ledger, cfg.Outbox)
	worker.Start()
	defer worker.Stop()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// 4. HTTP
	issuer := auth.NewIssuer(cfg.JWT)
	router := routes.SetupRouter(
		cfg,
		delivery.NewWorkflow(deps),
		store.Users(),
		issuer,
		middleware.NewIdentity(issuer, store.Users()),
		wsHub,
		prometheus.DefaultGatherer,
	)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Starting API server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to run server: %w", err)
	case sig := <-quit:
		log.Printf("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("Server stopped")
	return nil
}
