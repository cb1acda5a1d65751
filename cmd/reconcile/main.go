package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shelter_app_echo/internal/config"
	"shelter_app_echo/internal/services"
)

// reconcile asks Pagopar for the state of pending orders and applies it.
// It runs once; schedule it externally if needed.
func main() {
	olderThan := flag.Duration("older-than", 30*time.Minute, "Only check orders pending for at least this long")
	shelterID := flag.String("shelter", "", "Limit to one shelter (optional)")
	hash := flag.String("hash", "", "Sync a single order by hash_pedido (optional)")

	flag.Parse()

	if *olderThan < 0 {
		fmt.Println("Usage: reconcile [-older-than 30m] [-shelter <id>] [-hash <hash_pedido>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	logger, err := services.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect DB: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sync := services.NewPagoparSync(
		services.NewCredentialStore(db),
		services.NewLedger(db, time.Now),
		services.NewPagoparClient(cfg.Pagopar, cfg.ProviderTimeout),
		logger,
		time.Now,
	)

	if *hash != "" {
		donation, err := sync.SyncOrder(ctx, *hash)
		if err != nil {
			log.Fatalf("Failed to sync order %s: %v", *hash, err)
		}
		fmt.Printf("Order %s is %s\n", *hash, donation.Status)
		return
	}

	summary, err := sync.SyncPending(ctx, *olderThan, *shelterID)
	if err != nil {
		log.Fatalf("Reconciliation aborted: %v", err)
	}
	fmt.Printf("Checked %d pending orders: %d changed, %d failed\n", summary.Checked, summary.Changed, summary.Failed)
	if summary.Failed > 0 {
		os.Exit(2)
	}
}
