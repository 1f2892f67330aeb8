package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"sim-sms-bridge/internal/adapters/db/postgres"
	"sim-sms-bridge/internal/config"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if conf.DatabaseURL == "" {
		log.Fatal("❌ SIMBRIDGE_DATABASE_URL is not set")
	}

	fmt.Println("🔗 Connecting to database...")
	journal, err := postgres.Open(conf.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect: %v", err)
	}
	defer journal.Close()
	fmt.Println("✅ Connected to database")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("🔄 Running migrations...")
	if err := journal.Migrate(ctx); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	recent, err := journal.Recent(ctx, 1)
	if err != nil {
		log.Fatalf("❌ Journal not readable after migration: %v", err)
	}
	fmt.Printf("✅ Send journal ready (%d recent rows sampled)\n", len(recent))
}
