package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"hola-chat/config"
	"hola-chat/internal/repository"
	"hola-chat/pkg/database"

	"github.com/jackc/pgx/v5/pgxpool"
)

const usage = `
Hola Chat - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Create the profiles and messages tables
  down        Drop the chat tables
  status      Show database connection status
  seed-dev    Seed with development profiles and a sample thread
  reset       Drop all tables and re-run migrations (DANGEROUS)
  truncate    Truncate all tables (DANGEROUS)

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate seed-dev
  go run ./cmd/migrate reset
`

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, database.DSN(cfg))
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer pool.Close()

	switch command {
	case "up":
		runMigrationsUp(ctx, pool)
	case "down":
		runMigrationsDown(ctx, pool)
	case "status":
		showStatus(ctx, pool)
	case "seed-dev":
		runSeedDevelopment(ctx, pool)
	case "reset":
		runReset(ctx, pool)
	case "truncate":
		runTruncate(ctx, pool)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("🚀 Running migrations UP...")

	if err := repository.InitSchema(ctx, pool); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func runMigrationsDown(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("⬇️  Rolling back migrations...")

	if err := repository.DropSchema(ctx, pool); err != nil {
		log.Fatalf("❌ Rollback failed: %v", err)
	}

	log.Println("✅ Rollback completed successfully!")
}

func showStatus(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("🔍 Checking database status...")

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, table := range repository.Tables {
		exists, err := database.TableExists(ctx, pool, table)
		if err != nil {
			log.Printf("⚠️  Error checking table %s: %v", table, err)
			continue
		}
		if exists {
			count, _ := database.TableCount(ctx, pool, table)
			log.Printf("✅ Table %-10s exists (%d rows)", table, count)
		} else {
			log.Printf("❌ Table %-10s does not exist", table)
		}
	}
}

func runSeedDevelopment(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("🌱 Seeding database (development mode)...")

	result, err := database.SeedDevelopment(ctx, pool)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("📊 Seed Summary:")
	for username, id := range result.Profiles {
		log.Printf("   - %-6s %s", username, id)
	}
	log.Printf("   - Messages: %d", result.Messages)
	log.Println("✅ Development seeding completed!")
}

func runReset(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("⚠️  WARNING: This will DROP all tables and re-run migrations!")

	log.Println("🗑️  Dropping all tables...")
	if err := repository.DropSchema(ctx, pool); err != nil {
		log.Fatalf("❌ Failed to drop tables: %v", err)
	}

	log.Println("🚀 Running migrations...")
	if err := repository.InitSchema(ctx, pool); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Database reset completed!")
}

func runTruncate(ctx context.Context, pool *pgxpool.Pool) {
	log.Println("⚠️  WARNING: This will TRUNCATE all tables!")

	if err := repository.Truncate(ctx, pool); err != nil {
		log.Fatalf("❌ Truncate failed: %v", err)
	}

	log.Println("✅ All tables truncated!")
}
