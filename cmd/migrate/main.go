package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kinfolk/backend/internal/config"
	"github.com/kinfolk/backend/internal/database"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Parse command
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		runMigrationsUp()
	case "down", "create":
		log.Printf("❌ %q is not supported: the schema is derived from internal/models", command)
		log.Println("💡 Tip: change the model and run `migrate up`")
		os.Exit(1)
	default:
		fmt.Println("Usage: migrate [up]")
		fmt.Println("  up - Create or update every table and index")
		os.Exit(1)
	}
}

func runMigrationsUp() {
	log.Println("🔄 Connecting to database...")

	db, err := database.Open(config.DatabaseURL(), false)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	log.Println("✅ Database connected")
	log.Printf("📈 Migrating %d tables...", len(database.AllModels()))

	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ All migrations completed successfully!")
}
