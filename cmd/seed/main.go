package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kinfolk/backend/internal/config"
	"github.com/kinfolk/backend/internal/database"
	"github.com/kinfolk/backend/internal/seed"
	"gorm.io/gorm"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Parse command
	command, args := "dev", []string{}
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	switch command {
	case "dev":
		seedDev(args)
	case "test":
		seedTest()
	case "clean":
		cleanSeed()
	case "verify":
		verifySeed()
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: seed [dev|test|clean|verify]")
	fmt.Println("  dev    - Seed development database with realistic data")
	fmt.Println("           flags: -users -friends -posts -comments -likes -messages -notifications")
	fmt.Println("  test   - Seed test database with minimal data")
	fmt.Println("  clean  - Remove all seed data (use with caution)")
	fmt.Println("  verify - Print row counts for every seeded table")
}

func connect() *gorm.DB {
	db, err := database.Open(config.DatabaseURL(), false)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database connected")
	return db
}

func seedDev(args []string) {
	opts := seed.DefaultOptions()
	fs := flag.NewFlagSet("dev", flag.ExitOnError)
	fs.IntVar(&opts.Users, "users", opts.Users, "number of users")
	fs.IntVar(&opts.FriendsEach, "friends", opts.FriendsEach, "friends per user")
	fs.IntVar(&opts.Posts, "posts", opts.Posts, "number of posts")
	fs.IntVar(&opts.Comments, "comments", opts.Comments, "number of comments")
	fs.IntVar(&opts.Likes, "likes", opts.Likes, "number of likes")
	fs.IntVar(&opts.Messages, "messages", opts.Messages, "number of direct messages")
	fs.IntVar(&opts.Notifications, "notifications", opts.Notifications, "number of notifications")
	_ = fs.Parse(args)

	log.Println("🌱 Seeding development database...")
	db := connect()
	defer database.Close(db)

	if err := seed.NewSeeder(db).SeedDev(opts); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✅ Development database seeded successfully! (password for every seed user: %s)", seed.DefaultPassword)
}

func seedTest() {
	log.Println("🧪 Seeding test database...")
	db := connect()
	defer database.Close(db)

	if err := seed.NewSeeder(db).SeedTest(); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✅ Test database seeded successfully!")
}

func cleanSeed() {
	log.Println("🧹 Cleaning seed data...")
	db := connect()
	defer database.Close(db)

	if err := seed.NewSeeder(db).Clean(); err != nil {
		log.Fatalf("❌ Clean failed: %v", err)
	}

	log.Println("✅ Seed data cleaned successfully!")
}

func verifySeed() {
	fmt.Println("🔍 Verifying seed data...")
	db := connect()
	defer database.Close(db)

	counts, err := seed.NewSeeder(db).Counts()
	if err != nil {
		log.Fatalf("❌ Verify failed: %v", err)
	}

	fmt.Println("📊 Record Counts:")
	for _, c := range counts {
		fmt.Printf("  %-16s %d\n", c.Table+":", c.Rows)
	}
}
