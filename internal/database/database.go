package database

import (
	"fmt"
	"time"

	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to PostgreSQL and configures the connection pool
func Open(databaseURL string, verbose bool) (*gorm.DB, error) {
	gormLogger := gormlogger.Default.LogMode(gormlogger.Warn)
	if verbose {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         gormLogger,
		NowFunc:        nowUTC,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Log.Info("Database connected")
	return db, nil
}

// AllModels lists every table owned by this service, parents first
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Friendship{},
		&models.FriendRequest{},
		&models.Post{},
		&models.Comment{},
		&models.PostLike{},
		&models.PostShare{},
		&models.DirectMessage{},
		&models.Notification{},
	}
}

// Migrate runs auto-migration for all models, then the Postgres-only indexes
func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		createIndexes(db)
	}

	logger.Log.Info("Database migrations completed")
	return nil
}

// createIndexes adds indexes gorm tags cannot express
func createIndexes(db *gorm.DB) {
	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))",
		"CREATE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email))",
		"CREATE INDEX IF NOT EXISTS idx_dm_conversation ON direct_messages (LEAST(sender_id, recipient_id), GREATEST(sender_id, recipient_id), created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_dm_unread ON direct_messages (recipient_id) WHERE read_at IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications (user_id) WHERE is_read = false",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_requests_pending ON friend_requests (requester_id, target_id) WHERE status = 'pending'",
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Log.Warn("Failed to create index", zap.String("sql", stmt), zap.Error(err))
		}
	}
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Health checks database connectivity
func Health(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// nowUTC matches Postgres timestamp precision so values read back compare equal
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
