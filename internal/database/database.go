package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kisanmitra/backend/internal/config"
	"github.com/kisanmitra/backend/internal/logger"
	"github.com/kisanmitra/backend/internal/models"
	"github.com/kisanmitra/backend/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open creates and configures the database connection for the configured driver.
// When tracing is set, every statement is wrapped in an OpenTelemetry span.
func Open(cfg config.DatabaseConfig, verbose, tracing bool) (*gorm.DB, error) {
	gormLogger := gormlogger.Default.LogMode(gormlogger.Warn)
	if verbose {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if tracing {
		if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
			return nil, fmt.Errorf("failed to install tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite serializes writers; one connection avoids "database is locked"
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	logger.Log.Info("✅ Database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

// OpenInMemory opens an isolated in-memory SQLite database with all tables migrated.
// Used by tests and by `kisanctl` dry runs.
func OpenInMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs auto-migration for all models
func Migrate(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	err := db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.PostReaction{},
		&models.Group{},
		&models.GroupMember{},
		&models.FeedPreference{},
		&models.AnalyticsEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Log.Info("✅ Database migrations completed")
	return nil
}

// Close closes the underlying connection pool
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
