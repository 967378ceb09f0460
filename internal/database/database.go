package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/soundtrace/soundtrace/internal/metrics"
	"github.com/soundtrace/soundtrace/internal/models"
	"github.com/soundtrace/soundtrace/internal/telemetry"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB holds the database connection.
var DB *gorm.DB

// Initialize creates and configures the database connection. DATABASE_URL
// takes precedence; otherwise the connection is built from DB_HOST/DB_PORT/
// DB_USER/DB_PASSWORD/DB_NAME/DB_SSLMODE with sensible local defaults.
//
// Passing DB_DRIVER=sqlite opens an embedded database at DATABASE_URL's
// value (or ":memory:") instead of Postgres. The package tests do not go
// through Initialize; they open in-memory sqlite databases directly.
func Initialize() error {
	driver := getEnvOrDefault("DB_DRIVER", "postgres")

	gormLogger := gormlogger.Default.LogMode(gormlogger.Silent)
	if os.Getenv("ENVIRONMENT") == "development" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	cfg := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	var err error

	switch driver {
	case "sqlite":
		dsn := getEnvOrDefault("DATABASE_URL", ":memory:")
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	default:
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			host := getEnvOrDefault("DB_HOST", "localhost")
			port := getEnvOrDefault("DB_PORT", "5432")
			user := getEnvOrDefault("DB_USER", "postgres")
			password := getEnvOrDefault("DB_PASSWORD", "")
			dbname := getEnvOrDefault("DB_NAME", "soundtrace")
			sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

			databaseURL = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				host, port, user, password, dbname, sslmode)
		}
		db, err = gorm.Open(postgres.Open(databaseURL), cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	registerMetricsHooks(db)

	if os.Getenv("OTEL_ENABLED") == "true" {
		if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
			log.Printf("failed to register GORM tracing plugin: %v", err)
		}
	}

	log.Printf("database connected (driver=%s)", driver)
	return nil
}

// Migrate runs auto-migration for the three core tables plus the hash and
// foreign-key indexes the index store's hot path depends on.
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	err := DB.AutoMigrate(
		&models.Track{},
		&models.Posting{},
		&models.Task{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("database migrations completed")
	return nil
}

// createIndexes issues CREATE INDEX IF NOT EXISTS for the posting hash and
// track_id, track source, task status and task completed_at lookups, under
// its own index names next to those AutoMigrate creates from struct tags.
// Errors from these statements are ignored.
func createIndexes() error {
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_postings_hash ON postings (hash)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_postings_track_id ON postings (track_id)")
	DB.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_tracks_source ON tracks (source_type, source_id)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_tasks_completed_at ON tasks (completed_at)")
	return nil
}

// Close closes the underlying connection pool.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks database connectivity.
func Health() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// registerMetricsHooks wires GORM's Before/After callbacks to Prometheus
// so every create/query/update/delete is timed and counted without each
// call site having to instrument itself.
func registerMetricsHooks(db *gorm.DB) {
	db.Callback().Create().Before("gorm:before_create").Register("metrics:before_create", func(db *gorm.DB) {
		db.InstanceSet("metrics:start_time", time.Now())
	})
	db.Callback().Create().After("gorm:after_create").Register("metrics:after_create", func(db *gorm.DB) {
		if start, ok := db.InstanceGet("metrics:start_time"); ok {
			duration := time.Since(start.(time.Time)).Seconds()
			metrics.Get().StoreQueryDuration.WithLabelValues("create", "insert").Observe(duration)
			status := "success"
			if db.Error != nil {
				status = "error"
			}
			metrics.Get().StoreQueriesTotal.WithLabelValues("create", "insert", status).Inc()
		}
	})

	db.Callback().Query().Before("gorm:before_query").Register("metrics:before_query", func(db *gorm.DB) {
		db.InstanceSet("metrics:start_time", time.Now())
	})
	db.Callback().Query().After("gorm:after_query").Register("metrics:after_query", func(db *gorm.DB) {
		if start, ok := db.InstanceGet("metrics:start_time"); ok {
			duration := time.Since(start.(time.Time)).Seconds()
			metrics.Get().StoreQueryDuration.WithLabelValues("query", "select").Observe(duration)
			status := "success"
			if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
				status = "error"
			}
			metrics.Get().StoreQueriesTotal.WithLabelValues("query", "select", status).Inc()
		}
	})

	db.Callback().Update().Before("gorm:before_update").Register("metrics:before_update", func(db *gorm.DB) {
		db.InstanceSet("metrics:start_time", time.Now())
	})
	db.Callback().Update().After("gorm:after_update").Register("metrics:after_update", func(db *gorm.DB) {
		if start, ok := db.InstanceGet("metrics:start_time"); ok {
			duration := time.Since(start.(time.Time)).Seconds()
			metrics.Get().StoreQueryDuration.WithLabelValues("update", "update").Observe(duration)
			status := "success"
			if db.Error != nil {
				status = "error"
			}
			metrics.Get().StoreQueriesTotal.WithLabelValues("update", "update", status).Inc()
		}
	})

	db.Callback().Delete().Before("gorm:before_delete").Register("metrics:before_delete", func(db *gorm.DB) {
		db.InstanceSet("metrics:start_time", time.Now())
	})
	db.Callback().Delete().After("gorm:after_delete").Register("metrics:after_delete", func(db *gorm.DB) {
		if start, ok := db.InstanceGet("metrics:start_time"); ok {
			duration := time.Since(start.(time.Time)).Seconds()
			metrics.Get().StoreQueryDuration.WithLabelValues("delete", "delete").Observe(duration)
			status := "success"
			if db.Error != nil {
				status = "error"
			}
			metrics.Get().StoreQueriesTotal.WithLabelValues("delete", "delete", status).Inc()
		}
	})
}
