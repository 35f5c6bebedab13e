package database

import (
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nusapay/qrisgate/app/models"
	"github.com/nusapay/qrisgate/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// SetupDatabase opens the SQLite store and applies the additive schema. The
// busy timeout keeps concurrent request writers from surfacing SQLITE_BUSY
// under normal contention.
func SetupDatabase() {
	var err error
	dsn := env.GetEnv("DB_PATH", "qrisgate.db") + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

	logLevel := logger.Warn
	if env.IsDev() {
		logLevel = logger.Info
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logLevel),
		})
		if err == nil {
			if sqlDB, dbErr := DB.DB(); dbErr == nil {
				// SQLite permits one writer; a single connection avoids
				// lock churn between gorm's pooled handles.
				sqlDB.SetMaxOpenConns(1)
			}
			if err = migrateSchema(); err != nil {
				panic(err)
			}
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// SetupTestDatabase opens a fresh in-memory store for package tests. Each
// call gets its own database; the shared cache keeps all pooled connections
// of one handle on the same in-memory instance.
func SetupTestDatabase() *gorm.DB {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		panic(err)
	}
	return db
}

func migrateSchema() error {
	return DB.AutoMigrate(allModels()...)
}

func allModels() []interface{} {
	return []interface{}{
		&models.Merchant{},
		&models.MerchantCredentials{},
		&models.Invoice{},
		&models.PendingTransaction{},
		&models.InvoiceEvent{},
		&models.UsedNonce{},
		&models.WebhookDelivery{},
		&models.Refund{},
		&models.Alert{},
	}
}

// GetDB returns the process-wide database handle.
func GetDB() *gorm.DB {
	return DB
}
