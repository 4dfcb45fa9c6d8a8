package database

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/FrederikMaler/LicenseBay/app/models"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/env"
)

const (
	maxRetries   = 5
	initialDelay = 1 * time.Second
)

var (
	DB    *gorm.DB
	ready atomic.Bool
)

// SetupDatabase connects to MySQL with a bounded exponential backoff and
// migrates the license table. It gates request acceptance: until it returns
// nil the server must not be started, and no transaction may be accepted.
func SetupDatabase() error {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	var err error
	delay := initialDelay
	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{})
		if err == nil {
			if err = DB.AutoMigrate(&models.License{}); err != nil {
				return fmt.Errorf("migrating license table: %w", err)
			}
			ready.Store(true)
			log.Println("Database connection established")
			return nil
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retrying in %v...", delay)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("database unreachable after %d tries: %w", maxRetries, err)
}

// GetDB returns the shared DB handle.
func GetDB() *gorm.DB {
	return DB
}

// Ready reports whether the readiness gate has been passed.
func Ready() bool {
	return ready.Load()
}

// Ping checks current connectivity so requests can be halted while the
// database is down instead of failing mid-transaction.
func Ping() error {
	if !Ready() || DB == nil {
		return errors.New("database: not ready")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
