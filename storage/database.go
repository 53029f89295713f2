package storage

import (
	"errors"
	"fmt"
	"strings"

	"signature-elite-server/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// activeOfferIndex backs the one-accepted-or-paid-offer-per-property rule at
// the database level. Both postgres and sqlite support partial indexes.
const activeOfferIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_one_active_per_property
	ON offers (property_id) WHERE status IN ('accepted', 'paid') AND deleted_at IS NULL`

func connectToDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set in the environment variables")
	}
	return Open(postgres.Open(dsn))
}

// Open connects through any gorm dialector and applies migrations.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := performMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

func performMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Property{},
		&models.Offer{},
		&models.WishlistEntry{},
		&models.Review{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(activeOfferIndex).Error; err != nil {
		return fmt.Errorf("create active offer index: %w", err)
	}
	return nil
}

// InitializeDB connects to postgres at dsn and migrates the schema.
func InitializeDB(dsn string) (*gorm.DB, error) {
	return connectToDB(dsn)
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// EscapeLike escapes LIKE wildcards so user input matches literally with ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
