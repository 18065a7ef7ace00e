package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"bpark-backend/config"
	"bpark-backend/internal/model"
)

// Init opens the configured database and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	level := logger.Warn
	if cfg.LogQueries {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// A single connection serialises writers; sqlite rejects concurrent ones.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("Database initialization complete.")
	return db, nil
}

// Migrate creates or updates every table and the partial unique indexes that
// back the one-vehicle and one-reservation rules.
func Migrate(db *gorm.DB) error {
	log.Info("Running database migrations...")
	if err := db.AutoMigrate(
		&model.Subscriber{},
		&model.ParkingSpace{},
		&model.Order{},
		&model.ParkingHistoryEvent{},
		&model.PushSubscription{},
		&model.ReportSnapshot{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return applyOrderIndexes(db)
}

func applyOrderIndexes(db *gorm.DB) error {
	ddls := []string{
		// At most one vehicle in the lot per subscriber.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_one_occupying ON orders (subscriber_id) " +
			"WHERE order_status IN ('active', 'late')",
		// At most one pending reservation per subscriber per day.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_one_pending_per_day ON orders (subscriber_id, order_date) " +
			"WHERE order_status = 'pending'",
		// A space can be booked once for a given start time.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_slot_booking ON orders (parking_space, order_date, order_time) " +
			"WHERE order_status = 'pending'",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}

// ProvisionSpaces makes sure spaces 1..total exist. Existing rows are left untouched.
func ProvisionSpaces(ctx context.Context, db *gorm.DB, total int) error {
	if total <= 0 {
		return nil
	}
	spaces := make([]model.ParkingSpace, 0, total)
	for n := 1; n <= total; n++ {
		spaces = append(spaces, model.ParkingSpace{Number: n, Status: model.SpaceAvailable})
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&spaces, 200).Error; err != nil {
		return fmt.Errorf("failed to provision parking spaces: %w", err)
	}
	log.WithField("total", total).Info("Parking spaces provisioned")
	return nil
}

// SeedAdmin creates the bootstrap administrator when no administrator exists yet.
// It reports whether an account was created.
func SeedAdmin(ctx context.Context, db *gorm.DB, cfg config.AdminConfig) (bool, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return false, nil
	}

	var existing model.Subscriber
	err := db.WithContext(ctx).Where("role = ?", model.RoleAdmin).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to look up administrator: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("failed to hash administrator password: %w", err)
	}
	admin := model.Subscriber{
		Name:         cfg.Name,
		Email:        cfg.Email,
		Phone:        cfg.Phone,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
	}
	if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
		return false, fmt.Errorf("failed to create administrator: %w", err)
	}
	log.WithFields(log.Fields{"id": admin.ID, "email": admin.Email}).Info("Administrator account created")
	return true, nil
}
