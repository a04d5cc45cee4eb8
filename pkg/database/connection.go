package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mhrivnak/orderflow/pkg/config"
	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
)

type DB struct {
	*gorm.DB
	log logrus.FieldLogger
}

// Wrap adapts an already opened gorm handle, e.g. an in-memory sqlite database in tests.
func Wrap(db *gorm.DB, log logrus.FieldLogger) *DB {
	return &DB{DB: db, log: log}
}

func NewConnection(cfg *config.Config, log logrus.FieldLogger) (*DB, error) {
	gormLogLevel := logger.Warn
	if cfg.Log.Level == "debug" {
		gormLogLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
	}

	dsn := buildDSN(cfg.Database.Host, cfg.Database.Port, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database, cfg.Database.SSLMode)

	debugDSN := dsn
	if cfg.Database.Password != "" {
		debugDSN = strings.Replace(dsn, fmt.Sprintf("password=%s", cfg.Database.Password), "password=***", 1)
	}
	log.WithField("dsn", debugDSN).Debug("Connecting to database")

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	return &DB{DB: db, log: log}, nil
}

func (db *DB) AutoMigrate() error {
	db.log.Info("Running database auto-migration...")

	if err := db.DB.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	db.log.Info("Database auto-migration completed successfully")
	return nil
}

// BootstrapDefaultData creates the groups named in approval.groups so that hooks can resolve
// them by name, and the initial admin when one is configured.
func (db *DB) BootstrapDefaultData(ctx context.Context, cfg *config.Config) error {
	db.log.Info("Bootstrapping default data...")

	return db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		groupRepo := repositories.NewGroupRepository(tx)
		for _, name := range cfg.Approval.Groups {
			if _, err := groupRepo.EnsureExists(ctx, name); err != nil {
				return fmt.Errorf("failed to create group %q: %w", name, err)
			}
		}

		if err := bootstrapInitialAdmin(ctx, tx, cfg, db.log); err != nil {
			return err
		}

		db.log.Info("Default data bootstrap completed successfully")
		return nil
	})
}

func bootstrapInitialAdmin(ctx context.Context, tx *gorm.DB, cfg *config.Config, log logrus.FieldLogger) error {
	if !cfg.InitialAdmin.Enabled || cfg.InitialAdmin.Username == "" {
		log.Debug("Initial admin not enabled, skipping creation")
		return nil
	}
	if cfg.InitialAdmin.Password == "" {
		return fmt.Errorf("initial admin password not configured")
	}

	var existing int64
	if err := tx.Model(&models.User{}).Where("is_super_admin = ?", true).Count(&existing).Error; err != nil {
		return fmt.Errorf("failed to count existing admins: %w", err)
	}
	if existing > 0 {
		log.Debug("Super admin already exists, skipping initial admin creation")
		return nil
	}

	admin := &models.User{
		Username:     cfg.InitialAdmin.Username,
		Email:        cfg.InitialAdmin.Email,
		FullName:     "Initial Administrator",
		IsActive:     true,
		IsSuperAdmin: true,
	}
	if err := admin.SetPassword(cfg.InitialAdmin.Password); err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	if err := repositories.NewUserRepository(tx).Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create initial admin user: %w", err)
	}
	log.WithField("username", admin.Username).Info("Initial admin user created")
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// buildDSN constructs a PostgreSQL DSN in the key=value format accepted by the pgx driver
func buildDSN(host string, port int, username, password, database, sslmode string) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		host, username, password, database, port, sslmode)
}
