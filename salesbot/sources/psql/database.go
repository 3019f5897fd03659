package psql

import (
	"context"
	"fmt"
	"time"

	"salesbot/salesbot/config"
	"salesbot/salesbot/sources/psql/models"
	"salesbot/salesbot/utils/logging"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

func NewDatabase(ctx context.Context, cfg config.Config) (*Database, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
	)

	logging.AppLogger.Info("connecting to database",
		zap.String("host", cfg.DBHost),
		zap.String("port", cfg.DBPort),
		zap.String("db", cfg.DBName),
	)

	return Open(ctx, postgres.Open(connStr), cfg.DBMaxOpenConns)
}

// Open connects through any gorm dialector, sizes the pool and migrates the schema.
func Open(ctx context.Context, dialector gorm.Dialector, maxOpenConns int) (*Database, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// No FK between messages and chat; the DAO keeps them consistent.
	err = db.WithContext(ctx).
		AutoMigrate(
			&models.Session{},
			&models.Message{},
		)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	return &Database{DB: db}, nil
}

func (db *Database) Close() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
