package database

import (
	"fmt"

	"github.com/amoylab/tokenbridge/internal/common/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase creates a new database based on configuration
func NewDatabase(cfg *config.DatabaseConfig) (Database, error) {
	dialector, err := newDialector(cfg)
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Type == "sqlite" && isMemory(cfg) {
		// every new connection would open a separate empty in-memory database
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := gormDB.AutoMigrate(&User{}, &SocialAuth{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &gormStore{db: gormDB}, nil
}

func newDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	dsn, err := cfg.GetDSN()
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func isMemory(cfg *config.DatabaseConfig) bool {
	return cfg.DBName == "" || cfg.DBName == ":memory:"
}
