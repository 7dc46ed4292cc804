package storage

import (
	"fmt"

	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/amoylab/tokenbridge/internal/common/config"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewStore creates a new token store based on configuration. db is only used by
// the database store.
func NewStore(logger *zap.Logger, cfg *config.StorageConfig, db *gorm.DB) (Store, error) {
	logger.Info("Initializing token storage", zap.String("type", cfg.Type))
	switch cfg.Type {
	case cnst.StoreTypeMemory:
		return NewMemoryStorage(), nil
	case cnst.StoreTypeRedis:
		r := cfg.Redis
		return NewRedisStorage(r.ClusterType, r.Addr, r.MasterName, r.Username, r.Password, r.DB, r.Prefix)
	case cnst.StoreTypeDatabase, "":
		if db == nil {
			return nil, fmt.Errorf("database token storage requires a database connection")
		}
		return NewDatabaseStorage(db)
	default:
		return nil, fmt.Errorf("unsupported token storage type: %s", cfg.Type)
	}
}
