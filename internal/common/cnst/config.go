package cnst

const (
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
	RedisClusterTypeSingle   = "single"
)

// Token store types
const (
	StoreTypeMemory   = "memory"
	StoreTypeRedis    = "redis"
	StoreTypeDatabase = "database"
)
