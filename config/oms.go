package config

import "time"

// OMSConfig is this service's concrete environment configuration, built on
// the EnvConfig/Validator primitives above the same way the teacher's
// per-service configs were, but shaped for the Ontology Metadata Service
// and clip pipeline rather than a CouchDB-backed flow service.
type OMSConfig struct {
	// RelationalDSN is the Postgres DSN backing the Schema Registry (GORM)
	// and the SQL/Warehouse Resolver (pgx). Required: startup fails
	// without it, exactly like the teacher's MustGetString fields.
	RelationalDSN string

	// DataRoot is the filesystem root the Columnar-File Resolver and Clip
	// Index export read/write parquet files under.
	DataRoot string

	// WarehouseProject and WarehouseDataset name the logical warehouse
	// location the "bigquery" resolver tag refers to; carried through for
	// logging/audit context since the SQL resolver itself binds tables by
	// name, not by project/dataset.
	WarehouseProject string
	WarehouseDataset string

	// ClipIndexPath is the bbolt file backing the Clip Index.
	ClipIndexPath string

	// WorkerPoolSize bounds the clip cutter's concurrency (spec §4.J:
	// default 2-3).
	WorkerPoolSize int

	// MaxClipDurationSeconds caps a single cut's duration (spec §4.J
	// default 120s).
	MaxClipDurationSeconds float64

	// EnableHLS is read from OMS_ENABLE_HLS. Core does not pass it to the
	// cutter, which packages HLS only for a Request whose own EnableHLS is set.
	EnableHLS bool

	// ResolverCacheTTL and ResolverCacheMaxRows tune the resolver's
	// in-process TTL cache (spec §4.E defaults: 300s / 10000 rows).
	ResolverCacheTTL     time.Duration
	ResolverCacheMaxRows int

	// CacheBackend selects the resolver's optional distributed cache tier:
	// "" (in-process only, the spec-mandated default) or "redis".
	CacheBackend string
	RedisURL     string

	// AuditTableName is read from OMS_AUDIT_TABLE_NAME (default
	// oms.audit_log). The audit repository does not read it and always
	// writes to oms.audit_log.
	AuditTableName string

	LogLevel string
}

// LoadOMSConfig reads OMS_-prefixed environment variables. RelationalDSN
// is required and panics via MustGetString, matching the teacher's
// fail-fast startup convention.
func LoadOMSConfig() OMSConfig {
	env := NewEnvConfig("OMS")
	return OMSConfig{
		RelationalDSN:          env.MustGetString("RELATIONAL_DSN"),
		DataRoot:               env.GetString("DATA_ROOT", "./data"),
		WarehouseProject:       env.GetString("WAREHOUSE_PROJECT", ""),
		WarehouseDataset:       env.GetString("WAREHOUSE_DATASET", ""),
		ClipIndexPath:          env.GetString("CLIP_INDEX_PATH", "./data/clips.db"),
		WorkerPoolSize:         env.GetInt("WORKER_POOL_SIZE", 3),
		MaxClipDurationSeconds: float64(env.GetInt("MAX_CLIP_DURATION_SECONDS", 120)),
		EnableHLS:              env.GetBool("ENABLE_HLS", false),
		ResolverCacheTTL:       env.GetDuration("RESOLVER_CACHE_TTL", 300*time.Second),
		ResolverCacheMaxRows:   env.GetInt("RESOLVER_CACHE_MAX_ROWS", 10000),
		CacheBackend:           env.GetString("CACHE_BACKEND", ""),
		RedisURL:               env.GetString("REDIS_URL", "redis://localhost:6379/0"),
		AuditTableName:         env.GetString("AUDIT_TABLE_NAME", "oms.audit_log"),
		LogLevel:               env.GetString("LOG_LEVEL", "info"),
	}
}

// Validate applies the Validator primitive's checks to the loaded config.
func (c OMSConfig) Validate() error {
	v := NewValidator()
	v.RequireString("RelationalDSN", c.RelationalDSN)
	v.RequireString("DataRoot", c.DataRoot)
	v.RequirePositiveInt("WorkerPoolSize", c.WorkerPoolSize)
	v.RequireInt("MaxClipDurationSeconds", int(c.MaxClipDurationSeconds), 1, 300)
	if c.CacheBackend != "" {
		v.RequireOneOf("CacheBackend", c.CacheBackend, []string{"redis"})
	}
	return v.Validate()
}
