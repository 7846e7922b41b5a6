// Package core wires every component in spec §4 into a single owned
// context (spec §9: "Global registries and module-level caches become
// explicitly owned objects constructed at startup"). Init is deterministic
// and Close releases every resource it opened.
package core

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"oms.heartbeat.dev/clips/cutter"
	"oms.heartbeat.dev/clips/extractor"
	"oms.heartbeat.dev/clips/index"
	"oms.heartbeat.dev/common"
	"oms.heartbeat.dev/config"
	"oms.heartbeat.dev/db"
	"oms.heartbeat.dev/db/repository"
	"oms.heartbeat.dev/ontology/mediator"
	"oms.heartbeat.dev/ontology/policy"
	"oms.heartbeat.dev/ontology/registry"
	"oms.heartbeat.dev/ontology/resolver"
	"oms.heartbeat.dev/ontology/resolver/columnar"
	"oms.heartbeat.dev/ontology/resolver/sqlresolver"
)

// backendBigQuery and backendParquet are the resolver-backend tags spec
// §4.H step 4 selects by; they match model.ValidResolverBackends.
const (
	backendBigQuery = "bigquery"
	backendParquet  = "parquet"
)

// Core owns every long-running object described by spec §5's concurrency
// model: the registry, policy engine, resolvers and their shared cache, the
// clip extractor's period-offset cache, the cutter's worker pool, and the
// clip index's write lock.
type Core struct {
	Config config.OMSConfig

	gormDB  *gorm.DB
	pg      *db.PostgresDB
	dist    repository.CacheRepository
	auditDB repository.AuditRepository

	Registry  *registry.Registry
	Policy    *policy.Engine
	SQL       *sqlresolver.Resolver
	Columnar  *columnar.Resolver
	Resolvers map[string]*resolver.Resolver

	Extractor *extractor.Extractor
	Cutter    *cutter.Cutter
	Index     *index.Index

	Mediator *mediator.Mediator
}

// Init constructs every component from cfg. On any failure, everything
// already opened is closed before the error is returned.
func Init(ctx context.Context, cfg config.OMSConfig) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("core: invalid configuration: %w", err)
	}

	c := &Core{Config: cfg}

	gormDB, err := db.OpenGorm(cfg.RelationalDSN, db.DefaultGormConfig())
	if err != nil {
		return nil, fmt.Errorf("core: open relational store: %w", err)
	}
	c.gormDB = gormDB

	pg, err := db.NewPostgresDB(cfg.RelationalDSN)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("core: open sql resolver pool: %w", err)
	}
	c.pg = pg

	if cfg.CacheBackend == "redis" {
		dist, err := repository.NewRedisRepository(cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("core: open distributed cache: %w", err)
		}
		c.dist = dist
	}

	c.auditDB = repository.NewPostgresAuditRepository(pg)

	c.Registry = registry.New(gormDB)
	if err := c.Registry.Migrate(); err != nil {
		c.Close()
		return nil, fmt.Errorf("core: migrate schema registry: %w", err)
	}

	c.Policy = policy.New()

	c.SQL = sqlresolver.New(pg)
	c.Columnar = columnar.New(cfg.DataRoot)

	resolverCfg := resolver.DefaultConfig()
	resolverCfg.CacheTTL = cfg.ResolverCacheTTL
	resolverCfg.MaxRows = cfg.ResolverCacheMaxRows

	c.Resolvers = map[string]*resolver.Resolver{
		backendBigQuery: resolver.New(c.SQL, resolverCfg, c.dist),
		backendParquet:  resolver.New(c.Columnar, resolverCfg, c.dist),
	}

	idx, err := index.Open(cfg.ClipIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("core: open clip index: %w", err)
	}
	c.Index = idx

	cutterCfg := cutter.DefaultConfig()
	if cfg.WorkerPoolSize > 0 {
		cutterCfg.Concurrency = cfg.WorkerPoolSize
	}
	if cfg.MaxClipDurationSeconds > 0 {
		cutterCfg.MaxClipDurationSeconds = cfg.MaxClipDurationSeconds
	}
	c.Cutter = cutter.New(cutterCfg, c.Index)

	c.Extractor = extractor.New(c.Resolvers[backendBigQuery], nil)

	c.Mediator = mediator.New(c.Registry, c.Policy, c.Resolvers, c.auditDB).
		WithClipPipeline(c.Extractor, c.Cutter, c.Index)

	common.Logger.WithFields(map[string]interface{}{
		"component":      "core",
		"relational_dsn": common.MaskSecret(cfg.RelationalDSN),
		"data_root":      cfg.DataRoot,
		"clip_index":     cfg.ClipIndexPath,
		"cache_backend":  cfg.CacheBackend,
		"worker_pool":    cutterCfg.Concurrency,
	}).Info("core initialised")

	return c, nil
}

// Close releases every resource Init opened. Safe to call on a partially
// initialised Core (e.g. from an Init failure path) and safe to call more
// than once.
func (c *Core) Close() {
	if c.Index != nil {
		if err := c.Index.Close(); err != nil {
			common.Logger.WithError(err).Warn("core: close clip index")
		}
		c.Index = nil
	}
	if closer, ok := c.dist.(interface{ Close() error }); ok && closer != nil {
		if err := closer.Close(); err != nil {
			common.Logger.WithError(err).Warn("core: close distributed cache")
		}
		c.dist = nil
	}
	if c.pg != nil {
		c.pg.Close()
		c.pg = nil
	}
	if c.gormDB != nil {
		if sqlDB, err := c.gormDB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				common.Logger.WithError(err).Warn("core: close relational store")
			}
		}
		c.gormDB = nil
	}
}
