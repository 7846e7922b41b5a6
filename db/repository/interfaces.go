// Package repository provides the storage-backend interfaces used outside the
// relational schema store: the audit trail (PostgreSQL, via pgx) and an
// optional distributed cache for the resolver layer (Redis/Valkey).
package repository

import (
	"context"
	"time"
)

// AuditRepository records and queries operation audit entries (spec §6's
// "separate audit table indexed by (timestamp, actor), (operation, success),
// (target type, target id)").
type AuditRepository interface {
	SaveAuditRecord(ctx context.Context, rec *AuditRecord) error
	QueryAuditRecords(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error)
}

// CacheRepository manages ephemeral data in Redis/Valkey. It backs the
// optional distributed resolver cache (OMS_CACHE_BACKEND=redis); the default
// in-process TTL cache in ontology/resolver never uses this interface.
type CacheRepository interface {
	SetCache(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetCache(ctx context.Context, key string, value interface{}) error
	DeleteCache(ctx context.Context, key string) error
	DeleteCachePrefix(ctx context.Context, prefix string) (int, error)

	Increment(ctx context.Context, key string) (int64, error)
}

// AuditRecord is the persisted shape of one Access Mediator operation,
// mirroring original_source's AuditLog model.
type AuditRecord struct {
	ID               string
	Timestamp        time.Time
	ActorID          string
	ActorRole        string
	Operation        string
	TargetType       string
	TargetID         string
	Success          bool
	ErrorMessage     string
	RequestPayload   map[string]interface{}
	ResponseSummary  map[string]interface{}
	ExecutionTimeMs  int64
}

// AuditFilter selects a subset of audit records. Zero-value fields are not
// applied as predicates.
type AuditFilter struct {
	ActorID    string
	Operation  string
	TargetType string
	TargetID   string
	Success    *bool
	Since      time.Time
	Limit      int
}
