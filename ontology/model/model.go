// Package model defines the Schema Model (spec §4.A): the declarative
// entities a schema version owns. It is a pure data layer — no behaviour
// beyond what GORM needs for persistence and what encoding/json needs for
// the document form.
package model

import "time"

// Closed sets referenced by the validator and registry. Declared once here
// so every package checks against the same set.
var (
	ValidPropertyTypes = map[string]bool{
		"string": true, "integer": true, "float": true, "boolean": true,
		"date": true, "datetime": true, "text": true, "object": true, "array": true,
	}
	ValidCardinalities = map[string]bool{
		"one_to_one": true, "one_to_many": true, "many_to_one": true, "many_to_many": true,
	}
	ValidAccessLevels = map[string]bool{
		"none": true, "read": true, "full": true, "execute": true, "self_only": true,
	}
	ValidScopes = map[string]bool{
		"all": true, "team_scoped": true, "self_only": true,
	}
	ValidPolicyTargets = map[string]bool{
		"object": true, "link": true, "action": true, "property": true, "global": true,
	}
	ValidResolverBackends = map[string]bool{
		"bigquery": true, "parquet": true, "api": true, "computed": true,
	}
)

// SchemaVersion states.
const (
	StatusDraft      = "draft"
	StatusReview     = "review"
	StatusPublished  = "published"
	StatusDeprecated = "deprecated"
)

// SchemaVersion is identified by a semantic-version string; at most one
// version has IsActive=true at any instant (spec §3.1).
type SchemaVersion struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	Version       string    `gorm:"uniqueIndex;not null"`
	Namespace     string
	Description   string
	CreatedBy     string
	Status        string `gorm:"index;not null"`
	IsActive      bool   `gorm:"index"`
	Changelog     JSONStringSlice `gorm:"type:jsonb"`
	MetadataJSON  JSONMap         `gorm:"type:jsonb"`
	CreatedAt     time.Time
	PublishedAt   *time.Time

	ObjectTypes      []ObjectType     `gorm:"constraint:OnDelete:CASCADE;"`
	LinkTypes        []LinkType       `gorm:"constraint:OnDelete:CASCADE;"`
	ActionTypes      []ActionType     `gorm:"constraint:OnDelete:CASCADE;"`
	SecurityPolicies []SecurityPolicy `gorm:"constraint:OnDelete:CASCADE;"`
}

func (SchemaVersion) TableName() string { return "oms.schema_versions" }

// ObjectType is a named business entity with a unique name within a schema
// version, a primary-key property name, and a resolver descriptor.
type ObjectType struct {
	ID                string `gorm:"type:uuid;primaryKey"`
	SchemaVersionID   string `gorm:"type:uuid;index:idx_objtype_version_name,unique;not null"`
	Name              string `gorm:"index:idx_objtype_version_name,unique;not null"`
	Description       string
	PrimaryKey        string
	ResolverBackend   string
	ResolverConfigJSON JSONMap `gorm:"type:jsonb"`
	SecurityPolicyRef string

	Properties []Property `gorm:"constraint:OnDelete:CASCADE;"`
}

func (ObjectType) TableName() string { return "oms.object_types" }

// Property is a typed attribute of an ObjectType.
type Property struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	ObjectTypeID string `gorm:"type:uuid;index;not null"`
	Name         string `gorm:"not null"`
	Type         string `gorm:"column:property_type;not null"`
	Required     bool
	Description  string
	EnumValues   JSONStringSlice `gorm:"type:jsonb"`
	DefaultValue JSONAny         `gorm:"type:jsonb"`
	Constraints  JSONMap         `gorm:"type:jsonb"`
}

func (Property) TableName() string { return "oms.properties" }

// LinkType is a directed relation (FromObject -> ToObject) with a resolver
// tag and backend-specific configuration.
type LinkType struct {
	ID                string `gorm:"type:uuid;primaryKey"`
	SchemaVersionID   string `gorm:"type:uuid;index:idx_linktype_version_name,unique;not null"`
	Name              string `gorm:"index:idx_linktype_version_name,unique;not null"`
	Description       string
	FromObject        string `gorm:"not null"`
	ToObject          string `gorm:"not null"`
	Cardinality       string `gorm:"not null"`
	ResolverType      string
	ResolverConfigJSON JSONMap `gorm:"type:jsonb"`
	SecurityPolicyRef string
}

func (LinkType) TableName() string { return "oms.link_types" }

// ActionType is a governed write or side-effectful operation.
type ActionType struct {
	ID                string `gorm:"type:uuid;primaryKey"`
	SchemaVersionID   string `gorm:"type:uuid;index:idx_actiontype_version_name,unique;not null"`
	Name              string `gorm:"index:idx_actiontype_version_name,unique;not null"`
	Description       string
	InputSchemaJSON   JSONMap         `gorm:"type:jsonb"`
	Preconditions     JSONStringSlice `gorm:"type:jsonb"`
	Effects           JSONStringSlice `gorm:"type:jsonb"`
	SecurityPolicyRef string
	TimeoutSeconds    int
	IsIdempotent      bool
}

func (ActionType) TableName() string { return "oms.action_types" }

// SecurityPolicy is a named collection of rules over a target category.
type SecurityPolicy struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	SchemaVersionID string `gorm:"type:uuid;index:idx_policy_version_name,unique;not null"`
	Name            string `gorm:"index:idx_policy_version_name,unique;not null"`
	Description     string
	TargetType      string
	TargetRef       string
	MetadataJSON    JSONMap `gorm:"type:jsonb"`

	Rules []PolicyRule `gorm:"constraint:OnDelete:CASCADE;"`
}

func (SecurityPolicy) TableName() string { return "oms.security_policies" }

// PolicyRule is a rule within a policy: a role tied to an access level with
// optional scope, column filters, row filter, and conditions.
type PolicyRule struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	PolicyID        string `gorm:"type:uuid;index;not null"`
	Role            string `gorm:"index;not null"`
	AccessLevel     string `gorm:"not null"`
	Scope           *string
	ColumnFilters   JSONStringSlice `gorm:"type:jsonb"`
	RowFilterExpr   string
	Conditions      JSONStringSlice `gorm:"type:jsonb"`
	Priority        int `gorm:"index"`
}

func (PolicyRule) TableName() string { return "oms.policy_rules" }

// AuditLog is the persisted outcome of one Access Mediator operation.
// Indexed by (timestamp, actor_id), (operation, success), (target_type,
// target_id) per spec §6.
type AuditLog struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	Timestamp       time.Time `gorm:"index:idx_audit_ts_actor"`
	ActorID         string    `gorm:"index:idx_audit_ts_actor"`
	ActorRole       string
	Operation       string `gorm:"index:idx_audit_op_success"`
	TargetType      string `gorm:"index:idx_audit_target"`
	TargetID        string `gorm:"index:idx_audit_target"`
	Success         bool   `gorm:"index:idx_audit_op_success"`
	ErrorMessage    string
	RequestPayload  JSONMap `gorm:"type:jsonb"`
	ResponseSummary JSONMap `gorm:"type:jsonb"`
	ExecutionTimeMs int64
}

func (AuditLog) TableName() string { return "oms.audit_log" }
