package model

// The Document* types mirror the YAML schema documents the Schema Registry
// ingests (spec §4.A/§4.C) — the wire format a schema author writes, as
// opposed to the GORM-tagged rows in model.go that the registry persists after
// validation. Field names match the YAML keys directly via yaml tags.

type SchemaDocument struct {
	Version     string                     `yaml:"version"`
	Namespace   string                     `yaml:"namespace"`
	Description string                     `yaml:"description"`
	Changelog   []string                   `yaml:"changelog"`
	// Metadata carries free-form recommended fields (author, created,
	// status) the validator warns about when absent but never requires.
	Metadata    map[string]interface{}     `yaml:"metadata"`
	ObjectTypes []ObjectTypeDocument       `yaml:"object_types"`
	LinkTypes   []LinkTypeDocument         `yaml:"link_types"`
	ActionTypes []ActionTypeDocument       `yaml:"action_types"`
	Policies    []SecurityPolicyDocument   `yaml:"security_policies"`
}

type ObjectTypeDocument struct {
	Name            string             `yaml:"name"`
	Description     string             `yaml:"description"`
	PrimaryKey      string             `yaml:"primary_key"`
	Properties      []PropertyDocument `yaml:"properties"`
	ResolverBackend string             `yaml:"resolver_backend"`
	ResolverConfig  map[string]interface{} `yaml:"resolver_config"`
	SecurityPolicy  string             `yaml:"security_policy"`
}

type PropertyDocument struct {
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"`
	Required     bool          `yaml:"required"`
	Description  string        `yaml:"description"`
	EnumValues   []string      `yaml:"enum_values"`
	DefaultValue interface{}   `yaml:"default_value"`
	Constraints  map[string]interface{} `yaml:"constraints"`
}

type LinkTypeDocument struct {
	Name           string                 `yaml:"name"`
	Description    string                 `yaml:"description"`
	FromObject     string                 `yaml:"from_object"`
	ToObject       string                 `yaml:"to_object"`
	Cardinality    string                 `yaml:"cardinality"`
	ResolverType   string                 `yaml:"resolver_type"`
	ResolverConfig map[string]interface{} `yaml:"resolver_config"`
	SecurityPolicy string                 `yaml:"security_policy"`
}

type ActionTypeDocument struct {
	Name           string                 `yaml:"name"`
	Description    string                 `yaml:"description"`
	InputSchema    map[string]interface{} `yaml:"input_schema"`
	Preconditions  []string               `yaml:"preconditions"`
	Effects        []string               `yaml:"effects"`
	SecurityPolicy string                 `yaml:"security_policy"`
	TimeoutSeconds int                    `yaml:"timeout_seconds"`
	IsIdempotent   bool                   `yaml:"is_idempotent"`
}

type SecurityPolicyDocument struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	TargetType  string               `yaml:"target_type"`
	TargetRef   string               `yaml:"target_ref"`
	Rules       []PolicyRuleDocument `yaml:"rules"`
}

type PolicyRuleDocument struct {
	Role          string   `yaml:"role"`
	AccessLevel   string   `yaml:"access_level"`
	Scope         string   `yaml:"scope"`
	ColumnFilters []string `yaml:"column_filters"`
	RowFilter     string   `yaml:"row_filter"`
	Conditions    []string `yaml:"conditions"`
	Priority      int      `yaml:"priority"`
}
