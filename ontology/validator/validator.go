// Package validator implements the Schema Validator (spec §4.B). It checks
// a SchemaDocument for structural and referential problems and never
// raises: every problem, however severe, comes back as an Issue in the
// returned slice. Callers (the registry) decide what to do with errors.
package validator

import (
	"fmt"

	"oms.heartbeat.dev/ontology/model"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Issue struct {
	Severity   Severity
	Path       string
	Message    string
	Suggestion string
}

func (i Issue) String() string {
	if i.Suggestion == "" {
		return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Path, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s (%s)", i.Severity, i.Path, i.Message, i.Suggestion)
}

// recommendedMetadataFields are the keys checkMetadata warns about when
// absent from doc.Metadata.
var recommendedMetadataFields = []string{"author", "created", "status"}

// Validate checks doc and returns every issue found. A nil/empty slice
// means the document is clean. HasErrors reports whether publishing should
// be blocked.
func Validate(doc *model.SchemaDocument) []Issue {
	var issues []Issue

	if doc.Version == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: "version", Message: "version is required"})
	}

	if len(doc.ObjectTypes) == 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: "object_types",
			Message: "object_types is required", Suggestion: "declare at least one object type"})
	}
	if len(doc.LinkTypes) == 0 {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: "link_types", Message: "no link types declared"})
	}
	if len(doc.ActionTypes) == 0 {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: "action_types", Message: "no action types declared"})
	}
	if len(doc.Policies) == 0 {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: "security_policies",
			Message: "no security policies declared, every access check defaults to deny"})
	}
	issues = append(issues, checkMetadata(doc.Metadata)...)

	objectNames := make(map[string]bool, len(doc.ObjectTypes))
	for i, ot := range doc.ObjectTypes {
		path := fmt.Sprintf("object_types[%d]", i)
		issues = append(issues, validateObjectType(path, ot, objectNames)...)
	}

	for i, lt := range doc.LinkTypes {
		path := fmt.Sprintf("link_types[%d]", i)
		issues = append(issues, validateLinkType(path, lt, objectNames)...)
	}

	actionNames := make(map[string]bool, len(doc.ActionTypes))
	for i, at := range doc.ActionTypes {
		path := fmt.Sprintf("action_types[%d]", i)
		issues = append(issues, validateActionType(path, at, actionNames)...)
	}

	policyNames := make(map[string]bool, len(doc.Policies))
	for i, p := range doc.Policies {
		path := fmt.Sprintf("security_policies[%d]", i)
		issues = append(issues, validatePolicy(path, p, policyNames)...)
	}

	issues = append(issues, checkPolicyRefs(doc, objectNames, actionNames, policyNames)...)

	return issues
}

// checkMetadata warns about missing recommended metadata fields; it never
// errors since metadata is advisory (spec §4.B).
func checkMetadata(metadata map[string]interface{}) []Issue {
	var issues []Issue
	for _, field := range recommendedMetadataFields {
		if _, ok := metadata[field]; !ok {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: "metadata." + field,
				Message: fmt.Sprintf("recommended metadata field %q is missing", field)})
		}
	}
	return issues
}

// HasErrors reports whether issues contains at least one SeverityError.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func validateObjectType(path string, ot model.ObjectTypeDocument, seen map[string]bool) []Issue {
	var issues []Issue
	if ot.Name == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: "name is required"})
	} else if seen[ot.Name] {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: fmt.Sprintf("duplicate object type name %q", ot.Name)})
	} else {
		seen[ot.Name] = true
	}

	if ot.ResolverBackend != "" {
		if !model.ValidResolverBackends[ot.ResolverBackend] {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: path + ".resolver_backend", Message: fmt.Sprintf("unknown resolver backend %q", ot.ResolverBackend)})
		}
		switch ot.ResolverBackend {
		case "bigquery":
			if _, ok := ot.ResolverConfig["table"]; !ok {
				issues = append(issues, Issue{Severity: SeverityError, Path: path + ".resolver_config.table",
					Message: "bigquery backend requires a table", Suggestion: "set resolver_config.table"})
			}
		case "parquet":
			if _, ok := ot.ResolverConfig["path"]; !ok {
				issues = append(issues, Issue{Severity: SeverityError, Path: path + ".resolver_config.path",
					Message: "parquet backend requires a path", Suggestion: "set resolver_config.path"})
			}
		}
	}

	propNames := make(map[string]bool, len(ot.Properties))
	hasPK := ot.PrimaryKey == ""
	for j, p := range ot.Properties {
		ppath := fmt.Sprintf("%s.properties[%d]", path, j)
		if p.Name == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: ppath + ".name", Message: "name is required"})
		} else if propNames[p.Name] {
			issues = append(issues, Issue{Severity: SeverityError, Path: ppath + ".name", Message: fmt.Sprintf("duplicate property name %q", p.Name)})
		} else {
			propNames[p.Name] = true
		}
		if p.Name == ot.PrimaryKey {
			hasPK = true
		}
		if !model.ValidPropertyTypes[p.Type] {
			issues = append(issues, Issue{Severity: SeverityError, Path: ppath + ".type", Message: fmt.Sprintf("unknown property type %q", p.Type)})
		}
		if p.EnumValues != nil && len(p.EnumValues) == 0 {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: ppath + ".enum_values", Message: "enum_values is present but empty"})
		}
	}
	if !hasPK {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".primary_key", Message: fmt.Sprintf("primary_key %q does not match any declared property", ot.PrimaryKey)})
	}
	return issues
}

func validateLinkType(path string, lt model.LinkTypeDocument, objectNames map[string]bool) []Issue {
	var issues []Issue
	if lt.Name == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: "name is required"})
	}
	if !model.ValidCardinalities[lt.Cardinality] {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".cardinality", Message: fmt.Sprintf("unknown cardinality %q", lt.Cardinality)})
	}
	if lt.FromObject == "" || !objectNames[lt.FromObject] {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".from_object", Message: fmt.Sprintf("unknown object type %q", lt.FromObject)})
	}
	if lt.ToObject == "" || !objectNames[lt.ToObject] {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".to_object", Message: fmt.Sprintf("unknown object type %q", lt.ToObject)})
	}
	switch lt.ResolverType {
	case "foreign_key":
		if _, ok := lt.ResolverConfig["from_field"]; !ok {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".resolver_config.from_field", Message: "foreign_key resolver requires from_field"})
		}
		if _, ok := lt.ResolverConfig["to_field"]; !ok {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".resolver_config.to_field", Message: "foreign_key resolver requires to_field"})
		}
	case "join_table":
		if _, ok := lt.ResolverConfig["table"]; !ok {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".resolver_config.table", Message: "join_table resolver requires table"})
		}
	}
	return issues
}

func validateActionType(path string, at model.ActionTypeDocument, seen map[string]bool) []Issue {
	var issues []Issue
	if at.Name == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: "name is required"})
	} else if seen[at.Name] {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: fmt.Sprintf("duplicate action type name %q", at.Name)})
	} else {
		seen[at.Name] = true
	}
	if at.TimeoutSeconds < 0 {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path + ".timeout_seconds", Message: "negative timeout, treating as unset"})
	}
	return issues
}

func validatePolicy(path string, p model.SecurityPolicyDocument, seen map[string]bool) []Issue {
	var issues []Issue
	if p.Name == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: "name is required"})
	} else if seen[p.Name] {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: fmt.Sprintf("duplicate security policy name %q", p.Name)})
	} else {
		seen[p.Name] = true
	}
	if p.TargetType != "" && !model.ValidPolicyTargets[p.TargetType] {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".target_type", Message: fmt.Sprintf("unknown policy target %q", p.TargetType)})
	}

	if len(p.Rules) == 0 {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path + ".rules", Message: "policy has no rules, every role is implicitly denied"})
	}
	for j, r := range p.Rules {
		rpath := fmt.Sprintf("%s.rules[%d]", path, j)
		if r.Role == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: rpath + ".role", Message: "role is required"})
		}
		if !model.ValidAccessLevels[r.AccessLevel] {
			issues = append(issues, Issue{Severity: SeverityError, Path: rpath + ".access_level", Message: fmt.Sprintf("unknown access level %q", r.AccessLevel)})
		}
		if r.Scope != "" && !model.ValidScopes[r.Scope] {
			issues = append(issues, Issue{Severity: SeverityError, Path: rpath + ".scope", Message: fmt.Sprintf("unknown scope %q", r.Scope)})
		}
	}
	return issues
}

// checkPolicyRefs warns (never errors — a missing policy ref just means
// deny-by-default per the policy engine) when an object/action names a
// security_policy that does not exist in the same document.
func checkPolicyRefs(doc *model.SchemaDocument, objectNames, actionNames, policyNames map[string]bool) []Issue {
	var issues []Issue
	for i, ot := range doc.ObjectTypes {
		if ot.SecurityPolicy != "" && !policyNames[ot.SecurityPolicy] {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: fmt.Sprintf("object_types[%d].security_policy", i), Message: fmt.Sprintf("references unknown policy %q, access defaults to deny", ot.SecurityPolicy)})
		}
	}
	for i, at := range doc.ActionTypes {
		if at.SecurityPolicy != "" && !policyNames[at.SecurityPolicy] {
			issues = append(issues, Issue{Severity: SeverityWarning, Path: fmt.Sprintf("action_types[%d].security_policy", i), Message: fmt.Sprintf("references unknown policy %q, access defaults to deny", at.SecurityPolicy)})
		}
	}
	_ = objectNames
	_ = actionNames
	return issues
}
