package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms.heartbeat.dev/ontology/model"
)

func validDoc() *model.SchemaDocument {
	return &model.SchemaDocument{
		Version:   "v1",
		Namespace: "hockey",
		Metadata:  map[string]interface{}{"author": "rink-team", "created": "2026-01-01", "status": "draft"},
		ObjectTypes: []model.ObjectTypeDocument{
			{
				Name:       "player",
				PrimaryKey: "id",
				Properties: []model.PropertyDocument{
					{Name: "id", Type: "string"},
					{Name: "name", Type: "string"},
				},
				ResolverBackend: "bigquery",
				ResolverConfig:  map[string]interface{}{"table": "players"},
			},
			{
				Name:       "shift",
				PrimaryKey: "id",
				Properties: []model.PropertyDocument{
					{Name: "id", Type: "string"},
				},
				ResolverBackend: "parquet",
				ResolverConfig:  map[string]interface{}{"path": "/data/shifts"},
			},
		},
		LinkTypes: []model.LinkTypeDocument{
			{
				Name:           "player_shifts",
				FromObject:     "player",
				ToObject:       "shift",
				Cardinality:    "one_to_many",
				ResolverType:   "foreign_key",
				ResolverConfig: map[string]interface{}{"from_field": "id", "to_field": "player_id"},
			},
		},
		ActionTypes: []model.ActionTypeDocument{
			{Name: "cut_clip", TimeoutSeconds: 30},
		},
		Policies: []model.SecurityPolicyDocument{
			{
				Name:       "default_clip_policy",
				TargetType: "global",
				Rules:      []model.PolicyRuleDocument{{Role: "admin", AccessLevel: "full"}},
			},
		},
	}
}

func TestValidate_CleanDocumentHasNoErrors(t *testing.T) {
	issues := Validate(validDoc())
	assert.False(t, HasErrors(issues), "unexpected errors: %v", issues)
}

func TestValidate_MissingObjectTypesIsError(t *testing.T) {
	doc := validDoc()
	doc.ObjectTypes = nil
	issues := Validate(doc)
	require.True(t, HasErrors(issues))
	assert.Contains(t, issues[0].String(), "object_types")
}

func TestValidate_MissingSectionsWarnNotError(t *testing.T) {
	doc := validDoc()
	doc.LinkTypes = nil
	doc.ActionTypes = nil
	doc.Policies = nil
	issues := Validate(doc)
	assert.False(t, HasErrors(issues))

	var sawLink, sawAction, sawPolicy bool
	for _, issue := range issues {
		switch issue.Path {
		case "link_types":
			sawLink = true
		case "action_types":
			sawAction = true
		case "security_policies":
			sawPolicy = true
		}
		assert.Equal(t, SeverityWarning, issue.Severity)
	}
	assert.True(t, sawLink && sawAction && sawPolicy)
}

func TestValidate_MissingMetadataWarns(t *testing.T) {
	doc := validDoc()
	doc.Metadata = nil
	issues := Validate(doc)
	var found int
	for _, issue := range issues {
		if issue.Path == "metadata.author" || issue.Path == "metadata.created" || issue.Path == "metadata.status" {
			found++
			assert.Equal(t, SeverityWarning, issue.Severity)
		}
	}
	assert.Equal(t, 3, found)
}

func TestValidate_PrimaryKeyMustMatchAProperty(t *testing.T) {
	doc := validDoc()
	doc.ObjectTypes[0].PrimaryKey = "missing_field"
	issues := Validate(doc)
	require.True(t, HasErrors(issues))
}

func TestValidate_DuplicateObjectTypeNameErrors(t *testing.T) {
	doc := validDoc()
	doc.ObjectTypes = append(doc.ObjectTypes, doc.ObjectTypes[0])
	issues := Validate(doc)
	require.True(t, HasErrors(issues))
}

func TestValidate_UnknownResolverBackendWarnsOnly(t *testing.T) {
	doc := validDoc()
	doc.ObjectTypes[0].ResolverBackend = "s3"
	doc.ObjectTypes[0].ResolverConfig = nil
	issues := Validate(doc)
	var sawWarning bool
	for _, issue := range issues {
		if issue.Path == "object_types[0].resolver_backend" {
			sawWarning = true
			assert.Equal(t, SeverityWarning, issue.Severity)
		}
	}
	assert.True(t, sawWarning)
}

func TestValidate_BigQueryBackendRequiresTable(t *testing.T) {
	doc := validDoc()
	doc.ObjectTypes[0].ResolverConfig = map[string]interface{}{}
	issues := Validate(doc)
	require.True(t, HasErrors(issues))
}

func TestValidate_ParquetBackendRequiresPath(t *testing.T) {
	doc := validDoc()
	doc.ObjectTypes[1].ResolverConfig = map[string]interface{}{}
	issues := Validate(doc)
	require.True(t, HasErrors(issues))
}

func TestValidate_ForeignKeyLinkRequiresFromAndToField(t *testing.T) {
	doc := validDoc()
	doc.LinkTypes[0].ResolverConfig = map[string]interface{}{}
	issues := Validate(doc)
	require.True(t, HasErrors(issues))
}

func TestValidate_JoinTableLinkRequiresTable(t *testing.T) {
	doc := validDoc()
	doc.LinkTypes[0].ResolverType = "join_table"
	doc.LinkTypes[0].ResolverConfig = map[string]interface{}{}
	issues := Validate(doc)
	require.True(t, HasErrors(issues))
}

func TestValidate_EmptyEnumValuesWarns(t *testing.T) {
	doc := validDoc()
	doc.ObjectTypes[0].Properties[1].EnumValues = []string{}
	issues := Validate(doc)
	var found bool
	for _, issue := range issues {
		if issue.Path == "object_types[0].properties[1].enum_values" {
			found = true
			assert.Equal(t, SeverityWarning, issue.Severity)
		}
	}
	assert.True(t, found)
}

func TestValidate_UnknownPolicyRefWarns(t *testing.T) {
	doc := validDoc()
	doc.ObjectTypes[0].SecurityPolicy = "missing_policy"
	issues := Validate(doc)
	assert.False(t, HasErrors(issues))
	var found bool
	for _, issue := range issues {
		if issue.Path == "object_types[0].security_policy" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestIssueString_IncludesSuggestionWhenPresent(t *testing.T) {
	issue := Issue{Severity: SeverityError, Path: "x", Message: "bad", Suggestion: "fix it"}
	assert.Contains(t, issue.String(), "fix it")

	bare := Issue{Severity: SeverityError, Path: "x", Message: "bad"}
	assert.NotContains(t, bare.String(), "(")
}
