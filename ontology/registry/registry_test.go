package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oms.heartbeat.dev/ontology/model"
)

func TestDocumentToModel_CarriesPropertyDefaultValue(t *testing.T) {
	doc := &model.SchemaDocument{
		Version: "v1.0.0",
		ObjectTypes: []model.ObjectTypeDocument{
			{
				Name: "player",
				Properties: []model.PropertyDocument{
					{Name: "status", Type: "string", DefaultValue: "active"},
					{Name: "jersey_number", Type: "integer"},
				},
			},
		},
	}

	sv := documentToModel(doc, "tester")
	require.Len(t, sv.ObjectTypes, 1)
	require.Len(t, sv.ObjectTypes[0].Properties, 2)

	status := sv.ObjectTypes[0].Properties[0]
	got, err := status.DefaultValue.Interface()
	require.NoError(t, err)
	assert.Equal(t, "active", got)

	jersey := sv.ObjectTypes[0].Properties[1]
	got, err = jersey.DefaultValue.Interface()
	require.NoError(t, err)
	assert.Nil(t, got)
}
