package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONAny_RoundTrips(t *testing.T) {
	cases := []interface{}{
		nil,
		"active",
		float64(5),
		true,
		map[string]interface{}{"min": float64(0), "max": float64(10)},
		[]interface{}{"a", "b"},
	}
	for _, want := range cases {
		any := NewJSONAny(want)
		got, err := any.Interface()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestJSONAny_ValueAndScanRoundTrip(t *testing.T) {
	any := NewJSONAny("draft")

	val, err := any.Value()
	require.NoError(t, err)

	var scanned JSONAny
	require.NoError(t, scanned.Scan(val))

	got, err := scanned.Interface()
	require.NoError(t, err)
	assert.Equal(t, "draft", got)
}
