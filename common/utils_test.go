package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		want   string
	}{
		{"empty", "", "<not set>"},
		{"short", "short", "***"},
		{"long", "myverylongsecretkey123", "myve...y123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MaskSecret(tc.secret))
		})
	}
}

func TestPtr_PtrValue_RoundTrip(t *testing.T) {
	p := Ptr(42)
	assert.Equal(t, 42, PtrValue(p))
	assert.Equal(t, 0, PtrValue[int](nil))

	s := Ptr("team_scoped")
	assert.Equal(t, "team_scoped", PtrValue(s))
	assert.Equal(t, "", PtrValue[string](nil))
}
