package clips

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "123", "123"},
		{"quoted", `"123"`, "123"},
		{"float_suffix", "123.0", "123"},
		{"quoted_float_suffix", `"123.0"`, "123"},
		{"whitespace", "  123  ", "123"},
		{"single_quoted", "'123'", "123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeID(tc.in))
		})
	}
}

func TestNormalizeID_AllVariantsCompareEqual(t *testing.T) {
	assert.Equal(t, NormalizeID("123"), NormalizeID(`"123"`))
	assert.Equal(t, NormalizeID("123"), NormalizeID("123.0"))
}
