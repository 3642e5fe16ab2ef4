package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCanonicalizesCommonForms(t *testing.T) {
	n := NewNormalizer("1")

	cases := []struct {
		raw  string
		want string
	}{
		{"(555) 123-4567", "+15551234567"},
		{"555-123-4567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{"+15551234567", "+15551234567"},
		{"555.123.4567", "+15551234567"},
		{" +44 20 7946 0958 ", "+442079460958"},
		{"442079460958", "+442079460958"},
	}
	for _, tc := range cases {
		got, err := n.Normalize(tc.raw)
		require.NoError(t, err, "raw %q", tc.raw)
		assert.Equal(t, tc.want, got, "raw %q", tc.raw)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	n := NewNormalizer("")

	for _, raw := range []string{"", "   ", "ext. only", "12345", "+123", "123456789012345678"} {
		_, err := n.Normalize(raw)
		assert.Error(t, err, "raw %q", raw)
	}
}

func TestNewNormalizerDefaultsCountryCode(t *testing.T) {
	n := NewNormalizer("")
	assert.Equal(t, "1", n.DefaultCountryCode)

	got, err := n.Normalize("5551234567")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", got)
}
