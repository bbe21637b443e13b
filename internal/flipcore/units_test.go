package flipcore

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
		wantErr  bool
	}{
		{"1", 18, "1000000000000000000", false},
		{"12.5", 18, "12500000000000000000", false},
		{"0.00000001", 8, "1", false},
		{"0", 18, "0", false},
		{"100", 0, "100", false},
		{"1.123456789", 8, "", true},
		{"", 18, "", true},
		{"abc", 18, "", true},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in, tc.decimals)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.String(), tc.in)
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals int
		want     string
	}{
		{"1000000000000000000", 18, "1"},
		{"12500000000000000000", 18, "12.5"},
		{"1", 18, "0.000000000000000001"},
		{"0", 18, "0"},
		{"-12500000000000000000", 18, "-12.5"},
		{"42", 0, "42"},
	}
	for _, tc := range cases {
		v, ok := new(big.Int).SetString(tc.in, 10)
		require.True(t, ok)
		assert.Equal(t, tc.want, FormatUnits(v, tc.decimals), tc.in)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	v, err := ParseUnits("123.456", 18)
	require.NoError(t, err)
	assert.Equal(t, "123.456", FormatUnits(v, 18))
}
