package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashProperty_Deterministic(t *testing.T) {
	first := HashProperty("221B Baker Street, London", 120)
	second := HashProperty("221B Baker Street, London", 120)
	assert.Equal(t, first, second)
	assert.False(t, first.IsZero())
}

func TestHashProperty_DistinctInputs(t *testing.T) {
	base := HashProperty("221B Baker Street, London", 120)

	assert.NotEqual(t, base, HashProperty("221B Baker Street, London", 121))
	assert.NotEqual(t, base, HashProperty("221B Baker Street, Londo", 120))
	assert.NotEqual(t, base, HashProperty("", 120))
}

func TestParseHash_RoundTrip(t *testing.T) {
	original := HashProperty("Abay Avenue 52, Almaty", 85)

	parsed, err := ParseHash(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	// The prefix is optional and case does not matter.
	parsed, err = ParseHash(original.String()[2:])
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseHash_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"too short", "0xdeadbeef"},
		{"too long", "0x" + strings.Repeat("ab", 33)},
		{"not hex", "0xzz00000000000000000000000000000000000000000000000000000000000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseHash(tc.input)
			assert.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}

func TestHash_JSONRoundTrip(t *testing.T) {
	original := HashProperty("Dostyk 5", 60)

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "0x")

	var decoded Hash
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original, decoded)
}

func TestComputeFee(t *testing.T) {
	cases := []struct {
		name  string
		price uint64
		bps   uint32
		want  uint64
	}{
		{"zero rate", 1000, 0, 0},
		{"one percent", 200, 100, 2},
		{"truncates remainder", 199, 100, 1},
		{"max rate", 10000, MaxFeeBps, 250},
		{"sub denominator price", 99, 100, 0},
		{"large price no overflow", 1 << 62, 250, 115292150460684697},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComputeFee(tc.price, tc.bps))
		})
	}
}
