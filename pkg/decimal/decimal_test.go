package decimal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, s string) Decimal {
	t.Helper()
	d, err := New(s)
	require.NoError(t, err)
	return d
}

func TestArithmeticIsExact(t *testing.T) {
	// 0.1 + 0.2 is the classic float64 failure case.
	sum := mustNew(t, "0.1").Add(mustNew(t, "0.2"))
	assert.Equal(t, "0.3", sum.String())

	fee := mustNew(t, "0.000000000000000001")
	total := fee.Mul(mustNew(t, "1000000"))
	assert.Zero(t, total.Cmp(mustNew(t, "0.000000000001")))
}

func TestZeroValue(t *testing.T) {
	var d Decimal
	assert.True(t, d.IsZero())
	assert.Zero(t, d.Cmp(Zero))
	assert.Equal(t, "0", d.String())
}

func TestMax(t *testing.T) {
	a := mustNew(t, "1.50")
	b := mustNew(t, "1.5")
	assert.Zero(t, Max(a, b).Cmp(a), "equal values compare equal regardless of trailing zeros")
	assert.Zero(t, Max(mustNew(t, "-3"), Zero).Cmp(Zero))
	assert.Zero(t, Max(mustNew(t, "2"), mustNew(t, "10")).Cmp(mustNew(t, "10")))
}

func TestNewRejectsGarbage(t *testing.T) {
	_, err := New("not a number")
	assert.Error(t, err)
}

func TestJSONRoundTrip(t *testing.T) {
	d := mustNew(t, "0.000000000000000123456789")

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"0.000000000000000123456789"`, string(data), "marshals as a string to keep precision")

	var back Decimal
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Zero(t, back.Cmp(d))

	// Bare number tokens are accepted too.
	var fromNumber Decimal
	require.NoError(t, json.Unmarshal([]byte(`0.5`), &fromNumber))
	assert.Zero(t, fromNumber.Cmp(mustNew(t, "0.5")))
}
