package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministicIDIsStableForSameInputs(t *testing.T) {
	t.Parallel()

	a := DeterministicID("call-1", "revenue.yml", "metric")
	b := DeterministicID("call-1", "revenue.yml", "metric")
	require.Equal(t, a, b)
}

func TestDeterministicIDDiffersByAnyInput(t *testing.T) {
	t.Parallel()

	base := DeterministicID("call-1", "revenue.yml", "metric")
	require.NotEqual(t, base, DeterministicID("call-2", "revenue.yml", "metric"))
	require.NotEqual(t, base, DeterministicID("call-1", "other.yml", "metric"))
	require.NotEqual(t, base, DeterministicID("call-1", "revenue.yml", "dashboard"))
}

func TestDeterministicIDHasVersionAndVariantBitsSet(t *testing.T) {
	t.Parallel()

	id := DeterministicID("call-1", "revenue.yml", "metric")
	require.Equal(t, byte(0x5), id[6]>>4)
	require.Equal(t, byte(0x2), id[8]>>6)
}
