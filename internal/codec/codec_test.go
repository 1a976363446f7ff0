package codec

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64_RoundTrip_Boundaries(t *testing.T) {
	c := Int64{}
	for _, id := range []int64{math.MinInt64, -1, 0, 1, 42, math.MaxInt64} {
		got, err := c.Decode(c.Encode(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestInt64_Decode_RejectsGarbage(t *testing.T) {
	_, err := Int64{}.Decode("12abc")
	assert.Error(t, err)

	// One past MaxInt64 overflows.
	_, err = Int64{}.Decode("9223372036854775808")
	assert.Error(t, err)
}

func TestString_RoundTrip(t *testing.T) {
	c := String{}
	for _, id := range []string{"", "a", "with space", "ünïcödé", "id:with:colons"} {
		got, err := c.Decode(c.Encode(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestUUID_RoundTrip(t *testing.T) {
	c := UUID{}
	maxID, err := uuid.Parse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	require.NoError(t, err)

	for _, id := range []uuid.UUID{uuid.Nil, maxID, uuid.New()} {
		got, err := c.Decode(c.Encode(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestUUID_Decode_RejectsGarbage(t *testing.T) {
	_, err := UUID{}.Decode("not-a-uuid")
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "int", Int64{}.Name())
	assert.Equal(t, "string", String{}.Name())
	assert.Equal(t, "uuid", UUID{}.Name())
}
