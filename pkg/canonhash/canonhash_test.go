package canonhash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumJSONPrefixAndSensitivity(t *testing.T) {
	ha, canonical, err := SumJSON([]byte(`{"b":2,"a":{"y":2,"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"x":1,"y":2},"b":2}`, string(canonical))
	assert.True(t, strings.HasPrefix(ha, Prefix))
	assert.Len(t, ha, len(Prefix)+64)

	hb, _, err := SumJSON([]byte(`{"b":3,"a":{"y":2,"x":1}}`))
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestSumJSON(t *testing.T) {
	t.Run("key order does not matter", func(t *testing.T) {
		ha, _, err := SumJSON([]byte(`{"patient":"p","data":{"z":1,"a":[true,null]}}`))
		require.NoError(t, err)
		hb, _, err := SumJSON([]byte(`{ "data": {"a":[true, null], "z":1}, "patient":"p" }`))
		require.NoError(t, err)
		assert.Equal(t, ha, hb)
	})

	t.Run("numbers keep their literal form", func(t *testing.T) {
		_, canonical, err := SumJSON([]byte(`{"dose":1.50}`))
		require.NoError(t, err)
		assert.Equal(t, `{"dose":1.50}`, string(canonical))
	})

	t.Run("html is not escaped", func(t *testing.T) {
		_, canonical, err := SumJSON([]byte(`{"note":"a<b"}`))
		require.NoError(t, err)
		assert.Equal(t, `{"note":"a<b"}`, string(canonical))
	})

	t.Run("rejects trailing data", func(t *testing.T) {
		_, _, err := SumJSON([]byte(`{"a":1} {"b":2}`))
		assert.Error(t, err)
	})
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("sha256:ab", "sha256:ab"))
	assert.False(t, Equal("sha256:ab", "sha256:ac"))
}
