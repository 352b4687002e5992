package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dbkit/internal/errs"
)

func TestDecodeJSON(t *testing.T) {
	v, err := DecodeJSON([]byte(`["IN", "id", [1, 2.5, null], {"n": 3}]`))
	require.NoError(t, err)
	assert.Equal(t, []any{"IN", "id", []any{int64(1), 2.5, nil}, map[string]any{"n": int64(3)}}, v)

	v, err = DecodeJSON([]byte(`"a > 1"`))
	require.NoError(t, err)
	assert.Equal(t, "a > 1", v)

	for _, empty := range []string{"", "  ", "null"} {
		v, err = DecodeJSON([]byte(empty))
		require.NoError(t, err)
		assert.Nil(t, v)
	}

	// Too large for int64.
	v, err = DecodeJSON([]byte(`[">", "n", 18446744073709551616]`))
	require.NoError(t, err)
	assert.Equal(t, 1.8446744073709552e19, v.([]any)[2])
}

func TestDecodeJSONInvalid(t *testing.T) {
	for _, in := range []string{`["=", "a"`, `[1] [2]`, `{"a":}`} {
		_, err := DecodeJSON([]byte(in))
		assert.True(t, errs.IsInvalidArgument(err), in)
	}
}

func TestDecodeJSONParses(t *testing.T) {
	v, err := DecodeJSON([]byte(`["AND", {"status": "active"}, ["BETWEEN", "age", 18, 65]]`))
	require.NoError(t, err)
	c, err := Parse(v)
	require.NoError(t, err)
	assert.Equal(t, "AND", c.Operator())
}
