package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSpec_ValidObject(t *testing.T) {
	spec, err := ParseSpec([]byte(`{"mark": "bar", "data": {"values": [{"a": 1}]}}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"mark":"bar","data":{"values":[{"a":1}]}}`, string(spec))
}

func TestParseSpec_Compacts(t *testing.T) {
	spec, err := ParseSpec([]byte("  {\n\t\"mark\": \"line\"\n}\n"))
	require.NoError(t, err)
	require.Equal(t, `{"mark":"line"}`, string(spec))
}

func TestParseSpec_RejectsEmpty(t *testing.T) {
	_, err := ParseSpec(nil)
	require.ErrorIs(t, err, ErrInvalidSpec)

	_, err = ParseSpec([]byte("   "))
	require.ErrorIs(t, err, ErrInvalidSpec)
}

func TestParseSpec_RejectsNonObject(t *testing.T) {
	for _, raw := range []string{`[1, 2, 3]`, `"bar"`, `42`, `true`} {
		_, err := ParseSpec([]byte(raw))
		require.ErrorIs(t, err, ErrInvalidSpec, "input: %s", raw)
	}
}

func TestParseSpec_RejectsMalformed(t *testing.T) {
	_, err := ParseSpec([]byte(`{"mark": `))
	require.ErrorIs(t, err, ErrInvalidSpec)

	_, err = ParseSpec([]byte(`{"mark": "bar"} trailing`))
	require.ErrorIs(t, err, ErrInvalidSpec)
}

func TestParseDisplayPolicy(t *testing.T) {
	policy, err := ParseDisplayPolicy("lazy")
	require.NoError(t, err)
	require.Equal(t, DisplayLazy, policy)

	policy, err = ParseDisplayPolicy("")
	require.NoError(t, err)
	require.Equal(t, DisplayEager, policy)

	_, err = ParseDisplayPolicy("sometimes")
	require.Error(t, err)
}
