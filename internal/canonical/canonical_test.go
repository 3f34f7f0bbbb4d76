package canonical

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_KeyOrdering(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": 3}
	b := map[string]interface{}{"c": 3, "a": 2, "b": 1}

	got, err := Canonicalize(a)
	require.NoError(t, err)
	want, err := Canonicalize(b)
	require.NoError(t, err)

	assert.Equal(t, string(want), string(got))
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(got))
}

func TestCanonicalize_NestedAndArrays(t *testing.T) {
	v := map[string]interface{}{
		"z": []interface{}{3, 1, 2},
		"a": map[string]interface{}{"y": true, "x": nil},
	}
	got, err := Canonicalize(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"x":null,"y":true},"z":[3,1,2]}`, string(got))
}

func TestCanonicalize_ArrayOrderPreserved(t *testing.T) {
	got, err := Canonicalize([]interface{}{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, "[3,1,2]", string(got))
}

func TestCanonicalize_StringEscaping(t *testing.T) {
	got, err := Canonicalize("line\nbreak\ttab\"quote\\back")
	require.NoError(t, err)
	assert.Equal(t, `"line\nbreak\ttab\"quote\\back"`, string(got))
}

func TestCanonicalize_ControlCharacterEscaped(t *testing.T) {
	got, err := Canonicalize(string([]byte{0x01}))
	require.NoError(t, err)
	assert.Equal(t, `"\u0001"`, string(got))
}

func TestCanonicalize_NumberShortestForm(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"integer", 42, "42"},
		{"zero", 0, "0"},
		{"negative", -7, "-7"},
		{"float", 1.5, "1.5"},
		{"large whole", 1e10, "10000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestCanonicalize_NonFiniteFails(t *testing.T) {
	// Go's json.Marshal itself rejects NaN/Inf floats, so the failure
	// surfaces at the marshal step rather than writeNumber — still an
	// error, which is all the contract (fail fast on non-finite) requires.
	_, err := Canonicalize(map[string]interface{}{"n": math.NaN()})
	assert.Error(t, err)
}

func TestCanonicalize_Determinism(t *testing.T) {
	type payload struct {
		B int    `json:"b"`
		A string `json:"a"`
	}
	p := payload{B: 2, A: "x"}

	first, err := Canonicalize(p)
	require.NoError(t, err)
	second, err := Canonicalize(p)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))

	// Re-parsing and re-canonicalizing the bytes must reproduce them exactly
	// (property 1 in the testable-properties list: canonicalize(v) =
	// canonicalize(parse(render(canonicalize(v))))).
	var roundTripped interface{}
	require.NoError(t, json.Unmarshal(first, &roundTripped))
	again, err := Canonicalize(roundTripped)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(again))
}

func TestHash_IsDeterministicSHA256(t *testing.T) {
	v := map[string]interface{}{"x": 1}
	h1, err := Hash(v)
	require.NoError(t, err)
	h2, err := Hash(v)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)
	assert.Equal(t, hex.EncodeToString(h1), hex.EncodeToString(h2))
}

