package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_WellFormed(t *testing.T) {
	doc, err := Parse(strings.NewReader(`{"players":[{"id":"u1","usernames":["Steve"]}],"version":2}`), DefaultParseLimits())
	require.NoError(t, err)

	players, ok := doc["players"].([]interface{})
	require.True(t, ok)
	require.Len(t, players, 1)
	rec := players[0].(map[string]interface{})
	assert.Equal(t, "u1", rec["id"])
}

func TestParse_Rejections(t *testing.T) {
	limits := ParseLimits{MaxDepth: 4, MaxStringLen: 16, MaxArrayLen: 3}

	tests := []struct {
		name  string
		input string
	}{
		{"malformed JSON", `{"players":[`},
		{"trailing data", `{"players":[]} {"again":true}`},
		{"top-level array", `[1,2,3]`},
		{"top-level scalar", `42`},
		{"too deep", `{"a":{"b":{"c":{"d":{"e":1}}}}}`},
		{"long string value", `{"a":"` + strings.Repeat("x", 17) + `"}`},
		{"long object key", `{"` + strings.Repeat("k", 17) + `":1}`},
		{"long array", `{"a":[1,2,3,4]}`},
		{"empty input", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input), limits)
			require.Error(t, err)
			var ie *InputError
			assert.ErrorAs(t, err, &ie)
		})
	}
}

func TestParse_DepthCountsArraysAndObjects(t *testing.T) {
	limits := ParseLimits{MaxDepth: 3, MaxStringLen: 64, MaxArrayLen: 16}

	_, err := Parse(strings.NewReader(`{"a":[{"b":1}]}`), limits)
	assert.NoError(t, err)

	_, err = Parse(strings.NewReader(`{"a":[{"b":[1]}]}`), limits)
	assert.Error(t, err)
}

func TestParse_NumbersSurviveAsJSONNumber(t *testing.T) {
	// Epoch-millisecond timestamps must not round through float64.
	doc, err := Parse(strings.NewReader(`{"ts":1767225600001}`), DefaultParseLimits())
	require.NoError(t, err)

	n, ok := doc["ts"].(interface{ Int64() (int64, error) })
	require.True(t, ok, "expected a json.Number, got %T", doc["ts"])
	v, err := n.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1767225600001), v)
}
