package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenpanel/warden-backend/internal/models"
)

// decodeRecord runs one player record through the parser so the raw value
// has the exact shape validation sees in production (json.Number and all).
func decodeRecord(t *testing.T, jsonRecord string) interface{} {
	t.Helper()
	doc, err := Parse(strings.NewReader(`{"players":[`+jsonRecord+`]}`), DefaultParseLimits())
	require.NoError(t, err)
	players := doc["players"].([]interface{})
	require.Len(t, players, 1)
	return players[0]
}

func TestValidatePlayer_Minimal(t *testing.T) {
	p, err := ValidatePlayer(decodeRecord(t, `{"id":"u1","usernames":["Steve"]}`), 0)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	require.Len(t, p.Usernames, 1)
	assert.Equal(t, "Steve", p.Usernames[0].Name)
}

func TestValidatePlayer_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		record string
		field  string
	}{
		{"missing id", `{"usernames":["Steve"]}`, "id"},
		{"blank id", `{"id":"   "}`, "id"},
		{"operator-prefixed id", `{"id":"$where"}`, "id"},
		{"non-object record", `42`, ""},
		{"bad ip", `{"id":"u1","ips":[{"address":"999.1.1.1"}]}`, "ips[0].address"},
		{"ipv6 rejected", `{"id":"u1","ips":[{"address":"::1"}]}`, "ips[0].address"},
		{"shorthand ip rejected", `{"id":"u1","ips":[{"address":"10.1"}]}`, "ips[0].address"},
		{"date before 1970", `{"id":"u1","punishments":[{"id":"p1","type":0,"issued":-5}]}`, "punishments[0].issued"},
		{"date after 2100", `{"id":"u1","punishments":[{"id":"p1","type":0,"issued":4200000000000000}]}`, "punishments[0].issued"},
		{"duration below -1", `{"id":"u1","punishments":[{"id":"p1","type":0,"issued":1000,"duration":-2}]}`, "punishments[0].duration"},
		{"bool from junk string", `{"id":"u1","punishments":[{"id":"p1","type":0,"issued":1000,"active":"yes"}]}`, "punishments[0].active"},
		{"negative type ordinal", `{"id":"u1","punishments":[{"id":"p1","type":-1,"issued":1000}]}`, "punishments[0].type"},
		{"punishment missing id", `{"id":"u1","punishments":[{"type":0,"issued":1000}]}`, "punishments[0].id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidatePlayer(decodeRecord(t, tt.record), 7)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, 7, ve.Index)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidatePlayer_Coercions(t *testing.T) {
	t.Run("booleans from literal strings", func(t *testing.T) {
		p, err := ValidatePlayer(decodeRecord(t,
			`{"id":"u1","ips":[{"address":"10.0.0.1","proxy":"true","hosting":false}]}`), 0)
		require.NoError(t, err)
		require.Len(t, p.IPs, 1)
		require.NotNil(t, p.IPs[0].Proxy)
		assert.True(t, *p.IPs[0].Proxy)
		require.NotNil(t, p.IPs[0].Hosting)
		assert.False(t, *p.IPs[0].Hosting)
	})

	t.Run("timestamps from millis and RFC 3339", func(t *testing.T) {
		p, err := ValidatePlayer(decodeRecord(t,
			`{"id":"u1","punishments":[{"id":"p1","type":0,"issued":1767225600000,"start":"2026-01-01T00:00:00Z"}]}`), 0)
		require.NoError(t, err)
		require.Len(t, p.Punishments, 1)
		want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		assert.True(t, p.Punishments[0].IssuedAt.Equal(want))
		require.NotNil(t, p.Punishments[0].StartedAt)
		assert.True(t, p.Punishments[0].StartedAt.Equal(want))
	})

	t.Run("permanent durations pass through", func(t *testing.T) {
		p, err := ValidatePlayer(decodeRecord(t,
			`{"id":"u1","punishments":[{"id":"p1","type":0,"issued":1000,"duration":-1}]}`), 0)
		require.NoError(t, err)
		require.NotNil(t, p.Punishments[0].Duration)
		assert.Equal(t, int64(-1), *p.Punishments[0].Duration)
	})

	t.Run("firstLogin falls back to earliest login", func(t *testing.T) {
		p, err := ValidatePlayer(decodeRecord(t,
			`{"id":"u1","ips":[{"address":"10.0.0.1","logins":[3000,1000,2000]}]}`), 0)
		require.NoError(t, err)
		assert.True(t, p.IPs[0].FirstLogin.Equal(time.UnixMilli(1000).UTC()))
	})

	t.Run("strings are trimmed", func(t *testing.T) {
		p, err := ValidatePlayer(decodeRecord(t, `{"id":"  u1  ","notes":["  hello  "]}`), 0)
		require.NoError(t, err)
		assert.Equal(t, "u1", p.ID)
		assert.Equal(t, "hello", p.Notes[0].Text)
	})
}

func TestValidatePlayer_ArrayCaps(t *testing.T) {
	var names []string
	for i := 0; i <= MaxUsernames; i++ {
		names = append(names, `"n`+string(rune('a'+i%26))+`"`)
	}
	record := `{"id":"u1","usernames":[` + strings.Join(names, ",") + `]}`

	_, err := ValidatePlayer(decodeRecord(t, record), 0)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "usernames", ve.Field)
}

func TestSanitizeData(t *testing.T) {
	t.Run("operator text in a value is stored verbatim", func(t *testing.T) {
		p, err := ValidatePlayer(decodeRecord(t, `{"id":"u1","notes":["$where"]}`), 0)
		require.NoError(t, err)
		require.Len(t, p.Notes, 1)
		assert.Equal(t, "$where", p.Notes[0].Text)
	})

	t.Run("operator keys are dropped at any depth", func(t *testing.T) {
		p, err := ValidatePlayer(decodeRecord(t,
			`{"id":"u1","data":{"$where":"1==1","safe":{"$gt":5,"inner":{"$where":true,"kept":"yes"}}}}`), 0)
		require.NoError(t, err)
		require.NotNil(t, p.Data)
		_, present := p.Data["$where"]
		assert.False(t, present)

		safe := p.Data["safe"]
		require.Equal(t, models.ValueMap, safe.Kind)
		_, present = safe.Map["$gt"]
		assert.False(t, present)

		inner := safe.Map["inner"]
		require.Equal(t, models.ValueMap, inner.Kind)
		_, present = inner.Map["$where"]
		assert.False(t, present)
		assert.Equal(t, "yes", inner.Map["kept"].Str)
	})

	t.Run("prototype pollution keys are dropped recursively", func(t *testing.T) {
		p, err := ValidatePlayer(decodeRecord(t,
			`{"id":"u1","data":{"__proto__":{"polluted":true},"nested":{"constructor":1,"prototype":2,"ok":3}}}`), 0)
		require.NoError(t, err)
		_, present := p.Data["__proto__"]
		assert.False(t, present)

		nested := p.Data["nested"]
		require.Equal(t, models.ValueMap, nested.Kind)
		assert.Len(t, nested.Map, 1)
		assert.Equal(t, float64(3), nested.Map["ok"].Num)
	})

	t.Run("values keep their JSON types", func(t *testing.T) {
		p, err := ValidatePlayer(decodeRecord(t,
			`{"id":"u1","data":{"s":"txt","n":1.5,"b":true,"z":null,"l":[1,"two"]}}`), 0)
		require.NoError(t, err)
		assert.Equal(t, models.ValueString, p.Data["s"].Kind)
		assert.Equal(t, models.ValueNumber, p.Data["n"].Kind)
		assert.Equal(t, 1.5, p.Data["n"].Num)
		assert.Equal(t, models.ValueBool, p.Data["b"].Kind)
		assert.Equal(t, models.ValueNull, p.Data["z"].Kind)
		require.Equal(t, models.ValueList, p.Data["l"].Kind)
		assert.Len(t, p.Data["l"].List, 2)
	})
}
