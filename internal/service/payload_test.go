package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stats-tracker/internal/domain"
)

func TestDecodePayload(t *testing.T) {
	body := `{
		"player_name": "Luffy",
		"user_id": 12345,
		"level": 500,
		"beli": 100000,
		"fragments": 2500,
		"bounty": 30000000,
		"honor": 0,
		"equipped_fruit": "Gomu Gomu",
		"fighting_style": "Sharkman Karate",
		"session_id": "abc",
		"fighting_styles": {"owned": ["Combat", "Sharkman Karate"]},
		"items": {"swords": ["Katana"], "guns": ["Slingshot"]}
	}`

	payload, err := DecodePayload(strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, "Luffy", payload.PlayerName)
	assert.EqualValues(t, 12345, payload.UserID)
	assert.EqualValues(t, 500, payload.Level)
	assert.EqualValues(t, 30000000, payload.Bounty)
	assert.Equal(t, "Gomu Gomu", payload.EquippedFruit)
	require.NotNil(t, payload.FightingStyles)
	assert.Equal(t, []string{"Combat", "Sharkman Karate"}, payload.FightingStyles.Owned)
	require.NotNil(t, payload.Items)
	assert.Equal(t, []string{"Katana"}, payload.Items.Swords)
	assert.Equal(t, []string{"Slingshot"}, payload.Items.Guns)
}

func TestDecodePayloadDefaults(t *testing.T) {
	payload, err := DecodePayloadBytes([]byte(`{"player_name":"Nami"}`))
	require.NoError(t, err)

	assert.Equal(t, domain.StatsPayload{PlayerName: "Nami"}, payload)
	assert.Nil(t, payload.FightingStyles)
	assert.Nil(t, payload.Items)
}

func TestDecodePayloadIntegralFloats(t *testing.T) {
	payload, err := DecodePayload(strings.NewReader(`{"player_name":"A","level":500.0,"beli":1e3,"fragments":null,"user_id":-2.0}`))
	require.NoError(t, err)

	assert.EqualValues(t, 500, payload.Level)
	assert.EqualValues(t, 1000, payload.Beli)
	assert.EqualValues(t, 0, payload.Fragments)
	assert.EqualValues(t, -2, payload.UserID)
}

func TestDecodePayloadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ``},
		{name: "not json", body: `player_name=Luffy`},
		{name: "truncated", body: `{"player_name":"Luffy"`},
		{name: "array", body: `[{"player_name":"Luffy"}]`},
		{name: "wrong type", body: `{"player_name":"Luffy","level":"high"}`},
		{name: "fractional number", body: `{"player_name":"Luffy","level":500.5}`},
		{name: "out of range", body: `{"player_name":"Luffy","beli":1e30}`},
		{name: "unknown field", body: `{"player_name":"Luffy","race":"Human"}`},
		{name: "unknown nested field", body: `{"player_name":"Luffy","items":{"fruits":["Gomu"]}}`},
		{name: "trailing document", body: `{"player_name":"Luffy"}{"player_name":"Zoro"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidPayload)
			assert.True(t, domain.IsValidationError(err))
		})
	}
}
