package proto

import (
	"encoding/json"
	"testing"

	"ctchen222/tictactoe-solo/internal/game"
	"ctchen222/tictactoe-solo/internal/session"
	"ctchen222/tictactoe-solo/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientToServerMessage_Validation(t *testing.T) {
	tests := []struct {
		raw   string
		valid bool
	}{
		{`{"type":"move","index":0}`, true},
		{`{"type":"move","index":8}`, true},
		{`{"type":"move"}`, false},
		{`{"type":"move","index":9}`, false},
		{`{"type":"move","index":-1}`, false},
		{`{"type":"start","mode":"ai"}`, true},
		{`{"type":"start","mode":"2p"}`, true},
		{`{"type":"start"}`, false},
		{`{"type":"start","mode":"bot"}`, false},
		{`{"type":"next_round"}`, true},
		{`{"type":"reset"}`, true},
		{`{"type":"new_game"}`, true},
		{`{"type":"change_mode"}`, true},
		{`{"type":"rematch"}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var msg ClientToServerMessage
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &msg))

			err := validator.GetValidator().Struct(msg)

			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidationErrorsUseJSONNames(t *testing.T) {
	index := 12
	err := validator.GetValidator().Struct(ClientToServerMessage{Type: TypeMove, Index: &index})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "'index'")
}

func TestNewUpdateMessage(t *testing.T) {
	s := session.New("s1")
	require.NoError(t, s.Start(session.ModeTwoHuman))
	for _, idx := range []int{0, 3, 1, 4, 2} {
		require.True(t, s.HumanMove(idx))
	}

	msg := NewUpdateMessage(s)

	assert.Equal(t, TypeUpdate, msg.Type)
	assert.Nil(t, msg.Applied)
	view := msg.Session
	assert.Equal(t, "s1", view.ID)
	assert.Equal(t, session.PhaseRoundOver, view.Phase)
	assert.Equal(t, game.Outcome{Status: game.Won, Winner: game.PlayerX}, view.Outcome)
	assert.Equal(t, "Winner: X", view.Status)
	assert.Equal(t, session.Score{X: 1}, view.Score)
	assert.Equal(t, "Winner: X", view.LastResult)
}

func TestNewIgnoredMessage(t *testing.T) {
	msg := NewIgnoredMessage(session.New("s1"))

	require.NotNil(t, msg.Applied)
	assert.False(t, *msg.Applied)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"applied":false`)
}
