package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "minimal valid frame", input: `{"event_type":"mousemove","timestamp":1000}`},
		{name: "full frame", input: `{"event_type":"mousemove","x":10,"y":20,"timestamp":1000,"user_id":"anyone"}`},
		{name: "unknown fields accepted", input: `{"event_type":"click","timestamp":1,"viewport":"1920x1080"}`},
		{name: "not json", input: `hello`, wantErr: true},
		{name: "json array", input: `[1,2,3]`, wantErr: true},
		{name: "missing event_type", input: `{"timestamp":1000}`, wantErr: true},
		{name: "empty event_type", input: `{"event_type":"","timestamp":1000}`, wantErr: true},
		{name: "non-string event_type", input: `{"event_type":7,"timestamp":1000}`, wantErr: true},
		{name: "missing timestamp", input: `{"event_type":"mousemove"}`, wantErr: true},
		{name: "string timestamp", input: `{"event_type":"mousemove","timestamp":"1000"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, f)
		})
	}
}

func TestFrame_Enrich(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"event_type":"mousemove","x":10,"timestamp":1000,"user_id":"spoofed","extra":true}`))
	require.NoError(t, err)

	payload, err := f.Enrich("verified-user")
	require.NoError(t, err)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &out))
	assert.JSONEq(t, `"verified-user"`, string(out["user_id"]))
	assert.JSONEq(t, `10`, string(out["x"]))
	assert.JSONEq(t, `true`, string(out["extra"]))
}

func TestBehavioralEvent_Coordinates(t *testing.T) {
	x, y := 3, 4
	e := BehavioralEvent{X: &x, Y: &y}
	assert.True(t, e.HasCoordinates())
	cx, cy := e.Coordinates()
	assert.Equal(t, 3.0, cx)
	assert.Equal(t, 4.0, cy)

	partial := BehavioralEvent{X: &x}
	assert.False(t, partial.HasCoordinates())
}
