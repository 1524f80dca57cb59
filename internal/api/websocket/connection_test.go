package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnection_Lifecycle(t *testing.T) {
	c := NewConnection("10.0.0.1:54321")
	assert.Equal(t, StateConnecting, c.State())
	assert.Empty(t, c.UserID())

	c.Transition(StateAuthenticating)
	assert.Equal(t, StateAuthenticating, c.State())

	c.Authenticate("user-1")
	assert.Equal(t, StateStreaming, c.State())
	assert.Equal(t, "user-1", c.UserID())

	c.Transition(StateClosed)
	assert.Equal(t, StateClosed, c.State())
}

func TestConnection_ClosedStaysClosed(t *testing.T) {
	c := NewConnection("10.0.0.1:54321")
	c.Transition(StateClosed)

	c.Transition(StateStreaming)
	assert.Equal(t, StateClosed, c.State())

	c.Authenticate("user-1")
	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, c.UserID(), "a closed session must not accept an identity")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}
