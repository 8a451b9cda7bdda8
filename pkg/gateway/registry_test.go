package gateway

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistryClient(userID string) *Client {
	c := NewClient("id-"+userID, nil, zerolog.Nop())
	c.UserID = userID
	return c
}

func TestRegistryAddAndLookup(t *testing.T) {
	r := NewClientRegistry()
	c := newRegistryClient("user-1")

	r.Add(c)

	ch, ok := r.Lookup("user-1")
	require.True(t, ok)
	assert.Same(t, c, ch.(*Client))
	assert.Equal(t, 1, r.Count())

	_, ok = r.Lookup("user-2")
	assert.False(t, ok)
}

func TestRegistryDisplacesPreviousConnection(t *testing.T) {
	r := NewClientRegistry()
	old := newRegistryClient("user-1")
	r.Add(old)

	next := newRegistryClient("user-1")
	r.Add(next)

	got, ok := r.Get("user-1")
	require.True(t, ok)
	assert.Same(t, next, got)
	assert.Equal(t, 1, r.Count())

	select {
	case <-old.closed:
	default:
		t.Fatal("displaced client should be closed")
	}
}

func TestRegistryRemoveGuardsCurrent(t *testing.T) {
	r := NewClientRegistry()
	old := newRegistryClient("user-1")
	r.Add(old)

	next := newRegistryClient("user-1")
	r.Add(next)

	// A late cleanup of the displaced connection must not remove the new one.
	r.Remove(old)

	got, ok := r.Get("user-1")
	require.True(t, ok)
	assert.Same(t, next, got)

	r.Remove(next)
	_, ok = r.Get("user-1")
	assert.False(t, ok)
}

func TestEnvelopeResponses(t *testing.T) {
	ok := okResponse(TypeChat, map[string]string{"text": "hi"})
	assert.Equal(t, "chat_response", ok.Type)
	assert.Equal(t, "success", ok.Status)

	er := errResponse(TypeAuth, "invalid token")
	assert.Equal(t, "auth_response", er.Type)
	assert.Equal(t, "error", er.Status)
	assert.Equal(t, "invalid token", er.Message)

	g := graphResponse()
	assert.Equal(t, "get_flow_graph_response", g.Type)
	assert.NotNil(t, g.Data)
}
