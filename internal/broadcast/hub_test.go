package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveClient_DropsEmptiedTenantGroup(t *testing.T) {
	h := NewHub(nil)
	c := &Client{hub: h, tenantID: "t1", send: make(chan []byte, 1)}
	h.clients["t1"] = map[*Client]bool{c: true}

	h.removeClient(c)

	_, ok := h.clients["t1"]
	assert.False(t, ok)
	_, open := <-c.send
	assert.False(t, open)
}

func TestRemoveClient_KeepsGroupWithRemainingSubscribers(t *testing.T) {
	h := NewHub(nil)
	first := &Client{hub: h, tenantID: "t1", send: make(chan []byte, 1)}
	second := &Client{hub: h, tenantID: "t1", send: make(chan []byte, 1)}
	h.clients["t1"] = map[*Client]bool{first: true, second: true}

	h.removeClient(first)

	group, ok := h.clients["t1"]
	assert.True(t, ok)
	assert.Contains(t, group, second)
	assert.NotContains(t, group, first)
}

func TestDispatch_EvictsSubscriberWithFullBuffer(t *testing.T) {
	h := NewHub(nil)
	slow := &Client{hub: h, tenantID: "t1", send: make(chan []byte)}
	healthy := &Client{hub: h, tenantID: "t1", send: make(chan []byte, 1)}
	h.clients["t1"] = map[*Client]bool{slow: true, healthy: true}

	h.dispatch(envelope{tenantID: "t1", payload: []byte("event")})

	group := h.clients["t1"]
	assert.NotContains(t, group, slow)
	assert.Contains(t, group, healthy)
	assert.Equal(t, []byte("event"), <-healthy.send)

	// Evicting the last subscriber also drops the group.
	h.dispatch(envelope{tenantID: "t1", payload: []byte("event")})
	h.dispatch(envelope{tenantID: "t1", payload: []byte("event")})
	_, ok := h.clients["t1"]
	assert.False(t, ok)
}
