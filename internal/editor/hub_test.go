package editor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(id, documentID string) *Client {
	return &Client{
		id:         id,
		send:       make(chan []byte, 8),
		documentID: documentID,
		username:   "user-" + id,
		color:      "#000000",
	}
}

// drain discards any messages already queued (e.g. join notifications fired
// by handleRegister) so later assertions only see what a test triggers
// itself.
func drain(clients ...*Client) {
	for _, c := range clients {
	drainLoop:
		for {
			select {
			case <-c.send:
			default:
				break drainLoop
			}
		}
	}
}

func TestHub_RegisterTracksClientPerDocument(t *testing.T) {
	h := NewHub()
	c := newTestClient("c1", "doc-1")

	h.handleRegister(c)

	assert.True(t, h.clients[c])
	assert.True(t, h.documentClients["doc-1"][c])
}

func TestHub_UnregisterRemovesClientAndClosesSend(t *testing.T) {
	h := NewHub()
	c := newTestClient("c1", "doc-1")
	h.handleRegister(c)

	h.handleUnregister(c)

	_, stillRegistered := h.clients[c]
	assert.False(t, stillRegistered)
	assert.Nil(t, h.documentClients["doc-1"])

	drain(c)
	_, ok := <-c.send
	assert.False(t, ok, "send channel should be closed")
}

func TestHub_UnregisterUnknownClientIsNoOp(t *testing.T) {
	h := NewHub()
	c := newTestClient("ghost", "doc-1")

	require.NotPanics(t, func() { h.handleUnregister(c) })
}

func TestHub_BroadcastToDocument_ExcludesSender(t *testing.T) {
	h := NewHub()
	sender := newTestClient("sender", "doc-1")
	other := newTestClient("other", "doc-1")
	elsewhere := newTestClient("elsewhere", "doc-2")

	h.handleRegister(sender)
	h.handleRegister(other)
	h.handleRegister(elsewhere)
	drain(sender, other, elsewhere)

	msg := Message{Type: "cursor_position", DocumentID: "doc-1", ClientID: "sender", Position: 5}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	h.handleBroadcast(data)

	select {
	case <-sender.send:
		t.Fatal("sender should not receive its own broadcast")
	default:
	}

	select {
	case got := <-other.send:
		assert.Equal(t, data, got)
	default:
		t.Fatal("other client in the same document should have received the broadcast")
	}

	select {
	case <-elsewhere.send:
		t.Fatal("client in a different document should not receive the broadcast")
	default:
	}
}

func TestHub_BroadcastAll_ReachesEveryClientExceptSender(t *testing.T) {
	h := NewHub()
	sender := newTestClient("sender", "doc-1")
	a := newTestClient("a", "doc-1")
	b := newTestClient("b", "doc-2")

	h.handleRegister(sender)
	h.handleRegister(a)
	h.handleRegister(b)
	drain(sender, a, b)

	msg := Message{Type: "broadcast_all", ClientID: "sender"}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	h.handleBroadcast(data)

	for _, c := range []*Client{a, b} {
		select {
		case got := <-c.send:
			assert.Equal(t, data, got)
		default:
			t.Fatalf("client %s should have received the broadcast_all message", c.id)
		}
	}

	select {
	case <-sender.send:
		t.Fatal("sender should not receive its own broadcast_all")
	default:
	}
}

func TestHub_GetStats_ReportsClientAndDocumentCounts(t *testing.T) {
	h := NewHub()
	h.handleRegister(newTestClient("a", "doc-1"))
	h.handleRegister(newTestClient("b", "doc-1"))
	h.handleRegister(newTestClient("c", "doc-2"))

	stats := h.GetStats()

	assert.Equal(t, 3, stats["total_clients"])
	assert.Equal(t, 2, stats["total_documents"])
}
