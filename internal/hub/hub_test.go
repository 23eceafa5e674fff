package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures everything written to one connection
type recorder struct {
	mu       sync.Mutex
	messages [][]byte
}

func (r *recorder) WriteMessage(_ int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, data)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestBroadcastExcludesSenderConnectionOnly(t *testing.T) {
	h := NewHub()
	board := h.GetOrCreateBoard(1)

	sender := &recorder{}
	otherTab := &recorder{}
	peer := &recorder{}

	board.Add("conn-sender", 10, sender)
	board.Add("conn-other-tab", 10, otherTab) // same user, second connection
	board.Add("conn-peer", 11, peer)

	board.Broadcast(Envelope{Type: "addActivity", Payload: "x"}, "conn-sender")

	assert.Equal(t, 0, sender.count())
	assert.Equal(t, 1, otherTab.count(), "exclusion is per connection, not per user")
	assert.Equal(t, 1, peer.count())
}

func TestBroadcastWithoutExclusionReachesEveryone(t *testing.T) {
	h := NewHub()
	board := h.GetOrCreateBoard(1)

	a := &recorder{}
	b := &recorder{}
	board.Add("conn-a", 10, a)
	board.Add("conn-b", 11, b)

	board.Broadcast(Envelope{Type: "chat", Payload: "hello"}, "")

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	var env Envelope
	require.NoError(t, json.Unmarshal(a.messages[0], &env))
	assert.Equal(t, "chat", env.Type)
	assert.Equal(t, "hello", env.Payload)
}

func TestRemoveStopsDelivery(t *testing.T) {
	h := NewHub()
	board := h.GetOrCreateBoard(1)

	a := &recorder{}
	board.Add("conn-a", 10, a)
	board.Remove("conn-a")

	board.Broadcast(Envelope{Type: "online"}, "")
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 0, board.Size())
}

func TestGetOrCreateBoardReturnsSameGroup(t *testing.T) {
	h := NewHub()
	assert.Same(t, h.GetOrCreateBoard(1), h.GetOrCreateBoard(1))
	assert.NotSame(t, h.GetOrCreateBoard(1), h.GetOrCreateBoard(2))
}

func TestJoinSurvivesEmptyGroupRemoval(t *testing.T) {
	h := NewHub()

	// a departing last member can drop the group while a new connection is
	// joining; the joiner must end up in the group later connections reach
	stale := h.GetOrCreateBoard(1)
	h.RemoveBoardIfEmpty(1)

	rec := &recorder{}
	board, client := h.Join(1, "conn-a", 10, rec)
	require.NotNil(t, client)
	assert.NotSame(t, stale, board)
	assert.Same(t, board, h.GetOrCreateBoard(1))

	h.GetOrCreateBoard(1).Broadcast(Envelope{Type: "online"}, "")
	assert.Equal(t, 1, rec.count())
}

func TestJoinAndBroadcast(t *testing.T) {
	h := NewHub()

	a := &recorder{}
	b := &recorder{}
	board, _ := h.Join(1, "conn-a", 10, a)
	joined, _ := h.Join(1, "conn-b", 11, b)
	assert.Same(t, board, joined)
	assert.Equal(t, 2, board.Size())

	board.Broadcast(Envelope{Type: "addActivity"}, "conn-a")
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())
}

func TestRemoveBoardIfEmpty(t *testing.T) {
	h := NewHub()
	board := h.GetOrCreateBoard(1)
	board.Add("conn-a", 10, &recorder{})

	// occupied group survives
	h.RemoveBoardIfEmpty(1)
	assert.Same(t, board, h.GetOrCreateBoard(1))

	board.Remove("conn-a")
	h.RemoveBoardIfEmpty(1)
	assert.NotSame(t, board, h.GetOrCreateBoard(1))
}
