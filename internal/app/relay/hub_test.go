package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/app/chat"
	"chatline/internal/app/user"
	"chatline/internal/pkg/logx"
)

func startHub(t *testing.T, limit int) *Hub {
	t.Helper()
	h := NewHub(limit)
	go h.Run()
	t.Cleanup(func() {
		h.Stop()
		<-h.Done()
	})
	return h
}

// socketlessPeer is a Peer with only a queue; the test plays both pumps.
func socketlessPeer(t *testing.T, h *Hub) *Peer {
	t.Helper()
	p := &Peer{
		hub:    h,
		send:   make(chan []byte, sendChannelBuffer),
		logger: logx.Component("RelayPeerTest"),
	}
	require.True(t, h.Register(p))
	return p
}

func push(t *testing.T, p *Peer, event chat.EventName, payload any) {
	t.Helper()
	raw, err := chat.EncodeFrame(event, payload)
	require.NoError(t, err)
	frame, err := chat.DecodeFrame(raw)
	require.NoError(t, err)
	p.hub.inbound <- inboundFrame{peer: p, frame: frame}
}

func join(t *testing.T, p *Peer, u user.User) {
	t.Helper()
	push(t, p, chat.EventJoin, chat.JoinPayload(u))
}

// next returns the next queued frame named event, skipping others.
func next(t *testing.T, p *Peer, event chat.EventName, dst any) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw, ok := <-p.send:
			require.True(t, ok, "queue closed while waiting for %s", event)
			frame, err := chat.DecodeFrame(raw)
			require.NoError(t, err)
			if frame.Event != event {
				continue
			}
			if dst != nil {
				require.NoError(t, json.Unmarshal(frame.Data, dst))
			}
			return
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func TestHub_SnapshotListsEachUserOnce(t *testing.T) {
	h := startHub(t, 10)

	first := socketlessPeer(t, h)
	join(t, first, user.ForRole(user.RoleReceiver))
	next(t, first, chat.EventOnlineUsers, nil)

	second := socketlessPeer(t, h)
	join(t, second, user.ForRole(user.RoleReceiver))

	var snapshot []chat.PresenceEntry
	next(t, second, chat.EventOnlineUsers, &snapshot)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "receiver", snapshot[0].Username)
}

func TestHub_OfflineOnlyWhenLastConnectionLeaves(t *testing.T) {
	h := startHub(t, 10)

	watcher := socketlessPeer(t, h)
	join(t, watcher, user.ForRole(user.RoleAdmin))
	next(t, watcher, chat.EventOnlineUsers, nil)

	tabA := socketlessPeer(t, h)
	join(t, tabA, user.ForRole(user.RoleReceiver))
	tabB := socketlessPeer(t, h)
	join(t, tabB, user.ForRole(user.RoleReceiver))

	h.unregister <- tabA
	h.unregister <- tabB

	var change chat.StatusChange
	for change.Status != chat.StatusOffline {
		next(t, watcher, chat.EventUserStatusUpdate, &change)
	}
	assert.Equal(t, "receiver", change.Username)

	assert.Never(t, func() bool { return len(watcher.send) > 0 }, 100*time.Millisecond, 5*time.Millisecond)
}

func TestHub_RejectsInvalidJoin(t *testing.T) {
	h := startHub(t, 10)

	p := socketlessPeer(t, h)
	push(t, p, chat.EventJoin, map[string]string{"username": "x", "role": "owner"})

	var rejected chat.ErrorPayload
	next(t, p, chat.EventError, &rejected)
	assert.NotEmpty(t, rejected.Message)

	push(t, p, chat.EventTyping, chat.TypingPayload{IsTyping: true})
	next(t, p, chat.EventError, nil)
}

func TestHub_RejectsOversizedContent(t *testing.T) {
	h := startHub(t, 10)

	p := socketlessPeer(t, h)
	join(t, p, user.ForRole(user.RoleReceiver))

	long := make([]rune, MaxContentChars+1)
	for i := range long {
		long[i] = 'é'
	}
	push(t, p, chat.EventSendMessage, chat.SendMessagePayload{Content: string(long)})

	next(t, p, chat.EventError, nil)
	assert.Empty(t, h.History())
}

func TestHub_StopClosesPeerQueues(t *testing.T) {
	h := NewHub(10)
	go h.Run()

	p := socketlessPeer(t, h)
	h.Stop()
	<-h.Done()

	_, ok := <-p.send
	assert.False(t, ok)
	assert.False(t, h.Register(&Peer{hub: h, send: make(chan []byte, 1)}))
}
