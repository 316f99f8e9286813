package controller

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"chatline/internal/app/api"
	"chatline/internal/app/chat"
	"chatline/internal/app/relay"
	"chatline/internal/app/session"
	"chatline/internal/app/storage"
	"chatline/internal/app/user"
	"chatline/internal/configs"
	"chatline/internal/handler"
	"chatline/internal/pkg/errs"
)

const (
	adminPassword = "secret"
	waitFor       = 2 * time.Second
	tick          = 10 * time.Millisecond
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeScheduler records callbacks; tests fire them by delay.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (s *fakeScheduler) Schedule(d time.Duration, f func()) chat.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Fire runs every pending callback scheduled with delay d.
func (s *fakeScheduler) Fire(d time.Duration) {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		t.mu.Lock()
		if t.delay == d && !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
		t.mu.Unlock()
	}
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func startRelay(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &configs.ServerConfig{
		Environment:   "development",
		Port:          8080,
		AdminPassword: adminPassword,
		HistoryLimit:  100,
		VerifyRate:    100,
		VerifyBurst:   100,
	}
	hub := relay.NewHub(cfg.HistoryLimit)
	go hub.Run()
	t.Cleanup(hub.Stop)

	deps, err := handler.NewAppDeps(cfg, hub, bcrypt.MinCost)
	require.NoError(t, err)

	srv := httptest.NewServer(handler.Router(ctx, deps))
	t.Cleanup(srv.Close)
	return srv.URL
}

type testClient struct {
	ctrl  *Controller
	store *session.Store
	kv    *storage.SQLiteStore
	clock *fakeClock
	sched *fakeScheduler
}

func newTestClient(t *testing.T, baseURL string, clock *fakeClock) *testClient {
	t.Helper()
	return newTestClientWithAPI(t, baseURL, clock, nil)
}

// newTestClientWithAPI lets wrap intercept the HTTP side of the server contract.
func newTestClientWithAPI(t *testing.T, baseURL string, clock *fakeClock, wrap func(ChatAPI) ChatAPI) *testClient {
	t.Helper()
	ctx := context.Background()

	kv, err := storage.Open(ctx, filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	wsURL, err := api.WebSocketURL(baseURL)
	require.NoError(t, err)

	sched := &fakeScheduler{}
	store := session.NewStore(kv, clock.Now)
	conn := chat.NewConnectionManager(wsURL, nil, chat.NewPresenceHistory(ctx, kv), nil)
	var chatAPI ChatAPI = api.NewClient(baseURL, time.Second)
	if wrap != nil {
		chatAPI = wrap(chatAPI)
	}
	ctrl := New(store, chatAPI, conn, clock.Now, sched.Schedule)
	t.Cleanup(conn.Close)

	return &testClient{ctrl: ctrl, store: store, kv: kv, clock: clock, sched: sched}
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// hookedAPI runs beforeFetch once, ahead of the first history request.
type hookedAPI struct {
	ChatAPI
	once        sync.Once
	beforeFetch func()
}

func (h *hookedAPI) FetchMessages(ctx context.Context) ([]chat.Message, error) {
	h.once.Do(h.beforeFetch)
	return h.ChatAPI.FetchMessages(ctx)
}

func signInAdmin(t *testing.T, c *testClient) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.ctrl.ChooseRole(ctx, user.RoleAdmin))
	require.NoError(t, c.ctrl.Authenticate(ctx, adminPassword))
	requireConnected(t, c.ctrl)
}

func contents(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func requireConnected(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == chat.StateConnected
	}, waitFor, tick)
}

func TestReceiverSession_EndToEnd(t *testing.T) {
	baseURL := startRelay(t)
	clock := newClock()
	client := newTestClient(t, baseURL, clock)

	require.NoError(t, client.ctrl.ChooseRole(context.Background(), user.RoleReceiver))

	sess, ok := client.ctrl.Session()
	require.True(t, ok)
	assert.Equal(t, user.ForRole(user.RoleReceiver), sess.User)
	assert.Equal(t, clock.Now().Add(session.TTL), sess.ExpiresAt)

	stored, ok := client.store.Load(context.Background())
	require.True(t, ok)
	assert.Equal(t, sess, stored)

	requireConnected(t, client.ctrl)
	require.Eventually(t, func() bool {
		online := client.ctrl.OnlineUsers()
		return len(online) == 1 && online[0].Username == "receiver" && online[0].Role == user.RoleReceiver
	}, waitFor, tick)
}

func TestChooseRole_Validation(t *testing.T) {
	baseURL := startRelay(t)
	client := newTestClient(t, baseURL, newClock())
	ctx := context.Background()

	assert.True(t, errs.HasCode(client.ctrl.ChooseRole(ctx, user.Role("guest")), errs.ErrInvalidRole))

	require.NoError(t, client.ctrl.ChooseRole(ctx, user.RoleReceiver))
	assert.True(t, errs.HasCode(client.ctrl.ChooseRole(ctx, user.RoleAdmin), errs.ErrAlreadySignedIn))
}

func TestAdminLogin(t *testing.T) {
	baseURL := startRelay(t)
	client := newTestClient(t, baseURL, newClock())
	ctx := context.Background()

	assert.True(t, errs.HasCode(client.ctrl.Authenticate(ctx, adminPassword), errs.ErrSessionRequired))

	require.NoError(t, client.ctrl.ChooseRole(ctx, user.RoleAdmin))
	assert.True(t, client.ctrl.AdminPending())
	_, ok := client.ctrl.Session()
	assert.False(t, ok, "choosing admin alone must not create a session")

	err := client.ctrl.Authenticate(ctx, "wrong")
	assert.True(t, errs.HasCode(err, errs.ErrInvalidCredentials))
	_, ok = client.ctrl.Session()
	assert.False(t, ok)
	assert.True(t, client.ctrl.AdminPending())
	_, ok = client.store.Load(ctx)
	assert.False(t, ok)

	require.NoError(t, client.ctrl.Authenticate(ctx, adminPassword))
	sess, ok := client.ctrl.Session()
	require.True(t, ok)
	assert.Equal(t, user.RoleAdmin, sess.Role)
	assert.False(t, client.ctrl.AdminPending())
	requireConnected(t, client.ctrl)
}

func TestAuthenticate_ServerUnavailable(t *testing.T) {
	srv := httptest.NewServer(nil)
	baseURL := srv.URL
	srv.Close()

	client := newTestClient(t, baseURL, newClock())
	ctx := context.Background()

	require.NoError(t, client.ctrl.ChooseRole(ctx, user.RoleAdmin))
	err := client.ctrl.Authenticate(ctx, adminPassword)
	assert.True(t, errs.HasCode(err, errs.ErrServerUnavailable))
	_, ok := client.ctrl.Session()
	assert.False(t, ok)
}

func TestLogout_LeavesNothingBehind(t *testing.T) {
	baseURL := startRelay(t)
	client := newTestClient(t, baseURL, newClock())
	ctx := context.Background()

	require.NoError(t, client.ctrl.ChooseRole(ctx, user.RoleReceiver))
	requireConnected(t, client.ctrl)

	typist := newTestClient(t, baseURL, newClock())
	signInAdmin(t, typist)

	require.NoError(t, client.ctrl.Send("hello"))
	typist.ctrl.ContentChanged()
	require.Eventually(t, func() bool {
		return len(client.ctrl.Messages()) == 1 &&
			len(client.ctrl.OnlineUsers()) == 2 &&
			len(client.ctrl.TypingUsers()) == 1
	}, waitFor, tick)

	require.NoError(t, client.ctrl.Logout(ctx))

	assert.Equal(t, chat.StateDisconnected, client.ctrl.State())
	assert.Empty(t, client.ctrl.Messages())
	assert.Empty(t, client.ctrl.OnlineUsers())
	assert.Empty(t, client.ctrl.TypingUsers())
	_, ok := client.ctrl.Session()
	assert.False(t, ok)
	_, ok = client.store.Load(ctx)
	assert.False(t, ok)

	assert.True(t, errs.HasCode(client.ctrl.Send("after logout"), errs.ErrSessionRequired))

	// logging out twice is harmless
	require.NoError(t, client.ctrl.Logout(ctx))
}

func TestRestoreOnStartup_ExpiredSessionIsPurged(t *testing.T) {
	baseURL := startRelay(t)
	clock := newClock()
	client := newTestClient(t, baseURL, clock)
	ctx := context.Background()

	_, err := client.store.Save(ctx, session.Session{User: user.ForRole(user.RoleReceiver)})
	require.NoError(t, err)

	// expiresAt is now one millisecond in the past
	clock.Advance(session.TTL + time.Millisecond)

	assert.False(t, client.ctrl.RestoreOnStartup(ctx))
	assert.Equal(t, chat.StateDisconnected, client.ctrl.State())

	for _, key := range []string{session.UserKey, session.ExpiryKey} {
		raw, err := client.kv.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, raw, key)
	}
}

func TestRestoreOnStartup_ValidSessionConnects(t *testing.T) {
	baseURL := startRelay(t)
	clock := newClock()
	client := newTestClient(t, baseURL, clock)
	ctx := context.Background()

	_, err := client.store.Save(ctx, session.Session{User: user.ForRole(user.RoleAdmin)})
	require.NoError(t, err)
	clock.Advance(time.Hour)

	require.True(t, client.ctrl.RestoreOnStartup(ctx))
	sess, ok := client.ctrl.Session()
	require.True(t, ok)
	assert.Equal(t, user.RoleAdmin, sess.Role)
	requireConnected(t, client.ctrl)

	assert.True(t, client.ctrl.RestoreOnStartup(ctx))
}

func TestHistoryIsMergedOnSignIn(t *testing.T) {
	baseURL := startRelay(t)
	ctx := context.Background()

	writer := newTestClient(t, baseURL, newClock())
	require.NoError(t, writer.ctrl.ChooseRole(ctx, user.RoleAdmin))
	require.NoError(t, writer.ctrl.Authenticate(ctx, adminPassword))
	requireConnected(t, writer.ctrl)
	require.NoError(t, writer.ctrl.Send("before you arrived"))
	require.Eventually(t, func() bool { return len(writer.ctrl.Messages()) == 1 }, waitFor, tick)

	reader := newTestClient(t, baseURL, newClock())
	require.NoError(t, reader.ctrl.ChooseRole(ctx, user.RoleReceiver))

	msgs := reader.ctrl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "before you arrived", msgs[0].Content)
	assert.Equal(t, writer.ctrl.Messages()[0].ID, msgs[0].ID)
}

func TestModeration_EndToEnd(t *testing.T) {
	baseURL := startRelay(t)
	ctx := context.Background()

	admin := newTestClient(t, baseURL, newClock())
	require.NoError(t, admin.ctrl.ChooseRole(ctx, user.RoleAdmin))
	require.NoError(t, admin.ctrl.Authenticate(ctx, adminPassword))
	requireConnected(t, admin.ctrl)

	receiver := newTestClient(t, baseURL, newClock())
	require.NoError(t, receiver.ctrl.ChooseRole(ctx, user.RoleReceiver))
	requireConnected(t, receiver.ctrl)

	require.NoError(t, receiver.ctrl.Send("first"))
	require.NoError(t, receiver.ctrl.Send("second"))
	require.Eventually(t, func() bool {
		return len(admin.ctrl.Messages()) == 2 && len(receiver.ctrl.Messages()) == 2
	}, waitFor, tick)

	first := receiver.ctrl.Messages()[0]
	assert.True(t, errs.HasCode(receiver.ctrl.DeleteMessage(first.ID), errs.ErrAdminRequired))
	assert.True(t, errs.HasCode(receiver.ctrl.ClearAllMessages(), errs.ErrAdminRequired))

	require.NoError(t, admin.ctrl.DeleteMessage(first.ID))
	require.Eventually(t, func() bool {
		msgs := receiver.ctrl.Messages()
		return len(msgs) == 1 && msgs[0].Content == "second"
	}, waitFor, tick)

	require.NoError(t, admin.ctrl.ClearAllMessages())
	require.Eventually(t, func() bool {
		return len(receiver.ctrl.Messages()) == 0 && len(admin.ctrl.Messages()) == 0
	}, waitFor, tick)
}

func TestTyping_DebouncedAcrossClients(t *testing.T) {
	baseURL := startRelay(t)
	ctx := context.Background()

	watcher := newTestClient(t, baseURL, newClock())
	require.NoError(t, watcher.ctrl.ChooseRole(ctx, user.RoleAdmin))
	require.NoError(t, watcher.ctrl.Authenticate(ctx, adminPassword))
	requireConnected(t, watcher.ctrl)

	typist := newTestClient(t, baseURL, newClock())
	require.NoError(t, typist.ctrl.ChooseRole(ctx, user.RoleReceiver))
	requireConnected(t, typist.ctrl)

	for i := 0; i < 10; i++ {
		typist.ctrl.ContentChanged()
	}
	require.Eventually(t, func() bool {
		typing := watcher.ctrl.TypingUsers()
		return len(typing) == 1 && typing[0].Username == "receiver"
	}, waitFor, tick)

	typist.sched.Fire(chat.TypingIdleTimeout)
	require.Eventually(t, func() bool {
		return len(watcher.ctrl.TypingUsers()) == 0
	}, waitFor, tick)

	// sending ends a burst immediately
	typist.ctrl.ContentChanged()
	require.Eventually(t, func() bool { return len(watcher.ctrl.TypingUsers()) == 1 }, waitFor, tick)
	require.NoError(t, typist.ctrl.Send("done"))
	require.Eventually(t, func() bool {
		return len(watcher.ctrl.TypingUsers()) == 0 && len(watcher.ctrl.Messages()) == 1
	}, waitFor, tick)
}

func TestExpiryWatchdog_EndsSession(t *testing.T) {
	baseURL := startRelay(t)
	client := newTestClient(t, baseURL, newClock())
	ctx := context.Background()

	require.NoError(t, client.ctrl.ChooseRole(ctx, user.RoleReceiver))
	requireConnected(t, client.ctrl)

	client.clock.Advance(session.TTL)
	client.sched.Fire(session.TTL)

	assert.Equal(t, chat.StateDisconnected, client.ctrl.State())
	assert.Empty(t, client.ctrl.OnlineUsers())
	_, ok := client.ctrl.Session()
	assert.False(t, ok)
	_, ok = client.store.Load(ctx)
	assert.False(t, ok)
}

func TestSession_ExpiredIsNeverReturned(t *testing.T) {
	baseURL := startRelay(t)
	client := newTestClient(t, baseURL, newClock())
	ctx := context.Background()

	require.NoError(t, client.ctrl.ChooseRole(ctx, user.RoleReceiver))
	requireConnected(t, client.ctrl)

	// the watchdog has not fired yet, but the clock has moved past expiry
	client.clock.Advance(session.TTL)

	_, ok := client.ctrl.Session()
	assert.False(t, ok)
	assert.Equal(t, chat.StateDisconnected, client.ctrl.State())
}

func TestReconnect(t *testing.T) {
	baseURL := startRelay(t)
	client := newTestClient(t, baseURL, newClock())
	ctx := context.Background()

	assert.True(t, errs.HasCode(client.ctrl.Reconnect(ctx), errs.ErrSessionRequired))

	require.NoError(t, client.ctrl.ChooseRole(ctx, user.RoleReceiver))
	requireConnected(t, client.ctrl)
	assert.True(t, errs.HasCode(client.ctrl.Reconnect(ctx), errs.ErrAlreadyConnecting))

	client.ctrl.conn.Close()
	require.NoError(t, client.ctrl.Reconnect(ctx))
	assert.Equal(t, chat.StateConnected, client.ctrl.State())
}

func TestSignIn_MessagePostedDuringHistoryFetchIsKept(t *testing.T) {
	baseURL := startRelay(t)
	ctx := context.Background()

	admin := newTestClient(t, baseURL, newClock())
	signInAdmin(t, admin)

	receiver := newTestClientWithAPI(t, baseURL, newClock(), func(inner ChatAPI) ChatAPI {
		return &hookedAPI{ChatAPI: inner, beforeFetch: func() {
			require.NoError(t, admin.ctrl.Send("posted while joining"))
			// the echo means the server has stored it
			require.Eventually(t, func() bool { return len(admin.ctrl.Messages()) == 1 }, waitFor, tick)
		}}
	})
	require.NoError(t, receiver.ctrl.ChooseRole(ctx, user.RoleReceiver))

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"posted while joining"}, contents(receiver.ctrl.Messages()))
	}, waitFor, tick)
	assert.Never(t, func() bool { return len(receiver.ctrl.Messages()) != 1 }, 100*time.Millisecond, tick)
}

func TestReconnect_AppliesDeleteMissedWhileOffline(t *testing.T) {
	baseURL := startRelay(t)
	ctx := context.Background()

	admin := newTestClient(t, baseURL, newClock())
	signInAdmin(t, admin)

	receiver := newTestClient(t, baseURL, newClock())
	require.NoError(t, receiver.ctrl.ChooseRole(ctx, user.RoleReceiver))
	requireConnected(t, receiver.ctrl)

	require.NoError(t, admin.ctrl.Send("keep"))
	require.NoError(t, admin.ctrl.Send("drop"))
	require.Eventually(t, func() bool { return len(receiver.ctrl.Messages()) == 2 }, waitFor, tick)

	receiver.ctrl.conn.Close()

	drop := admin.ctrl.Messages()[1]
	require.NoError(t, admin.ctrl.DeleteMessage(drop.ID))
	require.Eventually(t, func() bool { return len(admin.ctrl.Messages()) == 1 }, waitFor, tick)

	require.NoError(t, receiver.ctrl.Reconnect(ctx))
	assert.Equal(t, []string{"keep"}, contents(receiver.ctrl.Messages()))
}

func TestReconnect_AppliesClearAndDropsTypingMissedWhileOffline(t *testing.T) {
	baseURL := startRelay(t)
	ctx := context.Background()

	admin := newTestClient(t, baseURL, newClock())
	signInAdmin(t, admin)

	receiver := newTestClient(t, baseURL, newClock())
	require.NoError(t, receiver.ctrl.ChooseRole(ctx, user.RoleReceiver))
	requireConnected(t, receiver.ctrl)

	require.NoError(t, admin.ctrl.Send("hello"))
	admin.ctrl.ContentChanged()
	require.Eventually(t, func() bool {
		return len(receiver.ctrl.Messages()) == 1 && len(receiver.ctrl.TypingUsers()) == 1
	}, waitFor, tick)

	receiver.ctrl.conn.Close()
	assert.Empty(t, receiver.ctrl.TypingUsers())

	// the stop edge goes out while the receiver is away
	require.NoError(t, admin.ctrl.ClearAllMessages())
	admin.sched.Fire(chat.TypingIdleTimeout)
	require.Eventually(t, func() bool { return len(admin.ctrl.Messages()) == 0 }, waitFor, tick)

	require.NoError(t, receiver.ctrl.Reconnect(ctx))
	assert.Empty(t, receiver.ctrl.Messages())
	assert.Empty(t, receiver.ctrl.TypingUsers())
	require.Eventually(t, func() bool { return len(receiver.ctrl.OnlineUsers()) == 2 }, waitFor, tick)
}
