/*
Package controller is the top-level orchestrator of the chat client.

The Controller turns role selection and admin login into a Session, keeps the
channel open only while that Session is valid, and exposes the operations and
read-only snapshots a presentation layer works with.
*/
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatline/internal/app/chat"
	"chatline/internal/app/session"
	"chatline/internal/app/user"
	"chatline/internal/pkg/errs"
	"chatline/internal/pkg/logx"
)

// ChatAPI is the HTTP side of the server contract.
type ChatAPI interface {
	VerifyAdmin(ctx context.Context, password string) (bool, error)
	FetchMessages(ctx context.Context) ([]chat.Message, error)
}

// joinTimeout bounds the wait for the server to acknowledge the join before
// history is fetched anyway.
const joinTimeout = 5 * time.Second

// Controller owns the Session and decides the channel's lifetime.
type Controller struct {
	store    *session.Store
	api      ChatAPI
	conn     *chat.ConnectionManager
	typing   *chat.TypingDebouncer
	now      func() time.Time
	schedule chat.Scheduler
	logger   zerolog.Logger

	mu           sync.Mutex
	current      *session.Session
	adminPending bool
	expiry       chat.Timer

	// epoch changes whenever a session begins or ends; work started for an
	// older epoch must not touch the channel.
	epoch uint64
}

// New wires a Controller. A nil now uses time.Now and a nil schedule uses
// chat.RealScheduler, for both the typing debounce and the expiry watchdog.
func New(store *session.Store, api ChatAPI, conn *chat.ConnectionManager, now func() time.Time, schedule chat.Scheduler) *Controller {
	if now == nil {
		now = time.Now
	}
	if schedule == nil {
		schedule = chat.RealScheduler
	}

	c := &Controller{
		store:    store,
		api:      api,
		conn:     conn,
		now:      now,
		schedule: schedule,
		logger:   logx.Component("Controller"),
	}
	c.typing = chat.NewTypingDebouncer(c.emitTyping, schedule)
	return c
}

func (c *Controller) emitTyping(isTyping bool) {
	if err := c.conn.SetTyping(isTyping); err != nil {
		c.logger.Debug().Err(err).Bool("is_typing", isTyping).Msg("Typing edge not sent.")
	}
}

// RestoreOnStartup adopts a persisted, still-valid Session and opens the channel.
// It reports whether a Session was adopted; otherwise a role must be chosen.
func (c *Controller) RestoreOnStartup(ctx context.Context) bool {
	if _, ok := c.Session(); ok {
		return true
	}

	sess, ok := c.store.Load(ctx)
	if !ok {
		c.logger.Info().Msg("No session to restore. Role selection required.")
		return false
	}

	c.logger.Info().Str("username", sess.Username).Time("expires_at", sess.ExpiresAt).Msg("Restoring session.")
	c.begin(ctx, sess)
	return true
}

// ChooseRole signs in as receiver immediately. Choosing admin only marks the
// login as pending; Authenticate completes it.
func (c *Controller) ChooseRole(ctx context.Context, role user.Role) error {
	if !role.Valid() {
		return errs.NewError(errs.ErrInvalidRole)
	}

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return errs.NewError(errs.ErrAlreadySignedIn)
	}

	if role == user.RoleAdmin {
		c.adminPending = true
		c.mu.Unlock()
		c.logger.Debug().Msg("Admin role chosen. Awaiting password.")
		return nil
	}
	c.adminPending = false
	c.mu.Unlock()

	return c.signIn(ctx, user.RoleReceiver)
}

// Authenticate verifies the admin password with a single request. A rejected
// password returns ErrInvalidCredentials and leaves the state unchanged.
func (c *Controller) Authenticate(ctx context.Context, password string) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return errs.NewError(errs.ErrAlreadySignedIn)
	}
	if !c.adminPending {
		c.mu.Unlock()
		return errs.NewError(errs.ErrSessionRequired)
	}
	c.mu.Unlock()

	ok, err := c.api.VerifyAdmin(ctx, password)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Admin verification failed.")
		return err
	}
	if !ok {
		c.logger.Info().Msg("Admin password rejected.")
		return errs.NewError(errs.ErrInvalidCredentials)
	}

	return c.signIn(ctx, user.RoleAdmin)
}

// CancelAdmin abandons a pending admin login.
func (c *Controller) CancelAdmin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adminPending = false
}

func (c *Controller) signIn(ctx context.Context, role user.Role) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return errs.NewError(errs.ErrAlreadySignedIn)
	}
	c.mu.Unlock()

	sess, err := c.store.Save(ctx, session.Session{User: user.ForRole(role)})
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	c.begin(ctx, sess)
	return nil
}

// begin adopts sess, arms the expiry watchdog, opens the channel, and loads history.
func (c *Controller) begin(ctx context.Context, sess session.Session) {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.current = &sess
	c.adminPending = false
	c.armExpiryLocked(sess, epoch)
	c.mu.Unlock()

	c.logger.Info().Str("username", sess.Username).Str("role", string(sess.Role)).Msg("Session started.")
	if err := c.connect(ctx, sess, epoch); err != nil {
		// the session stands; a failed channel shows up as the disconnected status
		c.logger.Debug().Err(err).Msg("Session started without an open channel.")
	}
}

// connect opens the channel for epoch and then replaces the message log with
// the server history. History is fetched only once the server has acknowledged
// the join, so every message is either in the snapshot or delivered live.
func (c *Controller) connect(ctx context.Context, sess session.Session, epoch uint64) error {
	openErr := c.conn.Open(ctx, sess.User)

	c.mu.Lock()
	stale := epoch != c.epoch
	c.mu.Unlock()
	if stale {
		// the session ended while the channel was opening
		c.conn.Close()
		c.conn.Reset()
		return errs.NewError(errs.ErrSessionRequired)
	}

	if openErr != nil {
		c.logger.Warn().Err(openErr).Msg("Channel did not open.")
		return openErr
	}

	waitCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	err := c.conn.WaitJoined(waitCtx)
	cancel()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Join not acknowledged. Loading history anyway.")
	}

	history, err := c.api.FetchMessages(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to load message history. Keeping live events only.")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return errs.NewError(errs.ErrSessionRequired)
	}
	taken := c.conn.Sync(history)
	c.logger.Debug().Int("fetched", len(history)).Int("kept", taken).Msg("History merged.")
	return nil
}

func (c *Controller) armExpiryLocked(sess session.Session, epoch uint64) {
	if c.expiry != nil {
		c.expiry.Stop()
	}

	remaining := sess.ExpiresAt.Sub(c.now())
	if remaining < 0 {
		remaining = 0
	}
	c.expiry = c.schedule(remaining, func() { c.onExpiry(epoch) })
}

func (c *Controller) onExpiry(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.current == nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Info().Msg("Session expired. Closing channel.")
	if err := c.end(context.Background(), epoch); err != nil {
		c.logger.Error().Err(err).Msg("Failed to purge expired session.")
	}
}

// Reconnect re-opens the channel for the current valid Session after a drop.
// The message log is rebuilt from the server history, so deletes and clears
// missed while disconnected take effect.
func (c *Controller) Reconnect(ctx context.Context) error {
	sess, ok := c.Session()
	if !ok {
		return errs.NewError(errs.ErrSessionRequired)
	}
	if c.conn.State() != chat.StateDisconnected {
		return errs.NewError(errs.ErrAlreadyConnecting)
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	c.logger.Info().Msg("Reconnecting.")
	return c.connect(ctx, sess, epoch)
}

// Logout closes the channel, purges the persisted Session, and empties every tracker.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.adminPending = false
	epoch := c.epoch
	c.mu.Unlock()

	c.logger.Info().Msg("Logging out.")
	return c.end(ctx, epoch)
}

// end tears the session down unless a newer one has begun since epoch.
func (c *Controller) end(ctx context.Context, epoch uint64) error {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	c.current = nil
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	c.mu.Unlock()

	c.typing.Cancel()
	c.conn.Close()
	c.conn.Reset()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Session returns the current Session if it is still valid. An expired
// Session is torn down on the spot and never returned.
func (c *Controller) Session() (session.Session, bool) {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return session.Session{}, false
	}
	sess := *c.current
	epoch := c.epoch
	c.mu.Unlock()

	if !sess.Valid(c.now()) {
		c.onExpiry(epoch)
		return session.Session{}, false
	}
	return sess, true
}

// AdminPending reports whether an admin login awaits its password.
func (c *Controller) AdminPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adminPending
}

// ContentChanged records a change of the composed text for the typing debounce.
func (c *Controller) ContentChanged() {
	if _, ok := c.Session(); !ok {
		return
	}
	c.typing.Touch()
}

// Send posts content and ends the typing burst.
func (c *Controller) Send(content string) error {
	if _, ok := c.Session(); !ok {
		return errs.NewError(errs.ErrSessionRequired)
	}
	if err := c.conn.SendMessage(content); err != nil {
		return err
	}
	c.typing.Stop()
	return nil
}

// DeleteMessage asks the server to delete one message. Admin only.
func (c *Controller) DeleteMessage(id string) error {
	if _, ok := c.Session(); !ok {
		return errs.NewError(errs.ErrSessionRequired)
	}
	return c.conn.DeleteMessage(id)
}

// ClearAllMessages asks the server to clear the history. Admin only.
func (c *Controller) ClearAllMessages() error {
	if _, ok := c.Session(); !ok {
		return errs.NewError(errs.ErrSessionRequired)
	}
	return c.conn.ClearAllMessages()
}

// State returns the connection status.
func (c *Controller) State() chat.ConnectionState {
	return c.conn.State()
}

// Messages returns the message log snapshot.
func (c *Controller) Messages() []chat.Message {
	return c.conn.Messages()
}

// OnlineUsers returns the presence snapshot.
func (c *Controller) OnlineUsers() []chat.PresenceEntry {
	return c.conn.OnlineUsers()
}

// TypingUsers returns the users currently typing.
func (c *Controller) TypingUsers() []chat.TypingEntry {
	return c.conn.TypingUsers()
}

// PresenceHistory returns the bounded presence log.
func (c *Controller) PresenceHistory() []chat.StatusChange {
	return c.conn.PresenceHistory()
}
