package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/metrics"
	"github.com/kinfolk/backend/internal/models"
	"github.com/kinfolk/backend/internal/telemetry"
	"go.uber.org/zap"
)

// PresencePolicy chooses who hears about a user's online/offline transitions
type PresencePolicy string

const (
	// PolicyFriends sends transitions to the user's friends only
	PolicyFriends PresencePolicy = "friends"
	// PolicyGlobal sends transitions to every connected user
	PolicyGlobal PresencePolicy = "global"
)

const (
	presenceLookupTimeout = 5 * time.Second
	presenceWriteTimeout  = 5 * time.Second
)

// FriendLister resolves the presence audience under PolicyFriends
type FriendLister interface {
	GetFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// PresenceStore reads the show_presence preference and persists last-seen state
type PresenceStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	SetPresence(ctx context.Context, userID string, online bool, seenAt time.Time) error
	GetOnlineUserIDs(ctx context.Context) ([]string, error)
}

// Presence announces a user's aggregate online state. Only the first
// connection coming up and the last going away produce an event; extra tabs
// are silent.
//
// Lookups happen before the presence lock is taken. Under the lock the hub
// transition, the broadcast and the connect snapshot run together with no
// I/O, so a friend connecting concurrently either appears in the snapshot or
// sends an online event afterwards, never neither.
type Presence struct {
	hub     *Hub
	policy  PresencePolicy
	friends FriendLister
	store   PresenceStore
	events  *telemetry.BusinessEvents
	prom    *metrics.Metrics

	// mu is the presence lock
	mu sync.Mutex
	// online users, set by their first connection and dropped with the last
	users map[string]*userPresence

	// Users whose persisted state must be rewritten
	pendingMu sync.Mutex
	pending   map[string]struct{}
	wake      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// userPresence is the state shared by every connection of one user
type userPresence struct {
	audience []string
	visible  bool
}

// NewPresence creates the broadcaster and installs it as the hub's observer.
// friends may be nil under PolicyGlobal; store may be nil to skip persistence.
func NewPresence(hub *Hub, policy PresencePolicy, friends FriendLister, store PresenceStore) *Presence {
	if policy != PolicyGlobal {
		policy = PolicyFriends
	}

	p := &Presence{
		hub:     hub,
		policy:  policy,
		friends: friends,
		store:   store,
		events:  telemetry.NewBusinessEvents(),
		prom:    metrics.Get(),
		users:   make(map[string]*userPresence),
		pending: make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	hub.SetObserver(p)
	return p
}

// Policy returns the active broadcast policy
func (p *Presence) Policy() PresencePolicy {
	return p.policy
}

// Start runs the background writer that persists online/last-seen state
func (p *Presence) Start() {
	p.wg.Add(1)
	go p.persistLoop()
}

// Stop flushes pending writes and stops the writer
func (p *Presence) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// Connect registers c with the hub and announces the user if this is their
// first connection. c also receives the current state of its audience.
// Extra tabs reuse the state resolved by the first one, so a failed lookup
// on a later tab cannot change what the audience was told.
func (p *Presence) Connect(ctx context.Context, c *Client) error {
	audience, visible := p.resolve(ctx, c.UserID)

	p.mu.Lock()
	first, err := p.hub.Register(c)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	st, ok := p.users[c.UserID]
	if first || !ok {
		st = &userPresence{audience: audience, visible: visible}
		p.users[c.UserID] = st
	}

	if first && st.visible {
		p.announce(ctx, c.UserID, true, st.audience)
	}
	p.snapshot(c, st)
	p.mu.Unlock()

	if first {
		p.prom.PresenceTransitions.WithLabelValues("online").Inc()
		p.markDirty(c.UserID)
	}
	return nil
}

// Disconnect unregisters c and announces the user offline if it was their
// last connection
func (p *Presence) Disconnect(c *Client) {
	p.mu.Lock()
	last := p.hub.Unregister(c)
	if last {
		st := p.users[c.UserID]
		delete(p.users, c.UserID)
		if st != nil && st.visible {
			p.announce(context.Background(), c.UserID, false, st.audience)
		}
	}
	p.mu.Unlock()

	if last {
		p.prom.PresenceTransitions.WithLabelValues("offline").Inc()
		p.markDirty(c.UserID)
	}
}

// SetVisible applies a show_presence change for a user who may be online.
// Hiding looks like going offline to the audience; showing looks like coming
// online.
func (p *Presence) SetVisible(ctx context.Context, userID string, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.users[userID]
	if !ok || st.visible == visible {
		return
	}
	st.visible = visible
	p.announce(ctx, userID, visible, st.audience)
}

// Befriended makes two users part of each other's audience and exchanges
// their current state, so presence stays symmetric without a reconnect
func (p *Presence) Befriended(a, b string) {
	if p.policy != PolicyFriends {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.addAudience(a, b)
	p.addAudience(b, a)

	if p.visibleOnline(a) {
		p.hub.Publish(b, presenceMessage(a, true))
	}
	if p.visibleOnline(b) {
		p.hub.Publish(a, presenceMessage(b, true))
	}
}

// Unfriended removes two users from each other's audience. Each side sees
// the other go offline.
func (p *Presence) Unfriended(a, b string) {
	if p.policy != PolicyFriends {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.removeAudience(a, b)
	p.removeAudience(b, a)

	if p.visibleOnline(a) {
		p.hub.Publish(b, presenceMessage(a, false))
	}
	if p.visibleOnline(b) {
		p.hub.Publish(a, presenceMessage(b, false))
	}
}

// IsVisiblyOnline is what other users may be told about userID
func (p *Presence) IsVisiblyOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visibleOnline(userID)
}

// ResetStale clears persisted online flags left by a previous process that
// did not shut down cleanly. Run before serving.
func (p *Presence) ResetStale(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	ids, err := p.store.GetOnlineUserIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if p.hub.IsOnline(id) {
			continue
		}
		if err := p.store.SetPresence(ctx, id, false, nowUTC()); err != nil {
			return err
		}
	}
	if len(ids) > 0 {
		logger.Log.Info("Reset stale presence flags", zap.Int("users", len(ids)))
	}
	return nil
}

// Flush writes pending presence state now
func (p *Presence) Flush(ctx context.Context) {
	p.pendingMu.Lock()
	batch := p.pending
	p.pending = make(map[string]struct{})
	p.pendingMu.Unlock()

	if p.store == nil {
		return
	}

	for userID := range batch {
		// Re-read at write time; the value at transition time may be stale
		online := p.hub.IsOnline(userID)

		wctx, cancel := context.WithTimeout(ctx, presenceWriteTimeout)
		err := p.store.SetPresence(wctx, userID, online, nowUTC())
		cancel()
		if err != nil {
			logger.Log.Warn("Failed to persist presence",
				logger.WithUserID(userID),
				zap.Bool("online", online),
				zap.Error(err))
		}
	}
}

func (p *Presence) persistLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.wake:
			p.Flush(context.Background())
		case <-p.done:
			p.Flush(context.Background())
			return
		}
	}
}

func (p *Presence) markDirty(userID string) {
	p.pendingMu.Lock()
	p.pending[userID] = struct{}{}
	p.pendingMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// resolve loads the audience and visibility for a connecting user. Failures
// degrade to an empty audience and hidden presence.
func (p *Presence) resolve(ctx context.Context, userID string) (audience []string, visible bool) {
	audience = p.audienceFor(ctx, userID)

	if p.store == nil {
		return audience, true
	}

	lctx, cancel := context.WithTimeout(ctx, presenceLookupTimeout)
	defer cancel()

	user, err := p.store.GetUser(lctx, userID)
	if err != nil {
		logger.Log.Warn("Failed to load presence preference", logger.WithUserID(userID), zap.Error(err))
		return audience, false
	}
	return audience, user.ShowPresence
}

func (p *Presence) audienceFor(ctx context.Context, userID string) []string {
	if p.policy != PolicyFriends || p.friends == nil {
		return nil
	}

	lctx, cancel := context.WithTimeout(ctx, presenceLookupTimeout)
	defer cancel()

	ids, err := p.friends.GetFriendIDs(lctx, userID)
	if err != nil {
		logger.Log.Warn("Failed to load presence audience", logger.WithUserID(userID), zap.Error(err))
		return nil
	}
	return ids
}

// announce publishes a transition. Caller holds p.mu.
func (p *Presence) announce(ctx context.Context, userID string, online bool, audience []string) {
	msg := presenceMessage(userID, online)

	var n int
	if p.policy == PolicyGlobal {
		n = p.hub.BroadcastExcept(userID, msg)
	} else {
		n = p.hub.PublishMany(audience, msg)
	}

	_, span := p.events.TracePresence(ctx, userID, online, len(audience))
	telemetry.RecordDelivered(span, n)
	span.End()

	logger.Log.Debug("Presence transition",
		logger.WithUserID(userID),
		zap.Bool("online", online),
		zap.Int("delivered", n))
}

// snapshot tells a new connection who is already online. Caller holds p.mu.
func (p *Presence) snapshot(c *Client, st *userPresence) {
	var candidates []string
	if p.policy == PolicyGlobal {
		candidates = p.hub.OnlineUsers()
	} else {
		candidates = st.audience
	}

	for _, userID := range candidates {
		if userID == c.UserID || !p.visibleOnline(userID) {
			continue
		}
		if err := c.Send(presenceMessage(userID, true)); err != nil {
			return
		}
	}
}

// visibleOnline requires p.mu
func (p *Presence) visibleOnline(userID string) bool {
	if st, ok := p.users[userID]; ok && !st.visible {
		return false
	}
	return p.hub.IsOnline(userID)
}

// addAudience requires p.mu
func (p *Presence) addAudience(userID, friendID string) {
	st, ok := p.users[userID]
	if ok && !containsString(st.audience, friendID) {
		st.audience = append(st.audience, friendID)
	}
}

// removeAudience requires p.mu
func (p *Presence) removeAudience(userID, friendID string) {
	st, ok := p.users[userID]
	if !ok {
		return
	}
	kept := st.audience[:0:0]
	for _, id := range st.audience {
		if id != friendID {
			kept = append(kept, id)
		}
	}
	st.audience = kept
}

func presenceMessage(userID string, online bool) *Message {
	return NewMessage(MessageTypePresence, PresencePayload{
		UserID:   userID,
		IsOnline: online,
	})
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// nowUTC matches the precision the database round-trips
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
