package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kinfolk/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// fakeFriends is an in-memory undirected friend graph
type fakeFriends struct {
	mu    sync.Mutex
	edges map[string]map[string]struct{}
	err   error
}

func newFakeFriends(pairs ...[2]string) *fakeFriends {
	f := &fakeFriends{edges: make(map[string]map[string]struct{})}
	for _, p := range pairs {
		f.add(p[0], p[1])
	}
	return f
}

func (f *fakeFriends) add(a, b string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if f.edges[pair[0]] == nil {
			f.edges[pair[0]] = make(map[string]struct{})
		}
		f.edges[pair[0]][pair[1]] = struct{}{}
	}
}

func (f *fakeFriends) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var ids []string
	for id := range f.edges[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

type presenceWrite struct {
	online bool
	at     time.Time
}

// fakePresenceStore records presence writes and serves preferences
type fakePresenceStore struct {
	mu     sync.Mutex
	hidden map[string]bool
	online map[string]bool
	writes map[string][]presenceWrite
	getErr error
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{
		hidden: make(map[string]bool),
		online: make(map[string]bool),
		writes: make(map[string][]presenceWrite),
	}
}

func (s *fakePresenceStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &models.User{ID: userID, ShowPresence: !s.hidden[userID]}, nil
}

func (s *fakePresenceStore) SetPresence(ctx context.Context, userID string, online bool, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = online
	s.writes[userID] = append(s.writes[userID], presenceWrite{online: online, at: seenAt})
	return nil
}

func (s *fakePresenceStore) GetOnlineUserIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, on := range s.online {
		if on {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakePresenceStore) isOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[userID]
}

// presenceEvents decodes the presence frames queued on c
func presenceEvents(t *testing.T, c *Client) []PresencePayload {
	t.Helper()
	var out []PresencePayload
	for _, m := range ofType(drain(t, c), MessageTypePresence) {
		var p PresencePayload
		require.NoError(t, m.ParsePayload(&p))
		out = append(out, p)
	}
	return out
}

type PresenceTestSuite struct {
	suite.Suite
	hub      *Hub
	friends  *fakeFriends
	store    *fakePresenceStore
	presence *Presence
}

func (suite *PresenceTestSuite) SetupTest() {
	suite.hub = NewHub()
	suite.friends = newFakeFriends([2]string{"alice", "bob"}, [2]string{"alice", "carol"})
	suite.store = newFakePresenceStore()
	suite.presence = NewPresence(suite.hub, PolicyFriends, suite.friends, suite.store)
}

func (suite *PresenceTestSuite) open(userID string) *Client {
	return openClient(suite.T(), suite.hub, userID)
}

func (suite *PresenceTestSuite) TestTransitionsAnnouncedExactlyOnceAcrossTabs() {
	t := suite.T()
	bob := suite.open("bob")
	drain(t, bob)

	tabs := make([]*Client, 5)
	for i := range tabs {
		tabs[i] = suite.open("alice")
	}
	for _, c := range tabs[:4] {
		c.Close()
	}

	events := presenceEvents(t, bob)
	require.Len(t, events, 1)
	assert.Equal(t, PresencePayload{UserID: "alice", IsOnline: true}, events[0])

	// Reconnect churn while one tab stays up is silent
	again := suite.open("alice")
	again.Close()
	assert.Empty(t, presenceEvents(t, bob))

	tabs[4].Close()
	events = presenceEvents(t, bob)
	require.Len(t, events, 1)
	assert.Equal(t, PresencePayload{UserID: "alice", IsOnline: false}, events[0])
}

func (suite *PresenceTestSuite) TestNonFriendHearsNothing() {
	t := suite.T()
	dave := suite.open("dave")
	drain(t, dave)

	alice := suite.open("alice")
	alice.Close()

	assert.Empty(t, presenceEvents(t, dave))
}

func (suite *PresenceTestSuite) TestSnapshotOnConnect() {
	t := suite.T()
	suite.open("bob")
	suite.open("carol")
	suite.open("dave")

	alice := suite.open("alice")
	events := presenceEvents(t, alice)

	online := map[string]bool{}
	for _, e := range events {
		assert.True(t, e.IsOnline)
		online[e.UserID] = true
	}
	assert.Equal(t, map[string]bool{"bob": true, "carol": true}, online)
}

func (suite *PresenceTestSuite) TestSymmetricPresence() {
	t := suite.T()
	alice := suite.open("alice")
	bob := suite.open("bob")

	// Each side learns about the other exactly once
	assert.Equal(t, []PresencePayload{{UserID: "bob", IsOnline: true}}, presenceEvents(t, alice))
	assert.Equal(t, []PresencePayload{{UserID: "alice", IsOnline: true}}, presenceEvents(t, bob))
}

func (suite *PresenceTestSuite) TestHiddenUserNeverBroadcasts() {
	t := suite.T()
	suite.store.hidden["alice"] = true
	bob := suite.open("bob")
	drain(t, bob)

	alice := suite.open("alice")
	// A hidden user still receives presence
	assert.Equal(t, []PresencePayload{{UserID: "bob", IsOnline: true}}, presenceEvents(t, alice))
	assert.False(t, suite.presence.IsVisiblyOnline("alice"))

	alice.Close()
	assert.Empty(t, presenceEvents(t, bob))

	// Snapshots skip hidden users too
	suite.open("alice")
	carol := suite.open("carol")
	assert.Empty(t, presenceEvents(t, carol))
}

func (suite *PresenceTestSuite) TestPreferenceLookupFailureHides() {
	t := suite.T()
	suite.store.getErr = errors.New("db down")
	bob := suite.open("bob")
	drain(t, bob)

	suite.open("alice")
	assert.Empty(t, presenceEvents(t, bob))
}

func (suite *PresenceTestSuite) TestLaterTabLookupFailureKeepsState() {
	failures := map[string]func(){
		"preference": func() { suite.store.getErr = errors.New("db down") },
		"friends":    func() { suite.friends.err = errors.New("db down") },
	}
	for name, fail := range failures {
		suite.Run(name, func() {
			suite.SetupTest()
			t := suite.T()
			bob := suite.open("bob")
			drain(t, bob)

			tab1 := suite.open("alice")
			fail()
			tab2 := suite.open("alice")
			// The extra tab still learns who is online
			assert.Equal(t, []PresencePayload{{UserID: "bob", IsOnline: true}}, presenceEvents(t, tab2))
			assert.True(t, suite.presence.IsVisiblyOnline("alice"))

			tab1.Close()
			tab2.Close()
			assert.Equal(t, []PresencePayload{
				{UserID: "alice", IsOnline: true},
				{UserID: "alice", IsOnline: false},
			}, presenceEvents(t, bob))
		})
	}
}

func (suite *PresenceTestSuite) TestFirstTabLookupFailureStaysSilent() {
	t := suite.T()
	bob := suite.open("bob")
	drain(t, bob)

	suite.store.getErr = errors.New("db down")
	tab1 := suite.open("alice")
	suite.store.getErr = nil
	tab2 := suite.open("alice")

	tab1.Close()
	tab2.Close()
	// No offline event without a matching online event
	assert.Empty(t, presenceEvents(t, bob))
}

func (suite *PresenceTestSuite) TestSetVisible() {
	t := suite.T()
	bob := suite.open("bob")
	suite.open("alice")
	drain(t, bob)

	suite.presence.SetVisible(context.Background(), "alice", false)
	assert.Equal(t, []PresencePayload{{UserID: "alice", IsOnline: false}}, presenceEvents(t, bob))

	// No change, no event
	suite.presence.SetVisible(context.Background(), "alice", false)
	assert.Empty(t, presenceEvents(t, bob))

	suite.presence.SetVisible(context.Background(), "alice", true)
	assert.Equal(t, []PresencePayload{{UserID: "alice", IsOnline: true}}, presenceEvents(t, bob))

	// Offline users have nothing to announce
	suite.presence.SetVisible(context.Background(), "carol", false)
	assert.Empty(t, presenceEvents(t, bob))
}

func (suite *PresenceTestSuite) TestBefriendedAndUnfriended() {
	t := suite.T()
	dave := suite.open("dave")
	erin := suite.open("erin")
	drain(t, dave)
	drain(t, erin)

	suite.friends.add("dave", "erin")
	suite.presence.Befriended("dave", "erin")
	assert.Equal(t, []PresencePayload{{UserID: "erin", IsOnline: true}}, presenceEvents(t, dave))
	assert.Equal(t, []PresencePayload{{UserID: "dave", IsOnline: true}}, presenceEvents(t, erin))

	// The new edge is used for the offline announcement
	erin.Close()
	assert.Equal(t, []PresencePayload{{UserID: "erin", IsOnline: false}}, presenceEvents(t, dave))

	erin = suite.open("erin")
	drain(t, dave)
	drain(t, erin)

	suite.presence.Unfriended("dave", "erin")
	assert.Equal(t, []PresencePayload{{UserID: "erin", IsOnline: false}}, presenceEvents(t, dave))
	assert.Equal(t, []PresencePayload{{UserID: "dave", IsOnline: false}}, presenceEvents(t, erin))

	erin.Close()
	assert.Empty(t, presenceEvents(t, dave))
}

func (suite *PresenceTestSuite) TestPersistence() {
	t := suite.T()
	alice := suite.open("alice")
	suite.presence.Flush(context.Background())
	assert.True(t, suite.store.isOnline("alice"))

	alice.Close()
	suite.presence.Flush(context.Background())
	assert.False(t, suite.store.isOnline("alice"))
	assert.Len(t, suite.store.writes["alice"], 2)
}

func (suite *PresenceTestSuite) TestPersistenceUsesStateAtWriteTime() {
	t := suite.T()
	// Connect and disconnect before the writer runs: one write, offline
	alice := suite.open("alice")
	alice.Close()
	suite.presence.Flush(context.Background())

	writes := suite.store.writes["alice"]
	require.Len(t, writes, 1)
	assert.False(t, writes[0].online)
}

func (suite *PresenceTestSuite) TestBackgroundWriter() {
	t := suite.T()
	suite.presence.Start()
	suite.open("alice")

	assert.Eventually(t, func() bool { return suite.store.isOnline("alice") }, time.Second, 10*time.Millisecond)
	suite.presence.Stop()
}

func (suite *PresenceTestSuite) TestResetStale() {
	t := suite.T()
	suite.store.online["ghost"] = true
	suite.store.online["alice"] = true
	suite.open("alice")

	require.NoError(t, suite.presence.ResetStale(context.Background()))
	assert.False(t, suite.store.isOnline("ghost"))
	assert.True(t, suite.store.isOnline("alice"))
}

func TestPresenceSuite(t *testing.T) {
	suite.Run(t, new(PresenceTestSuite))
}

func TestGlobalPolicy(t *testing.T) {
	hub := NewHub()
	NewPresence(hub, PolicyGlobal, nil, nil)

	stranger := openClient(t, hub, "stranger")
	alice := openClient(t, hub, "alice")

	assert.Equal(t, []PresencePayload{{UserID: "alice", IsOnline: true}}, presenceEvents(t, stranger))
	assert.Equal(t, []PresencePayload{{UserID: "stranger", IsOnline: true}}, presenceEvents(t, alice))

	alice.Close()
	assert.Equal(t, []PresencePayload{{UserID: "alice", IsOnline: false}}, presenceEvents(t, stranger))
}

func TestUnknownPolicyFallsBackToFriends(t *testing.T) {
	p := NewPresence(NewHub(), PresencePolicy("everyone"), nil, nil)
	assert.Equal(t, PolicyFriends, p.Policy())
}

func TestConcurrentConnectsStayConsistent(t *testing.T) {
	hub := NewHub()
	friends := newFakeFriends([2]string{"alice", "bob"})
	NewPresence(hub, PolicyFriends, friends, nil)

	var wg sync.WaitGroup
	clients := make(chan *Client, 40)
	for i := 0; i < 20; i++ {
		for _, id := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				c := NewClient(hub, nil, id)
				if err := c.Open(context.Background()); err == nil {
					clients <- c
				}
			}(id)
		}
	}
	wg.Wait()
	close(clients)

	// Every bob tab learned alice is online exactly once, either from the
	// snapshot or from her announcement
	for c := range clients {
		if c.UserID != "bob" {
			continue
		}
		events := presenceEvents(t, c)
		require.Len(t, events, 1)
		assert.Equal(t, PresencePayload{UserID: "alice", IsOnline: true}, events[0])
	}
}
