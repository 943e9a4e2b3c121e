package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kinfolk/backend/internal/database"
	"github.com/kinfolk/backend/internal/models"
	"github.com/kinfolk/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type sentEmail struct {
	to    string
	kind  models.NotificationKind
	actor string
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendNotificationEmail(ctx context.Context, to *models.User, kind models.NotificationKind, actorName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{to: to.Email, kind: kind, actor: actorName})
	return f.err
}

func (f *fakeEmail) all() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

type NotifierTestSuite struct {
	suite.Suite
	db            *gorm.DB
	ctx           context.Context
	hub           *Hub
	users         repository.UserRepository
	notifications repository.NotificationRepository
	email         *fakeEmail
	notifier      *Notifier
	alice         *models.User
	bob           *models.User
}

func (suite *NotifierTestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	require.NoError(suite.T(), err)

	suite.db = db
	suite.ctx = context.Background()
	suite.hub = NewHub()
	suite.users = repository.NewUserRepository(db)
	suite.notifications = repository.NewNotificationRepository(db)
	suite.email = &fakeEmail{}
	suite.notifier = NewNotifier(suite.hub, suite.notifications, suite.users, suite.email, NotifierConfig{Workers: 2, QueueSize: 8})

	suite.alice = &models.User{Email: "alice@kinfolk.test", Username: "alice", DisplayName: "Alice", PasswordHash: "h", EmailNotifications: true}
	suite.bob = &models.User{Email: "bob@kinfolk.test", Username: "bob", DisplayName: "Bob", PasswordHash: "h", EmailNotifications: true}
	require.NoError(suite.T(), suite.users.CreateUser(suite.ctx, suite.alice))
	require.NoError(suite.T(), suite.users.CreateUser(suite.ctx, suite.bob))
}

func (suite *NotifierTestSuite) TearDownTest() {
	_ = suite.notifier.Stop(suite.ctx)
	database.Close(suite.db)
}

func (suite *NotifierTestSuite) like() *models.Notification {
	return &models.Notification{
		UserID:  suite.alice.ID,
		ActorID: models.StringPtr(suite.bob.ID),
		Kind:    models.NotificationLike,
		PostID:  models.StringPtr("11111111-1111-1111-1111-111111111111"),
	}
}

func (suite *NotifierTestSuite) stored(userID string) []*models.Notification {
	list, err := suite.notifications.ListNotifications(suite.ctx, userID, 50, 0)
	require.NoError(suite.T(), err)
	return list
}

func (suite *NotifierTestSuite) TestDeliverToOnlineTarget() {
	t := suite.T()
	tab1 := openClient(t, suite.hub, suite.alice.ID)
	tab2 := openClient(t, suite.hub, suite.alice.ID)

	n := suite.like()
	require.NoError(t, suite.notifier.Deliver(suite.ctx, n))

	rows := suite.stored(suite.alice.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, n.ID, rows[0].ID)
	assert.False(t, rows[0].IsRead)

	for _, c := range []*Client{tab1, tab2} {
		msgs := drain(t, c)

		events := ofType(msgs, MessageTypeNotification)
		require.Len(t, events, 1)
		var payload NotificationPayload
		require.NoError(t, events[0].ParsePayload(&payload))
		assert.Equal(t, n.ID, payload.ID)
		assert.Equal(t, models.NotificationLike, payload.Kind)
		assert.Equal(t, suite.bob.ID, *payload.ActorID)
		assert.Equal(t, *n.PostID, *payload.PostID)
		assert.Nil(t, payload.CommentID)
		assert.False(t, payload.CreatedAt.IsZero())

		counts := ofType(msgs, MessageTypeNotificationCount)
		require.Len(t, counts, 1)
		var count NotificationCountPayload
		require.NoError(t, counts[0].ParsePayload(&count))
		assert.Equal(t, int64(1), count.UnreadCount)
	}

	// Online targets are not emailed
	assert.Empty(t, suite.email.all())
}

func (suite *NotifierTestSuite) TestDeliverToOfflineTarget() {
	t := suite.T()
	bystander := openClient(t, suite.hub, suite.bob.ID)

	require.NoError(t, suite.notifier.Deliver(suite.ctx, suite.like()))

	assert.Len(t, suite.stored(suite.alice.ID), 1)
	assert.Empty(t, drain(t, bystander))

	sent := suite.email.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@kinfolk.test", sent[0].to)
	assert.Equal(t, models.NotificationLike, sent[0].kind)
	assert.Equal(t, "Bob", sent[0].actor)
}

func (suite *NotifierTestSuite) TestEmailRespectsPreference() {
	t := suite.T()
	off := false
	require.NoError(t, suite.users.UpdatePreferences(suite.ctx, suite.alice.ID, &off, nil))

	require.NoError(t, suite.notifier.Deliver(suite.ctx, suite.like()))
	assert.Len(t, suite.stored(suite.alice.ID), 1)
	assert.Empty(t, suite.email.all())
}

func (suite *NotifierTestSuite) TestEmailFailureIsNotAnError() {
	suite.email.err = errors.New("ses throttled")
	assert.NoError(suite.T(), suite.notifier.Deliver(suite.ctx, suite.like()))
}

func (suite *NotifierTestSuite) TestUnknownKindNotPersisted() {
	t := suite.T()
	c := openClient(t, suite.hub, suite.alice.ID)

	err := suite.notifier.Deliver(suite.ctx, &models.Notification{UserID: suite.alice.ID, Kind: "poke"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	err = suite.notifier.Deliver(suite.ctx, &models.Notification{Kind: models.NotificationShare})
	assert.ErrorIs(t, err, ErrMissingTarget)

	assert.Empty(t, suite.stored(suite.alice.ID))
	assert.Empty(t, drain(t, c))
}

func (suite *NotifierTestSuite) TestPersistenceFailureSwallowedByNotify() {
	t := suite.T()
	c := openClient(t, suite.hub, "00000000-0000-0000-0000-000000000000")

	// Unknown target violates the foreign key
	err := suite.notifier.Deliver(suite.ctx, &models.Notification{
		UserID: "00000000-0000-0000-0000-000000000000",
		Kind:   models.NotificationFriendAccept,
	})
	assert.Error(t, err)
	assert.Empty(t, drain(t, c))

	suite.notifier.Start()
	assert.NotPanics(t, func() {
		suite.notifier.Notify(suite.ctx, models.Notification{
			UserID: "00000000-0000-0000-0000-000000000000",
			Kind:   models.NotificationFriendAccept,
		})
	})
}

func (suite *NotifierTestSuite) TestNotifyIsAsync() {
	t := suite.T()
	c := openClient(t, suite.hub, suite.alice.ID)
	suite.notifier.Start()

	ctx, cancel := context.WithCancel(suite.ctx)
	suite.notifier.Notify(ctx, *suite.like())
	suite.notifier.Notify(ctx, models.Notification{
		UserID:  suite.alice.ID,
		ActorID: models.StringPtr(suite.bob.ID),
		Kind:    models.NotificationFriendAccept,
	})
	// The caller's request ending must not cancel delivery
	cancel()

	assert.Eventually(t, func() bool {
		return len(suite.stored(suite.alice.ID)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, suite.notifier.Stop(suite.ctx))
	assert.Len(t, ofType(drain(t, c), MessageTypeNotification), 2)
}

func (suite *NotifierTestSuite) TestStopDrainsQueue() {
	t := suite.T()
	for i := 0; i < 5; i++ {
		suite.notifier.Notify(suite.ctx, *suite.like())
	}
	assert.Equal(t, 5, suite.notifier.Pending())

	suite.notifier.Start()
	require.NoError(t, suite.notifier.Stop(suite.ctx))

	assert.Len(t, suite.stored(suite.alice.ID), 5)
	assert.Zero(t, suite.notifier.Pending())
}

func (suite *NotifierTestSuite) TestQueueFullDrops() {
	t := suite.T()
	// Not started: the queue only fills
	for i := 0; i < 12; i++ {
		suite.notifier.Notify(suite.ctx, *suite.like())
	}
	assert.Equal(t, 8, suite.notifier.Pending())
}

func (suite *NotifierTestSuite) TestNotifyAfterStopDropped() {
	require.NoError(suite.T(), suite.notifier.Stop(suite.ctx))
	suite.notifier.Notify(suite.ctx, *suite.like())
	assert.Zero(suite.T(), suite.notifier.Pending())
}

func TestNotifierSuite(t *testing.T) {
	suite.Run(t, new(NotifierTestSuite))
}
