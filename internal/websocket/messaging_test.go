package websocket

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/kinfolk/backend/internal/database"
	"github.com/kinfolk/backend/internal/models"
	"github.com/kinfolk/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// recordingSink captures notifications instead of delivering them
type recordingSink struct {
	mu  sync.Mutex
	got []models.Notification
}

func (s *recordingSink) Notify(ctx context.Context, n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
}

func (s *recordingSink) all() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.got...)
}

type MessengerTestSuite struct {
	suite.Suite
	db        *gorm.DB
	ctx       context.Context
	hub       *Hub
	messages  repository.MessageRepository
	sink      *recordingSink
	messenger *Messenger
	alice     *models.User
	bob       *models.User
}

func (suite *MessengerTestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	require.NoError(suite.T(), err)

	suite.db = db
	suite.ctx = context.Background()
	suite.hub = NewHub()
	suite.messages = repository.NewMessageRepository(db)
	suite.sink = &recordingSink{}
	suite.messenger = NewMessenger(suite.hub, suite.messages, suite.sink)
	suite.messenger.Register()

	users := repository.NewUserRepository(db)
	suite.alice = &models.User{Email: "alice@kinfolk.test", Username: "alice", DisplayName: "Alice", PasswordHash: "h"}
	suite.bob = &models.User{Email: "bob@kinfolk.test", Username: "bob", DisplayName: "Bob", PasswordHash: "h"}
	require.NoError(suite.T(), users.CreateUser(suite.ctx, suite.alice))
	require.NoError(suite.T(), users.CreateUser(suite.ctx, suite.bob))
}

func (suite *MessengerTestSuite) TearDownTest() {
	database.Close(suite.db)
}

func (suite *MessengerTestSuite) dms(c *Client) []DirectMessagePayload {
	var out []DirectMessagePayload
	for _, m := range ofType(drain(suite.T(), c), MessageTypeDirectMessage) {
		var p DirectMessagePayload
		require.NoError(suite.T(), m.ParsePayload(&p))
		out = append(out, p)
	}
	return out
}

func (suite *MessengerTestSuite) errorsOn(c *Client) []*Message {
	return ofType(drain(suite.T(), c), MessageTypeError)
}

func (suite *MessengerTestSuite) send(c *Client, id, to, content string) {
	frame := `{"type":"send_direct_message","id":"` + id + `","payload":{"to":"` + to + `","content":"` + content + `","from":"spoofed"}}`
	require.NoError(suite.T(), c.Receive([]byte(frame)))
}

func (suite *MessengerTestSuite) TestBothPartiesReceiveCanonicalCopy() {
	t := suite.T()
	a := openClient(t, suite.hub, suite.alice.ID)
	b := openClient(t, suite.hub, suite.bob.ID)

	suite.send(a, "m1", suite.bob.ID, "hi")

	onA := suite.dms(a)
	onB := suite.dms(b)
	require.Len(t, onA, 1)
	require.Len(t, onB, 1)
	assert.Equal(t, onA[0], onB[0])
	assert.Equal(t, suite.alice.ID, onA[0].From)
	assert.Equal(t, suite.bob.ID, onA[0].To)
	assert.Equal(t, "hi", onA[0].Content)
	assert.NotEmpty(t, onA[0].ID)
	assert.False(t, onA[0].CreatedAt.IsZero())

	// Online recipient: no offline notification
	assert.Empty(t, suite.sink.all())

	// Bob disconnects; only Alice sees the next message but it is stored
	b.Close()
	suite.send(a, "m2", suite.bob.ID, "still there?")

	onA = suite.dms(a)
	require.Len(t, onA, 1)
	assert.Equal(t, "still there?", onA[0].Content)

	history, err := suite.messages.GetConversation(suite.ctx, suite.bob.ID, suite.alice.ID, 10, nil)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, suite.bob.ID, history[0].RecipientID)
	assert.Equal(t, "still there?", history[0].Content)

	notes := suite.sink.all()
	require.Len(t, notes, 1)
	assert.Equal(t, suite.bob.ID, notes[0].UserID)
	assert.Equal(t, models.NotificationDirectMessage, notes[0].Kind)
	assert.Equal(t, suite.alice.ID, *notes[0].ActorID)
	assert.Equal(t, onA[0].ID, *notes[0].MessageID)
}

func (suite *MessengerTestSuite) TestRoundTripMatchesPublishedCopy() {
	t := suite.T()
	a := openClient(t, suite.hub, suite.alice.ID)

	msg, err := suite.messenger.Send(suite.ctx, suite.alice.ID, suite.bob.ID, "  padded  ")
	require.NoError(t, err)
	assert.Equal(t, "padded", msg.Content)

	published := suite.dms(a)
	require.Len(t, published, 1)

	stored, err := suite.messages.GetMessage(suite.ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, published[0].From, stored.SenderID)
	assert.Equal(t, published[0].To, stored.RecipientID)
	assert.Equal(t, published[0].Content, stored.Content)
	assert.True(t, published[0].CreatedAt.Equal(stored.CreatedAt))
}

func (suite *MessengerTestSuite) TestMultiTabFanOut() {
	t := suite.T()
	a := openClient(t, suite.hub, suite.alice.ID)
	b1 := openClient(t, suite.hub, suite.bob.ID)
	b2 := openClient(t, suite.hub, suite.bob.ID)

	suite.send(a, "m1", suite.bob.ID, "both tabs")

	assert.Len(t, suite.dms(b1), 1)
	assert.Len(t, suite.dms(b2), 1)
}

func (suite *MessengerTestSuite) TestEmptyContentRejected() {
	t := suite.T()
	a := openClient(t, suite.hub, suite.alice.ID)
	b := openClient(t, suite.hub, suite.bob.ID)

	suite.send(a, "m1", suite.bob.ID, "   ")

	errs := suite.errorsOn(a)
	require.Len(t, errs, 1)
	assert.Equal(t, "m1", errs[0].ReplyTo)

	var payload ErrorPayload
	require.NoError(t, errs[0].ParsePayload(&payload))
	assert.Equal(t, ErrCodeValidationFailed, payload.Code)
	assert.Equal(t, "content is empty", payload.Message)

	assert.Empty(t, suite.dms(b))

	var count int64
	require.NoError(t, suite.db.Model(&models.DirectMessage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func (suite *MessengerTestSuite) TestValidation() {
	t := suite.T()

	_, err := suite.messenger.Send(suite.ctx, suite.alice.ID, "", "hello")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = suite.messenger.Send(suite.ctx, suite.alice.ID, suite.bob.ID, strings.Repeat("é", models.MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = suite.messenger.Send(suite.ctx, suite.alice.ID, suite.bob.ID, strings.Repeat("é", models.MaxMessageLength))
	assert.NoError(t, err)
}

func (suite *MessengerTestSuite) TestMalformedRecipientRejected() {
	t := suite.T()
	a := openClient(t, suite.hub, suite.alice.ID)

	suite.send(a, "m1", "not-a-uuid", "hello")

	errs := suite.errorsOn(a)
	require.Len(t, errs, 1)
	assert.Equal(t, "m1", errs[0].ReplyTo)

	var payload ErrorPayload
	require.NoError(t, errs[0].ParsePayload(&payload))
	assert.Equal(t, ErrCodeValidationFailed, payload.Code)
	assert.Equal(t, "recipient is malformed", payload.Message)

	var count int64
	require.NoError(t, suite.db.Model(&models.DirectMessage{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, suite.sink.all())
}

func (suite *MessengerTestSuite) TestUnknownRecipientSendFailed() {
	t := suite.T()
	a := openClient(t, suite.hub, suite.alice.ID)

	suite.send(a, "m9", "00000000-0000-0000-0000-000000000000", "hello?")

	msgs := drain(t, a)
	assert.Empty(t, ofType(msgs, MessageTypeDirectMessage))

	errs := ofType(msgs, MessageTypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "m9", errs[0].ReplyTo)

	var payload ErrorPayload
	require.NoError(t, errs[0].ParsePayload(&payload))
	assert.Equal(t, ErrCodeSendFailed, payload.Code)

	_, err := suite.messenger.Send(suite.ctx, suite.alice.ID, "00000000-0000-0000-0000-000000000000", "x")
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.ErrorIs(t, err, repository.ErrRecipientNotFound)
}

func (suite *MessengerTestSuite) TestSelfMessagePublishedOnce() {
	t := suite.T()
	a := openClient(t, suite.hub, suite.alice.ID)

	suite.send(a, "m1", suite.alice.ID, "note to self")

	assert.Len(t, suite.dms(a), 1)
	assert.Empty(t, suite.sink.all())
}

func (suite *MessengerTestSuite) TestSenderTakenFromConnection() {
	t := suite.T()
	b := openClient(t, suite.hub, suite.bob.ID)
	a := openClient(t, suite.hub, suite.alice.ID)

	suite.send(a, "m1", suite.bob.ID, "from alice")

	got := suite.dms(b)
	require.Len(t, got, 1)
	assert.Equal(t, suite.alice.ID, got[0].From)
}

func TestMessengerSuite(t *testing.T) {
	suite.Run(t, new(MessengerTestSuite))
}

func TestValidateDirectMessage(t *testing.T) {
	to := "6f1c2b1e-8d0a-4a57-9a4e-2f0c1f6f5b21"
	content, err := ValidateDirectMessage(to, "\n hi \t")
	require.NoError(t, err)
	assert.Equal(t, "hi", content)

	for _, bad := range []string{" ", "bob", strings.ToUpper(to), "{" + to + "}", " " + to} {
		_, err = ValidateDirectMessage(bad, "hi")
		assert.ErrorIs(t, err, ErrInvalidRecipient, bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}

	_, err = ValidateDirectMessage(to, " ")
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrInvalidRecipient)
}
