package retention

import (
	"context"
	"errors"
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

// failingPruner always errors
type failingPruner struct {
	calls int
}

func (f *failingPruner) DeleteReadBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error) {
	f.calls++
	return 0, errors.New("database gone")
}

// CleanupTestSuite runs the cleanup service against an in-memory database
type CleanupTestSuite struct {
	suite.Suite
	db    *gorm.DB
	ctx   context.Context
	repo  repository.NotificationRepository
	owner *models.User
	actor *models.User
}

func (suite *CleanupTestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	require.NoError(suite.T(), err)
	suite.db = db
	suite.ctx = context.Background()
	suite.repo = repository.NewNotificationRepository(db)

	users := repository.NewUserRepository(db)
	suite.owner = &models.User{Email: "owner@kinfolk.test", Username: "owner", DisplayName: "Owner", PasswordHash: "h"}
	suite.actor = &models.User{Email: "actor@kinfolk.test", Username: "actor", DisplayName: "Actor", PasswordHash: "h"}
	require.NoError(suite.T(), users.CreateUser(suite.ctx, suite.owner))
	require.NoError(suite.T(), users.CreateUser(suite.ctx, suite.actor))
}

func (suite *CleanupTestSuite) TearDownTest() {
	database.Close(suite.db)
}

func (suite *CleanupTestSuite) createNotification(read bool, age time.Duration) *models.Notification {
	n := &models.Notification{UserID: suite.owner.ID, ActorID: &suite.actor.ID, Kind: models.NotificationFriendAccept}
	require.NoError(suite.T(), suite.repo.CreateNotification(suite.ctx, n))
	require.NoError(suite.T(), suite.db.Model(n).Updates(map[string]interface{}{
		"is_read":    read,
		"created_at": time.Now().UTC().Add(-age),
	}).Error)
	return n
}

func (suite *CleanupTestSuite) remaining() int64 {
	total, err := suite.repo.CountTotal(suite.ctx, suite.owner.ID)
	require.NoError(suite.T(), err)
	return total
}

func (suite *CleanupTestSuite) TestRunOnceDeletesOnlyOldReadNotifications() {
	t := suite.T()
	for i := 0; i < 5; i++ {
		suite.createNotification(true, 40*24*time.Hour)
	}
	suite.createNotification(false, 40*24*time.Hour)
	suite.createNotification(true, time.Hour)

	svc := NewCleanupService(suite.repo, Config{Retention: 30 * 24 * time.Hour, BatchSize: 2})
	deleted := svc.RunOnce(suite.ctx)

	assert.EqualValues(t, 5, deleted)
	assert.EqualValues(t, 2, suite.remaining())

	unread, err := suite.repo.CountUnread(suite.ctx, suite.owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)
}

func (suite *CleanupTestSuite) TestRetentionDisabled() {
	suite.createNotification(true, 365*24*time.Hour)

	svc := NewCleanupService(suite.repo, Config{Retention: 0})
	svc.Start()
	svc.Stop()

	assert.Zero(suite.T(), svc.RunOnce(suite.ctx))
	assert.EqualValues(suite.T(), 1, suite.remaining())
}

func (suite *CleanupTestSuite) TestStartRunsImmediately() {
	suite.createNotification(true, 48*time.Hour)

	svc := NewCleanupService(suite.repo, Config{Retention: 24 * time.Hour, Interval: time.Hour})
	svc.Start()
	defer svc.Stop()

	assert.Eventually(suite.T(), func() bool {
		return suite.remaining() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCleanupSuite(t *testing.T) {
	suite.Run(t, new(CleanupTestSuite))
}

func TestRunOnceStopsOnError(t *testing.T) {
	pruner := &failingPruner{}
	svc := NewCleanupService(pruner, Config{Retention: time.Hour})

	assert.Zero(t, svc.RunOnce(context.Background()))
	assert.Equal(t, 1, pruner.calls)
}

func TestNewCleanupServiceDefaults(t *testing.T) {
	svc := NewCleanupService(&failingPruner{}, Config{Retention: time.Hour})
	assert.Equal(t, DefaultConfig().Interval, svc.config.Interval)
	assert.Equal(t, DefaultConfig().BatchSize, svc.config.BatchSize)
}
