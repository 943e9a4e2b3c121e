package seed

import (
	"testing"

	"github.com/kinfolk/backend/internal/database"
	"github.com/kinfolk/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestSeedTestIsRepeatable(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	defer database.Close(db)

	s := NewSeeder(db)
	require.NoError(t, s.SeedTest())
	require.NoError(t, s.SeedTest())

	assert.Equal(t, int64(5), count(t, db, &models.User{}))
	// alice-bob, bob-charlie, charlie-diana, diana-eve in both directions
	assert.Equal(t, int64(8), count(t, db, &models.Friendship{}))
	assert.Equal(t, int64(6), count(t, db, &models.DirectMessage{}))

	counts, err := s.Counts()
	require.NoError(t, err)
	byTable := map[string]int64{}
	for _, c := range counts {
		byTable[c.Table] = c.Rows
	}
	assert.Equal(t, int64(5), byTable["users"])
	assert.Equal(t, int64(6), byTable["direct_messages"])
	assert.Len(t, counts, 9)

	var alice models.User
	require.NoError(t, db.Where("username = ?", "alice").First(&alice).Error)
	assert.True(t, alice.ShowPresence)
	assert.NotEmpty(t, alice.PasswordHash)
}

func TestSeedDevAndClean(t *testing.T) {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	defer database.Close(db)

	// A real account that Clean must leave alone
	keep := &models.User{Email: "keep@kinfolk.test", Username: "keeper", DisplayName: "Keeper", PasswordHash: "h"}
	require.NoError(t, db.Create(keep).Error)

	s := NewSeeder(db)
	require.NoError(t, s.SeedDev(Options{
		Users:         12,
		FriendsEach:   3,
		Posts:         20,
		Comments:      30,
		Likes:         40,
		Messages:      25,
		Notifications: 30,
	}))

	assert.Equal(t, int64(13), count(t, db, &models.User{}))
	assert.Equal(t, int64(20), count(t, db, &models.Post{}))
	assert.Equal(t, int64(30), count(t, db, &models.Comment{}))
	assert.Equal(t, int64(25), count(t, db, &models.DirectMessage{}))
	assert.NotZero(t, count(t, db, &models.Friendship{}))
	assert.NotZero(t, count(t, db, &models.PostLike{}))

	var unnamed int64
	require.NoError(t, db.Model(&models.Notification{}).Where("actor_id = user_id").Count(&unnamed).Error)
	assert.Zero(t, unnamed)

	require.NoError(t, s.Clean())
	assert.Equal(t, int64(1), count(t, db, &models.User{}))
	assert.Zero(t, count(t, db, &models.Post{}))
	assert.Zero(t, count(t, db, &models.Friendship{}))
	assert.Zero(t, count(t, db, &models.DirectMessage{}))
	assert.Zero(t, count(t, db, &models.Notification{}))
}
