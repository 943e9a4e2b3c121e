package database

import (
	"testing"

	"github.com/kinfolk/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemoryMigrates(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(db)

	for _, m := range AllModels() {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.NoError(t, Health(db))
}

func TestForeignKeysEnforced(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(db)

	msg := &models.DirectMessage{SenderID: "nobody", RecipientID: "nobody-else", Content: "hi"}
	assert.Error(t, db.Omit("Sender", "Recipient").Create(msg).Error)
}

func TestInMemoryDatabasesAreIsolated(t *testing.T) {
	a, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(a)
	b, err := OpenInMemory()
	require.NoError(t, err)
	defer Close(b)

	require.NoError(t, a.Create(&models.User{Email: "a@x.io", Username: "aaa", DisplayName: "A", PasswordHash: "x"}).Error)

	var count int64
	b.Model(&models.User{}).Count(&count)
	assert.Zero(t, count)
}
