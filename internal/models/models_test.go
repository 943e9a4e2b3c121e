package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotificationKind(t *testing.T) {
	k, err := ParseNotificationKind("Like")
	require.NoError(t, err)
	assert.Equal(t, NotificationLike, k)

	k, err = ParseNotificationKind("follow")
	require.NoError(t, err)
	assert.Equal(t, NotificationFriendAccept, k)

	_, err = ParseNotificationKind("poke")
	assert.Error(t, err)
	assert.False(t, NotificationKind("poke").Valid())
}

func TestPublicHidesPresence(t *testing.T) {
	u := &User{ID: "u1", Username: "ana", IsOnline: true, ShowPresence: false}
	assert.False(t, u.Public().IsOnline)

	u.ShowPresence = true
	assert.True(t, u.Public().IsOnline)
}

func TestStringPtr(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Equal(t, "x", *StringPtr("x"))
}
