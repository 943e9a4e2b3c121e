package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kinfolk/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMentions(t *testing.T) {
	got := ExtractMentions("hey @Alice, did you see @bob! @alice again @xy and email@host")
	assert.Equal(t, []string{"alice", "bob"}, got)
	assert.Empty(t, ExtractMentions("no mentions here"))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit("", 20, 100))
	assert.Equal(t, 20, ClampLimit("-4", 20, 100))
	assert.Equal(t, 100, ClampLimit("5000", 20, 100))
	assert.Equal(t, 7, ClampLimit("7", 20, 100))
}

func TestParseTimeParam(t *testing.T) {
	got, err := ParseTimeParam("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseTimeParam("2026-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	_, err = ParseTimeParam("yesterday")
	assert.Error(t, err)
}

func TestHandleDBError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := map[error]int{
		repository.ErrPostNotFound: http.StatusNotFound,
		repository.ErrDuplicate:    http.StatusConflict,
		assert.AnError:             http.StatusInternalServerError,
	}
	for err, status := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		assert.True(t, HandleDBError(c, err, "post"))
		assert.Equal(t, status, w.Code)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.False(t, HandleDBError(c, nil, "post"))
}

func TestGetUserIDFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	_, ok := GetUserIDFromContext(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Set("user_id", "u1")
	id, ok := GetUserIDFromContext(c)
	assert.True(t, ok)
	assert.Equal(t, "u1", id)
}
