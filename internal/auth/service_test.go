package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kinfolk/backend/internal/database"
	"github.com/kinfolk/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

var testSecret = []byte("test_jwt_secret_key")

// AuthServiceTestSuite contains auth service tests
type AuthServiceTestSuite struct {
	suite.Suite
	db          *gorm.DB
	authService *Service
}

func (suite *AuthServiceTestSuite) SetupTest() {
	db, err := database.OpenInMemory()
	require.NoError(suite.T(), err)

	suite.db = db
	suite.authService = NewService(testSecret, time.Hour, repository.NewUserRepository(db))
}

func (suite *AuthServiceTestSuite) TearDownTest() {
	database.Close(suite.db)
}

func (suite *AuthServiceTestSuite) register(email, username string) *AuthResponse {
	resp, err := suite.authService.Register(context.Background(), RegisterRequest{
		Email:       email,
		Username:    username,
		Password:    "password123",
		DisplayName: username,
	})
	require.NoError(suite.T(), err)
	return resp
}

func (suite *AuthServiceTestSuite) TestRegister() {
	t := suite.T()

	resp := suite.register("Test@Kinfolk.app", "Tester")
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "test@kinfolk.app", resp.User.Email)
	assert.Equal(t, "tester", resp.User.Username)
	assert.NotEmpty(t, resp.User.PasswordHash)
	assert.True(t, resp.User.ShowPresence)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)

	_, err := suite.authService.Register(context.Background(), RegisterRequest{
		Email: "test@kinfolk.app", Username: "other", Password: "password123", DisplayName: "x",
	})
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = suite.authService.Register(context.Background(), RegisterRequest{
		Email: "new@kinfolk.app", Username: "TESTER", Password: "password123", DisplayName: "x",
	})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func (suite *AuthServiceTestSuite) TestLogin() {
	t := suite.T()
	registered := suite.register("login@kinfolk.app", "loginuser")

	resp, err := suite.authService.Login(context.Background(), LoginRequest{Email: "LOGIN@kinfolk.app", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, resp.User.ID)

	_, err = suite.authService.Login(context.Background(), LoginRequest{Email: "login@kinfolk.app", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = suite.authService.Login(context.Background(), LoginRequest{Email: "nobody@kinfolk.app", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func (suite *AuthServiceTestSuite) TestVerify() {
	t := suite.T()
	resp := suite.register("verify@kinfolk.app", "verifier")

	userID, err := suite.authService.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, userID)

	user, err := suite.authService.ValidateToken(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "verifier", user.Username)
}

func (suite *AuthServiceTestSuite) TestVerifyRejects() {
	t := suite.T()

	_, err := suite.authService.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = suite.authService.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(-time.Minute).Unix(),
	})
	_, err = suite.authService.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongSecret := signToken(t, []byte("other"), jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(time.Minute).Unix(),
	})
	_, err = suite.authService.Verify(wrongSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExpiry := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u1"})
	_, err = suite.authService.Verify(noExpiry)
	assert.ErrorIs(t, err, ErrInvalidToken)

	otherAlg := signToken(t, testSecret, jwt.SigningMethodHS512, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(time.Minute).Unix(),
	})
	_, err = suite.authService.Verify(otherAlg)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noUser := signToken(t, testSecret, jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	_, err = suite.authService.Verify(noUser)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func (suite *AuthServiceTestSuite) TestMiddleware() {
	t := suite.T()
	gin.SetMode(gin.TestMode)
	resp := suite.register("mw@kinfolk.app", "mwuser")

	router := gin.New()
	router.GET("/me", Middleware(suite.authService), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, resp.User.ID, w.Body.String())
}

func TestTokenFromHeader(t *testing.T) {
	assert.Equal(t, "abc", TokenFromHeader("Bearer abc"))
	assert.Equal(t, "abc", TokenFromHeader("bearer abc"))
	assert.Empty(t, TokenFromHeader("Basic abc"))
	assert.Empty(t, TokenFromHeader("Bearer "))
	assert.Empty(t, TokenFromHeader(""))
}

func signToken(t *testing.T, secret []byte, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
