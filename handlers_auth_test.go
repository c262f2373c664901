package main

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"sosmed/models"
	"sosmed/pkg/session"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedRefreshHash(t *testing.T, s *testServer, id uint) *string {
	t.Helper()
	var user models.User
	require.NoError(t, s.app.db.Select("id", "refresh_token_hash").First(&user, id).Error)
	return user.RefreshTokenHash
}

func TestSignup_SetsSessionCookies(t *testing.T) {
	s := setupTestServer(t)

	rec := s.call(http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"userName": "alice",
		"fullName": "Alice",
		"email":    "alice@example.com",
		"password": "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var user userView
	env := decodeEnvelope(t, rec, &user)
	assert.Equal(t, "User Registered Successfully", env.Message)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice", user.UserName)
	assert.Equal(t, "Alice", user.FullName)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Empty(t, user.Followers)
	assert.Empty(t, user.Following)

	body := rec.Body.String()
	for _, leaked := range []string{"password", "Password", "refreshTokenHash", "$2a$"} {
		assert.NotContains(t, body, leaked)
	}

	cookies := rec.Result().Cookies()
	for _, name := range []string{"accessToken", "refreshToken"} {
		ck := findCookie(cookies, name)
		require.NotNil(t, ck, name)
		assert.True(t, ck.HttpOnly, name)
		assert.True(t, ck.Secure, name)
		assert.Equal(t, http.SameSiteStrictMode, ck.SameSite, name)
		assert.NotEmpty(t, ck.Value, name)
	}
	assert.Equal(t, int((15 * time.Minute).Seconds()), findCookie(cookies, "accessToken").MaxAge)
	assert.Equal(t, int((240 * time.Hour).Seconds()), findCookie(cookies, "refreshToken").MaxAge)

	hash := storedRefreshHash(t, s, user.ID)
	require.NotNil(t, hash)
	assert.Equal(t, session.HashToken(cookieValue(cookies, "refreshToken")), *hash)
}

func TestSignup_Validation(t *testing.T) {
	s := setupTestServer(t)

	valid := func() map[string]string {
		return map[string]string{
			"userName": "bob_1",
			"fullName": "Bob",
			"email":    "bob@example.com",
			"password": "secret1",
		}
	}
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		message string
	}{
		{"missing user name", func(m map[string]string) { delete(m, "userName") }, "All fields are required"},
		{"blank full name", func(m map[string]string) { m["fullName"] = "   " }, "All fields are required"},
		{"missing password", func(m map[string]string) { m["password"] = "" }, "All fields are required"},
		{"bad email", func(m map[string]string) { m["email"] = "bob@example" }, "Invalid email"},
		{"email checked before password", func(m map[string]string) {
			m["email"] = "nope"
			m["password"] = "123"
		}, "Invalid email"},
		{"short password", func(m map[string]string) { m["password"] = "1234" }, "Password must be at least 5 characters"},
		{"handle with spaces", func(m map[string]string) { m["userName"] = "bob smith" }, "Invalid username format"},
		{"handle too long", func(m map[string]string) { m["userName"] = strings.Repeat("b", 21) }, "Invalid username format"},
		{"padded handle", func(m map[string]string) { m["userName"] = "  bob01 " }, "Invalid username format"},
		{"password over bcrypt limit", func(m map[string]string) { m["password"] = strings.Repeat("p", 73) }, "Password must be at most 72 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(body)
			rec := s.call(http.MethodPost, "/api/v1/auth/signup", body, "")
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.message, decodeEnvelope(t, rec, nil).Message)
			assert.Empty(t, rec.Result().Cookies())
		})
	}

	var n int64
	require.NoError(t, s.app.db.Model(&models.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSignup_EmptyBody(t *testing.T) {
	s := setupTestServer(t)
	rec := s.call(http.MethodPost, "/api/v1/auth/signup", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "All fields are required", decodeEnvelope(t, rec, nil).Message)
}

func TestSignup_IdentityTaken(t *testing.T) {
	s := setupTestServer(t)
	s.signup("alice")

	for name, body := range map[string]map[string]string{
		"same handle": {"userName": "alice", "fullName": "A", "email": "other@example.com", "password": "secret1"},
		"same email":  {"userName": "alice2", "fullName": "A", "email": "alice@example.com", "password": "secret1"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.call(http.MethodPost, "/api/v1/auth/signup", body, "")
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Username or Email already in use", decodeEnvelope(t, rec, nil).Message)
		})
	}
}

func TestLogin(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"userName": "alice",
		"password": "secret1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out loginResponse
	env := decodeEnvelope(t, rec, &out)
	assert.Equal(t, "Login successful", env.Message)
	assert.Equal(t, alice.ID, out.User.ID)
	assert.NotEmpty(t, out.AccessToken)
	assert.NotEmpty(t, out.RefreshToken)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	cookies := rec.Result().Cookies()
	assert.Equal(t, out.AccessToken, cookieValue(cookies, "accessToken"))
	assert.Equal(t, out.RefreshToken, cookieValue(cookies, "refreshToken"))
}

func TestLogin_FailuresLookAlike(t *testing.T) {
	s := setupTestServer(t)
	s.signup("alice")

	unknown := s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"userName": "mallory", "password": "secret1"}, "")
	wrong := s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"userName": "alice", "password": "wrong-pass"}, "")

	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	require.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	assert.Equal(t, "Invalid Username or Password", decodeEnvelope(t, wrong, nil).Message)
	assert.Empty(t, wrong.Result().Cookies())
}

func TestLogin_HandleIsNotTrimmed(t *testing.T) {
	s := setupTestServer(t)
	s.signup("alice")

	rec := s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"userName": "alice   ", "password": "secret1"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid Username or Password", decodeEnvelope(t, rec, nil).Message)
}

func TestLogin_MissingFields(t *testing.T) {
	s := setupTestServer(t)
	rec := s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"userName": "alice"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username and Password are required", decodeEnvelope(t, rec, nil).Message)
}

func TestLogin_ReplacesEarlierSession(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"userName": "alice", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out loginResponse
	decodeEnvelope(t, rec, &out)

	hash := storedRefreshHash(t, s, alice.ID)
	require.NotNil(t, hash)
	assert.Equal(t, session.HashToken(out.RefreshToken), *hash)

	rec = s.call(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": alice.refresh}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid refresh token", decodeEnvelope(t, rec, nil).Message)

	rec = s.call(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": out.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefresh_RotatesPair(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.callWithCookies(http.MethodPost, "/api/v1/auth/refresh", nil, []*http.Cookie{
		{Name: "refreshToken", Value: alice.refresh},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pair session.Pair
	env := decodeEnvelope(t, rec, &pair)
	assert.Equal(t, "Access token refreshed", env.Message)
	assert.NotEqual(t, alice.refresh, pair.RefreshToken)
	assert.NotEqual(t, alice.access, pair.AccessToken)
	cookies := rec.Result().Cookies()
	assert.Equal(t, pair.AccessToken, cookieValue(cookies, "accessToken"))
	assert.Equal(t, pair.RefreshToken, cookieValue(cookies, "refreshToken"))

	hash := storedRefreshHash(t, s, alice.ID)
	require.NotNil(t, hash)
	assert.Equal(t, session.HashToken(pair.RefreshToken), *hash)

	// the redeemed token is spent
	rec = s.call(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": alice.refresh}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.call(http.MethodPost, "/api/v1/auth/profile", nil, pair.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefresh_Rejections(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.call(http.MethodPost, "/api/v1/auth/refresh", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized - No refresh token provided", decodeEnvelope(t, rec, nil).Message)

	for name, token := range map[string]string{
		"garbage":      "not-a-jwt",
		"access token": alice.access,
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.call(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": token}, "")
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Invalid refresh token", decodeEnvelope(t, rec, nil).Message)
		})
	}

	// still the live token after all the failed attempts
	rec = s.call(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": alice.refresh}, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLogout(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.call(http.MethodPost, "/api/v1/auth/logout", nil, alice.access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "User logged out successfully.", decodeEnvelope(t, rec, nil).Message)
	assert.Nil(t, storedRefreshHash(t, s, alice.ID))

	for _, name := range []string{"accessToken", "refreshToken"} {
		ck := findCookie(rec.Result().Cookies(), name)
		require.NotNil(t, ck, name)
		assert.Empty(t, ck.Value)
		assert.Negative(t, ck.MaxAge)
		assert.True(t, ck.HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	}

	rec = s.call(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": alice.refresh}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// the access token stays valid until it expires, so logging out again works
	rec = s.call(http.MethodPost, "/api/v1/auth/logout", nil, alice.access)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProfile(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.callWithCookies(http.MethodPost, "/api/v1/auth/profile", nil, alice.cookies)
	assert.Equal(t, http.StatusOK, rec.Code, "cookie")

	rec = s.call(http.MethodPost, "/api/v1/auth/profile", nil, alice.access)
	require.Equal(t, http.StatusOK, rec.Code, "bearer")
	var me userView
	assert.Equal(t, "Success", decodeEnvelope(t, rec, &me).Message)
	assert.Equal(t, alice.ID, me.ID)
	assert.Equal(t, "alice", me.UserName)
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func signToken(t *testing.T, secret string, claims session.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthGate(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")
	cfg := s.app.cfg
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		token   string
		status  int
		message string
	}{
		{"no token", "", http.StatusUnauthorized, "Unauthorized - No token provided"},
		{"garbage", "garbage", http.StatusUnauthorized, "Unauthorized - Invalid token"},
		{"refresh token", alice.refresh, http.StatusUnauthorized, "Unauthorized - Invalid token"},
		{"expired", signToken(t, cfg.AccessSecret, session.Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
			UserID:           alice.ID,
		}), http.StatusUnauthorized, "Unauthorized - Invalid token"},
		{"no expiry", signToken(t, cfg.AccessSecret, session.Claims{UserID: alice.ID}),
			http.StatusUnauthorized, "Unauthorized - Invalid token"},
		{"no user id", signToken(t, cfg.AccessSecret, session.Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
		}), http.StatusUnauthorized, "Unauthorized - Invalid token payload"},
		{"unknown user", signToken(t, cfg.AccessSecret, session.Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future},
			UserID:           alice.ID + 100,
		}), http.StatusNotFound, "User not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.call(http.MethodPost, "/api/v1/auth/profile", nil, tt.token)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.message, decodeEnvelope(t, rec, nil).Message)
		})
	}
}

func TestAuthGate_DeletedUser(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")
	require.NoError(t, s.app.db.Delete(&models.User{}, alice.ID).Error)

	rec := s.call(http.MethodGet, "/api/v1/users/suggested", nil, alice.access)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", decodeEnvelope(t, rec, nil).Message)
}

func TestSetPassword_EndsSession(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	require.NoError(t, s.app.setPassword(context.Background(), alice.ID, "brand-new"))
	assert.Nil(t, storedRefreshHash(t, s, alice.ID))

	rec := s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"userName": "alice", "password": "brand-new"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	err := s.app.setPassword(context.Background(), alice.ID+100, "brand-new")
	require.Error(t, err)
}
