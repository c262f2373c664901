package main

import (
	"bytes"
	"fmt"
	"image/png"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sosmed/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) follow(by testUser, target uint) *userView {
	s.t.Helper()
	rec := s.call(http.MethodPost, fmt.Sprintf("/api/v1/users/follow/%d", target), nil, by.access)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var view userView
	decodeEnvelope(s.t, rec, &view)
	return &view
}

func TestUserProfile(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")
	s.follow(bob, alice.ID)

	rec := s.call(http.MethodGet, "/api/v1/users/userProfile/alice", nil, bob.access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view userView
	decodeEnvelope(t, rec, &view)
	assert.Equal(t, alice.ID, view.ID)
	assert.Equal(t, []uint{bob.ID}, view.Followers)
	assert.Empty(t, view.Following)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	rec = s.call(http.MethodGet, "/api/v1/users/userProfile/nobody", nil, bob.access)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Couldn't get the profile", decodeEnvelope(t, rec, nil).Message)
}

func TestSuggestedUsers(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")
	carol := s.signup("carol")
	dave := s.signup("dave")

	s.follow(bob, carol.ID)
	s.follow(dave, carol.ID)
	s.follow(dave, bob.ID)
	s.follow(alice, dave.ID)

	rec := s.call(http.MethodGet, "/api/v1/users/suggested", nil, alice.access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var views []userView
	decodeEnvelope(t, rec, &views)

	var ids []uint
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []uint{carol.ID, bob.ID}, ids)
	assert.ElementsMatch(t, []uint{bob.ID, dave.ID}, views[0].Followers)
}

func TestSuggestedUsers_None(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")
	s.follow(alice, bob.ID)

	rec := s.call(http.MethodGet, "/api/v1/users/suggested", nil, alice.access)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []userView
	env := decodeEnvelope(t, rec, &views)
	assert.Equal(t, "No suggested users available", env.Message)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

func TestFollowToggle(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")
	path := fmt.Sprintf("/api/v1/users/follow/%d", bob.ID)

	rec := s.call(http.MethodPost, path, nil, alice.access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view userView
	assert.Equal(t, "Followed successfully", decodeEnvelope(t, rec, &view).Message)
	assert.Equal(t, []uint{alice.ID}, view.Followers)

	rec = s.call(http.MethodPost, "/api/v1/auth/profile", nil, alice.access)
	var me userView
	decodeEnvelope(t, rec, &me)
	assert.Equal(t, []uint{bob.ID}, me.Following)

	rec = s.call(http.MethodPost, path, nil, alice.access)
	require.Equal(t, http.StatusOK, rec.Code)
	view = userView{}
	assert.Equal(t, "Unfollowed successfully", decodeEnvelope(t, rec, &view).Message)
	assert.Empty(t, view.Followers)

	var notes []models.Notification
	rec = s.call(http.MethodGet, "/api/v1/notifications", nil, bob.access)
	decodeEnvelope(t, rec, &notes)
	require.Len(t, notes, 2)
	assert.Equal(t, "unfollow", notes[0].Type)
	assert.Equal(t, "alice unfollowed you", notes[0].Message)
	assert.Equal(t, "follow", notes[1].Type)
	assert.Equal(t, "alice started following you", notes[1].Message)
	assert.Equal(t, alice.ID, notes[1].From.ID)
}

func TestFollow_Rejections(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.call(http.MethodPost, fmt.Sprintf("/api/v1/users/follow/%d", alice.ID), nil, alice.access)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "You can't follow/unfollow yourself", decodeEnvelope(t, rec, nil).Message)

	for _, id := range []string{"999", "abc", "0"} {
		rec := s.call(http.MethodPost, "/api/v1/users/follow/"+id, nil, alice.access)
		require.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, "User not found", decodeEnvelope(t, rec, nil).Message)
	}
}

func TestUpdateProfile_TextFields(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.call(http.MethodPost, "/api/v1/users/update", map[string]string{
		"fullName": "Alice Liddell",
		"bio":      "down the rabbit hole",
		"link":     "https://example.com/alice",
		"username": "alice_l",
		"email":    "liddell@example.com",
	}, alice.access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view userView
	assert.Equal(t, "Profile updated successfully", decodeEnvelope(t, rec, &view).Message)
	assert.Equal(t, "Alice Liddell", view.FullName)
	assert.Equal(t, "down the rabbit hole", view.Bio)
	assert.Equal(t, "https://example.com/alice", view.Link)
	assert.Equal(t, "alice_l", view.UserName)
	assert.Equal(t, "liddell@example.com", view.Email)
	assert.NotContains(t, rec.Body.String(), "$2a$")

	// empty fields leave the profile alone
	rec = s.call(http.MethodPost, "/api/v1/users/update", map[string]string{}, alice.access)
	require.Equal(t, http.StatusOK, rec.Code)
	view = userView{}
	decodeEnvelope(t, rec, &view)
	assert.Equal(t, "Alice Liddell", view.FullName)
}

func TestUpdateProfile_Rejections(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")
	s.signup("bob")

	tests := []struct {
		name    string
		body    map[string]string
		message string
	}{
		{"only current password", map[string]string{"currentPassword": "secret1"}, "Please provide both current and new passwords"},
		{"only new password", map[string]string{"newPassword": "secret22"}, "Please provide both current and new passwords"},
		{"wrong current password", map[string]string{"currentPassword": "nope", "newPassword": "secret22"}, "Current password is incorrect"},
		{"short new password", map[string]string{"currentPassword": "secret1", "newPassword": "12345"}, "Password must be at least 6 characters long"},
		{"email taken", map[string]string{"email": "bob@example.com"}, "Email already in use"},
		{"username taken", map[string]string{"username": "bob"}, "Username already in use"},
		{"invalid email", map[string]string{"email": "bob"}, "Invalid email"},
		{"invalid username", map[string]string{"username": "no spaces"}, "Invalid username format"},
		{"invalid image", map[string]string{"profileImg": "https://example.com/a.png"}, "Invalid image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.call(http.MethodPost, "/api/v1/users/update", tt.body, alice.access)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tt.message, decodeEnvelope(t, rec, nil).Message)
		})
	}

	// nothing was applied
	rec := s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"userName": "alice", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateProfile_Password(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.call(http.MethodPost, "/api/v1/users/update", map[string]string{
		"currentPassword": "secret1",
		"newPassword":     "secret22",
	}, alice.access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"userName": "alice", "password": "secret1"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.call(http.MethodPost, "/api/v1/auth/login", map[string]string{"userName": "alice", "password": "secret22"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateProfile_Images(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.call(http.MethodPost, "/api/v1/users/update", map[string]string{
		"profileImg": pngDataURI(t, 200, 100),
		"coverImg":   pngDataURI(t, 30, 30),
	}, alice.access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first userView
	decodeEnvelope(t, rec, &first)
	require.True(t, strings.HasPrefix(first.ProfileImg, testPublicURL+"/"), first.ProfileImg)
	require.True(t, strings.HasPrefix(first.CoverImg, testPublicURL+"/"), first.CoverImg)

	raw, err := os.ReadFile(s.uploadedFile(first.ProfileImg))
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)

	// the upload dir is served next to the API
	path := strings.TrimPrefix(first.ProfileImg, "http://localhost:5000")
	served := s.call(http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, raw, served.Body.Bytes())

	rec = s.call(http.MethodPost, "/api/v1/users/update", map[string]string{
		"profileImg": pngDataURI(t, 10, 10),
	}, alice.access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second userView
	decodeEnvelope(t, rec, &second)
	assert.NotEqual(t, first.ProfileImg, second.ProfileImg)
	assert.Equal(t, first.CoverImg, second.CoverImg)

	assert.NoFileExists(t, s.uploadedFile(first.ProfileImg))
	assert.FileExists(t, s.uploadedFile(second.ProfileImg))
	assert.FileExists(t, s.uploadedFile(second.CoverImg))
}

func TestUpdateProfile_FailedSaveKeepsOldImage(t *testing.T) {
	s := setupTestServer(t)
	alice := s.signup("alice")

	rec := s.call(http.MethodPost, "/api/v1/users/update", map[string]string{"profileImg": pngDataURI(t, 10, 10)}, alice.access)
	require.Equal(t, http.StatusOK, rec.Code)
	var before userView
	decodeEnvelope(t, rec, &before)

	// a broken cover image aborts the request before anything is saved
	rec = s.call(http.MethodPost, "/api/v1/users/update", map[string]string{
		"profileImg": pngDataURI(t, 12, 12),
		"coverImg":   "data:image/png;base64,AAAA",
	}, alice.access)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	assert.FileExists(t, s.uploadedFile(before.ProfileImg))
	assert.Equal(t, 1, countFiles(t, s.uploads))
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return err
	})
	require.NoError(t, err)
	return n
}
