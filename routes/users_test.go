package routes

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerconnect/models"
	"volunteerconnect/utils"
)

func TestGetAndUpdateMe(t *testing.T) {
	env := newTestEnv(t)
	user := env.volunteer("me@example.org")

	resp := env.do(http.MethodGet, "/users/me", user, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var me models.User
	resp.decode(t, &me)
	assert.Equal(t, user.ID, me.ID)
	assert.Equal(t, "volunteer", me.UserType)

	resp = env.do(http.MethodPut, "/users/me", user, map[string]interface{}{
		"name": "New Name",
		"bio":  "Likes gardening",
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))
	resp.decode(t, &me)
	assert.Equal(t, "New Name", me.Name)
	require.NotNil(t, me.Bio)
	assert.Equal(t, "Likes gardening", *me.Bio)

	resp = env.do(http.MethodPut, "/users/me", user, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.volunteer("pw@example.org")

	resp := env.do(http.MethodPut, "/users/me/password", user, map[string]interface{}{
		"current_password": "wrong", "new_password": "another-password",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(http.MethodPut, "/users/me/password", user, map[string]interface{}{
		"current_password": testPassword, "new_password": "another-password",
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	var data struct {
		Token string `json:"token"`
	}
	resp.decode(t, &data)
	assert.NotEmpty(t, data.Token)

	claims, err := utils.ParseJWTToken(data.Token)
	require.NoError(t, err)
	var stored models.User
	require.NoError(t, env.db.First(&stored, user.ID).Error)
	assert.Equal(t, 1, stored.TokenVersion)
	assert.Equal(t, stored.TokenVersion, claims.TokenVersion)

	assert.Equal(t, http.StatusOK, env.send(authorizedRequest(http.MethodGet, "/users/me", data.Token)).Status)
	// tokens issued before the change no longer work
	assert.Equal(t, http.StatusUnauthorized, env.send(authorizedRequest(http.MethodGet, "/users/me", env.token(user))).Status)

	resp = env.do(http.MethodPost, "/auth/login", nil, map[string]interface{}{
		"email": "pw@example.org", "password": "another-password",
	})
	assert.Equal(t, http.StatusOK, resp.Status)
}

func avatarRequest(t *testing.T, token, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="avatar"; filename="me.png"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/users/me/avatar", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUploadAvatar(t *testing.T) {
	env := newTestEnv(t)
	user := env.volunteer("avatar@example.org")
	token := env.token(user)

	png := []byte("\x89PNG\r\n\x1a\nfake-image-bytes")
	resp := env.send(avatarRequest(t, token, "image/png", png))
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	var me models.User
	resp.decode(t, &me)
	require.NotNil(t, me.ProfileImage)
	assert.True(t, strings.HasPrefix(*me.ProfileImage, "/uploads/"))

	stored := filepath.Join(env.upload.Dir, filepath.Base(*me.ProfileImage))
	content, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, png, content)

	served := env.send(httptest.NewRequest(http.MethodGet, *me.ProfileImage, nil))
	assert.Equal(t, http.StatusOK, served.Status)

	resp = env.send(avatarRequest(t, token, "text/plain", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestUploadAvatar_ReplacesPreviousImage(t *testing.T) {
	env := newTestEnv(t)
	user := env.volunteer("replace@example.org")
	token := env.token(user)

	upload := func(content []byte) string {
		t.Helper()
		resp := env.send(avatarRequest(t, token, "image/png", content))
		require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))
		var me models.User
		resp.decode(t, &me)
		require.NotNil(t, me.ProfileImage)
		return *me.ProfileImage
	}
	onDisk := func(url string) string {
		return filepath.Join(env.upload.Dir, filepath.Base(url))
	}

	first := upload([]byte("\x89PNG\r\n\x1a\nfirst"))
	second := upload([]byte("\x89PNG\r\n\x1a\nsecond"))
	require.NotEqual(t, first, second)

	_, err := os.Stat(onDisk(first))
	assert.True(t, os.IsNotExist(err), "previous image should be removed")

	content, err := os.ReadFile(onDisk(second))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nsecond"), content)

	entries, err := os.ReadDir(env.upload.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	var stored models.User
	require.NoError(t, env.db.First(&stored, user.ID).Error)
	require.NotNil(t, stored.ProfileImage)
	assert.Equal(t, second, *stored.ProfileImage)

	assert.Equal(t, http.StatusOK, env.send(httptest.NewRequest(http.MethodGet, second, nil)).Status)
	assert.Equal(t, http.StatusNotFound, env.send(httptest.NewRequest(http.MethodGet, first, nil)).Status)
}

func TestMyPermissions(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	volunteer := env.volunteer("vol@example.org")

	var data struct {
		IsAdmin     bool            `json:"is_admin"`
		Permissions map[string]bool `json:"permissions"`
	}

	resp := env.do(http.MethodGet, "/users/me/permissions", admin, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.decode(t, &data)
	assert.True(t, data.IsAdmin)
	for _, p := range models.PermissionCatalog {
		assert.True(t, data.Permissions[p.Key], p.Key)
	}

	resp = env.do(http.MethodGet, "/users/me/permissions", volunteer, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.decode(t, &data)
	assert.False(t, data.IsAdmin)
	assert.Len(t, data.Permissions, len(models.PermissionCatalog))
	for key, allowed := range data.Permissions {
		assert.False(t, allowed, key)
	}
}

func TestListAndGetUsers(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	alice := env.volunteer("alice@example.org")
	bob := env.volunteer("bob@example.org")

	resp := env.do(http.MethodGet, "/users", alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = env.do(http.MethodGet, "/users", admin, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var users []models.User
	resp.decode(t, &users)
	assert.Len(t, users, 3)

	resp = env.do(http.MethodGet, "/users?search=ALICE", admin, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.decode(t, &users)
	require.Len(t, users, 1)
	assert.Equal(t, alice.ID, users[0].ID)

	resp = env.do(http.MethodGet, fmt.Sprintf("/users/%d", alice.ID), alice, nil)
	assert.Equal(t, http.StatusOK, resp.Status)

	resp = env.do(http.MethodGet, fmt.Sprintf("/users/%d", bob.ID), alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = env.do(http.MethodGet, "/users/9999", admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestUsersViewGrantOpensListing(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()

	role := models.Role{Name: "Coordinator"}
	require.NoError(t, env.db.Create(&role).Error)
	coordinator := env.createUser("coord@example.org", role.ID, true)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/users", coordinator, nil).Status)

	resp := env.do(http.MethodPut, fmt.Sprintf("/roles/%d/permissions", role.ID), admin, map[string]interface{}{
		"permissions": []map[string]interface{}{{"key": models.PermUsersView, "has_access": true}},
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/users", coordinator, nil).Status)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, fmt.Sprintf("/users/%d", admin.ID), coordinator, nil).Status)
}

func TestUpdateUserRole(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	alice := env.volunteer("alice@example.org")
	bob := env.volunteer("bob@example.org")

	// a non-admin cannot change anyone's role, their own included
	resp := env.do(http.MethodPut, fmt.Sprintf("/users/%d/role", bob.ID), alice, map[string]interface{}{"role": 0})
	assert.Equal(t, http.StatusForbidden, resp.Status)
	resp = env.do(http.MethodPut, fmt.Sprintf("/users/%d/role", alice.ID), alice, map[string]interface{}{"role": 0})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	var reloaded models.User
	require.NoError(t, env.db.First(&reloaded, bob.ID).Error)
	assert.Equal(t, models.RoleVolunteerID, reloaded.Role)

	resp = env.do(http.MethodPut, fmt.Sprintf("/users/%d/role", admin.ID), admin, map[string]interface{}{"role": 1})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(http.MethodPut, fmt.Sprintf("/users/%d/role", bob.ID), admin, map[string]interface{}{"role": 42})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(http.MethodPut, fmt.Sprintf("/users/%d/role", bob.ID), admin, map[string]interface{}{"role": 0})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))
	require.NoError(t, env.db.First(&reloaded, bob.ID).Error)
	assert.Equal(t, models.RoleAdminID, reloaded.Role)
	assert.Equal(t, "admin", reloaded.UserType)
}

func TestUpdateUserStatus(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	alice := env.volunteer("alice@example.org")

	resp := env.do(http.MethodPut, fmt.Sprintf("/users/%d/status", admin.ID), admin, map[string]interface{}{"is_active": false})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(http.MethodPut, fmt.Sprintf("/users/%d/status", alice.ID), alice, map[string]interface{}{"is_active": false})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	token := env.token(alice)
	resp = env.do(http.MethodPut, fmt.Sprintf("/users/%d/status", alice.ID), admin, map[string]interface{}{"is_active": false})
	require.Equal(t, http.StatusOK, resp.Status)

	assert.Equal(t, http.StatusForbidden, env.send(authorizedRequest(http.MethodGet, "/users/me", token)).Status)

	resp = env.do(http.MethodPut, fmt.Sprintf("/users/%d/status", alice.ID), admin, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	alice := env.volunteer("alice@example.org")
	bob := env.volunteer("bob@example.org")

	resp := env.do(http.MethodDelete, fmt.Sprintf("/users/%d", admin.ID), admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(http.MethodDelete, fmt.Sprintf("/users/%d", bob.ID), alice, nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	activity := env.createActivity(admin, map[string]interface{}{"title": "Beach cleanup", "start_date": day(1)})
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/activities/%d/join", activity.ID), alice, nil).Status)
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/activities/%d/join", activity.ID), bob, nil).Status)

	task := createTask(t, env, admin, activity.ID, map[string]interface{}{"title": "Bring bags"})
	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/activities/%d/tasks/%d/users", activity.ID, task.ID), admin,
		map[string]interface{}{"user_id": alice.ID}).Status)

	resp = env.do(http.MethodDelete, fmt.Sprintf("/users/%d", alice.ID), admin, nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	var count int64
	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", alice.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, env.db.Model(&models.ActivityParticipant{}).Where("user_id = ?", alice.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, env.db.Model(&models.TaskUser{}).Where("user_id = ?", alice.ID).Count(&count).Error)
	assert.Zero(t, count)

	// other members are untouched
	require.NoError(t, env.db.Model(&models.ActivityParticipant{}).Where("user_id = ?", bob.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	resp = env.do(http.MethodDelete, fmt.Sprintf("/users/%d", alice.ID), admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestDeleteUser_KeepsTheirActivities(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	alice := env.volunteer("alice@example.org")

	activity := env.createActivity(alice, map[string]interface{}{"title": "Alice's drive", "start_date": day(2)})

	resp := env.do(http.MethodDelete, fmt.Sprintf("/users/%d", alice.ID), admin, nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	resp = env.do(http.MethodGet, fmt.Sprintf("/activities/%d", activity.ID), admin, nil)
	assert.Equal(t, http.StatusOK, resp.Status)
}
