package routes

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerconnect/models"
)

type rolePermissions struct {
	Role        models.Role `json:"role"`
	Permissions []struct {
		Key       string `json:"key"`
		HasAccess bool   `json:"has_access"`
	} `json:"permissions"`
}

func (r rolePermissions) access(key string) bool {
	for _, p := range r.Permissions {
		if p.Key == key {
			return p.HasAccess
		}
	}
	return false
}

func TestPermissionCatalog(t *testing.T) {
	env := newTestEnv(t)
	user := env.volunteer("vol@example.org")

	resp := env.do(http.MethodGet, "/permissions", user, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	var catalog []models.PermissionInfo
	resp.decode(t, &catalog)
	assert.Equal(t, models.PermissionCatalog, catalog)
}

func TestRoleLifecycle(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	volunteer := env.volunteer("vol@example.org")

	resp := env.do(http.MethodPost, "/roles", volunteer, map[string]interface{}{"name": "Coordinator"})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = env.do(http.MethodPost, "/roles", admin, map[string]interface{}{"name": "Coordinator", "description": "Runs events"})
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.raw))
	var role models.Role
	resp.decode(t, &role)
	assert.Greater(t, role.ID, models.RoleVolunteerID)

	resp = env.do(http.MethodPost, "/roles", admin, map[string]interface{}{"name": "coordinator"})
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = env.do(http.MethodPut, fmt.Sprintf("/roles/%d", role.ID), admin, map[string]interface{}{"name": "Lead Coordinator"})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))
	resp.decode(t, &role)
	assert.Equal(t, "Lead Coordinator", role.Name)

	resp = env.do(http.MethodGet, "/roles", admin, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var roles []map[string]interface{}
	resp.decode(t, &roles)
	require.Len(t, roles, 3)
	assert.Equal(t, "Admin", roles[0]["name"])
	assert.Equal(t, true, roles[0]["protected"])

	resp = env.do(http.MethodGet, "/roles", volunteer, nil)
	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func TestProtectedRoles(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()

	for _, id := range []int{models.RoleAdminID, models.RoleVolunteerID} {
		resp := env.do(http.MethodDelete, fmt.Sprintf("/roles/%d", id), admin, nil)
		assert.Equal(t, http.StatusBadRequest, resp.Status, "delete role %d", id)

		resp = env.do(http.MethodPut, fmt.Sprintf("/roles/%d", id), admin, map[string]interface{}{"name": "Renamed"})
		assert.Equal(t, http.StatusBadRequest, resp.Status, "rename role %d", id)
	}

	// description edits keep the name
	resp := env.do(http.MethodPut, "/roles/1", admin, map[string]interface{}{"name": "Volunteer", "description": "Everyone"})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	var count int64
	require.NoError(t, env.db.Model(&models.Role{}).Where("id IN ?", []int{0, 1}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var admins models.Role
	require.NoError(t, env.db.Where("id = ?", models.RoleAdminID).First(&admins).Error)
	assert.Equal(t, "Admin", admins.Name)

	resp = env.do(http.MethodPut, "/roles/0/permissions", admin, map[string]interface{}{
		"permissions": []map[string]interface{}{{"key": models.PermUsersView, "has_access": false}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(http.MethodGet, "/roles/0/permissions", admin, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var grants rolePermissions
	resp.decode(t, &grants)
	for _, p := range models.PermissionCatalog {
		assert.True(t, grants.access(p.Key), p.Key)
	}
}

func TestRolePermissions(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()

	role := models.Role{Name: "Helper"}
	require.NoError(t, env.db.Create(&role).Error)
	path := fmt.Sprintf("/roles/%d/permissions", role.ID)

	resp := env.do(http.MethodPut, path, admin, map[string]interface{}{
		"permissions": []map[string]interface{}{{"key": "made.up", "has_access": true}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(http.MethodPut, path, admin, map[string]interface{}{
		"permissions": []map[string]interface{}{
			{"key": models.PermTasksAssign, "has_access": true},
			{"key": models.PermRolesView, "has_access": true},
		},
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	// second write flips one grant instead of duplicating it
	resp = env.do(http.MethodPut, path, admin, map[string]interface{}{
		"permissions": []map[string]interface{}{{"key": models.PermRolesView, "has_access": false}},
	})
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	resp = env.do(http.MethodGet, path, admin, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var grants rolePermissions
	resp.decode(t, &grants)
	assert.True(t, grants.access(models.PermTasksAssign))
	assert.False(t, grants.access(models.PermRolesView))
	assert.False(t, grants.access(models.PermUsersView))

	var rows int64
	require.NoError(t, env.db.Model(&models.RolePermission{}).Where("role_id = ?", role.ID).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)

	resp = env.do(http.MethodGet, "/roles/999/permissions", admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestDeleteRoleMovesUsersToVolunteer(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()

	role := models.Role{Name: "Temp"}
	require.NoError(t, env.db.Create(&role).Error)
	require.NoError(t, env.db.Create(&models.RolePermission{RoleID: role.ID, PermissionKey: models.PermUsersView, HasAccess: true}).Error)
	member := env.createUser("member@example.org", role.ID, true)

	resp := env.do(http.MethodDelete, fmt.Sprintf("/roles/%d", role.ID), admin, nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.raw))

	var reloaded models.User
	require.NoError(t, env.db.First(&reloaded, member.ID).Error)
	assert.Equal(t, models.RoleVolunteerID, reloaded.Role)

	var grants int64
	require.NoError(t, env.db.Model(&models.RolePermission{}).Where("role_id = ?", role.ID).Count(&grants).Error)
	assert.Zero(t, grants)

	resp = env.do(http.MethodDelete, fmt.Sprintf("/roles/%d", role.ID), admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}
