package routes

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	controller "volunteerconnect/controllers"
	"volunteerconnect/models"
)

func joinPath(id uint) string  { return fmt.Sprintf("/activities/%d/join", id) }
func leavePath(id uint) string { return fmt.Sprintf("/activities/%d/leave", id) }

func participantCount(t *testing.T, env *testEnv, activityID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.db.Model(&models.ActivityParticipant{}).Where("activity_id = ?", activityID).Count(&count).Error)
	return count
}

func TestJoinAndLeave(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	volunteer := env.volunteer("vol@example.org")

	activity := env.createActivity(admin, map[string]interface{}{"title": "Beach cleanup", "start_date": day(2)})

	resp := env.do(http.MethodPost, joinPath(activity.ID), volunteer, nil)
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.raw))
	var participant models.ActivityParticipant
	resp.decode(t, &participant)
	assert.Equal(t, volunteer.ID, participant.UserID)
	assert.Equal(t, models.ParticipantJoined, participant.Status)

	resp = env.do(http.MethodPost, joinPath(activity.ID), volunteer, nil)
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, int64(1), participantCount(t, env, activity.ID))

	resp = env.do(http.MethodGet, "/activities/joined", volunteer, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var joined []models.Activity
	resp.decode(t, &joined)
	require.Len(t, joined, 1)
	assert.True(t, joined[0].IsJoined)
	assert.Equal(t, int64(1), joined[0].ParticipantCount)

	resp = env.do(http.MethodPost, leavePath(activity.ID), volunteer, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Zero(t, participantCount(t, env, activity.ID))

	resp = env.do(http.MethodPost, leavePath(activity.ID), volunteer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "You are not a participant of this activity", resp.Body.Message)
}

func TestJoinRejections(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	owner := env.volunteer("owner@example.org")
	alice := env.volunteer("alice@example.org")
	bob := env.volunteer("bob@example.org")

	private := env.createActivity(owner, map[string]interface{}{"title": "Private", "start_date": day(2)})
	full := env.createActivity(admin, map[string]interface{}{"title": "Small", "start_date": day(2), "max_participants": 1})
	ended := env.createActivity(admin, map[string]interface{}{"title": "Past", "start_date": day(-3), "end_date": day(-2)})
	removed := env.createActivity(admin, map[string]interface{}{"title": "Removed", "start_date": day(2)})
	require.Equal(t, http.StatusOK, env.do(http.MethodDelete, fmt.Sprintf("/activities/%d", removed.ID), admin, nil).Status)

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, joinPath(full.ID), alice, nil).Status)

	tests := []struct {
		name    string
		user    *models.User
		path    string
		status  int
		message string
	}{
		{"private activity", owner, joinPath(private.ID), http.StatusForbidden, "Only public activities can be joined"},
		{"full activity", bob, joinPath(full.ID), http.StatusBadRequest, "Activity is full"},
		{"completed activity", bob, joinPath(ended.ID), http.StatusBadRequest, "Activity has already ended"},
		{"deleted activity", bob, joinPath(removed.ID), http.StatusNotFound, "Activity not found"},
		{"missing activity", bob, joinPath(9999), http.StatusNotFound, "Activity not found"},
		{"bad id", bob, "/activities/abc/join", http.StatusBadRequest, "Invalid activity ID"},
		{"leave missing activity", bob, leavePath(9999), http.StatusNotFound, "Activity not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(http.MethodPost, tt.path, tt.user, nil)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.message, resp.Body.Message)
		})
	}

	assert.Equal(t, int64(1), participantCount(t, env, full.ID))
}

func TestLeaveCompletedActivity(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	volunteer := env.volunteer("vol@example.org")

	activity := env.createActivity(admin, map[string]interface{}{
		"title": "Finished", "start_date": day(-3), "end_date": day(-2), "participant_ids": []uint{volunteer.ID},
	})

	resp := env.do(http.MethodPost, leavePath(activity.ID), volunteer, nil)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestJoinActivityCapacityUnderConcurrency(t *testing.T) {
	env := newTestEnv(t)
	admin := env.admin()
	activity := env.createActivity(admin, map[string]interface{}{"title": "Tiny", "start_date": day(2), "max_participants": 2})

	users := make([]*models.User, 6)
	for i := range users {
		users[i] = env.volunteer(fmt.Sprintf("user%d@example.org", i))
	}

	now := time.Now()
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, userID uint) {
			defer wg.Done()
			_, errs[i] = controller.JoinActivity(env.db, activity.ID, userID, now)
		}(i, u.ID)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
			continue
		}
		// sqlite may report a busy database instead of serializing the writers
		if !errors.Is(err, controller.ErrActivityFull) {
			t.Logf("join failed: %v", err)
		}
	}
	assert.LessOrEqual(t, joined, 2)
	assert.LessOrEqual(t, participantCount(t, env, activity.ID), int64(2))
}
