package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

func newTestRepository() (*Repository, *mockStore, *mockRequester) {
	store := newMockStore()
	req := &mockRequester{}
	repo := NewRepository(store, req, zap.NewNop())
	repo.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return repo, store, req
}

func youtubeDraft() domain.ScheduleDraft {
	return domain.ScheduleDraft{
		Website:   "youtube.com",
		StartDate: "2024-03-10",
		StartTime: "09:00",
		EndDate:   "2024-03-10",
		EndTime:   "17:00",
		Repeat:    domain.RepeatNone,
	}
}

// TestRepository_AddThenList verifies the round trip of a created schedule
func TestRepository_AddThenList(t *testing.T) {
	repo, _, req := newTestRepository()
	ctx := context.Background()

	created, err := repo.Add(ctx, youtubeDraft())
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), created.ID)
	assert.Equal(t, 1, req.calls)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, *created, list[0])
	assert.Equal(t, youtubeDraft(), list[0].Draft())
}

func TestRepository_AddAssignsUniqueIncreasingIDs(t *testing.T) {
	repo, _, _ := newTestRepository()
	ctx := context.Background()

	first, err := repo.Add(ctx, youtubeDraft())
	require.NoError(t, err)

	d := youtubeDraft()
	d.Website = "reddit.com"
	second, err := repo.Add(ctx, d)
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
}

// TestRepository_AddDuplicate is the overlapping-schedules scenario
func TestRepository_AddDuplicate(t *testing.T) {
	repo, store, req := newTestRepository()
	ctx := context.Background()

	_, err := repo.Add(ctx, youtubeDraft())
	require.NoError(t, err)

	d := youtubeDraft()
	d.Website = "https://www.youtube.com/feed"
	d.EndDate = "2024-03-12"
	_, err = repo.Add(ctx, d)

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "already has a schedule")
	assert.Equal(t, 1, store.setCalls, "no write on validation failure")
	assert.Equal(t, 1, req.calls)

	list, _ := repo.List(ctx)
	assert.Len(t, list, 1)
}

// TestRepository_AddZeroLengthWindow rejects start == end for timed schedules
func TestRepository_AddZeroLengthWindow(t *testing.T) {
	repo, store, _ := newTestRepository()

	d := youtubeDraft()
	d.EndTime = d.StartTime
	_, err := repo.Add(context.Background(), d)

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, "end must be after start", err.Error())
	assert.Zero(t, store.setCalls)
}

func TestRepository_Update(t *testing.T) {
	repo, _, req := newTestRepository()
	ctx := context.Background()

	a, err := repo.Add(ctx, youtubeDraft())
	require.NoError(t, err)
	d := youtubeDraft()
	d.Website = "reddit.com"
	b, err := repo.Add(ctx, d)
	require.NoError(t, err)

	edit := youtubeDraft()
	edit.EndTime = "18:00"
	edit.Repeat = domain.RepeatWeekly
	updated, err := repo.Update(ctx, a.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, a.ID, updated.ID)
	assert.Equal(t, 3, req.calls)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, edit, list[0].Draft())
	assert.Equal(t, *b, list[1], "other schedules unchanged")
}

func TestRepository_UpdateDuplicateOfAnother(t *testing.T) {
	repo, _, _ := newTestRepository()
	ctx := context.Background()

	a, _ := repo.Add(ctx, youtubeDraft())
	d := youtubeDraft()
	d.Website = "reddit.com"
	_, err := repo.Add(ctx, d)
	require.NoError(t, err)

	_, err = repo.Update(ctx, a.ID, d)
	assert.True(t, domain.IsValidation(err))
}

func TestRepository_NotFound(t *testing.T) {
	repo, _, _ := newTestRepository()
	ctx := context.Background()

	_, err := repo.Update(ctx, 42, youtubeDraft())
	assert.True(t, domain.IsNotFound(err))

	err = repo.Remove(ctx, 42)
	assert.True(t, domain.IsNotFound(err))

	_, err = repo.Get(ctx, 42)
	assert.True(t, domain.IsNotFound(err))
}

func TestRepository_Remove(t *testing.T) {
	repo, _, _ := newTestRepository()
	ctx := context.Background()

	a, _ := repo.Add(ctx, youtubeDraft())
	require.NoError(t, repo.Remove(ctx, a.ID))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepository_PersistenceError(t *testing.T) {
	repo, store, req := newTestRepository()
	store.setErr = errBoom

	_, err := repo.Add(context.Background(), youtubeDraft())

	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "write", perr.Op)
	assert.Zero(t, req.calls, "no resync request when nothing was persisted")
}

func TestRepository_ResyncRequestFailureIsNotReturned(t *testing.T) {
	repo, _, req := newTestRepository()
	req.err = domain.ErrDaemonNotRunning

	_, err := repo.Add(context.Background(), youtubeDraft())
	assert.NoError(t, err)
}

// TestRepository_DropsMalformedEntries verifies defensive loading
func TestRepository_DropsMalformedEntries(t *testing.T) {
	repo, store, _ := newTestRepository()
	store.put(domain.KeySchedules, `[
		{"id":1,"website":"youtube.com","allDay":false,"startDate":"2024-03-10","startTime":"09:00","endDate":"2024-03-10","endTime":"10:00","repeat":"none"},
		"garbage",
		{"id":2,"website":"reddit.com","allDay":true,"startDate":"2024-03-10","startTime":"00:00","endDate":"2024-03-10","endTime":"23:59","repeat":"none","extra":true},
		{"id":3,"website":"x.com","allDay":false,"startDate":"2024-3-10","startTime":"09:00","endDate":"2024-03-10","endTime":"10:00","repeat":"none"},
		{"id":4,"website":"vimeo.com","allDay":true,"startDate":"2024-03-10","startTime":"00:00","endDate":"2024-03-10","endTime":"23:59","repeat":"weekly","repeatEndDate":"2024-06-01"}
	]`)

	list, err := repo.List(context.Background())

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, domain.ScheduleVersion, list[0].Version)
	assert.Equal(t, int64(4), list[1].ID)
	assert.Equal(t, "2024-06-01", list[1].RepeatEndDate)
}

func TestRepository_NotAList(t *testing.T) {
	repo, store, _ := newTestRepository()
	store.put(domain.KeySchedules, `{"id":1}`)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepository_Prune(t *testing.T) {
	repo, store, req := newTestRepository()
	ctx := context.Background()

	a, _ := repo.Add(ctx, youtubeDraft())
	writes := store.setCalls

	removed, err := repo.Prune(ctx, func(s domain.Schedule) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, writes, store.setCalls, "no write when nothing pruned")

	removed, err = repo.Prune(ctx, func(s domain.Schedule) bool { return s.ID == a.ID })
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, 1, req.calls, "prune never requests a resync")
}

func TestRepository_OnChange(t *testing.T) {
	repo, store, _ := newTestRepository()
	ctx := context.Background()

	var got [][]domain.Schedule
	repo.OnChange(func(s []domain.Schedule) { got = append(got, s) })

	_, err := repo.Add(ctx, youtubeDraft())
	require.NoError(t, err)

	// Writes to other keys don't fire
	require.NoError(t, store.Set(ctx, map[string]json.RawMessage{domain.KeyBlockedWebsites: json.RawMessage(`[]`)}))

	require.Len(t, got, 1)
	require.Len(t, got[0], 1)
	assert.Equal(t, "youtube.com", got[0][0].Website)
}

func TestRepository_LegacyWebsites(t *testing.T) {
	repo, store, _ := newTestRepository()
	ctx := context.Background()

	websites, err := repo.LegacyWebsites(ctx)
	require.NoError(t, err)
	assert.Nil(t, websites)

	store.put(domain.KeyBlockedWebsites, `["youtube.com","reddit.com"]`)
	websites, err = repo.LegacyWebsites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"youtube.com", "reddit.com"}, websites)
}
