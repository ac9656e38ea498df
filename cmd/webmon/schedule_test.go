package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

func TestParseID(t *testing.T) {
	id, err := parseID("1700000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), id)

	for _, bad := range []string{"", "abc", "0", "-4"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestDraftFlags_ApplyOnlyChanged(t *testing.T) {
	var f draftFlags
	cmd := &cobra.Command{Use: "edit"}
	f.register(cmd, true)
	require.NoError(t, cmd.ParseFlags([]string{"--end", "18:00", "--repeat", "daily"}))

	draft := domain.ScheduleDraft{
		Website:   "youtube.com",
		StartDate: "2024-03-10",
		StartTime: "09:00",
		EndDate:   "2024-03-10",
		EndTime:   "17:00",
		Repeat:    domain.RepeatNone,
	}
	f.apply(cmd, &draft)

	assert.Equal(t, "youtube.com", draft.Website)
	assert.Equal(t, "09:00", draft.StartTime)
	assert.Equal(t, "18:00", draft.EndTime)
	assert.Equal(t, domain.RepeatDaily, draft.Repeat)
}

func TestScheduleCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range scheduleCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"add", "list", "edit", "remove", "watch"} {
		assert.True(t, names[want], want)
	}
}
