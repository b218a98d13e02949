package service

import (
	"context"
	"testing"
	"time"

	"guild-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMondayIndexed(t *testing.T) {
	assert.Equal(t, 0, mondayIndexed(time.Monday))
	assert.Equal(t, 2, mondayIndexed(time.Wednesday))
	assert.Equal(t, 5, mondayIndexed(time.Saturday))
	assert.Equal(t, 6, mondayIndexed(time.Sunday))
}

func TestHeatmapBuild(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(newTestDB(t))
	svc := NewHeatmapService(repos.snapshots, zerolog.Nop())

	// Two Wednesdays at 20:00 with counts 10 and 20: bucket averages to 15.
	samples := []domain.ActivitySnapshot{
		{SampleDate: "2026-03-11", DayOfWeek: 2, HourOfDay: 20, OnlineCount: 10,
			SampledAt: time.Date(2026, 3, 11, 20, 0, 0, 0, time.UTC)},
		{SampleDate: "2026-03-18", DayOfWeek: 2, HourOfDay: 20, OnlineCount: 20,
			SampledAt: time.Date(2026, 3, 18, 20, 0, 0, 0, time.UTC)},
		{SampleDate: "2026-03-18", DayOfWeek: 2, HourOfDay: 21, OnlineCount: 7,
			SampledAt: time.Date(2026, 3, 18, 21, 0, 0, 0, time.UTC)},
	}
	for i := range samples {
		require.NoError(t, repos.snapshots.Upsert(ctx, &samples[i]))
	}

	h, err := svc.Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, 15, h.Grid[2][20])
	assert.Equal(t, 7, h.Grid[2][21])
	assert.Equal(t, 0, h.Grid[0][0])
	assert.Equal(t, 20, h.PeakOnline)
	assert.Equal(t, 7, h.CurrentOnline, "most recent sample wins")
	assert.Equal(t, 3, h.Samples)
}

func TestHeatmapBuildEmpty(t *testing.T) {
	ctx := context.Background()
	repos := newTestRepos(newTestDB(t))
	svc := NewHeatmapService(repos.snapshots, zerolog.Nop())

	h, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Samples)
	assert.Equal(t, 0, h.PeakOnline)
	assert.Equal(t, 0, h.CurrentOnline)
}
