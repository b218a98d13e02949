package service

import (
	"context"
	"math"
	"time"

	"guild-tracker/internal/repository"

	"github.com/rs/zerolog"
)

// Heatmap is the dashboard's 7x24 connectivity grid: average online count
// per (weekday, hour) bucket, Monday first.
type Heatmap struct {
	Grid          [7][24]int `json:"grid"`
	PeakOnline    int        `json:"peak_online"`
	CurrentOnline int        `json:"current_online"`
	Samples       int        `json:"samples"`
}

type HeatmapService struct {
	snapshots *repository.SnapshotRepository
	logger    zerolog.Logger
}

func NewHeatmapService(snapshots *repository.SnapshotRepository, logger zerolog.Logger) *HeatmapService {
	return &HeatmapService{snapshots: snapshots, logger: logger}
}

// Build averages all stored samples per bucket. CurrentOnline is the most
// recent sample's count.
func (s *HeatmapService) Build(ctx context.Context) (*Heatmap, error) {
	snaps, err := s.snapshots.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var sums, counts [7][24]int
	h := &Heatmap{}
	var latest time.Time

	for _, snap := range snaps {
		if snap.DayOfWeek < 0 || snap.DayOfWeek > 6 || snap.HourOfDay < 0 || snap.HourOfDay > 23 {
			continue
		}
		sums[snap.DayOfWeek][snap.HourOfDay] += snap.OnlineCount
		counts[snap.DayOfWeek][snap.HourOfDay]++
		h.Samples++

		if snap.OnlineCount > h.PeakOnline {
			h.PeakOnline = snap.OnlineCount
		}
		if snap.SampledAt.After(latest) {
			latest = snap.SampledAt
			h.CurrentOnline = snap.OnlineCount
		}
	}

	for d := 0; d < 7; d++ {
		for hr := 0; hr < 24; hr++ {
			if counts[d][hr] > 0 {
				h.Grid[d][hr] = int(math.Round(float64(sums[d][hr]) / float64(counts[d][hr])))
			}
		}
	}
	return h, nil
}

// mondayIndexed maps time.Weekday (Sunday=0) onto the grid's Monday=0 rows.
func mondayIndexed(w time.Weekday) int {
	return (int(w) + 6) % 7
}
