package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDifficultyName(t *testing.T) {
	assert.Equal(t, "Mythic", DifficultyName(5))
	assert.Equal(t, "Heroic", DifficultyName(4))
	assert.Equal(t, "Normal", DifficultyName(3))
	assert.Equal(t, "LFR", DifficultyName(1))
	assert.Equal(t, "Unknown (2)", DifficultyName(2))
}

func TestReportTime(t *testing.T) {
	got := ReportTime(1.7e12)
	want := time.UnixMilli(1_700_000_000_000).UTC()
	assert.True(t, got.Equal(want))
	assert.Equal(t, time.UTC, got.Location())
}
