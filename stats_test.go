package boothkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/boothkit/boothkit/lead"
)

func statsFixture() []lead.Lead {
	return []lead.Lead{
		{ID: "a", Temperature: lead.Hot, State: "TX", Interests: []string{"boots", "hats"}, Email: "a@x.com", CreatedBy: "Ana"},
		{ID: "b", Temperature: lead.Hot, State: "TX", Interests: []string{"boots"}, Phone: "555", CreatedBy: "Ana"},
		{ID: "c", Temperature: lead.Warm, State: "OK", CreatedBy: "Ben", VoiceNote: "note.m4a"},
		{ID: lead.NewTempID(), Temperature: lead.Browsing, CreatedBy: "Ben"},
	}
}

func TestComputeStats(t *testing.T) {
	s := ComputeStats(statsFixture())

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Hot)
	assert.Equal(t, 1, s.Warm)
	assert.Equal(t, 1, s.Browsing)
	assert.Equal(t, 1, s.Pending, "temp-id leads count as pending")
}

func TestComputeStatsEmpty(t *testing.T) {
	assert.Equal(t, Stats{}, ComputeStats(nil))
}

func TestComputeDetailedStats(t *testing.T) {
	leads := statsFixture()
	d := ComputeDetailedStats(leads)

	assert.Equal(t, 4, d.Total)
	assert.Equal(t, 1, d.WithEmail)
	assert.Equal(t, 1, d.WithPhone)
	assert.Equal(t, 1, d.WithVoice)

	// Ranked by count descending, ties alphabetical.
	assert.Equal(t, CountStat{Label: "hot", Count: 2, Percent: 50}, d.Temperatures[0])
	assert.Equal(t, "boots", d.Interests[0].Label)
	assert.Equal(t, 2, d.Interests[0].Count)
	assert.Equal(t, "TX", d.States[0].Label)

	assert.Len(t, d.Capturers, 2)
	assert.Equal(t, "Ana", d.Capturers[0].Label)
}

func TestComputeDetailedStatsIsPure(t *testing.T) {
	leads := statsFixture()
	before := make([]lead.Lead, len(leads))
	copy(before, leads)

	_ = ComputeDetailedStats(leads)
	_ = ComputeStats(leads)

	assert.Equal(t, before, leads, "stats must not mutate their input")
}

func TestSortLeadsNewestFirst(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	leads := []lead.Lead{
		{ID: "old", CreatedAt: t0},
		{ID: "new", CreatedAt: t0.Add(time.Hour)},
		{ID: "tie-b", CreatedAt: t0.Add(time.Minute)},
		{ID: "tie-a", CreatedAt: t0.Add(time.Minute)},
	}
	sortLeads(leads)

	assert.Equal(t, "new", leads[0].ID)
	assert.Equal(t, "tie-a", leads[1].ID)
	assert.Equal(t, "tie-b", leads[2].ID)
	assert.Equal(t, "old", leads[3].ID)
}
