package boothkit

import (
	"sort"

	"github.com/boothkit/boothkit/lead"
)

// Stats is the quick temperature breakdown shown on the capture screen.
type Stats struct {
	Total    int `json:"total"`
	Hot      int `json:"hot"`
	Warm     int `json:"warm"`
	Browsing int `json:"browsing"`
	Pending  int `json:"pending"`
}

// CountStat is one ranked entry in a detailed breakdown.
type CountStat struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// DetailedStats aggregates a show's leads for the stats screen.
type DetailedStats struct {
	Total        int         `json:"total"`
	Temperatures []CountStat `json:"temperatures"`
	Interests    []CountStat `json:"interests"`
	States       []CountStat `json:"states"`
	Capturers    []CountStat `json:"capturers"`
	WithEmail    int         `json:"withEmail"`
	WithPhone    int         `json:"withPhone"`
	WithVoice    int         `json:"withVoiceNote"`
}

// ComputeStats counts leads by temperature. Pending counts leads still
// carrying a temporary id.
func ComputeStats(leads []lead.Lead) Stats {
	s := Stats{Total: len(leads)}
	for _, l := range leads {
		switch l.Temperature {
		case lead.Hot:
			s.Hot++
		case lead.Warm:
			s.Warm++
		case lead.Browsing:
			s.Browsing++
		}
		if !l.Synced() {
			s.Pending++
		}
	}
	return s
}

// ComputeDetailedStats builds the full breakdown. Pure over its input;
// callers pass a snapshot, not live state.
func ComputeDetailedStats(leads []lead.Lead) DetailedStats {
	d := DetailedStats{Total: len(leads)}

	temps := map[string]int{}
	interests := map[string]int{}
	states := map[string]int{}
	capturers := map[string]int{}

	for _, l := range leads {
		temps[string(l.Temperature)]++
		for _, in := range l.Interests {
			interests[in]++
		}
		if l.State != "" {
			states[l.State]++
		}
		if l.CreatedBy != "" {
			capturers[l.CreatedBy]++
		}
		if l.Email != "" {
			d.WithEmail++
		}
		if l.Phone != "" {
			d.WithPhone++
		}
		if l.VoiceNote != "" {
			d.WithVoice++
		}
	}

	d.Temperatures = rankCounts(temps, len(leads))
	d.Interests = rankCounts(interests, len(leads))
	d.States = rankCounts(states, len(leads))
	d.Capturers = rankCounts(capturers, len(leads))
	return d
}

// rankCounts converts a counter map into CountStats sorted by descending
// count, ties broken alphabetically so output is stable.
func rankCounts(counts map[string]int, total int) []CountStat {
	out := make([]CountStat, 0, len(counts))
	for label, n := range counts {
		cs := CountStat{Label: label, Count: n}
		if total > 0 {
			cs.Percent = float64(n) * 100 / float64(total)
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
