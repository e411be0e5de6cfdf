package rosterwatch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wavecheck/wavecheck/internal/models"
)

// CompanyStats is the per-company completion counter pair shown on the
// overview cards.
type CompanyStats struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checkedIn"`
}

// WaveStats groups the drivers sharing one scheduled start time.
type WaveStats struct {
	StartTime string                `json:"startTime"`
	Total     int                   `json:"total"`
	CheckedIn int                   `json:"checkedIn"`
	Drivers   []models.DriverRecord `json:"drivers"`
}

// Stats is derived wholesale from one roster snapshot. It is never patched
// in place: consumers always see counters that agree with each other and
// with the snapshot they came from.
type Stats struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checkedIn"`
	Rescue    int `json:"rescue"`
	Remaining int `json:"remaining"`
	// Progress is the checked-in percentage, 0 on an empty roster.
	Progress int `json:"progress"`

	CompanyData map[string]CompanyStats `json:"companyData"`
	Waves       []WaveStats             `json:"waves"`
}

// waveKey orders start times numerically, hour before minute, so "9:00"
// comes before "10:00". Unparseable times sort last, between themselves by
// string, so they stay visible rather than disappearing.
func waveKey(startTime string) (hour, minute int, ok bool) {
	h, m, found := strings.Cut(startTime, ":")
	if !found {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return 0, 0, false
	}
	return hour, minute, true
}

func lessWave(a, b string) bool {
	ah, am, aok := waveKey(a)
	bh, bm, bok := waveKey(b)
	switch {
	case aok && !bok:
		return true
	case !aok && bok:
		return false
	case !aok && !bok:
		return a < b
	}
	if ah != bh {
		return ah < bh
	}
	if am != bm {
		return am < bm
	}
	return a < b
}

// Aggregate computes the derived statistics for one roster snapshot in a
// single pass. Pure: it reads nothing but its argument and keeps no state
// between calls.
func Aggregate(drivers []models.DriverRecord) *Stats {
	st := &Stats{
		Total:       len(drivers),
		CompanyData: make(map[string]CompanyStats),
	}
	waves := make(map[string]*WaveStats)

	for _, d := range drivers {
		checkedIn := models.IsCheckedIn(d.Status)
		if checkedIn {
			st.CheckedIn++
		}
		if d.Status == models.StatusOnRescue {
			st.Rescue++
		}

		c := st.CompanyData[d.CompanyName]
		c.Total++
		if checkedIn {
			c.CheckedIn++
		}
		st.CompanyData[d.CompanyName] = c

		w, ok := waves[d.StartTime]
		if !ok {
			w = &WaveStats{StartTime: d.StartTime}
			waves[d.StartTime] = w
		}
		w.Total++
		if checkedIn {
			w.CheckedIn++
		}
		w.Drivers = append(w.Drivers, d)
	}

	st.Remaining = st.Total - st.CheckedIn - st.Rescue
	if st.Total > 0 {
		st.Progress = st.CheckedIn * 100 / st.Total
	}

	st.Waves = make([]WaveStats, 0, len(waves))
	for _, w := range waves {
		st.Waves = append(st.Waves, *w)
	}
	sort.Slice(st.Waves, func(i, j int) bool {
		return lessWave(st.Waves[i].StartTime, st.Waves[j].StartTime)
	})
	return st
}

// Wave returns the bucket for a start time, or nil when the time is absent
// from the current snapshot.
func (s *Stats) Wave(startTime string) *WaveStats {
	for i := range s.Waves {
		if s.Waves[i].StartTime == startTime {
			return &s.Waves[i]
		}
	}
	return nil
}

// MissingInWave lists the drivers of one wave that have not checked in.
func (s *Stats) MissingInWave(startTime string) []models.DriverRecord {
	w := s.Wave(startTime)
	if w == nil {
		return nil
	}
	var out []models.DriverRecord
	for _, d := range w.Drivers {
		if !models.IsCheckedIn(d.Status) {
			out = append(out, d)
		}
	}
	return out
}

// MissingByCompany lists the not-checked-in drivers of one company across
// all waves.
func (s *Stats) MissingByCompany(company string) []models.DriverRecord {
	var out []models.DriverRecord
	for _, w := range s.Waves {
		for _, d := range w.Drivers {
			if d.CompanyName == company && !models.IsCheckedIn(d.Status) {
				out = append(out, d)
			}
		}
	}
	return out
}

// MissingReport builds the copy-paste escalation text: first the drivers
// who never showed up, then the ones who arrived without a badge. Returns
// "" when everyone is accounted for.
func MissingReport(drivers []models.DriverRecord) string {
	var noShow, noBadge []models.DriverRecord
	for _, d := range drivers {
		switch d.Status {
		case models.StatusCheckedIn:
		case models.StatusCheckedInNoBadge:
			noBadge = append(noBadge, d)
		default:
			noShow = append(noShow, d)
		}
	}
	if len(noShow) == 0 && len(noBadge) == 0 {
		return ""
	}

	var b strings.Builder
	writeSection := func(title string, list []models.DriverRecord) {
		b.WriteString(title)
		b.WriteString("\n")
		for i, d := range list {
			badge := d.BadgeID
			if badge == "" {
				badge = models.BadgeUnknown
			}
			fmt.Fprintf(&b, "%d. Name: %s, Badge: %s, Company: %s\n", i+1, d.Name, badge, d.CompanyName)
		}
	}
	if len(noShow) > 0 {
		writeSection("Drivers who have not shown up:", noShow)
		if len(noBadge) > 0 {
			b.WriteString("\n")
		}
	}
	if len(noBadge) > 0 {
		writeSection("Drivers with no badge:", noBadge)
	}
	return b.String()
}
