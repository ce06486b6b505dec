package appointments

import (
	"math"
	"sort"
)

const (
	peakHourLimit      = 3
	busyDayLimit       = 5
	recentActivitySize = 5
)

// Dashboard is the aggregate view served to the admin dashboard.
type Dashboard struct {
	TotalAppointments  int                `json:"totalAppointments"`
	StatusCounts       map[Status]int     `json:"statusCounts"`
	ModeCounts         map[Mode]int       `json:"modeCounts"`
	DoctorCounts       map[string]int     `json:"doctorCounts"`
	RecentActivity     []ActivityEntry    `json:"recentActivity"`
	SchedulingPatterns SchedulingPatterns `json:"schedulingPatterns"`
}

// ActivityEntry is one row of the recent-activity feed.
type ActivityEntry struct {
	ID          string `json:"id"`
	PatientName string `json:"patientName"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	DoctorName  string `json:"doctorName"`
	Status      Status `json:"status"`
	Action      string `json:"action"`
}

type SchedulingPatterns struct {
	AverageDuration    float64  `json:"averageDuration"`
	MostCommonDuration int      `json:"mostCommonDuration"`
	PeakHours          []int    `json:"peakHours"`
	BusyDays           []string `json:"busyDays"`
}

// ComputeDashboard aggregates records. An empty input yields zero counts for
// every status and mode and empty lists, never nil maps or slices.
//
// Ranking ties (modal duration, peak hours, busy days) go to whichever value
// was seen first in record order.
func ComputeDashboard(records []Appointment) Dashboard {
	d := Dashboard{
		TotalAppointments: len(records),
		StatusCounts:      make(map[Status]int, len(Statuses)),
		ModeCounts:        make(map[Mode]int, len(Modes)),
		DoctorCounts:      make(map[string]int),
		RecentActivity:    []ActivityEntry{},
		SchedulingPatterns: SchedulingPatterns{
			PeakHours: []int{},
			BusyDays:  []string{},
		},
	}
	for _, st := range Statuses {
		d.StatusCounts[st] = 0
	}
	for _, m := range Modes {
		d.ModeCounts[m] = 0
	}
	if len(records) == 0 {
		return d
	}

	durations := newTally[int]()
	hours := newTally[int]()
	days := newTally[string]()
	total := 0

	for _, r := range records {
		if r.Status.IsValid() {
			d.StatusCounts[r.Status]++
		}
		if r.Mode.IsValid() {
			d.ModeCounts[r.Mode]++
		}
		d.DoctorCounts[r.DoctorName]++

		total += r.Duration
		durations.add(r.Duration)

		if start, err := minutesSinceMidnight(r.Time); err == nil {
			hours.add(start / 60)
		}
		if r.Date != "" {
			days.add(r.Date)
		}
	}

	d.SchedulingPatterns.AverageDuration = math.Round(float64(total)/float64(len(records))*10) / 10
	if top := durations.top(1); len(top) > 0 {
		d.SchedulingPatterns.MostCommonDuration = top[0]
	}
	d.SchedulingPatterns.PeakHours = hours.top(peakHourLimit)
	d.SchedulingPatterns.BusyDays = days.top(busyDayLimit)
	d.RecentActivity = recentActivity(records, recentActivitySize)
	return d
}

// recentActivity returns the n latest records by (date, time), newest first.
// Records at the same moment keep their stored order.
func recentActivity(records []Appointment, n int) []ActivityEntry {
	sorted := cloneAll(records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date > sorted[j].Date
		}
		return sorted[i].Time > sorted[j].Time
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	out := make([]ActivityEntry, 0, len(sorted))
	for _, r := range sorted {
		out = append(out, ActivityEntry{
			ID:          r.ID,
			PatientName: r.PatientName,
			Date:        r.Date,
			Time:        r.Time,
			DoctorName:  r.DoctorName,
			Status:      r.Status,
			Action:      "scheduled",
		})
	}
	return out
}

// tally counts values and remembers first-seen order for tie-breaking.
type tally[K comparable] struct {
	order  []K
	counts map[K]int
}

func newTally[K comparable]() *tally[K] {
	return &tally[K]{counts: make(map[K]int)}
}

func (t *tally[K]) add(k K) {
	if _, ok := t.counts[k]; !ok {
		t.order = append(t.order, k)
	}
	t.counts[k]++
}

// top returns up to n values by descending count, ties in first-seen order.
func (t *tally[K]) top(n int) []K {
	ranked := make([]K, len(t.order))
	copy(ranked, t.order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return t.counts[ranked[i]] > t.counts[ranked[j]]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
