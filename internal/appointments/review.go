package appointments

import (
	"context"
	"fmt"
	"math"
	"sort"
)

const (
	// MaxRangeDays caps start_date..end_date queries at one year.
	MaxRangeDays = 365

	// DefaultMaxPerSlot is the recommended number of appointments that may
	// share one doctor's start time.
	DefaultMaxPerSlot = 3
)

// EmptyState carries the copy the UI shows when a query returns nothing.
type EmptyState struct {
	NoAppointments          string   `json:"no_appointments"`
	NoAppointmentsToday     string   `json:"no_appointments_today"`
	NoUpcomingAppointments  string   `json:"no_upcoming_appointments"`
	NoPastAppointments      string   `json:"no_past_appointments"`
	NoAppointmentsForDoctor string   `json:"no_appointments_for_doctor"`
	Suggestions             []string `json:"suggestions"`
}

// DefaultEmptyState returns the standard empty-state copy.
func DefaultEmptyState() EmptyState {
	return EmptyState{
		NoAppointments:          "No appointments found for the selected criteria.",
		NoAppointmentsToday:     "No appointments scheduled for today.",
		NoUpcomingAppointments:  "No upcoming appointments found.",
		NoPastAppointments:      "No past appointments found.",
		NoAppointmentsForDoctor: "No appointments found for the selected doctor.",
		Suggestions: []string{
			"Try adjusting your date range",
			"Check if appointments exist for other doctors",
			`Create a new appointment using the "New Appointment" button`,
			"Clear any active filters to see all appointments",
		},
	}
}

// OverlapReport is the admin listing with overlap clusters attached.
type OverlapReport struct {
	Appointments []Appointment            `json:"appointments"`
	Overlaps     map[string][]Appointment `json:"overlaps"`
	EmptyState   EmptyState               `json:"empty_state"`
	Metadata     OverlapMetadata          `json:"metadata"`
}

type OverlapMetadata struct {
	TotalCount     int     `json:"total_count"`
	HasOverlaps    bool    `json:"has_overlaps"`
	OverlapCount   int     `json:"overlap_count"`
	UniqueDates    int     `json:"unique_dates"`
	UniqueDoctors  int     `json:"unique_doctors"`
	AppliedFilters Filters `json:"applied_filters"`
}

// ValidateDateRange checks an inclusive start..end date range.
func ValidateDateRange(start, end string) error {
	from, err := parseDate(start)
	if err != nil {
		return invalidArgument("Invalid date format: %s. Expected YYYY-MM-DD", start)
	}
	to, err := parseDate(end)
	if err != nil {
		return invalidArgument("Invalid date format: %s. Expected YYYY-MM-DD", end)
	}
	if from.After(to) {
		return invalidArgument("Start date cannot be after end date")
	}
	if int(to.Sub(from).Hours()/24) > MaxRangeDays {
		return invalidArgument("Date range cannot exceed %d days", MaxRangeDays)
	}
	return nil
}

// ListWithOverlaps lists records like List, additionally accepting
// start_date and end_date bounds, and attaches the overlap clusters found
// among the listed records. A range with both bounds is validated before any
// record is read.
func (s *Store) ListWithOverlaps(ctx context.Context, filters Filters) (report OverlapReport, err error) {
	_, span := s.tracer.Start(ctx, "appointments.list_with_overlaps")
	defer span.End()
	defer s.finish(span, "list_with_overlaps", s.now(), &err)

	if err := checkFilters(filters, FilterDate, FilterStatus, FilterDoctorName, FilterStartDate, FilterEndDate); err != nil {
		return OverlapReport{}, err
	}
	from, to := filters.get(FilterStartDate), filters.get(FilterEndDate)
	if from != "" && to != "" {
		if err := ValidateDateRange(from, to); err != nil {
			return OverlapReport{}, err
		}
	}

	s.mu.RLock()
	listed := filterRecords(s.records, filters)
	s.mu.RUnlock()

	overlaps := FindOverlapClusters(listed, filters.get(FilterDate), s.clusterMode)
	return OverlapReport{
		Appointments: listed,
		Overlaps:     overlaps,
		EmptyState:   DefaultEmptyState(),
		Metadata: OverlapMetadata{
			TotalCount:     len(listed),
			HasOverlaps:    len(overlaps) > 0,
			OverlapCount:   len(overlaps),
			UniqueDates:    countDistinct(listed, func(a Appointment) string { return a.Date }),
			UniqueDoctors:  countDistinct(listed, func(a Appointment) string { return a.DoctorName }),
			AppliedFilters: filters.clone(),
		},
	}, nil
}

// ConflictSummary is the administrative conflict review for a date (or all
// dates when none is given).
type ConflictSummary struct {
	TotalConflicts       int              `json:"total_conflicts"`
	AffectedAppointments int              `json:"affected_appointments"`
	DoctorsWithConflicts []string         `json:"doctors_with_conflicts"`
	DatesWithConflicts   []string         `json:"dates_with_conflicts"`
	ConflictDetails      []ConflictDetail `json:"conflict_details"`
	Recommendations      []string         `json:"recommendations"`
	SlotOccupancy        SlotOccupancy    `json:"slot_occupancy"`
}

type ConflictDetail struct {
	ConflictID       string           `json:"conflict_id"`
	AppointmentCount int              `json:"appointment_count"`
	Doctor           string           `json:"doctor"`
	Date             string           `json:"date"`
	TimeRange        string           `json:"time_range"`
	Appointments     []ConflictMember `json:"appointments"`
}

type ConflictMember struct {
	ID       string `json:"id"`
	Patient  string `json:"patient"`
	Time     string `json:"time"`
	Duration int    `json:"duration"`
	Status   Status `json:"status"`
}

// ConflictSummary reviews the overlap clusters among records on date.
func (s *Store) ConflictSummary(ctx context.Context, date string) (summary ConflictSummary, err error) {
	_, span := s.tracer.Start(ctx, "appointments.conflict_summary")
	defer span.End()
	defer s.finish(span, "conflict_summary", s.now(), &err)

	filters := Filters{}
	if date != "" {
		filters[FilterDate] = date
	}
	if err := checkFilters(filters, FilterDate); err != nil {
		return ConflictSummary{}, err
	}

	s.mu.RLock()
	listed := filterRecords(s.records, filters)
	s.mu.RUnlock()

	clusters := FindOverlapClusters(listed, date, s.clusterMode)
	summary = ConflictSummary{
		TotalConflicts:       len(clusters),
		DoctorsWithConflicts: []string{},
		DatesWithConflicts:   []string{},
		ConflictDetails:      []ConflictDetail{},
		SlotOccupancy:        AnalyzeSlotOccupancy(listed, s.maxPerSlot),
	}

	doctors := map[string]struct{}{}
	dates := map[string]struct{}{}
	for _, key := range ClusterKeys(clusters) {
		members := clusters[key]
		summary.AffectedAppointments += len(members)

		detail := ConflictDetail{
			ConflictID:       key,
			AppointmentCount: len(members),
			Doctor:           members[0].DoctorName,
			Date:             members[0].Date,
			Appointments:     make([]ConflictMember, 0, len(members)),
		}
		earliest, latest := members[0].Time, members[0].Time
		for _, m := range members {
			doctors[m.DoctorName] = struct{}{}
			dates[m.Date] = struct{}{}
			earliest = min(earliest, m.Time)
			latest = max(latest, m.Time)
			detail.Appointments = append(detail.Appointments, ConflictMember{
				ID:       m.ID,
				Patient:  m.PatientName,
				Time:     m.Time,
				Duration: m.Duration,
				Status:   m.Status,
			})
		}
		detail.TimeRange = earliest + " - " + latest
		summary.ConflictDetails = append(summary.ConflictDetails, detail)
	}
	summary.DoctorsWithConflicts = sortedKeys(doctors)
	summary.DatesWithConflicts = sortedKeys(dates)
	summary.Recommendations = conflictRecommendations(summary.TotalConflicts, len(summary.DoctorsWithConflicts))
	return summary, nil
}

func conflictRecommendations(conflicts, doctors int) []string {
	if conflicts == 0 {
		return []string{
			"No scheduling conflicts detected",
			"Current appointment schedule is optimally organized",
			"Continue monitoring for future conflicts",
		}
	}
	return []string{
		fmt.Sprintf("Review %d scheduling conflicts", conflicts),
		fmt.Sprintf("Contact %d doctor(s) to resolve overlaps", doctors),
		"Consider rescheduling conflicting appointments",
		"Implement appointment buffer times to prevent future conflicts",
		"Review scheduling policies for same-doctor appointments",
	}
}

// SlotOccupancy groups records that share a doctor, date and start time.
type SlotOccupancy struct {
	OrganizedSlots  map[string][]Appointment `json:"organized_slots"`
	OverbookedSlots map[string][]Appointment `json:"overbooked_slots"`
	Warnings        []SlotWarning            `json:"warnings"`
	Statistics      SlotStatistics           `json:"statistics"`
}

type SlotWarning struct {
	Type             string   `json:"type"`
	Message          string   `json:"message"`
	SlotKey          string   `json:"slot_key"`
	AppointmentCount int      `json:"appointment_count"`
	Appointments     []string `json:"appointments"`
}

type SlotStatistics struct {
	TotalSlots                 int     `json:"total_slots"`
	OverbookedCount            int     `json:"overbooked_count"`
	MaxAppointmentsInSlot      int     `json:"max_appointments_in_slot"`
	AverageAppointmentsPerSlot float64 `json:"average_appointments_per_slot"`
}

// AnalyzeSlotOccupancy flags slots holding more than maxPerSlot records.
// Warnings follow first-seen slot order.
func AnalyzeSlotOccupancy(records []Appointment, maxPerSlot int) SlotOccupancy {
	if maxPerSlot <= 0 {
		maxPerSlot = DefaultMaxPerSlot
	}

	var order []string
	groups := make(map[string][]Appointment)
	for _, r := range records {
		key := fmt.Sprintf("%s_%s_%s", r.Date, r.DoctorName, r.Time)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := SlotOccupancy{
		OrganizedSlots:  make(map[string][]Appointment),
		OverbookedSlots: make(map[string][]Appointment),
		Warnings:        []SlotWarning{},
		Statistics:      SlotStatistics{TotalSlots: len(groups)},
	}
	for _, key := range order {
		members := groups[key]
		n := len(members)
		out.Statistics.MaxAppointmentsInSlot = max(out.Statistics.MaxAppointmentsInSlot, n)
		if n <= maxPerSlot {
			out.OrganizedSlots[key] = members
			continue
		}

		out.OverbookedSlots[key] = members
		out.Statistics.OverbookedCount++
		ids := make([]string, 0, n)
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		first := members[0]
		out.Warnings = append(out.Warnings, SlotWarning{
			Type: "overbooked_slot",
			Message: fmt.Sprintf("Time slot %s on %s for %s has %d appointments (max recommended: %d)",
				first.Time, first.Date, first.DoctorName, n, maxPerSlot),
			SlotKey:          key,
			AppointmentCount: n,
			Appointments:     ids,
		})
	}
	if len(groups) > 0 {
		avg := float64(len(records)) / float64(len(groups))
		out.Statistics.AverageAppointmentsPerSlot = math.Round(avg*100) / 100
	}
	return out
}

// TimeSlots groups one day's records by start time for calendar display.
// Within a start time longer appointments come first.
func (s *Store) TimeSlots(ctx context.Context, date, doctor string) (slots map[string][]Appointment, err error) {
	_, span := s.tracer.Start(ctx, "appointments.time_slots")
	defer span.End()
	defer s.finish(span, "time_slots", s.now(), &err)

	if date == "" {
		return nil, invalidArgument("Date is required")
	}
	filters := Filters{FilterDate: date}
	if doctor != "" {
		filters[FilterDoctorName] = doctor
	}
	if err := checkFilters(filters, FilterDate, FilterDoctorName); err != nil {
		return nil, err
	}

	s.mu.RLock()
	listed := filterRecords(s.records, filters)
	s.mu.RUnlock()

	slots = make(map[string][]Appointment)
	for _, r := range listed {
		slots[r.Time] = append(slots[r.Time], r)
	}
	for _, members := range slots {
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Duration > members[j].Duration
		})
	}
	return slots, nil
}

func countDistinct(records []Appointment, field func(Appointment) string) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[field(r)] = struct{}{}
	}
	return len(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
