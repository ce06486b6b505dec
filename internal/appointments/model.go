package appointments

import "strings"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusConfirmed Status = "Confirmed"
	StatusScheduled Status = "Scheduled"
	StatusUpcoming  Status = "Upcoming"
	StatusCancelled Status = "Cancelled"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusConfirmed, StatusScheduled, StatusUpcoming, StatusCancelled}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusConfirmed, StatusScheduled, StatusUpcoming, StatusCancelled:
		return true
	}
	return false
}

// Mode is how the appointment takes place.
type Mode string

const (
	ModeOnline   Mode = "online"
	ModeInPerson Mode = "in-person"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeOnline, ModeInPerson}

func (m Mode) IsValid() bool {
	return m == ModeOnline || m == ModeInPerson
}

// Appointment is a booked slot for one patient with one doctor.
// Values are copied in and out of the Store; never share pointers to stored records.
type Appointment struct {
	ID          string `json:"id"`
	PatientName string `json:"patientName"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Duration    int    `json:"duration"`
	DoctorName  string `json:"doctorName"`
	Status      Status `json:"status"`
	Mode        Mode   `json:"mode"`
}

// Slot returns the half-open minute interval the appointment occupies.
func (a Appointment) Slot() (Slot, error) {
	return NewSlot(a.Time, a.Duration)
}

// Payload is a decoded create request. Field types are checked by Validate,
// so callers should decode JSON with json.Decoder.UseNumber.
type Payload map[string]any

// Filter keys accepted by Store.List.
const (
	FilterDate       = "date"
	FilterStatus     = "status"
	FilterDoctorName = "doctorName"
)

// Extra filter keys accepted by ListWithOverlaps.
const (
	FilterStartDate = "start_date"
	FilterEndDate   = "end_date"
)

// Filters are AND-combined equality filters; empty values are ignored.
type Filters map[string]string

func (f Filters) get(key string) string {
	if f == nil {
		return ""
	}
	return strings.TrimSpace(f[key])
}

func (f Filters) clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func cloneAll(records []Appointment) []Appointment {
	out := make([]Appointment, len(records))
	copy(out, records)
	return out
}
