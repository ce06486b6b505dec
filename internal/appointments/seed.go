package appointments

// SampleAppointments returns the demo schedule loaded when SEED_SAMPLE_DATA
// is set. None of the entries overlap.
func SampleAppointments() []Appointment {
	return []Appointment{
		{ID: "apt_001", PatientName: "John Smith", Date: "2024-01-15", Time: "09:00", Duration: 30, DoctorName: "Dr. Johnson", Status: StatusConfirmed, Mode: ModeInPerson},
		{ID: "apt_002", PatientName: "Sarah Wilson", Date: "2024-01-15", Time: "10:30", Duration: 45, DoctorName: "Dr. Smith", Status: StatusScheduled, Mode: ModeOnline},
		{ID: "apt_003", PatientName: "Michael Brown", Date: "2024-01-16", Time: "14:00", Duration: 60, DoctorName: "Dr. Johnson", Status: StatusUpcoming, Mode: ModeInPerson},
		{ID: "apt_004", PatientName: "Emily Davis", Date: "2024-01-16", Time: "11:15", Duration: 30, DoctorName: "Dr. Williams", Status: StatusConfirmed, Mode: ModeOnline},
		{ID: "apt_005", PatientName: "Robert Taylor", Date: "2024-01-17", Time: "08:30", Duration: 45, DoctorName: "Dr. Smith", Status: StatusScheduled, Mode: ModeInPerson},
		{ID: "apt_006", PatientName: "Lisa Anderson", Date: "2024-01-17", Time: "13:45", Duration: 30, DoctorName: "Dr. Johnson", Status: StatusCancelled, Mode: ModeOnline},
		{ID: "apt_007", PatientName: "David Martinez", Date: "2024-01-18", Time: "10:00", Duration: 60, DoctorName: "Dr. Williams", Status: StatusUpcoming, Mode: ModeInPerson},
		{ID: "apt_008", PatientName: "Jennifer Garcia", Date: "2024-01-18", Time: "15:30", Duration: 45, DoctorName: "Dr. Smith", Status: StatusConfirmed, Mode: ModeOnline},
		{ID: "apt_009", PatientName: "Christopher Lee", Date: "2024-01-19", Time: "09:15", Duration: 30, DoctorName: "Dr. Johnson", Status: StatusScheduled, Mode: ModeInPerson},
		{ID: "apt_010", PatientName: "Amanda White", Date: "2024-01-19", Time: "16:00", Duration: 45, DoctorName: "Dr. Williams", Status: StatusUpcoming, Mode: ModeOnline},
		{ID: "apt_011", PatientName: "Kevin Thompson", Date: "2024-01-20", Time: "11:30", Duration: 60, DoctorName: "Dr. Smith", Status: StatusConfirmed, Mode: ModeInPerson},
		{ID: "apt_012", PatientName: "Michelle Rodriguez", Date: "2024-01-20", Time: "14:15", Duration: 30, DoctorName: "Dr. Johnson", Status: StatusScheduled, Mode: ModeOnline},
	}
}
