package appointments

// FindConflicts returns every record that shares the candidate's doctor and
// date and whose slot overlaps the candidate's. The candidate's own id is
// skipped so an existing record can be re-checked without conflicting with itself.
// Records whose time cannot be parsed are ignored.
func FindConflicts(candidate Appointment, existing []Appointment) []Appointment {
	slot, err := candidate.Slot()
	if err != nil {
		return nil
	}

	var conflicts []Appointment
	for _, other := range existing {
		if other.Date != candidate.Date || other.DoctorName != candidate.DoctorName {
			continue
		}
		if candidate.ID != "" && other.ID == candidate.ID {
			continue
		}
		otherSlot, err := other.Slot()
		if err != nil {
			continue
		}
		if slot.Overlaps(otherSlot) {
			conflicts = append(conflicts, other)
		}
	}
	return conflicts
}
