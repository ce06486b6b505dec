package appointments

import (
	"fmt"
	"sort"
)

// ClusterMode selects how overlapping pairs are grouped.
type ClusterMode string

const (
	// ClusterPairwise keys each overlapping pair by date, doctor and the
	// earlier of the two starts. A chain A-B, B-C where A and C do not
	// overlap can therefore land in two clusters.
	ClusterPairwise ClusterMode = "pairwise"

	// ClusterMerged groups records into connected components of the
	// overlap relation, keyed by the earliest start in the component.
	ClusterMerged ClusterMode = "merged"
)

// ParseClusterMode maps a config value to a mode, defaulting to pairwise.
func ParseClusterMode(v string) ClusterMode {
	if ClusterMode(v) == ClusterMerged {
		return ClusterMerged
	}
	return ClusterPairwise
}

type slotted struct {
	rec  Appointment
	slot Slot
}

// FindOverlapClusters groups overlapping same-doctor, same-date records.
// When date is non-empty only records on that date are considered.
// Records with unparseable times are skipped.
func FindOverlapClusters(records []Appointment, date string, mode ClusterMode) map[string][]Appointment {
	items := make([]slotted, 0, len(records))
	for _, r := range records {
		if date != "" && r.Date != date {
			continue
		}
		slot, err := r.Slot()
		if err != nil {
			continue
		}
		items = append(items, slotted{rec: r, slot: slot})
	}

	if mode == ClusterMerged {
		return mergedClusters(items)
	}
	return pairwiseClusters(items)
}

func pairwiseClusters(items []slotted) map[string][]Appointment {
	clusters := make(map[string][]Appointment)
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			if !sameColumn(a.rec, b.rec) || !a.slot.Overlaps(b.slot) {
				continue
			}
			key := clusterKey(a.rec.Date, a.rec.DoctorName, min(a.slot.Start, b.slot.Start))
			clusters[key] = appendMember(clusters[key], a.rec)
			clusters[key] = appendMember(clusters[key], b.rec)
		}
	}
	return clusters
}

func mergedClusters(items []slotted) map[string][]Appointment {
	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	linked := make([]bool, len(items))
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if !sameColumn(items[i].rec, items[j].rec) || !items[i].slot.Overlaps(items[j].slot) {
				continue
			}
			linked[i], linked[j] = true, true
			ri, rj := find(i), find(j)
			if ri != rj {
				// Lower index stays root so member order follows input order.
				if rj < ri {
					ri, rj = rj, ri
				}
				parent[rj] = ri
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := range items {
		if !linked[i] {
			continue
		}
		root := find(i)
		if _, seen := groups[root]; !seen {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], i)
	}

	clusters := make(map[string][]Appointment, len(roots))
	for _, root := range roots {
		earliest := items[root].slot.Start
		for _, idx := range groups[root] {
			earliest = min(earliest, items[idx].slot.Start)
		}
		key := clusterKey(items[root].rec.Date, items[root].rec.DoctorName, earliest)
		for _, idx := range groups[root] {
			clusters[key] = appendMember(clusters[key], items[idx].rec)
		}
	}
	return clusters
}

func sameColumn(a, b Appointment) bool {
	return a.Date == b.Date && a.DoctorName == b.DoctorName
}

func clusterKey(date, doctor string, start int) string {
	return fmt.Sprintf("%s_%s_%d", date, doctor, start)
}

// appendMember adds rec unless a member with the same id is already present.
func appendMember(members []Appointment, rec Appointment) []Appointment {
	for _, m := range members {
		if m.ID == rec.ID {
			return members
		}
	}
	return append(members, rec)
}

// ClusterKeys returns the cluster keys in sorted order for stable output.
func ClusterKeys(clusters map[string][]Appointment) []string {
	keys := make([]string, 0, len(clusters))
	for k := range clusters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
