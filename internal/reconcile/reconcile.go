// Package reconcile holds the pure logic for merging device scan logs into
// the server's view. It touches no storage; callers apply the classified
// outcome through the scan service.
package reconcile

import (
	"sort"
	"time"
)

// Report is one scan observation replayed from a device's local log.
type Report struct {
	TicketID  string
	DeviceID  string
	ScannedAt time.Time
}

// Dedupe collapses repeated observations of the same ticket within one
// device log, keeping the earliest. Gate apps retry writes locally, so a
// single admission often appears several times in the uploaded log.
func Dedupe(reports []Report) []Report {
	earliest := make(map[string]Report, len(reports))
	for _, r := range reports {
		prev, seen := earliest[r.TicketID]
		if !seen || r.ScannedAt.Before(prev.ScannedAt) {
			earliest[r.TicketID] = r
		}
	}

	out := make([]Report, 0, len(earliest))
	for _, r := range earliest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScannedAt.Before(out[j].ScannedAt) })
	return out
}

// Outcome partitions replayed reports against admissions the server already
// knows. Fresh go on to be applied; Duplicates are the same device replaying
// its own admission; Conflicts are a second device claiming an admitted
// ticket. Conflicts carry both sides and are never auto-resolved, scan time
// on a device clock proves nothing about who admitted first.
type Outcome struct {
	Fresh      []Report
	Duplicates []Report
	Conflicts  []Conflict
}

// Conflict pairs a replayed report with the admission already on record.
type Conflict struct {
	Replayed Report
	Existing Report
}

// Merge classifies discovered reports against known admissions, keyed by
// ticket id. Input order is preserved within each partition.
func Merge(known map[string]Report, discovered []Report) Outcome {
	var out Outcome
	for _, r := range discovered {
		existing, admitted := known[r.TicketID]
		switch {
		case !admitted:
			out.Fresh = append(out.Fresh, r)
		case existing.DeviceID == r.DeviceID:
			out.Duplicates = append(out.Duplicates, r)
		default:
			out.Conflicts = append(out.Conflicts, Conflict{Replayed: r, Existing: existing})
		}
	}
	return out
}
