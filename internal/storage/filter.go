package storage

import (
	"strconv"
	"time"
)

// HistoryFilter holds the fixed set of optional bounds a history scan
// accepts. The clause list is enumerated here and nowhere else; request
// values only ever travel as bind parameters.
type HistoryFilter struct {
	// After is an inclusive lower bound on created_at.
	After *time.Time
	// Before is an exclusive upper bound on created_at.
	Before *time.Time
}

// build returns the SQL tail appended after the group predicate and the
// arguments backing it. Placeholder numbering starts right after $1, which
// the caller reserves for the group id.
func (f HistoryFilter) build() (string, []interface{}) {
	var tail string
	args := make([]interface{}, 0, 2)
	n := 1

	if f.After != nil {
		n++
		tail += " and m.created_at >= $" + strconv.Itoa(n)
		args = append(args, *f.After)
	}
	if f.Before != nil {
		n++
		tail += " and m.created_at < $" + strconv.Itoa(n)
		args = append(args, *f.Before)
	}

	return tail, args
}
