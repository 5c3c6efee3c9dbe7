package caselist

import (
	"sort"
	"time"

	"go-case-tracker/internal/models"
)

// Summary holds the dashboard counters.
type Summary struct {
	Total     int
	ThisMonth int
	Last24h   int
	Recent    []models.Case
}

// RecentLimit is how many cases Summary.Recent holds at most.
const RecentLimit = 5

// Summary buckets the current collection by creation instant relative to now.
// Cases whose instant does not parse only count towards Total.
func (c *Controller) Summary(now time.Time) Summary {
	return Summarize(c.Cases(), now)
}

// Summarize computes a Summary for cases.
func Summarize(cases []models.Case, now time.Time) Summary {
	s := Summary{Total: len(cases)}
	year, month, _ := now.Date()
	dayAgo := now.Add(-24 * time.Hour)

	type dated struct {
		kase models.Case
		at   time.Time
	}
	var withDates []dated
	for _, kase := range cases {
		at, ok := kase.CreatedAt()
		if !ok {
			continue
		}
		withDates = append(withDates, dated{kase: kase, at: at})

		local := at.In(now.Location())
		if y, m, _ := local.Date(); y == year && m == month {
			s.ThisMonth++
		}
		if !at.Before(dayAgo) && !at.After(now) {
			s.Last24h++
		}
	}

	sort.SliceStable(withDates, func(i, j int) bool {
		return withDates[i].at.After(withDates[j].at)
	})
	for i := 0; i < len(withDates) && i < RecentLimit; i++ {
		s.Recent = append(s.Recent, withDates[i].kase)
	}
	return s
}
