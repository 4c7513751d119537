// Package stats derives progress summaries from the local task state and the
// weight log.
package stats

import (
	"time"

	"planner/internal/calendar"
	"planner/internal/model"
	"planner/internal/state"
)

// NoCategory is the key used for tasks without a category.
const NoCategory = "none"

// CategoryStat counts tasks of one category.
type CategoryStat struct {
	Category string  `json:"category" example:"work"`
	Color    string  `json:"color,omitempty" example:"#0891b2"`
	Total    int     `json:"total"`
	Done     int     `json:"done"`
	Rate     float64 `json:"rate" doc:"Fraction of tasks done, 0 when there are none"`
}

// TaskStats summarizes completed work.
type TaskStats struct {
	ThisWeekDone int            `json:"this_week_done"`
	LastWeekDone int            `json:"last_week_done"`
	ByCategory   []CategoryStat `json:"by_category"`
	// DoneByWeekday counts completed tasks per weekday, Monday first.
	DoneByWeekday [7]int `json:"done_by_weekday"`
	BestWeekday   string `json:"best_weekday,omitempty" example:"Tuesday"`
	Streak        int    `json:"streak" doc:"Consecutive days up to today with at least one completed task"`
	TotalDone     int    `json:"total_done"`
	TotalPending  int    `json:"total_pending"`
}

// Tasks computes task statistics as of today. Weeks start on Monday.
func Tasks(b state.Buckets, today string) (TaskStats, error) {
	weekStart, err := calendar.WeekStart(today)
	if err != nil {
		return TaskStats{}, err
	}
	lastWeekStart, err := calendar.AddDays(weekStart, -7)
	if err != nil {
		return TaskStats{}, err
	}

	var s TaskStats
	byCat := make(map[string]*CategoryStat, len(model.Categories)+1)
	for _, c := range model.Categories {
		s.ByCategory = append(s.ByCategory, CategoryStat{Category: string(c), Color: c.Color()})
	}
	s.ByCategory = append(s.ByCategory, CategoryStat{Category: NoCategory})
	for i := range s.ByCategory {
		byCat[s.ByCategory[i].Category] = &s.ByCategory[i]
	}

	for date, bucket := range b {
		wd, err := calendar.Weekday(date)
		if err != nil {
			continue
		}
		for _, t := range bucket {
			key := string(t.Category)
			if key == "" {
				key = NoCategory
			}
			if c, ok := byCat[key]; ok {
				c.Total++
				if t.Done {
					c.Done++
				}
			}

			if !t.Done {
				s.TotalPending++
				continue
			}
			s.TotalDone++
			s.DoneByWeekday[mondayIndex(wd)]++
			switch {
			case date >= weekStart && date <= today:
				s.ThisWeekDone++
			case date >= lastWeekStart && date < weekStart:
				s.LastWeekDone++
			}
		}
	}

	for i := range s.ByCategory {
		if c := &s.ByCategory[i]; c.Total > 0 {
			c.Rate = float64(c.Done) / float64(c.Total)
		}
	}

	best := -1
	for i, n := range s.DoneByWeekday {
		if n > 0 && (best < 0 || n > s.DoneByWeekday[best]) {
			best = i
		}
	}
	if best >= 0 {
		s.BestWeekday = time.Weekday((best + 1) % 7).String()
	}

	s.Streak = streak(today, func(date string) bool {
		for _, t := range b[date] {
			if t.Done {
				return true
			}
		}
		return false
	})
	return s, nil
}

func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// streak counts consecutive days ending today for which hit is true.
func streak(today string, hit func(date string) bool) int {
	n := 0
	day := today
	for hit(day) {
		n++
		prev, err := calendar.AddDays(day, -1)
		if err != nil {
			break
		}
		day = prev
	}
	return n
}
