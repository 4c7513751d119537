package stats

import (
	"planner/internal/calendar"
	"planner/internal/model"
)

const (
	chartDays     = 30
	averageWindow = 7
)

// AveragePoint is one day of the moving average.
type AveragePoint struct {
	Date     string   `json:"date" example:"2024-03-04"`
	WeightKg *float64 `json:"weight_kg,omitempty"`
	// AverageKg averages the readings of the last 7 days, including this one.
	AverageKg float64 `json:"average_kg"`
}

// WeightStats summarizes the weight log.
type WeightStats struct {
	Latest      *model.WeightLog `json:"latest,omitempty"`
	TodayKg     *float64         `json:"today_kg,omitempty"`
	WeekChange  *float64         `json:"week_change,omitempty" doc:"Today minus the reading 7 days ago"`
	MonthChange *float64         `json:"month_change,omitempty" doc:"Today minus the reading 30 days ago"`
	Streak      int              `json:"streak" doc:"Consecutive days up to today with a reading"`
	GoalKg      *float64         `json:"goal_kg,omitempty"`
	ToGoal      *float64         `json:"to_goal,omitempty" doc:"Latest reading minus the goal"`
	// MovingAverage covers the last 30 days. Days with no reading in their
	// 7-day window are omitted.
	MovingAverage []AveragePoint `json:"moving_average"`
}

// Weight computes weight statistics as of today.
func Weight(logs []model.WeightLog, today string, goal *float64) (WeightStats, error) {
	if !calendar.ValidDateKey(today) {
		return WeightStats{}, calendar.ErrInvalidDate
	}

	byDate := make(map[string]float64, len(logs))
	var s WeightStats
	for i, l := range logs {
		byDate[l.Date] = l.WeightKg
		if l.Date <= today && (s.Latest == nil || l.Date > s.Latest.Date) {
			s.Latest = &logs[i]
		}
	}
	on := func(daysAgo int) *float64 {
		d, err := calendar.AddDays(today, -daysAgo)
		if err != nil {
			return nil
		}
		if v, ok := byDate[d]; ok {
			return &v
		}
		return nil
	}

	s.TodayKg = on(0)
	s.WeekChange = diff(s.TodayKg, on(7))
	s.MonthChange = diff(s.TodayKg, on(30))
	s.Streak = streak(today, func(date string) bool {
		_, ok := byDate[date]
		return ok
	})
	s.GoalKg = goal
	if s.Latest != nil {
		s.ToGoal = diff(&s.Latest.WeightKg, goal)
	}

	window := make([]*float64, chartDays)
	for i := range window {
		window[i] = on(chartDays - 1 - i)
	}
	s.MovingAverage = []AveragePoint{}
	for i, v := range window {
		sum, n := 0.0, 0
		for j := max(0, i-averageWindow+1); j <= i; j++ {
			if window[j] != nil {
				sum += *window[j]
				n++
			}
		}
		if n == 0 {
			continue
		}
		date, _ := calendar.AddDays(today, i-chartDays+1)
		s.MovingAverage = append(s.MovingAverage, AveragePoint{Date: date, WeightKg: v, AverageKg: sum / float64(n)})
	}
	return s, nil
}

func diff(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := *a - *b
	return &d
}
