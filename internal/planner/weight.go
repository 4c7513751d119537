package planner

import (
	"context"
	"errors"
	"sort"

	"planner/internal/calendar"
	"planner/internal/model"
)

// Accepted weight range in kilograms.
const (
	MinWeightKg = 20
	MaxWeightKg = 300
)

var ErrInvalidWeight = errors.New("weight must be between 20 and 300 kg")

func validWeight(kg float64) bool {
	return kg >= MinWeightKg && kg <= MaxWeightKg
}

// WeightLogs returns the local weight log in date order.
func (p *Planner) WeightLogs() []model.WeightLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.WeightLog{}, p.weights...)
}

// SaveWeight records the reading for a date, replacing an earlier one. Weight
// writes are not queued: a remote failure is returned and the local log is
// left unchanged.
func (p *Planner) SaveWeight(ctx context.Context, dateKey string, weightKg float64) (model.WeightLog, error) {
	if !calendar.ValidDateKey(dateKey) {
		return model.WeightLog{}, calendar.ErrInvalidDate
	}
	if !validWeight(weightKg) {
		return model.WeightLog{}, ErrInvalidWeight
	}
	if err := p.store.UpsertWeightLog(ctx, p.userID, dateKey, weightKg); err != nil {
		return model.WeightLog{}, err
	}

	entry := model.WeightLog{Date: dateKey, WeightKg: weightKg}

	p.mu.Lock()
	defer p.mu.Unlock()
	logs := make([]model.WeightLog, 0, len(p.weights)+1)
	for _, l := range p.weights {
		if l.Date != dateKey {
			logs = append(logs, l)
		}
	}
	logs = append(logs, entry)
	sortLogs(logs)
	p.weights = logs
	return entry, nil
}

// WeightGoal returns the goal weight, or nil if none is set.
func (p *Planner) WeightGoal(ctx context.Context) (*float64, error) {
	return p.store.FetchWeightGoal(ctx, p.userID)
}

// SaveWeightGoal stores the goal weight; nil clears it.
func (p *Planner) SaveWeightGoal(ctx context.Context, goalKg *float64) error {
	if goalKg != nil && !validWeight(*goalKg) {
		return ErrInvalidWeight
	}
	return p.store.UpsertWeightGoal(ctx, p.userID, goalKg)
}

func sortLogs(logs []model.WeightLog) {
	sort.Slice(logs, func(i, j int) bool { return logs[i].Date < logs[j].Date })
}
