package model

// WeightLog is one weight reading. There is at most one per user per date.
type WeightLog struct {
	Date     string  `json:"date" example:"2024-03-04"`
	WeightKg float64 `json:"weight_kg" example:"72.4"`
}

// WeightGoal is the user's target weight; nil when unset.
type WeightGoal struct {
	GoalKg *float64 `json:"goal_kg" nullable:"true" example:"70"`
}
