package rest

import (
	"fmt"
	"time"
)

// Profile is the user profile payload accepted by the backend.
type Profile struct {
	UserID      string    `json:"user_id,omitempty"`
	DisplayName string    `json:"display_name"`
	WeightUnit  string    `json:"weight_unit,omitempty"` // "kg" or "lb"
	Goals       []string  `json:"goals,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Dashboard is the summary shown on the home screen.
type Dashboard struct {
	WorkoutsThisWeek int       `json:"workouts_this_week"`
	StreakDays       int       `json:"streak_days"`
	LastWorkoutAt    time.Time `json:"last_workout_at,omitempty"`
	PersonalRecords  []Record  `json:"personal_records,omitempty"`
}

// Record is a personal best for one exercise.
type Record struct {
	Exercise string  `json:"exercise"`
	Weight   float64 `json:"weight"`
	Reps     int     `json:"reps"`
}

// HistoryMessage is a stored chat message.
type HistoryMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}
