package models

import (
	"time"

	"github.com/google/uuid"
)

// SetTypeNormal is the only set type the coach logs.
const SetTypeNormal = "normal"

// WorkoutLog is the in-progress or completed record mirrored to the tracker.
// The JSON shape matches the tracker's workout payload.
type WorkoutLog struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time,omitzero"`
	IsPrivate   bool            `json:"is_private"`
	Exercises   []ExerciseEntry `json:"exercises"`
}

// ExerciseEntry holds the logged sets of one routine exercise.
type ExerciseEntry struct {
	TemplateID string     `json:"exercise_template_id"`
	Title      string     `json:"-"`
	Notes      string     `json:"notes,omitempty"`
	Sets       []SetEntry `json:"sets"`
}

// SetEntry is one logged set. Timed sets leave Reps nil; rep sets leave
// DurationSeconds nil.
type SetEntry struct {
	Index           int      `json:"index"`
	Type            string   `json:"type"`
	WeightKg        *float64 `json:"weight_kg"`
	Reps            *int     `json:"reps"`
	DurationSeconds *int     `json:"duration_seconds"`
	DistanceMeters  *float64 `json:"distance_meters"`
	RPE             *float64 `json:"rpe"`
}

// TotalSets counts logged sets across all exercises.
func (l WorkoutLog) TotalSets() int {
	n := 0
	for _, e := range l.Exercises {
		n += len(e.Sets)
	}
	return n
}

// TotalReps sums logged reps across all exercises.
func (l WorkoutLog) TotalReps() int {
	n := 0
	for _, e := range l.Exercises {
		for _, s := range e.Sets {
			if s.Reps != nil {
				n += *s.Reps
			}
		}
	}
	return n
}

// Clone returns a deep copy so snapshots can leave the engine safely.
func (l WorkoutLog) Clone() WorkoutLog {
	out := l
	out.Exercises = make([]ExerciseEntry, len(l.Exercises))
	for i, e := range l.Exercises {
		out.Exercises[i] = e
		out.Exercises[i].Sets = append([]SetEntry(nil), e.Sets...)
	}
	return out
}

// Summary is the end-of-workout recap.
type Summary struct {
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	Exercises       int    `json:"exercises"`
	TotalSets       int    `json:"total_sets"`
	TotalReps       int    `json:"total_reps"`
}

// WorkoutHistoryRow is a completed session as stored server-side.
type WorkoutHistoryRow struct {
	ID        uuid.UUID `json:"id"`
	UserLogin string    `json:"user_login"`
	RoutineID string    `json:"routine_id"`
	RemoteID  string    `json:"remote_id,omitempty"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	TotalSets int       `json:"total_sets"`
	TotalReps int       `json:"total_reps"`
	Exercises int       `json:"exercises"`
	CreatedAt time.Time `json:"created_at"`
}
