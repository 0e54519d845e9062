package models

// Defaults applied when a routine exercise leaves a target unspecified.
const (
	DefaultSets            = 3
	DefaultReps            = 10
	DefaultDurationSeconds = 60
)

// Routine is a user-authored workout template owned by the remote tracker.
type Routine struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Exercises []Exercise `json:"exercises"`
}

// Exercise is one entry of a routine.
type Exercise struct {
	Index       int          `json:"index"`
	Title       string       `json:"title"`
	TemplateID  string       `json:"exercise_template_id"`
	Notes       string       `json:"notes,omitempty"`
	RestSeconds *int         `json:"rest_seconds,omitempty"`
	Sets        []RoutineSet `json:"sets"`
}

// RoutineSet is a planned set. Either Reps or DurationSeconds is the target.
type RoutineSet struct {
	Index           int      `json:"index"`
	Type            string   `json:"type"`
	WeightKg        *float64 `json:"weight_kg,omitempty"`
	Reps            *int     `json:"reps,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
	DistanceMeters  *float64 `json:"distance_meters,omitempty"`
}

// Name returns the display name, falling back to the template ID.
func (e Exercise) Name() string {
	if e.Title != "" {
		return e.Title
	}
	return e.TemplateID
}

// TotalSets is the number of planned sets.
func (e Exercise) TotalSets() int {
	if len(e.Sets) == 0 {
		return DefaultSets
	}
	return len(e.Sets)
}

// TargetReps is the rep target taken from the first set.
func (e Exercise) TargetReps() int {
	if len(e.Sets) > 0 && e.Sets[0].Reps != nil && *e.Sets[0].Reps > 0 {
		return *e.Sets[0].Reps
	}
	return DefaultReps
}

// Timed reports whether the first defined set carries a positive duration.
func (e Exercise) Timed() bool {
	return len(e.Sets) > 0 && e.Sets[0].DurationSeconds != nil && *e.Sets[0].DurationSeconds > 0
}

// TargetDuration is the hold duration in seconds for timed exercises.
func (e Exercise) TargetDuration() int {
	if e.Timed() {
		return *e.Sets[0].DurationSeconds
	}
	return DefaultDurationSeconds
}

// WeightFor returns the planned weight for the given set index, falling back
// to the first set's weight.
func (e Exercise) WeightFor(set int) *float64 {
	if set >= 0 && set < len(e.Sets) && e.Sets[set].WeightKg != nil {
		return e.Sets[set].WeightKg
	}
	if len(e.Sets) > 0 {
		return e.Sets[0].WeightKg
	}
	return nil
}

// Rest returns the rest interval in seconds, or def when the routine has none.
func (e Exercise) Rest(def int) int {
	if e.RestSeconds != nil {
		return *e.RestSeconds
	}
	return def
}
