package coach

import (
	"time"

	"github.com/claude/repcoach/internal/models"
)

// Status is a read-only view of the engine for the HTTP and MCP layers.
type Status struct {
	SessionID      string          `json:"session_id,omitempty"`
	State          string          `json:"state"`
	RoutineID      string          `json:"routine_id,omitempty"`
	RoutineTitle   string          `json:"routine_title,omitempty"`
	ExerciseIndex  int             `json:"exercise_index"`
	ExerciseCount  int             `json:"exercise_count"`
	Exercise       string          `json:"exercise,omitempty"`
	SetIndex       int             `json:"set_index"`
	TotalSets      int             `json:"total_sets"`
	Rep            int             `json:"rep"`
	TargetReps     int             `json:"target_reps,omitempty"`
	Timed          bool            `json:"timed"`
	TargetSeconds  int             `json:"target_seconds,omitempty"`
	TimerRemaining int             `json:"timer_remaining,omitempty"`
	Resting        bool            `json:"resting"`
	LastMessage    string          `json:"last_message,omitempty"`
	StartedAt      time.Time       `json:"started_at,omitzero"`
	Summary        *models.Summary `json:"summary,omitempty"`
}

// Snapshot returns the current status.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{State: e.state.Name(), LastMessage: e.lastMessage}
	s := e.sess
	if s == nil {
		return st
	}
	st.SessionID = s.id
	st.RoutineID = s.routine.ID
	st.RoutineTitle = s.log.Title
	st.ExerciseIndex = s.exercise
	st.ExerciseCount = len(s.routine.Exercises)
	st.SetIndex = s.set
	st.Rep = s.rep
	st.StartedAt = s.startedAt
	if ex, ok := e.current(); ok {
		st.Exercise = ex.Name()
		st.TotalSets = ex.TotalSets()
		st.Timed = ex.Timed()
		if st.Timed {
			st.TargetSeconds = ex.TargetDuration()
		} else {
			st.TargetReps = ex.TargetReps()
		}
	}
	switch t := e.state.(type) {
	case *InProgressTimer:
		st.TimerRemaining = t.Remaining
	case *Resting:
		st.TimerRemaining = t.Remaining
		st.Resting = true
	}
	sum := e.summaryLocked()
	st.Summary = &sum
	return st
}
