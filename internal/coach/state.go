package coach

// State is the engine's current phase. Exactly one value is live at a time
// and only the timed phases carry a timer handle, so a work timer and a rest
// timer can never run together.
type State interface {
	Name() string
	timer() *handle
}

// NotStarted is the initial state.
type NotStarted struct{}

// Announcing waits out the short delay before an exercise is announced.
type Announcing struct {
	Exercise int
	h        *handle
}

// AwaitingSetStart waits for the user to begin the next set.
type AwaitingSetStart struct{}

// InProgressReps counts reported reps toward the target.
type InProgressReps struct{}

// InProgressTimer counts a timed hold down to zero.
type InProgressTimer struct {
	Total     int
	Remaining int
	h         *handle
}

// Resting counts a rest period down. BetweenExercises distinguishes the
// rest after the last set of an exercise from the rest between sets.
type Resting struct {
	Total            int
	Remaining        int
	BetweenExercises bool
	h                *handle
}

// WorkoutComplete is terminal for a session.
type WorkoutComplete struct{}

func (NotStarted) Name() string       { return "not_started" }
func (*Announcing) Name() string      { return "announcing" }
func (AwaitingSetStart) Name() string { return "awaiting_set_start" }
func (InProgressReps) Name() string   { return "in_progress_reps" }
func (*InProgressTimer) Name() string { return "in_progress_timer" }
func (*Resting) Name() string         { return "resting" }
func (WorkoutComplete) Name() string  { return "workout_complete" }

func (NotStarted) timer() *handle         { return nil }
func (s *Announcing) timer() *handle      { return s.h }
func (AwaitingSetStart) timer() *handle   { return nil }
func (InProgressReps) timer() *handle     { return nil }
func (s *InProgressTimer) timer() *handle { return s.h }
func (s *Resting) timer() *handle         { return s.h }
func (WorkoutComplete) timer() *handle    { return nil }

func active(s State) bool {
	switch s.(type) {
	case NotStarted, WorkoutComplete:
		return false
	}
	return true
}
