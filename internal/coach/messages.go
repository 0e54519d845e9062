package coach

// Motivation pools, one per coaching moment.
const (
	MotRepStart         = "rep_start"
	MotRepComplete      = "rep_complete"
	MotHalfwayReps      = "halfway_reps"
	MotLastReps         = "last_reps"
	MotSetComplete      = "set_complete"
	MotExerciseComplete = "exercise_complete"
	MotTimerHalfway     = "timer_halfway"
	MotTimer30          = "timer_30"
	MotTimer15          = "timer_15"
)

// Motivations holds the message pools keyed by the Mot* constants.
var Motivations = map[string][]string{
	MotRepStart: {
		"💪 Let's go!",
		"🔥 You got this!",
		"⚡ Power up!",
		"🎯 Focus!",
	},
	MotRepComplete: {
		"Strong start! 💪",
		"Keep pushing!",
		"Nice and controlled!",
		"You're in the zone!",
		"Great form!",
		"Beast mode! 🔥",
		"Crushing it!",
		"That's the way!",
	},
	MotHalfwayReps: {
		"Halfway there, stay strong!",
		"More than halfway! Keep it up!",
		"Over the hill, finish strong!",
	},
	MotLastReps: {
		"Almost done, push through!",
		"Last few reps, give it everything!",
		"Final push! You've got this!",
	},
	MotSetComplete: {
		"🎉 Set complete! Great work!",
		"💪 Solid set!",
		"🔥 Crushed that set!",
		"⭐ Excellent work!",
	},
	MotExerciseComplete: {
		"🏆 Exercise complete! You crushed it!",
		"💪 Awesome job on that exercise!",
		"🎉 Done with that one! Great effort!",
	},
	MotTimerHalfway: {
		"Halfway there! Stay tight! 💪",
		"50% done! Keep holding!",
	},
	MotTimer30: {
		"30 seconds left - You're crushing it!",
		"30 to go! Stay focused!",
	},
	MotTimer15: {
		"15 seconds - Almost done, push through!",
		"Final 15! You've got this!",
	},
}

// repClass picks the pool for a rep given how many remain.
func repClass(rep, remaining, target int) string {
	switch {
	case rep == 1:
		return MotRepStart
	case remaining == target/2:
		return MotHalfwayReps
	case remaining <= 2 && remaining > 0:
		return MotLastReps
	default:
		return MotRepComplete
	}
}

const (
	msgFallbackHelp = "Tell me your rep number, 'done' when finished with the set, or 'skip' to move on."
	msgNothingYet   = "Nothing to repeat yet."
	msgRepPrompt    = "Let's go! Tell me your rep count."
	msgSkipping     = "⏭️ Skipping to next exercise..."
)
