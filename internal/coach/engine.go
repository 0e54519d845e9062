// Package coach runs a workout session: it walks a routine exercise by
// exercise, interprets spoken input, counts reps and timed holds, schedules
// rest periods and hands every logged set to a remote syncer.
//
// All events (input, timer ticks, the delayed exercise announcement) are
// serialized on one engine mutex. Side effects such as messages, hooks and
// sync triggers are queued while the mutex is held and delivered in order
// after it is released, so subscribers may call back into the engine.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/normalize"
	"github.com/google/uuid"
)

var (
	ErrNoActiveSession = errors.New("no active workout session")
	ErrSessionActive   = errors.New("a workout session is already active")
	ErrEmptyRoutine    = errors.New("routine has no exercises")
)

// Role tags who a conversational message belongs to.
type Role string

const (
	RoleAI   Role = "ai"
	RoleUser Role = "user"
)

// MessageSink receives every conversational message the engine produces.
type MessageSink interface {
	OnMessage(role Role, text string)
}

// SinkFunc adapts a function to MessageSink.
type SinkFunc func(role Role, text string)

func (f SinkFunc) OnMessage(role Role, text string) { f(role, text) }

// Syncer mirrors the workout log to the remote tracker.
type Syncer interface {
	// Reset forgets any remote record from a previous session.
	Reset()
	// Trigger starts a background sync of the snapshot.
	Trigger(log models.WorkoutLog)
	// Finish syncs the final log once any in-flight call has returned.
	Finish(ctx context.Context, log models.WorkoutLog)
}

// Hooks are optional callbacks into the host application.
type Hooks struct {
	// OnWorkoutComplete receives the final log, once per session.
	OnWorkoutComplete func(log models.WorkoutLog)
	// OnWorkoutEnd is called when the user asks to end the whole workout.
	// The host decides whether to call CompleteWorkout.
	OnWorkoutEnd func()
	// StopVoice halts listening and speech when the workout completes.
	StopVoice func()
}

// Config holds engine timings.
type Config struct {
	AnnounceDelay       time.Duration
	DefaultRestSeconds  int
	ExerciseRestSeconds int
	FinishTimeout       time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		AnnounceDelay:       500 * time.Millisecond,
		DefaultRestSeconds:  60,
		ExerciseRestSeconds: 30,
		FinishTimeout:       10 * time.Second,
	}
}

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c Clock) Option         { return func(e *Engine) { e.clock = c } }
func WithSyncer(s Syncer) Option       { return func(e *Engine) { e.sync = s } }
func WithHooks(h Hooks) Option         { return func(e *Engine) { e.hooks = h } }
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithNormalizer sets the transcript normalizer. The default has no user
// mappings.
func WithNormalizer(n *normalize.Normalizer) Option { return func(e *Engine) { e.norm = n } }

// WithRand replaces the random pick used for motivational messages.
func WithRand(pick func(n int) int) Option { return func(e *Engine) { e.pick = pick } }

type session struct {
	id        string
	routine   models.Routine
	exercise  int
	set       int
	rep       int
	countdown bool
	log       models.WorkoutLog
	entries   map[int]int // routine position -> log entry
	startedAt time.Time
	endedAt   time.Time
}

// Engine is the workout session state machine.
type Engine struct {
	cfg   Config
	clock Clock
	sync  Syncer
	hooks Hooks
	log   *slog.Logger
	pick  func(n int) int

	subMu   sync.Mutex
	subs    map[int]MessageSink
	nextSub int

	mu          sync.Mutex
	norm        *normalize.Normalizer
	state       State
	sess        *session
	lastMessage string
	outbox      []func()
	draining    bool
	replies     *[]string // coach messages of the running Respond call
}

// New creates an idle engine.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg,
		clock: SystemClock{},
		log:   slog.Default(),
		pick:  rand.IntN,
		subs:  make(map[int]MessageSink),
		state: NotStarted{},
	}
	for _, o := range opts {
		o(e)
	}
	if e.norm == nil {
		e.norm = normalize.New()
	}
	return e
}

// Subscribe registers a sink and returns a function that removes it.
func (e *Engine) Subscribe(s MessageSink) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = s
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

// SetNormalizer swaps the normalizer, e.g. after phonetic mappings change.
func (e *Engine) SetNormalizer(n *normalize.Normalizer) {
	e.mu.Lock()
	e.norm = n
	e.mu.Unlock()
}

// Start begins a session for routine.
func (e *Engine) Start(routine models.Routine) error {
	return e.do(func() error {
		if active(e.state) {
			return ErrSessionActive
		}
		if len(routine.Exercises) == 0 {
			return ErrEmptyRoutine
		}
		title := routine.Title
		if title == "" {
			title = "Workout"
		}
		now := e.clock.Now()
		e.sess = &session{
			id:        uuid.NewString(),
			routine:   routine,
			entries:   make(map[int]int),
			startedAt: now,
			log:       models.WorkoutLog{Title: title, StartTime: now},
		}
		e.lastMessage = ""
		if e.sync != nil {
			e.sync.Reset()
		}
		metrics.ActiveSessions.Inc()
		e.log.Info("workout started", "session", e.sess.id, "routine", routine.ID, "exercises", len(routine.Exercises))

		e.say(fmt.Sprintf("🔥 Starting \"%s\" workout!", title))
		e.enterAnnouncing(0)
		return nil
	})
}

// ProcessInput interprets one utterance. Empty input is ignored.
func (e *Engine) ProcessInput(raw string) error {
	return e.do(func() error { return e.input(raw) })
}

// Respond is ProcessInput that also returns the coach messages the input
// produced, whether or not another goroutine is delivering side effects.
func (e *Engine) Respond(raw string) ([]string, error) {
	replies := []string{}
	err := e.do(func() error {
		e.replies = &replies
		defer func() { e.replies = nil }()
		return e.input(raw)
	})
	return replies, err
}

func (e *Engine) input(raw string) error {
	if !active(e.state) {
		return ErrNoActiveSession
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}
	e.emit(RoleUser, text)
	e.flushAnnouncement()

	cmd := e.norm.Command(text)
	e.log.Debug("input", "text", text, "command", cmd.String(), "state", e.state.Name())
	switch cmd {
	case normalize.CmdEndWorkout:
		if fn := e.hooks.OnWorkoutEnd; fn != nil {
			e.queue(fn)
		}
	case normalize.CmdDone:
		e.handleDone()
	case normalize.CmdStart:
		e.handleStart()
	case normalize.CmdRepeat:
		e.repeat()
	case normalize.CmdSkip:
		e.skip()
	case normalize.CmdHelp:
		e.help()
	default:
		nums := normalize.Numbers(e.norm.Normalize(normalize.Clean(text)))
		if len(nums) == 0 {
			e.fallback()
			return nil
		}
		e.handleReps(nums)
	}
	return nil
}

// CompleteWorkout ends the session, runs the final sync and emits the
// summary. The final sync is bounded by ctx and by the configured timeout.
func (e *Engine) CompleteWorkout(ctx context.Context) error {
	return e.do(func() error {
		if !active(e.state) {
			return ErrNoActiveSession
		}
		e.complete(ctx)
		return nil
	})
}

// Active reports whether a session is in progress.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return active(e.state)
}

// State returns the current state name.
func (e *Engine) State() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Name()
}

// Log returns a copy of the current session's workout log.
func (e *Engine) Log() (models.WorkoutLog, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return models.WorkoutLog{}, false
	}
	return e.sess.log.Clone(), true
}

// Summary returns the recap of the current or most recent session.
func (e *Engine) Summary() (models.Summary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return models.Summary{}, false
	}
	return e.summaryLocked(), true
}

// --- event handling, all called with e.mu held ---

func (e *Engine) current() (models.Exercise, bool) {
	s := e.sess
	if s == nil || s.exercise >= len(s.routine.Exercises) {
		return models.Exercise{}, false
	}
	return s.routine.Exercises[s.exercise], true
}

func (e *Engine) enterAnnouncing(i int) {
	h := &handle{}
	e.state = &Announcing{Exercise: i, h: h}
	h.t = e.clock.AfterFunc(e.cfg.AnnounceDelay, func() { e.fire(h) })
}

func (e *Engine) flushAnnouncement() {
	if a, ok := e.state.(*Announcing); ok {
		a.h.stop()
		e.announce()
	}
}

func (e *Engine) announce() {
	ex, ok := e.current()
	if !ok {
		return
	}
	s := e.sess
	s.countdown = ex.Timed()
	e.state = AwaitingSetStart{}

	var b strings.Builder
	fmt.Fprintf(&b, "🔥 Exercise %d/%d: **%s** (", s.exercise+1, len(s.routine.Exercises), ex.Name())
	if s.countdown {
		fmt.Fprintf(&b, "%d sets × %d seconds", ex.TotalSets(), ex.TargetDuration())
	} else {
		fmt.Fprintf(&b, "%d sets × %d reps", ex.TotalSets(), ex.TargetReps())
	}
	if w := ex.WeightFor(0); w != nil && *w > 0 {
		fmt.Fprintf(&b, " @ %gkg", *w)
	}
	fmt.Fprintf(&b, ", %ds rest).\n", ex.Rest(e.cfg.DefaultRestSeconds))
	if s.countdown {
		b.WriteString("This is a timed exercise - I'll count down for you!\n")
		fmt.Fprintf(&b, "Say 'go' when you're ready for Set %d.", s.set+1)
	} else {
		b.WriteString("Tell me after each rep - I'll count down with you!\n")
		fmt.Fprintf(&b, "Ready for Set %d?", s.set+1)
	}
	e.say(b.String())
}

func (e *Engine) handleStart() {
	if r, ok := e.state.(*Resting); ok {
		r.h.stop()
		if r.BetweenExercises {
			e.announce()
			return
		}
		e.state = AwaitingSetStart{}
	}
	switch e.state.(type) {
	case AwaitingSetStart:
		if e.sess.countdown {
			e.startWorkTimer()
			return
		}
		e.state = InProgressReps{}
		e.say(msgRepPrompt)
	case InProgressReps:
		e.say(msgRepPrompt)
	}
}

func (e *Engine) handleReps(nums []int) {
	if e.sess.countdown {
		return
	}
	ex, _ := e.current()
	s := e.sess
	target := ex.TargetReps()
	if !countsAny(nums, s.rep, target) {
		return
	}
	switch r := e.state.(type) {
	case *Resting:
		if r.BetweenExercises {
			return
		}
		r.h.stop()
		e.state = InProgressReps{}
	case AwaitingSetStart:
		e.state = InProgressReps{}
	case InProgressReps:
	default:
		return
	}

	seen := make(map[int]bool, len(nums))
	var lines []string
	for _, n := range nums {
		if seen[n] {
			continue
		}
		seen[n] = true
		switch {
		case n > s.rep && n <= target:
			s.rep = n
			fallthrough
		case n == s.rep && n > 0:
			remaining := target - n
			lines = append(lines, fmt.Sprintf("%d ✓ %s", remaining, e.motivation(repClass(n, remaining, target))))
		}
		if s.rep >= target {
			break
		}
	}
	if len(lines) == 0 {
		return
	}
	if s.rep >= target {
		reps := s.rep
		e.logSet(&reps, nil)
		e.advance(lines)
		return
	}
	e.say(strings.Join(lines, "\n"))
}

// countsAny reports whether some number advances or repeats the rep count.
func countsAny(nums []int, rep, target int) bool {
	for _, n := range nums {
		if (n > rep && n <= target) || (n == rep && n > 0) {
			return true
		}
	}
	return false
}

func (e *Engine) handleDone() {
	s := e.sess
	switch st := e.state.(type) {
	case *InProgressTimer:
		st.h.stop()
		e.state = AwaitingSetStart{}
		if elapsed := st.Total - st.Remaining; elapsed > 0 {
			e.logSet(nil, &elapsed)
		}
		e.advance(nil)
	case AwaitingSetStart, InProgressReps:
		if s.rep > 0 {
			reps := s.rep
			e.logSet(&reps, nil)
		}
		e.advance(nil)
	case *Resting:
		st.h.stop()
		if st.BetweenExercises {
			e.announce()
			return
		}
		e.finishExercise(nil)
	}
}

func (e *Engine) repeat() {
	if e.lastMessage == "" {
		e.emit(RoleAI, msgNothingYet)
		return
	}
	e.emit(RoleAI, e.lastMessage)
}

// fallback answers unrecognized input by repeating the last message.
func (e *Engine) fallback() {
	if e.lastMessage == "" {
		e.emit(RoleAI, msgFallbackHelp)
		return
	}
	e.emit(RoleAI, e.lastMessage)
}

func (e *Engine) help() {
	ex, ok := e.current()
	if !ok {
		e.emit(RoleAI, msgFallbackHelp)
		return
	}
	notes := strings.TrimSpace(ex.Notes)
	if notes == "" {
		e.say(fmt.Sprintf("No instructions available for %s.", ex.Name()))
		return
	}
	e.say(fmt.Sprintf("📋 %s: %s", ex.Name(), notes))
}

func (e *Engine) skip() {
	e.state.timer().stop()
	s := e.sess
	e.log.Info("exercise skipped", "session", s.id, "exercise", s.exercise)
	s.exercise++
	s.set = 0
	s.rep = 0
	e.say(msgSkipping)
	if s.exercise >= len(s.routine.Exercises) {
		e.complete(context.Background())
		return
	}
	e.enterAnnouncing(s.exercise)
}

func (e *Engine) startWorkTimer() {
	ex, _ := e.current()
	dur := ex.TargetDuration()
	h := &handle{}
	e.state = &InProgressTimer{Total: dur, Remaining: dur, h: h}
	e.schedule(h)
	e.say(fmt.Sprintf("%d seconds starting NOW!", dur))
}

func (e *Engine) workTick(t *InProgressTimer) {
	t.Remaining--
	switch {
	case t.Remaining <= 0:
		e.state = AwaitingSetStart{}
		dur := t.Total
		e.logSet(nil, &dur)
		e.advance(nil)
		return
	case t.Remaining == t.Total/2:
		e.say(e.motivation(MotTimerHalfway))
	case t.Remaining == 30 && t.Total > 45:
		e.say(e.motivation(MotTimer30))
	case t.Remaining == 15:
		e.say(e.motivation(MotTimer15))
	}
	e.schedule(t.h)
}

func (e *Engine) startRest(seconds int, betweenExercises bool) {
	h := &handle{}
	e.state = &Resting{Total: seconds, Remaining: seconds, BetweenExercises: betweenExercises, h: h}
	e.schedule(h)
}

func (e *Engine) restTick(r *Resting) {
	r.Remaining--
	if r.Remaining <= 0 {
		if r.BetweenExercises {
			e.announce()
			return
		}
		e.state = AwaitingSetStart{}
		e.say(fmt.Sprintf("Rest over! Ready for Set %d?", e.sess.set+1))
		return
	}
	if r.Remaining%10 == 0 {
		e.say(fmt.Sprintf("%d seconds of rest left.", r.Remaining))
	}
	e.schedule(r.h)
}

// logSet appends the current set to the log and triggers a sync.
func (e *Engine) logSet(reps, duration *int) {
	ex, ok := e.current()
	if !ok {
		return
	}
	s := e.sess
	idx, ok := s.entries[s.exercise]
	if !ok {
		s.log.Exercises = append(s.log.Exercises, models.ExerciseEntry{
			TemplateID: ex.TemplateID,
			Title:      ex.Name(),
		})
		idx = len(s.log.Exercises) - 1
		s.entries[s.exercise] = idx
	}
	entry := &s.log.Exercises[idx]
	entry.Sets = append(entry.Sets, models.SetEntry{
		Index:           len(entry.Sets),
		Type:            models.SetTypeNormal,
		WeightKg:        ex.WeightFor(s.set),
		Reps:            reps,
		DurationSeconds: duration,
	})

	mode := "reps"
	if duration != nil {
		mode = "timed"
	}
	metrics.SetsLogged.WithLabelValues(mode).Inc()
	e.log.Info("set logged", "session", s.id, "exercise", ex.Name(), "set", s.set+1, "mode", mode)

	if e.sync != nil {
		snapshot := s.log.Clone()
		e.queue(func() { e.sync.Trigger(snapshot) })
	}
}

// advance moves past the current set. prefix lines open the same message.
func (e *Engine) advance(prefix []string) {
	s := e.sess
	ex, _ := e.current()
	s.set++
	s.rep = 0

	lines := append(prefix, e.motivation(MotSetComplete))
	if s.set >= ex.TotalSets() {
		e.finishExercise(lines)
		return
	}
	rest := ex.Rest(e.cfg.DefaultRestSeconds)
	if rest <= 0 {
		e.state = AwaitingSetStart{}
		lines = append(lines, fmt.Sprintf("Ready for Set %d?", s.set+1))
		e.say(strings.Join(lines, "\n"))
		return
	}
	lines = append(lines, fmt.Sprintf("Rest up: %d seconds before Set %d.", rest, s.set+1))
	e.say(strings.Join(lines, "\n"))
	e.startRest(rest, false)
}

func (e *Engine) finishExercise(prefix []string) {
	s := e.sess
	lines := append(prefix, e.motivation(MotExerciseComplete))
	s.exercise++
	s.set = 0
	s.rep = 0

	if s.exercise >= len(s.routine.Exercises) {
		e.say(strings.Join(lines, "\n"))
		e.complete(context.Background())
		return
	}
	next := s.routine.Exercises[s.exercise]
	rest := e.cfg.ExerciseRestSeconds
	if rest <= 0 {
		e.say(strings.Join(lines, "\n"))
		e.enterAnnouncing(s.exercise)
		return
	}
	lines = append(lines, fmt.Sprintf("Rest %d seconds. Up next: %s.", rest, next.Name()))
	e.say(strings.Join(lines, "\n"))
	e.startRest(rest, true)
}

func (e *Engine) complete(ctx context.Context) {
	e.state.timer().stop()
	s := e.sess
	now := e.clock.Now()
	s.endedAt = now
	s.log.EndTime = now
	e.state = WorkoutComplete{}
	metrics.ActiveSessions.Dec()

	final := s.log.Clone()
	sum := e.summaryLocked()
	e.log.Info("workout complete", "session", s.id, "sets", sum.TotalSets, "minutes", sum.DurationMinutes)

	hooks, syncer, timeout := e.hooks, e.sync, e.cfg.FinishTimeout
	e.queue(func() {
		if hooks.StopVoice != nil {
			hooks.StopVoice()
		}
		if syncer != nil {
			fctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			syncer.Finish(fctx, final)
		}
	})
	e.say(fmt.Sprintf("🎉 **Workout Complete!**\n\n⏱️ Duration: %d minutes\n🏋️ Exercises: %d\n📊 Total Sets: %d\n\nGreat job! Your workout has been logged.",
		sum.DurationMinutes, sum.Exercises, sum.TotalSets))
	if hooks.OnWorkoutComplete != nil {
		e.queue(func() { hooks.OnWorkoutComplete(final) })
	}
}

func (e *Engine) summaryLocked() models.Summary {
	s := e.sess
	end := s.endedAt
	if end.IsZero() {
		end = e.clock.Now()
	}
	return models.Summary{
		Title:           s.log.Title,
		DurationMinutes: int(math.Round(end.Sub(s.startedAt).Minutes())),
		Exercises:       len(s.log.Exercises),
		TotalSets:       s.log.TotalSets(),
		TotalReps:       s.log.TotalReps(),
	}
}

func (e *Engine) motivation(class string) string {
	pool := Motivations[class]
	if len(pool) == 0 {
		return ""
	}
	return pool[e.pick(len(pool))]
}

func (e *Engine) schedule(h *handle) {
	h.t = e.clock.AfterFunc(time.Second, func() { e.fire(h) })
}

// fire runs a timer callback unless its handle has been superseded.
func (e *Engine) fire(h *handle) {
	_ = e.do(func() error {
		if e.state.timer() != h {
			return nil
		}
		switch s := e.state.(type) {
		case *Announcing:
			e.announce()
		case *InProgressTimer:
			e.workTick(s)
		case *Resting:
			e.restTick(s)
		}
		return nil
	})
}

// --- outbox ---

func (e *Engine) say(text string) {
	e.lastMessage = text
	e.emit(RoleAI, text)
}

func (e *Engine) emit(role Role, text string) {
	if role == RoleAI && e.replies != nil {
		*e.replies = append(*e.replies, text)
	}
	e.queue(func() {
		e.subMu.Lock()
		sinks := make([]MessageSink, 0, len(e.subs))
		for id := 0; id < e.nextSub; id++ {
			if s, ok := e.subs[id]; ok {
				sinks = append(sinks, s)
			}
		}
		e.subMu.Unlock()
		for _, s := range sinks {
			s.OnMessage(role, text)
		}
	})
}

func (e *Engine) queue(fn func()) {
	e.outbox = append(e.outbox, fn)
}

// do runs fn under the engine mutex, then delivers queued side effects in
// order. A nested call made by a side effect only enqueues; the outermost
// caller drains.
func (e *Engine) do(fn func() error) error {
	e.mu.Lock()
	err := fn()
	if e.draining {
		e.mu.Unlock()
		return err
	}
	e.draining = true
	for len(e.outbox) > 0 {
		next := e.outbox[0]
		e.outbox = e.outbox[1:]
		e.mu.Unlock()
		next()
		e.mu.Lock()
	}
	e.draining = false
	e.mu.Unlock()
	return err
}
