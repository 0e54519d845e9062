package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/vault"
)

type fakeRoutines struct {
	mu       sync.Mutex
	routines map[string]models.Routine
	scopes   []string
}

func (f *fakeRoutines) ListRoutines(ctx context.Context, page, pageSize int) (provider.RoutinePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, vault.ScopeFrom(ctx, ""))
	var out []models.Routine
	for _, r := range f.routines {
		out = append(out, r)
	}
	return provider.RoutinePage{Page: page, PageCount: 1, Routines: out}, nil
}

func (f *fakeRoutines) GetRoutine(ctx context.Context, id string) (models.Routine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, vault.ScopeFrom(ctx, ""))
	r, ok := f.routines[id]
	if !ok {
		return models.Routine{}, provider.ErrNotFound
	}
	return r, nil
}

type fakeRemote struct {
	mu      sync.Mutex
	creates int
	updates int
	scopes  []string
}

func (f *fakeRemote) CreateWorkout(ctx context.Context, log models.WorkoutLog) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.scopes = append(f.scopes, vault.ScopeFrom(ctx, ""))
	return "w" + strconv.Itoa(f.creates), nil
}

func (f *fakeRemote) UpdateWorkout(ctx context.Context, id string, log models.WorkoutLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.scopes = append(f.scopes, vault.ScopeFrom(ctx, ""))
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	mappings []models.PhoneticMapping
	saved    []models.WorkoutHistoryRow
}

func (f *fakeStore) ListPhonetics(ctx context.Context, login string) ([]models.PhoneticMapping, error) {
	return f.mappings, nil
}

func (f *fakeStore) SaveWorkout(ctx context.Context, row models.WorkoutHistoryRow, log models.WorkoutLog) (models.WorkoutHistoryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, row)
	return row, nil
}

func intp(n int) *int { return &n }

func squats() models.Routine {
	return models.Routine{
		ID:    "r1",
		Title: "Legs",
		Exercises: []models.Exercise{{
			Title:      "Squat",
			TemplateID: "T1",
			Sets:       []models.RoutineSet{{Type: "normal", Reps: intp(2)}},
		}},
	}
}

type fixture struct {
	svc      *Service
	routines *fakeRoutines
	remote   *fakeRemote
	store    *fakeStore
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	f := fixture{
		routines: &fakeRoutines{routines: map[string]models.Routine{"r1": squats()}},
		remote:   &fakeRemote{},
		store:    &fakeStore{},
	}
	cfg := coach.Config{AnnounceDelay: time.Hour, FinishTimeout: time.Second}
	base := []Option{
		WithRemote(f.remote),
		WithStore(f.store),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithFinishWait(time.Second),
	}
	f.svc = NewService(cfg, f.routines, append(base, opts...)...)
	return f
}

// TestSessionsPerUser verifies each login gets its own stable session.
func TestSessionsPerUser(t *testing.T) {
	f := newFixture(t)
	a, b := f.svc.For("alice"), f.svc.For("bob")
	if a == b {
		t.Fatal("alice and bob share a session")
	}
	if f.svc.For("alice") != a {
		t.Error("For(alice) returned a new session")
	}
	if a.Login() != "alice" {
		t.Errorf("Login() = %q", a.Login())
	}
}

// TestStartWorkoutUsesOwnerScope verifies routines are fetched with the
// user's credential scope.
func TestStartWorkoutUsesOwnerScope(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.For("alice").StartWorkout(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if st.RoutineID != "r1" || st.State != "announcing" {
		t.Errorf("status = %+v", st)
	}
	if len(f.routines.scopes) != 1 || f.routines.scopes[0] != "alice" {
		t.Errorf("scopes = %v, want [alice]", f.routines.scopes)
	}
}

// TestStartWorkoutErrors verifies missing IDs, unknown routines and a
// second start are rejected.
func TestStartWorkoutErrors(t *testing.T) {
	f := newFixture(t)
	sess := f.svc.For("alice")
	ctx := context.Background()

	if _, err := sess.StartWorkout(ctx, ""); !errors.Is(err, ErrNoRoutine) {
		t.Errorf("empty id: %v, want ErrNoRoutine", err)
	}
	if _, err := sess.StartWorkout(ctx, "nope"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("unknown id: %v, want provider.ErrNotFound", err)
	}
	if _, err := sess.StartWorkout(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.StartWorkout(ctx, "r1"); !errors.Is(err, coach.ErrSessionActive) {
		t.Errorf("second start: %v, want ErrSessionActive", err)
	}
}

// TestWorkoutSyncsAndSavesHistory verifies a finished workout is created
// remotely once, with the owner's scope, and recorded in history.
func TestWorkoutSyncsAndSavesHistory(t *testing.T) {
	f := newFixture(t)
	sess := f.svc.For("alice")
	stopped := 0
	sess.AttachVoice(func() { stopped++ })

	if _, err := sess.StartWorkout(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	for _, in := range []string{"ready", "one two"} {
		if err := sess.ProcessInput(in); err != nil {
			t.Fatalf("ProcessInput(%q): %v", in, err)
		}
	}

	if st := sess.Status(); st.State != "workout_complete" {
		t.Fatalf("state = %q, want workout_complete", st.State)
	}
	if stopped != 1 {
		t.Errorf("voice stopped %d times, want 1", stopped)
	}

	f.remote.mu.Lock()
	creates, scopes := f.remote.creates, append([]string(nil), f.remote.scopes...)
	f.remote.mu.Unlock()
	if creates != 1 {
		t.Errorf("creates = %d, want 1", creates)
	}
	for _, s := range scopes {
		if s != "alice" {
			t.Errorf("remote call scope = %q, want alice", s)
		}
	}

	if len(f.store.saved) != 1 {
		t.Fatalf("saved %d history rows, want 1", len(f.store.saved))
	}
	row := f.store.saved[0]
	if row.UserLogin != "alice" || row.RoutineID != "r1" || row.RemoteID != "w1" {
		t.Errorf("row = %+v", row)
	}
	if row.TotalSets != 1 || row.TotalReps != 2 || row.Exercises != 1 {
		t.Errorf("row totals = %d sets, %d reps, %d exercises", row.TotalSets, row.TotalReps, row.Exercises)
	}
}

// TestPhoneticMappingsApplied verifies user mappings reach the normalizer
// when a workout starts.
func TestPhoneticMappingsApplied(t *testing.T) {
	f := newFixture(t)
	f.store.mappings = []models.PhoneticMapping{{Canonical: "2", Alternative: "deuce", Category: models.CategoryNumber}}
	sess := f.svc.For("alice")
	sess.StartWorkout(context.Background(), "r1")
	sess.ProcessInput("go")
	sess.ProcessInput("deuce")

	if st := sess.Status(); st.State != "workout_complete" {
		t.Errorf("state = %q, want workout_complete", st.State)
	}
}

// TestEndWorkoutCompletesByDefault verifies "end workout" finishes the
// session without a custom handler.
func TestEndWorkoutCompletesByDefault(t *testing.T) {
	f := newFixture(t)
	sess := f.svc.For("alice")
	sess.StartWorkout(context.Background(), "r1")
	sess.ProcessInput("end workout")

	deadline := time.Now().Add(2 * time.Second)
	for sess.Status().State != "workout_complete" {
		if time.Now().After(deadline) {
			t.Fatalf("state = %q, want workout_complete", sess.Status().State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestEndHandlerOverride verifies a custom handler replaces auto-completion.
func TestEndHandlerOverride(t *testing.T) {
	asked := make(chan string, 1)
	f := newFixture(t, WithEndHandler(func(s *Session) { asked <- s.Login() }))
	sess := f.svc.For("alice")
	sess.StartWorkout(context.Background(), "r1")
	sess.ProcessInput("stop workout")

	select {
	case who := <-asked:
		if who != "alice" {
			t.Errorf("handler got %q", who)
		}
	case <-time.After(time.Second):
		t.Fatal("end handler not called")
	}
	if !sess.Engine().Active() {
		t.Error("workout ended without confirmation")
	}
}

// TestCompleteTwice verifies the second completion reports no session.
func TestCompleteTwice(t *testing.T) {
	f := newFixture(t)
	sess := f.svc.For("alice")
	sess.StartWorkout(context.Background(), "r1")
	sum, err := sess.Complete(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Title != "Legs" {
		t.Errorf("summary title = %q", sum.Title)
	}
	if _, err := sess.Complete(context.Background()); !errors.Is(err, coach.ErrNoActiveSession) {
		t.Errorf("second Complete = %v, want ErrNoActiveSession", err)
	}
}

// TestDetachedVoiceNotStopped verifies detached drivers are left alone.
func TestDetachedVoiceNotStopped(t *testing.T) {
	f := newFixture(t)
	sess := f.svc.For("alice")
	stopped := 0
	detach := sess.AttachVoice(func() { stopped++ })
	detach()
	sess.StartWorkout(context.Background(), "r1")
	sess.Complete(context.Background())
	if stopped != 0 {
		t.Errorf("stopped = %d, want 0", stopped)
	}
}

// TestListRoutinesScoped verifies listing carries the user's scope.
func TestListRoutinesScoped(t *testing.T) {
	f := newFixture(t)
	page, err := f.svc.ListRoutines(context.Background(), "bob", 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Routines) != 1 {
		t.Errorf("routines = %d, want 1", len(page.Routines))
	}
	if f.routines.scopes[0] != "bob" {
		t.Errorf("scope = %q, want bob", f.routines.scopes[0])
	}
}

// TestRespondCollectsReplies verifies the coach's answers to one input are
// returned with the new status.
func TestRespondCollectsReplies(t *testing.T) {
	f := newFixture(t)
	sess := f.svc.For("alice")
	if _, err := sess.Respond("ready"); !errors.Is(err, coach.ErrNoActiveSession) {
		t.Errorf("Respond before start = %v, want ErrNoActiveSession", err)
	}
	sess.StartWorkout(context.Background(), "r1")
	sess.ProcessInput("ready")

	reply, err := sess.Respond("one two")
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Replies) == 0 {
		t.Error("no replies collected")
	}
	if reply.Status.State != "workout_complete" {
		t.Errorf("state = %q, want workout_complete", reply.Status.State)
	}
}
