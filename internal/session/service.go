// Package session owns one coaching engine per user and connects it to the
// routine provider, the remote syncer, the voice bridges and server-side
// history.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/journal"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/normalize"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/remotesync"
	"github.com/claude/repcoach/internal/vault"
)

// ErrNoRoutine is returned when StartWorkout gets neither an ID nor a routine.
var ErrNoRoutine = errors.New("routine_id is required")

// Routines is where sessions get their routines.
type Routines interface {
	ListRoutines(ctx context.Context, page, pageSize int) (provider.RoutinePage, error)
	GetRoutine(ctx context.Context, id string) (models.Routine, error)
}

// Store is the server-side persistence a session uses. It may be nil.
type Store interface {
	ListPhonetics(ctx context.Context, login string) ([]models.PhoneticMapping, error)
	SaveWorkout(ctx context.Context, row models.WorkoutHistoryRow, log models.WorkoutLog) (models.WorkoutHistoryRow, error)
}

// Service hands out per-user sessions.
type Service struct {
	cfg        coach.Config
	routines   Routines
	remote     remotesync.Remote
	store      Store
	journal    *journal.Journal
	log        *slog.Logger
	finishWait time.Duration
	onEnd      func(s *Session)
	engineOp   []coach.Option

	mu    sync.Mutex
	users map[string]*Session
}

// Option configures a Service.
type Option func(*Service)

// WithRemote syncs workouts to r. Without it logs are only journaled.
func WithRemote(r remotesync.Remote) Option { return func(s *Service) { s.remote = r } }

func WithStore(st Store) Option { return func(s *Service) { s.store = st } }
func WithJournal(j *journal.Journal) Option { return func(s *Service) { s.journal = j } }
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// WithFinishWait bounds how long completion waits behind an in-flight
// remote call before leaving the final workout queued.
func WithFinishWait(limit time.Duration) Option {
	return func(s *Service) { s.finishWait = limit }
}

// WithEndHandler replaces what happens when the user says "end workout".
// The default completes the workout.
func WithEndHandler(fn func(s *Session)) Option { return func(s *Service) { s.onEnd = fn } }

// WithEngineOptions passes extra options to every engine, e.g. a clock.
func WithEngineOptions(opts ...coach.Option) Option {
	return func(s *Service) { s.engineOp = append(s.engineOp, opts...) }
}

func NewService(cfg coach.Config, routines Routines, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		routines:   routines,
		log:        slog.Default(),
		finishWait: 5 * time.Second,
		users:      make(map[string]*Session),
	}
	for _, o := range opts {
		o(s)
	}
	if s.onEnd == nil {
		s.onEnd = func(sess *Session) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FinishTimeout+s.finishWait)
				defer cancel()
				if _, err := sess.Complete(ctx); err != nil && !errors.Is(err, coach.ErrNoActiveSession) {
					s.log.Warn("ending workout", "user", sess.login, "error", err)
				}
			}()
		}
	}
	return s
}

// For returns login's session, creating it on first use.
func (s *Service) For(login string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.users[login]; ok {
		return sess
	}
	sess := s.newSession(login)
	s.users[login] = sess
	return sess
}

// ListRoutines lists routines with login's credentials.
func (s *Service) ListRoutines(ctx context.Context, login string, page, pageSize int) (provider.RoutinePage, error) {
	return s.routines.ListRoutines(vault.WithScope(ctx, login), page, pageSize)
}

// Recover resends journaled workouts left unsynced by an earlier run.
func (s *Service) Recover(ctx context.Context) (int, error) {
	syncer := remotesync.New(s.remote,
		remotesync.WithJournal(s.journal),
		remotesync.WithLogger(s.log))
	return syncer.Recover(ctx)
}

// CompleteAll ends every active session, for shutdown.
func (s *Service) CompleteAll(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.users))
	for _, sess := range s.users {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		if _, err := sess.Complete(ctx); err != nil && !errors.Is(err, coach.ErrNoActiveSession) {
			s.log.Warn("completing workout on shutdown", "user", sess.login, "error", err)
		}
	}
}

func (s *Service) newSession(login string) *Session {
	sess := &Session{
		login:  login,
		svc:    s,
		voices: make(map[int]func()),
	}
	var remote remotesync.Remote
	if s.remote != nil {
		remote = scopedRemote{remote: s.remote, scope: login}
	}
	sess.syncer = remotesync.New(remote,
		remotesync.WithJournal(s.journal),
		remotesync.WithLogger(s.log.With("user", login)),
		remotesync.WithFinishWait(s.finishWait),
	)
	opts := []coach.Option{
		coach.WithSyncer(sess.syncer),
		coach.WithLogger(s.log.With("user", login)),
		coach.WithHooks(coach.Hooks{
			OnWorkoutComplete: sess.saveHistory,
			OnWorkoutEnd:      func() { s.onEnd(sess) },
			StopVoice:         sess.stopVoices,
		}),
	}
	sess.engine = coach.New(s.cfg, append(opts, s.engineOp...)...)
	return sess
}

// scopedRemote sends workouts with the owner's credentials.
type scopedRemote struct {
	remote remotesync.Remote
	scope  string
}

func (r scopedRemote) CreateWorkout(ctx context.Context, log models.WorkoutLog) (string, error) {
	return r.remote.CreateWorkout(vault.WithScope(ctx, r.scope), log)
}

func (r scopedRemote) UpdateWorkout(ctx context.Context, id string, log models.WorkoutLog) error {
	return r.remote.UpdateWorkout(vault.WithScope(ctx, r.scope), id, log)
}

// Session is one user's coaching engine plus its collaborators.
type Session struct {
	login  string
	svc    *Service
	engine *coach.Engine
	syncer *remotesync.Syncer

	mu        sync.Mutex
	routineID string
	voices    map[int]func()
	nextVoice int
}

// Login returns the owner.
func (s *Session) Login() string { return s.login }

// Engine exposes the underlying state machine.
func (s *Session) Engine() *coach.Engine { return s.engine }

// StartWorkout fetches routineID from the provider and starts it.
func (s *Session) StartWorkout(ctx context.Context, routineID string) (coach.Status, error) {
	if routineID == "" {
		return coach.Status{}, ErrNoRoutine
	}
	if s.engine.Active() {
		return coach.Status{}, coach.ErrSessionActive
	}
	routine, err := s.svc.routines.GetRoutine(vault.WithScope(ctx, s.login), routineID)
	if err != nil {
		return coach.Status{}, fmt.Errorf("fetching routine: %w", err)
	}
	return s.StartRoutine(ctx, routine)
}

// StartRoutine starts a routine the caller already has.
func (s *Session) StartRoutine(ctx context.Context, routine models.Routine) (coach.Status, error) {
	if err := s.RefreshPhonetics(ctx); err != nil {
		s.svc.log.Warn("loading phonetic mappings", "user", s.login, "error", err)
	}
	if err := s.engine.Start(routine); err != nil {
		return coach.Status{}, err
	}
	s.mu.Lock()
	s.routineID = routine.ID
	s.mu.Unlock()
	return s.engine.Snapshot(), nil
}

// RefreshPhonetics rebuilds the normalizer from the user's mappings.
func (s *Session) RefreshPhonetics(ctx context.Context) error {
	if s.svc.store == nil {
		return nil
	}
	mappings, err := s.svc.store.ListPhonetics(ctx, s.login)
	if err != nil {
		return err
	}
	s.engine.SetNormalizer(normalize.New(mappings...))
	return nil
}

func (s *Session) ProcessInput(raw string) error { return s.engine.ProcessInput(raw) }

// Reply is what the coach said in response to one input.
type Reply struct {
	Replies []string     `json:"replies"`
	Status  coach.Status `json:"status"`
}

// Respond processes raw and collects the coach messages it produced. Timed
// messages that fire later reach subscribers only.
func (s *Session) Respond(raw string) (Reply, error) {
	replies, err := s.engine.Respond(raw)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Replies: replies, Status: s.engine.Snapshot()}, nil
}

func (s *Session) Subscribe(sink coach.MessageSink) func() { return s.engine.Subscribe(sink) }

func (s *Session) Status() coach.Status { return s.engine.Snapshot() }

// Complete ends the workout and returns its summary.
func (s *Session) Complete(ctx context.Context) (models.Summary, error) {
	if err := s.engine.CompleteWorkout(ctx); err != nil {
		return models.Summary{}, err
	}
	sum, _ := s.engine.Summary()
	return sum, nil
}

// RemoteID is the tracker's id for the current workout, if created.
func (s *Session) RemoteID() string { return s.syncer.RemoteID() }

// AttachVoice registers a voice driver's stop function.
func (s *Session) AttachVoice(stop func()) (detach func()) {
	s.mu.Lock()
	id := s.nextVoice
	s.nextVoice++
	s.voices[id] = stop
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.voices, id)
		s.mu.Unlock()
	}
}

func (s *Session) stopVoices() {
	s.mu.Lock()
	stops := make([]func(), 0, len(s.voices))
	for _, fn := range s.voices {
		stops = append(stops, fn)
	}
	s.mu.Unlock()
	for _, fn := range stops {
		fn()
	}
}

func (s *Session) saveHistory(log models.WorkoutLog) {
	if s.svc.store == nil {
		return
	}
	s.mu.Lock()
	routineID := s.routineID
	s.mu.Unlock()

	row := models.WorkoutHistoryRow{
		UserLogin: s.login,
		RoutineID: routineID,
		RemoteID:  s.syncer.RemoteID(),
		Title:     log.Title,
		StartTime: log.StartTime,
		EndTime:   log.EndTime,
		TotalSets: log.TotalSets(),
		TotalReps: log.TotalReps(),
		Exercises: len(log.Exercises),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.svc.store.SaveWorkout(ctx, row, log); err != nil {
		s.svc.log.Error("saving workout history", "user", s.login, "error", err)
	}
}
