// Package remotesync mirrors the in-progress workout log to the remote
// tracker. The first sync creates the remote workout and every later sync
// replaces it with the full snapshot.
package remotesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repcoach/internal/journal"
	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/models"
	"github.com/google/uuid"
)

// ErrSuperseded is returned when a result arrives after Reset.
var ErrSuperseded = errors.New("sync result belongs to a previous session")

// Remote is the subset of a provider the syncer needs.
type Remote interface {
	CreateWorkout(ctx context.Context, log models.WorkoutLog) (string, error)
	UpdateWorkout(ctx context.Context, id string, log models.WorkoutLog) error
}

// Syncer keeps at most one remote record per session. Remote calls are
// sent one at a time and always carry the newest snapshot; a snapshot
// offered while a call is in flight is sent by that call's owner once it
// returns.
type Syncer struct {
	remote  Remote
	journal *journal.Journal
	log     *slog.Logger
	timeout time.Duration
	limit   time.Duration
	wg      sync.WaitGroup
	slot    chan struct{}

	mu       sync.Mutex
	key      string
	remoteID string
	gen      uint64
	latest   models.WorkoutLog
	seq      uint64 // last offered snapshot
	sent     uint64 // last snapshot the remote accepted
	final    uint64 // seq of the final snapshot, 0 until Finish
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithJournal mirrors every snapshot to j before it is sent.
func WithJournal(j *journal.Journal) Option { return func(s *Syncer) { s.journal = j } }

func WithLogger(l *slog.Logger) Option { return func(s *Syncer) { s.log = l } }

// WithTimeout bounds each background sync started by Trigger.
func WithTimeout(d time.Duration) Option { return func(s *Syncer) { s.timeout = d } }

// WithFinishWait bounds how long Finish waits behind an in-flight remote
// call. Past it the final snapshot stays queued for that call's owner.
func WithFinishWait(limit time.Duration) Option {
	return func(s *Syncer) { s.limit = limit }
}

// New creates a syncer. remote may be nil, in which case snapshots are only
// journaled.
func New(remote Remote, opts ...Option) *Syncer {
	s := &Syncer{
		remote:  remote,
		log:     slog.Default(),
		timeout: 30 * time.Second,
		limit:   5 * time.Second,
		slot:    make(chan struct{}, 1),
		key:     uuid.NewString(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reset forgets the remote record of the previous session. Calls still in
// flight for that session are discarded when they return.
func (s *Syncer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.key = uuid.NewString()
	s.remoteID = ""
	s.latest = models.WorkoutLog{}
	s.seq, s.sent, s.final = 0, 0, 0
}

// RemoteID returns the remote record id of the current session, if any.
func (s *Syncer) RemoteID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteID
}

// Key returns the journal key of the current session.
func (s *Syncer) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Trigger queues log and sends it in the background. Snapshots keep the
// order of Trigger calls.
func (s *Syncer) Trigger(log models.WorkoutLog) {
	s.offer(log, false)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.flush(ctx, 0); err != nil {
			s.log.Error("workout sync failed", "error", err)
		}
	}()
}

// Sync mirrors log to the journal and the remote. Failures are logged and
// counted; the next snapshot retries. If another call is in flight Sync
// returns at once and that call sends log.
func (s *Syncer) Sync(ctx context.Context, log models.WorkoutLog) {
	s.offer(log, false)
	if _, err := s.flush(ctx, 0); err != nil {
		s.log.Error("workout sync failed", "error", err)
	}
}

// Wait blocks until every background sync has returned.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

// Finish queues the final log and sends it, waiting up to the finish limit
// behind an in-flight call. The journal entry is closed only once the
// remote accepted the final log.
func (s *Syncer) Finish(ctx context.Context, log models.WorkoutLog) {
	s.offer(log, true)
	ran, err := s.flush(ctx, s.limit)
	switch {
	case err != nil:
		s.log.Error("final workout sync failed", "error", err)
	case !ran:
		s.log.Warn("remote call still in flight, final workout queued behind it")
	}
}

func (s *Syncer) offer(log models.WorkoutLog, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.latest = log
	if final {
		s.final = s.seq
	}
	if s.journal != nil {
		if err := s.journal.Save(s.key, log); err != nil {
			s.log.Warn("journaling workout", "key", s.key, "error", err)
		}
	}
}

// acquire takes the send slot. A zero wait only tries once.
func (s *Syncer) acquire(ctx context.Context, wait time.Duration) bool {
	if wait <= 0 {
		select {
		case s.slot <- struct{}{}:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case s.slot <- struct{}{}:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// flush sends queued snapshots while it holds the slot. It reports false
// when another caller owned the slot for the whole wait.
func (s *Syncer) flush(ctx context.Context, wait time.Duration) (bool, error) {
	if !s.acquire(ctx, wait) {
		return false, nil
	}
	for {
		err := s.drain(ctx)
		<-s.slot
		if err != nil && !errors.Is(err, ErrSuperseded) {
			return true, err
		}
		// A snapshot offered while we released is ours to send unless
		// someone else took the slot.
		if !s.dirty() || !s.acquire(ctx, 0) {
			return true, nil
		}
	}
}

func (s *Syncer) dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent < s.seq
}

// drain sends the newest snapshot until the remote has seen it. The caller
// holds the slot.
func (s *Syncer) drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.sent >= s.seq {
			s.mu.Unlock()
			return nil
		}
		gen, key, prev, seq, log := s.gen, s.key, s.remoteID, s.seq, s.latest
		s.mu.Unlock()

		id, err := s.send(ctx, prev, log)

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			if err == nil && prev == "" && id != "" {
				s.log.Warn("discarding remote workout created for a previous session", "remote_id", id)
			}
			return ErrSuperseded
		}
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.remoteID = id
		s.sent = seq
		done := s.final != 0 && seq >= s.final
		s.mu.Unlock()

		if prev == "" && id != "" {
			s.log.Info("remote workout created", "remote_id", id)
			if s.journal != nil {
				if err := s.journal.SetRemoteID(key, id); err != nil {
					s.log.Warn("journaling remote id", "key", key, "error", err)
				}
			}
		}
		if done {
			if s.journal != nil {
				if err := s.journal.MarkComplete(key); err != nil {
					s.log.Warn("closing journal entry", "key", key, "error", err)
				}
			}
			s.log.Info("workout synced", "remote_id", id)
		}
	}
}

// send creates the remote record on the first non-empty snapshot and
// replaces it afterwards. It returns the record id, empty if none exists yet.
func (s *Syncer) send(ctx context.Context, id string, log models.WorkoutLog) (string, error) {
	if s.remote == nil {
		return id, nil
	}
	if id == "" {
		if len(log.Exercises) == 0 {
			return "", nil
		}
		created, err := s.remote.CreateWorkout(ctx, log)
		if err != nil {
			metrics.SyncRequests.WithLabelValues("create", "error").Inc()
			return "", fmt.Errorf("creating workout: %w", err)
		}
		metrics.SyncRequests.WithLabelValues("create", "ok").Inc()
		return created, nil
	}
	if err := s.remote.UpdateWorkout(ctx, id, log); err != nil {
		metrics.SyncRequests.WithLabelValues("update", "error").Inc()
		return id, fmt.Errorf("updating workout %s: %w", id, err)
	}
	metrics.SyncRequests.WithLabelValues("update", "ok").Inc()
	return id, nil
}

// Recover sends journaled sessions that never finished syncing, other than
// the current one. It returns how many were completed.
func (s *Syncer) Recover(ctx context.Context) (int, error) {
	if s.journal == nil || s.remote == nil {
		return 0, nil
	}
	pending, err := s.journal.Pending()
	if err != nil {
		return 0, err
	}
	current := s.Key()

	done := 0
	for _, e := range pending {
		if e.Key == current || len(e.Log.Exercises) == 0 {
			continue
		}
		if e.RemoteID == "" {
			id, err := s.remote.CreateWorkout(ctx, e.Log)
			if err != nil {
				s.log.Warn("recovering journaled workout", "key", e.Key, "error", err)
				continue
			}
			if err := s.journal.SetRemoteID(e.Key, id); err != nil {
				s.log.Warn("journaling remote id", "key", e.Key, "error", err)
			}
		} else if err := s.remote.UpdateWorkout(ctx, e.RemoteID, e.Log); err != nil {
			s.log.Warn("recovering journaled workout", "key", e.Key, "error", err)
			continue
		}
		if err := s.journal.MarkComplete(e.Key); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}
