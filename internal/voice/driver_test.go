package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/normalize"
	"github.com/claude/repcoach/internal/selfhear"
)

type fakePlatform struct {
	mu       sync.Mutex
	starts   int
	stops    int
	cancels  int
	spoken   []string
	opts     []SpeakOptions
	startErr error
	events   chan Event
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{events: make(chan Event, 16)}
}

func (f *fakePlatform) StartRecognition() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakePlatform) StopRecognition() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakePlatform) Speak(text string, opts SpeakOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	f.opts = append(f.opts, opts)
	return nil
}

func (f *fakePlatform) CancelSpeech() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakePlatform) Events() <-chan Event { return f.events }

func (f *fakePlatform) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type delayed struct {
	d time.Duration
	f func()
}

type testDriver struct {
	*Driver
	p           *fakePlatform
	now         time.Time
	pending     []delayed
	transcripts []string
	errs        []error
	listening   []bool
}

func newTestDriver(t *testing.T) *testDriver {
	t.Helper()
	td := &testDriver{p: newFakePlatform(), now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	filter := selfhear.New(
		selfhear.WithClock(func() time.Time { return td.now }),
		selfhear.WithCanon(normalize.Digit),
	)
	d, err := New(td.p,
		WithFilter(filter),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAfterFunc(func(d time.Duration, f func()) { td.pending = append(td.pending, delayed{d, f}) }),
		OnTranscript(func(s string) { td.transcripts = append(td.transcripts, s) }),
		OnError(func(err error) { td.errs = append(td.errs, err) }),
		OnListeningChange(func(on bool) { td.listening = append(td.listening, on) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	td.Driver = d
	return td
}

// runPending fires scheduled restarts.
func (td *testDriver) runPending() {
	p := td.pending
	td.pending = nil
	for _, x := range p {
		x.f()
	}
}

// TestNewWithoutPlatform verifies a missing platform is reported as
// unavailable.
func TestNewWithoutPlatform(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("New(nil) = %v, want ErrUnavailable", err)
	}
}

// TestContinuousRestart verifies recognition restarts 100ms after it ends
// in continuous mode and not after StopListening.
func TestContinuousRestart(t *testing.T) {
	td := newTestDriver(t)
	if err := td.StartContinuousListening(); err != nil {
		t.Fatal(err)
	}
	td.handle(Event{Kind: EventRecognitionStart})
	td.handle(Event{Kind: EventRecognitionEnd})
	if len(td.pending) != 1 || td.pending[0].d != 100*time.Millisecond {
		t.Fatalf("pending = %+v, want one 100ms restart", td.pending)
	}
	td.runPending()
	if got := td.p.startCount(); got != 2 {
		t.Errorf("starts = %d, want 2", got)
	}

	td.handle(Event{Kind: EventRecognitionStart})
	if err := td.StopListening(); err != nil {
		t.Fatal(err)
	}
	td.handle(Event{Kind: EventRecognitionEnd})
	td.runPending()
	if got := td.p.startCount(); got != 2 {
		t.Errorf("starts after stop = %d, want 2", got)
	}
	if last := td.listening[len(td.listening)-1]; last {
		t.Error("last listening change = true, want false")
	}
}

// TestNoSpeechIgnoredInContinuousMode verifies no-speech errors neither
// surface nor leave continuous mode.
func TestNoSpeechIgnoredInContinuousMode(t *testing.T) {
	td := newTestDriver(t)
	td.StartContinuousListening()
	td.handle(Event{Kind: EventRecognitionStart})
	td.handle(Event{Kind: EventRecognitionError, Code: CodeNoSpeech})
	if len(td.errs) != 0 {
		t.Errorf("errors = %v, want none", td.errs)
	}
	if !td.Continuous() {
		t.Error("left continuous mode")
	}
}

// TestPermissionDenied verifies not-allowed surfaces ErrPermissionDenied
// and disables continuous listening.
func TestPermissionDenied(t *testing.T) {
	td := newTestDriver(t)
	td.StartContinuousListening()
	td.handle(Event{Kind: EventRecognitionError, Code: CodeNotAllowed})
	td.handle(Event{Kind: EventRecognitionEnd})
	td.runPending()

	if len(td.errs) != 1 || !errors.Is(td.errs[0], ErrPermissionDenied) {
		t.Fatalf("errors = %v, want ErrPermissionDenied", td.errs)
	}
	if td.Continuous() {
		t.Error("continuous mode still on")
	}
	if got := td.p.startCount(); got != 1 {
		t.Errorf("starts = %d, want 1", got)
	}
}

// TestOtherRecognitionError verifies other codes wrap ErrRecognition.
func TestOtherRecognitionError(t *testing.T) {
	td := newTestDriver(t)
	td.handle(Event{Kind: EventRecognitionError, Code: "network"})
	if len(td.errs) != 1 || !errors.Is(td.errs[0], ErrRecognition) {
		t.Errorf("errors = %v, want ErrRecognition", td.errs)
	}
}

// TestShortAndInterimTranscriptsDropped verifies only final transcripts of
// at least two characters reach the handler.
func TestShortAndInterimTranscriptsDropped(t *testing.T) {
	td := newTestDriver(t)
	td.handle(Event{Kind: EventResult, Text: " a ", Final: true})
	td.handle(Event{Kind: EventResult, Text: "seven", Final: false})
	td.handle(Event{Kind: EventResult, Text: "  7 ", Final: true})
	td.handle(Event{Kind: EventResult, Text: "seven", Final: true})
	if len(td.transcripts) != 1 || td.transcripts[0] != "seven" {
		t.Errorf("transcripts = %q, want [seven]", td.transcripts)
	}
}

// TestSpeakCleansAndRecords verifies spoken text is cleaned, uses the
// default options and is filtered out when heard back.
func TestSpeakCleansAndRecords(t *testing.T) {
	td := newTestDriver(t)
	if err := td.Speak("🔥 Exercise 1/2: **Bench Press**"); err != nil {
		t.Fatal(err)
	}
	if len(td.p.spoken) != 1 || td.p.spoken[0] != "Exercise 1/2: Bench Press" {
		t.Fatalf("spoken = %q", td.p.spoken)
	}
	if td.p.opts[0] != DefaultSpeakOptions() {
		t.Errorf("opts = %+v", td.p.opts[0])
	}

	td.handle(Event{Kind: EventSpeechStart})
	td.handle(Event{Kind: EventResult, Text: "bench press", Final: true})
	if len(td.transcripts) != 0 {
		t.Errorf("echo reached handler: %q", td.transcripts)
	}
	if !td.IsSpeaking() {
		t.Error("echo interrupted speech")
	}

	td.handle(Event{Kind: EventResult, Text: "bench press five", Final: true})
	if len(td.transcripts) != 1 || td.transcripts[0] != "five" {
		t.Errorf("transcripts = %q, want [five]", td.transcripts)
	}
	if td.IsSpeaking() {
		t.Error("real input did not interrupt speech")
	}
}

// TestEchoExpires verifies the coach's words are accepted again after the
// window.
func TestEchoExpires(t *testing.T) {
	td := newTestDriver(t)
	td.Speak("Ready for Set 2?")
	td.now = td.now.Add(selfhear.DefaultWindow + time.Millisecond)
	td.handle(Event{Kind: EventResult, Text: "ready", Final: true})
	if len(td.transcripts) != 1 {
		t.Errorf("transcripts = %q, want [ready]", td.transcripts)
	}
}

// TestRestartAfterSpeech verifies listening resumes 200ms after speech in
// continuous mode.
func TestRestartAfterSpeech(t *testing.T) {
	td := newTestDriver(t)
	td.StartContinuousListening()
	td.handle(Event{Kind: EventSpeechStart})
	td.handle(Event{Kind: EventSpeechEnd})
	if len(td.pending) != 1 || td.pending[0].d != 200*time.Millisecond {
		t.Fatalf("pending = %+v, want one 200ms restart", td.pending)
	}
	td.runPending()
	if got := td.p.startCount(); got != 2 {
		t.Errorf("starts = %d, want 2", got)
	}
}

// TestOnMessageSpeaksOnlyCoach verifies user messages are not spoken.
func TestOnMessageSpeaksOnlyCoach(t *testing.T) {
	td := newTestDriver(t)
	td.OnMessage(coach.RoleUser, "five")
	td.OnMessage(coach.RoleAI, "4 ✓ Keep pushing!")
	if len(td.p.spoken) != 1 || td.p.spoken[0] != "4 Keep pushing!" {
		t.Errorf("spoken = %q", td.p.spoken)
	}
}

// TestRunStopsWithContext verifies Run delivers events and returns when the
// context is cancelled.
func TestRunStopsWithContext(t *testing.T) {
	td := newTestDriver(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- td.Run(ctx) }()

	td.p.events <- Event{Kind: EventRecognitionStart}
	deadline := time.Now().Add(time.Second)
	for !td.IsListening() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !td.IsListening() {
		t.Error("event not delivered")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

// TestCleanTextForSpeech verifies emoji, markdown and whitespace handling.
func TestCleanTextForSpeech(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"🎉 **Workout Complete!**\n\n💪 Duration: 12 minutes", "Workout Complete! Duration: 12 minutes"},
		{"*easy* now", "easy now"},
		{"see [the guide](https://example.com/x)", "see the guide"},
		{"7 ✓ Beast mode! 🔥", "7 Beast mode!"},
		{"🔥💪", ""},
		{"3 sets × 10 reps", "3 sets × 10 reps"},
	}
	for _, tt := range tests {
		if got := CleanTextForSpeech(tt.in); got != tt.want {
			t.Errorf("CleanTextForSpeech(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
