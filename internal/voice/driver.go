package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/normalize"
	"github.com/claude/repcoach/internal/selfhear"
)

const (
	restartAfterEnd    = 100 * time.Millisecond
	restartAfterSpeech = 200 * time.Millisecond
	minTranscriptLen   = 2
)

// Driver wraps a Platform with continuous listening, interruption and
// self-hearing suppression. It is a coach.MessageSink: coach messages are
// spoken.
type Driver struct {
	p      Platform
	filter *selfhear.Filter
	opts   SpeakOptions
	after  func(time.Duration, func())
	log    *slog.Logger

	onTranscript func(string)
	onListening  func(bool)
	onError      func(error)

	mu         sync.Mutex
	continuous bool
	listening  bool
	speaking   bool
}

var _ coach.MessageSink = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

func WithFilter(f *selfhear.Filter) Option { return func(d *Driver) { d.filter = f } }
func WithSpeakOptions(o SpeakOptions) Option { return func(d *Driver) { d.opts = o } }
func WithLogger(l *slog.Logger) Option { return func(d *Driver) { d.log = l } }
func OnTranscript(fn func(text string)) Option { return func(d *Driver) { d.onTranscript = fn } }
func OnListeningChange(fn func(bool)) Option { return func(d *Driver) { d.onListening = fn } }
func OnError(fn func(err error)) Option { return func(d *Driver) { d.onError = fn } }

// WithAfterFunc replaces time.AfterFunc for the listening restarts.
func WithAfterFunc(fn func(time.Duration, func())) Option {
	return func(d *Driver) { d.after = fn }
}

// New creates a driver over p. A nil platform yields ErrUnavailable.
func New(p Platform, opts ...Option) (*Driver, error) {
	if p == nil {
		return nil, ErrUnavailable
	}
	d := &Driver{
		p:    p,
		opts: DefaultSpeakOptions(),
		after: func(dur time.Duration, f func()) {
			time.AfterFunc(dur, f)
		},
		log: slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.filter == nil {
		d.filter = selfhear.New(selfhear.WithCanon(normalize.Digit))
	}
	return d, nil
}

// Run delivers platform events until ctx ends or the platform closes its
// event channel.
func (d *Driver) Run(ctx context.Context) error {
	events := d.p.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.handle(ev)
		}
	}
}

// StartContinuousListening listens now and after every pause until
// StopListening.
func (d *Driver) StartContinuousListening() error {
	d.mu.Lock()
	d.continuous = true
	d.mu.Unlock()
	return d.startListening()
}

// StopListening leaves continuous mode and stops the recognizer.
func (d *Driver) StopListening() error {
	d.mu.Lock()
	d.continuous = false
	listening := d.listening
	d.mu.Unlock()
	if !listening {
		return nil
	}
	return d.p.StopRecognition()
}

// Stop halts listening and speech.
func (d *Driver) Stop() {
	if err := d.StopListening(); err != nil {
		d.log.Warn("stopping recognition", "error", err)
	}
	d.StopSpeaking()
}

// Speak says text after cleaning it for speech, replacing any utterance in
// progress.
func (d *Driver) Speak(text string) error {
	clean := CleanTextForSpeech(text)
	if clean == "" {
		return nil
	}
	d.filter.RecordSpoken(clean)
	if err := d.p.CancelSpeech(); err != nil {
		d.log.Debug("cancelling speech", "error", err)
	}
	if err := d.p.Speak(clean, d.opts); err != nil {
		return fmt.Errorf("speaking: %w", err)
	}
	return nil
}

// StopSpeaking cancels the current utterance.
func (d *Driver) StopSpeaking() {
	d.mu.Lock()
	d.speaking = false
	d.mu.Unlock()
	if err := d.p.CancelSpeech(); err != nil {
		d.log.Debug("cancelling speech", "error", err)
	}
}

func (d *Driver) IsSpeaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

func (d *Driver) IsListening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listening
}

func (d *Driver) Continuous() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.continuous
}

// OnMessage speaks coach messages.
func (d *Driver) OnMessage(role coach.Role, text string) {
	if role != coach.RoleAI {
		return
	}
	if err := d.Speak(text); err != nil {
		d.log.Warn("speech failed", "error", err)
	}
}

func (d *Driver) startListening() error {
	d.mu.Lock()
	if d.listening {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()
	if err := d.p.StartRecognition(); err != nil {
		return fmt.Errorf("starting recognition: %w", err)
	}
	return nil
}

func (d *Driver) restartLater(delay time.Duration) {
	d.after(delay, func() {
		if !d.Continuous() {
			return
		}
		if err := d.startListening(); err != nil {
			d.log.Warn("restarting recognition", "error", err)
		}
	})
}

func (d *Driver) handle(ev Event) {
	switch ev.Kind {
	case EventResult:
		if ev.Final {
			d.handleResult(ev.Text)
		}

	case EventRecognitionStart:
		d.mu.Lock()
		d.listening = true
		d.mu.Unlock()
		d.notifyListening(true)

	case EventRecognitionEnd:
		d.mu.Lock()
		d.listening = false
		continuous := d.continuous
		d.mu.Unlock()
		if continuous {
			d.restartLater(restartAfterEnd)
			return
		}
		d.notifyListening(false)

	case EventRecognitionError:
		d.mu.Lock()
		if ev.Code == CodeNoSpeech && d.continuous {
			d.mu.Unlock()
			return
		}
		d.listening = false
		denied := ev.Code == CodeNotAllowed || ev.Code == CodeServiceNotAllowed
		if denied {
			d.continuous = false
		}
		d.mu.Unlock()

		d.notifyListening(false)
		switch {
		case denied:
			d.notifyError(ErrPermissionDenied)
		case ev.Code != CodeNoSpeech:
			d.notifyError(fmt.Errorf("%w: %s", ErrRecognition, ev.Code))
		}

	case EventSpeechStart:
		d.mu.Lock()
		d.speaking = true
		d.mu.Unlock()

	case EventSpeechEnd, EventSpeechError:
		if ev.Kind == EventSpeechError {
			d.log.Warn("speech synthesis error", "code", ev.Code)
		}
		d.mu.Lock()
		d.speaking = false
		continuous := d.continuous
		d.mu.Unlock()
		if continuous {
			d.restartLater(restartAfterSpeech)
		}
	}
}

func (d *Driver) handleResult(raw string) {
	text := strings.TrimSpace(raw)
	if utf8.RuneCountInString(text) < minTranscriptLen {
		metrics.Transcripts.WithLabelValues("short").Inc()
		return
	}

	kept := d.filter.Filter(text)
	if dropped := len(selfhear.Words(text)) - len(selfhear.Words(kept)); dropped > 0 {
		metrics.EchoWordsDropped.Add(float64(dropped))
	}
	if strings.TrimSpace(kept) == "" {
		metrics.Transcripts.WithLabelValues("echo").Inc()
		d.log.Debug("dropped self-heard transcript", "text", text)
		return
	}

	if d.IsSpeaking() {
		d.StopSpeaking()
	}
	metrics.Transcripts.WithLabelValues("accepted").Inc()
	if d.onTranscript != nil {
		d.onTranscript(kept)
	}
}

func (d *Driver) notifyListening(on bool) {
	if d.onListening != nil {
		d.onListening(on)
	}
}

func (d *Driver) notifyError(err error) {
	d.log.Warn("voice error", "error", err)
	if d.onError != nil {
		d.onError(err)
	}
}
