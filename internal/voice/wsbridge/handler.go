package wsbridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/normalize"
	"github.com/claude/repcoach/internal/selfhear"
	"github.com/claude/repcoach/internal/voice"
)

// Error codes sent in error frames.
const (
	CodePermissionDenied = "permission_denied"
	CodeRecognition      = "recognition_error"
	CodeNoActiveSession  = "no_active_session"
	CodeVoice            = "voice_error"
)

// Session is the coaching session a connection drives.
type Session interface {
	ProcessInput(raw string) error
	Subscribe(sink coach.MessageSink) (unsubscribe func())
	// AttachVoice registers stop to be called when the workout completes.
	AttachVoice(stop func()) (detach func())
}

// SessionFunc resolves the session for an upgrade request.
type SessionFunc func(r *http.Request) (Session, error)

// Handler upgrades requests to voice connections.
type Handler struct {
	session  SessionFunc
	upgrader websocket.Upgrader
	speak    voice.SpeakOptions
	window   time.Duration
	log      *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithSpeakOptions(o voice.SpeakOptions) Option { return func(h *Handler) { h.speak = o } }
func WithLogger(l *slog.Logger) Option { return func(h *Handler) { h.log = l } }

// WithSelfHearingWindow sets how long spoken text is filtered from the
// microphone.
func WithSelfHearingWindow(d time.Duration) Option { return func(h *Handler) { h.window = d } }

func NewHandler(session SessionFunc, opts ...Option) *Handler {
	h := &Handler{
		session: session,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		speak:  voice.DefaultSpeakOptions(),
		window: selfhear.DefaultWindow,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("voice upgrade failed", "error", err)
		return
	}
	conn := NewConn(ws)
	if err := h.serve(sess, conn); err != nil {
		h.log.Warn("voice connection ended", "error", err)
	}
}

// serve runs a voice driver over conn until the browser disconnects.
func (h *Handler) serve(sess Session, conn *Conn) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sendError := func(code string) {
		if err := conn.Send(Frame{Type: TypeError, Error: code}); err != nil {
			h.log.Debug("dropping error frame", "code", code, "error", err)
		}
	}
	input := func(text string) {
		if err := sess.ProcessInput(text); err != nil {
			if errors.Is(err, coach.ErrNoActiveSession) {
				sendError(CodeNoActiveSession)
				return
			}
			h.log.Warn("processing voice input", "error", err)
		}
	}

	driver, err := voice.New(conn,
		voice.WithLogger(h.log),
		voice.WithSpeakOptions(h.speak),
		voice.WithFilter(selfhear.New(
			selfhear.WithWindow(h.window),
			selfhear.WithCanon(normalize.Digit),
		)),
		voice.OnTranscript(input),
		voice.OnError(func(err error) { sendError(errorCode(err)) }),
		voice.OnListeningChange(func(on bool) {
			_ = conn.Send(Frame{Type: TypeListening, Active: &on})
		}),
	)
	if err != nil {
		_ = conn.Close()
		return err
	}

	unsubscribe := sess.Subscribe(coach.SinkFunc(func(role coach.Role, text string) {
		_ = conn.Send(Frame{Type: TypeMessage, Role: string(role), Text: text})
		driver.OnMessage(role, text)
	}))
	defer unsubscribe()
	detach := sess.AttachVoice(driver.Stop)
	defer detach()

	go func() {
		if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.log.Warn("voice driver stopped", "error", err)
		}
	}()

	for f := range conn.Controls() {
		switch f.Type {
		case TypeInput:
			input(f.Text)
		case TypeListen:
			if f.Active != nil && *f.Active {
				if err := driver.StartContinuousListening(); err != nil {
					sendError(CodeVoice)
				}
			} else if err := driver.StopListening(); err != nil {
				sendError(CodeVoice)
			}
		}
	}
	return conn.Wait()
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, voice.ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, voice.ErrRecognition):
		return CodeRecognition
	default:
		return CodeVoice
	}
}
