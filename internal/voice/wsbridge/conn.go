// Package wsbridge exposes a browser's speech recognizer and synthesizer as a
// voice.Platform over a websocket, and streams coach messages back to the
// page.
package wsbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/claude/repcoach/internal/voice"
)

// Frame types sent to the browser.
const (
	TypeStartRecognition = "start_recognition"
	TypeStopRecognition  = "stop_recognition"
	TypeSpeak            = "speak"
	TypeCancelSpeech     = "cancel_speech"
	TypeMessage          = "message"
	TypeListening        = "listening"
	TypeError            = "error"
)

// Frame types received from the browser besides platform events.
const (
	TypeInput  = "input"
	TypeListen = "listen"
)

var (
	ErrClosed     = errors.New("voice connection closed")
	ErrSendBuffer = errors.New("voice connection send buffer full")
)

// Frame is one JSON message on the socket.
type Frame struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Final  bool    `json:"final,omitempty"`
	Code   string  `json:"code,omitempty"`
	Role   string  `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
	Error  string  `json:"error,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

var eventKinds = func() map[string]voice.EventKind {
	m := make(map[string]voice.EventKind)
	for k := voice.EventResult; k <= voice.EventSpeechError; k++ {
		m[k.String()] = k
	}
	return m
}()

// Conn is a voice.Platform backed by one websocket connection.
type Conn struct {
	ws *websocket.Conn

	events   chan voice.Event
	controls chan Frame
	out      chan Frame
	done     chan struct{}
	closed   chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
	closing   atomic.Bool
}

var _ voice.Platform = (*Conn)(nil)

// NewConn starts the read and write loops on ws.
func NewConn(ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:       ws,
		events:   make(chan voice.Event, 64),
		controls: make(chan Frame, 16),
		out:      make(chan Frame, 64),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	go func() {
		c.wg.Wait()
		_ = ws.Close()
		close(c.closed)
	}()
	return c
}

func (c *Conn) StartRecognition() error { return c.Send(Frame{Type: TypeStartRecognition}) }
func (c *Conn) StopRecognition() error  { return c.Send(Frame{Type: TypeStopRecognition}) }
func (c *Conn) CancelSpeech() error     { return c.Send(Frame{Type: TypeCancelSpeech}) }

func (c *Conn) Speak(text string, opts voice.SpeakOptions) error {
	return c.Send(Frame{Type: TypeSpeak, Text: text, Rate: opts.Rate, Pitch: opts.Pitch, Volume: opts.Volume})
}

// Events carries platform events until the browser disconnects.
func (c *Conn) Events() <-chan voice.Event { return c.events }

// Controls carries typed input and listening toggles from the page.
func (c *Conn) Controls() <-chan Frame { return c.controls }

// Send queues f for the browser without blocking.
func (c *Conn) Send(f Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- f:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBuffer
	}
}

// Close drops the connection; Wait returns once both loops have stopped.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
	<-c.closed
	return c.waitErr()
}

// Wait blocks until the connection is gone and returns the first
// abnormal error.
func (c *Conn) Wait() error {
	<-c.closed
	return c.waitErr()
}

func (c *Conn) waitErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer func() {
		close(c.done)
		close(c.events)
		close(c.controls)
	}()

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closing.Load() {
				c.setErr(fmt.Errorf("reading voice frame: %w", err))
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(payload, &f); err != nil {
			continue
		}
		switch f.Type {
		case TypeInput, TypeListen:
			select {
			case c.controls <- f:
			default:
			}
		default:
			kind, ok := eventKinds[f.Type]
			if !ok {
				continue
			}
			c.emit(voice.Event{Kind: kind, Text: f.Text, Final: f.Final, Code: f.Code})
		}
	}
}

func (c *Conn) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.out:
			if err := c.ws.WriteJSON(f); err != nil {
				c.setErr(fmt.Errorf("writing voice frame: %w", err))
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (c *Conn) emit(ev voice.Event) {
	select {
	case c.events <- ev:
	default:
	}
}
