// Package voice drives a speech platform for a workout session: continuous
// listening that survives the recognizer's own stops, spoken replies that
// the user can interrupt, and removal of the coach's own voice from what the
// microphone hears.
package voice

import "errors"

var (
	// ErrUnavailable means no speech platform is attached. Text input still
	// works.
	ErrUnavailable = errors.New("speech platform unavailable")
	// ErrPermissionDenied means the microphone was refused. Continuous
	// listening stays off until started again.
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrRecognition      = errors.New("speech recognition error")
)

// Recognition error codes reported by platforms.
const (
	CodeNoSpeech          = "no-speech"
	CodeNotAllowed        = "not-allowed"
	CodeServiceNotAllowed = "service-not-allowed"
)

// EventKind tags a platform event.
type EventKind int

const (
	EventResult EventKind = iota + 1
	EventRecognitionStart
	EventRecognitionEnd
	EventRecognitionError
	EventSpeechStart
	EventSpeechEnd
	EventSpeechError
)

func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventRecognitionStart:
		return "recognition_start"
	case EventRecognitionEnd:
		return "recognition_end"
	case EventRecognitionError:
		return "recognition_error"
	case EventSpeechStart:
		return "speech_start"
	case EventSpeechEnd:
		return "speech_end"
	case EventSpeechError:
		return "speech_error"
	default:
		return "unknown"
	}
}

// Event is something the platform observed.
type Event struct {
	Kind  EventKind
	Text  string // EventResult
	Final bool   // EventResult
	Code  string // EventRecognitionError, EventSpeechError
}

// SpeakOptions are synthesis parameters.
type SpeakOptions struct {
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// DefaultSpeakOptions is slightly faster than normal speech.
func DefaultSpeakOptions() SpeakOptions {
	return SpeakOptions{Rate: 1.1, Pitch: 1, Volume: 1}
}

// Platform is a speech recognizer and synthesizer. Recognition stops on
// its own after each utterance; the Driver restarts it.
type Platform interface {
	StartRecognition() error
	StopRecognition() error
	Speak(text string, opts SpeakOptions) error
	CancelSpeech() error
	Events() <-chan Event
}
