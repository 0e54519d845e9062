package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/claude/repcoach/internal/coach"
)

// sseEvent is an SSE message to send to a subscriber.
type sseEvent struct {
	Event string
	Data  string
}

// handleSessionEvents streams the user's coaching conversation. Each
// message is followed by a status event; the stream ends once the workout
// completes.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	sess := s.sessions.For(loginFromContext(r))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan sseEvent, 32)
	unsubscribe := sess.Subscribe(coach.SinkFunc(func(role coach.Role, text string) {
		select {
		case ch <- sseEvent{Event: "message", Data: mustJSON(map[string]string{"role": string(role), "text": text})}:
		default:
			// slow subscriber, skip
		}
	}))
	defer unsubscribe()

	fmt.Fprintf(w, "event: status\ndata: %s\n\n", mustJSON(sess.Status()))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
			st := sess.Status()
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", mustJSON(st))
			flusher.Flush()

			if st.State == "workout_complete" && len(ch) == 0 {
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", mustJSON(st.Summary))
				flusher.Flush()
				return
			}
		}
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{}`
	}
	return string(b)
}
