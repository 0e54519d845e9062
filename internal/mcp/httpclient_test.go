package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/session"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by method and path. Verifies the HTTP client sends correct paths and the API key.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "k" {
			t.Errorf("X-API-Key = %q, want k", got)
		}
		h, ok := handlers[r.Method+" "+r.URL.Path]
		if !ok {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestListRoutinesQuery verifies paging parameters and response parsing.
func TestListRoutinesQuery(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/routines": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("page"); got != "2" {
				t.Errorf("page=%q, want 2", got)
			}
			if got := r.URL.Query().Get("page_size"); got != "5" {
				t.Errorf("page_size=%q, want 5", got)
			}
			writeTestJSON(t, w, http.StatusOK, provider.RoutinePage{
				Page: 2, PageCount: 3, Routines: []models.Routine{{ID: "r1", Title: "Push"}},
			})
		},
	})
	defer ts.Close()

	page, err := NewHTTPClient(ts.URL, "k").ListRoutines(context.Background(), 2, 5)
	if err != nil {
		t.Fatal(err)
	}
	if page.PageCount != 3 || len(page.Routines) != 1 || page.Routines[0].Title != "Push" {
		t.Errorf("page = %+v", page)
	}
}

// TestStartAndInput verifies request bodies and decoded replies.
func TestStartAndInput(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/session": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["routine_id"] != "r1" {
				t.Errorf("routine_id = %q, want r1", body["routine_id"])
			}
			writeTestJSON(t, w, http.StatusCreated, coach.Status{State: "announcing", RoutineID: "r1"})
		},
		"POST /api/v1/session/input": func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			writeTestJSON(t, w, http.StatusOK, session.Reply{
				Replies: []string{"got " + body["text"]},
				Status:  coach.Status{State: "in_progress_reps", Rep: 3},
			})
		},
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL+"/", "k")
	st, err := c.StartWorkout(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != "announcing" {
		t.Errorf("state = %q", st.State)
	}
	reply, err := c.SendInput(context.Background(), "three")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Status.Rep != 3 || len(reply.Replies) != 1 || reply.Replies[0] != "got three" {
		t.Errorf("reply = %+v", reply)
	}
}

// TestRemoteErrors verifies server errors map back to the session
// sentinels and that other failures keep their status.
func TestRemoteErrors(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/session/complete": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, http.StatusConflict, map[string]string{"error": coach.ErrNoActiveSession.Error()})
		},
		"POST /api/v1/session": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, http.StatusNotFound, map[string]string{"error": "fetching routine: not found"})
		},
		"GET /api/v1/session": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, http.StatusInternalServerError, map[string]string{"error": "boom"})
		},
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "k")
	if _, err := c.Complete(context.Background()); !errors.Is(err, coach.ErrNoActiveSession) {
		t.Errorf("Complete = %v, want ErrNoActiveSession", err)
	}
	if _, err := c.StartWorkout(context.Background(), "zz"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("StartWorkout = %v, want ErrNotFound", err)
	}
	if _, err := c.Status(context.Background()); err == nil {
		t.Error("Status: expected error for 500")
	}
}

// TestLocalCoachScopesByLogin verifies the in-process coach keeps one
// session per login.
func TestLocalCoachScopesByLogin(t *testing.T) {
	svc := session.NewService(coach.DefaultConfig(), stubRoutines{})
	c := NewLocalCoach(svc)
	alice := WithLogin(context.Background(), "alice")

	if _, err := c.StartWorkout(alice, "r1"); err != nil {
		t.Fatal(err)
	}
	st, _ := c.Status(alice)
	if st.RoutineID != "r1" {
		t.Errorf("alice status = %+v", st)
	}
	st, _ = c.Status(WithLogin(context.Background(), "bob"))
	if st.State != "not_started" {
		t.Errorf("bob state = %q, want not_started", st.State)
	}
	done, err := c.Complete(alice)
	if err != nil {
		t.Fatal(err)
	}
	if done.Summary.Title != "Pull" {
		t.Errorf("summary = %+v", done.Summary)
	}
}

type stubRoutines struct{}

func (stubRoutines) ListRoutines(ctx context.Context, page, pageSize int) (provider.RoutinePage, error) {
	return provider.RoutinePage{}, nil
}

func (stubRoutines) GetRoutine(ctx context.Context, id string) (models.Routine, error) {
	reps := 8
	return models.Routine{ID: id, Title: "Pull", Exercises: []models.Exercise{{
		Title: "Row",
		Sets:  []models.RoutineSet{{Type: "normal", Reps: &reps}},
	}}}, nil
}
