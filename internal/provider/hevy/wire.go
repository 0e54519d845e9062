package hevy

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/claude/repcoach/internal/models"
)

type workoutRequest struct {
	Workout wireWorkout `json:"workout"`
}

type wireWorkout struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	IsPrivate   bool           `json:"is_private"`
	Exercises   []wireExercise `json:"exercises"`
}

type wireExercise struct {
	TemplateID string    `json:"exercise_template_id"`
	SupersetID *int      `json:"superset_id"`
	Notes      string    `json:"notes"`
	Sets       []wireSet `json:"sets"`
}

type wireSet struct {
	Type            string   `json:"type"`
	WeightKg        *float64 `json:"weight_kg"`
	Reps            *int     `json:"reps"`
	DistanceMeters  *float64 `json:"distance_meters"`
	DurationSeconds *int     `json:"duration_seconds"`
	RPE             *float64 `json:"rpe"`
}

func toWire(l models.WorkoutLog) wireWorkout {
	w := wireWorkout{
		Title:       l.Title,
		Description: l.Description,
		StartTime:   l.StartTime.UTC(),
		EndTime:     l.EndTime.UTC(),
		IsPrivate:   l.IsPrivate,
		Exercises:   make([]wireExercise, 0, len(l.Exercises)),
	}
	for _, e := range l.Exercises {
		we := wireExercise{TemplateID: e.TemplateID, Notes: e.Notes, Sets: make([]wireSet, 0, len(e.Sets))}
		for _, s := range e.Sets {
			typ := s.Type
			if typ == "" {
				typ = models.SetTypeNormal
			}
			we.Sets = append(we.Sets, wireSet{
				Type:            typ,
				WeightKg:        s.WeightKg,
				Reps:            s.Reps,
				DistanceMeters:  s.DistanceMeters,
				DurationSeconds: s.DurationSeconds,
				RPE:             s.RPE,
			})
		}
		w.Exercises = append(w.Exercises, we)
	}
	return w
}

type idOnly struct {
	ID string `json:"id"`
}

// workoutID extracts the id from a create response. Hevy has answered with
// {"workout": {...}}, {"workout": [{...}]} and a bare workout object.
func workoutID(raw json.RawMessage) (string, error) {
	var wrapped struct {
		Workout json.RawMessage `json:"workout"`
		ID      string          `json:"id"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}
	if wrapped.ID != "" {
		return wrapped.ID, nil
	}
	if len(wrapped.Workout) > 0 {
		var one idOnly
		if err := json.Unmarshal(wrapped.Workout, &one); err == nil && one.ID != "" {
			return one.ID, nil
		}
		var many []idOnly
		if err := json.Unmarshal(wrapped.Workout, &many); err == nil && len(many) > 0 && many[0].ID != "" {
			return many[0].ID, nil
		}
	}
	return "", errors.New("create response has no workout id")
}
