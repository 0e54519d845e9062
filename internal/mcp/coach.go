package mcp

import (
	"context"

	"github.com/claude/repcoach/internal/coach"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/session"
)

// Completion is the result of finishing a workout.
type Completion struct {
	Summary  models.Summary `json:"summary"`
	RemoteID string         `json:"remote_id,omitempty"`
}

// Coach abstracts the coaching sessions for MCP tools. LocalCoach (in
// process) and HTTPClient (remote via REST API) satisfy this interface.
type Coach interface {
	ListRoutines(ctx context.Context, page, pageSize int) (provider.RoutinePage, error)
	StartWorkout(ctx context.Context, routineID string) (coach.Status, error)
	SendInput(ctx context.Context, text string) (session.Reply, error)
	Status(ctx context.Context) (coach.Status, error)
	Complete(ctx context.Context) (Completion, error)
}

var (
	_ Coach = (*LocalCoach)(nil)
	_ Coach = (*HTTPClient)(nil)
)

// LocalCoach drives sessions in this process for the login on the context.
type LocalCoach struct {
	sessions *session.Service
}

func NewLocalCoach(sessions *session.Service) *LocalCoach {
	return &LocalCoach{sessions: sessions}
}

func (c *LocalCoach) ListRoutines(ctx context.Context, page, pageSize int) (provider.RoutinePage, error) {
	return c.sessions.ListRoutines(ctx, LoginFromContext(ctx), page, pageSize)
}

func (c *LocalCoach) StartWorkout(ctx context.Context, routineID string) (coach.Status, error) {
	return c.sessions.For(LoginFromContext(ctx)).StartWorkout(ctx, routineID)
}

func (c *LocalCoach) SendInput(ctx context.Context, text string) (session.Reply, error) {
	return c.sessions.For(LoginFromContext(ctx)).Respond(text)
}

func (c *LocalCoach) Status(ctx context.Context) (coach.Status, error) {
	return c.sessions.For(LoginFromContext(ctx)).Status(), nil
}

func (c *LocalCoach) Complete(ctx context.Context) (Completion, error) {
	sess := c.sessions.For(LoginFromContext(ctx))
	sum, err := sess.Complete(ctx)
	if err != nil {
		return Completion{}, err
	}
	return Completion{Summary: sum, RemoteID: sess.RemoteID()}, nil
}
