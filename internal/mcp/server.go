package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const loginKey contextKey = iota

// DefaultLogin is the user assumed when the transport supplies none.
const DefaultLogin = "local"

// LoginFromContext extracts the login injected by the transport layer.
func LoginFromContext(ctx context.Context) string {
	if login, ok := ctx.Value(loginKey).(string); ok && login != "" {
		return login
	}
	return DefaultLogin
}

// WithLogin returns a context carrying login.
func WithLogin(ctx context.Context, login string) context.Context {
	return context.WithValue(ctx, loginKey, login)
}

// New creates an MCP server with all tools and resources registered.
func New(c Coach, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("repcoach", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("repcoach workout coach. List routines, start a workout, then relay what the athlete says with send_input "+
			"(rep counts like \"one two three\", \"ready\", \"done\", \"skip\", \"repeat\"). "+
			"Read the coach replies back to the athlete. Sessions are scoped to the authenticated user."),
	)

	h := &handlers{coach: c, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListRoutines, Handler: h.listRoutines},
		server.ServerTool{Tool: toolStartWorkout, Handler: h.startWorkout},
		server.ServerTool{Tool: toolSendInput, Handler: h.sendInput},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolCompleteWorkout, Handler: h.completeWorkout},
	)

	s.AddResources(
		server.ServerResource{Resource: resSession, Handler: h.session},
	)

	return s
}

// NewHTTPHandler serves s over streamable HTTP. The login placed on the
// request context by the HTTP layer reaches tool handlers.
func NewHTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s,
		server.WithStateLess(true),
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return WithLogin(ctx, LoginFromContext(r.Context()))
		}),
	)
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	coach Coach
	log   *slog.Logger
}

var resSession = mcp.NewResource(
	"repcoach://session",
	"Current Session",
	mcp.WithResourceDescription("State of the current workout: exercise, set, rep count, timers and the last coach message"),
	mcp.WithMIMEType("application/json"),
)

func (h *handlers) session(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	st, err := h.coach.Status(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
