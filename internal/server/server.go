package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/provider"
	"github.com/claude/repcoach/internal/session"
	"github.com/claude/repcoach/internal/vault"
	"github.com/claude/repcoach/internal/voice/wsbridge"
)

// Store is the server-side persistence the handlers use. *storage.DB
// satisfies it.
type Store interface {
	TouchUser(ctx context.Context, login, displayName string) (int, error)
	ListPhonetics(ctx context.Context, login string) ([]models.PhoneticMapping, error)
	UpsertPhonetic(ctx context.Context, m models.PhoneticMapping) (models.PhoneticMapping, error)
	DeletePhonetic(ctx context.Context, login string, id uuid.UUID) (bool, error)
	ResetPhonetics(ctx context.Context, login string, defaults []models.PhoneticMapping) error
	GetSettings(ctx context.Context, login string) ([]models.UserSetting, error)
	PutSetting(ctx context.Context, login, key, value string) (models.UserSetting, error)
	ListWorkouts(ctx context.Context, login string, limit int) ([]models.WorkoutHistoryRow, error)
}

// Deps are the collaborators a Server routes to. DB, Vault and MCP may be
// nil; their endpoints then report that they are unavailable.
type Deps struct {
	Sessions  *session.Service
	Providers *provider.Registry
	Vault     vault.Vault
	DB        Store
	MCP       http.Handler
	Voice     []wsbridge.Option
	APIKey    string
	Version   string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessions  *session.Service
	providers *provider.Registry
	vault     vault.Vault
	db        Store
	mcp       http.Handler
	voice     *wsbridge.Handler
	apiKey    string
	version   string
	log       *slog.Logger
	router    chi.Router

	mu    sync.RWMutex
	whois WhoIser
}

// New creates a new Server with all routes configured.
func New(deps Deps, log *slog.Logger) *Server {
	s := &Server{
		sessions:  deps.Sessions,
		providers: deps.Providers,
		vault:     deps.Vault,
		db:        deps.DB,
		mcp:       deps.MCP,
		apiKey:    deps.APIKey,
		version:   deps.Version,
		log:       log,
		router:    chi.NewRouter(),
	}
	s.voice = wsbridge.NewHandler(func(r *http.Request) (wsbridge.Session, error) {
		return s.sessions.For(loginFromContext(r)), nil
	}, append([]wsbridge.Option{wsbridge.WithLogger(log)}, deps.Voice...)...)
	s.routes()
	return s
}

// SetTailscale switches identity from the dev user to tailnet WhoIs.
func (s *Server) SetTailscale(who WhoIser) {
	s.mu.Lock()
	s.whois = who
	s.mu.Unlock()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(Metrics)
	s.router.Use(CORS)

	s.router.Get("/api/v1/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(s.identity)

		// The browser cannot set headers on a websocket upgrade; tsnet
		// handles access.
		r.Handle("/api/v1/voice", s.voice)

		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))

			r.Get("/api/v1/me", s.handleMe)
			r.Get("/api/v1/routines", s.handleListRoutines)

			r.Route("/api/v1/session", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/", s.handleStartSession)
				r.Post("/input", s.handleSessionInput)
				r.Post("/complete", s.handleCompleteSession)
				r.Get("/events", s.handleSessionEvents)
			})

			r.Route("/api/v1/credentials/{provider}", func(r chi.Router) {
				r.Get("/", s.handleCredentialStatus)
				r.Put("/", s.handlePutCredential)
				r.Delete("/", s.handleDeleteCredential)
			})

			r.Get("/api/v1/phonetics", s.handleListPhonetics)
			r.Post("/api/v1/phonetics", s.handleUpsertPhonetic)
			r.Post("/api/v1/phonetics/reset", s.handleResetPhonetics)
			r.Delete("/api/v1/phonetics/{id}", s.handleDeletePhonetic)

			r.Get("/api/v1/settings", s.handleGetSettings)
			r.Put("/api/v1/settings/{key}", s.handlePutSetting)

			r.Get("/api/v1/history", s.handleHistory)

			if s.mcp != nil {
				r.Handle("/mcp", s.withMCPLogin(s.mcp))
			}
		})
	})
}
