// Package provider defines the remote workout tracker interface and a
// registry holding the active tracker.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/claude/repcoach/internal/models"
)

var (
	ErrNoActiveProvider = errors.New("no active provider")
	ErrUnknownProvider  = errors.New("unknown provider")
	// ErrNotConnected means no API key is stored for the provider.
	ErrNotConnected = errors.New("provider not connected")
	// ErrUnauthorized means the tracker rejected the API key.
	ErrUnauthorized = errors.New("invalid API key")
	ErrNotFound     = errors.New("not found")
)

// RoutinePage is one page of routines.
type RoutinePage struct {
	Page      int              `json:"page"`
	PageCount int              `json:"page_count"`
	Routines  []models.Routine `json:"routines"`
}

// Provider is a remote workout tracker.
type Provider interface {
	Name() string
	TestConnection(ctx context.Context) error
	ListRoutines(ctx context.Context, page, pageSize int) (RoutinePage, error)
	GetRoutine(ctx context.Context, id string) (models.Routine, error)
	CreateWorkout(ctx context.Context, log models.WorkoutLog) (string, error)
	UpdateWorkout(ctx context.Context, id string, log models.WorkoutLog) error
}

// Registry holds the known providers. The first one registered is active
// until SetActive picks another.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	active    string
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	if r.active == "" {
		r.active = p.Name()
	}
}

// SetActive selects the provider used for routines and sync.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	r.active = name
	return nil
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Active returns the active provider.
func (r *Registry) Active() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.active]
	if !ok {
		return nil, ErrNoActiveProvider
	}
	return p, nil
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CreateWorkout creates the workout on the active provider.
func (r *Registry) CreateWorkout(ctx context.Context, log models.WorkoutLog) (string, error) {
	p, err := r.Active()
	if err != nil {
		return "", err
	}
	return p.CreateWorkout(ctx, log)
}

// UpdateWorkout replaces the workout on the active provider.
func (r *Registry) UpdateWorkout(ctx context.Context, id string, log models.WorkoutLog) error {
	p, err := r.Active()
	if err != nil {
		return err
	}
	return p.UpdateWorkout(ctx, id, log)
}

// ListRoutines lists routines on the active provider.
func (r *Registry) ListRoutines(ctx context.Context, page, pageSize int) (RoutinePage, error) {
	p, err := r.Active()
	if err != nil {
		return RoutinePage{}, err
	}
	return p.ListRoutines(ctx, page, pageSize)
}

// GetRoutine fetches a routine from the active provider.
func (r *Registry) GetRoutine(ctx context.Context, id string) (models.Routine, error) {
	p, err := r.Active()
	if err != nil {
		return models.Routine{}, err
	}
	return p.GetRoutine(ctx, id)
}
