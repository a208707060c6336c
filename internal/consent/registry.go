package consent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrConsentStorage marks a persisted consent state that could not be read or
// written. Loads never return it; they fall back to the default state.
var ErrConsentStorage = errors.New("consent storage")

// Store persists one consent state. Load reports false when nothing was saved.
type Store interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, state State) error
}

// Registry owns the group catalog and the persisted consent state.
//
// Unreadable or malformed persisted state fails open: LoadConsent returns the
// default state (every group allowed) and logs the failure. Operators who need
// fail-closed behaviour must monitor the warning and pause the model.
type Registry struct {
	catalog *Catalog
	store   Store
	logger  *zap.Logger
}

func NewRegistry(catalog *Catalog, store Store, logger *zap.Logger) *Registry {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{catalog: catalog, store: store, logger: logger}
}

func (r *Registry) Catalog() *Catalog { return r.catalog }

func (r *Registry) Groups() map[string][]string { return r.catalog.Groups() }

// DefaultConsent allows every known group.
func (r *Registry) DefaultConsent() State {
	out := make(State, len(r.catalog.groups))
	for _, name := range r.catalog.Names() {
		out[name] = true
	}
	return out
}

// Reconcile drops unknown groups and defaults missing groups to allowed.
func (r *Registry) Reconcile(state State) State {
	out := r.DefaultConsent()
	for group, allowed := range state {
		if _, ok := out[group]; ok {
			out[group] = allowed
		}
	}
	return out
}

// LoadConsent returns the persisted state reconciled against the catalog.
func (r *Registry) LoadConsent(ctx context.Context) State {
	state, found, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn("consent state unreadable, using default consent",
			zap.Error(fmt.Errorf("%w: %w", ErrConsentStorage, err)))
		return r.DefaultConsent()
	}
	if !found {
		return r.DefaultConsent()
	}
	return r.Reconcile(state)
}

// SaveConsent persists the reconciled state. Unlike loads, a failed save is
// returned so the caller does not report a change that did not happen.
func (r *Registry) SaveConsent(ctx context.Context, state State) (State, error) {
	reconciled := r.Reconcile(state)
	if err := r.store.Save(ctx, reconciled); err != nil {
		return nil, fmt.Errorf("%w: save: %w", ErrConsentStorage, err)
	}
	return reconciled, nil
}

// Reset persists the default state.
func (r *Registry) Reset(ctx context.Context) (State, error) {
	return r.SaveConsent(ctx, r.DefaultConsent())
}
