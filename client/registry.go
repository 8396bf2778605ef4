package client

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/resource"
	"github.com/wippyai/impersonate-engine/tlsprofile"
)

// Handle identifies a client across the host boundary. Zero means no client.
type Handle = resource.Handle

// Registry owns clients behind opaque handles.
type Registry struct {
	table    *resource.Table[*Client]
	provider tlsprofile.Provider
	validate *validator.Validate
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a registry backed by provider.
func NewRegistry(provider tlsprofile.Provider, opts ...Option) *Registry {
	r := &Registry{
		table:    resource.NewTable[*Client](),
		provider: provider,
		validate: newValidator(provider),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates cfg, builds a client and returns its handle.
func (r *Registry) Create(cfg Config) (Handle, error) {
	c, err := r.build(cfg)
	if err != nil {
		return 0, err
	}

	h, err := r.table.Insert(c)
	if err != nil {
		c.Drop()
		return 0, errors.Closed(errors.PhaseClient, "client registry")
	}
	c.logger.Debug("client created", zap.Uint64("handle", uint64(h)), zap.String("profile", cfg.Profile))
	return h, nil
}

func (r *Registry) build(cfg Config) (*Client, error) {
	if err := validateConfig(r.validate, cfg); err != nil {
		return nil, err
	}

	var profile *tlsprofile.Profile
	if cfg.Profile != "" {
		p, ok := r.provider.Profile(cfg.Profile)
		if !ok {
			return nil, errors.UnknownProfile(cfg.Profile)
		}
		profile = p
	}

	roots, err := r.provider.TrustStore()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseClient, errors.KindTrustStore, err, "failed to load certificates")
	}

	id := uuid.New()
	log := r.logger.With(zap.String("client", id.String()))

	transport, err := newTransport(cfg, profile, roots, log)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseClient, errors.KindBuild, err, "failed to build client")
	}

	c := &Client{
		transport: transport,
		profile:   profile,
		logger:    log,
		config:    cfg,
		id:        id,
	}
	c.http = newHTTPClient(cfg, profile, transport, log)
	return c, nil
}

// Destroy removes a client and closes its idle connections. Zero or stale
// handles are ignored.
func (r *Registry) Destroy(h Handle) {
	r.table.Remove(h)
}

// Lookup returns the client for h.
func (r *Registry) Lookup(h Handle) (*Client, bool) {
	return r.table.Get(h)
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	return r.table.Len()
}

// Subscribe registers an observer for client create/destroy events.
func (r *Registry) Subscribe(o resource.Observer) {
	r.table.Subscribe(o)
}

// Close destroys every client.
func (r *Registry) Close() error {
	return r.table.Close()
}
