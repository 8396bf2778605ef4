package tlsprofile

import (
	"crypto/x509"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Provider supplies the trust store and impersonation profiles clients are
// built from.
type Provider interface {
	// TrustStore returns the root pool. It is loaded once and cached.
	TrustStore() (*x509.CertPool, error)

	// Profile returns a named profile.
	Profile(name string) (*Profile, bool)

	// Profiles lists the available profile names.
	Profiles() []string
}

// DefaultProvider loads trust anchors from the environment or the platform
// and serves the built-in profile catalogue.
type DefaultProvider struct {
	pool       *x509.CertPool
	err        error
	logger     *zap.Logger
	lookupEnv  func(string) (string, bool)
	systemPool func() (*x509.CertPool, error)
	androidDir string
	once       sync.Once
}

var _ Provider = (*DefaultProvider)(nil)

// Option configures a DefaultProvider.
type Option func(*DefaultProvider)

// WithLogger sets the logger used for certificate loading diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(p *DefaultProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLookupEnv overrides environment lookups.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(p *DefaultProvider) { p.lookupEnv = fn }
}

// WithAndroidCertDir overrides the Android system certificate directory.
// An empty dir disables it.
func WithAndroidCertDir(dir string) Option {
	return func(p *DefaultProvider) { p.androidDir = dir }
}

// WithSystemPool overrides the platform pool loader.
func WithSystemPool(fn func() (*x509.CertPool, error)) Option {
	return func(p *DefaultProvider) { p.systemPool = fn }
}

// NewProvider creates a provider.
func NewProvider(opts ...Option) *DefaultProvider {
	p := &DefaultProvider{
		logger:     zap.NewNop(),
		lookupEnv:  os.LookupEnv,
		systemPool: x509.SystemCertPool,
		androidDir: AndroidCertDir,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TrustStore implements Provider. Every caller receives a clone of the
// cached pool.
func (p *DefaultProvider) TrustStore() (*x509.CertPool, error) {
	p.once.Do(func() {
		p.pool, p.err = p.loadTrustStore()
	})
	if p.err != nil {
		return nil, p.err
	}
	return p.pool.Clone(), nil
}

// Profile implements Provider.
func (p *DefaultProvider) Profile(name string) (*Profile, bool) {
	return Lookup(name)
}

// Profiles implements Provider.
func (p *DefaultProvider) Profiles() []string {
	return Names()
}
