package client

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/impersonate-engine/tlsprofile"
)

// Client is a configured HTTP client owned by a Registry.
type Client struct {
	http      *http.Client
	transport transport
	profile   *tlsprofile.Profile
	logger    *zap.Logger
	config    Config
	id        uuid.UUID
}

// ID returns the client's instance id.
func (c *Client) ID() uuid.UUID { return c.id }

// HTTP returns the underlying http.Client.
func (c *Client) HTTP() *http.Client { return c.http }

// Profile returns the impersonation profile, or nil when none is set.
func (c *Client) Profile() *tlsprofile.Profile { return c.profile }

// Config returns the configuration the client was built from.
func (c *Client) Config() Config { return c.config }

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger { return c.logger }

// Do sends a request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

// Drop releases pooled connections. It is called when the client is
// removed from its registry.
func (c *Client) Drop() {
	c.transport.CloseIdleConnections()
	c.logger.Debug("client destroyed")
}

func newHTTPClient(cfg Config, profile *tlsprofile.Profile, t transport, log *zap.Logger) *http.Client {
	return &http.Client{
		Transport: &roundTripper{
			base:      t,
			profile:   profile,
			logger:    log,
			httpsOnly: cfg.httpsOnly(),
			verbose:   cfg.VerboseLogging,
		},
		Timeout: cfg.requestTimeout(),
	}
}
