package client

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptrace"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/tlsprofile"
)

// ErrSchemeNotAllowed is returned for plain-http requests on https-only clients.
var ErrSchemeNotAllowed = errors.New(errors.PhaseExchange, errors.KindNetwork).
	Detail("URL scheme is not allowed").
	Build()

// transport is the connection layer under a client.
type transport interface {
	http.RoundTripper
	CloseIdleConnections()
}

func newTransport(cfg Config, profile *tlsprofile.Profile, roots *x509.CertPool, log *zap.Logger) (transport, error) {
	dialer := &net.Dialer{
		Timeout:   cfg.connectTimeout(),
		KeepAlive: 30 * time.Second,
	}
	if profile != nil {
		return newHelloTransport(cfg, profile, roots, dialer, log), nil
	}

	t := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			RootCAs:            roots,
			InsecureSkipVerify: cfg.allowInvalidCertificates(),
		},
		TLSHandshakeTimeout:   cfg.connectTimeout(),
		IdleConnTimeout:       cfg.idleTimeout(),
		MaxIdleConns:          100,
		ExpectContinueTimeout: time.Second,
	}
	if _, err := http2.ConfigureTransports(t); err != nil {
		return nil, err
	}
	return t, nil
}

// roundTripper layers profile headers, scheme policy and connection tracing
// over the base transport.
type roundTripper struct {
	base      http.RoundTripper
	profile   *tlsprofile.Profile
	logger    *zap.Logger
	httpsOnly bool
	verbose   bool
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.httpsOnly && req.URL.Scheme != "https" {
		return nil, ErrSchemeNotAllowed
	}

	if rt.profile != nil || rt.verbose {
		ctx := req.Context()
		if rt.verbose {
			ctx = httptrace.WithClientTrace(ctx, rt.trace(req))
		}
		req = req.Clone(ctx)
		if rt.profile != nil {
			for _, h := range rt.profile.Headers {
				if req.Header.Get(h.Name) == "" {
					req.Header.Set(h.Name, h.Value)
				}
			}
		}
	}

	return rt.base.RoundTrip(req)
}

func (rt *roundTripper) trace(req *http.Request) *httptrace.ClientTrace {
	log := rt.logger.With(zap.String("url", req.URL.Redacted()))
	return &httptrace.ClientTrace{
		DNSDone: func(info httptrace.DNSDoneInfo) {
			log.Debug("dns resolved", zap.Int("addrs", len(info.Addrs)), zap.Error(info.Err))
		},
		ConnectDone: func(network, addr string, err error) {
			log.Debug("connected", zap.String("network", network), zap.String("addr", addr), zap.Error(err))
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			log.Debug("tls handshake done",
				zap.String("version", tls.VersionName(state.Version)),
				zap.String("cipher", tls.CipherSuiteName(state.CipherSuite)),
				zap.String("alpn", state.NegotiatedProtocol),
				zap.Error(err))
		},
		GotConn: func(info httptrace.GotConnInfo) {
			log.Debug("got connection", zap.Bool("reused", info.Reused), zap.Bool("was_idle", info.WasIdle))
		},
	}
}
