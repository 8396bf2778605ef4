package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/wippyai/impersonate-engine/tlsprofile"
)

// helloTransport dials TLS with a profile's ClientHello and hands each
// connection to the HTTP/1.1 or HTTP/2 transport by negotiated ALPN. The
// protocol is learned from the first connection to an authority; that
// connection is parked and reused by whichever transport dials next.
type helloTransport struct {
	h1      *http.Transport
	h2      *http2.Transport
	dialer  *net.Dialer
	config  *utls.Config
	logger  *zap.Logger
	protos  map[string]string
	parked  map[string][]*utls.UConn
	hello   utls.ClientHelloID
	timeout time.Duration
	mu      sync.Mutex
	verbose bool
}

func newHelloTransport(cfg Config, profile *tlsprofile.Profile, roots *x509.CertPool, dialer *net.Dialer, log *zap.Logger) *helloTransport {
	t := &helloTransport{
		dialer: dialer,
		config: &utls.Config{
			RootCAs:            roots,
			InsecureSkipVerify: cfg.allowInvalidCertificates(),
		},
		logger:  log,
		protos:  make(map[string]string),
		parked:  make(map[string][]*utls.UConn),
		hello:   profile.Hello,
		timeout: cfg.connectTimeout(),
		verbose: cfg.VerboseLogging,
	}

	t.h1 = &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.conn(ctx, network, addr)
		},
		IdleConnTimeout:       cfg.idleTimeout(),
		MaxIdleConns:          100,
		ExpectContinueTimeout: time.Second,
	}
	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return t.conn(ctx, network, addr)
		},
		IdleConnTimeout:            cfg.idleTimeout(),
		MaxHeaderListSize:          profile.HTTP2.MaxHeaderListSize,
		MaxReadFrameSize:           profile.HTTP2.MaxReadFrameSize,
		StrictMaxConcurrentStreams: profile.HTTP2.StrictMaxConcurrentStreams,
	}
	return t
}

func (t *helloTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	addr := authority(req.URL)
	t.mu.Lock()
	proto, known := t.protos[addr]
	t.mu.Unlock()

	if !known {
		conn, err := t.dial(req.Context(), "tcp", addr)
		if err != nil {
			return nil, err
		}
		proto = conn.ConnectionState().NegotiatedProtocol
		t.mu.Lock()
		t.protos[addr] = proto
		t.parked[addr] = append(t.parked[addr], conn)
		t.mu.Unlock()
	}

	if proto == http2.NextProtoTLS {
		return t.h2.RoundTrip(req)
	}
	return t.h1.RoundTrip(req)
}

// conn returns a parked connection for addr or dials a new one.
func (t *helloTransport) conn(ctx context.Context, network, addr string) (net.Conn, error) {
	t.mu.Lock()
	if parked := t.parked[addr]; len(parked) > 0 {
		conn := parked[len(parked)-1]
		t.parked[addr] = parked[:len(parked)-1]
		t.mu.Unlock()
		return conn, nil
	}
	t.mu.Unlock()
	return t.dial(ctx, network, addr)
}

func (t *helloTransport) dial(ctx context.Context, network, addr string) (*utls.UConn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	raw, err := t.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	cfg := t.config.Clone()
	cfg.ServerName = host
	conn := utls.UClient(raw, cfg, t.hello)

	hctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := conn.HandshakeContext(hctx); err != nil {
		raw.Close()
		return nil, err
	}

	if t.verbose {
		state := conn.ConnectionState()
		t.logger.Debug("tls handshake done",
			zap.String("addr", addr),
			zap.String("hello", t.hello.Str()),
			zap.String("version", tls.VersionName(state.Version)),
			zap.String("cipher", tls.CipherSuiteName(state.CipherSuite)),
			zap.String("alpn", state.NegotiatedProtocol))
	}
	return conn, nil
}

func (t *helloTransport) CloseIdleConnections() {
	t.h1.CloseIdleConnections()
	t.h2.CloseIdleConnections()

	t.mu.Lock()
	parked := t.parked
	t.parked = make(map[string][]*utls.UConn)
	t.mu.Unlock()
	for _, conns := range parked {
		for _, c := range conns {
			c.Close()
		}
	}
}

// authority returns host:port with the scheme's default port filled in.
func authority(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
