// Package client builds and owns the HTTP clients requests are executed on.
//
// A client is created from a Config: an optional impersonation profile,
// request, connect and idle timeouts, and certificate and scheme policy.
// The Registry validates the configuration, asks its tlsprofile.Provider for
// the trust store and profile, builds the transport and hands back an opaque
// Handle. Destroying a handle closes the client's idle pooled connections;
// zero and already destroyed handles are ignored.
//
// A client with a profile performs its TLS handshakes with the profile's
// ClientHello through utls. HTTP/1.1 or HTTP/2 is chosen per authority from
// the ALPN the server negotiated. Such clients do not use a proxy. A client
// without a profile uses the standard TLS stack.
package client
