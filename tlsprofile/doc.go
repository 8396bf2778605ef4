// Package tlsprofile provides the trust store and the impersonation profiles
// clients are built from.
//
// A profile bundles the ClientHello to replay, HTTP/2 settings and default
// headers that make a client look like a given browser or HTTP library. Profiles are
// named after the client they mimic: chrome_129, edge_127, safari_17.5,
// safari_ios_17.2, okhttp_4.10 and so on.
//
// The trust store is loaded on first use and cached for the process lifetime.
// Sources are tried in order: SSL_CERT_FILE, SSL_CERT_DIR, the Android system
// certificate directory, then the platform pool.
package tlsprofile
