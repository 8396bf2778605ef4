package tlsprofile

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	stderrors "errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	utls "github.com/refraction-networking/utls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func selfSigned(t *testing.T, cn string) (*x509.Certificate, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

var errNoSystem = stderrors.New("no system roots")

func noSystemPool() (*x509.CertPool, error) { return nil, errNoSystem }

func TestTrustStore_CertFile(t *testing.T) {
	dir := t.TempDir()
	cert, data := selfSigned(t, "file-root")
	path := writeFile(t, dir, "bundle.pem", data)

	p := NewProvider(
		WithLookupEnv(env(map[string]string{"SSL_CERT_FILE": path})),
		WithAndroidCertDir(""),
		WithSystemPool(noSystemPool),
	)
	pool, err := p.TrustStore()
	require.NoError(t, err)

	want := x509.NewCertPool()
	want.AddCert(cert)
	assert.True(t, pool.Equal(want))
}

func TestTrustStore_CertDir(t *testing.T) {
	dir := t.TempDir()
	a, da := selfSigned(t, "a")
	b, db := selfSigned(t, "b")
	writeFile(t, dir, "a.0", da)
	writeFile(t, dir, "b.0", db)

	p := NewProvider(
		WithLookupEnv(env(map[string]string{"SSL_CERT_DIR": dir})),
		WithAndroidCertDir(""),
		WithSystemPool(noSystemPool),
	)
	pool, err := p.TrustStore()
	require.NoError(t, err)

	want := x509.NewCertPool()
	want.AddCert(a)
	want.AddCert(b)
	assert.True(t, pool.Equal(want))
}

func TestTrustStore_AndroidDir(t *testing.T) {
	dir := t.TempDir()
	cert, data := selfSigned(t, "android")
	writeFile(t, dir, "abcd1234.0", data)

	p := NewProvider(
		WithLookupEnv(env(nil)),
		WithAndroidCertDir(dir),
		WithSystemPool(noSystemPool),
	)
	pool, err := p.TrustStore()
	require.NoError(t, err)

	want := x509.NewCertPool()
	want.AddCert(cert)
	assert.True(t, pool.Equal(want))
}

func TestTrustStore_AllInvalid(t *testing.T) {
	dir := t.TempDir()
	bad := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("garbage")})
	path := writeFile(t, dir, "bad.pem", bad)

	_, err := loadPEMFiles(zap.NewNop(), []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all loaded certificates are invalid")

	p := NewProvider(
		WithLookupEnv(env(map[string]string{"SSL_CERT_FILE": path})),
		WithAndroidCertDir(""),
		WithSystemPool(noSystemPool),
	)
	_, err = p.TrustStore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all loaded certificates are invalid")
}

func TestTrustStore_FallbackToSystem(t *testing.T) {
	sys, _ := selfSigned(t, "system")
	calls := 0
	system := func() (*x509.CertPool, error) {
		calls++
		pool := x509.NewCertPool()
		pool.AddCert(sys)
		return pool, nil
	}

	p := NewProvider(
		WithLookupEnv(env(map[string]string{"SSL_CERT_FILE": "/nonexistent/bundle.pem"})),
		WithAndroidCertDir(""),
		WithSystemPool(system),
	)
	pool, err := p.TrustStore()
	require.NoError(t, err)

	want := x509.NewCertPool()
	want.AddCert(sys)
	assert.True(t, pool.Equal(want))

	_, err = p.TrustStore()
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "trust store must be loaded once")
}

func TestTrustStore_PartialInvalid(t *testing.T) {
	dir := t.TempDir()
	cert, good := selfSigned(t, "good")
	bad := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("garbage")})
	path := writeFile(t, dir, "mixed.pem", append(bad, good...))

	pool, err := loadPEMFiles(zap.NewNop(), []string{path})
	require.NoError(t, err)

	want := x509.NewCertPool()
	want.AddCert(cert)
	assert.True(t, pool.Equal(want))
}

func TestProfiles(t *testing.T) {
	p := NewProvider()

	names := p.Profiles()
	assert.Contains(t, names, "chrome_129")
	assert.Contains(t, names, "safari_ios_17.2")
	assert.Contains(t, names, "okhttp_5")
	assert.Contains(t, names, "edge_127")
	assert.IsIncreasing(t, names)

	chrome, ok := p.Profile("chrome_129")
	require.True(t, ok)
	assert.Equal(t, "chrome", chrome.Family)
	assert.Contains(t, chrome.UserAgent(), "Chrome/129.0.0.0")
	assert.Equal(t, utls.HelloChrome_120, chrome.Hello)

	ok5, ok := p.Profile("okhttp_5")
	require.True(t, ok)
	assert.Equal(t, "okhttp/5.0.0", ok5.UserAgent())

	okOld, _ := p.Profile("okhttp_3.9")
	assert.Equal(t, "okhttp/3.9.0", okOld.UserAgent())

	_, ok = p.Profile("netscape_4")
	assert.False(t, ok)
}

func TestProfile_Hello(t *testing.T) {
	tests := []struct {
		name string
		want utls.ClientHelloID
	}{
		{"chrome_100", utls.HelloChrome_100},
		{"chrome_104", utls.HelloChrome_102},
		{"chrome_117", utls.HelloChrome_106_Shuffle},
		{"chrome_129", utls.HelloChrome_120},
		{"edge_101", utls.HelloEdge_85},
		{"edge_127", utls.HelloEdge_106},
		{"safari_17.5", utls.HelloSafari_16_0},
		{"safari_ios_17.2", utls.HelloIOS_14},
		{"safari_ipad_18", utls.HelloIOS_Auto},
		{"okhttp_4.10", utls.HelloAndroid_11_OkHttp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Lookup(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Hello)
		})
	}
}
