package tlsprofile

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/impersonate-engine/errors"
)

// AndroidCertDir holds the system trust anchors on Android devices.
const AndroidCertDir = "/system/etc/security/cacerts"

func errAllInvalid() error {
	return errors.New(errors.PhaseClient, errors.KindTrustStore).
		Detail("all loaded certificates are invalid").
		Build()
}

// parsePEM appends every certificate in data to pool and reports how many
// blocks parsed and how many did not.
func parsePEM(pool *x509.CertPool, data []byte) (valid, invalid int) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return valid, invalid
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			invalid++
			continue
		}
		pool.AddCert(cert)
		valid++
	}
}

// loadPEMFiles builds a pool from PEM files. Unreadable files are logged and
// skipped; a source where nothing parses is an error.
func loadPEMFiles(log *zap.Logger, paths []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	valid, invalid := 0, 0

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Debug("failed to open certificate", zap.String("path", path), zap.Error(err))
			invalid++
			continue
		}
		v, i := parsePEM(pool, data)
		if v == 0 && i == 0 {
			log.Debug("no certificate in file", zap.String("path", path))
			invalid++
		}
		valid += v
		invalid += i
	}

	if valid == 0 {
		if invalid > 0 {
			return nil, errAllInvalid()
		}
		return nil, errors.New(errors.PhaseClient, errors.KindTrustStore).
			Detail("no certificates found").
			Build()
	}
	if invalid > 0 {
		log.Debug("failed to load some root certificates", zap.Int("invalid", invalid), zap.Int("valid", valid))
	}
	return pool, nil
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

// source is one candidate location for trust anchors.
type source struct {
	name  string
	paths func() ([]string, error)
}

func (p *DefaultProvider) sources() []source {
	var out []source

	if file, ok := p.lookupEnv("SSL_CERT_FILE"); ok && file != "" {
		out = append(out, source{name: "SSL_CERT_FILE", paths: func() ([]string, error) {
			return []string{file}, nil
		}})
	}

	if dirs, ok := p.lookupEnv("SSL_CERT_DIR"); ok && dirs != "" {
		out = append(out, source{name: "SSL_CERT_DIR", paths: func() ([]string, error) {
			var all []string
			for _, dir := range strings.Split(dirs, string(os.PathListSeparator)) {
				paths, err := listDir(dir)
				if err != nil {
					p.logger.Debug("failed to read certificate dir", zap.String("dir", dir), zap.Error(err))
					continue
				}
				all = append(all, paths...)
			}
			return all, nil
		}})
	}

	if p.androidDir != "" {
		if info, err := os.Stat(p.androidDir); err == nil && info.IsDir() {
			out = append(out, source{name: "android", paths: func() ([]string, error) {
				return listDir(p.androidDir)
			}})
		}
	}

	return out
}

// loadTrustStore tries every configured source in order and falls back to
// the system pool.
func (p *DefaultProvider) loadTrustStore() (*x509.CertPool, error) {
	var firstErr error

	for _, src := range p.sources() {
		paths, err := src.paths()
		if err == nil {
			var pool *x509.CertPool
			pool, err = loadPEMFiles(p.logger, paths)
			if err == nil {
				p.logger.Debug("loaded root certificates", zap.String("source", src.name), zap.Int("files", len(paths)))
				return pool, nil
			}
		}
		p.logger.Debug("certificate source failed", zap.String("source", src.name), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	pool, err := p.systemPool()
	if err != nil {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, errors.Wrap(errors.PhaseClient, errors.KindTrustStore, err, "failed to load system certificates")
	}
	return pool, nil
}
