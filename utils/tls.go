package utils

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/x509roots/fallback/bundle"
)

// TrustSource selects where TLS root certificates come from
type TrustSource int

const (
	// TrustBuiltin uses the Mozilla root store compiled into the binary
	TrustBuiltin TrustSource = iota
	// TrustNative loads every root certificate of the operating system store individually
	TrustNative
)

// String returns the string representation of the trust source
func (t TrustSource) String() string {
	switch t {
	case TrustNative:
		return "native"
	default:
		return "builtin"
	}
}

// nativeCertFiles and nativeCertDirs are the usual locations of the OS root store
var (
	nativeCertFiles = []string{
		"/etc/ssl/certs/ca-certificates.crt",
		"/etc/pki/tls/certs/ca-bundle.crt",
		"/etc/ssl/ca-bundle.pem",
		"/etc/pki/tls/cacert.pem",
		"/etc/pki/ca-trust/extracted/pem/tls-ca-bundle.pem",
		"/etc/ssl/cert.pem",
	}
	nativeCertDirs = []string{
		"/etc/ssl/certs",
		"/etc/pki/tls/certs",
	}
)

func loadTrustRoots(source TrustSource) (*x509.CertPool, error) {
	switch source {
	case TrustNative:
		return loadNativeCertificates(nativeCertSources())
	default:
		return builtinCertificates()
	}
}

// builtinCertificates parses the embedded NSS bundle once. The operating system
// store and SSL_CERT_FILE are never consulted.
var builtinCertificates = sync.OnceValues(func() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for root := range bundle.Roots() {
		certificate, err := x509.ParseCertificate(root.Certificate)
		if err != nil {
			return nil, fmt.Errorf("invalid builtin root certificate: %w", err)
		}
		if root.Constraint != nil {
			pool.AddCertWithConstraint(certificate, root.Constraint)
		} else {
			pool.AddCert(certificate)
		}
	}
	return pool, nil
})

// nativeCertSources honours SSL_CERT_FILE / SSL_CERT_DIR before the distribution defaults
func nativeCertSources() []string {
	if file := os.Getenv("SSL_CERT_FILE"); file != "" {
		return []string{file}
	}
	if dir := os.Getenv("SSL_CERT_DIR"); dir != "" {
		return []string{dir}
	}

	for _, file := range nativeCertFiles {
		if _, err := os.Stat(file); err == nil {
			return []string{file}
		}
	}
	return nativeCertDirs
}

// loadNativeCertificates parses each certificate found in paths and adds it to a fresh pool.
// A malformed certificate is an error, the client cannot be trusted without it.
func loadNativeCertificates(paths []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	loaded := 0

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		files := []string{path}
		if info.IsDir() {
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read certificate directory %s: %w", path, err)
			}
			files = files[:0]
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				switch filepath.Ext(entry.Name()) {
				case ".pem", ".crt":
					files = append(files, filepath.Join(path, entry.Name()))
				}
			}
		}

		for _, file := range files {
			n, err := addPEMCertificates(pool, file)
			if err != nil {
				return nil, err
			}
			loaded += n
		}
	}

	if loaded == 0 {
		return x509.SystemCertPool()
	}
	return pool, nil
}

func addPEMCertificates(pool *x509.CertPool, file string) (int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, fmt.Errorf("failed to read certificate file %s: %w", file, err)
	}

	added := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		certificate, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return added, fmt.Errorf("invalid certificate in %s: %w", file, err)
		}
		pool.AddCert(certificate)
		added++
	}
	return added, nil
}
