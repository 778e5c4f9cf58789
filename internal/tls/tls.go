// Package tls builds the server TLS configuration for the issue store.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	caCrtName = "tls_ca.crt"
	crtName   = "tls.crt"
	keyName   = "tls.key"

	defaultValidDays = 365 * 5
)

// Options selects where the server certificate comes from. CertFile/KeyFile
// win over Dir. With AutoGenerate a self-signed pair is written to Dir when
// none exists yet.
type Options struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
	MinVersion   string   `toml:"min_version" mapstructure:"min_version"`
}

func parseVersion(ver string) (uint16, error) {
	switch strings.ToLower(ver) {
	case "", "default", "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

// Setup returns nil when TLS is disabled.
func Setup(o Options) (*tls.Config, error) {
	if !o.Enabled {
		return nil, nil
	}
	minVer, err := parseVersion(o.MinVersion)
	if err != nil {
		return nil, err
	}

	if o.CertFile != "" && o.KeyFile != "" {
		return newConfig(o.CertFile, o.KeyFile, minVer), nil
	}
	if o.Dir == "" {
		return nil, errors.New("tls enabled but neither cert_file/key_file nor dir is set")
	}

	certPath := filepath.Join(o.Dir, crtName)
	keyPath := filepath.Join(o.Dir, keyName)
	if !exists(certPath, keyPath) {
		if !o.AutoGenerate {
			return nil, fmt.Errorf("no certificate in %s and auto_generate is off", o.Dir)
		}
		if err := generate(o); err != nil {
			return nil, fmt.Errorf("certificate generation failed: %w", err)
		}
	}
	return newConfig(certPath, keyPath, minVer), nil
}

// newConfig loads the pair from disk on every handshake.
func newConfig(certPath, keyPath string, minVer uint16) *tls.Config {
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			cert, err := tls.LoadX509KeyPair(filepath.Clean(certPath), filepath.Clean(keyPath))
			if err != nil {
				return nil, err
			}
			return &cert, nil
		},
		MinVersion: minVer,
	}
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func generate(o Options) error {
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", o.Dir, err)
	}
	cn := o.CommonName
	if cn == "" {
		cn = "localhost"
	}
	dns := o.DNSNames
	if len(dns) == 0 {
		dns = []string{"localhost"}
	}
	days := o.ValidDays
	if days <= 0 {
		days = defaultValidDays
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   cn,
		Organization: "swupdate",
		DNSNames:     dns,
		IPAddresses:  []string{"127.0.0.1"},
		NotAfter:     time.Now().AddDate(0, 0, days),
		CertPath:     filepath.Join(o.Dir, crtName),
		KeyPath:      filepath.Join(o.Dir, keyName),
		CACertPath:   filepath.Join(o.Dir, caCrtName),
	})
}
