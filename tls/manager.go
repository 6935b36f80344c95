package tls

import (
	"bufio"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jittering/truststore"

	"github.com/dotside-studios/davi-ndef-viewer/internal/logging"
)

var log = logging.For("tls")

// Manager keeps a local CA and a server certificate for the viewer's LAN
// addresses, so phones can connect over wss://.
type Manager struct {
	configDir  string
	tlsDir     string
	caDir      string
	caCertFile string
	certFile   string
	keyFile    string
	hostsFile  string

	// hosts lists the names to certify; defaults to GetAllHosts.
	hosts func() ([]string, error)
}

// NewManager creates a TLS manager rooted at configDir.
func NewManager(configDir string) *Manager {
	tlsDir := filepath.Join(configDir, "tls")
	caDir := filepath.Join(configDir, "ca")
	return &Manager{
		configDir:  configDir,
		tlsDir:     tlsDir,
		caDir:      caDir,
		caCertFile: filepath.Join(caDir, "rootCA.pem"),
		certFile:   filepath.Join(tlsDir, "server.crt"),
		keyFile:    filepath.Join(tlsDir, "server.key"),
		hostsFile:  filepath.Join(tlsDir, "hosts.txt"),
		hosts:      GetAllHosts,
	}
}

// EnsureCertificates returns the server certificate and key paths,
// generating them when missing or when the LAN addresses changed.
// Installing the CA may prompt the user for a password.
func (m *Manager) EnsureCertificates() (certFile, keyFile string, err error) {
	if err := os.MkdirAll(m.tlsDir, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create TLS directory: %w", err)
	}

	hosts, err := m.hosts()
	if err != nil {
		log.WithError(err).Warn("Failed to get LAN IPs")
		hosts = []string{"localhost", "127.0.0.1"}
	}
	log.WithField("hosts", hosts).Debug("Hosts for certificate")

	switch {
	case !m.certsExist():
		log.Info("Certificates not found, generating")
	case m.hostsChanged(hosts):
		log.Info("Network configuration changed, regenerating certificates")
	default:
		log.Debug("Using existing certificates")
		return m.certFile, m.keyFile, nil
	}

	if err := m.generateCertificates(hosts); err != nil {
		return "", "", err
	}
	return m.certFile, m.keyFile, nil
}

func (m *Manager) certsExist() bool {
	_, certErr := os.Stat(m.certFile)
	_, keyErr := os.Stat(m.keyFile)
	return certErr == nil && keyErr == nil
}

// hostsChanged compares hosts with the set the certificate was made for.
func (m *Manager) hostsChanged(hosts []string) bool {
	cached, err := m.readCachedHosts()
	if err != nil {
		return true
	}
	a, b := slices.Clone(cached), slices.Clone(hosts)
	slices.Sort(a)
	slices.Sort(b)
	return !slices.Equal(a, b)
}

func (m *Manager) readCachedHosts() ([]string, error) {
	file, err := os.Open(m.hostsFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var hosts []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if host := strings.TrimSpace(scanner.Text()); host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts, scanner.Err()
}

func (m *Manager) writeCachedHosts(hosts []string) error {
	return os.WriteFile(m.hostsFile, []byte(strings.Join(hosts, "\n")+"\n"), 0600)
}

func (m *Manager) generateCertificates(hosts []string) error {
	if err := os.MkdirAll(m.caDir, 0700); err != nil {
		return fmt.Errorf("failed to create CA directory: %w", err)
	}
	// truststore keeps its CA under CAROOT.
	os.Setenv("CAROOT", m.caDir)

	ml, err := truststore.NewLib()
	if err != nil {
		return fmt.Errorf("failed to initialize truststore: %w", err)
	}

	log.Info("Ensuring CA is installed in system trust store (you may be prompted for your password)")
	if err := ml.Install(); err != nil {
		return fmt.Errorf("failed to install CA: %w", err)
	}

	cert, err := ml.MakeCert(hosts, m.tlsDir)
	if err != nil {
		return fmt.Errorf("failed to generate certificate: %w", err)
	}
	if err := moveIfDifferent(cert.CertFile, m.certFile); err != nil {
		return fmt.Errorf("failed to rename cert file: %w", err)
	}
	if err := moveIfDifferent(cert.KeyFile, m.keyFile); err != nil {
		return fmt.Errorf("failed to rename key file: %w", err)
	}

	if err := m.writeCachedHosts(hosts); err != nil {
		log.WithError(err).Warn("Failed to cache hosts")
	}

	entry := log.WithField("cert", m.certFile)
	if fingerprint, err := m.GetCAFingerprint(); err == nil {
		entry = entry.WithField("caFingerprint", fingerprint)
	}
	entry.Info("Certificate generated")
	return nil
}

func moveIfDifferent(from, to string) error {
	if from == to {
		return nil
	}
	return os.Rename(from, to)
}

// CACertFile returns the path to the CA certificate.
func (m *Manager) CACertFile() string {
	return m.caCertFile
}

// GetCAFingerprint returns the SHA256 fingerprint of the CA certificate as
// colon-separated hex.
func (m *Manager) GetCAFingerprint() (string, error) {
	certPEM, err := m.ReadCACert()
	if err != nil {
		return "", fmt.Errorf("failed to read CA certificate: %w", err)
	}
	return fingerprintPEM(certPEM)
}

func fingerprintPEM(certPEM []byte) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}

// ReadCACert returns the CA certificate PEM data.
func (m *Manager) ReadCACert() ([]byte, error) {
	return os.ReadFile(m.caCertFile)
}
