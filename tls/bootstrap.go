package tls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dotside-studios/davi-ndef-viewer/buildinfo"
)

// BootstrapServer serves the CA certificate over plain HTTP so a phone can
// trust the viewer before it connects over wss://.
type BootstrapServer struct {
	manager    *Manager
	port       int
	httpServer *http.Server
}

// NewBootstrapServer creates a bootstrap server for CA distribution.
func NewBootstrapServer(manager *Manager, port int) *BootstrapServer {
	return &BootstrapServer{manager: manager, port: port}
}

// Handler returns the bootstrap routes.
func (s *BootstrapServer) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ca.pem", s.handleCACert)
	r.GET("/ca.crt", s.handleCACert)
	r.GET("/", s.handleInstructions)
	return r
}

// Start serves in the background until Stop.
func (s *BootstrapServer) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("bootstrap listen: %w", err)
	}
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	entry := log.WithField("port", s.port)
	if fingerprint, err := s.manager.GetCAFingerprint(); err == nil {
		entry = entry.WithField("caFingerprint", fingerprint)
	}
	entry.WithField("urls", downloadURLs(s.port)).Info("CA bootstrap server running")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Bootstrap server error")
		}
	}()
	return nil
}

// Stop shuts the bootstrap server down.
func (s *BootstrapServer) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
}

func (s *BootstrapServer) handleCACert(c *gin.Context) {
	caCert, err := s.manager.ReadCACert()
	if err != nil {
		c.String(http.StatusNotFound, "CA certificate not found")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", buildinfo.Name+"-ca.pem"))
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(http.StatusOK, "application/x-pem-file", caCert)

	log.WithField("remote", c.ClientIP()).Info("CA certificate downloaded")
}

var instructionsTmpl = template.Must(template.New("instructions").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.App}} - Install CA Certificate</title>
<style>
body { font-family: -apple-system, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; }
.fingerprint { font-family: monospace; font-size: 0.75em; background: #f0f0f0; padding: 12px; word-break: break-all; }
</style>
</head>
<body>
<h1>Install CA Certificate</h1>
<p>Install this certificate authority on your phone to send tags to {{.App}}.</p>
<p><a href="/ca.pem">Download CA Certificate</a></p>
<p>Check that the fingerprint matches the one in the {{.App}} logs before trusting it.</p>
<div class="fingerprint">{{if .Fingerprint}}{{.Fingerprint}}{{else}}unavailable{{end}}</div>
<h2>iOS</h2>
<ol>
<li>Tap the download link above</li>
<li>Open <strong>Settings, Profile Downloaded</strong> and tap <strong>Install</strong></li>
<li>Enable full trust under <strong>General, About, Certificate Trust Settings</strong></li>
</ol>
<h2>Android</h2>
<ol>
<li>Tap the download link above</li>
<li>Open <strong>Security, Encryption &amp; credentials, Install a certificate, CA certificate</strong></li>
<li>Select the downloaded file</li>
</ol>
<h2>Download URLs</h2>
<ul>{{range .URLs}}<li><code>{{.}}</code></li>{{end}}</ul>
</body>
</html>
`))

func (s *BootstrapServer) handleInstructions(c *gin.Context) {
	fingerprint, _ := s.manager.GetCAFingerprint()

	var buf bytes.Buffer
	err := instructionsTmpl.Execute(&buf, struct {
		App, Fingerprint string
		URLs             []string
	}{buildinfo.DisplayName, fingerprint, downloadURLs(s.port)})
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to render instructions")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// downloadURLs lists the CA URL for localhost and every LAN address.
func downloadURLs(port int) []string {
	urls := []string{fmt.Sprintf("http://localhost:%d/ca.pem", port)}
	hosts, _ := GetLANIPs()
	for _, h := range hosts {
		urls = append(urls, fmt.Sprintf("http://%s:%d/ca.pem", h, port))
	}
	return urls
}
