package tls

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBootstrapServesCA(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr := NewManager(t.TempDir())
	srv := NewBootstrapServer(mgr, 8081)
	h := srv.Handler()

	// No CA generated yet.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ca.pem", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /ca.pem without CA = %d, want 404", rec.Code)
	}

	writeTestCA(t, mgr.CACertFile())
	for _, path := range []string{"/ca.pem", "/ca.crt"} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, want 200", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/x-pem-file" {
			t.Errorf("GET %s content type = %q", path, ct)
		}
		if !strings.Contains(rec.Body.String(), "BEGIN CERTIFICATE") {
			t.Errorf("GET %s body is not a PEM certificate", path)
		}
	}
}

func TestBootstrapInstructions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr := NewManager(t.TempDir())
	writeTestCA(t, mgr.CACertFile())
	fp, err := mgr.GetCAFingerprint()
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	NewBootstrapServer(mgr, 8081).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{fp, "http://localhost:8081/ca.pem"} {
		if !strings.Contains(body, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
}
