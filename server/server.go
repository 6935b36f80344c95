// Package server provides the display server: a REST API and a WebSocket
// feed over the scan log, plus mDNS advertisement.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/dotside-studios/davi-ndef-viewer/buildinfo"
	"github.com/dotside-studios/davi-ndef-viewer/internal/logging"
	"github.com/dotside-studios/davi-ndef-viewer/protocol"
	"github.com/dotside-studios/davi-ndef-viewer/scanlog"
	"github.com/dotside-studios/davi-ndef-viewer/session"
)

var log = logging.For("server")

// Config holds the server configuration
type Config struct {
	Scanner *session.Scanner
	Bind    string // listen address, empty for all interfaces
	Port    int

	// APISecret, when set, is required on /ws and the REST API as the
	// "secret" query parameter or the X-API-Secret header.
	APISecret string

	// DeviceHandler serves phone connections on /ws/device (optional).
	DeviceHandler http.Handler

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	MDNS bool
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config  Config
	scanner *session.Scanner
	store   *scanlog.Store

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	registry   *HandlerRegistry
	clients    *clientManager

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	started    bool
	mdnsServer *zeroconf.Server
}

// New creates a server over cfg.Scanner and registers it as a display.
func New(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:  cfg,
		scanner: cfg.Scanner,
		store:   cfg.Scanner.Store(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		registry: NewHandlerRegistry(),
		clients:  newClientManager(),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.registerHandlers()
	s.registry.RegisterLifecycle(s.runScanner)
	s.registry.RegisterLifecycle(s.watchStore)
	s.scanner.AddNotifier(s)
	s.engine = s.routes()
	return s
}

// Handle registers a display request handler.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.registry.Handle(messageType, handler)
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ClientCount returns the number of connected displays.
func (s *Server) ClientCount() int {
	return s.clients.count()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware())

	api := r.Group(APIPrefix)
	api.GET("/health", s.handleHealth)

	authed := api.Group("", s.requireSecret())
	authed.GET("/batches", s.handleListBatches)
	authed.POST("/batches", s.handleInjectBatch)
	authed.DELETE("/batches", s.handleClearLog)
	authed.GET("/batches/:batch", s.handleGetBatch)
	authed.GET("/batches/:batch/messages/:message", s.handleGetMessage)
	authed.GET("/session", s.handleGetSession)
	authed.POST("/session/start", s.handleStartSession)
	authed.POST("/session/stop", s.handleStopSession)

	r.GET(DisplayWSPath, s.requireSecret(), s.handleWebSocket)
	if s.config.DeviceHandler != nil {
		r.GET(DeviceWSPath, gin.WrapH(s.config.DeviceHandler))
	}

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "%s running", buildinfo.DisplayName)
	})
	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", CORSAllowOrigin)
		c.Header("Access-Control-Allow-Methods", CORSAllowMethods)
		c.Header("Access-Control-Allow-Headers", CORSAllowHeaders)
		c.Header("Server", buildinfo.ServerHeader())

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("status", c.Writer.Status()).
			WithField("duration", time.Since(start)).
			Debug("Request")
	}
}

func (s *Server) requireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.APISecret == "" {
			c.Next()
			return
		}
		secret := c.Query(secretQueryKey)
		if secret == "" {
			secret = c.GetHeader(secretHeaderKey)
		}
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.config.APISecret)) != 1 {
			log.WithField("remote", c.ClientIP()).Warn("Request rejected: invalid API secret")
			c.AbortWithStatusJSON(http.StatusUnauthorized, protocol.ErrorResponse{
				Error:     "invalid API secret",
				ErrorCode: protocol.ErrCodeInvalidRequest,
			})
			return
		}
		c.Next()
	}
}

// Refresh implements session.Notifier.
func (s *Server) Refresh(r session.Refresh) {
	payload := protocol.LogChangedPayload{Reason: scanlog.ChangeAppended.String(), BatchCount: r.BatchCount}
	if b, err := s.store.BatchAt(r.BatchIndex); err == nil {
		summary := batchSummary(r.BatchIndex, b)
		payload.Latest = &summary
	}
	s.clients.broadcast(protocol.WebSocketMessage{Type: protocol.WSTypeLogChanged, Payload: payload})
}

// SessionEnded implements session.Notifier.
func (s *Server) SessionEnded(err *session.SessionError) {
	s.clients.broadcast(protocol.WebSocketMessage{
		Type: protocol.WSTypeSessionInvalidated,
		Payload: protocol.SessionInvalidatedPayload{
			Reason:  err.Reason.String(),
			Host:    err.Host,
			Message: err.Error(),
		},
	})
	s.broadcastSessionState()
}

func (s *Server) broadcastSessionState() {
	s.clients.broadcast(protocol.WebSocketMessage{
		Type:    protocol.WSTypeSessionState,
		Payload: sessionState(s.scanner),
	})
}

func (s *Server) runScanner(ctx context.Context) {
	go func() {
		if err := s.scanner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("Scanner stopped")
		}
	}()
}

// watchStore broadcasts clears; appends arrive through Refresh.
func (s *Server) watchStore(ctx context.Context) {
	changes, unsubscribe := s.store.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-changes:
				if !ok {
					return
				}
				if c.Kind == scanlog.ChangeCleared {
					s.clients.broadcast(protocol.WebSocketMessage{
						Type:    protocol.WSTypeLogChanged,
						Payload: protocol.LogChangedPayload{Reason: c.Kind.String(), BatchCount: c.BatchCount},
					})
				}
			}
		}
	}()
}

// startBackground runs the lifecycle handlers once.
func (s *Server) startBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.registry.StartLifecycleHandlers(s.ctx)
}

// Start serves until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Bind, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.httpServer = &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	srv := s.httpServer
	s.mu.Unlock()

	tlsEnabled := s.config.TLSCertFile != "" && s.config.TLSKeyFile != ""
	go func() {
		var err error
		if tlsEnabled {
			err = srv.ServeTLS(ln, s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
			s.cancel()
		}
	}()
	log.WithField("addr", ln.Addr().String()).WithField("tls", tlsEnabled).Info("Server listening")

	if s.config.MDNS {
		if err := s.startMDNS(tlsEnabled); err != nil {
			log.WithError(err).Warn("Failed to start mDNS service, auto-discovery unavailable")
		}
	}

	s.startBackground()

	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
	log.Info("Shutting down server")
	s.Stop()
	return nil
}

// Stop stops the HTTP server gracefully and disconnects displays.
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	mdns, srv := s.mdnsServer, s.httpServer
	s.mdnsServer, s.httpServer = nil, nil
	s.mu.Unlock()

	if mdns != nil {
		mdns.Shutdown()
		log.Debug("mDNS service stopped")
	}
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Server shutdown error")
		}
	}
	s.clients.closeAll()
}
