package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dotside-studios/davi-ndef-viewer/host/demohost"
	"github.com/dotside-studios/davi-ndef-viewer/host/phonehost"
	"github.com/dotside-studios/davi-ndef-viewer/host/readerhost"
	"github.com/dotside-studios/davi-ndef-viewer/scanlog"
	"github.com/dotside-studios/davi-ndef-viewer/server"
	"github.com/dotside-studios/davi-ndef-viewer/session"
	"github.com/dotside-studios/davi-ndef-viewer/tls"
)

// app wires a reader host, the scan log and the display server together.
type app struct {
	opts    options
	store   *scanlog.Store
	host    session.Host
	scanner *session.Scanner
	server  *server.Server

	phone     *phonehost.Host
	bootstrap *tls.BootstrapServer
	tlsMgr    *tls.Manager

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newApp(opts options) (*app, error) {
	a := &app{opts: opts, store: scanlog.NewStore()}

	host, err := a.buildHost()
	if err != nil {
		return nil, err
	}
	a.host = host
	a.scanner = session.NewScanner(host, a.store)

	cfg := server.Config{
		Scanner:   a.scanner,
		Bind:      opts.Bind,
		Port:      opts.Port,
		APISecret: opts.APISecret,
		MDNS:      opts.MDNS,
	}
	if a.phone != nil {
		cfg.DeviceHandler = a.phone
	}
	if opts.TLS {
		dir, err := configDir()
		if err != nil {
			return nil, fmt.Errorf("config directory: %w", err)
		}
		a.tlsMgr = tls.NewManager(dir)
		cfg.TLSCertFile, cfg.TLSKeyFile, err = a.tlsMgr.EnsureCertificates()
		if err != nil {
			return nil, fmt.Errorf("TLS setup: %w", err)
		}
		if opts.BootstrapPort > 0 {
			a.bootstrap = tls.NewBootstrapServer(a.tlsMgr, opts.BootstrapPort)
		}
	}
	a.server = server.New(cfg)
	return a, nil
}

func (a *app) buildHost() (session.Host, error) {
	switch a.opts.Host {
	case hostDemo:
		return demohost.New(demohost.Config{Batches: demohost.DefaultScript(), Loop: true}), nil
	case hostPhone:
		a.phone = phonehost.New(phonehost.Config{
			AlertMessage:             a.opts.AlertMessage,
			InvalidateAfterFirstRead: a.opts.FirstRead,
			Timeout:                  a.opts.SessionTimeout,
		})
		return a.phone, nil
	case hostReader:
		return readerhost.New(readerhost.Config{
			Connection:               a.opts.Device,
			Timeout:                  a.opts.SessionTimeout,
			InvalidateAfterFirstRead: a.opts.FirstRead,
		}), nil
	}
	return nil, fmt.Errorf("unknown host %q", a.opts.Host)
}

// Start runs the server in the background. It may be called once.
func (a *app) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil {
		return errors.New("viewer already started")
	}

	if a.bootstrap != nil {
		if err := a.bootstrap.Start(); err != nil {
			log.WithError(err).Warn("CA bootstrap server unavailable")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.ctx, a.cancel = ctx, cancel
	a.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		if err := a.server.Start(ctx); err != nil {
			log.WithError(err).Error("Server failed")
			a.mu.Lock()
			a.err = err
			a.mu.Unlock()
		}
	}(a.done)

	// Phones start their own sessions once connected.
	if a.opts.AutoStart && a.phone == nil {
		if err := a.scanner.Start(ctx); err != nil {
			log.WithError(err).Warn("Could not start reader session")
		}
	}
	return nil
}

// serverContext is cancelled when the viewer stops.
func (a *app) serverContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// Wait blocks until the server stops and returns its error.
func (a *app) Wait() error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Stop shuts everything down.
func (a *app) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if a.bootstrap != nil {
		a.bootstrap.Stop()
	}
	if a.phone != nil {
		a.phone.Close()
	}
	log.Info("Viewer stopped")
}

// Running reports whether the server is up.
func (a *app) Running() bool {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// DisplayURL is the WebSocket address displays connect to.
func (a *app) DisplayURL(ip string) string {
	scheme := "ws"
	if a.opts.TLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, ip, a.opts.Port, server.DisplayWSPath)
}

// DeviceURL is the address the phone app connects to, empty for other hosts.
func (a *app) DeviceURL(ip string) string {
	if a.phone == nil {
		return ""
	}
	scheme := "ws"
	if a.opts.TLS {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, ip, a.opts.Port, server.DeviceWSPath)
}

// BootstrapURL is the CA download page, empty without TLS.
func (a *app) BootstrapURL(ip string) string {
	if a.bootstrap == nil {
		return ""
	}
	return fmt.Sprintf("http://%s:%d", ip, a.opts.BootstrapPort)
}

// primaryIP returns the first LAN address, or localhost.
func primaryIP() string {
	if ips, err := tls.GetLANIPs(); err == nil && len(ips) > 0 {
		return ips[0]
	}
	return "localhost"
}
