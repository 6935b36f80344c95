// Package phonehost drives reader sessions on a companion phone app over a
// WebSocket. The phone owns the NFC radio; the viewer asks it to begin and
// invalidate sessions and receives the detected NDEF messages.
package phonehost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-ndef-viewer/buildinfo"
	"github.com/dotside-studios/davi-ndef-viewer/internal/logging"
	"github.com/dotside-studios/davi-ndef-viewer/protocol"
	"github.com/dotside-studios/davi-ndef-viewer/session"
)

var log = logging.For("phonehost")

var (
	ErrNoDevice   = errors.New("no phone reader connected")
	ErrDeviceLost = errors.New("phone reader disconnected")
)

// Config holds session options sent to the phone.
type Config struct {
	// AlertMessage is shown by the phone while scanning.
	AlertMessage string
	// InvalidateAfterFirstRead ends the session after one detection.
	InvalidateAfterFirstRead bool
	// Timeout ends a session the phone never reports on. Zero uses SessionTimeout.
	Timeout time.Duration
	// DeviceTimeout drops devices that stop sending heartbeats. Zero uses DeviceTimeout.
	DeviceTimeout time.Duration
}

// Host implements session.Host for phones connected on /ws/device.
type Host struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	devices map[string]*Device
	current *run

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

type run struct {
	handler session.EventHandler
	device  *Device
	cancel  context.CancelFunc
}

// New creates a phone host and starts its device cleanup routine.
func New(cfg Config) *Host {
	if cfg.Timeout <= 0 {
		cfg.Timeout = SessionTimeout
	}
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = DeviceTimeout
	}
	if cfg.AlertMessage == "" {
		cfg.AlertMessage = "Hold your iPhone near the item to learn more about it."
	}

	h := &Host{
		cfg:     cfg,
		devices: make(map[string]*Device),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Phones do not send a browser origin
			},
		},
		stopCleanup: make(chan struct{}),
	}
	go h.cleanupRoutine()
	return h
}

func (h *Host) Name() string { return "phone" }

// Devices returns the registered phones, oldest first.
func (h *Host) Devices() []*Device {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Device, 0, len(h.devices))
	for _, d := range h.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].registered.Before(out[j].registered) })
	return out
}

// Begin asks the most recently registered phone to start a reader session.
func (h *Host) Begin(ctx context.Context, eh session.EventHandler) error {
	h.mu.Lock()
	if h.current != nil {
		h.mu.Unlock()
		return session.ErrAlreadyActive
	}
	device := h.newestDeviceLocked()
	if device == nil {
		h.mu.Unlock()
		return ErrNoDevice
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	r := &run{handler: eh, device: device, cancel: cancel}
	h.current = r
	h.mu.Unlock()

	err := device.send(protocol.DeviceTypeBeginSession, protocol.BeginSessionPayload{
		AlertMessage:             h.cfg.AlertMessage,
		InvalidateAfterFirstRead: h.cfg.InvalidateAfterFirstRead,
	})
	if err != nil {
		h.mu.Lock()
		h.current = nil
		h.mu.Unlock()
		cancel()
		return fmt.Errorf("send beginSession to %s: %w", device, err)
	}

	go h.watch(ctx, r)
	log.WithField("device", device.String()).Info("Reader session started on phone")
	return nil
}

// watch ends r when its context expires.
func (h *Host) watch(ctx context.Context, r *run) {
	<-ctx.Done()
	if !h.isCurrent(r) {
		return
	}
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		err = session.ErrTimeout
	}
	if sendErr := r.device.send(protocol.DeviceTypeInvalidateSession, nil); sendErr != nil {
		log.WithError(sendErr).Debug("Failed to send invalidateSession")
	}
	h.end(r, err)
}

// Invalidate asks the phone to end its session.
func (h *Host) Invalidate() error {
	h.mu.Lock()
	r := h.current
	h.mu.Unlock()
	if r == nil {
		return session.ErrNotActive
	}

	if err := r.device.send(protocol.DeviceTypeInvalidateSession, nil); err != nil {
		log.WithError(err).Warn("Failed to send invalidateSession")
	}
	h.end(r, session.ErrUserCanceled)
	return nil
}

// Close drops every device and stops background work.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		close(h.stopCleanup)
		for _, d := range h.Devices() {
			d.close()
		}
	})
}

func (h *Host) isCurrent(r *run) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current == r
}

func (h *Host) activeFor(device *Device) *run {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil && h.current.device == device {
		return h.current
	}
	return nil
}

// end reports the end of r once.
func (h *Host) end(r *run, err error) {
	h.mu.Lock()
	if h.current != r {
		h.mu.Unlock()
		return
	}
	h.current = nil
	h.mu.Unlock()

	r.cancel()
	r.handler.OnSessionInvalidated(err)
}

func (h *Host) newestDeviceLocked() *Device {
	var newest *Device
	for _, d := range h.devices {
		if newest == nil || d.registered.After(newest.registered) {
			newest = d
		}
	}
	return newest
}

func (h *Host) register(req protocol.DeviceRegistrationRequest, conn *websocket.Conn) (*Device, error) {
	if req.DeviceName == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if req.Platform != "ios" && req.Platform != "android" {
		return nil, fmt.Errorf("invalid platform: %s (must be 'ios' or 'android')", req.Platform)
	}

	device := newDevice(uuid.New().String(), req, conn)
	h.mu.Lock()
	h.devices[device.id] = device
	h.mu.Unlock()
	return device, nil
}

// unregister removes device and fails its session, if any.
func (h *Host) unregister(device *Device, cause error) {
	h.mu.Lock()
	delete(h.devices, device.id)
	h.mu.Unlock()

	if r := h.activeFor(device); r != nil {
		h.end(r, &session.SessionError{Reason: session.ReasonReadError, Cause: cause})
	}
}

func (h *Host) cleanupRoutine() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupInactiveDevices()
		case <-h.stopCleanup:
			return
		}
	}
}

func (h *Host) cleanupInactiveDevices() {
	now := time.Now()
	for _, d := range h.Devices() {
		if idle := now.Sub(d.LastSeen()); idle > h.cfg.DeviceTimeout {
			log.WithField("device", d.String()).Infof("Cleaning up inactive device (last seen %v ago)", idle)
			// Closing the connection makes its read loop unregister it.
			d.close()
		}
	}
}

func serverInfo() protocol.ServerInfo {
	return protocol.ServerInfo{Name: buildinfo.Name, Version: buildinfo.Version}
}
