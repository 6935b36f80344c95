package phonehost

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-ndef-viewer/protocol"
)

// Device is a registered phone reader.
type Device struct {
	id           string
	name         string
	platform     string
	appVersion   string
	capabilities protocol.DeviceCapabilities
	registered   time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla connections allow one concurrent writer

	mu       sync.RWMutex
	lastSeen time.Time
}

func newDevice(id string, req protocol.DeviceRegistrationRequest, conn *websocket.Conn) *Device {
	now := time.Now()
	return &Device{
		id:           id,
		name:         req.DeviceName,
		platform:     req.Platform,
		appVersion:   req.AppVersion,
		capabilities: req.Capabilities,
		registered:   now,
		conn:         conn,
		lastSeen:     now,
	}
}

// ID returns the device UUID.
func (d *Device) ID() string { return d.id }

// Name returns the human-readable device name.
func (d *Device) Name() string { return d.name }

// Platform returns "ios" or "android".
func (d *Device) Platform() string { return d.platform }

func (d *Device) String() string {
	return fmt.Sprintf("%s [%s %s]", d.name, d.platform, d.id)
}

// LastSeen returns the last activity timestamp.
func (d *Device) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

func (d *Device) touch() {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()
}

// send writes one envelope to the phone.
func (d *Device) send(msgType string, payload any) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return d.conn.WriteJSON(protocol.WebSocketMessage{Type: msgType, Payload: payload})
}

func (d *Device) sendResponse(resp protocol.WebSocketResponse) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return d.conn.WriteJSON(resp)
}

func (d *Device) close() error {
	return d.conn.Close()
}
