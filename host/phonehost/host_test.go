package phonehost

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-ndef-viewer/ndef"
	"github.com/dotside-studios/davi-ndef-viewer/protocol"
	"github.com/dotside-studios/davi-ndef-viewer/session"
)

type handler struct {
	detected chan []ndef.Message
	ended    chan error
}

func newHandler() *handler {
	return &handler{detected: make(chan []ndef.Message, 8), ended: make(chan error, 4)}
}

func (h *handler) OnTagsDetected(m []ndef.Message) { h.detected <- m }
func (h *handler) OnSessionInvalidated(err error)  { h.ended <- err }

// phone is a test client speaking the device protocol.
type phone struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func newTestHost(t *testing.T, cfg Config) (*Host, string) {
	t.Helper()
	host := New(cfg)
	srv := httptest.NewServer(host)
	t.Cleanup(func() {
		host.Close()
		srv.Close()
	})
	return host, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connectPhone(t *testing.T, url string) *phone {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	err = conn.WriteJSON(protocol.WebSocketMessage{
		ID:   "reg-1",
		Type: protocol.DeviceTypeRegister,
		Payload: protocol.DeviceRegistrationRequest{
			DeviceName: "Test iPhone",
			Platform:   "ios",
			AppVersion: "1.0.0",
		},
	})
	if err != nil {
		t.Fatalf("write registration failed: %v", err)
	}

	var resp struct {
		ID      string                              `json:"id"`
		Type    string                              `json:"type"`
		Success bool                                `json:"success"`
		Payload protocol.DeviceRegistrationResponse `json:"payload"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read registration response failed: %v", err)
	}
	if !resp.Success || resp.Type != protocol.DeviceTypeRegisterResponse || resp.Payload.DeviceID == "" {
		t.Fatalf("unexpected registration response: %+v", resp)
	}
	return &phone{t: t, conn: conn, id: resp.Payload.DeviceID}
}

func (p *phone) expect(msgType string) map[string]any {
	p.t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := p.conn.ReadJSON(&msg); err != nil {
		p.t.Fatalf("waiting for %s: %v", msgType, err)
	}
	if msg.Type != msgType {
		p.t.Fatalf("got message %q, want %q", msg.Type, msgType)
	}
	return msg.Payload
}

func (p *phone) send(msgType string, payload any) {
	p.t.Helper()
	if err := p.conn.WriteJSON(protocol.WebSocketMessage{Type: msgType, Payload: payload}); err != nil {
		p.t.Fatalf("send %s failed: %v", msgType, err)
	}
}

func waitDevices(t *testing.T, host *Host, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(host.Devices()) != n {
		if time.Now().After(deadline) {
			t.Fatalf("device count = %d, want %d", len(host.Devices()), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitEnd(t *testing.T, h *handler) error {
	t.Helper()
	select {
	case err := <-h.ended:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session end")
		return nil
	}
}

func TestBeginWithoutDevice(t *testing.T) {
	host, _ := newTestHost(t, Config{})
	if err := host.Begin(context.Background(), newHandler()); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Begin() = %v, want ErrNoDevice", err)
	}
}

func TestRegistrationRejectsBadRequest(t *testing.T) {
	_, url := newTestHost(t, Config{})
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(protocol.WebSocketMessage{
		Type:    protocol.DeviceTypeRegister,
		Payload: protocol.DeviceRegistrationRequest{DeviceName: "x", Platform: "symbian"},
	})
	var resp protocol.WebSocketResponse
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if resp.Success || resp.Type != protocol.DeviceTypeError {
		t.Errorf("expected error response, got %+v", resp)
	}
}

func TestSessionDetectionAndInvalidation(t *testing.T) {
	host, url := newTestHost(t, Config{AlertMessage: "Scan now", InvalidateAfterFirstRead: true})
	p := connectPhone(t, url)
	waitDevices(t, host, 1)

	h := newHandler()
	if err := host.Begin(context.Background(), h); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	begin := p.expect(protocol.DeviceTypeBeginSession)
	if begin["alertMessage"] != "Scan now" || begin["invalidateAfterFirstRead"] != true {
		t.Errorf("unexpected beginSession payload: %v", begin)
	}

	tnfUnknown := 9
	p.send(protocol.DeviceTypeNDEFDetected, protocol.DeviceNDEFDetected{
		DeviceID: p.id,
		Messages: []protocol.MessageInput{
			{Records: []protocol.RecordInput{{TNF: &tnfUnknown, Type: []byte("x"), Payload: []byte("hi")}}},
			{Records: []protocol.RecordInput{{RecordType: "uri", Content: "https://example.com"}}},
		},
	})

	select {
	case messages := <-h.detected:
		if len(messages) != 2 {
			t.Fatalf("got %d messages, want 2", len(messages))
		}
		if got := messages[0].Records[0].Label(); got != ndef.LabelUnknown {
			t.Errorf("label = %q, want Unknown", got)
		}
		if uri, ok := messages[1].Records[0].URI(); !ok || uri != "https://example.com" {
			t.Errorf("URI() = %q, %v", uri, ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for detection")
	}

	p.send(protocol.DeviceTypeSessionInvalidated, protocol.DeviceSessionInvalidated{
		DeviceID: p.id,
		Reason:   protocol.DeviceReasonTimeout,
		Code:     201,
		Message:  "Session timeout",
	})
	err := waitEnd(t, h)
	var se *session.SessionError
	if !errors.As(err, &se) || se.Reason != session.ReasonTimeout {
		t.Errorf("end error = %v, want timeout SessionError", err)
	}
}

func TestInvalidateSendsToPhone(t *testing.T) {
	host, url := newTestHost(t, Config{})
	p := connectPhone(t, url)
	waitDevices(t, host, 1)

	h := newHandler()
	if err := host.Begin(context.Background(), h); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	p.expect(protocol.DeviceTypeBeginSession)

	if err := host.Invalidate(); err != nil {
		t.Fatalf("Invalidate() failed: %v", err)
	}
	p.expect(protocol.DeviceTypeInvalidateSession)
	if err := waitEnd(t, h); !errors.Is(err, session.ErrUserCanceled) {
		t.Errorf("end error = %v, want ErrUserCanceled", err)
	}
}

func TestSessionTimeout(t *testing.T) {
	host, url := newTestHost(t, Config{Timeout: 50 * time.Millisecond})
	p := connectPhone(t, url)
	waitDevices(t, host, 1)

	h := newHandler()
	if err := host.Begin(context.Background(), h); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	p.expect(protocol.DeviceTypeBeginSession)

	if err := waitEnd(t, h); !errors.Is(err, session.ErrTimeout) {
		t.Errorf("end error = %v, want ErrTimeout", err)
	}
	p.expect(protocol.DeviceTypeInvalidateSession)
}

func TestDisconnectFailsSession(t *testing.T) {
	host, url := newTestHost(t, Config{})
	p := connectPhone(t, url)
	waitDevices(t, host, 1)

	h := newHandler()
	if err := host.Begin(context.Background(), h); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	p.expect(protocol.DeviceTypeBeginSession)
	p.conn.Close()

	err := waitEnd(t, h)
	var se *session.SessionError
	if !errors.As(err, &se) || se.Reason != session.ReasonReadError {
		t.Errorf("end error = %v, want read error", err)
	}
	waitDevices(t, host, 0)
}

func TestInvalidNDEFIsRejected(t *testing.T) {
	host, url := newTestHost(t, Config{})
	p := connectPhone(t, url)
	waitDevices(t, host, 1)

	h := newHandler()
	if err := host.Begin(context.Background(), h); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	p.expect(protocol.DeviceTypeBeginSession)

	p.send(protocol.DeviceTypeNDEFDetected, protocol.DeviceNDEFDetected{
		DeviceID: p.id,
		Messages: []protocol.MessageInput{{Raw: "zz-not-ndef"}},
	})
	p.expect(protocol.DeviceTypeError)

	select {
	case m := <-h.detected:
		t.Errorf("unexpected detection: %v", m)
	default:
	}
}
