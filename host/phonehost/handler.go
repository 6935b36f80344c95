package phonehost

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dotside-studios/davi-ndef-viewer/ndef"
	"github.com/dotside-studios/davi-ndef-viewer/protocol"
	"github.com/dotside-studios/davi-ndef-viewer/session"
)

// ServeHTTP handles a phone connection. The first message must be
// registerDevice; no other authentication is required.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	entry := log.WithField("remote", r.RemoteAddr)
	entry.Debug("Phone connected")

	device, err := h.handshake(conn)
	if err != nil {
		entry.WithError(err).Warn("Registration failed")
		return
	}
	entry = entry.WithField("device", device.String())
	entry.Info("Device registered")

	cause := ErrDeviceLost
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				cause = fmt.Errorf("%w: %v", ErrDeviceLost, err)
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		device.touch()

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			h.sendError(device, "", protocol.ErrCodeParseError, "Invalid message format")
			continue
		}
		if err := h.route(device, req); err != nil {
			entry.WithError(err).WithField("type", req.Type).Warn("Device message failed")
		}
	}

	h.unregister(device, cause)
	entry.Info("Device disconnected")
}

func (h *Host) handshake(conn *websocket.Conn) (*Device, error) {
	messageType, message, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read registration: %w", err)
	}

	var req protocol.WebSocketRequest
	if messageType != websocket.TextMessage || json.Unmarshal(message, &req) != nil {
		rejectConn(conn, "", protocol.ErrCodeParseError, "Invalid message format")
		return nil, fmt.Errorf("unparsable registration message")
	}
	if req.Type != protocol.DeviceTypeRegister {
		rejectConn(conn, req.ID, protocol.ErrCodeInvalidRequest, fmt.Sprintf("Expected '%s' message", protocol.DeviceTypeRegister))
		return nil, fmt.Errorf("expected %s, got %s", protocol.DeviceTypeRegister, req.Type)
	}

	var reg protocol.DeviceRegistrationRequest
	if err := decodePayload(req.Payload, &reg); err != nil {
		rejectConn(conn, req.ID, protocol.ErrCodeInvalidRequest, "Invalid registration request format")
		return nil, err
	}

	device, err := h.register(reg, conn)
	if err != nil {
		rejectConn(conn, req.ID, protocol.ErrCodeRegistrationError, err.Error())
		return nil, err
	}

	err = device.sendResponse(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    protocol.DeviceTypeRegisterResponse,
		Success: true,
		Payload: protocol.DeviceRegistrationResponse{DeviceID: device.id, ServerInfo: serverInfo()},
	})
	if err != nil {
		h.unregister(device, err)
		return nil, fmt.Errorf("send registration response: %w", err)
	}
	return device, nil
}

func (h *Host) route(device *Device, req protocol.WebSocketRequest) error {
	switch req.Type {
	case protocol.DeviceTypeNDEFDetected:
		return h.handleDetected(device, req)
	case protocol.DeviceTypeSessionInvalidated:
		return h.handleInvalidated(device, req)
	case protocol.DeviceTypeHeartbeat:
		return nil
	default:
		h.sendError(device, req.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
		return fmt.Errorf("unknown message type %q", req.Type)
	}
}

func (h *Host) handleDetected(device *Device, req protocol.WebSocketRequest) error {
	var data protocol.DeviceNDEFDetected
	if err := decodePayload(req.Payload, &data); err != nil {
		h.sendError(device, req.ID, protocol.ErrCodeInvalidRequest, "Invalid ndefDetected payload")
		return err
	}

	messages := make([]ndef.Message, 0, len(data.Messages))
	for i, in := range data.Messages {
		m, err := in.ToMessage()
		if err != nil {
			h.sendError(device, req.ID, protocol.ErrCodeInvalidNDEF, err.Error())
			return fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, m)
	}

	r := h.activeFor(device)
	if r == nil {
		log.WithField("device", device.String()).Warn("Detection outside of a session ignored")
		return nil
	}
	r.handler.OnTagsDetected(messages)
	return nil
}

func (h *Host) handleInvalidated(device *Device, req protocol.WebSocketRequest) error {
	var data protocol.DeviceSessionInvalidated
	if err := decodePayload(req.Payload, &data); err != nil {
		return err
	}

	r := h.activeFor(device)
	if r == nil {
		return nil
	}

	log.WithFields(logrus.Fields{"reason": data.Reason, "code": data.Code}).Debug("Phone ended session")
	var cause error
	if data.Message != "" {
		cause = fmt.Errorf("%s (code %d)", data.Message, data.Code)
	}
	h.end(r, &session.SessionError{Reason: session.ParseReason(data.Reason), Cause: cause})
	return nil
}

func (h *Host) sendError(device *Device, requestID, code, message string) {
	err := device.sendResponse(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.DeviceTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{"code": code},
	})
	if err != nil {
		log.WithError(err).Debug("Failed to send error response")
	}
}

// rejectConn answers before registration, while no other writer exists.
func rejectConn(conn *websocket.Conn, requestID, code, message string) {
	conn.WriteJSON(protocol.WebSocketResponse{
		ID:      requestID,
		Type:    protocol.DeviceTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{"code": code},
	})
}

// decodePayload re-decodes a generic payload map into v.
func decodePayload(payload map[string]any, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	return nil
}
