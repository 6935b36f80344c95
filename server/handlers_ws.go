package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-ndef-viewer/protocol"
	"github.com/dotside-studios/davi-ndef-viewer/scanlog"
)

// handleWebSocket upgrades a display connection and serves its requests
// until it disconnects.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := newClient(conn)
	s.clients.add(client)
	entry := log.WithField("remote", c.ClientIP())
	entry.Info("Display connected")

	defer func() {
		s.clients.remove(client)
		conn.Close()
		entry.Info("Display disconnected")
	}()

	// Initial state so the display can render without asking.
	client.WriteJSON(protocol.WebSocketMessage{Type: protocol.WSTypeSessionState, Payload: sessionState(s.scanner)})
	client.WriteJSON(protocol.WebSocketMessage{Type: protocol.WSTypeLogChanged, Payload: s.snapshot()})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			entry.WithError(err).Debug("Failed to parse WebSocket message")
			client.SendError("", protocol.ErrCodeParseError, "Invalid message format")
			continue
		}

		handler, ok := s.registry.Get(req.Type)
		if !ok {
			client.SendError(req.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
			continue
		}
		if err := handler(s.ctx, client, req); err != nil {
			entry.WithError(err).WithField("type", req.Type).Debug("Handler error")
		}
	}
}

func (s *Server) snapshot() protocol.LogChangedPayload {
	batches := s.store.Batches()
	payload := protocol.LogChangedPayload{Reason: "snapshot", BatchCount: len(batches)}
	if n := len(batches); n > 0 {
		latest := batchSummary(n-1, batches[n-1])
		payload.Latest = &latest
	}
	return payload
}

func (s *Server) registerHandlers() {
	s.registry.Handle(protocol.WSTypeListBatches, s.wsListBatches)
	s.registry.Handle(protocol.WSTypeGetBatch, s.wsGetBatch)
	s.registry.Handle(protocol.WSTypeGetMessage, s.wsGetMessage)
	s.registry.Handle(protocol.WSTypeStartSession, s.wsStartSession)
	s.registry.Handle(protocol.WSTypeStopSession, s.wsStopSession)
	s.registry.Handle(protocol.WSTypeClearLog, s.wsClearLog)
}

// intField reads a JSON number from a request payload.
func intField(payload map[string]any, key string) (int, error) {
	v, ok := payload[key]
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return int(f), nil
}

func respondStoreError(client *Client, req protocol.WebSocketRequest, err error) error {
	code := protocol.ErrCodeInternalError
	if scanlog.IsIndexOutOfRange(err) {
		code = protocol.ErrCodeIndexOutOfRange
	}
	client.SendError(req.ID, code, err.Error())
	return err
}

func (s *Server) wsListBatches(_ context.Context, client *Client, req protocol.WebSocketRequest) error {
	return client.Respond(req, batchSummaries(s.store))
}

func (s *Server) wsGetBatch(_ context.Context, client *Client, req protocol.WebSocketRequest) error {
	batch, err := intField(req.Payload, "batch")
	if err != nil {
		client.SendError(req.ID, protocol.ErrCodeInvalidRequest, err.Error())
		return err
	}
	detail, err := batchDetail(s.store, batch)
	if err != nil {
		return respondStoreError(client, req, err)
	}
	return client.Respond(req, detail)
}

func (s *Server) wsGetMessage(_ context.Context, client *Client, req protocol.WebSocketRequest) error {
	batch, err := intField(req.Payload, "batch")
	if err != nil {
		client.SendError(req.ID, protocol.ErrCodeInvalidRequest, err.Error())
		return err
	}
	message, err := intField(req.Payload, "message")
	if err != nil {
		client.SendError(req.ID, protocol.ErrCodeInvalidRequest, err.Error())
		return err
	}
	detail, err := messageDetail(s.store, batch, message)
	if err != nil {
		return respondStoreError(client, req, err)
	}
	return client.Respond(req, detail)
}

func (s *Server) wsStartSession(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	if err := s.scanner.Start(ctx); err != nil {
		client.SendError(req.ID, protocol.ErrCodeSessionError, err.Error())
		return err
	}
	s.broadcastSessionState()
	return client.Respond(req, sessionState(s.scanner))
}

func (s *Server) wsStopSession(_ context.Context, client *Client, req protocol.WebSocketRequest) error {
	if err := s.scanner.Stop(); err != nil {
		client.SendError(req.ID, protocol.ErrCodeSessionError, err.Error())
		return err
	}
	return client.Respond(req, sessionState(s.scanner))
}

func (s *Server) wsClearLog(_ context.Context, client *Client, req protocol.WebSocketRequest) error {
	s.store.Clear()
	log.Info("Scan log cleared")
	return client.Respond(req, protocol.LogChangedPayload{Reason: scanlog.ChangeCleared.String()})
}
