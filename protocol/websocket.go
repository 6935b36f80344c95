package protocol

// WebSocket message type constants
const (
	WSTypeLogChanged         = "logChanged"
	WSTypeSessionState       = "sessionState"
	WSTypeSessionInvalidated = "sessionInvalidated"
	WSTypeError              = "error"

	// Requests from display clients
	WSTypeListBatches  = "listBatches"
	WSTypeGetBatch     = "getBatch"
	WSTypeGetMessage   = "getMessage"
	WSTypeStartSession = "startSession"
	WSTypeStopSession  = "stopSession"
	WSTypeClearLog     = "clearLog"
)

// WebSocketMessage is the generic message envelope for WebSocket communication.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is for incoming requests from WebSocket clients.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse is for responses to WebSocket requests.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}
