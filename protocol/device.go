package protocol

import "time"

// WebSocket message types for the phone reader connection on /ws/device.
const (
	DeviceTypeRegister           = "registerDevice"
	DeviceTypeRegisterResponse   = "registerDeviceResponse"
	DeviceTypeBeginSession       = "beginSession"
	DeviceTypeInvalidateSession  = "invalidateSession"
	DeviceTypeNDEFDetected       = "ndefDetected"
	DeviceTypeSessionInvalidated = "sessionInvalidated"
	DeviceTypeHeartbeat          = "deviceHeartbeat"
	DeviceTypeError              = "error"
)

// Reasons a phone may report in DeviceSessionInvalidated.
const (
	DeviceReasonTimeout       = "timeout"
	DeviceReasonUserCanceled  = "userCanceled"
	DeviceReasonReadError     = "readError"
	DeviceReasonSystemBusy    = "systemBusy"
	DeviceReasonFirstNDEFRead = "firstNDEFTagRead"
)

// DeviceCapabilities defines the capabilities of a connected phone.
type DeviceCapabilities struct {
	CanRead  bool   `json:"canRead"`
	CanWrite bool   `json:"canWrite"`
	NFCType  string `json:"nfcType"` // "ndef", "iso7816", etc.
}

// DeviceRegistrationRequest is sent by a phone to register with the viewer.
type DeviceRegistrationRequest struct {
	DeviceName   string             `json:"deviceName"` // e.g., "Ana's iPhone"
	Platform     string             `json:"platform"`   // "ios" or "android"
	AppVersion   string             `json:"appVersion"`
	Capabilities DeviceCapabilities `json:"capabilities"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
}

// DeviceRegistrationResponse is sent by the viewer after registration.
type DeviceRegistrationResponse struct {
	DeviceID   string     `json:"deviceID"` // UUID
	ServerInfo ServerInfo `json:"serverInfo"`
}

// ServerInfo contains information about the viewer.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// BeginSessionPayload asks the phone to start its reader session.
type BeginSessionPayload struct {
	AlertMessage             string `json:"alertMessage"`
	InvalidateAfterFirstRead bool   `json:"invalidateAfterFirstRead"`
}

// DeviceNDEFDetected is sent by the phone with every detection event.
type DeviceNDEFDetected struct {
	DeviceID   string         `json:"deviceID"`
	DetectedAt time.Time      `json:"detectedAt"`
	Messages   []MessageInput `json:"messages"`
}

// DeviceSessionInvalidated is sent by the phone when its reader session ends.
type DeviceSessionInvalidated struct {
	DeviceID string `json:"deviceID"`
	Reason   string `json:"reason"`
	Code     int    `json:"code,omitempty"` // Platform error code
	Message  string `json:"message,omitempty"`
}

// DeviceHeartbeat is sent by a phone periodically.
type DeviceHeartbeat struct {
	DeviceID  string    `json:"deviceID"`
	Timestamp time.Time `json:"timestamp"`
}
