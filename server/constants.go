package server

import "github.com/dotside-studios/davi-ndef-viewer/buildinfo"

// mDNS service discovery
var (
	MDNSServiceType = buildinfo.ServiceType
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// Routes
const (
	APIPrefix       = "/api/v1"
	DisplayWSPath   = "/ws"
	DeviceWSPath    = "/ws/device"
	secretQueryKey  = "secret"
	secretHeaderKey = "X-API-Secret"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, DELETE, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization, X-API-Secret"
)
