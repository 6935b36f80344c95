package phonehost

import "time"

// Device timing constants
const (
	DeviceTimeout   = 30 * time.Second // Device inactivity timeout
	CleanupInterval = 15 * time.Second // Cleanup check interval
	SessionTimeout  = 60 * time.Second // Reader session limit on the phone
	writeTimeout    = 5 * time.Second
)
