package server

import (
	"fmt"

	"github.com/grandcat/zeroconf"

	"github.com/dotside-studios/davi-ndef-viewer/buildinfo"
)

// mdnsText is the TXT record set advertised with the service.
func mdnsText(tlsEnabled bool, secretRequired bool) []string {
	scheme := "ws"
	if tlsEnabled {
		scheme = "wss"
	}
	return []string{
		"version=" + buildinfo.Version,
		"scheme=" + scheme,
		"path=" + DisplayWSPath,
		"device_path=" + DeviceWSPath,
		"api=" + APIPrefix,
		fmt.Sprintf("secret=%t", secretRequired),
	}
}

// startMDNS advertises the viewer so phones and displays can find it.
func (s *Server) startMDNS(tlsEnabled bool) error {
	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain,
		s.config.Port, mdnsText(tlsEnabled, s.config.APISecret != ""), nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mu.Lock()
	s.mdnsServer = server
	s.mu.Unlock()

	log.WithField("service", MDNSServiceType).WithField("port", s.config.Port).Info("mDNS service registered")
	return nil
}
