package cmd

import (
	"testing"
	"time"

	"github.com/dotside-studios/davi-ndef-viewer/session"
)

func testOptions(host string) options {
	return options{Host: host, Port: 0, SessionTimeout: time.Second, AutoStart: true}
}

func TestNewAppSelectsHost(t *testing.T) {
	tests := []struct {
		host      string
		wantName  string
		hasDevice bool
	}{
		{hostDemo, "demo", false},
		{hostPhone, "phone", true},
		{hostReader, "reader", false},
	}
	for _, tt := range tests {
		a, err := newApp(testOptions(tt.host))
		if err != nil {
			t.Fatalf("newApp(%s) failed: %v", tt.host, err)
		}
		if got := a.scanner.HostName(); got != tt.wantName {
			t.Errorf("host %s: HostName = %q", tt.host, got)
		}
		if got := a.DeviceURL("10.0.0.2") != ""; got != tt.hasDevice {
			t.Errorf("host %s: DeviceURL present = %v, want %v", tt.host, got, tt.hasDevice)
		}
		if a.phone != nil {
			a.phone.Close()
		}
	}

	if _, err := newApp(testOptions("bluetooth")); err == nil {
		t.Error("expected error for unknown host")
	}
}

func TestAppURLs(t *testing.T) {
	a, err := newApp(options{Host: hostPhone, Port: 18080, SessionTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer a.phone.Close()

	if got := a.DisplayURL("10.0.0.2"); got != "ws://10.0.0.2:18080/ws" {
		t.Errorf("DisplayURL = %q", got)
	}
	if got := a.DeviceURL("10.0.0.2"); got != "ws://10.0.0.2:18080/ws/device" {
		t.Errorf("DeviceURL = %q", got)
	}
	if got := a.BootstrapURL("10.0.0.2"); got != "" {
		t.Errorf("BootstrapURL without TLS = %q", got)
	}
}

func TestAppStartStopDemo(t *testing.T) {
	a, err := newApp(testOptions(hostDemo))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := a.Start(); err == nil {
		t.Error("second Start should fail")
	}
	if !a.Running() {
		t.Error("expected Running after Start")
	}
	if got := a.scanner.State(); got != session.StateScanning {
		t.Errorf("demo session not auto-started: %v", got)
	}

	a.Stop()
	if a.Running() {
		t.Error("expected not Running after Stop")
	}
	if err := a.Wait(); err != nil {
		t.Errorf("Wait = %v", err)
	}
}
