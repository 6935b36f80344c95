package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Reader hosts selectable with --host.
const (
	hostDemo   = "demo"
	hostPhone  = "phone"
	hostReader = "reader"
)

const (
	defaultPort          = 18080
	defaultBootstrapPort = 18081

	// defaultSessionTimeout matches the phone reader session limit.
	defaultSessionTimeout = 60 * time.Second
)

// options is the resolved serve configuration.
type options struct {
	Port           int
	Bind           string
	Host           string
	Device         string
	APISecret      string
	TLS            bool
	BootstrapPort  int
	MDNS           bool
	SessionTimeout time.Duration
	AlertMessage   string
	FirstRead      bool
	AutoStart      bool
	CLI            bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", defaultPort)
	v.SetDefault("host", hostPhone)
	v.SetDefault("mdns", true)
	v.SetDefault("bootstrap_port", defaultBootstrapPort)
	v.SetDefault("session_timeout", defaultSessionTimeout)
	v.SetDefault("auto_start", true)
}

func loadOptions(v *viper.Viper) (options, error) {
	setDefaults(v)
	opts := options{
		Port:           v.GetInt("port"),
		Bind:           v.GetString("bind"),
		Host:           v.GetString("host"),
		Device:         v.GetString("device"),
		APISecret:      v.GetString("api_secret"),
		TLS:            v.GetBool("tls"),
		BootstrapPort:  v.GetInt("bootstrap_port"),
		MDNS:           v.GetBool("mdns"),
		SessionTimeout: v.GetDuration("session_timeout"),
		AlertMessage:   v.GetString("alert_message"),
		FirstRead:      v.GetBool("first_read"),
		AutoStart:      v.GetBool("auto_start"),
		CLI:            v.GetBool("cli"),
	}

	switch opts.Host {
	case hostDemo, hostPhone, hostReader:
	default:
		return opts, fmt.Errorf("unknown host %q (want %s, %s or %s)", opts.Host, hostDemo, hostPhone, hostReader)
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return opts, fmt.Errorf("invalid port %d", opts.Port)
	}
	if opts.SessionTimeout <= 0 {
		return opts, fmt.Errorf("session timeout must be positive, got %s", opts.SessionTimeout)
	}
	return opts, nil
}
