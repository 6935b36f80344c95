package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the viewer (tray app, or headless with --cli)",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(viper.GetViper())
		if err != nil {
			return err
		}
		a, err := newApp(opts)
		if err != nil {
			return err
		}
		if opts.CLI {
			return runHeadless(a)
		}
		runTray(a)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.IntP("port", "p", defaultPort, "Port for the display server")
	flags.String("bind", "", "Address to listen on (default all interfaces)")
	flags.String("host", hostPhone, "Reader host: demo, phone or reader")
	flags.StringP("device", "d", "", "libnfc connection string for --host reader (default auto-detect)")
	flags.String("api-secret", "", "Secret required on /ws and the REST API")
	flags.Bool("tls", false, "Serve over HTTPS/WSS with a locally trusted certificate")
	flags.Int("bootstrap-port", defaultBootstrapPort, "Port for the CA download page when --tls is set (0 disables)")
	flags.Bool("mdns", true, "Advertise the viewer over mDNS")
	flags.Duration("session-timeout", defaultSessionTimeout, "Reader session timeout")
	flags.String("alert-message", "", "Message the phone shows while scanning")
	flags.Bool("first-read", false, "End the session after the first detection")
	flags.Bool("auto-start", true, "Start a reader session on launch (demo and reader hosts)")
	flags.Bool("cli", false, "Run without the system tray")

	for key, flag := range map[string]string{
		"port":            "port",
		"bind":            "bind",
		"host":            "host",
		"device":          "device",
		"api_secret":      "api-secret",
		"tls":             "tls",
		"bootstrap_port":  "bootstrap-port",
		"mdns":            "mdns",
		"session_timeout": "session-timeout",
		"alert_message":   "alert-message",
		"first_read":      "first-read",
		"auto_start":      "auto-start",
		"cli":             "cli",
	} {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func runHeadless(a *app) error {
	if err := a.Start(); err != nil {
		return err
	}
	log.WithField("display", a.DisplayURL(primaryIP())).Info("Viewer running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stopped := make(chan error, 1)
	go func() { stopped <- a.Wait() }()

	select {
	case <-sigChan:
		log.Info("Shutting down")
		a.Stop()
		return nil
	case err := <-stopped:
		a.Stop()
		return err
	}
}
