package cmd

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"fyne.io/systray"

	"github.com/dotside-studios/davi-ndef-viewer/buildinfo"
	"github.com/dotside-studios/davi-ndef-viewer/scanlog"
	"github.com/dotside-studios/davi-ndef-viewer/session"
	"github.com/dotside-studios/davi-ndef-viewer/view"
)

const trayRefreshInterval = 500 * time.Millisecond

// trayApp shows the viewer state in the system tray.
type trayApp struct {
	app *app

	mStatus     *systray.MenuItem
	mBatches    *systray.MenuItem
	mLatest     *systray.MenuItem
	mURLsMenu   *systray.MenuItem
	mDisplayURL *systray.MenuItem
	mDeviceURL  *systray.MenuItem
	mCAURL      *systray.MenuItem
	mCopyURL    *systray.MenuItem
	mStart      *systray.MenuItem
	mStop       *systray.MenuItem
	mClear      *systray.MenuItem
	mQuit       *systray.MenuItem
}

func runTray(a *app) {
	t := &trayApp{app: a}
	systray.Run(t.onReady, t.onExit)
}

func (t *trayApp) onReady() {
	t.setupUI()

	if err := t.app.Start(); err != nil {
		log.WithError(err).Error("Failed to start viewer")
		t.mStatus.SetTitle("Failed to Start")
		systray.SetIcon(iconError)
		return
	}
	t.updateURLs()

	go t.watchLog()
	go t.watchState()
	go t.handleMenuEvents()
}

func (t *trayApp) onExit() {
	t.app.Stop()
}

func (t *trayApp) setupUI() {
	systray.SetIcon(iconIdle)
	systray.SetTooltip(buildinfo.DisplayName)

	t.mStatus = systray.AddMenuItem("Starting...", "Reader session status")
	t.mStatus.Disable()
	t.mBatches = systray.AddMenuItem("Scans: 0", "Detection events in the log")
	t.mBatches.Disable()
	t.mLatest = systray.AddMenuItem("Latest: None", "Most recent detection")
	t.mLatest.Disable()

	systray.AddSeparator()

	t.mURLsMenu = systray.AddMenuItem("Server URLs", "Server addresses")
	t.mDisplayURL = t.mURLsMenu.AddSubMenuItem("Display: Not running", "Display WebSocket URL")
	t.mDisplayURL.Disable()
	t.mDeviceURL = t.mURLsMenu.AddSubMenuItem("Phone: Not available", "Phone app WebSocket URL")
	t.mDeviceURL.Disable()
	t.mCAURL = t.mURLsMenu.AddSubMenuItem("CA Cert: Disabled", "CA certificate download page")
	t.mCAURL.Disable()
	t.mCopyURL = t.mURLsMenu.AddSubMenuItem("Copy Display URL", "Copy the display URL to the clipboard")

	systray.AddSeparator()

	t.mStart = systray.AddMenuItem("Start Session", "Begin a reader session")
	t.mStop = systray.AddMenuItem("Stop Session", "End the reader session")
	t.mStop.Disable()
	t.mClear = systray.AddMenuItem("Clear Log", "Remove every scan")

	systray.AddSeparator()
	t.mQuit = systray.AddMenuItem("Quit", "Quit the application")
}

func (t *trayApp) handleMenuEvents() {
	for {
		select {
		case <-t.mStart.ClickedCh:
			if err := t.app.scanner.Start(t.app.serverContext()); err != nil {
				log.WithError(err).Warn("Could not start reader session")
				t.mStatus.SetTitle("Start failed: " + err.Error())
			}
			t.updateState(t.app.scanner.State())
		case <-t.mStop.ClickedCh:
			if err := t.app.scanner.Stop(); err != nil {
				log.WithError(err).Debug("Stop session")
			}
			t.updateState(t.app.scanner.State())
		case <-t.mClear.ClickedCh:
			t.app.store.Clear()
		case <-t.mCopyURL.ClickedCh:
			if err := copyToClipboard(t.app.DisplayURL(primaryIP())); err != nil {
				log.WithError(err).Warn("Failed to copy to clipboard")
			}
		case <-t.mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

// watchLog keeps the batch count and latest summary current.
func (t *trayApp) watchLog() {
	changes, cancel := t.app.store.Subscribe()
	defer cancel()

	for range changes {
		t.updateLog(t.app.store)
	}
}

func (t *trayApp) updateLog(store *scanlog.Store) {
	batches := store.Batches()
	t.mBatches.SetTitle(fmt.Sprintf("Scans: %d", len(batches)))
	if len(batches) == 0 {
		t.mLatest.SetTitle("Latest: None")
		return
	}
	latest := batches[len(batches)-1]
	t.mLatest.SetTitle(fmt.Sprintf("Latest: %s from %s at %s",
		view.SectionHeader(latest), latest.Source, latest.ScannedAt.Format("15:04:05")))
}

// watchState polls the session state; hosts end sessions on their own.
func (t *trayApp) watchState() {
	ticker := time.NewTicker(trayRefreshInterval)
	defer ticker.Stop()

	last := session.State(-1)
	for range ticker.C {
		if !t.app.Running() {
			t.mStatus.SetTitle("Stopped")
			systray.SetIcon(iconError)
			return
		}
		if state := t.app.scanner.State(); state != last {
			t.updateState(state)
			last = state
		}
	}
}

func (t *trayApp) updateState(state session.State) {
	host := t.app.scanner.HostName()
	switch state {
	case session.StateScanning:
		t.mStatus.SetTitle(fmt.Sprintf("Scanning (%s)", host))
		systray.SetIcon(iconScanning)
		t.mStart.Disable()
		t.mStop.Enable()
	default:
		t.mStatus.SetTitle(fmt.Sprintf("Idle (%s)", host))
		systray.SetIcon(iconIdle)
		t.mStart.Enable()
		t.mStop.Disable()
	}
}

func (t *trayApp) updateURLs() {
	ip := primaryIP()
	t.mDisplayURL.SetTitle("Display: " + t.app.DisplayURL(ip))
	if url := t.app.DeviceURL(ip); url != "" {
		t.mDeviceURL.SetTitle("Phone: " + url)
	}
	if url := t.app.BootstrapURL(ip); url != "" {
		t.mCAURL.SetTitle("CA Cert: " + url)
	}
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if _, err := stdin.Write([]byte(text)); err != nil {
		return err
	}
	stdin.Close()
	return cmd.Wait()
}
