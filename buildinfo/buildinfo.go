// Package buildinfo holds application metadata set at build time:
//
//	go build -ldflags "\
//	  -X github.com/dotside-studios/davi-ndef-viewer/buildinfo.Version=1.0.0 \
//	  -X github.com/dotside-studios/davi-ndef-viewer/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	// Name is the technical application name
	Name = "davi-ndef-viewer"

	// DirName is the config directory within user config paths
	DirName = "davi-ndef-viewer"

	// DisplayName is used for the tray, mDNS and titles
	DisplayName = "Davi NDEF Viewer"

	Description = "NDEF scan log viewer for phone and USB NFC readers"

	// ServiceType is the mDNS service the viewer advertises
	ServiceType = "_ndef-viewer._tcp"

	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// FullVersion returns the version with the commit, when known.
func FullVersion() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// ServerHeader is sent in the Server response header, e.g. "davi-ndef-viewer/1.0.0".
func ServerHeader() string {
	return fmt.Sprintf("%s/%s", Name, Version)
}

// BuildInfo returns a multi-line description of the build.
func BuildInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Name, FullVersion())
	fmt.Fprintf(&b, "  %s\n", Description)
	fmt.Fprintf(&b, "  Go: %s\n", runtime.Version())
	fmt.Fprintf(&b, "  OS/Arch: %s/%s", runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		fmt.Fprintf(&b, "\n  Built: %s", BuildTime)
	}
	return b.String()
}

// IsDev reports whether this is a development build.
func IsDev() bool {
	return Version == "dev"
}
