package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetLogLevel(t *testing.T) {
	defer Log.SetLevel(logrus.InfoLevel)

	tests := []struct {
		name string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"INFO", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"fatal", logrus.FatalLevel},
	}
	for _, tt := range tests {
		if err := SetLogLevel(tt.name); err != nil {
			t.Errorf("SetLogLevel(%q) failed: %v", tt.name, err)
		}
		if Log.GetLevel() != tt.want {
			t.Errorf("SetLogLevel(%q) level = %v, want %v", tt.name, Log.GetLevel(), tt.want)
		}
	}

	if err := SetLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestForAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	out := Log.Out
	Log.SetOutput(&buf)
	defer Log.SetOutput(out)

	For("scanner").Info("hello")
	if !strings.Contains(buf.String(), "component=scanner") {
		t.Errorf("log line missing component field: %q", buf.String())
	}
}
