package navdata

import "testing"

func TestComputeMode(t *testing.T) {
	tests := []struct {
		bootstrap bool
		ack       bool
		want      Mode
	}{
		{bootstrap: true, ack: false, want: ModeBootstrap},
		{bootstrap: false, ack: true, want: ModeHandshake},
		{bootstrap: true, ack: true, want: ModeHandshake},
		{bootstrap: false, ack: false, want: ModeTelemetryActive},
	}

	for _, tt := range tests {
		if got := ComputeMode(tt.bootstrap, tt.ack); got != tt.want {
			t.Errorf("ComputeMode(%v, %v) = %v, want %v", tt.bootstrap, tt.ack, got, tt.want)
		}
	}
}

func TestNextModeEdgeTriggered(t *testing.T) {
	bootstrap := DecodeStatusFlags(1 << BitNavdataBootstrap)

	mode, changed := NextMode(ModeOffline, bootstrap)
	if mode != ModeBootstrap || !changed {
		t.Fatalf("NextMode(OFFLINE) = %v, %v", mode, changed)
	}

	mode, changed = NextMode(mode, bootstrap)
	if mode != ModeBootstrap || changed {
		t.Fatalf("NextMode(BOOTSTRAP, same flags) = %v, %v", mode, changed)
	}

	mode, changed = NextMode(mode, StatusFlags{})
	if mode != ModeTelemetryActive || !changed {
		t.Fatalf("NextMode(BOOTSTRAP, none) = %v, %v", mode, changed)
	}
}

func TestModeString(t *testing.T) {
	names := map[Mode]string{
		ModeOffline:         "OFFLINE",
		ModeBootstrap:       "BOOTSTRAP",
		ModeHandshake:       "HANDSHAKE",
		ModeTelemetryActive: "TELEMETRY_ACTIVE",
		Mode(9):             "Mode(9)",
	}
	for m, want := range names {
		if m.String() != want {
			t.Errorf("Mode(%d).String() = %q, want %q", int(m), m.String(), want)
		}
	}
}
