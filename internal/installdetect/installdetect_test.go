package installdetect

import "testing"

func TestSupportsPlugins_GoInstallAndSourceOnly(t *testing.T) {
	cases := map[Method]bool{
		MethodGoInstall:  true,
		MethodSource:     true,
		MethodHomebrew:   false,
		MethodStandalone: false,
	}
	for m, want := range cases {
		if got := SupportsPlugins(m); got != want {
			t.Errorf("SupportsPlugins(%s) = %v, want %v", m, got, want)
		}
	}
}

func TestDetect_ReturnsAKnownMethod(t *testing.T) {
	m := Detect()
	switch m {
	case MethodGoInstall, MethodHomebrew, MethodStandalone, MethodSource:
	default:
		t.Fatalf("Detect() returned unrecognized method %q", m)
	}
}
