package version

import "testing"

func TestString(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()
	Version = "v1.2.0"

	if got := Current().Version; got != "v1.2.0" {
		t.Errorf("Current().Version = %q", got)
	}
	if got := String("monitor"); got != "monitor v1.2.0 (unknown, built unknown)" {
		t.Errorf("String() = %q", got)
	}
}
