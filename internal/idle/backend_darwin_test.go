//go:build darwin

package idle

import "testing"

func TestParseHIDIdleNanos(t *testing.T) {
	ioregOutput := []byte(`+-o IOHIDSystem  <class IOHIDSystem, id 0x100000abc, registered, matched, active>
    {
      "HIDParameters" = {"UseKeyswitch"=1}
      "HIDIdleTime" = 93473261133
      "IOClass" = "IOHIDSystem"
    }
`)

	nanos, ok := parseHIDIdleNanos(ioregOutput)
	if !ok {
		t.Fatal("Expected HIDIdleTime to be found")
	}
	if nanos != 93473261133 {
		t.Errorf("Expected 93473261133 nanoseconds, got %d", nanos)
	}
}

func TestParseHIDIdleNanosMissing(t *testing.T) {
	if _, ok := parseHIDIdleNanos([]byte("+-o IORegistryEntry\n")); ok {
		t.Error("Expected ok=false for output without HIDIdleTime")
	}
}
