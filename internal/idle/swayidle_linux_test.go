//go:build linux

package idle

import "testing"

func TestParseSwayidleLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantIdle bool
		wantOK   bool
	}{
		{"idle marker", "IDLE", true, true},
		{"active marker", "ACTIVE", false, true},
		{"idle with whitespace", "  IDLE \n", true, true},
		{"unknown line", "swayidle: something happened", false, false},
		{"empty line", "", false, false},
		{"lowercase not matched", "idle", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idle, ok := parseSwayidleLine(tt.line)
			if ok != tt.wantOK {
				t.Errorf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
			if idle != tt.wantIdle {
				t.Errorf("Expected idle=%v, got %v", tt.wantIdle, idle)
			}
		})
	}
}
