// ABOUTME: Tests for build identity constants
// ABOUTME: Guards against empty or malformed identity strings
package version

import "testing"

func TestIdentityDefined(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"Version", Version},
		{"Product", Product},
		{"Manufacturer", Manufacturer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value == "" {
				t.Errorf("%s is empty", tt.name)
			}
			if len(tt.value) > 100 {
				t.Errorf("%s is unreasonably long: %q", tt.name, tt.value)
			}
		})
	}
}
