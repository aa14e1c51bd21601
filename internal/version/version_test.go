// ABOUTME: Tests for version constants
// ABOUTME: Ensures version information is properly defined
package version

import (
	"testing"
)

func TestIdentityDefined(t *testing.T) {
	placeholders := map[string]bool{"": true, "TODO": true, "FIXME": true, "XXX": true, "placeholder": true}

	for name, value := range map[string]string{
		"Version":      Version,
		"Product":      Product,
		"Manufacturer": Manufacturer,
	} {
		if placeholders[value] {
			t.Errorf("%s should not be empty or a placeholder, got %q", name, value)
		}
		if len(value) > 100 {
			t.Errorf("%s is unreasonably long", name)
		}
	}
}

func TestString(t *testing.T) {
	if got, want := String(), Product+" "+Version; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
