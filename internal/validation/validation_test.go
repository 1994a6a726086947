package validation

import (
	"fmt"
	"testing"
)

func TestError_Message(t *testing.T) {
	e := New(CodeInvalidPerimeter, "rooms[0]", "perimeter %.2f must be positive", 0.0)
	want := "validation: INVALID_PERIMETER: rooms[0]: perimeter 0.00 must be positive"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	noField := New(CodeMissingDimensions, "", "no rooms supplied")
	if got := noField.Error(); got != "validation: MISSING_DIMENSIONS: no rooms supplied" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("engine: drywall check: %w", New(CodeHeightExceedsCeiling, "Kitchen", "too tall"))
	if got := CodeOf(wrapped); got != CodeHeightExceedsCeiling {
		t.Errorf("CodeOf(wrapped) = %q, want %q", got, CodeHeightExceedsCeiling)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %q, want empty", got)
	}
}
