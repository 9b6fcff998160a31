package core

import (
	"errors"
	"fmt"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestIDIsEmpty tests ID emptiness check
func TestIDIsEmpty(t *testing.T) {
	if !ID("").IsEmpty() {
		t.Error("Expected empty ID to be empty")
	}
	if ID("not-empty").IsEmpty() {
		t.Error("Expected non-empty ID to not be empty")
	}
}

func TestParseID(t *testing.T) {
	valid := NewID()

	tests := []struct {
		input    string
		hasError bool
	}{
		{valid.String(), false},
		{"  " + valid.String() + " ", false},
		{"", true},
		{"   ", true},
		{"not-a-uuid", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := ParseID(tt.input)
			if tt.hasError {
				if err == nil {
					t.Errorf("Expected error for input %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if id != valid {
				t.Errorf("Expected %s, got %s", valid, id)
			}
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	degenerate := NewDegenerateEraError("era7", "zero variance")
	if !IsDegenerateError(degenerate) {
		t.Error("Expected degenerate error to match ErrDegenerateEra")
	}
	if degenerate.Error() != "degenerate era era7: zero variance" {
		t.Errorf("Unexpected message: %s", degenerate.Error())
	}

	wrapped := fmt.Errorf("evaluating column: %w", NewColumnNotFoundError("prediction_x"))
	if !IsInputError(wrapped) || !IsNotFoundError(wrapped) {
		t.Error("Expected wrapped column error to be both an input and a not-found error")
	}

	if !IsConfigurationError(NewConfigurationError("proportion", "must be in [0, 1]")) {
		t.Error("Expected configuration error")
	}
	if IsConfigurationError(errors.New("other")) {
		t.Error("Plain error should not be a configuration error")
	}
}
