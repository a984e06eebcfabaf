package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sahilchouksey/cohort-lms/repository"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("connection reset")
	tests := []struct {
		name          string
		err           error
		validation    bool
		notFound      bool
		externalStore bool
	}{
		{"validation", &ValidationError{Field: "batch_id", Message: "is required"}, true, false, false},
		{"wrapped not found", fmt.Errorf("assign: %w", &NotFoundError{Resource: "Batch", ID: "b1"}), false, true, false},
		{"store", storeErr("load batch", base), false, false, true},
		{"lookup miss", lookupErr("User", "u1", "load user", repository.ErrNotFound), false, true, false},
		{"lookup failure", lookupErr("User", "u1", "load user", base), false, false, true},
		{"plain", base, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation = %v", got)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v", got)
			}
			if got := IsExternalStore(tt.err); got != tt.externalStore {
				t.Errorf("IsExternalStore = %v", got)
			}
		})
	}

	if !errors.Is(storeErr("x", base), base) {
		t.Error("ExternalStoreError should unwrap to the store error")
	}
	if storeErr("x", nil) != nil {
		t.Error("storeErr(nil) should be nil")
	}
}

func TestConsistencyWarningString(t *testing.T) {
	w := ConsistencyWarning{Kind: WarningDanglingBatchPointer, Message: "students point at missing batches", IDs: []string{"u1", "u2"}}
	want := "[dangling_batch_pointer] students point at missing batches (u1, u2)"
	if w.String() != want {
		t.Errorf("String() = %q, want %q", w.String(), want)
	}
}
