package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilchouksey/cohort-lms/repository"
)

// ErrOperationInProgress is returned when another membership change holds the lock
var ErrOperationInProgress = errors.New("another membership operation is in progress")

// ValidationError reports malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports a referenced entity that does not exist
type NotFoundError struct {
	Resource string // "Batch", "User", "ClassroomVideo"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ExternalStoreError wraps a failure of the entity store or the legacy reader
type ExternalStoreError struct {
	Op  string
	Err error
}

func (e *ExternalStoreError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *ExternalStoreError) Unwrap() error { return e.Err }

// Warning kinds
const (
	WarningUnmatchedLegacyBatch = "unmatched_legacy_batch"
	WarningNoDuplicates         = "no_duplicates"
	WarningDanglingBatchPointer = "dangling_batch_pointer"
	WarningDanglingVideoBatch   = "dangling_video_batch"
	WarningLegacyIDClash        = "legacy_id_clash"
	WarningAmbiguousLegacyBatch = "ambiguous_legacy_batch"
	WarningUnlinkedLegacyVideo  = "unlinked_legacy_video"
)

// ConsistencyWarning is a non-fatal anomaly surfaced to the operator.
// It is reported alongside results, never returned as an error.
type ConsistencyWarning struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	IDs     []string `json:"ids,omitempty"`
}

func (w ConsistencyWarning) String() string {
	if len(w.IDs) == 0 {
		return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("[%s] %s (%s)", w.Kind, w.Message, strings.Join(w.IDs, ", "))
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsExternalStore(err error) bool {
	var target *ExternalStoreError
	return errors.As(err, &target)
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalStoreError{Op: op, Err: err}
}

// lookupErr translates a missed lookup into NotFoundError.
func lookupErr(resource, id, op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return storeErr(op, err)
}
