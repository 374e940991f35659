package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrPersistence("append message", cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &DomainError{Category: ErrCatPersistence, Code: CodeStoreWrite}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match category and code")
	}
}

func TestErrNotActive(t *testing.T) {
	err := ErrNotActive("c-1")
	if err.Message != "Conversation c-1 is not active." {
		t.Fatalf("unexpected message %q", err.Message)
	}
	wrapped := fmt.Errorf("instruct: %w", err)
	if !IsNotActive(wrapped) {
		t.Fatalf("expected wrapped error to be recognised as not active")
	}
	if IsNotFound(wrapped) {
		t.Fatalf("not active must not be reported as not found")
	}
	if GetCategory(wrapped) != ErrCatState {
		t.Fatalf("expected state category, got %s", GetCategory(wrapped))
	}
}

func TestErrorFactories(t *testing.T) {
	if !IsCategory(ErrExecution("C", "m"), ErrCatExecution) {
		t.Fatalf("expected execution category")
	}
	if err := ErrTimeout("m"); err.Code != "TIMEOUT" || err.Category != ErrCatTimeout {
		t.Fatalf("unexpected timeout error %+v", err)
	}
	if !IsCategory(ErrConflict("C", "m"), ErrCatConflict) {
		t.Fatalf("expected conflict category")
	}
	if !IsNotFound(ErrNotFound("conversation", "x")) {
		t.Fatalf("expected not found")
	}
	if GetCategory(errors.New("plain")) != ErrCatInternal {
		t.Fatalf("plain errors map to internal")
	}
}
