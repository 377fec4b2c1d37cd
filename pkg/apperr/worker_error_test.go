package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("save user: %w", AlreadyExists("user"))
	if !HasCode(wrapped, CodeAlreadyExists) {
		t.Fatal("expected wrapped AlreadyExists to match")
	}
	if HasCode(wrapped, CodeNotFound) {
		t.Fatal("unexpected match for NOT_FOUND")
	}
	if HasCode(errors.New("plain"), CodeAlreadyExists) {
		t.Fatal("plain error must not match")
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("bucket missing")
	err := StorageError("get", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("status = %d", err.Status)
	}
	if got := err.Error(); got != "[STORAGE_ERROR] storage error: get: bucket missing" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestWithDetail(t *testing.T) {
	err := NoRoomAvailable("2024-01-01T10:00:00Z", "2024-01-01T11:00:00Z").WithDetail("rooms", 3)
	if err.Details["rooms"] != 3 || err.Details["start"] != "2024-01-01T10:00:00Z" {
		t.Fatalf("details = %v", err.Details)
	}
}
