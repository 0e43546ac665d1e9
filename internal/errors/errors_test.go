package errors

import (
	"fmt"
	"testing"
)

func TestBridgeError_Error(t *testing.T) {
	err := &BridgeError{
		Code:    ErrNotFound,
		Message: "chip not found",
	}

	expected := "NOT_FOUND: chip not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewTransportUnavailable(t *testing.T) {
	err := NewTransportUnavailable()

	if err.Code != ErrTransportUnavailable {
		t.Errorf("Code = %q, want %q", err.Code, ErrTransportUnavailable)
	}
	if err.Message == "" {
		t.Error("Message should not be empty")
	}
}

func TestNewRequestTimeout(t *testing.T) {
	err := NewRequestTimeout("m2abc-xyz", 5000)

	if err.Code != ErrRequestTimeout {
		t.Errorf("Code = %q, want %q", err.Code, ErrRequestTimeout)
	}
	if err.Details["request_id"] != "m2abc-xyz" {
		t.Errorf("Details[request_id] = %v, want %q", err.Details["request_id"], "m2abc-xyz")
	}
	if err.Details["timeout_ms"] != int64(5000) {
		t.Errorf("Details[timeout_ms] = %v, want 5000", err.Details["timeout_ms"])
	}
}

func TestNewPortExhausted(t *testing.T) {
	err := NewPortExhausted(64923, 64932)

	if err.Code != ErrPortExhausted {
		t.Errorf("Code = %q, want %q", err.Code, ErrPortExhausted)
	}
	if err.Details["port_start"] != 64923 {
		t.Errorf("Details[port_start] = %v, want 64923", err.Details["port_start"])
	}
	if err.Details["port_end"] != 64932 {
		t.Errorf("Details[port_end] = %v, want 64932", err.Details["port_end"])
	}
}

func TestNewContentUnresolved(t *testing.T) {
	err := NewContentUnresolved("[@problems]")

	if err.Code != ErrContentUnresolved {
		t.Errorf("Code = %q, want %q", err.Code, ErrContentUnresolved)
	}
	if err.Details["placeholder"] != "[@problems]" {
		t.Errorf("Details[placeholder] = %v, want %q", err.Details["placeholder"], "[@problems]")
	}
}

func TestNewInternal(t *testing.T) {
	inner := fmt.Errorf("connection reset")
	err := NewInternal(inner)

	if err.Code != ErrInternal {
		t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
	}
	if err.Message != "connection reset" {
		t.Errorf("Message = %q, want %q", err.Message, "connection reset")
	}

	nilErr := NewInternal(nil)
	if nilErr.Message != "internal error" {
		t.Errorf("Message = %q, want %q", nilErr.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	err := NewTransportUnavailable()

	if !Is(err, ErrTransportUnavailable) {
		t.Error("Is should match the error's own code")
	}
	if Is(err, ErrRequestTimeout) {
		t.Error("Is should not match a different code")
	}
	if Is(fmt.Errorf("plain error"), ErrTransportUnavailable) {
		t.Error("Is should not match a non-BridgeError")
	}
	if Is(nil, ErrTransportUnavailable) {
		t.Error("Is should not match nil")
	}
}
