package webauthn

import (
	"errors"
	"testing"
)

func TestErrorWrapUnwrap(t *testing.T) {
	cause := errors.New("underlying cause")
	wrapped := ErrBadSignature.Wrap(cause)

	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
	if wrapped.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestErrorWrapPreservesSentinelIdentity(t *testing.T) {
	wrapped := ErrBadSignature.Wrap(errors.New("x"))
	if !errors.Is(wrapped, ErrBadSignature) {
		t.Fatalf("expected errors.Is(wrapped, ErrBadSignature) to hold after Wrap")
	}
	if errors.Is(wrapped, ErrBadOrigin) {
		t.Fatalf("did not expect wrapped ErrBadSignature to match ErrBadOrigin")
	}
}

func TestErrorSentinelsAreDistinct(t *testing.T) {
	if ErrBadChallenge == ErrBadOrigin {
		t.Fatalf("sentinel errors must be distinct values")
	}
}
