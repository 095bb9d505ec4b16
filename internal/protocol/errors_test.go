package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessageFormatting(t *testing.T) {
	withMessage := New(KindSecurity, "import of 'os' is not permitted")
	if got, want := withMessage.Error(), "SECURITY: import of 'os' is not permitted"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	withCause := Wrap(KindTransport, fmt.Errorf("broken pipe"))
	if got, want := withCause.Error(), "TRANSPORT: broken pipe"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	bare := &Error{Kind: KindNotReady}
	if got, want := bare.Error(), "NOT_READY"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWrapNilCause(t *testing.T) {
	e := Wrap(KindConfig, nil)
	if e.Cause != nil {
		t.Fatalf("got cause %v, want nil", e.Cause)
	}
	if e.Error() != "CONFIG" {
		t.Fatalf("got %q, want CONFIG", e.Error())
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("child exited")
	wrapped := Wrap(KindChildError, cause)
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestKindOfUnwrapsThroughFmtWrapping(t *testing.T) {
	base := New(KindTamper, "signature mismatch")
	wrapped := fmt.Errorf("loading script: %w", base)
	if got := KindOf(wrapped); got != KindTamper {
		t.Fatalf("got kind %q, want TAMPER", got)
	}
}

func TestKindOfNonTaxonomyErrorIsEmpty(t *testing.T) {
	if got := KindOf(errors.New("plain error")); got != "" {
		t.Fatalf("got kind %q, want empty", got)
	}
}

func TestWithTracebackAttachesAndReturnsSameError(t *testing.T) {
	e := New(KindChildError, "ZeroDivisionError: division by zero")
	got := e.WithTraceback("Traceback (most recent call last):\n  ...")
	if got != e {
		t.Fatal("expected WithTraceback to return the same *Error")
	}
	if e.Traceback == "" {
		t.Fatal("expected Traceback to be set")
	}
}
