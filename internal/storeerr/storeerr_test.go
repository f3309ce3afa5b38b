package storeerr

import (
	"errors"
	"testing"
)

func TestNewWrapsCauseWithCode(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := New("linking.lookup_endpoint", "query_failed", cause)

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient error, got %T", err)
	}
	if transient.Code() != "linking.lookup_endpoint.query_failed" {
		t.Fatalf("unexpected code %q", transient.Code())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved")
	}
	if !IsTransient(err) {
		t.Fatalf("expected IsTransient to report true")
	}
}

func TestNewKeepsInnermostCode(t *testing.T) {
	inner := New("checksum.read", "query_failed", errors.New("boom"))
	outer := New("connector.product.push", "checksum_failed", inner)
	if outer != inner {
		t.Fatalf("expected the existing transient error to be returned unchanged")
	}
}

func TestNewIgnoresNilCause(t *testing.T) {
	if err := New("op", "reason", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
