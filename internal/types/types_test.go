package types

import (
	"errors"
	"testing"
)

// ============================================================================
// AppError
// ============================================================================

func TestAppErrorMessage(t *testing.T) {
	err := NewAppError(ErrConfig, "bad config", nil)
	if err.Error() != "bad config" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	withDetails := NewAppErrorWithDetails(ErrMalformedSyntax, "parse failed", "offset 12", nil)
	if withDetails.Error() != "parse failed: offset 12" {
		t.Errorf("details not included: %q", withDetails.Error())
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewAppError(ErrNetwork, "wrapped", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap must expose the cause")
	}

	var appErr *AppError
	if !errors.As(error(err), &appErr) || appErr.Code != ErrNetwork {
		t.Error("errors.As must find the AppError")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NewAppError(ErrNetwork, "net", nil), true},
		{NewAppError(ErrAPIRateLimit, "429", nil), true},
		{NewAppError(ErrAPICall, "400", nil), false},
		{NewAppError(ErrTranslationRejected, "empty", nil), false},
		{errors.New("plain"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

// ============================================================================
// Span and elements
// ============================================================================

func TestSpanLen(t *testing.T) {
	s := Span{Start: 3, End: 10}
	if s.Len() != 7 {
		t.Errorf("expected 7, got %d", s.Len())
	}
}

func TestIsLeaf(t *testing.T) {
	leaf := &StructuralElement{Kind: KindPlainText}
	if !leaf.IsLeaf() {
		t.Error("element without children must be a leaf")
	}
	parent := &StructuralElement{Kind: KindEnvironment, Children: []*StructuralElement{leaf}}
	if parent.IsLeaf() {
		t.Error("element with children must not be a leaf")
	}
}
