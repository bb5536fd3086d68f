package logger

import "testing"

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	l, err := New("debug")
	if err != nil {
		t.Fatalf("New(debug): %v", err)
	}
	if !l.Core().Enabled(-1) {
		t.Fatal("debug level not enabled")
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
