package messaging

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsLoggedOut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cause error
		want  bool
	}{
		{"nil cause", nil, false},
		{"logged out", &CloseError{Code: CloseCodeLoggedOut, Reason: "logged out"}, true},
		{"wrapped logged out", fmt.Errorf("stream: %w", &CloseError{Code: CloseCodeLoggedOut}), true},
		{"network drop", &CloseError{Code: 408, Reason: "timed out"}, false},
		{"plain error", errors.New("read: connection reset"), false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsLoggedOut(tc.cause); got != tc.want {
				t.Fatalf("IsLoggedOut(%v) = %v, want %v", tc.cause, got, tc.want)
			}
		})
	}
}
