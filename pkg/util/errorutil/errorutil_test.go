package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"domain error", NewValidationError("bad input", nil), http.StatusBadRequest},
		{"wrapped domain error", fmt.Errorf("create: %w", NewValidationError("bad input", nil)), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusOf(tt.err); got != tt.want {
				t.Errorf("HTTPStatusOf(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
