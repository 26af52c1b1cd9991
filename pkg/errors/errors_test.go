package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

// TestAppErrorWrapping verifies errors.Is sees through AppError to the
// sentinel.
func TestAppErrorWrapping(t *testing.T) {
	err := Newf(ErrGroupNotFound, http.StatusNotFound, "group %s", "g1")
	if !stderrors.Is(err, ErrGroupNotFound) {
		t.Error("AppError does not unwrap to its sentinel")
	}
	if got := err.Error(); got != "group not found: group g1" {
		t.Errorf("Error() = %q", got)
	}
}

// TestHTTPStatusCode covers the explicit code, the sentinel mapping, and the
// fallback.
func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(ErrInvalidInput, http.StatusBadRequest, "bad"), http.StatusBadRequest},
		{New(ErrDecryptFailed, http.StatusUnprocessableEntity, "nope"), http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapping: %w", ErrDatasetNotFound), http.StatusNotFound},
		{fmt.Errorf("wrapping: %w", ErrSourceNotFound), http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrDecryptFailed, http.StatusUnprocessableEntity},
		{stderrors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatusCode(tc.err); got != tc.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
