package imaging

import (
	"errors"
	"fmt"

	"github.com/phrazzld/imgbatch-api/internal/domain"
)

// Sentinel errors returned by the transformer and the fetch step.
var (
	// ErrDecode is returned when the fetched bytes are not a supported image.
	ErrDecode = errors.New("image decode failed")

	// ErrEncode is returned when the transformed image cannot be encoded.
	ErrEncode = errors.New("image encode failed")

	// ErrTooLarge is returned when a response body exceeds the size limit.
	ErrTooLarge = errors.New("image exceeds size limit")

	// ErrBadStatus is returned for non-2xx responses.
	ErrBadStatus = errors.New("unexpected response status")
)

// Error describes why processing a single URL failed.
type Error struct {
	Kind domain.ErrorKind
	URL  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s error for %q: %v", e.Kind, e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind domain.ErrorKind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

// KindOf returns the failure kind carried by err. Errors that are not an
// *Error carry no step information and are reported as unknown.
func KindOf(err error) domain.ErrorKind {
	var imgErr *Error
	if errors.As(err, &imgErr) {
		return imgErr.Kind
	}
	return domain.ErrorKindUnknown
}
