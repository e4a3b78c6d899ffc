package retry

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind buckets an error by how the caller should react to it.
type Kind int

const (
	// KindTransient covers connection errors, timeouts, 5xx responses and
	// truncated reads. Retried with backoff.
	KindTransient Kind = iota
	// KindProbe marks a failed metadata probe. Retried like transient, but
	// exhaustion fails the task before any transfer starts.
	KindProbe
	// KindNotFound (404) is never retried.
	KindNotFound
	// KindForbidden (403) is never retried.
	KindForbidden
	// KindRangeUnsupported means the server ignored or rejected a range
	// request. Not retried; callers downgrade the transfer mode instead.
	KindRangeUnsupported
	// KindIntegrity means the final size disagrees with the expected size.
	// Fatal for the file.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindProbe:
		return "probe"
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	case KindRangeUnsupported:
		return "range unsupported"
	case KindIntegrity:
		return "integrity mismatch"
	}
	return "unknown"
}

var (
	ErrNotFound         = errors.New("resource not found (404)")
	ErrForbidden        = errors.New("access forbidden (403)")
	ErrRangeUnsupported = errors.New("range requests not supported")
	ErrIntegrity        = errors.New("downloaded size does not match remote size")
)

// StatusError converts a non-success HTTP status into the matching sentinel,
// or a plain transient error for 5xx and other unexpected codes.
func StatusError(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeUnsupported
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// Classify maps an error to its kind. Anything not matching a sentinel is
// treated as transient: network failures, timeouts, 5xx and short reads all
// land here and go through the backoff path.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrRangeUnsupported):
		return KindRangeUnsupported
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	default:
		return KindTransient
	}
}
