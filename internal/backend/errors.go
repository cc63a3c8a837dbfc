package backend

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the backend rejected or never received credentials.
	// The caller is expected to send the user to the login screen.
	ErrAuth = errors.New("backend: authentication required")

	// ErrNetwork covers transport failures and server-side (5xx) errors.
	ErrNetwork = errors.New("backend: network error")

	// ErrNoToken is returned before any request is made when no JWT is stored.
	ErrNoToken = fmt.Errorf("%w: no token stored", ErrAuth)
)

// StatusError reports a non-2xx response. It unwraps to ErrAuth for
// 401/403 and to ErrNetwork for 5xx.
type StatusError struct {
	Code   int
	Status string
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s: %s", e.Path, e.Status)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return ErrAuth
	case e.Code >= 500:
		return ErrNetwork
	default:
		return nil
	}
}
