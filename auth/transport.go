package auth

import (
	"errors"
	"net/http"
)

// Middleware authenticates each request with authn and, on success, stores
// the identity in the request context. Failures are reported through
// reject, which defaults to a plain 401 response. Internal authenticator
// errors are reported as 500.
func Middleware(authn Authenticator, reject func(w http.ResponseWriter, status int, err error)) func(http.Handler) http.Handler {
	if reject == nil {
		reject = func(w http.ResponseWriter, status int, err error) {
			http.Error(w, err.Error(), status)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := authn.Authenticate(r.Context(), &AuthRequest{
				Headers:  r.Header,
				Resource: r.URL.Path,
			})
			if err != nil {
				reject(w, http.StatusInternalServerError, err)
				return
			}
			if !result.Authenticated {
				if result.Error == nil {
					result.Error = ErrInvalidCredentials
				}
				reject(w, http.StatusUnauthorized, result.Error)
				return
			}
			if result.Identity.IsExpired() {
				reject(w, http.StatusUnauthorized, ErrTokenExpired)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), result.Identity)))
		})
	}
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed)
}
