package httpapi

import (
	"errors"
	"net/http"

	"cvcounter/internal/auth"
)

// loginResponse reports an issued bearer token along with both the
// absolute expiry instant and the configured token lifetime, the latter
// read from the JWTManager rather than recomputed here.
type loginResponse struct {
	Token         string `json:"token"`
	ExpiresAt     int64  `json:"expires_at"`
	ExpiresInSecs int64  `json:"expires_in_seconds"`
}

// handleLogin exchanges operator credentials for a bearer token used on
// the mutating command endpoints. Unauthenticated: this is how a client
// obtains the token the auth middleware then checks.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.authenticator.IsEnabled() {
		badRequest(w, "authentication is disabled", "")
		return
	}

	if err := r.ParseForm(); err != nil {
		badRequest(w, "invalid form body", err.Error())
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")

	token, expiresAt, err := s.authenticator.Authenticate(username, password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, InternalError{Message: authErrorMessage(err)})
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:         token,
		ExpiresAt:     expiresAt,
		ExpiresInSecs: int64(s.authenticator.JWTManager().GetExpiry().Seconds()),
	})
}

func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid credentials"
	case errors.Is(err, auth.ErrAuthDisabled):
		return "authentication is disabled"
	default:
		return "login failed"
	}
}
